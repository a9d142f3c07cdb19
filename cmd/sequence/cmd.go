package sequence

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/depflow/depflow/pkg/depflow/codec"
)

func NewSequenceCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sequence <sequence-file>",
		Short: "Decodes a stored message-pack action sequence",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(args[0]); errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("file (%s) not found", args[0])
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read sequence: %w", err)
			}
			seq, err := codec.DecodeSequence(raw)
			if err != nil {
				return err
			}
			out, err := codec.SequenceJSON(seq)
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}
