package validate

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/depflow/depflow/internal/config"
	"github.com/depflow/depflow/internal/dispatch"
	"github.com/depflow/depflow/pkg/depflow"
	"github.com/depflow/depflow/pkg/depflow/builder"
	"github.com/depflow/depflow/pkg/depflow/catalog"
	"github.com/depflow/depflow/pkg/depflow/resolver"
)

func NewValidateCommand() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Checks the configured catalog for cycles and firing conflicts",
		Long: `Checks the configured catalog by resolving a synthetic pass that requests
every product's first declared action on a client with nothing
installed. A catalog that fails here will fail every real client the
same way.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "configuration file")
	return cmd
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	dispatcher, release, err := dispatch.Open(ctx, cfg.Backend)
	if err != nil {
		return err
	}
	defer release()

	snap, err := catalog.Load(ctx, dispatcher)
	if err != nil {
		return err
	}

	request := depflow.ClientRequest{ClientID: "catalog-validation", Installed: depflow.InstalledState{}}
	_ = snap.Iterate(func(p depflow.Product) error {
		action := depflow.ActionInstall
		if len(p.Actions) > 0 {
			action = p.Actions[0]
		}
		request.Steps = append(request.Steps, depflow.Step{Product: p.ID, Action: action})
		return nil
	})

	graph, err := builder.Build(snap, request)
	if err != nil {
		return fmt.Errorf("catalog invalid: %w", err)
	}

	if _, err := resolver.New().Resolve(graph); err != nil {
		var cyclic *depflow.CyclicDependencyError
		var conflict *depflow.UnresolvableConflictError
		switch {
		case errors.As(err, &cyclic):
			fmt.Println("catalog invalid:", cyclic.Failure.String())
			for _, c := range cyclic.Failure.Constraints {
				fmt.Println("  -", c)
			}
		case errors.As(err, &conflict):
			fmt.Println("catalog invalid:", conflict.Failure.String())
			for _, c := range conflict.Failure.Constraints {
				fmt.Println("  -", c)
			}
		}
		return err
	}

	fmt.Printf("catalog ok: %d products, no cycles, no firing conflicts\n", snap.Len())
	return nil
}
