package resolve

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/depflow/depflow/internal/config"
	"github.com/depflow/depflow/internal/dispatch"
	"github.com/depflow/depflow/internal/logging"
	"github.com/depflow/depflow/internal/metrics"
	"github.com/depflow/depflow/pkg/depflow"
	"github.com/depflow/depflow/pkg/depflow/backend"
	"github.com/depflow/depflow/pkg/depflow/builder"
	"github.com/depflow/depflow/pkg/depflow/catalog"
	"github.com/depflow/depflow/pkg/depflow/codec"
	"github.com/depflow/depflow/pkg/depflow/resolver"
)

type options struct {
	configPath   string
	logLevel     string
	out          string
	deprioritize bool
}

func NewResolveCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "resolve <request.yaml>",
		Short: "Resolves a client request into an ordered action sequence",
		Long: `Resolves a client request into an ordered action sequence. The request
file names the client and its requested steps:

clientId: pc-0042
steps:
  - product: texteditor
    action: install
`,
		Args: cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(args[0]); errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("file (%s) not found", args[0])
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args[0], opts)
		},
	}
	cmd.Flags().StringVar(&opts.configPath, "config", "", "configuration file")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&opts.out, "out", "", "write the sequence as message-pack to this file instead of JSON to stdout")
	cmd.Flags().BoolVar(&opts.deprioritize, "deprioritize-conflicts", false, "omit the lower-priority side of conflicts instead of failing")
	return cmd
}

func run(ctx context.Context, requestPath string, opts *options) error {
	logger, err := logging.New(opts.logLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	request, err := readRequest(requestPath)
	if err != nil {
		return err
	}

	dispatcher, release, err := dispatch.Open(ctx, cfg.Backend)
	if err != nil {
		return err
	}
	defer release()

	start := time.Now()
	seq, err := resolveRequest(ctx, dispatcher, request, opts, logger)
	if err != nil {
		metrics.ObserveResolution(outcomeOf(err), start)
		return err
	}
	metrics.ObserveResolution("ok", start)
	logger.Info("resolved",
		zap.String("client", seq.ClientID),
		zap.Int("steps", len(seq.Steps)),
		zap.Int("omitted", len(seq.Omitted)),
		zap.Duration("took", time.Since(start)))

	if opts.out != "" {
		raw, err := codec.EncodeSequence(seq)
		if err != nil {
			return err
		}
		return os.WriteFile(opts.out, raw, 0o644)
	}
	raw, err := codec.SequenceJSON(seq)
	if err != nil {
		return err
	}
	fmt.Println(string(raw))
	return nil
}

func resolveRequest(ctx context.Context, dispatcher backend.Dispatcher, request depflow.ClientRequest, opts *options, logger *zap.Logger) (depflow.ActionSequence, error) {
	installed, err := dispatcher.GetInstalledState(ctx, request.ClientID)
	if err != nil {
		return depflow.ActionSequence{}, err
	}
	request.Installed = installed

	snap, err := catalog.Load(ctx, dispatcher)
	if err != nil {
		return depflow.ActionSequence{}, err
	}

	graph, err := builder.Build(snap, request)
	if err != nil {
		return depflow.ActionSequence{}, err
	}

	resolverOpts := []resolver.Option{resolver.WithTracer(zapTracer{logger})}
	if opts.deprioritize {
		resolverOpts = append(resolverOpts, resolver.WithConflictPolicy(resolver.ConflictDeprioritize))
	}
	return resolver.New(resolverOpts...).Resolve(graph)
}

func readRequest(path string) (depflow.ClientRequest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return depflow.ClientRequest{}, fmt.Errorf("read request: %w", err)
	}
	var request depflow.ClientRequest
	if err := yaml.Unmarshal(raw, &request); err != nil {
		return depflow.ClientRequest{}, fmt.Errorf("parse request %s: %w", path, err)
	}
	if request.ClientID == "" {
		return depflow.ClientRequest{}, fmt.Errorf("request %s names no client", path)
	}
	return request, nil
}

func outcomeOf(err error) string {
	var cyclic *depflow.CyclicDependencyError
	var conflict *depflow.UnresolvableConflictError
	switch {
	case errors.As(err, &cyclic):
		return "cycle"
	case errors.As(err, &conflict):
		return "conflict"
	}
	return "input-error"
}

type zapTracer struct {
	logger *zap.Logger
}

func (t zapTracer) Scheduled(step depflow.Step, position int) {
	t.logger.Debug("scheduled", zap.Stringer("step", step), zap.Int("position", position))
}
