package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/tck-bridge/analysis"
	"github.com/wippyai/tck-bridge/config"
	"github.com/wippyai/tck-bridge/invoke"
	"github.com/wippyai/tck-bridge/worker"
)

// rootOptions holds global flags and what PersistentPreRunE derives from
// them.
type rootOptions struct {
	logger     *zap.Logger
	configPath string
	cfg        config.Config
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "tckbridge",
		Short: "Isolated native calls into the tchecker library",
		Long: `tckbridge runs tchecker analyses. Every native call happens in a fresh
worker process, so a crash or hang in the library costs one request,
never the caller.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				opts.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML config file")
	cmd.PersistentFlags().StringP("library", "l", "", "shared library to call (overrides config)")
	cmd.PersistentFlags().Duration("timeout", 0, "per-call timeout (overrides config)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newCallCommand(opts))
	cmd.AddCommand(newOpsCommand(opts))
	cmd.AddCommand(newUICommand(opts))
	cmd.AddCommand(newWorkerCommand())

	return cmd
}

func (o *rootOptions) load(cmd *cobra.Command) error {
	flags := cmd.Flags()
	cfg, err := config.Load(o.configPath,
		config.WithFlag("library_path", flags.Lookup("library")),
		config.WithFlag("timeout", flags.Lookup("timeout")),
		config.WithFlag("listen", flags.Lookup("listen")),
	)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	o.cfg = cfg
	o.logger = logger
	invoke.SetLogger(logger.Named("invoke"))
	return nil
}

func (o *rootOptions) invoker(extra ...invoke.Option) (*invoke.Invoker, error) {
	opts := []invoke.Option{
		invoke.WithTimeout(o.cfg.Timeout),
		invoke.WithMaxConcurrent(o.cfg.MaxConcurrent),
		invoke.WithRelease(o.cfg.ReleaseSymbol),
	}
	return invoke.New(o.cfg.LibraryPath, append(opts, extra...)...)
}

func (o *rootOptions) catalog() (*analysis.Catalog, error) {
	if o.cfg.CatalogPath != "" {
		return analysis.LoadFile(o.cfg.CatalogPath)
	}
	return analysis.Default()
}

func (o *rootOptions) service(iv analysis.Invoker) (*analysis.Service, error) {
	cat, err := o.catalog()
	if err != nil {
		return nil, err
	}
	return analysis.NewService(cat, iv,
		analysis.WithScratchDir(o.cfg.ScratchDir),
		analysis.WithLogger(o.logger.Named("analysis")),
	), nil
}

// newWorkerCommand is the entry point the invoker spawns. It skips config
// and logging entirely: stdout belongs to the report.
func newWorkerCommand() *cobra.Command {
	return &cobra.Command{
		Use:    "worker",
		Short:  "Handle one call request on stdin (internal)",
		Hidden: true,
		Args:   cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {},
		Run: func(cmd *cobra.Command, args []string) {
			worker.Main()
		},
	}
}
