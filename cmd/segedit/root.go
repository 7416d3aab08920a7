package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"segedit/pkg/config"
)

// RootOptions holds the global flags and what PersistentPreRunE builds from them
type RootOptions struct {
	ConfigPath string
	Verbose    bool

	cfg *config.Config
	log *zap.Logger
}

// NewRootCommand creates the segedit command tree
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "segedit",
		Short: "Edit 3D label segmentations with undo",
		Long: `segedit applies scripted segmentation edits to a label volume.

Edits honor the configured coverage policy, each operation is one undo step,
and the final per-label statistics are printed when the script finishes.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(opts.ConfigPath)
			if err != nil {
				return err
			}
			if opts.Verbose {
				cfg.Logging.Level = "debug"
			}
			log, err := cfg.NewLogger()
			if err != nil {
				return err
			}
			opts.cfg, opts.log = cfg, log
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.log != nil {
				_ = opts.log.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "segedit.yaml", "path to the YAML config file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))
	return cmd
}
