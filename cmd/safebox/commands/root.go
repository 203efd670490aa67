package commands

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/nuln/safebox"
	"github.com/nuln/safebox/digest"
)

// globalFlags holds the persistent flags shared by every command.
type globalFlags struct {
	cfgFile         string
	driverType      string
	basePath        string
	mode            string
	algorithm       string
	formatIfUnready bool
	verbose         bool
}

// NewRootCommand builds the safebox command tree.
func NewRootCommand() *cobra.Command {
	g := &globalFlags{}

	cmd := &cobra.Command{
		Use:   "safebox",
		Short: "Store files reliably on unreliable storage",
		Long: `safebox - A command line interface for safebox stores.

Files are written through a durability mode:
  - plain: written as-is, failed writes are retried
  - hash:  stored with a hash companion, verified on every save and load

Examples:
  # Save a file into a local store
  safebox --base ./data put settings settings.json

  # Read it back, failing if it no longer matches its hash
  safebox --base ./data get settings

  # Use a config file
  safebox --config safebox.yaml ls logs
`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&g.cfgFile, "config", "", "YAML config file (flags given explicitly override it)")
	pf.StringVarP(&g.driverType, "type", "t", "local", "storage driver")
	pf.StringVarP(&g.basePath, "base", "b", "./data", "driver base path")
	pf.StringVarP(&g.mode, "mode", "m", "hash", "durability mode: plain, hash or hash+backup")
	pf.StringVar(&g.algorithm, "algorithm", "", "digest algorithm: md5, sha256 or blake3 (default md5)")
	pf.BoolVar(&g.formatIfUnready, "format-if-unready", false, "format the store if it cannot be mounted")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(
		newPutCmd(g),
		newAppendCmd(g),
		newGetCmd(g),
		newExistsCmd(g),
		newRmCmd(g),
		newLsCmd(g),
		newCountCmd(g),
		newPurgeCmd(g),
		newDfCmd(g),
		newDriversCmd(),
	)
	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().Execute()
}

func (g *globalFlags) logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if g.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// config builds the store configuration from --config and the flags.
func (g *globalFlags) config(cmd *cobra.Command) (*safebox.Config, error) {
	cfg := &safebox.Config{}
	if g.cfgFile != "" {
		var err error
		if cfg, err = safebox.LoadConfig(g.cfgFile); err != nil {
			return nil, err
		}
	}

	// Without a config file the flag defaults apply.
	set := func(name string) bool {
		return g.cfgFile == "" || cmd.Flags().Changed(name)
	}
	if set("type") {
		cfg.Type = g.driverType
	}
	if set("base") {
		cfg.BasePath = g.basePath
	}
	if set("mode") {
		mode, err := safebox.ParseMode(g.mode)
		if err != nil {
			return nil, err
		}
		cfg.Mode = mode
	}
	if cmd.Flags().Changed("algorithm") || (g.cfgFile == "" && g.algorithm != "") {
		alg, err := digest.Parse(g.algorithm)
		if err != nil {
			return nil, err
		}
		cfg.Algorithm = alg
	}
	if cmd.Flags().Changed("format-if-unready") {
		cfg.FormatIfUnready = g.formatIfUnready
	}
	return cfg, nil
}

// open opens the configured store. The caller must close it.
func (g *globalFlags) open(cmd *cobra.Command) (*safebox.Manipulator, error) {
	cfg, err := g.config(cmd)
	if err != nil {
		return nil, err
	}
	log := g.logger(cmd.ErrOrStderr())
	log.Debug("opening store", "type", cfg.Type, "base", cfg.BasePath, "mode", cfg.Mode.String())

	m, err := safebox.Open(cmd.Context(), cfg, safebox.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Type, err)
	}
	return m, nil
}

// withStore opens the store, runs fn and closes the store again.
func (g *globalFlags) withStore(cmd *cobra.Command, fn func(*safebox.Manipulator) error) error {
	m, err := g.open(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()
	return fn(m)
}
