package cmd

import (
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/git-pkgs/jslib"
	"github.com/git-pkgs/jslib/internal/bundle"
	"github.com/git-pkgs/jslib/internal/config"
	"github.com/git-pkgs/jslib/internal/output"
)

var (
	// Global flags
	configFlag  string
	verboseFlag bool
	rootdirFlag string
)

// NewRootCmd creates the root command for the jslib CLI.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "jslib",
		Short: "Manage your javascript libraries",
		Long: `jslib installs AMD libraries from the npm registry into a library root,
reports their dependencies and builds bundles with an external optimizer.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			output.SetupLogging(verboseFlag)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Path to config file (default: ./jslib.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&rootdirFlag, "rootdir", "", "Library root (env: JSLIB_ROOTDIR)")

	rootCmd.AddCommand(NewInstallCmd())
	rootCmd.AddCommand(NewListCmd())
	rootCmd.AddCommand(NewUpgradeCmd())
	rootCmd.AddCommand(NewBundleCmd())
	rootCmd.AddCommand(NewDumpConfigCmd())
	rootCmd.AddCommand(NewDumpLoaderCmd())
	rootCmd.AddCommand(NewMissingCmd())
	rootCmd.AddCommand(NewFingerprintCmd())
	rootCmd.AddCommand(NewPurgeCacheCmd())

	return rootCmd
}

// loadConfig reads the configuration, applying the global flags over it.
func loadConfig() (*config.Config, error) {
	loader := config.NewLoader()
	if rootdirFlag != "" {
		loader.Set("rootdir", rootdirFlag)
	}
	cfg, err := loader.Load(configFlag)
	if err != nil {
		return nil, &ExitError{Code: ExitConfigError, Err: err}
	}
	if used := loader.ConfigFileUsed(); used != "" {
		output.Debug("loaded config", "file", used)
	}
	return cfg, nil
}

// openModule opens the configured library root.
func openModule() (*jslib.Module, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	fsys := afero.NewOsFs()
	if err := cfg.Validate(fsys); err != nil {
		return nil, err
	}
	cacheDir, err := cfg.CacheDirectory(fsys)
	if err != nil {
		return nil, err
	}
	overrides, err := cfg.LoaderOverrides()
	if err != nil {
		return nil, err
	}
	runtime, err := config.ReadSource(fsys, cfg.Runtime)
	if err != nil {
		return nil, &ExitError{Code: ExitConfigError, Err: err}
	}
	loaderSrc, err := config.ReadSource(fsys, cfg.Loader)
	if err != nil {
		return nil, &ExitError{Code: ExitConfigError, Err: err}
	}

	output.Debug("opening library root",
		"rootdir", cfg.RootDir,
		"cachedir", cacheDir,
		"registry", cfg.Registry,
	)

	return jslib.Open(jslib.Options{
		Fs:        fsys,
		RootDir:   cfg.RootDir,
		CacheDir:  cacheDir,
		Registry:  cfg.Registry,
		Token:     cfg.Token,
		Overrides: overrides,
		Runtime:   runtime,
		Loader:    loaderSrc,
		Optimizer: bundle.NewNodeOptimizer(cfg.OptimizerCommand(), cfg.Timeout),
		Logger:    output.Logger,
	})
}
