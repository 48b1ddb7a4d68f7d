package main

import (
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/swissMack/pve1-sub007/internal/config"
)

// rootOptions holds the persistent flags shared by every sub-command.
type rootOptions struct {
	configFile string
	envFile    string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "analyticsproxy",
		Short: "Analytics and carrier lookup proxy",
		Long: `analyticsproxy forwards usage analytics queries to the downstream analytics
service with a cached OAuth2 client-credentials token and resolves MCC-MNC
network identifiers to carrier names.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "path to a YAML configuration file")
	flags.StringVar(&opts.envFile, "env-file", "", "path to a .env file (default: ./.env when present)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	flags.StringVar(&opts.logFormat, "log-format", "", "log format (text, json)")

	cmd.AddCommand(
		newServeCmd(opts),
		newTokenCmd(opts),
		newCarrierCmd(opts),
		newQueryCmd(opts),
	)

	return cmd
}

// loadConfig resolves the configuration for a sub-command.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	loaderOpts := []config.Option{
		config.WithOverrides(map[string]any{
			"log.level":  o.logLevel,
			"log.format": o.logFormat,
		}),
	}
	if o.configFile != "" {
		loaderOpts = append(loaderOpts, config.WithConfigFile(o.configFile))
	}
	if o.envFile != "" {
		loaderOpts = append(loaderOpts, config.WithDotEnv(o.envFile))
	}

	return config.Load(loaderOpts...)
}

// newApp loads the configuration and wires the components, logging to the
// command's error stream.
func (o *rootOptions) newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}

	return newApp(cfg, logger)
}

func newLogger(cfg config.LogConfig, out io.Writer) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return logger, nil
}
