package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"database-benchmark/internal/capability"
	"database-benchmark/internal/config"
	"database-benchmark/internal/database"
	"database-benchmark/internal/logging"
)

const (
	Version = "0.3.0"

	defaultConfigPath = "config.yaml"

	// wrap is the column flag help text is wrapped at.
	wrap = 50
)

func newRootCmd() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:   "benchmark-runner",
		Short: "capability-gated database benchmarks",
		Long: fmt.Sprintf(`benchmark-runner (v%s)

Runs ecommerce, social media and analytics workloads against PostgreSQL,
MySQL, SQLite and MongoDB. A benchmark whose required features the backend
lacks is reported as skipped instead of failing.`, Version),
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return bindEnv(cmd, v)
		},
	}

	root.PersistentFlags().String("config", defaultConfigPath, wrapString("Path of the YAML config file. A missing default file falls back to built-in settings"))
	root.PersistentFlags().String("db", "sqlite", wrapString(fmt.Sprintf("Database backend, one of %s", strings.Join(database.Names(), ", "))))
	root.PersistentFlags().String("dsn", "", wrapString("Connection string overriding the one in the config file"))
	root.PersistentFlags().String("log-level", "info", wrapString("Log level (error, warn, info, debug)"))

	root.AddCommand(
		newRunCmd(v),
		newCapabilitiesCmd(v),
		newDiffCmd(v),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version number",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "benchmark-runner v%s\n", Version)
			},
		},
	)
	return root
}

// bindEnv loads .env files and lets HARNESS_* variables stand in for
// flags.
func bindEnv(cmd *cobra.Command, v *viper.Viper) error {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	v.SetEnvPrefix("harness")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v.BindPFlags(cmd.Flags())
}

// loadConfig reads the config file. Only the default path may be missing.
func loadConfig(cmd *cobra.Command, v *viper.Viper) (*config.Config, error) {
	path := v.GetString("config")
	cfg, err := config.LoadConfig(path)
	if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") && path == defaultConfigPath {
		return config.Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, v *viper.Viper) (*logging.Logger, *log.Logger, error) {
	level, err := logging.ParseLevel(v.GetString("log-level"))
	if err != nil {
		return nil, nil, err
	}
	std := log.New(cmd.ErrOrStderr(), "", log.LstdFlags)
	logger := logging.New("harness", std)
	logger.SetLevel(level)
	return logger, std, nil
}

// declarations returns the capability file named in cfg, or nil.
func declarations(cfg *config.Config) (*capability.Declarations, error) {
	if cfg.CapabilitiesFile == "" {
		return nil, nil
	}
	decl, err := capability.LoadDeclarations(cfg.CapabilitiesFile)
	if err != nil {
		return nil, fmt.Errorf("capabilities file %s: %w", cfg.CapabilitiesFile, err)
	}
	return decl, nil
}

// registryFor prefers a declared registry over the driver's built-in one.
func registryFor(decl *capability.Declarations, db database.Driver) *capability.Registry {
	if reg := decl.Registry(db.Name()); reg != nil {
		return reg
	}
	return db.Capabilities()
}

func wrapString(text string) string {
	var lines []string
	var line strings.Builder
	for _, word := range strings.Fields(text) {
		if line.Len() > 0 && line.Len()+1+len(word) > wrap {
			lines = append(lines, line.String())
			line.Reset()
		}
		if line.Len() > 0 {
			line.WriteString(" ")
		}
		line.WriteString(word)
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return strings.Join(lines, "\n")
}
