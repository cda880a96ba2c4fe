// Package cmd implements the enerctl command line: offline evaluation of
// energy allocation scenarios described in YAML.
package cmd

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// envPrefix prefixes the environment variables read by enerctl: the flag
// --objective is also ENERCTL_OBJECTIVE.
const envPrefix = "ENERCTL"

// NewRootCmd builds the enerctl command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "enerctl",
		Short:         "Evaluate energy allocation scenarios",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logrus.ParseLevel(settings(cmd).GetString("log"))
			if err != nil {
				return err
			}
			logrus.SetLevel(level)
			logrus.SetOutput(cmd.ErrOrStderr())
			return nil
		},
	}

	root.PersistentFlags().String("log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
	root.PersistentFlags().StringP("file", "f", "", "Scenario file (required)")

	root.AddCommand(newCombineCmd(), newAllocateCmd(), newCallCmd())
	return root
}

// Execute runs the CLI root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}

// settings resolves the flags of cmd: explicit flags win over ENERCTL_*
// environment variables, which win over flag defaults.
func settings(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindPFlags(cmd.Flags())
	return v
}

// loadScenario reads the scenario named by --file and builds its allocator.
func loadScenario(v *viper.Viper) (*Scenario, error) {
	path := v.GetString("file")
	if path == "" {
		return nil, errMissingFile
	}

	s, err := LoadScenario(path)
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"file":    path,
		"service": s.Service,
		"samples": len(s.Samples),
		"remotes": len(s.Remotes),
	}).Debug("scenario loaded")
	return s, nil
}

// allocatorLogger returns the logger handed to the allocator: its debug
// decisions are only shown at logrus debug level and below.
func allocatorLogger(cmd *cobra.Command) *slog.Logger {
	if !logrus.IsLevelEnabled(logrus.DebugLevel) {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))
}
