package main

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/AltairaLabs/barre/runtime/logger"
	"github.com/AltairaLabs/barre/runtime/version"
)

// Flag and viper key names.
const (
	flagConfig       = "config"
	flagVerbose      = "verbose"
	flagEnvFile      = "env-file"
	flagBatchSize    = "batch-size"
	flagSourceDir    = "source-dir"
	flagDuration     = "duration"
	flagMockProvider = "mock-provider"
	flagUser         = "user"

	keyBatchSize    = "batch.size"
	keySourceDir    = "capture.sourceDir"
	keyDuration     = "session.duration"
	keyMockProvider = "provider.mock"
	keyUserID       = "session.userID"

	envPrefix = "BARRE"
)

// cli carries the per-invocation flag state shared by all subcommands.
type cli struct {
	v *viper.Viper
}

// newViper returns a viper instance reading BARRE_* overrides, with dots in
// keys mapped to underscores.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func newRootCmd() *cobra.Command {
	c := &cli{v: newViper()}

	root := &cobra.Command{
		Use:           "barre",
		Short:         "AI-coached dance practice sessions",
		Version:       version.GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: false,
		Long: `barre samples frames from a camera stand-in, sends them in batches to a
vision model for ballet technique feedback, derives scores from the feedback
and saves each practice session as a report.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			envFile, _ := cmd.Flags().GetString(flagEnvFile)
			if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			if cmd.Flags().Changed(flagVerbose) {
				verbose, _ := cmd.Flags().GetBool(flagVerbose)
				logger.SetVerbose(verbose)
			}
			return nil
		},
	}
	root.SetVersionTemplate(version.GetVersionInfo() + "\n")

	root.PersistentFlags().StringP(flagConfig, "c", "", "Configuration file path")
	root.PersistentFlags().BoolP(flagVerbose, "v", false, "Enable verbose debug logging")
	root.PersistentFlags().String(flagEnvFile, ".env", "Environment file loaded before running")
	root.PersistentFlags().Bool(flagMockProvider, false, "Replace the model provider with the offline mock")
	root.PersistentFlags().String(flagUser, "", "User the reports belong to")
	_ = c.v.BindPFlag(keyMockProvider, root.PersistentFlags().Lookup(flagMockProvider))
	_ = c.v.BindPFlag(keyUserID, root.PersistentFlags().Lookup(flagUser))

	root.AddCommand(
		c.newRunCmd(),
		c.newHistoryCmd(),
		c.newDeleteCmd(),
		c.newDraftsCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.GetVersionInfo())
		},
	}
}
