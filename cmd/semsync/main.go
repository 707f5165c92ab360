package main

import (
	"context"
	"os"
	runtimedebug "runtime/debug"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/walteh/semsync/cmd/semsync/decode"
	"github.com/walteh/semsync/cmd/semsync/patch"
	"github.com/walteh/semsync/cmd/semsync/query"
	"github.com/walteh/semsync/pkg/debug"
	"gitlab.com/tozd/go/errors"
)

func main() {
	if err := run(); err != nil {
		println(err.Error())
		os.Exit(1)
	}
}

func run() error {
	var debugLogs bool

	rootCmd := &cobra.Command{
		Use:   "semsync",
		Short: "Inspect semantic token streams the way the sync engine sees them",
	}

	rootCmd.PersistentFlags().BoolVar(&debugLogs, "debug", false, "enable debug logging")

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		level := zerolog.InfoLevel
		if debugLogs {
			level = zerolog.DebugLevel
		}
		logger := debug.NewConsoleLogger(cmd.ErrOrStderr(), level)
		cmd.SetContext(logger.WithContext(cmd.Context()))
	}

	info, ok := runtimedebug.ReadBuildInfo()
	if !ok {
		rootCmd.Version = "unknown"
	} else {
		rootCmd.Version = info.Main.Version
	}

	cmdVersion := &cobra.Command{
		Use: "raw-version",
		Run: func(cmdz *cobra.Command, args []string) {
			cmdz.Println(rootCmd.Version)
		},
		Hidden: true,
	}

	rootCmd.AddCommand(cmdVersion)

	rootCmd.AddCommand(decode.NewDecodeCommand())
	rootCmd.AddCommand(patch.NewPatchCommand())
	rootCmd.AddCommand(query.NewQueryCommand())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		return errors.Errorf("failed to execute command: %w", err)
	}

	return nil
}
