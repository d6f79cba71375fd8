// slack-intel caches chat workspace conversations as a partitioned Parquet
// dataset and reads them back as threaded views and SQL.
package main

import (
	"errors"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/zeebeeCoder/slack-intel/pkg/apierr"
)

// Exit codes: 0 success, 1 user/config error, 2 runtime error.
const (
	exitOK      = 0
	exitUsage   = 1
	exitRuntime = 2
)

var (
	verbose   bool
	cachePath string

	logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		With().Timestamp().Logger()
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "slack-intel",
		Short:         "Cache Slack conversations to Parquet and query them",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := zerolog.InfoLevel
			if verbose {
				level = zerolog.DebugLevel
			}
			logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
				Level(level).
				With().Timestamp().Logger()
		},
	}

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().StringVar(&cachePath, "cache-path", "cache", "cache directory")

	root.AddCommand(newCacheCmd())
	root.AddCommand(newViewCmd())
	root.AddCommand(newStatsCmd())
	root.AddCommand(newQueryCmd())
	root.AddCommand(newSyncCmd())
	return root
}

// usageError marks a failure caused by bad arguments rather than the run
// itself.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logger.Error().Msg(err.Error())

		var ue usageError
		if errors.As(err, &ue) || apierr.KindOf(err) == apierr.KindConfig {
			os.Exit(exitUsage)
		}
		os.Exit(exitRuntime)
	}
	os.Exit(exitOK)
}
