package main

import (
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/zeebeeCoder/slack-intel/internal/config"
	"github.com/zeebeeCoder/slack-intel/pkg/cache"
	"github.com/zeebeeCoder/slack-intel/pkg/fetch"
	"github.com/zeebeeCoder/slack-intel/pkg/ingest"
	"github.com/zeebeeCoder/slack-intel/pkg/jirax"
	"github.com/zeebeeCoder/slack-intel/pkg/models"
	"github.com/zeebeeCoder/slack-intel/pkg/slackapi"
	"github.com/zeebeeCoder/slack-intel/pkg/timewindow"
	"github.com/zeebeeCoder/slack-intel/pkg/users"
)

func newCacheCmd() *cobra.Command {
	var (
		channelIDs    []string
		days          int
		hours         int
		date          string
		enrichTickets bool
	)

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Fetch messages and write Parquet partitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			var channels []models.Channel
			if len(channelIDs) > 0 {
				for _, id := range channelIDs {
					channels = append(channels, models.Channel{ID: id})
				}
			} else {
				channels = cfg.ChatChannels()
			}
			if len(channels) == 0 {
				return usageError{fmt.Errorf("no channels given: pass --channel or configure %s", config.FileName)}
			}

			if date != "" && !timewindow.ValidDate(date) {
				return usageError{fmt.Errorf("invalid --date %q, expected YYYY-MM-DD", date)}
			}

			token, kind, err := config.ChatToken()
			if err != nil {
				return err
			}
			logger.Info().Str("token_kind", kind).Msg("using chat credential")

			api := slackapi.NewRateLimited(slackapi.NewClient(token, kind, logger))
			userCache := users.New(api.User)
			fetcher := fetch.New(api, userCache, logger)
			writer := cache.NewWriter(cachePath, logger)

			var enricher ingest.TicketEnricher
			if enrichTickets {
				server, user, jiraToken, err := cfg.JiraCredentials()
				if err != nil {
					return err
				}
				jiraClient, err := jirax.NewClient(server, user, jiraToken, logger)
				if err != nil {
					return err
				}
				enricher = jirax.NewEnricher(jiraClient, logger)
			}

			service := ingest.NewService(fetcher, writer, userCache, enricher, logger, ingest.ServiceConfig{
				ChannelConcurrency: 2,
				EnrichTickets:      enrichTickets,
				FallbackDate:       date,
			})

			window := timewindow.Window{Days: days, Hours: hours}
			stats, err := service.Run(cmd.Context(), channels, window)
			if err != nil {
				return err
			}

			printRunSummary(stats)

			if summary := stats.Summarize(); summary.ChannelsFailed == summary.Channels && summary.Channels > 0 {
				return fmt.Errorf("all %d channels failed", summary.Channels)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&channelIDs, "channel", nil, "channel ID to cache (repeatable, overrides config)")
	cmd.Flags().IntVar(&days, "days", 2, "days to look back")
	cmd.Flags().IntVar(&hours, "hours", 0, "additional hours to look back")
	cmd.Flags().StringVar(&date, "date", "", "fallback partition date YYYY-MM-DD (default: today)")
	cmd.Flags().BoolVar(&enrichTickets, "enrich-tickets", false, "fetch and cache issue ticket metadata")
	return cmd
}

func printRunSummary(stats *ingest.RunStats) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Channel", "Messages", "Partitions", "Status"})
	table.SetAutoFormatHeaders(false)
	for _, result := range stats.Channels() {
		status := result.Status
		if result.Err != nil {
			status = fmt.Sprintf("%s: %v", result.Status, result.Err)
		}
		table.Append([]string{
			result.Channel,
			fmt.Sprintf("%d", result.Messages),
			fmt.Sprintf("%d", len(result.Partitions)),
			status,
		})
	}
	table.Render()

	summary := stats.Summarize()
	fmt.Printf("\nTotal: %d messages in %d partitions (%s)\n",
		summary.MessagesFetched, summary.PartitionsWritten, stats.Duration().Round(time.Second))
	fmt.Printf("Channels: %d ok, %d empty, %d failed\n",
		summary.Channels-summary.ChannelsEmpty-summary.ChannelsFailed, summary.ChannelsEmpty, summary.ChannelsFailed)
	if summary.UsersCached > 0 {
		fmt.Printf("Users cached: %d\n", summary.UsersCached)
	}
	if summary.TicketsFetched > 0 || summary.TicketsFailed > 0 {
		fmt.Printf("Tickets: %d fetched, %d failed\n", summary.TicketsFetched, summary.TicketsFailed)
	}
	for _, err := range summary.Errors {
		fmt.Printf("  - %v\n", err)
	}
}
