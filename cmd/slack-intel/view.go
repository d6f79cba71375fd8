package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zeebeeCoder/slack-intel/pkg/cache"
	"github.com/zeebeeCoder/slack-intel/pkg/models"
	"github.com/zeebeeCoder/slack-intel/pkg/query"
	"github.com/zeebeeCoder/slack-intel/pkg/threads"
	"github.com/zeebeeCoder/slack-intel/pkg/timewindow"
	"github.com/zeebeeCoder/slack-intel/pkg/view"
)

func newViewCmd() *cobra.Command {
	var (
		channel     string
		date        string
		startDate   string
		endDate     string
		output      string
		allChannels bool
		enrich      bool
		bucket      string
	)

	cmd := &cobra.Command{
		Use:   "view",
		Short: "Reconstruct threads and render a readable conversation view",
		RunE: func(cmd *cobra.Command, args []string) error {
			if channel == "" && !allChannels {
				return usageError{fmt.Errorf("--channel is required (or pass --all-channels)")}
			}
			if (startDate == "") != (endDate == "") {
				return usageError{fmt.Errorf("--start-date and --end-date must be given together")}
			}

			reader := cache.NewReader(cachePath, logger)
			ctx := cmd.Context()

			var (
				rows      []models.Row
				dateRange string
				err       error
			)
			switch {
			case startDate != "":
				dateRange = startDate + " to " + endDate
				if allChannels {
					return usageError{fmt.Errorf("--all-channels supports a single --date only")}
				}
				rows, err = reader.ReadChannelRange(ctx, channel, startDate, endDate)
			case allChannels:
				if date == "" {
					date = timewindow.Today()
				}
				dateRange = date
				rows, err = reader.ReadAllChannels(ctx, date)
			default:
				if date == "" {
					date = timewindow.Today()
				}
				dateRange = date
				rows, err = reader.ReadChannel(ctx, channel, date)
			}
			if err != nil {
				return err
			}

			viewCtx := view.Context{ChannelName: channel, DateRange: dateRange}
			if allChannels {
				seen := map[string]struct{}{}
				for _, r := range rows {
					if _, ok := seen[r.ChannelName]; !ok {
						seen[r.ChannelName] = struct{}{}
						viewCtx.Channels = append(viewCtx.Channels, r.ChannelName)
					}
				}
				viewCtx.ChannelName = "Multi-Channel"
			}

			if len(rows) == 0 {
				fmt.Printf("No messages found in %s for %s.\n", viewCtx.ChannelName, dateRange)
				fmt.Println("Try a different date range, or run 'slack-intel stats' to see available data.")
				return nil
			}

			if enrich {
				engine, err := query.Open(cachePath, logger)
				if err != nil {
					return err
				}
				defer engine.Close()
				tickets, err := engine.Tickets(ctx)
				if err != nil {
					return err
				}
				viewCtx.Tickets = tickets
			}

			cachedUsers, err := reader.ReadUsers(ctx)
			if err != nil {
				logger.Warn().Err(err).Msg("could not read user cache; mentions may stay unresolved")
				cachedUsers = nil
			}

			var rendered string
			if allChannels && bucket != view.BucketNone {
				rendered, err = renderBuckets(rows, bucket, viewCtx, cachedUsers)
				if err != nil {
					return usageError{err}
				}
			} else {
				topLevels := threads.Reconstruct(rows)
				rendered = view.NewFormatter().Format(topLevels, viewCtx, cachedUsers)
			}

			if output != "" {
				if err := os.WriteFile(output, []byte(rendered+"\n"), 0o644); err != nil {
					return err
				}
				fmt.Printf("View saved to %s\n", output)
				return nil
			}
			fmt.Println(rendered)
			return nil
		},
	}

	cmd.Flags().StringVarP(&channel, "channel", "c", "", "channel name or ID to view")
	cmd.Flags().StringVarP(&date, "date", "d", "", "date to view (YYYY-MM-DD, default: today)")
	cmd.Flags().StringVar(&startDate, "start-date", "", "range start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&endDate, "end-date", "", "range end (YYYY-MM-DD)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the view to a file")
	cmd.Flags().BoolVar(&allChannels, "all-channels", false, "merge every channel for the date")
	cmd.Flags().BoolVar(&enrich, "enrich", false, "append cached ticket metadata to messages")
	cmd.Flags().StringVar(&bucket, "bucket", view.BucketNone, "time bucketing for --all-channels: hour, day, or none")
	return cmd
}

// renderBuckets renders a merged multi-channel view one time bucket at a
// time, each bucket's threads reconstructed independently.
func renderBuckets(rows []models.Row, bucket string, viewCtx view.Context, cachedUsers map[string]models.User) (string, error) {
	buckets, err := view.BucketRows(rows, bucket)
	if err != nil {
		return "", err
	}

	var sections []string
	for _, b := range buckets {
		sections = append(sections, b.Header())
		for _, channel := range b.Channels() {
			sectionCtx := view.Context{
				ChannelName: channel,
				DateRange:   viewCtx.DateRange,
				Tickets:     viewCtx.Tickets,
			}
			topLevels := threads.Reconstruct(b.ByChannel[channel])
			sections = append(sections, view.NewFormatter().Format(topLevels, sectionCtx, cachedUsers))
		}
	}
	return strings.Join(sections, "\n\n"), nil
}
