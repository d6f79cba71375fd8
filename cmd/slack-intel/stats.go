package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/zeebeeCoder/slack-intel/pkg/cache"
)

func newStatsCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Enumerate cached partitions and summarize the dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			reader := cache.NewReader(cachePath, logger)
			info, err := reader.PartitionInfo()
			if err != nil {
				return err
			}

			switch format {
			case "json":
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			case "table":
				if len(info.Partitions) == 0 {
					fmt.Printf("No partitions found under %s.\n", cachePath)
					return nil
				}
				table := tablewriter.NewWriter(os.Stdout)
				table.SetHeader([]string{"Entity", "Path", "Rows", "Bytes"})
				table.SetAutoFormatHeaders(false)
				table.SetAutoWrapText(false)
				for _, p := range info.Partitions {
					table.Append([]string{
						p.Entity,
						p.Path,
						fmt.Sprintf("%d", p.Rows),
						fmt.Sprintf("%d", p.Bytes),
					})
				}
				table.Render()
				fmt.Printf("\n%d partition(s), %d rows, %d bytes\n",
					len(info.Partitions), info.TotalRows, info.TotalBytes)
				return nil
			default:
				return usageError{fmt.Errorf("unknown --format %q", format)}
			}
		},
	}

	cmd.Flags().StringVar(&format, "format", "table", "output format: table or json")
	return cmd
}
