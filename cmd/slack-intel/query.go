package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zeebeeCoder/slack-intel/pkg/query"
)

func newQueryCmd() *cobra.Command {
	var (
		sqlText     string
		interactive bool
		format      string
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run SQL over the Parquet dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			if sqlText == "" && !interactive {
				return usageError{fmt.Errorf("pass -q <sql> or --interactive")}
			}

			engine, err := query.Open(cachePath, logger)
			if err != nil {
				return err
			}
			defer engine.Close()

			if sqlText != "" {
				result, err := engine.Query(cmd.Context(), sqlText)
				if err != nil {
					return err
				}
				if err := query.Render(os.Stdout, result, format); err != nil {
					return usageError{err}
				}
			}

			if interactive {
				return runREPL(cmd, engine, format)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&sqlText, "query", "q", "", "SQL statement to run")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "interactive SQL mode")
	cmd.Flags().StringVar(&format, "format", query.FormatTable, "output format: table, json, or csv")
	return cmd
}

func runREPL(cmd *cobra.Command, engine *query.Engine, format string) error {
	fmt.Println("Interactive SQL over the Parquet cache. Meta-commands: tables, schema <view>, exit.")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("slack-intel> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case line == "exit" || line == "quit":
			return nil
		case line == "tables":
			names, err := engine.Tables(cmd.Context())
			if err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			for _, name := range names {
				fmt.Println("  " + name)
			}
		case strings.HasPrefix(line, "schema "):
			result, err := engine.Schema(cmd.Context(), strings.TrimSpace(strings.TrimPrefix(line, "schema ")))
			if err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			_ = query.Render(os.Stdout, result, query.FormatTable)
		default:
			result, err := engine.Query(cmd.Context(), line)
			if err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			if err := query.Render(os.Stdout, result, format); err != nil {
				fmt.Printf("error: %v\n", err)
			}
		}
	}
}
