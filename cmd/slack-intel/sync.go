package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zeebeeCoder/slack-intel/internal/config"
	"github.com/zeebeeCoder/slack-intel/pkg/storage"
)

func newSyncCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Mirror the local cache to the configured S3 bucket",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.Storage.Bucket == "" {
				return usageError{fmt.Errorf("no storage.bucket configured in %s", config.FileName)}
			}

			store, err := storage.NewS3Store(cmd.Context(), storage.S3Options{
				Bucket:  cfg.Storage.Bucket,
				Prefix:  cfg.Storage.Prefix,
				Region:  cfg.Storage.Region,
				Profile: cfg.Storage.Profile,
			})
			if err != nil {
				return err
			}

			syncer := storage.NewSyncer(store, cachePath, logger)
			syncer.DryRun = dryRun

			result, err := syncer.Sync(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Sync to s3://%s/%s: %s\n", cfg.Storage.Bucket, cfg.Storage.Prefix, result.Summary())
			if !result.Success() {
				return fmt.Errorf("%d uploads failed", result.Failed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would upload without uploading")
	return cmd
}
