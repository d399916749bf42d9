package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

func newModelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Manage the text removal model",
	}
	cmd.AddCommand(newModelFetchCmd(), newModelClearCmd())
	return cmd
}

func newModelFetchCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download the inpainting model into the model store",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			if cfg.Inpaint.DownloadTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, cfg.Inpaint.DownloadTimeout)
				defer cancel()
			}

			ui := NewUI(noColor)
			fetcher, store, err := newFetcher(ui.DownloadProgress())
			if err != nil {
				ui.Close()
				return err
			}
			defer store.Close()

			if force {
				if err := fetcher.Clear(ctx); err != nil {
					ui.Close()
					return err
				}
			}

			data, err := fetcher.Load(ctx)
			ui.Close()
			if err != nil {
				ui.Error("Model download failed: %v", err)
				return reportedError{err}
			}
			ui.Success("Model ready (%s) in %s store at %s", FormatBytes(int64(len(data))), cfg.Inpaint.Store.Driver, cfg.Inpaint.Store.Dir)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "download again even if the model is stored")
	return cmd
}

func newModelClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove the stored inpainting model",
		RunE: func(cmd *cobra.Command, args []string) error {
			ui := NewUI(noColor)
			defer ui.Close()

			fetcher, store, err := newFetcher(nil)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := fetcher.Clear(cmd.Context()); err != nil {
				return err
			}
			ui.Success("Stored model removed")
			return nil
		},
	}
}
