package main

import (
	"github.com/spf13/cobra"

	"github.com/spherical/pdf-slides/internal/cache"
	"github.com/spherical/pdf-slides/internal/ocr"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the OCR result cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove cached OCR results",
		RunE: func(cmd *cobra.Command, args []string) error {
			ui := NewUI(noColor)
			defer ui.Close()

			c, err := cache.New(cfg.Cache)
			if err != nil {
				return err
			}
			if c == nil {
				ui.Info("OCR cache is disabled")
				return nil
			}
			defer c.Close()

			if err := ocr.PurgeCache(cmd.Context(), c); err != nil {
				return err
			}
			ui.Success("Cleared cached OCR results from the %s cache", cfg.Cache.Driver)
			return nil
		},
	})
	return cmd
}
