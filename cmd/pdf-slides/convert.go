package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/spherical/pdf-slides/internal/domain"
	"github.com/spherical/pdf-slides/internal/pdf"
	"github.com/spherical/pdf-slides/internal/pipeline"
)

func newConvertCmd() *cobra.Command {
	var (
		output      string
		mode        string
		lang        string
		pages       string
		title       string
		pageNumbers bool
	)

	cmd := &cobra.Command{
		Use:   "convert <file>",
		Short: "Convert a PDF or image into an editable .pptx",
		Example: `  pdf-slides convert brochure.pdf
  pdf-slides convert --mode ai-overlay --pages 1-3,5 brochure.pdf
  pdf-slides convert --mode ocr --lang eng -o scan.pptx scan.png`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := args[0]
			v := pdf.NewValidator(logger)
			if err := v.ValidatePath(input); err != nil {
				return err
			}
			pageCount, err := v.PageCount(input)
			if err != nil {
				return err
			}

			m, err := domain.ParseMode(mode)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("page-numbers") {
				cfg.Layout.PageNumbers = pageNumbers
			}
			if output == "" {
				output = filepath.Join(filepath.Dir(input), pipeline.OutputName(input))
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ui := NewUI(noColor)
			defer ui.Close()

			a, err := newApp(ui.DownloadProgress())
			if err != nil {
				return err
			}
			defer a.Close()

			ui.Step("Converting %s (%d pages, %s mode)", filepath.Base(input), pageCount, m)
			deck, err := runConversion(ctx, ui, a.service, pipeline.Request{
				Path:  input,
				Mode:  m,
				Pages: pages,
				Lang:  lang,
				Title: title,
			})
			if err != nil {
				ui.Error("Conversion failed: %v", err)
				return reportedError{err}
			}

			if err := os.WriteFile(output, deck.Data, 0o644); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			ui.Success("Wrote %d slides to %s (%s)", deck.Slides, output, FormatBytes(int64(len(deck.Data))))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output path (default: <input>_editable.pptx next to the input)")
	cmd.Flags().StringVarP(&mode, "mode", "m", string(pipeline.DefaultMode), "native, ocr, image, overlay or ai-overlay")
	cmd.Flags().StringVarP(&lang, "lang", "l", "", "OCR languages, e.g. chi_tra+eng (default from config)")
	cmd.Flags().StringVarP(&pages, "pages", "p", "", "page selection, e.g. 1-3,5 (default: all)")
	cmd.Flags().StringVar(&title, "title", "", "deck title (default: input file name)")
	cmd.Flags().BoolVar(&pageNumbers, "page-numbers", false, "add a page number to each slide")

	return cmd
}

// runConversion drains the event stream into the terminal UI.
func runConversion(ctx context.Context, ui *UI, svc *pipeline.Service, req pipeline.Request) (*domain.Deck, error) {
	start := time.Now()

	var (
		bar  *progressbar.ProgressBar
		spin *spinner.Spinner
		deck *domain.Deck
	)
	stopSpin := func() {
		if spin != nil {
			spin.Stop()
			spin = nil
		}
	}
	defer stopSpin()

	for ev, err := range svc.Process(ctx, req) {
		if err != nil {
			stopSpin()
			if bar != nil {
				_ = bar.Exit()
			}
			return nil, err
		}

		switch ev.Type {
		case domain.EventStart:
			logger.Debug().Msgf("%v", ev.Payload)

		case domain.EventPhase:
			stopSpin()
			switch ev.Payload {
			case domain.PhaseModel:
				spin = ui.Spinner("Loading text removal model")
				spin.Start()
			case domain.PhaseOCRInit:
				spin = ui.Spinner("Starting OCR engine")
				spin.Start()
			case domain.PhasePages:
				bar = ui.PageBar(ev.Total)
			case domain.PhaseSerialize:
				spin = ui.Spinner("Writing deck")
				spin.Start()
			}

		case domain.EventPageProcessing:
			if bar != nil {
				bar.Describe(fmt.Sprintf("Page %d", ev.PageNumber))
			}

		case domain.EventPageComplete:
			if bar != nil {
				_ = bar.Set(ev.Current)
			}
			if stats, ok := ev.Payload.(domain.PageStats); ok {
				logger.Debug().
					Int("page", ev.PageNumber).
					Int("lines", stats.Lines).
					Str("source", string(stats.Source)).
					Int("tiles_inpainted", stats.TilesInpainted).
					Msg("page done")
			}

		case domain.EventWarning:
			stopSpin()
			if bar != nil {
				_ = bar.Clear()
			}
			ui.Warning("%v", ev.Payload)

		case domain.EventComplete:
			stopSpin()
			deck, _ = ev.Payload.(*domain.Deck)
		}
	}

	if deck == nil {
		return nil, fmt.Errorf("conversion ended without a deck")
	}
	ui.Info("Finished in %s", FormatDuration(time.Since(start)))
	return deck, nil
}
