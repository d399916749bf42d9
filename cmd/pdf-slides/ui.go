package main

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/spherical/pdf-slides/internal/inpaint"
)

// UI provides user-friendly terminal output. Everything goes to stderr so
// stdout stays free for piping.
type UI struct {
	out     io.Writer
	noColor bool

	mu       sync.Mutex
	progress *mpb.Progress
	bars     map[string]*mpb.Bar
}

// NewUI creates a new UI instance.
func NewUI(noColor bool) *UI {
	if noColor || !IsTerminal() {
		color.NoColor = true
	}
	return &UI{out: os.Stderr, noColor: noColor, bars: map[string]*mpb.Bar{}}
}

// Close stops any download bars and waits for them to render.
func (ui *UI) Close() {
	ui.mu.Lock()
	p := ui.progress
	ui.progress = nil
	for _, bar := range ui.bars {
		// Failed or unsized downloads never reach their total.
		if !bar.Completed() {
			bar.Abort(false)
		}
	}
	ui.bars = map[string]*mpb.Bar{}
	ui.mu.Unlock()
	if p == nil {
		return
	}
	if IsTerminal() {
		p.Wait()
	} else {
		p.Shutdown()
	}
}

func (ui *UI) print(c color.Attribute, symbol, format string, args ...interface{}) {
	color.New(c).Fprintf(ui.out, "%s %s\n", symbol, fmt.Sprintf(format, args...))
}

// Success prints a success message.
func (ui *UI) Success(format string, args ...interface{}) {
	ui.print(color.FgGreen, "✓", format, args...)
}

// Error prints an error message.
func (ui *UI) Error(format string, args ...interface{}) {
	ui.print(color.FgRed, "✗", format, args...)
}

// Warning prints a warning message.
func (ui *UI) Warning(format string, args ...interface{}) {
	ui.print(color.FgYellow, "⚠", format, args...)
}

// Info prints an info message.
func (ui *UI) Info(format string, args ...interface{}) {
	ui.print(color.FgCyan, "ℹ", format, args...)
}

// Step prints a step message.
func (ui *UI) Step(format string, args ...interface{}) {
	ui.print(color.FgBlue, "→", format, args...)
}

// PageBar creates the per-page progress bar.
func (ui *UI) PageBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(
		total,
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("Pages"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionSetWriter(ui.out),
		progressbar.OptionShowCount(),
		progressbar.OptionEnableColorCodes(!ui.noColor),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(ui.out, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// Spinner creates a spinner for indeterminate phases.
func (ui *UI) Spinner(message string) *spinner.Spinner {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + message
	s.Writer = ui.out
	return s
}

// DownloadProgress returns a byte counter for model downloads, one bar per
// source.
func (ui *UI) DownloadProgress() inpaint.ProgressFunc {
	return func(source string, read, total int64) {
		ui.mu.Lock()
		defer ui.mu.Unlock()

		if ui.progress == nil {
			ui.progress = mpb.New(mpb.WithWidth(64), mpb.WithOutput(ui.out))
		}
		bar, ok := ui.bars[source]
		if !ok {
			name := "Model (" + source + ")"
			bar = ui.progress.AddBar(total,
				mpb.PrependDecorators(
					decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DSyncSpaceR}),
					decor.CountersKibiByte("% .1f / % .1f"),
				),
				mpb.AppendDecorators(
					decor.Percentage(decor.WC{W: 5}),
					decor.OnComplete(
						decor.AverageETA(decor.ET_STYLE_GO, decor.WC{W: 8}),
						" done",
					),
				),
			)
			ui.bars[source] = bar
		}
		if total > 0 {
			bar.SetTotal(total, read >= total)
		}
		bar.SetCurrent(read)
	}
}

// FormatDuration formats a duration in a human-readable way.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}

// FormatBytes formats bytes in a human-readable way.
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// IsTerminal checks if stderr is a terminal.
func IsTerminal() bool {
	fileInfo, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}
