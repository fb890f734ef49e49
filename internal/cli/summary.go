package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dl-alexandre/icdl/internal/config"
	"github.com/dl-alexandre/icdl/internal/types"
	"github.com/dustin/go-humanize"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#4ECDC4"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#95E1A3"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFE66D"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6C757D"))
)

// renderSummary formats the end-of-run report. With color off the styles
// are bypassed so the text is stable for logs and tests.
func renderSummary(s types.RunSummary, color bool) string {
	paint := func(style lipgloss.Style, text string) string {
		if !color {
			return text
		}
		return style.Render(text)
	}

	title := "Download complete"
	switch {
	case s.Interrupted:
		title = "Download interrupted"
	case !s.OK():
		title = "Download finished with failures"
	}

	failedStyle := dimStyle
	if s.Failed > 0 {
		failedStyle = errorStyle
	}

	var b strings.Builder
	b.WriteString(paint(titleStyle, title) + "\n")
	fmt.Fprintf(&b, "  %-12s %s\n", "completed", paint(successStyle, strconv.Itoa(s.Completed)))
	fmt.Fprintf(&b, "  %-12s %s\n", "resumed", paint(successStyle, strconv.Itoa(s.Resumed)))
	fmt.Fprintf(&b, "  %-12s %s\n", "skipped", paint(dimStyle, strconv.Itoa(s.Skipped)))
	fmt.Fprintf(&b, "  %-12s %s\n", "failed", paint(failedStyle, strconv.Itoa(s.Failed)))
	fmt.Fprintf(&b, "  %-12s %s in %s\n", "transferred",
		humanize.IBytes(uint64(s.BytesTransferred)), s.Duration.Round(time.Millisecond))
	if s.Interrupted {
		b.WriteString("  " + paint(warningStyle, "re-run the same command to resume") + "\n")
	}
	if s.RunID != "" {
		fmt.Fprintf(&b, "  %-12s %s\n", "run", paint(dimStyle, s.RunID))
	}
	return b.String()
}

// failureTable lists the failures of a run
type failureTable []types.Failure

func (t failureTable) Headers() []string {
	return []string{"Path", "Code", "Error"}
}

func (t failureTable) Rows() [][]string {
	rows := make([][]string, len(t))
	for i, f := range t {
		rows[i] = []string{config.Truncate(f.Path, 60), f.Code, config.Truncate(f.Error, 80)}
	}
	return rows
}

func (t failureTable) EmptyMessage() string {
	return "No failures"
}

var _ types.TableRenderer = failureTable(nil)
