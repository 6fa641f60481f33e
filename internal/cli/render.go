package cli

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"signcoach/internal/domain"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)
	stateStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	okStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// consoleSink renders session events as styled lines.
type consoleSink struct {
	mu      sync.Mutex
	out     io.Writer
	verbose bool
}

func newConsoleSink(out io.Writer, verbose bool) *consoleSink {
	return &consoleSink{out: out, verbose: verbose}
}

func (c *consoleSink) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *consoleSink) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	c.printf("%s %s\n", stateStyle.Render(string(state)), dimStyle.Render("("+string(reason)+")"))
}

func (c *consoleSink) PredictionReceived(prediction domain.Prediction) {
	if !c.verbose {
		return
	}
	c.printf("  %s %s\n", prediction.Label, dimStyle.Render(fmt.Sprintf("%.2f", prediction.Score)))
}

func (c *consoleSink) SessionMatched(result domain.MatchResult) {
	c.printf("%s %q recognized %s\n",
		okStyle.Render("MATCH"),
		result.TargetLabel,
		dimStyle.Render(fmt.Sprintf("(%s, score %.2f)", result.Prediction.Label, result.Prediction.Score)),
	)
}

func (c *consoleSink) SessionFinished(status domain.Status) {
	c.printf("%s %s\n", dimStyle.Render("finished"), dimStyle.Render(fmt.Sprintf(
		"predictions=%d frames_sent=%d frames_skipped=%d", status.Predictions, status.FramesSent, status.FramesSkipped,
	)))
}

func (c *consoleSink) SessionError(code domain.ErrorCode, detail string) {
	style := warnStyle
	if code == domain.ErrorCodeStartup {
		style = errStyle
	}
	c.printf("%s %s\n", style.Render(string(code)), detail)
}

func renderEndpoint(category domain.Category, endpoint string, ok bool) string {
	if !ok {
		return fmt.Sprintf("%-9s %s", category, warnStyle.Render("recognition disabled"))
	}
	return fmt.Sprintf("%-9s %s", category, okStyle.Render(endpoint))
}
