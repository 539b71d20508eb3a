package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/rennerdo30/remipn/internal/connection"
)

var styles = struct {
	name, ok, warn, bad, dim lipgloss.Style
}{
	name: lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true),
	ok:   lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
	warn: lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
	bad:  lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
	dim:  lipgloss.NewStyle().Faint(true),
}

func statusText(s connection.Status) string {
	switch s.State {
	case connection.StateConnected:
		return styles.ok.Render(s.String())
	case connection.StateError:
		return styles.bad.Render(s.String())
	case connection.StateDisconnected, "":
		return styles.dim.Render(s.String())
	default:
		return styles.warn.Render(s.String())
	}
}

// progress prints orchestrator events for the one-shot commands.
type progress struct {
	out io.Writer
	// dots is set while a stability line is being written.
	dots bool
}

func newProgress(out io.Writer) *progress {
	return &progress{out: out}
}

func (p *progress) OnEvent(e connection.Event) {
	switch e.Type {
	case connection.EventAttempt:
		verb := "Connecting to"
		if e.Op == connection.OpDisconnect {
			verb = "Disconnecting from"
		}
		fmt.Fprintf(p.out, "%s %s... (attempt %d/%d)\n", verb, styles.name.Render(e.Profile), e.Attempt, e.MaxAttempts)
	case connection.EventConflict:
		fmt.Fprintf(p.out, "Closing previous VPN: %s...\n", styles.warn.Render(e.Other))
	case connection.EventIntruder:
		p.endDots()
		fmt.Fprintf(p.out, "Closing unexpected VPN: %s...\n", styles.warn.Render(e.Other))
	case connection.EventStabilizing:
		if !p.dots {
			fmt.Fprint(p.out, "Verifying connection stability")
			p.dots = true
		}
		fmt.Fprint(p.out, ".")
		if e.Sample >= e.Samples {
			p.endDots()
		}
	case connection.EventRetry:
		p.endDots()
		if e.Err != nil {
			fmt.Fprintf(p.out, "%s %v\n", styles.bad.Render("Attempt failed:"), e.Err)
		}
	case connection.EventSucceeded:
		p.endDots()
		if e.Op == connection.OpConnect {
			fmt.Fprintf(p.out, "%s Successfully connected to %s\n", styles.ok.Render("✓"), styles.ok.Render(e.Profile))
		} else {
			fmt.Fprintf(p.out, "Disconnected from %s\n", e.Profile)
		}
	case connection.EventFailed:
		p.endDots()
	}
}

func (p *progress) endDots() {
	if p.dots {
		fmt.Fprintln(p.out)
		p.dots = false
	}
}
