package handlers

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/imamik/hdistcc/internal/fleet"
)

var (
	colorGreen  = lipgloss.Color("#22c55e")
	colorRed    = lipgloss.Color("#ef4444")
	colorYellow = lipgloss.Color("#eab308")
	colorBlue   = lipgloss.Color("#3b82f6")
	colorDim    = lipgloss.Color("#6b7280")

	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(colorBlue)
	readyStyle   = lipgloss.NewStyle().Foreground(colorGreen)
	failedStyle  = lipgloss.NewStyle().Foreground(colorRed)
	warningStyle = lipgloss.NewStyle().Foreground(colorYellow)
	dimStyle     = lipgloss.NewStyle().Foreground(colorDim)
)

const (
	checkMark = "[OK]"
	crossMark = "[!!]"
	warnMark  = "[??]"
	pending   = "[  ]"
)

// useColor reports whether stdout is a terminal.
var useColor = func() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

type painter bool

func (p painter) paint(style lipgloss.Style, s string) string {
	if !p {
		return s
	}
	return style.Render(s)
}

// renderResult writes one line per node, the build hosts for make, and
// then "Complete" or an itemised failure summary.
func renderResult(w io.Writer, r *fleet.Result, color bool) {
	p := painter(color)
	var b strings.Builder

	if len(r.Nodes) > 0 {
		b.WriteString(p.paint(sectionStyle, "Nodes"))
		b.WriteString("\n")
		width := 0
		for _, n := range r.Nodes {
			width = max(width, len(n.Name))
		}
		for _, n := range r.Nodes {
			mark, style := nodeMark(n)
			line := fmt.Sprintf("  %s %-*s  %-11s", mark, width, n.Name, n.State)
			if n.BackendStatus != "" {
				line += "  " + p.paint(dimStyle, n.BackendStatus)
			}
			b.WriteString(p.paint(style, line))
			b.WriteString("\n")
		}
	}

	if len(r.Hosts) > 0 {
		b.WriteString(p.paint(sectionStyle, "Build hosts"))
		b.WriteString("\n")
		for _, h := range r.Hosts {
			fmt.Fprintf(&b, "  %s\n", h)
		}
		b.WriteString(p.paint(dimStyle, fmt.Sprintf("  parallelism -j%d", r.Parallelism)))
		b.WriteString("\n")
	}

	failed := r.Failed()
	warnings := r.Warnings()
	switch {
	case len(failed) > 0:
		b.WriteString(p.paint(failedStyle, fmt.Sprintf("%d of %d nodes failed:", len(failed), len(r.Nodes))))
		b.WriteString("\n")
		for _, n := range failed {
			fmt.Fprintf(&b, "  - %s: %s\n", n.Name, n.Error())
		}
	case !r.Success && r.Message != "":
		b.WriteString(p.paint(failedStyle, r.Message))
		b.WriteString("\n")
	default:
		if len(r.Nodes) == 0 && r.Message != "" {
			b.WriteString(r.Message)
			b.WriteString("\n")
		}
		for _, n := range warnings {
			b.WriteString(p.paint(warningStyle, fmt.Sprintf("WARNING: %s did not complete setup in a reasonable time.", n.Name)))
			b.WriteString("\n")
		}
		if r.Success {
			b.WriteString(p.paint(readyStyle, "Complete"))
			b.WriteString("\n")
		}
	}

	_, _ = io.WriteString(w, b.String())
}

func nodeMark(n fleet.NodeResult) (string, lipgloss.Style) {
	switch {
	case n.Err != nil && fleet.IsWarning(n.Err):
		return warnMark, warningStyle
	case n.Err != nil || n.State == fleet.StateFailed:
		return crossMark, failedStyle
	case n.State == fleet.StateReady || n.State == fleet.StateGone:
		return checkMark, readyStyle
	default:
		return pending, dimStyle
	}
}

// jsonNode is a NodeResult with its error as text.
type jsonNode struct {
	fleet.NodeResult
	Error   string `json:"error,omitempty"`
	Warning bool   `json:"warning,omitempty"`
}

// jsonResult is the --json form of a fleet.Result.
type jsonResult struct {
	*fleet.Result
	Nodes []jsonNode `json:"nodes"`
}

func toJSON(r *fleet.Result) jsonResult {
	out := jsonResult{Result: r, Nodes: make([]jsonNode, len(r.Nodes))}
	for i, n := range r.Nodes {
		out.Nodes[i] = jsonNode{NodeResult: n, Error: n.Error(), Warning: n.Err != nil && fleet.IsWarning(n.Err)}
	}
	return out
}
