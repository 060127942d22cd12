// Package tui shows the progress of a running integration in the terminal.
package tui

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/becsim/internal/sim"
)

const (
	historyCapacity = 600
	barWidth        = 40
)

var (
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true).MarginBottom(1)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(12)
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	graphStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("49")).Padding(1, 0)
	doneStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).MarginTop(1)
)

type ProgressMsg sim.Progress

type DoneMsg struct {
	Result *sim.Result
	Err    error
}

// Model renders the latest sample point of an integration together with a
// sparkline of the first value of every display sampler.
type Model struct {
	title   string
	t0      float64
	tEnd    float64
	display []string
	cancel  context.CancelFunc

	last    sim.Progress
	history map[string][]float64
	samples int

	done   bool
	result *sim.Result
	err    error
}

// NewModel tracks progress from t0 to tEnd. An infinite tEnd hides the
// progress bar.
func NewModel(title string, t0, tEnd float64, display []string, cancel context.CancelFunc) Model {
	return Model{
		title:   title,
		t0:      t0,
		tEnd:    tEnd,
		display: display,
		cancel:  cancel,
		history: make(map[string][]float64, len(display)),
	}
}

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.cancel != nil {
				m.cancel()
			}
			if m.done {
				return m, tea.Quit
			}
		}
	case ProgressMsg:
		m.last = sim.Progress(msg)
		m.samples++
		for name, values := range msg.Display {
			if len(values) == 0 {
				continue
			}
			h := append(m.history[name], values[0])
			if len(h) > historyCapacity {
				h = h[len(h)-historyCapacity:]
			}
			m.history[name] = h
		}
	case DoneMsg:
		m.done = true
		m.result = msg.Result
		m.err = msg.Err
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) View() string {
	var s strings.Builder
	s.WriteString(headerStyle.Render(m.title) + "\n")

	if !math.IsInf(m.tEnd, 1) && m.tEnd > m.t0 {
		frac := math.Min(math.Max((m.last.Time-m.t0)/(m.tEnd-m.t0), 0), 1)
		filled := int(frac * barWidth)
		bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
		s.WriteString(fmt.Sprintf("%s %5.1f%%\n\n", bar, 100*frac))
	}

	s.WriteString(labelStyle.Render("time") + valueStyle.Render(fmt.Sprintf("%.6g", m.last.Time)) + "\n")
	s.WriteString(labelStyle.Render("dt") + valueStyle.Render(fmt.Sprintf("%.3g", m.last.Dt)) + "\n")
	s.WriteString(labelStyle.Render("steps") + valueStyle.Render(fmt.Sprintf("%d", m.last.Step)) + "\n")
	s.WriteString(labelStyle.Render("samples") + valueStyle.Render(fmt.Sprintf("%d", m.samples)) + "\n")

	for _, name := range m.display {
		values := m.last.Display[name]
		s.WriteString(labelStyle.Render(name) + valueStyle.Render(formatValues(values)) + "\n")
		if h := m.history[name]; len(h) > 1 {
			chart := asciigraph.Plot(h, asciigraph.Height(5), asciigraph.Width(50), asciigraph.Caption(name))
			s.WriteString(graphStyle.Render(chart) + "\n")
		}
	}

	switch {
	case m.err != nil:
		s.WriteString("\n" + errStyle.Render("failed: "+m.err.Error()) + "\n")
	case m.done && m.result != nil:
		s.WriteString("\n" + doneStyle.Render(m.result.Status.String()) + "\n")
	default:
		s.WriteString(helpStyle.Render("q cancel") + "\n")
	}
	return s.String()
}

func formatValues(v []float64) string {
	if len(v) == 0 {
		return "-"
	}
	if len(v) > 4 {
		return fmt.Sprintf("%.5g ... (%d values, max %.5g)", v[0], len(v), slices.Max(v))
	}
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = fmt.Sprintf("%.6g", x)
	}
	return strings.Join(parts, "  ")
}

// Observer forwards sample points to a running program.
type Observer struct {
	program *tea.Program
}

func (o Observer) OnSample(p sim.Progress) {
	o.program.Send(ProgressMsg(p))
}

// Run shows the live view while integrate runs in the background. Quitting
// the view cancels the context handed to integrate.
func Run(ctx context.Context, m Model, integrate func(ctx context.Context, obs sim.Observer) (*sim.Result, error)) (*sim.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	m.cancel = cancel

	p := tea.NewProgram(m)
	go func() {
		res, err := integrate(ctx, Observer{program: p})
		p.Send(DoneMsg{Result: res, Err: err})
	}()

	final, err := p.Run()
	if err != nil {
		return nil, err
	}
	fm := final.(Model)
	if !fm.done {
		return nil, ctx.Err()
	}
	return fm.result, fm.err
}
