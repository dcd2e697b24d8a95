// Package ui renders jitgen derive progress in the terminal.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"jitkit/internal/gen"
)

const labelWidth = 12

// stages maps each stage to the label shown while it runs and the share
// of the package's work done once it starts.
var stages = map[gen.Stage]struct {
	working string
	share   float64
}{
	gen.StageLoad:    {"loading", 0.1},
	gen.StageAnalyze: {"analyzing", 0.5},
	gen.StageEmit:    {"emitting", 0.8},
	gen.StageWrite:   {"writing", 0.95},
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	busyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	idleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	noteStyle   = lipgloss.NewStyle().Faint(true)
)

type pkgItem struct {
	path   string
	status string
	stage  gen.Stage
	final  bool
	err    string
}

type progressModel struct {
	title   string
	events  <-chan gen.Event
	spin    spinner.Model
	bar     progress.Model
	items   []pkgItem
	byPath  map[string]int
	width   int
	closed  bool
	written int
	cached  int
	failed  int
}

type (
	eventMsg  gen.Event
	closedMsg struct{}
)

// NewProgressModel returns a Bubble Tea model that lists packages as gen
// reports them on events and quits once events is closed.
func NewProgressModel(title string, events <-chan gen.Event) tea.Model {
	spin := spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(busyStyle))
	bar := progress.New(progress.WithDefaultGradient(), progress.WithWidth(76))
	return &progressModel{
		title:  title,
		events: events,
		spin:   spin,
		bar:    bar,
		byPath: make(map[string]int),
		width:  80,
	}
}

func (m *progressModel) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.next)
}

// next blocks for the next event.
func (m *progressModel) next() tea.Msg {
	if ev, ok := <-m.events; ok {
		return eventMsg(ev)
	}
	return closedMsg{}
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case eventMsg:
		cmd = tea.Batch(m.applyEvent(gen.Event(msg)), m.next)
	case closedMsg:
		m.closed = true
		cmd = tea.Quit
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			cmd = tea.Quit
		}
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
			m.bar.Width = msg.Width - 4
		}
	case spinner.TickMsg:
		if !m.closed {
			m.spin, cmd = m.spin.Update(msg)
		}
	case progress.FrameMsg:
		var bar tea.Model
		bar, cmd = m.bar.Update(msg)
		m.bar = bar.(progress.Model)
	}
	return m, cmd
}

func (m *progressModel) View() string {
	var sb strings.Builder
	if m.closed {
		sb.WriteString(headerStyle.Render("done: " + m.title))
	} else {
		sb.WriteString(headerStyle.Render(m.spin.View() + " " + m.title))
	}
	sb.WriteString("\n\n")

	nameWidth := max(m.width-labelWidth-4, 20)
	for _, it := range m.items {
		label := statusStyle(it.status).Render(fmt.Sprintf("%*s", labelWidth, it.status))
		fmt.Fprintf(&sb, "  %s %s\n", label, truncate(it.path, nameWidth))
		if it.err != "" {
			fmt.Fprintf(&sb, "  %*s %s\n", labelWidth, "", noteStyle.Render(truncate(it.err, nameWidth)))
		}
	}

	sb.WriteString("\n")
	if m.closed {
		sb.WriteString(m.bar.ViewAs(1))
	} else {
		sb.WriteString(m.bar.View())
	}
	fmt.Fprintf(&sb, "\n%s\n", noteStyle.Render(m.summary()))
	return sb.String()
}

func (m *progressModel) summary() string {
	return fmt.Sprintf("%d packages, %d written, %d cached, %d failed", len(m.items), m.written, m.cached, m.failed)
}

func (m *progressModel) applyEvent(ev gen.Event) tea.Cmd {
	if ev.Package == "" {
		return nil
	}
	i, ok := m.byPath[ev.Package]
	if !ok {
		i = len(m.items)
		m.byPath[ev.Package] = i
		m.items = append(m.items, pkgItem{path: ev.Package})
	}
	it := &m.items[i]
	if label := statusLabel(ev.Stage, ev.Status); label != "" {
		it.status, it.stage = label, ev.Stage
	}

	switch ev.Status {
	case gen.StatusError:
		it.final = true
		m.failed++
		if ev.Err != nil {
			it.err, _, _ = strings.Cut(ev.Err.Error(), "\n")
		}
	case gen.StatusCached:
		it.final = true
		m.cached++
	case gen.StatusSkipped:
		it.final = true
	case gen.StatusDone:
		if ev.Stage == gen.StageWrite {
			it.final = true
			m.written++
		}
	}
	return m.bar.SetPercent(m.percent())
}

// percent averages the progress of every package seen so far.
func (m *progressModel) percent() float64 {
	if len(m.items) == 0 {
		return 0
	}
	var sum float64
	for _, it := range m.items {
		if it.final {
			sum++
		} else {
			sum += stages[it.stage].share
		}
	}
	return sum / float64(len(m.items))
}

func statusLabel(stage gen.Stage, status gen.Status) string {
	switch status {
	case gen.StatusQueued, gen.StatusCached:
		return string(status)
	case gen.StatusError:
		return "failed"
	case gen.StatusWorking:
		return stages[stage].working
	case gen.StatusDone:
		if stage == gen.StageWrite {
			return "written"
		}
		return "generated"
	case gen.StatusSkipped:
		if stage == gen.StageWrite {
			return "unchanged"
		}
		return "skipped"
	}
	return ""
}

func statusStyle(label string) lipgloss.Style {
	switch label {
	case "failed":
		return failStyle
	case "written", "generated", "cached", "unchanged":
		return okStyle
	}
	for _, st := range stages {
		if label == st.working {
			return busyStyle
		}
	}
	return idleStyle
}

// truncate shortens s to width columns, ending in "..." when there is
// room for it.
func truncate(s string, width int) string {
	if width <= 0 || runewidth.StringWidth(s) <= width {
		return s
	}
	tail := "..."
	if width <= len(tail) {
		tail = ""
	}
	return runewidth.Truncate(s, width, tail)
}
