// Mount Console
// Terminal client for a running mount-modeler: live mount status, the
// alignment stars, modeling progress and model commands.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/unklstewy/mount-modeler/pkg/alignment"
	"github.com/unklstewy/mount-modeler/pkg/messages"
	"github.com/unklstewy/mount-modeler/pkg/modeling"
	"github.com/unklstewy/mount-modeler/pkg/mount"
)

var serverURL = flag.String("server", "http://localhost:8080", "mount-modeler server address")

const (
	modelRefresh = 30 * time.Second
	logLines     = 6
	infoWidth    = 44
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
)

type (
	tickMsg    time.Time
	errMsg     struct{ err error }
	commandMsg struct {
		verb  string
		reply string
		err   error
	}
)

type model struct {
	api *apiClient

	width, height int

	streaming bool
	snap      mount.Snapshot
	align     alignment.Model
	progress  modeling.Progress
	log       []messages.Message
	selected  int
	status    string
	err       error
}

func newModel(api *apiClient) model {
	return model{api: api, width: 120, height: 40, selected: -1}
}

func tick() tea.Cmd {
	return tea.Tick(modelRefresh, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) fetchModel() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		a, err := m.api.model(ctx)
		if err != nil {
			return errMsg{err}
		}
		return modelMsg(a)
	}
}

func (m model) command(verb string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		reply, err := m.api.command(ctx, verb)
		return commandMsg{verb: verb, reply: reply, err: err}
	}
}

func (m model) cancelRun() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := m.api.cancelRun(ctx)
		return commandMsg{verb: "cancel run", err: err}
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.fetchModel(), tick())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height

	case tea.KeyMsg:
		if m.err != nil {
			m.err = nil
		}
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "up", "k":
			if m.selected > 0 {
				m.selected--
			} else if len(m.align.Points) > 0 {
				m.selected = len(m.align.Points) - 1
			}
		case "down", "j":
			if m.selected < len(m.align.Points)-1 {
				m.selected++
			} else {
				m.selected = 0
			}
		case "esc":
			m.selected = -1
		case "r":
			m.status = "refreshing model..."
			return m, m.command(mount.ShowAlignmentModel.String())
		case "w":
			m.status = "deleting worst point..."
			return m, m.command(mount.DeleteWorstPoint.String())
		case "x":
			m.status = "cancelling run..."
			return m, m.cancelRun()
		}

	case tickMsg:
		return m, tea.Batch(m.fetchModel(), tick())

	case streamMsg:
		m.streaming = msg.connected
		if msg.err != nil && !msg.connected {
			m.snap.Connected = false
		}

	case snapshotMsg:
		m.snap = mount.Snapshot(msg)

	case progressMsg:
		prev := m.progress.Phase
		m.progress = modeling.Progress(msg)
		if prev != "idle" && m.progress.Phase == "idle" {
			return m, m.fetchModel()
		}

	case logMsg:
		m.log = append(m.log, messages.Message(msg))
		if len(m.log) > logLines {
			m.log = m.log[len(m.log)-logLines:]
		}

	case modelMsg:
		m.align = alignment.Model(msg)
		if m.selected >= len(m.align.Points) {
			m.selected = len(m.align.Points) - 1
		}

	case commandMsg:
		if msg.err != nil {
			m.err = msg.err
			m.status = ""
			return m, nil
		}
		m.status = fmt.Sprintf("%s: ok %s", msg.verb, msg.reply)
		return m, m.fetchModel()

	case errMsg:
		m.err = msg.err
	}
	return m, nil
}

// tableRows is the number of star rows that fit beside the info panel.
func (m model) tableRows() int {
	rows := m.height - logLines - 8
	if rows < 8 {
		rows = 8
	}
	return rows
}

func (m model) View() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("MOUNT MODELER CONSOLE"))
	s.WriteString("\n\n")

	info := lipgloss.NewStyle().Width(infoWidth).Render(m.renderInfo())
	stars := lipgloss.NewStyle().PaddingLeft(2).Render(renderStars(m.align.Points, m.selected, m.tableRows()))
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, info, stars))
	s.WriteString("\n")

	for _, msg := range m.log {
		s.WriteString(fmt.Sprintf("%s %-8s %s\n", msg.Time.Local().Format("15:04:05"), msg.Kind, msg.Text))
	}

	if m.err != nil {
		s.WriteString(errorStyle.Render("Error: " + m.err.Error()))
	} else if m.status != "" {
		s.WriteString(helpStyle.Render(m.status))
	}
	s.WriteString("\n")
	s.WriteString(helpStyle.Render("↑/↓: Select star  ESC: Clear  R: Refresh model  W: Delete worst  X: Cancel run  Q: Quit"))
	return s.String()
}

func (m model) renderInfo() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render("MOUNT"))
	b.WriteString("\n")
	switch {
	case !m.streaming:
		b.WriteString(errorStyle.Render("server stream disconnected"))
		b.WriteString("\n")
	case !m.snap.Connected:
		b.WriteString(errorStyle.Render("mount not connected"))
		b.WriteString("\n")
	default:
		b.WriteString(okStyle.Render(fmt.Sprintf("%s %s", m.snap.ProductName, m.snap.FirmwareNumber)))
		b.WriteString("\n")
		if m.snap.Simulation {
			b.WriteString(errorStyle.Render("simulation"))
			b.WriteString("\n")
		}
	}
	b.WriteString(fmt.Sprintf("Az/Alt:   %7.2f° %6.2f°\n", m.snap.Azimuth, m.snap.Altitude))
	b.WriteString(fmt.Sprintf("RA/Dec:   %7.4fh %+7.3f°\n", m.snap.RAJNow, m.snap.DecJNow))
	b.WriteString(fmt.Sprintf("Pier:     %s\n", m.snap.Pierside))
	b.WriteString(fmt.Sprintf("State:    %s\n", m.snap.TrackingState))
	if m.snap.Slewing {
		b.WriteString("Slewing\n")
	}
	b.WriteString(fmt.Sprintf("Flip in:  %.0f min\n", m.snap.TimeToFlip))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("MODEL"))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("Stars:    %d\n", m.align.NumberStars))
	b.WriteString(fmt.Sprintf("RMS:      %.2f\"\n", m.align.RMS))
	b.WriteString(fmt.Sprintf("Polar:    %.1f\"  Ortho: %.1f\"\n", m.align.PolarError, m.align.OrthoError))
	b.WriteString(fmt.Sprintf("Terms:    %d\n", m.align.Terms))
	if m.selected >= 0 && m.selected < len(m.align.Points) {
		p := m.align.Points[m.selected]
		b.WriteString(fmt.Sprintf("Star %d:  az %.1f° alt %.1f° err %.1f\"\n", p.Index, p.Azimuth, p.Altitude, p.ErrorRMS))
	}
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("RUN"))
	b.WriteString("\n")
	if m.progress.RunID == "" {
		b.WriteString("no run\n")
		return b.String()
	}
	b.WriteString(fmt.Sprintf("%s %s\n", m.progress.Mode, m.progress.Phase))
	b.WriteString(fmt.Sprintf("Point:    %d/%d\n", m.progress.Index+1, m.progress.Total))
	b.WriteString(fmt.Sprintf("Solved:   %d  Processed: %d\n", m.progress.Solved, m.progress.Processed))
	b.WriteString(fmt.Sprintf("Elapsed:  %s\n", m.progress.Elapsed.Round(time.Second)))
	return b.String()
}

func main() {
	flag.Parse()

	api := newAPIClient(*serverURL)
	p := tea.NewProgram(newModel(api), tea.WithAltScreen())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go api.stream(ctx, p.Send)

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
