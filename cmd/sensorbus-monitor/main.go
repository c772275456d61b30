// Command sensorbus-monitor is an interactive terminal dashboard for a
// running sensorbusd, polling its HTTP API and rendering live streaming
// descriptors plus host CPU/memory. Grounded on guiperry-HASHER's
// internal/cli/ui/ui.go: a bubbletea Model with a bubbles/viewport log
// pane, lipgloss styling, gopsutil host stats, and a clipboard-copy
// keybinding.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	psutilcpu "github.com/shirou/gopsutil/v3/cpu"
	psutilmem "github.com/shirou/gopsutil/v3/mem"
)

var apiAddr = flag.String("api-addr", "http://localhost:8080", "sensorbusd HTTP API base address")

type sensorRow struct {
	RuntimeID  int  `json:"runtime_id"`
	TypeID     int  `json:"type_id"`
	Streaming  bool `json:"streaming"`
	State      int  `json:"state"`
	Seq        int  `json:"seq"`
	PeriodMs   int  `json:"period_ms"`
	LastEmitMs int  `json:"last_emit_ms"`
}

type sensorsResponse struct {
	Sensors []sensorRow `json:"sensors"`
}

type tickMsg time.Time

type pollResultMsg struct {
	rows []sensorRow
	err  error
}

type model struct {
	vp       viewport.Model
	rows     []sensorRow
	lastErr  error
	cpuPct   float64
	memUsed  float64
	width    int
	height   int
	statusMu string
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

func initialModel() model {
	vp := viewport.New(80, 20)
	return model{vp: vp}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(pollCmd(), hostStatsCmd(), tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func pollCmd() tea.Cmd {
	return func() tea.Msg {
		resp, err := http.Get(strings.TrimRight(*apiAddr, "/") + "/api/v1/sensors")
		if err != nil {
			return pollResultMsg{err: err}
		}
		defer resp.Body.Close()
		var parsed sensorsResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return pollResultMsg{err: err}
		}
		return pollResultMsg{rows: parsed.Sensors}
	}
}

type hostStatsMsg struct {
	cpuPct  float64
	memUsed float64
}

func hostStatsCmd() tea.Cmd {
	return func() tea.Msg {
		var cpuPct float64
		if percents, err := psutilcpu.Percent(0, false); err == nil && len(percents) > 0 {
			cpuPct = percents[0]
		}
		var memUsed float64
		if vm, err := psutilmem.VirtualMemory(); err == nil {
			memUsed = vm.UsedPercent
		}
		return hostStatsMsg{cpuPct: cpuPct, memUsed: memUsed}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.vp.Width = msg.Width
		m.vp.Height = msg.Height - 6
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "y":
			_ = clipboard.WriteAll(m.renderTable())
			return m, nil
		}

	case tickMsg:
		return m, tea.Batch(pollCmd(), hostStatsCmd(), tickCmd())

	case pollResultMsg:
		m.lastErr = msg.err
		if msg.err == nil {
			m.rows = msg.rows
		}
		m.vp.SetContent(m.renderTable())
		return m, nil

	case hostStatsMsg:
		m.cpuPct = msg.cpuPct
		m.memUsed = msg.memUsed
		return m, nil
	}

	var cmd tea.Cmd
	m.vp, cmd = m.vp.Update(msg)
	return m, cmd
}

func (m model) renderTable() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-4s %-4s %-10s %-6s %-6s %-10s %-10s\n",
		"ID", "TYPE", "STREAMING", "STATE", "SEQ", "PERIOD_MS", "LAST_EMIT")
	for _, r := range m.rows {
		streaming := "no"
		if r.Streaming {
			streaming = "yes"
		}
		fmt.Fprintf(&b, "%-4d %-4d %-10s %-6d %-6d %-10d %-10d\n",
			r.RuntimeID, r.TypeID, streaming, r.State, r.Seq, r.PeriodMs, r.LastEmitMs)
	}
	return b.String()
}

func (m model) View() string {
	status := okStyle.Render("connected")
	if m.lastErr != nil {
		status = errStyle.Render("error: " + m.lastErr.Error())
	}
	header := headerStyle.Render("sensorbus-monitor") + "  " + status
	stats := dimStyle.Render(fmt.Sprintf("cpu %.1f%%  mem %.1f%%  (y: copy table, q: quit)", m.cpuPct, m.memUsed))
	return header + "\n" + stats + "\n\n" + m.vp.View()
}

func main() {
	flag.Parse()
	p := tea.NewProgram(initialModel(), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Println("sensorbus-monitor:", err)
	}
}
