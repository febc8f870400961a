package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/wippyai/dynbridge/registry"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	markerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	comboStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type typeInfo struct {
	name    string
	markers string
	traits  []string
	combos  []string
}

type modelState int

const (
	stateSelectType modelState = iota
	stateShowDetail
)

type exploreModel struct {
	cfg      config
	types    []typeInfo
	filtered []int
	filter   textinput.Model
	selected int
	width    int
	state    modelState
}

func newExploreModel(cfg config) *exploreModel {
	ti := textinput.New()
	ti.Placeholder = "filter"
	ti.Prompt = "/ "
	ti.Width = 30

	width := 80
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		width = w
	}

	return &exploreModel{
		cfg:    cfg,
		filter: ti,
		width:  width,
		state:  stateSelectType,
	}
}

type loadedMsg struct {
	types []typeInfo
}

func (m *exploreModel) Init() tea.Cmd {
	return m.loadRegistry
}

func (m *exploreModel) loadRegistry() tea.Msg {
	reg := registry.Default()

	var infos []typeInfo
	for _, t := range reg.Types() {
		info := typeInfo{
			name:    t.Name(),
			markers: t.Markers().String(),
		}
		for _, tr := range t.Traits() {
			info.traits = append(info.traits, tr.Name())
		}
		sort.Strings(info.traits)
		for _, e := range reg.Entries(t.GoType()) {
			info.combos = append(info.combos, e.Caps.Key())
		}
		sort.Strings(info.combos)
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].name < infos[j].name })

	return loadedMsg{types: infos}
}

func (m *exploreModel) applyFilter() {
	m.filtered = m.filtered[:0]
	needle := strings.ToLower(m.filter.Value())
	for i, t := range m.types {
		if needle == "" || strings.Contains(strings.ToLower(t.name), needle) {
			m.filtered = append(m.filtered, i)
		}
	}
	if m.selected >= len(m.filtered) {
		m.selected = 0
	}
}

func (m *exploreModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.filter.Focused() {
				break
			}
			return m, tea.Quit

		case "up", "k":
			if m.state == stateSelectType && !m.filter.Focused() && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectType && !m.filter.Focused() && m.selected < len(m.filtered)-1 {
				m.selected++
			}

		case "/":
			if m.state == stateSelectType && !m.filter.Focused() {
				m.filter.Focus()
				return m, nil
			}

		case "enter":
			switch m.state {
			case stateSelectType:
				if m.filter.Focused() {
					m.filter.Blur()
				} else if len(m.filtered) > 0 {
					m.state = stateShowDetail
				}
			case stateShowDetail:
				m.state = stateSelectType
			}

		case "esc":
			switch m.state {
			case stateSelectType:
				if m.filter.Focused() {
					m.filter.Blur()
					m.filter.SetValue("")
					m.applyFilter()
				}
			case stateShowDetail:
				m.state = stateSelectType
			}
		}

	case loadedMsg:
		m.types = msg.types
		m.applyFilter()
	}

	if m.filter.Focused() {
		var cmd tea.Cmd
		m.filter, cmd = m.filter.Update(msg)
		m.applyFilter()
		return m, cmd
	}

	return m, nil
}

func (m *exploreModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("dynbridge registry"))
	b.WriteString("\n\n")

	if len(m.types) == 0 {
		b.WriteString("No registered types.\n\n")
		b.WriteString(helpStyle.Render("q quit"))
		return b.String()
	}

	switch m.state {
	case stateSelectType:
		b.WriteString(m.filter.View())
		b.WriteString("\n\n")
		for pos, idx := range m.filtered {
			t := m.types[idx]
			line := typeStyle.Render(t.name) + " [" + markerStyle.Render(t.markers) + "]"
			if pos == m.selected {
				b.WriteString(selectedStyle.Render("> ") + line)
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter details • / filter • q quit"))

	case stateShowDetail:
		t := m.types[m.filtered[m.selected]]
		b.WriteString(typeStyle.Render(t.name))
		b.WriteString("\n\n")
		b.WriteString(fmt.Sprintf("markers: %s\n", markerStyle.Render(t.markers)))
		if len(t.traits) > 0 {
			b.WriteString(fmt.Sprintf("traits:  %s\n", strings.Join(t.traits, ", ")))
		}
		if m.cfg.ShowCombinations {
			b.WriteString(fmt.Sprintf("\ncombinations (%d):\n", len(t.combos)))
			for _, c := range t.combos {
				b.WriteString("  " + comboStyle.Render(c) + "\n")
			}
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("enter/esc back • q quit"))
	}

	return b.String()
}

func runInteractive(cfg config) error {
	p := tea.NewProgram(newExploreModel(cfg), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
