package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	engine "github.com/rxtech-lab/argo-backtree/internal/backtest/engine/engine_v1"
	"github.com/rxtech-lab/argo-backtree/internal/logger"
	"github.com/rxtech-lab/argo-backtree/internal/types"
)

// Application states.
const (
	StateRunSelect = iota
	StateRunDisplay
	StateFilterInput
)

// SnapshotLoader reads the snapshots of one run.
type SnapshotLoader func(summary types.RunSummary) ([]engine.SnapshotRow, error)

// Model is the main Bubble Tea model for the results browser.
type Model struct {
	state       int
	runList     list.Model
	filterInput textinput.Model
	dataTable   table.Model
	summaries   []types.RunSummary
	selected    types.RunSummary
	rows        []engine.SnapshotRow
	filter      string
	load        SnapshotLoader
	err         error
	width       int
	height      int
}

// NewModel creates a model listing summaries. load is called when a run is opened.
func NewModel(summaries []types.RunSummary, load SnapshotLoader) Model {
	return Model{
		state:       StateRunSelect,
		runList:     NewRunList(summaries),
		filterInput: NewFilterInput(),
		dataTable:   NewSnapshotTable(),
		summaries:   summaries,
		load:        load,
	}
}

// loadSnapshots imports the snapshot parquet file of a run into a scratch result store.
func loadSnapshots(summary types.RunSummary) ([]engine.SnapshotRow, error) {
	if summary.SnapshotsFilePath == "" {
		return nil, fmt.Errorf("run %s has no snapshots file", summary.ID)
	}

	store, err := engine.NewResultStore(logger.NewNopLogger())
	if err != nil {
		return nil, err
	}
	defer store.Close()

	if err := store.Import(engine.ResultFiles{Snapshots: summary.SnapshotsFilePath}); err != nil {
		return nil, err
	}

	return store.Snapshots(summary.ID)
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "q":
			if m.state != StateFilterInput {
				return m, tea.Quit
			}
		case "esc":
			return m.handleEsc()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.runList.SetSize(msg.Width, msg.Height-4)
		m.dataTable.SetWidth(msg.Width)
		m.dataTable.SetHeight(msg.Height - 8)

		return m, nil

	case SnapshotsLoadedMsg:
		if msg.RunID != m.selected.ID {
			return m, nil
		}

		m.rows = msg.Rows
		m.err = nil
		m.dataTable = UpdateTableRows(m.dataTable, m.rows, m.filter)

		return m, nil

	case LoadErrorMsg:
		m.err = msg.Err

		return m, nil
	}

	switch m.state {
	case StateRunSelect:
		return m.updateRunSelect(msg)
	case StateRunDisplay:
		return m.updateRunDisplay(msg)
	case StateFilterInput:
		return m.updateFilterInput(msg)
	}

	return m, nil
}

func (m Model) handleEsc() (tea.Model, tea.Cmd) {
	switch m.state {
	case StateRunDisplay:
		m.rows = nil
		m.filter = ""
		m.err = nil
		m.selected = types.RunSummary{}
		m.dataTable.SetRows(nil)
		m.state = StateRunSelect
	case StateFilterInput:
		m.filterInput.Blur()
		m.state = StateRunDisplay
	}

	return m, nil
}

func (m Model) updateRunSelect(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && msg.String() == "enter" {
		if item, ok := m.runList.SelectedItem().(runItem); ok {
			m.selected = item.summary
			m.state = StateRunDisplay

			return m, m.loadRun(item.summary)
		}
	}

	var cmd tea.Cmd
	m.runList, cmd = m.runList.Update(msg)

	return m, cmd
}

func (m Model) updateRunDisplay(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && msg.String() == "/" {
		m.filterInput.SetValue(m.filter)
		m.filterInput.Focus()
		m.state = StateFilterInput

		return m, textinput.Blink
	}

	var cmd tea.Cmd
	m.dataTable, cmd = m.dataTable.Update(msg)

	return m, cmd
}

func (m Model) updateFilterInput(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && msg.String() == "enter" {
		m.filter = ParseFilter(m.filterInput.Value())
		m.filterInput.Blur()
		m.dataTable = UpdateTableRows(m.dataTable, m.rows, m.filter)
		m.state = StateRunDisplay

		return m, nil
	}

	var cmd tea.Cmd
	m.filterInput, cmd = m.filterInput.Update(msg)

	return m, cmd
}

// loadRun returns a command that reads the snapshots of summary.
func (m Model) loadRun(summary types.RunSummary) tea.Cmd {
	load := m.load

	return func() tea.Msg {
		if load == nil {
			return LoadErrorMsg{Err: fmt.Errorf("no snapshot loader configured")}
		}

		rows, err := load(summary)
		if err != nil {
			return LoadErrorMsg{Err: err}
		}

		return SnapshotsLoadedMsg{RunID: summary.ID, Rows: rows}
	}
}

// View implements tea.Model.
func (m Model) View() string {
	var s strings.Builder

	switch m.state {
	case StateRunSelect:
		s.WriteString(TitleStyle.Render("Argo Backtree - Results"))
		s.WriteString("\n\n")

		if len(m.summaries) == 0 {
			s.WriteString("No runs found.\n")
		} else {
			s.WriteString(m.runList.View())
		}

		s.WriteString("\n")
		s.WriteString(HelpStyle.Render("Press Enter to open a run, q to quit"))

	case StateRunDisplay, StateFilterInput:
		s.WriteString(TitleStyle.Render(fmt.Sprintf("Run %s - %s (%s)", m.selected.ID, m.selected.Strategy, m.selected.State)))
		s.WriteString("\n")

		if m.selected.Error != "" {
			s.WriteString(ErrorStyle.Render("Halted: " + m.selected.Error))
			s.WriteString("\n")
		}

		s.WriteString("\n")

		if m.err != nil {
			s.WriteString(ErrorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
			s.WriteString("\n\n")
		}

		if m.state == StateFilterInput {
			s.WriteString("Show strategies under path:\n\n")
			s.WriteString(m.filterInput.View())
			s.WriteString("\n\n")
		}

		if m.rows == nil && m.err == nil {
			s.WriteString("Loading snapshots...\n")
		} else {
			s.WriteString(m.dataTable.View())
		}

		s.WriteString("\n")

		filter := m.filter
		if filter == "" {
			filter = "all"
		}

		s.WriteString(HelpStyle.Render(fmt.Sprintf("q: quit | Esc: back | /: filter | Showing: %s", filter)))
	}

	return s.String()
}
