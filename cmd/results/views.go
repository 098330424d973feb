package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/lipgloss"
	engine "github.com/rxtech-lab/argo-backtree/internal/backtest/engine/engine_v1"
	"github.com/rxtech-lab/argo-backtree/internal/tree"
	"github.com/rxtech-lab/argo-backtree/internal/types"
)

// runItem implements list.Item for one run summary.
type runItem struct {
	summary types.RunSummary
}

func (i runItem) Title() string {
	if i.summary.DataPath == "" {
		return i.summary.Strategy
	}

	return fmt.Sprintf("%s (%s)", i.summary.Strategy, filepath.Base(i.summary.DataPath))
}

func (i runItem) Description() string {
	return fmt.Sprintf("%s | %d ticks | value %.2f | return %s",
		i.summary.State, i.summary.Ticks, i.summary.FinalValue,
		FormatReturn(i.summary.FinalPrice, tree.DefaultInitialPrice))
}

func (i runItem) FilterValue() string { return i.summary.Strategy }

// NewRunList creates the list of runs found in the results folder.
func NewRunList(summaries []types.RunSummary) list.Model {
	items := make([]list.Item, 0, len(summaries))
	for _, s := range summaries {
		items = append(items, runItem{summary: s})
	}

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true

	l := list.New(items, delegate, 0, 0)
	l.Title = "Select Run"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)

	return l
}

// NewFilterInput creates the text input for the strategy path filter.
func NewFilterInput() textinput.Model {
	ti := textinput.New()
	ti.Placeholder = "root/equity"
	ti.CharLimit = 200
	ti.Width = 50
	ti.Prompt = "> "

	return ti
}

// ParseFilter normalizes a strategy path prefix typed by the user.
func ParseFilter(input string) string {
	return strings.Trim(strings.TrimSpace(input), "/")
}

// NewSnapshotTable creates the table listing strategy snapshots.
func NewSnapshotTable() table.Model {
	columns := []table.Column{
		{Title: "Tick", Width: 6},
		{Title: "Time", Width: 12},
		{Title: "Strategy", Width: 24},
		{Title: "Price", Width: 14},
		{Title: "Value", Width: 14},
		{Title: "Cash", Width: 12},
		{Title: "Fees", Width: 10},
		{Title: "Flows", Width: 10},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)

	t.SetStyles(s)

	return t
}

// matchesFilter reports whether strategy is the filter path or one of its descendants.
func matchesFilter(strategy string, filter string) bool {
	if filter == "" {
		return true
	}

	return strategy == filter || strings.HasPrefix(strategy, filter+"/")
}

// UpdateTableRows fills the table with the snapshots whose strategy matches filter.
func UpdateTableRows(t table.Model, rows []engine.SnapshotRow, filter string) table.Model {
	previous := make(map[string]float64)
	tableRows := make([]table.Row, 0, len(rows))

	for _, row := range rows {
		prevPrice := previous[row.Strategy]
		previous[row.Strategy] = row.Price

		if !matchesFilter(row.Strategy, filter) {
			continue
		}

		tableRows = append(tableRows, table.Row{
			fmt.Sprintf("%d", row.Tick),
			row.Time.Format("2006-01-02"),
			row.Strategy,
			FormatPriceChange(row.Price, prevPrice),
			fmt.Sprintf("%.2f", row.Value),
			fmt.Sprintf("%.2f", row.Cash),
			fmt.Sprintf("%.2f", row.Fees),
			fmt.Sprintf("%.2f", row.Flows),
		})
	}

	t.SetRows(tableRows)

	return t
}
