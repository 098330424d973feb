package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	engine "github.com/rxtech-lab/argo-backtree/internal/backtest/engine/engine_v1"
	"github.com/rxtech-lab/argo-backtree/internal/types"
	"github.com/urfave/cli/v3"
)

func browseAction(_ context.Context, cmd *cli.Command) error {
	statsPath := filepath.Join(cmd.String("results"), engine.StatsFileName)

	summaries, err := types.ReadRunSummaries(statsPath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", statsPath, err)
	}

	p := tea.NewProgram(NewModel(summaries, loadSnapshots), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("results browser failed: %w", err)
	}

	return nil
}

func main() {
	cmd := &cli.Command{
		Name:  "results",
		Usage: "Browse the snapshots of a finished backtest",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "results",
				Aliases: []string{"r"},
				Usage:   "Results folder written by the backtest command",
				Value:   "results",
			},
		},
		Action: browseAction,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
