package analytics

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const leaderboardSheet = "Leaderboard"

var leaderboardHeader = []any{"Rank", "Agent", "Calls", "Avg Score", "Flagged %", "Avg Duration (s)"}

// WriteLeaderboardXLSX renders rows as a single-sheet workbook in rank order.
func WriteLeaderboardXLSX(w io.Writer, rows []LeaderboardEntry) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), leaderboardSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(leaderboardSheet, "A1", &leaderboardHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{i + 1, r.AgentID, r.TotalCalls, r.AvgScore, r.FlaggedPct, r.AvgDuration}
		if err := f.SetSheetRow(leaderboardSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	if err := f.SetPanes(leaderboardSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
