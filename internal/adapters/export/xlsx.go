// Package export renders leaderboards and song breakdowns as spreadsheets
// and charts.
package export

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/okian/festrank/internal/domain/types"
)

const leaderboardSheet = "Leaderboard"

var leaderboardHeader = []any{"Rank", "Player", "User ID", "Instrument", "Score", "Tier"}

// LeaderboardXLSX writes rows into a single-sheet workbook.
func LeaderboardXLSX(rows []types.Entry) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), leaderboardSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(leaderboardSheet, "A1", &leaderboardHeader); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("cell name: %w", err)
		}
		row := []any{r.Rank, r.Username, r.UserID, r.Instrument, r.Score, r.Tier}
		if err := f.SetSheetRow(leaderboardSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	if err := f.SetColWidth(leaderboardSheet, "B", "D", 20); err != nil {
		return nil, fmt.Errorf("column width: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// ReadLeaderboardXLSX parses a workbook produced by LeaderboardXLSX.
func ReadLeaderboardXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(leaderboardSheet)
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return rows, nil
}
