package artifacts

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"

	"github.com/moldock/moldockpipe/internal/atomicfile"
	"github.com/moldock/moldockpipe/internal/manifest"
)

var (
	summaryHeader     = []string{"id", "inchikey", "dock_score", "pose_path", "created_at"}
	leaderboardHeader = []string{"rank", "id", "inchikey", "dock_score", "pose_path"}
)

type scoredRow struct {
	id       string
	inchikey string
	score    float64
	scoreRaw string
	pose     string
	created  string
}

// WriteSummaries rebuilds results/summary.csv and results/leaderboard.csv
// from the manifest. Only rows with a docking score appear; the
// leaderboard ranks by ascending score (more negative binds better).
func WriteSummaries(projectDir string, records []manifest.Record) error {
	rows := make([]scoredRow, 0, len(records))
	for _, rec := range records {
		if rec.DockScore == "" {
			continue
		}
		score, err := strconv.ParseFloat(rec.DockScore, 64)
		if err != nil {
			continue
		}
		rows = append(rows, scoredRow{
			id:       rec.ID,
			inchikey: rec.InChIKey,
			score:    score,
			scoreRaw: rec.DockScore,
			pose:     rec.DockPose,
			created:  rec.UpdatedAt,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].id < rows[j].id })

	summary := make([][]string, 0, len(rows)+1)
	summary = append(summary, summaryHeader)
	for _, r := range rows {
		summary = append(summary, []string{r.id, r.inchikey, r.scoreRaw, r.pose, r.created})
	}
	if err := writeCSV(SummaryPath(projectDir), summary); err != nil {
		return err
	}

	ranked := make([]scoredRow, len(rows))
	copy(ranked, rows)
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score < ranked[j].score
		}
		return ranked[i].id < ranked[j].id
	})
	leaderboard := make([][]string, 0, len(ranked)+1)
	leaderboard = append(leaderboard, leaderboardHeader)
	for i, r := range ranked {
		leaderboard = append(leaderboard, []string{strconv.Itoa(i + 1), r.id, r.inchikey, r.scoreRaw, r.pose})
	}
	return writeCSV(LeaderboardPath(projectDir), leaderboard)
}

func writeCSV(path string, rows [][]string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return atomicfile.WriteFile(path, buf.Bytes(), 0o644)
}
