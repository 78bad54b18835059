package runlog

import (
	"database/sql"
	"errors"
	"time"
)

const runColumns = "id, episode_id, status, stage, issue_count, error_message, report_path, started_at, updated_at, finished_at"

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		id          string
		episodeID   sql.NullString
		status      string
		stage       sql.NullString
		issueCount  sql.NullInt64
		errMessage  sql.NullString
		reportPath  sql.NullString
		startedRaw  string
		updatedRaw  string
		finishedRaw sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&episodeID,
		&status,
		&stage,
		&issueCount,
		&errMessage,
		&reportPath,
		&startedRaw,
		&updatedRaw,
		&finishedRaw,
	); err != nil {
		return nil, err
	}

	run := &Run{
		ID:           id,
		EpisodeID:    episodeID.String,
		Status:       Status(status),
		Stage:        stage.String,
		IssueCount:   int(issueCount.Int64),
		ErrorMessage: errMessage.String,
		ReportPath:   reportPath.String,
	}
	if started, err := parseTimeString(startedRaw); err == nil {
		run.StartedAt = started
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		run.UpdatedAt = updated
	}
	if finishedRaw.Valid {
		if finished, err := parseTimeString(finishedRaw.String); err == nil {
			run.FinishedAt = &finished
		}
	}
	return run, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
