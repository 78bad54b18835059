package api

import (
	"cmp"
	"slices"
	"time"

	"morgonpodd/internal/deps"
	"morgonpodd/internal/feed"
	"morgonpodd/internal/runlog"
	"morgonpodd/internal/stage"
)

// FromEpisode converts a feed state entry to its API representation.
func FromEpisode(ep feed.Episode) Episode {
	return Episode{
		ID:          ep.ID,
		Number:      ep.Number,
		Title:       ep.Title,
		Description: ep.Description,
		PublishedAt: formatTime(ep.PublishedAt),
		Duration:    feed.FormatDuration(ep.DurationMs),
		DurationMs:  ep.DurationMs,
		SizeBytes:   ep.SizeBytes,
		MimeType:    ep.MimeType,
		URL:         ep.PublicURL,
		RunID:       ep.RunID,
	}
}

// FromState converts the feed state into a list response.
func FromState(state *feed.State) EpisodeListResponse {
	resp := EpisodeListResponse{Episodes: []Episode{}}
	if state == nil {
		return resp
	}
	resp.MaxRetained = state.MaxRetained
	resp.UpdatedAt = formatTime(state.UpdatedAt)
	for _, ep := range state.Episodes {
		resp.Episodes = append(resp.Episodes, FromEpisode(ep))
	}
	return resp
}

// FromRun converts a ledger row. A nil run yields the zero value.
func FromRun(run *runlog.Run) Run {
	if run == nil {
		return Run{}
	}
	dto := Run{
		ID:           run.ID,
		EpisodeID:    run.EpisodeID,
		Status:       string(run.Status),
		Stage:        run.Stage,
		IssueCount:   run.IssueCount,
		ErrorMessage: run.ErrorMessage,
		ReportPath:   run.ReportPath,
		StartedAt:    formatTime(run.StartedAt),
		DurationMs:   run.Duration().Milliseconds(),
	}
	if run.FinishedAt != nil {
		dto.FinishedAt = formatTime(*run.FinishedAt)
	}
	return dto
}

// FromRuns converts a slice of ledger rows.
func FromRuns(runs []*runlog.Run) []Run {
	out := make([]Run, 0, len(runs))
	for _, run := range runs {
		out = append(out, FromRun(run))
	}
	return out
}

// FromEvents converts stage events.
func FromEvents(events []runlog.Event) []RunEvent {
	if len(events) == 0 {
		return nil
	}
	out := make([]RunEvent, 0, len(events))
	for _, ev := range events {
		out = append(out, RunEvent{
			Stage:     ev.Stage,
			Outcome:   ev.Outcome,
			Detail:    ev.Detail,
			CreatedAt: formatTime(ev.CreatedAt),
		})
	}
	return out
}

// FromDependencies converts binary checks.
func FromDependencies(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, DependencyStatus{
			Name:        s.Name,
			Command:     s.Command,
			Description: s.Description,
			Optional:    s.Optional,
			Available:   s.Available,
			Version:     s.Version,
			Detail:      s.Detail,
		})
	}
	return out
}

// StageHealthSlice orders health records by name for stable output.
func StageHealthSlice(records []stage.Health) []StageHealth {
	out := make([]StageHealth, 0, len(records))
	for _, h := range records {
		out = append(out, StageHealth{Name: h.Name, Ready: h.Ready, Detail: h.Detail})
	}
	slices.SortFunc(out, func(a, b StageHealth) int { return cmp.Compare(a.Name, b.Name) })
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
