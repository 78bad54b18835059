package pipeline

import (
	"time"

	"morgonpodd/internal/feed"
	"morgonpodd/internal/fileutil"
	"morgonpodd/internal/runlog"
	"morgonpodd/internal/stage"
)

// Run artifact names.
const (
	ScrapedFile  = "scraped.json"
	SegmentsDir  = "segments"
	EpisodeWAV   = "episode.wav"
	EpisodeMP3   = "episode.mp3"
	AssemblyFile = "assembly.json"
	EpisodeFile  = "episode.json"
	FeedFile     = "feed.xml"
	SummaryFile  = "feed.json"
	ReportFile   = "report.json"
)

// StageReport is the outcome of one stage.
type StageReport struct {
	Name       string `json:"name"`
	Outcome    string `json:"outcome"`
	Issues     int    `json:"issues,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// Report is the terminal summary of a run, written to report.json.
type Report struct {
	RunID      string        `json:"run_id"`
	EpisodeID  string        `json:"episode_id"`
	Status     runlog.Status `json:"status"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	RunDir     string        `json:"run_dir"`
	Stages     []StageReport `json:"stages"`
	Issues     []stage.Issue `json:"issues"`
	Episode    *feed.Episode `json:"episode,omitempty"`
	FeedURL    string        `json:"feed_url,omitempty"`
	Error      string        `json:"error,omitempty"`
	ErrorKind  string        `json:"error_kind,omitempty"`
}

// Stage returns the report for name, if that stage ran.
func (r *Report) Stage(name string) (StageReport, bool) {
	for _, s := range r.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return StageReport{}, false
}

// HasIssue reports whether any issue carries code.
func (r *Report) HasIssue(code string) bool {
	for _, issue := range r.Issues {
		if issue.Code == code {
			return true
		}
	}
	return false
}

// terminalStatus maps the run outcome onto success, partial or failed.
func terminalStatus(err error, issues []stage.Issue) runlog.Status {
	if err != nil {
		return runlog.StatusFailed
	}
	for _, issue := range issues {
		if issue.Fatal {
			return runlog.StatusFailed
		}
	}
	if len(issues) > 0 {
		return runlog.StatusPartial
	}
	return runlog.StatusSuccess
}

// WriteReport persists r atomically.
func WriteReport(path string, r *Report) error {
	return fileutil.WriteJSON(path, r)
}
