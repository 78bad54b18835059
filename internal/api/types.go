package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Episode describes a published episode in a transport-friendly format.
type Episode struct {
	ID          string `json:"id"`
	Number      int    `json:"number"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	PublishedAt string `json:"publishedAt,omitempty"`
	Duration    string `json:"duration"`
	DurationMs  int64  `json:"durationMs"`
	SizeBytes   int64  `json:"sizeBytes"`
	MimeType    string `json:"mimeType"`
	URL         string `json:"url"`
	RunID       string `json:"runId,omitempty"`
}

// EpisodeListResponse wraps the retained episodes, newest first.
type EpisodeListResponse struct {
	Episodes    []Episode `json:"episodes"`
	MaxRetained int       `json:"maxRetained"`
	UpdatedAt   string    `json:"updatedAt,omitempty"`
}

// Run describes a ledger entry.
type Run struct {
	ID           string     `json:"id"`
	EpisodeID    string     `json:"episodeId,omitempty"`
	Status       string     `json:"status"`
	Stage        string     `json:"stage,omitempty"`
	IssueCount   int        `json:"issueCount"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	ReportPath   string     `json:"reportPath,omitempty"`
	StartedAt    string     `json:"startedAt,omitempty"`
	FinishedAt   string     `json:"finishedAt,omitempty"`
	DurationMs   int64      `json:"durationMs"`
	Events       []RunEvent `json:"events,omitempty"`
}

// RunEvent is one recorded stage transition.
type RunEvent struct {
	Stage     string `json:"stage"`
	Outcome   string `json:"outcome"`
	Detail    string `json:"detail,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// RunListResponse wraps recent runs, newest first.
type RunListResponse struct {
	Runs []Run `json:"runs"`
}

// StageHealth mirrors readiness reporting for a collaborator.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// DependencyStatus captures availability of an external binary.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Version     string `json:"version,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

// Diagnostics aggregates readiness for the doctor command and /health.
type Diagnostics struct {
	Ready        bool               `json:"ready"`
	Dependencies []DependencyStatus `json:"dependencies"`
	Services     []StageHealth      `json:"services"`
}

// ErrorResponse is the body of every non-2xx JSON reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
