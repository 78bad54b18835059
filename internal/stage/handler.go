package stage

import "context"

// Names of the pipeline stages in execution order.
const (
	Scrape       = "scrape"
	Summarize    = "summarize"
	Chunk        = "chunk"
	Render       = "render"
	Assemble     = "assemble"
	PublishAudio = "publish_audio"
	PersistFeed  = "persist_feed"
	PublishFeed  = "publish_feed"
	Commit       = "commit"
)

// Order lists every stage in the sequence the orchestrator runs them.
var Order = []string{Scrape, Summarize, Chunk, Render, Assemble, PublishAudio, PersistFeed, PublishFeed, Commit}

// Checker is implemented by collaborators that can report readiness before a run.
type Checker interface {
	HealthCheck(context.Context) Health
}
