package pipeline

import (
	"context"
	"os"
	"path/filepath"

	"morgonpodd/internal/feed"
	"morgonpodd/internal/fileutil"
	"morgonpodd/internal/logging"
	"morgonpodd/internal/services"
	"morgonpodd/internal/stage"
)

// CurrentFeedFile is the local copy of the last published feed document.
const CurrentFeedFile = "feed.xml"

// RebuildResult describes a feed regenerated from the stored state.
type RebuildResult struct {
	Episodes int    `json:"episodes"`
	Path     string `json:"path"`
	URL      string `json:"url,omitempty"`
}

// RebuildFeed renders the feed from the feed state file and, when upload is
// set, republishes it. Hand edits to the state show up here verbatim.
func (o *Orchestrator) RebuildFeed(ctx context.Context, upload bool) (RebuildResult, error) {
	if err := o.cfg.EnsureDirectories(); err != nil {
		return RebuildResult{}, services.Wrap(services.ErrConfiguration, "", "prepare", "create working directories", err)
	}
	locked, err := o.lock.TryLock()
	if err != nil {
		return RebuildResult{}, services.Wrap(services.ErrLocked, "", "lock", o.cfg.LockPath(), err)
	}
	if !locked {
		return RebuildResult{}, services.Wrap(services.ErrLocked, "", "lock", "another run holds "+o.cfg.LockPath(), nil)
	}
	defer func() { _ = o.lock.Unlock() }()

	state, err := feed.LoadState(o.cfg.Paths.FeedState, o.cfg.Podcast.MaxRetained)
	if err != nil {
		return RebuildResult{}, err
	}
	now := o.deps.Clock()
	ch := feed.ChannelFromConfig(o.cfg)
	doc, err := feed.Render(state, ch, now)
	if err != nil {
		return RebuildResult{}, services.Wrap(services.ErrPublish, stage.PersistFeed, "render", "build feed document", err)
	}
	if err := feed.Verify(doc, len(state.Episodes)); err != nil {
		return RebuildResult{}, services.Wrap(services.ErrValidation, stage.PersistFeed, "verify", "rendered feed is invalid", err)
	}

	path := filepath.Join(o.cfg.Paths.WorkDir, CurrentFeedFile)
	if err := fileutil.WriteFileAtomic(path, doc, 0o644); err != nil {
		return RebuildResult{}, services.Wrap(services.ErrPublish, stage.PersistFeed, "persist", path, err)
	}
	summaryPath := filepath.Join(o.cfg.Paths.WorkDir, SummaryFile)
	if err := feed.WriteSummary(summaryPath, feed.Summarize(state, ch, now)); err != nil {
		return RebuildResult{}, services.Wrap(services.ErrPublish, stage.PersistFeed, "persist", summaryPath, err)
	}
	result := RebuildResult{Episodes: len(state.Episodes), Path: path}
	if !upload {
		return result, nil
	}

	url, err := o.deps.Uploader.Upload(ctx, path, o.cfg.Storage.FeedKey)
	if err != nil {
		return result, err
	}
	result.URL = url
	if _, err := o.deps.Uploader.Upload(ctx, summaryPath, SummaryKey(o.cfg.Storage.FeedKey)); err != nil {
		o.log.Warn("feed summary upload failed", logging.Error(err))
	}
	o.log.Info("feed rebuilt",
		logging.String(logging.FieldEventType, "feed_rebuilt"),
		logging.Int("episodes", result.Episodes),
		logging.String("url", url))
	return result, nil
}

// snapshotFeed keeps a copy of the committed feed under the work dir.
func (o *Orchestrator) snapshotFeed(r *run) {
	for src, name := range map[string]string{
		r.feedPath:                        CurrentFeedFile,
		filepath.Join(r.dir, SummaryFile): SummaryFile,
	} {
		if _, err := os.Stat(src); err != nil {
			continue
		}
		if err := fileutil.CopyFileAtomic(src, filepath.Join(o.cfg.Paths.WorkDir, name)); err != nil {
			o.log.Warn("failed to snapshot feed", logging.String("file", name), logging.Error(err))
		}
	}
}
