package api

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"morgonpodd/internal/config"
	"morgonpodd/internal/feed"
	"morgonpodd/internal/logging"
	"morgonpodd/internal/runlog"
	"morgonpodd/internal/storage"
)

const (
	defaultRunLimit = 20
	maxRunLimit     = 200
	feedFileName    = "feed.xml"
)

// Handler serves the preview routes.
type Handler struct {
	cfg      *config.Config
	ledger   *runlog.Store
	diagnose func(context.Context) Diagnostics
	logger   *slog.Logger
}

// NewHandler creates a handler. ledger and diagnose may be nil.
func NewHandler(cfg *config.Config, ledger *runlog.Store, diagnose func(context.Context) Diagnostics, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{
		cfg:      cfg,
		ledger:   ledger,
		diagnose: diagnose,
		logger:   logging.NewComponentLogger(logger, "api"),
	}
}

// Index describes the available endpoints.
func (h *Handler) Index(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": h.cfg.Podcast.Title,
		"endpoints": map[string]string{
			"feed":     "/feed.xml",
			"media":    "/media/<key>",
			"episodes": "/api/episodes",
			"runs":     "/api/runs",
			"health":   "/health",
		},
	})
}

// Health reports readiness; 503 when a required dependency is missing.
func (h *Handler) Health(c *gin.Context) {
	if h.diagnose == nil {
		c.JSON(http.StatusOK, Diagnostics{Ready: true})
		return
	}
	diag := h.diagnose(c.Request.Context())
	status := http.StatusOK
	if !diag.Ready {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, diag)
}

// Feed serves the last published feed document.
func (h *Handler) Feed(c *gin.Context) {
	for _, candidate := range h.feedCandidates() {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			c.Header("Content-Type", storage.ContentType(candidate))
			c.Header("Cache-Control", "no-cache")
			c.File(candidate)
			return
		}
	}
	c.JSON(http.StatusNotFound, ErrorResponse{Error: "no feed has been published yet"})
}

func (h *Handler) feedCandidates() []string {
	var out []string
	if h.cfg.Storage.Backend == config.StorageLocal && h.cfg.Storage.LocalDir != "" {
		out = append(out, filepath.Join(h.cfg.Storage.LocalDir, filepath.FromSlash(h.cfg.Storage.FeedKey)))
	}
	return append(out, filepath.Join(h.cfg.Paths.WorkDir, feedFileName))
}

// Media serves objects from the local storage backend.
func (h *Handler) Media(c *gin.Context) {
	if h.cfg.Storage.Backend != config.StorageLocal {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "media is served from object storage"})
		return
	}
	key := strings.TrimPrefix(c.Param("key"), "/")
	root, err := os.OpenRoot(h.cfg.Storage.LocalDir)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "storage directory unavailable"})
		return
	}
	defer root.Close()
	info, err := root.Stat(filepath.FromSlash(key))
	if err != nil || info.IsDir() {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found"})
		return
	}
	c.Header("Content-Type", storage.ContentType(key))
	c.FileFromFS(key, http.FS(root.FS()))
}

// ListEpisodes returns the retained episodes, newest first.
func (h *Handler) ListEpisodes(c *gin.Context) {
	state, err := h.loadState()
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, FromState(state))
}

// GetEpisode returns one retained episode.
func (h *Handler) GetEpisode(c *gin.Context) {
	state, err := h.loadState()
	if err != nil {
		h.fail(c, err)
		return
	}
	ep, ok := state.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "episode not found"})
		return
	}
	c.JSON(http.StatusOK, FromEpisode(ep))
}

// ListRuns returns recent ledger entries.
func (h *Handler) ListRuns(c *gin.Context) {
	if h.ledger == nil {
		c.JSON(http.StatusOK, RunListResponse{Runs: []Run{}})
		return
	}
	limit := defaultRunLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxRunLimit)
	}
	runs, err := h.ledger.List(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, RunListResponse{Runs: FromRuns(runs)})
}

// GetRun returns one run with its stage events.
func (h *Handler) GetRun(c *gin.Context) {
	if h.ledger == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "run ledger unavailable"})
		return
	}
	ctx := c.Request.Context()
	run, err := h.ledger.Get(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if run == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "run not found"})
		return
	}
	events, err := h.ledger.Events(ctx, run.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	dto := FromRun(run)
	dto.Events = FromEvents(events)
	c.JSON(http.StatusOK, dto)
}

func (h *Handler) loadState() (*feed.State, error) {
	return feed.LoadState(h.cfg.Paths.FeedState, h.cfg.Podcast.MaxRetained)
}

func (h *Handler) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	status := http.StatusInternalServerError
	if errors.Is(err, fs.ErrNotExist) {
		status = http.StatusNotFound
	}
	c.JSON(status, ErrorResponse{Error: err.Error()})
}
