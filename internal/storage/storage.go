// Package storage publishes episode audio and feed documents.
//
// Two backends implement Uploader: S3Store for S3-compatible object stores
// (Cloudflare R2 in production) and LocalStore for a directory served by a
// web server or the preview API.
package storage

import (
	"context"
	"fmt"
	"mime"
	"path"
	"path/filepath"
	"strings"

	"morgonpodd/internal/config"
	"morgonpodd/internal/stage"
)

// Uploader publishes a local file under key and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, localPath, key string) (string, error)
	PublicURL(key string) string
	HealthCheck(ctx context.Context) stage.Health
}

// New builds the uploader selected by cfg.Storage.Backend.
func New(cfg *config.Config) (Uploader, error) {
	switch cfg.Storage.Backend {
	case config.StorageS3:
		return NewS3FromConfig(cfg.Storage), nil
	case config.StorageLocal:
		return NewLocal(cfg.Storage.LocalDir, cfg.Storage.PublicBaseURL), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// EpisodeKey is the object key for an episode's audio file.
func EpisodeKey(prefix, episodeID, localPath string) string {
	return path.Join(strings.Trim(prefix, "/"), episodeID+strings.ToLower(filepath.Ext(localPath)))
}

// ContentType maps a file extension to the MIME type sent on upload.
func ContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".xml":
		return "application/rss+xml; charset=utf-8"
	case ".json":
		return "application/json"
	}
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}
