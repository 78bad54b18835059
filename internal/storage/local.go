package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"morgonpodd/internal/fileutil"
	"morgonpodd/internal/services"
	"morgonpodd/internal/stage"
)

// LocalStore publishes into a directory tree.
type LocalStore struct {
	dir        string
	publicBase string
}

// NewLocal creates a directory-backed uploader. Without a public base URL,
// returned URLs use the file scheme.
func NewLocal(dir, publicBase string) *LocalStore {
	return &LocalStore{dir: dir, publicBase: publicBase}
}

// Dir is the publish root.
func (l *LocalStore) Dir() string { return l.dir }

// Upload copies the file under key atomically.
func (l *LocalStore) Upload(ctx context.Context, localPath, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dest, err := l.resolve(key)
	if err != nil {
		return "", services.Wrap(services.ErrPublish, stage.PublishAudio, "resolve", key, err)
	}
	if err := fileutil.CopyFileAtomic(localPath, dest); err != nil {
		return "", services.Wrap(services.ErrPublish, stage.PublishAudio, "copy", key, err)
	}
	return l.PublicURL(key), nil
}

// PublicURL maps key onto the public base URL.
func (l *LocalStore) PublicURL(key string) string {
	if l.publicBase == "" {
		return "file://" + filepath.ToSlash(filepath.Join(l.dir, filepath.FromSlash(key)))
	}
	return joinURL(l.publicBase, key)
}

// HealthCheck confirms the publish root is a writable directory.
func (l *LocalStore) HealthCheck(context.Context) stage.Health {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return stage.Unhealthy("storage", err.Error())
	}
	probe, err := os.CreateTemp(l.dir, ".probe-*")
	if err != nil {
		return stage.Unhealthy("storage", fmt.Sprintf("%s not writable: %v", l.dir, err))
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
	return stage.Healthy("storage")
}

func (l *LocalStore) resolve(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.TrimLeft(key, "/")))
	if clean == "." || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("key %q escapes the publish directory", key)
	}
	return filepath.Join(l.dir, clean), nil
}

var _ Uploader = (*LocalStore)(nil)
