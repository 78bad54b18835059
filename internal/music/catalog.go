// Package music manages the catalog of intro, outro and transition assets
// and picks the cues used for an episode.
package music

import (
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"

	"gopkg.in/yaml.v3"

	"morgonpodd/internal/audio"
	"morgonpodd/internal/fileutil"
	"morgonpodd/internal/services"
)

// Cue categories the assembler understands.
const (
	CategoryIntro      = "intro"
	CategoryOutro      = "outro"
	CategoryTransition = "transition"
)

// Categories lists the cue categories in timeline order.
var Categories = []string{CategoryIntro, CategoryTransition, CategoryOutro}

// Asset is one catalogued music file.
type Asset struct {
	ID          string    `yaml:"id" json:"id"`
	Title       string    `yaml:"title" json:"title"`
	Artist      string    `yaml:"artist,omitempty" json:"artist,omitempty"`
	File        string    `yaml:"file" json:"file"`
	Categories  []string  `yaml:"categories" json:"categories"`
	Moods       []string  `yaml:"moods,omitempty" json:"moods,omitempty"`
	DurationMs  int64     `yaml:"duration_ms,omitempty" json:"duration_ms,omitempty"`
	SizeBytes   int64     `yaml:"size_bytes,omitempty" json:"size_bytes,omitempty"`
	Description string    `yaml:"description,omitempty" json:"description,omitempty"`
	AddedAt     time.Time `yaml:"added_at" json:"added_at"`
}

// HasCategory reports whether the asset is tagged with category.
func (a Asset) HasCategory(category string) bool {
	for _, c := range a.Categories {
		if strings.EqualFold(c, category) {
			return true
		}
	}
	return false
}

// Catalog is the on-disk asset list. Relative asset paths resolve against
// the catalog file's directory.
type Catalog struct {
	path   string
	Assets []Asset `yaml:"assets" json:"assets"`
}

// Load reads the catalog at path. A missing file yields an empty catalog.
// Files ending in .json are decoded as JSON, everything else as YAML.
func Load(path string) (*Catalog, error) {
	c := &Catalog{path: path}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read music catalog: %w", err)
	}
	if isJSON(path) {
		err = json.Unmarshal(data, c)
	} else {
		err = yaml.Unmarshal(data, c)
	}
	if err != nil {
		return nil, fmt.Errorf("parse music catalog %s: %w", path, err)
	}
	return c, nil
}

// Save writes the catalog atomically.
func (c *Catalog) Save() error {
	sort.SliceStable(c.Assets, func(i, j int) bool { return c.Assets[i].ID < c.Assets[j].ID })
	var (
		data []byte
		err  error
	)
	if isJSON(c.path) {
		data, err = json.MarshalIndent(c, "", "  ")
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("encode music catalog: %w", err)
	}
	return fileutil.WriteFileAtomic(c.path, data, 0o644)
}

// Path returns the catalog file location.
func (c *Catalog) Path() string { return c.path }

// FilePath resolves an asset's file location.
func (c *Catalog) FilePath(a Asset) string {
	if filepath.IsAbs(a.File) {
		return a.File
	}
	return filepath.Join(filepath.Dir(c.path), a.File)
}

// Get finds an asset by ID.
func (c *Catalog) Get(id string) (Asset, bool) {
	for _, a := range c.Assets {
		if a.ID == id {
			return a, true
		}
	}
	return Asset{}, false
}

// ByCategory returns the assets tagged with category, ordered by ID.
func (c *Catalog) ByCategory(category string) []Asset {
	var out []Asset
	for _, a := range c.Assets {
		if a.HasCategory(category) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Search matches query against title, artist and description.
func (c *Catalog) Search(query string) []Asset {
	query = strings.ToLower(strings.TrimSpace(query))
	var out []Asset
	for _, a := range c.Assets {
		if strings.Contains(strings.ToLower(a.Title), query) ||
			strings.Contains(strings.ToLower(a.Artist), query) ||
			strings.Contains(strings.ToLower(a.Description), query) {
			out = append(out, a)
		}
	}
	return out
}

// AddRequest describes a file to import.
type AddRequest struct {
	Source      string
	Title       string
	Artist      string
	Categories  []string
	Moods       []string
	Description string
}

// Add copies the source file next to the catalog under tracks/ and records
// it. WAV durations are read from the file header.
func (c *Catalog) Add(req AddRequest, now time.Time) (Asset, error) {
	info, err := os.Stat(req.Source)
	if err != nil {
		return Asset{}, services.Wrap(services.ErrNotFound, "music", "add", "music file not found", err)
	}
	if strings.TrimSpace(req.Title) == "" {
		req.Title = strings.TrimSuffix(filepath.Base(req.Source), filepath.Ext(req.Source))
	}
	if len(req.Categories) == 0 {
		return Asset{}, services.Wrap(services.ErrValidation, "music", "add", "at least one category is required", nil)
	}

	id := slug(req.Artist + "_" + req.Title)
	if _, exists := c.Get(id); exists {
		id = id + "_" + now.UTC().Format("20060102_150405")
	}
	rel := filepath.Join("tracks", id+strings.ToLower(filepath.Ext(req.Source)))
	asset := Asset{
		ID:          id,
		Title:       strings.TrimSpace(req.Title),
		Artist:      strings.TrimSpace(req.Artist),
		File:        rel,
		Categories:  normalizeTags(req.Categories),
		Moods:       normalizeTags(req.Moods),
		SizeBytes:   info.Size(),
		Description: strings.TrimSpace(req.Description),
		AddedAt:     now.UTC(),
	}
	if err := fileutil.CopyFileAtomic(req.Source, c.FilePath(asset)); err != nil {
		return Asset{}, fmt.Errorf("copy music file: %w", err)
	}
	if wav, err := audio.ReadWAVInfo(c.FilePath(asset)); err == nil {
		asset.DurationMs = wav.DurationMs()
	}
	c.Assets = append(c.Assets, asset)
	return asset, nil
}

// Remove drops an asset and deletes its file when it lives under the
// catalog directory.
func (c *Catalog) Remove(id string) (bool, error) {
	for i, a := range c.Assets {
		if a.ID != id {
			continue
		}
		if !filepath.IsAbs(a.File) {
			if err := os.Remove(c.FilePath(a)); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return false, fmt.Errorf("remove music file: %w", err)
			}
		}
		c.Assets = append(c.Assets[:i], c.Assets[i+1:]...)
		return true, nil
	}
	return false, nil
}

// Resolve picks one asset for category. The choice is a stable function of
// seed so the same episode always gets the same music while different days
// rotate through the catalog.
func (c *Catalog) Resolve(category, seed string) (Asset, bool) {
	candidates := c.ByCategory(category)
	if len(candidates) == 0 {
		return Asset{}, false
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(category + "/" + seed))
	return candidates[int(h.Sum32()%uint32(len(candidates)))], true
}

// Cues resolves every category into assembler cues. Categories without
// assets are left nil so the assembler skips them.
func (c *Catalog) Cues(seed string) audio.Cues {
	var cues audio.Cues
	for _, category := range Categories {
		asset, ok := c.Resolve(category, seed)
		if !ok {
			continue
		}
		cue := &audio.Cue{Category: category, ID: asset.ID, Path: c.FilePath(asset)}
		switch category {
		case CategoryIntro:
			cues.Intro = cue
		case CategoryTransition:
			cues.Transition = cue
		case CategoryOutro:
			cues.Outro = cue
		}
	}
	return cues
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := map[string]struct{}{}
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

func slug(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), "_")
	if out == "" {
		return "track"
	}
	return out
}
