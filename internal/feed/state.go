package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"time"

	"morgonpodd/internal/fileutil"
	"morgonpodd/internal/services"
)

// DefaultMaxRetained bounds the history when no limit is configured.
const DefaultMaxRetained = 50

// Episode is one published episode.
type Episode struct {
	ID             string    `json:"id"`
	Number         int       `json:"number"`
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	PublishedAt    time.Time `json:"published_at"`
	AudioFilePath  string    `json:"audio_file_path,omitempty"`
	AudioKey       string    `json:"audio_key,omitempty"`
	MimeType       string    `json:"mime_type"`
	DurationMs     int64     `json:"duration_ms"`
	SizeBytes      int64     `json:"size_bytes"`
	PublicURL      string    `json:"public_url"`
	ScriptFilePath string    `json:"script_file_path,omitempty"`
	RunID          string    `json:"run_id,omitempty"`
}

// State is the bounded newest-first episode history.
type State struct {
	MaxRetained int       `json:"max_retained"`
	UpdatedAt   time.Time `json:"updated_at"`
	Episodes    []Episode `json:"episodes"`
}

// NewState returns an empty history bounded to maxRetained entries.
func NewState(maxRetained int) *State {
	if maxRetained <= 0 {
		maxRetained = DefaultMaxRetained
	}
	return &State{MaxRetained: maxRetained, Episodes: []Episode{}}
}

// EpisodeID derives the date-based identifier, e.g. "morgonpodd-20261014".
func EpisodeID(slug string, date time.Time) string {
	return fmt.Sprintf("%s-%s", strings.TrimSpace(slug), date.Format("20060102"))
}

// LoadState reads the history at path. A missing file yields an empty
// state. A positive maxRetained overrides the persisted bound and trims the
// history if it has shrunk.
func LoadState(path string, maxRetained int) (*State, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewState(maxRetained), nil
	}
	if err != nil {
		return nil, services.Wrap(services.ErrPublish, "feed", "load", "read feed state", err)
	}
	state := NewState(maxRetained)
	if err := json.Unmarshal(data, state); err != nil {
		return nil, services.Wrap(services.ErrValidation, "feed", "load", fmt.Sprintf("feed state %s is corrupt", path), err)
	}
	if maxRetained > 0 {
		state.MaxRetained = maxRetained
	}
	if state.MaxRetained <= 0 {
		state.MaxRetained = DefaultMaxRetained
	}
	if state.Episodes == nil {
		state.Episodes = []Episode{}
	}
	state.normalize()
	return state, nil
}

// SaveState writes the history with a temp file and rename.
func SaveState(path string, state *State) error {
	if err := fileutil.WriteJSON(path, state); err != nil {
		return services.Wrap(services.ErrPublish, "feed", "save", "write feed state", err)
	}
	return nil
}

// Clone returns a deep copy so callers can stage changes.
func (s *State) Clone() *State {
	out := *s
	out.Episodes = append([]Episode(nil), s.Episodes...)
	return &out
}

// Has reports whether an episode with id is recorded.
func (s *State) Has(id string) bool {
	_, ok := s.Get(id)
	return ok
}

// Get finds an episode by id.
func (s *State) Get(id string) (Episode, bool) {
	for _, ep := range s.Episodes {
		if ep.ID == id {
			return ep, true
		}
	}
	return Episode{}, false
}

// NextNumber is one greater than the highest recorded episode number.
func (s *State) NextNumber() int {
	highest := 0
	for _, ep := range s.Episodes {
		highest = max(highest, ep.Number)
	}
	return highest + 1
}

// Latest returns the newest episode.
func (s *State) Latest() (Episode, bool) {
	if len(s.Episodes) == 0 {
		return Episode{}, false
	}
	return s.Episodes[0], true
}

// Add inserts ep, keeping the history newest first and evicting the oldest
// episodes beyond MaxRetained. A duplicate ID leaves the state untouched and
// returns false.
func (s *State) Add(ep Episode) bool {
	if s.Has(ep.ID) {
		return false
	}
	s.Episodes = append([]Episode{ep}, s.Episodes...)
	s.normalize()
	return true
}

// normalize sorts newest first and enforces the bound.
func (s *State) normalize() {
	sort.SliceStable(s.Episodes, func(i, j int) bool {
		a, b := s.Episodes[i], s.Episodes[j]
		if !a.PublishedAt.Equal(b.PublishedAt) {
			return a.PublishedAt.After(b.PublishedAt)
		}
		return a.Number > b.Number
	})
	if s.MaxRetained > 0 && len(s.Episodes) > s.MaxRetained {
		s.Episodes = s.Episodes[:s.MaxRetained]
	}
}
