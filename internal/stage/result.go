package stage

import "fmt"

// Kind tags the outcome of a stage.
type Kind int

const (
	// KindOK means the stage produced its value without degradation.
	KindOK Kind = iota
	// KindRecovered means the stage produced a usable value through a documented fallback.
	KindRecovered
	// KindFailed means the stage produced nothing usable.
	KindFailed
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindRecovered:
		return "recovered"
	case KindFailed:
		return "failed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Issue records a non-fatal degradation or a fatal error observed during a run.
type Issue struct {
	Stage   string `json:"stage"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Fatal   bool   `json:"fatal,omitempty"`
}

func (i Issue) String() string {
	if i.Stage == "" {
		return fmt.Sprintf("%s: %s", i.Code, i.Message)
	}
	return fmt.Sprintf("%s/%s: %s", i.Stage, i.Code, i.Message)
}

// Result carries a stage value together with how it was obtained.
type Result[T any] struct {
	Kind   Kind
	Value  T
	Issues []Issue
	Err    error
}

// OK wraps a value produced on the primary path.
func OK[T any](value T) Result[T] {
	return Result[T]{Kind: KindOK, Value: value}
}

// Recovered wraps a value produced by a fallback path.
func Recovered[T any](value T, issues ...Issue) Result[T] {
	return Result[T]{Kind: KindRecovered, Value: value, Issues: issues}
}

// Failed wraps an error for a stage that produced nothing usable.
func Failed[T any](err error, issues ...Issue) Result[T] {
	return Result[T]{Kind: KindFailed, Err: err, Issues: issues}
}

// Usable reports whether the result carries a value the next stage can consume.
func (r Result[T]) Usable() bool {
	return r.Kind != KindFailed
}
