// Package search implements a debounced incremental search controller over a
// pluggable search function, plus a local token index usable as one.
package search

import (
	"context"
	"log"
	"strings"
	"time"
)

// Defaults.
const (
	DefaultMinQueryLength = 1
	DefaultDebounce       = 150 * time.Millisecond

	// BlurDelay is the grace period before a blur closes the panel, so a click on
	// a result row (blur first, then click) still lands.
	BlurDelay = 200 * time.Millisecond
)

// ScoredResult is one hit returned by a search function.
type ScoredResult[T any] struct {
	ID            string   `json:"id"`
	Item          T        `json:"item"`
	MatchedFields []string `json:"matchedFields"`
	Score         float64  `json:"score"`
}

// SearchFunc resolves a query to ranked results. It may block; the controller
// calls it off the caller's goroutine.
type SearchFunc[T any] func(ctx context.Context, query string) ([]ScoredResult[T], error)

// State is a snapshot of the controller's observable state.
type State[T any] struct {
	Query         string            `json:"query"`
	Results       []ScoredResult[T] `json:"results"`
	IsLoading     bool              `json:"isLoading"`
	IsOpen        bool              `json:"isOpen"`
	SelectedIndex int               `json:"selectedIndex"` // -1 means no selection
	HasSearched   bool              `json:"hasSearched"`
}

func initialState[T any]() State[T] {
	return State[T]{
		Results:       []ScoredResult[T]{},
		SelectedIndex: -1,
	}
}

// clone returns a copy whose Results slice is not shared with the controller.
func (s State[T]) clone() State[T] {
	out := s
	out.Results = make([]ScoredResult[T], len(s.Results))
	copy(out.Results, s.Results)
	return out
}

// Config configures a Controller. Only Search is required.
type Config[T any] struct {
	Search SearchFunc[T]

	// MinQueryLength is measured in runes. Shorter queries clear results.
	MinQueryLength int
	// MaxResults truncates results; 0 means unbounded.
	MaxResults int
	// Debounce is the idle time after the last input before a search runs.
	Debounce time.Duration
	// ShowResultsOnFocus reopens the panel on focus once a search has run.
	ShowResultsOnFocus bool

	// OnSelect is called with the chosen result, outside the controller lock.
	OnSelect func(ScoredResult[T])
	// OnChange receives a snapshot after every state change, in order.
	// It must not call back into the controller.
	OnChange func(State[T])

	Logger *log.Logger
}

func (c Config[T]) withDefaults() Config[T] {
	if c.MinQueryLength <= 0 {
		c.MinQueryLength = DefaultMinQueryLength
	}
	if c.MaxResults < 0 {
		c.MaxResults = 0
	}
	if c.Debounce <= 0 {
		c.Debounce = DefaultDebounce
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	return c
}

// Key is a navigation key understood by KeyDown.
type Key int

// Keys.
const (
	KeyOther Key = iota
	KeyArrowDown
	KeyArrowUp
	KeyEnter
	KeyEscape
)

// ParseKey maps DOM key names to Keys. Unknown names return KeyOther.
func ParseKey(name string) Key {
	switch strings.ToLower(name) {
	case "arrowdown", "down":
		return KeyArrowDown
	case "arrowup", "up":
		return KeyArrowUp
	case "enter":
		return KeyEnter
	case "escape", "esc":
		return KeyEscape
	default:
		return KeyOther
	}
}

func (k Key) String() string {
	switch k {
	case KeyArrowDown:
		return "ArrowDown"
	case KeyArrowUp:
		return "ArrowUp"
	case KeyEnter:
		return "Enter"
	case KeyEscape:
		return "Escape"
	default:
		return "Other"
	}
}

// timer is the cancellable handle of a scheduled callback.
type timer interface {
	Stop() bool
}

type scheduleFunc func(d time.Duration, f func()) timer

func afterFunc(d time.Duration, f func()) timer {
	return time.AfterFunc(d, f)
}
