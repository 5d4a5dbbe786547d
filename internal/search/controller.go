package search

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"token-find/internal/observability"
)

// ErrNoSearchFunc is returned by NewController when Config.Search is nil.
var ErrNoSearchFunc = errors.New("search: Config.Search is required")

// Controller turns input events into debounced calls to a SearchFunc and keeps
// a navigable result list. All methods are safe for concurrent use.
//
// Every dispatched search carries a sequence number; a resolution is applied
// only if no later search was dispatched and the state was not cleared since.
type Controller[T any] struct {
	cfg      Config[T]
	schedule scheduleFunc

	mu          sync.Mutex
	state       State[T]
	debounce    timer
	debounceGen uint64
	blur        timer
	blurGen     uint64
	seq         uint64
	closed      bool

	// notifyMu is taken before mu is released so OnChange sees mutations in order.
	notifyMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
}

// NewController creates a controller with defaults applied to cfg.
func NewController[T any](cfg Config[T]) (*Controller[T], error) {
	if cfg.Search == nil {
		return nil, ErrNoSearchFunc
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller[T]{
		cfg:      cfg.withDefaults(),
		schedule: afterFunc,
		state:    initialState[T](),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// State returns a snapshot of the current state.
func (c *Controller[T]) State() State[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// InputChange stores text as the live query, clears the selection and restarts
// the debounce timer. Only the timer of the latest call can fire.
func (c *Controller[T]) InputChange(text string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.state.Query = text
	c.state.SelectedIndex = -1

	c.stopDebounceLocked()
	gen := c.debounceGen
	c.debounce = c.schedule(c.cfg.Debounce, func() { c.fireDebounce(gen) })

	c.unlockAndNotify()
}

// fireDebounce runs when the debounce timer of generation gen expires. The
// search runs inline on the timer goroutine.
func (c *Controller[T]) fireDebounce(gen uint64) {
	c.mu.Lock()
	if c.closed || c.debounceGen != gen {
		c.mu.Unlock()
		return
	}
	c.debounce = nil
	c.seq++
	seq := c.seq
	query := c.state.Query

	if utf8.RuneCountInString(query) < c.cfg.MinQueryLength {
		c.state.Results = []ScoredResult[T]{}
		c.state.IsLoading = false
		c.state.IsOpen = false
		c.state.HasSearched = false
		c.state.SelectedIndex = -1
		observability.RecordSearchShortQuery()
		c.unlockAndNotify()
		return
	}

	c.state.IsLoading = true
	ctx := c.ctx
	c.unlockAndNotify()

	results, err := c.runSearch(ctx, query)
	c.resolve(seq, query, results, err)
}

// runSearch calls the search function, converting a panic into an error.
func (c *Controller[T]) runSearch(ctx context.Context, query string) (results []ScoredResult[T], err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			results = nil
			err = fmt.Errorf("search function panicked: %v", r)
		}
		observability.RecordSearchDispatched(time.Since(start).Seconds(), err)
	}()
	return c.cfg.Search(ctx, query)
}

// resolve applies the outcome of search seq. Failures become an empty result set.
func (c *Controller[T]) resolve(seq uint64, query string, results []ScoredResult[T], err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if seq != c.seq {
		c.mu.Unlock()
		observability.RecordSearchStale()
		return
	}

	if err != nil {
		c.cfg.Logger.Printf("[search] query %q failed: %v", query, err)
		results = nil
	}
	if c.cfg.MaxResults > 0 && len(results) > c.cfg.MaxResults {
		results = results[:c.cfg.MaxResults]
	}

	c.state.Results = make([]ScoredResult[T], len(results))
	copy(c.state.Results, results)
	c.state.IsLoading = false
	c.state.IsOpen = true
	c.state.HasSearched = true
	c.state.SelectedIndex = -1

	c.unlockAndNotify()
}

// ResultClick closes the panel and reports result to OnSelect. The query is kept.
func (c *Controller[T]) ResultClick(result ScoredResult[T]) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.selectLocked(result)
}

// selectLocked closes the panel, releases mu and calls OnSelect. Caller holds c.mu.
func (c *Controller[T]) selectLocked(result ScoredResult[T]) {
	c.state.IsOpen = false
	c.state.SelectedIndex = -1
	onSelect := c.cfg.OnSelect
	c.unlockAndNotify()

	if onSelect != nil {
		onSelect(result)
	}
}

// Clear resets the state to its initial values and discards any pending or
// in-flight search.
func (c *Controller[T]) Clear() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.stopDebounceLocked()
	c.seq++
	c.state = initialState[T]()
	c.unlockAndNotify()
}

// Focus reopens the panel when ShowResultsOnFocus is set and a search has run.
func (c *Controller[T]) Focus() {
	c.mu.Lock()
	if c.closed || !c.cfg.ShowResultsOnFocus || !c.state.HasSearched || c.state.IsOpen {
		c.mu.Unlock()
		return
	}
	c.state.IsOpen = true
	c.unlockAndNotify()
}

// Blur closes the panel after BlurDelay.
func (c *Controller[T]) Blur() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.stopBlurLocked()
	gen := c.blurGen
	c.blur = c.schedule(BlurDelay, func() { c.fireBlur(gen) })
}

func (c *Controller[T]) fireBlur(gen uint64) {
	c.mu.Lock()
	if c.closed || c.blurGen != gen {
		c.mu.Unlock()
		return
	}
	c.blur = nil
	if !c.state.IsOpen {
		c.mu.Unlock()
		return
	}
	c.state.IsOpen = false
	c.unlockAndNotify()
}

// KeyDown handles list navigation while the panel is open with results.
// It reports whether the key was consumed.
func (c *Controller[T]) KeyDown(key Key) bool {
	c.mu.Lock()
	n := len(c.state.Results)
	if c.closed || !c.state.IsOpen || n == 0 {
		c.mu.Unlock()
		return false
	}

	switch key {
	case KeyArrowDown:
		if c.state.SelectedIndex < n-1 {
			c.state.SelectedIndex++
		}
	case KeyArrowUp:
		if c.state.SelectedIndex > -1 {
			c.state.SelectedIndex--
		}
	case KeyEnter:
		if c.state.SelectedIndex < 0 {
			c.mu.Unlock()
			return false
		}
		c.selectLocked(c.state.Results[c.state.SelectedIndex])
		return true
	case KeyEscape:
		c.state.IsOpen = false
		c.state.SelectedIndex = -1
	default:
		c.mu.Unlock()
		return false
	}

	c.unlockAndNotify()
	return true
}

// Close stops all timers and cancels in-flight searches. Later calls and late
// resolutions are ignored.
func (c *Controller[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.stopDebounceLocked()
	c.stopBlurLocked()
	c.cancel()
}

func (c *Controller[T]) stopDebounceLocked() {
	if c.debounce != nil {
		c.debounce.Stop()
		c.debounce = nil
	}
	c.debounceGen++
}

func (c *Controller[T]) stopBlurLocked() {
	if c.blur != nil {
		c.blur.Stop()
		c.blur = nil
	}
	c.blurGen++
}

// unlockAndNotify publishes a snapshot to OnChange and releases c.mu.
// Caller holds c.mu.
func (c *Controller[T]) unlockAndNotify() {
	onChange := c.cfg.OnChange
	if onChange == nil {
		c.mu.Unlock()
		return
	}
	snapshot := c.state.clone()
	c.notifyMu.Lock()
	c.mu.Unlock()
	defer c.notifyMu.Unlock()
	onChange(snapshot)
}
