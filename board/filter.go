package board

import (
	"context"
	"sync"
	"time"

	"github.com/LucasAro/JuscashCase/domain"
)

// DefaultDebounce is the quiet period after the last filter edit.
const DefaultDebounce = 500 * time.Millisecond

// FilterController debounces filter edits into board resets.
type FilterController struct {
	board   *Board
	delay   time.Duration
	onError func(error)

	mu     sync.Mutex
	filter domain.Filter
	timer  *time.Timer
	seq    uint64
	closed bool
	wg     sync.WaitGroup
}

// NewFilterController creates a controller for b. onError receives failures
// of debounced loads; it may be nil.
func NewFilterController(b *Board, delay time.Duration, onError func(error)) *FilterController {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &FilterController{board: b, delay: delay, onError: onError}
}

// Filter returns the filter being edited.
func (c *FilterController) Filter() domain.Filter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter
}

// SetSearch updates the search text and restarts the debounce.
func (c *FilterController) SetSearch(text string) {
	c.edit(func(f *domain.Filter) { f.Search = text })
}

// SetDateFrom updates the lower date bound and restarts the debounce.
func (c *FilterController) SetDateFrom(d *domain.Date) {
	c.edit(func(f *domain.Filter) { f.DateFrom = d })
}

// SetDateTo updates the upper date bound and restarts the debounce.
func (c *FilterController) SetDateTo(d *domain.Date) {
	c.edit(func(f *domain.Filter) { f.DateTo = d })
}

// SetFilter replaces the whole filter and restarts the debounce.
func (c *FilterController) SetFilter(f domain.Filter) {
	c.edit(func(cur *domain.Filter) { *cur = f })
}

func (c *FilterController) edit(apply func(*domain.Filter)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	apply(&c.filter)
	if c.timer != nil {
		c.timer.Stop()
	}
	c.seq++
	seq := c.seq
	c.timer = time.AfterFunc(c.delay, func() { c.fire(seq) })
}

func (c *FilterController) fire(seq uint64) {
	c.mu.Lock()
	if c.closed || seq != c.seq {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	f := c.filter
	c.wg.Add(1)
	c.mu.Unlock()
	defer c.wg.Done()

	if err := c.board.ResetAndLoad(context.Background(), f); err != nil && c.onError != nil {
		c.onError(err)
	}
}

// Submit resets the board with the current filter right away, cancelling a
// pending debounce.
func (c *FilterController) Submit(ctx context.Context) error {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.seq++
	f := c.filter
	c.mu.Unlock()
	return c.board.ResetAndLoad(ctx, f)
}

// Close cancels a pending debounce and waits for a running reset.
func (c *FilterController) Close() {
	c.mu.Lock()
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.mu.Unlock()
	c.wg.Wait()
}
