// Package board keeps the client side state of the publications Kanban: four
// paginated status columns, the active filter and the moves in flight.
package board

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/LucasAro/JuscashCase/domain"
)

const (
	DefaultPageSize  = 30
	DefaultNoticeTTL = 3 * time.Second
)

// Store is the record store the board reads from and writes moves to.
type Store interface {
	FetchPage(ctx context.Context, f domain.Filter, c domain.Cursor) (domain.Page, error)
	UpdateStatus(ctx context.Context, id int64, to domain.Status) (domain.Publication, error)
}

// Column is one status column. HasMore is true while fewer items are loaded
// than the server reported for the current filter.
type Column struct {
	Status  domain.Status
	Items   []domain.Publication
	Total   int
	HasMore bool
}

func (c *Column) refresh() {
	c.HasMore = len(c.Items) < c.Total
}

func (c *Column) indexOf(id int64) int {
	for i, p := range c.Items {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func (c *Column) insert(i int, p domain.Publication) {
	if i < 0 || i > len(c.Items) {
		i = len(c.Items)
	}
	c.Items = append(c.Items, domain.Publication{})
	copy(c.Items[i+1:], c.Items[i:])
	c.Items[i] = p
}

func (c *Column) remove(i int) domain.Publication {
	p := c.Items[i]
	c.Items = append(c.Items[:i], c.Items[i+1:]...)
	return p
}

func (c Column) clone() Column {
	out := c
	out.Items = append([]domain.Publication(nil), c.Items...)
	return out
}

// Options tunes a Board.
type Options struct {
	PageSize  int
	NoticeTTL time.Duration
	Logger    *log.Logger
}

// Board owns the four columns. All methods are safe for concurrent use; store
// calls are made without holding the state lock.
type Board struct {
	store     Store
	pageSize  int
	noticeTTL time.Duration
	log       *log.Logger

	// replace is set by ResetAndLoad until a load for the new filter
	// succeeds; the old columns stay visible meanwhile. loaded counts
	// settled loads.
	mu         sync.Mutex
	columns    [len(domain.Statuses)]Column
	filter     domain.Filter
	generation uint64
	replace    bool
	loaded     uint64
	loading    bool
	armed      bool
	updating   bool
	err        error

	notice      string
	noticeSeq   uint64
	noticeTimer *time.Timer

	loads singleflight.Group
}

// New creates an empty board. Call Mount to perform the first load.
func New(store Store, opts Options) *Board {
	if store == nil {
		panic("board.New: store is nil")
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.NoticeTTL <= 0 {
		opts.NoticeTTL = DefaultNoticeTTL
	}
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	b := &Board{
		store:     store,
		pageSize:  opts.PageSize,
		noticeTTL: opts.NoticeTTL,
		log:       opts.Logger,
	}
	b.clearLocked()
	return b
}

func (b *Board) clearLocked() {
	for i, s := range domain.Statuses {
		b.columns[i] = Column{Status: s, Items: []domain.Publication{}}
	}
}

// Mount performs the initial load with the current filter.
func (b *Board) Mount(ctx context.Context) error {
	b.mu.Lock()
	f := b.filter
	b.mu.Unlock()
	return b.ResetAndLoad(ctx, f)
}

// ResetAndLoad installs the filter and loads the first page, which replaces
// every column once it arrives. A failed load leaves the previous columns in
// place. Results of loads started for an older filter are discarded.
func (b *Board) ResetAndLoad(ctx context.Context, f domain.Filter) error {
	b.mu.Lock()
	b.generation++
	b.filter = f.Normalize()
	b.replace = true
	b.armed = false
	gen := b.generation
	b.mu.Unlock()

	return b.load(ctx, gen)
}

// LoadMore fetches the next page of every column. It is a no-op when no
// column has more records; callers arriving while a load is in flight share
// its result.
func (b *Board) LoadMore(ctx context.Context) error {
	b.mu.Lock()
	if !b.loading && !b.replace && !b.hasMoreLocked() {
		b.mu.Unlock()
		return nil
	}
	gen := b.generation
	b.mu.Unlock()

	return b.load(ctx, gen)
}

// SentinelVisible reports that the end of the board scrolled into view. The
// signal is ignored while loading, when nothing is left to load, or until the
// previous load succeeded.
func (b *Board) SentinelVisible(ctx context.Context) error {
	b.mu.Lock()
	if !b.armed || b.loading || !b.hasMoreLocked() {
		b.mu.Unlock()
		return nil
	}
	b.armed = false
	b.mu.Unlock()

	return b.LoadMore(ctx)
}

func (b *Board) load(ctx context.Context, gen uint64) error {
	_, err, _ := b.loads.Do(strconv.FormatUint(gen, 10), func() (any, error) {
		return nil, b.fetch(ctx, gen)
	})
	return err
}

func (b *Board) fetch(ctx context.Context, gen uint64) error {
	b.mu.Lock()
	if gen != b.generation {
		b.mu.Unlock()
		return nil
	}
	f := b.filter
	cur := b.cursorLocked()
	b.loading = true
	b.mu.Unlock()

	page, err := b.store.FetchPage(ctx, f, cur)

	b.mu.Lock()
	defer b.mu.Unlock()
	if gen != b.generation {
		b.log.WithField("generation", gen).Debug("discarding stale board page")
		return nil
	}
	b.loading = false
	if err != nil {
		b.err = err
		b.armed = false
		b.log.WithError(err).Warn("board load failed")
		return err
	}
	b.err = nil
	if b.replace {
		b.clearLocked()
		b.replace = false
	}
	for i, s := range domain.Statuses {
		bucket, ok := page[s]
		if !ok {
			continue
		}
		col := &b.columns[i]
		for _, p := range bucket.Records {
			if col.indexOf(p.ID) >= 0 {
				continue
			}
			col.Items = append(col.Items, p)
		}
		col.Total = bucket.Total
		col.refresh()
	}
	b.loaded++
	b.armed = true
	return nil
}

// cursorLocked derives the next page request: each column continues after
// the records it already holds, or starts over while a reset is pending.
func (b *Board) cursorLocked() domain.Cursor {
	c := domain.Cursor{Limit: b.pageSize, Offsets: make(map[domain.Status]int, len(b.columns))}
	for _, col := range b.columns {
		if b.replace {
			c.Offsets[col.Status] = 0
			continue
		}
		c.Offsets[col.Status] = len(col.Items)
	}
	return c
}

func (b *Board) hasMoreLocked() bool {
	for _, col := range b.columns {
		if col.HasMore {
			return true
		}
	}
	return false
}

// View is a consistent copy of the board state.
type View struct {
	Columns  [len(domain.Statuses)]Column
	Filter   domain.Filter
	Loading  bool
	Updating bool
	Err      error
	Notice   string
}

// Column returns the column of the given status.
func (v View) Column(s domain.Status) Column {
	if i := s.Index(); i >= 0 {
		return v.Columns[i]
	}
	return Column{}
}

// HasMore reports whether any column can load more records.
func (v View) HasMore() bool {
	for _, c := range v.Columns {
		if c.HasMore {
			return true
		}
	}
	return false
}

// Snapshot copies the current state.
func (b *Board) Snapshot() View {
	b.mu.Lock()
	defer b.mu.Unlock()
	v := View{
		Filter:   b.filter,
		Loading:  b.loading,
		Updating: b.updating,
		Err:      b.err,
		Notice:   b.notice,
	}
	for i, c := range b.columns {
		v.Columns[i] = c.clone()
	}
	return v
}

// Notice returns the transient message shown to the user, if any.
func (b *Board) Notice() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.notice
}

func (b *Board) setNoticeLocked(msg string) {
	if b.noticeTimer != nil {
		b.noticeTimer.Stop()
	}
	b.noticeSeq++
	seq := b.noticeSeq
	b.notice = msg
	b.noticeTimer = time.AfterFunc(b.noticeTTL, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.noticeSeq == seq {
			b.notice = ""
			b.noticeTimer = nil
		}
	})
}

// Close stops the notice timer.
func (b *Board) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.noticeTimer != nil {
		b.noticeTimer.Stop()
		b.noticeTimer = nil
	}
}

func noticeFor(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidTransition):
		return "Movimento não permitido"
	case errors.Is(err, domain.ErrNotFound):
		return "Publicação não encontrada"
	default:
		return fmt.Sprintf("Falha ao atualizar status: %v", err)
	}
}
