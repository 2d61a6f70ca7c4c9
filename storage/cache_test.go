package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/LucasAro/JuscashCase/domain"
)

type stubBackend struct {
	fetchPageFn    func(ctx context.Context, f domain.Filter, c domain.Cursor) (domain.Page, error)
	fetchByIDFn    func(ctx context.Context, id int64) (domain.Publication, error)
	updateStatusFn func(ctx context.Context, id int64, to domain.Status) (domain.Publication, domain.Status, error)
	insertFn       func(ctx context.Context, p domain.Publication) (domain.Publication, error)
}

func (s *stubBackend) FetchPage(ctx context.Context, f domain.Filter, c domain.Cursor) (domain.Page, error) {
	if s.fetchPageFn == nil {
		return nil, errors.New("unexpected FetchPage call")
	}
	return s.fetchPageFn(ctx, f, c)
}

func (s *stubBackend) FetchByID(ctx context.Context, id int64) (domain.Publication, error) {
	if s.fetchByIDFn == nil {
		return domain.Publication{}, errors.New("unexpected FetchByID call")
	}
	return s.fetchByIDFn(ctx, id)
}

func (s *stubBackend) UpdateStatus(ctx context.Context, id int64, to domain.Status) (domain.Publication, domain.Status, error) {
	if s.updateStatusFn == nil {
		return domain.Publication{}, "", errors.New("unexpected UpdateStatus call")
	}
	return s.updateStatusFn(ctx, id, to)
}

func (s *stubBackend) InsertPublication(ctx context.Context, p domain.Publication) (domain.Publication, error) {
	if s.insertFn == nil {
		return domain.Publication{}, errors.New("unexpected InsertPublication call")
	}
	return s.insertFn(ctx, p)
}

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func testPage() domain.Page {
	page := domain.NewPage()
	page[domain.StatusNew] = domain.Bucket{
		Total:   1,
		Records: []domain.Publication{{ID: 7, Status: domain.StatusNew, CaseNumber: "123"}},
	}
	return page
}

func TestCacheFetchPageMissThenHit(t *testing.T) {
	_, client := newMiniredis(t)
	ctx := context.Background()

	var calls int
	cache := NewCache(&stubBackend{
		fetchPageFn: func(ctx context.Context, f domain.Filter, c domain.Cursor) (domain.Page, error) {
			calls++
			if f.Search != "123" {
				t.Fatalf("expected normalized search, got %q", f.Search)
			}
			return testPage(), nil
		},
	}, client, time.Minute)

	filter := domain.Filter{Search: " 123 "}
	for i := 0; i < 2; i++ {
		page, err := cache.FetchPage(ctx, filter, domain.Cursor{Limit: 30})
		if err != nil {
			t.Fatalf("fetch page: %v", err)
		}
		if got := page[domain.StatusNew].Records[0].CaseNumber; got != "123" {
			t.Fatalf("unexpected record: %#v", page[domain.StatusNew])
		}
	}
	if calls != 1 {
		t.Fatalf("expected 1 call to backend, got %d", calls)
	}

	if _, err := cache.FetchPage(ctx, filter, domain.Cursor{Limit: 30, Offsets: map[domain.Status]int{domain.StatusNew: 30}}); err != nil {
		t.Fatalf("fetch page: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected different cursor to miss, got %d calls", calls)
	}
}

func TestCacheUpdateStatusInvalidatesPages(t *testing.T) {
	mr, client := newMiniredis(t)
	ctx := context.Background()

	var pageCalls int
	cache := NewCache(&stubBackend{
		fetchPageFn: func(ctx context.Context, f domain.Filter, c domain.Cursor) (domain.Page, error) {
			pageCalls++
			return testPage(), nil
		},
		fetchByIDFn: func(ctx context.Context, id int64) (domain.Publication, error) {
			return domain.Publication{ID: id, Status: domain.StatusNew}, nil
		},
		updateStatusFn: func(ctx context.Context, id int64, to domain.Status) (domain.Publication, domain.Status, error) {
			return domain.Publication{ID: id, Status: to}, domain.StatusNew, nil
		},
	}, client, time.Minute)

	if _, err := cache.FetchPage(ctx, domain.Filter{}, domain.Cursor{}); err != nil {
		t.Fatalf("fetch page: %v", err)
	}
	if _, err := cache.FetchByID(ctx, 7); err != nil {
		t.Fatalf("fetch by id: %v", err)
	}
	if !mr.Exists(recordCacheKey(7)) {
		t.Fatalf("expected record to be cached")
	}

	if _, _, err := cache.UpdateStatus(ctx, 7, domain.StatusRead); err != nil {
		t.Fatalf("update status: %v", err)
	}
	if mr.Exists(recordCacheKey(7)) {
		t.Fatalf("expected record cache entry to be evicted")
	}
	if v, _ := mr.Get(boardVersionKey); v != "1" {
		t.Fatalf("expected board version 1, got %q", v)
	}

	if _, err := cache.FetchPage(ctx, domain.Filter{}, domain.Cursor{}); err != nil {
		t.Fatalf("fetch page: %v", err)
	}
	if pageCalls != 2 {
		t.Fatalf("expected page to be reloaded after update, got %d calls", pageCalls)
	}
}

func TestCacheUpdateStatusFailureKeepsEntries(t *testing.T) {
	mr, client := newMiniredis(t)
	ctx := context.Background()

	cache := NewCache(&stubBackend{
		updateStatusFn: func(ctx context.Context, id int64, to domain.Status) (domain.Publication, domain.Status, error) {
			return domain.Publication{}, domain.StatusRead, domain.ErrInvalidTransition
		},
	}, client, time.Minute)

	if _, _, err := cache.UpdateStatus(ctx, 1, domain.StatusDone); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if mr.Exists(boardVersionKey) {
		t.Fatalf("board version must not change on failed updates")
	}
}

func TestCacheWithoutRedisPassesThrough(t *testing.T) {
	var calls int
	cache := NewCache(&stubBackend{
		fetchPageFn: func(ctx context.Context, f domain.Filter, c domain.Cursor) (domain.Page, error) {
			calls++
			return testPage(), nil
		},
	}, nil, time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := cache.FetchPage(context.Background(), domain.Filter{}, domain.Cursor{}); err != nil {
			t.Fatalf("fetch page: %v", err)
		}
	}
	if calls != 2 {
		t.Fatalf("expected every call to reach the backend, got %d", calls)
	}
}

func TestCacheCorruptEntryFallsBack(t *testing.T) {
	mr, client := newMiniredis(t)
	if err := mr.Set(recordCacheKey(3), "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	cache := NewCache(&stubBackend{
		fetchByIDFn: func(ctx context.Context, id int64) (domain.Publication, error) {
			return domain.Publication{ID: id, CaseNumber: "fresh"}, nil
		},
	}, client, time.Minute)

	p, err := cache.FetchByID(context.Background(), 3)
	if err != nil {
		t.Fatalf("fetch by id: %v", err)
	}
	if p.CaseNumber != "fresh" {
		t.Fatalf("expected backend record, got %#v", p)
	}
}
