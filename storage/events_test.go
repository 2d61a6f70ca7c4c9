package storage

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"github.com/LucasAro/JuscashCase/domain"
)

type fakeTable struct {
	mu   sync.Mutex
	rows map[string][]byte
}

func newFakeTable() *fakeTable {
	return &fakeTable{rows: map[string][]byte{}}
}

func (f *fakeTable) AddEntity(ctx context.Context, entity []byte, _ *aztables.AddEntityOptions) (aztables.AddEntityResponse, error) {
	var ent aztables.Entity
	if err := json.Unmarshal(entity, &ent); err != nil {
		return aztables.AddEntityResponse{}, err
	}
	key := ent.PartitionKey + "|" + ent.RowKey
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[key]; ok {
		return aztables.AddEntityResponse{}, &azcore.ResponseError{ErrorCode: string(aztables.EntityAlreadyExists), StatusCode: 409}
	}
	f.rows[key] = entity
	return aztables.AddEntityResponse{}, nil
}

func (f *fakeTable) NewListEntitiesPager(opts *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse] {
	partition := ""
	if opts != nil && opts.Filter != nil {
		partition = strings.TrimSuffix(strings.TrimPrefix(*opts.Filter, "PartitionKey eq '"), "'")
	}

	f.mu.Lock()
	keys := make([]string, 0, len(f.rows))
	for k := range f.rows {
		if strings.HasPrefix(k, partition+"|") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	entities := make([][]byte, 0, len(keys))
	for _, k := range keys {
		entities = append(entities, f.rows[k])
	}
	f.mu.Unlock()

	done := false
	return runtime.NewPager(runtime.PagingHandler[aztables.ListEntitiesResponse]{
		More: func(aztables.ListEntitiesResponse) bool { return !done },
		Fetcher: func(ctx context.Context, _ *aztables.ListEntitiesResponse) (aztables.ListEntitiesResponse, error) {
			done = true
			return aztables.ListEntitiesResponse{Entities: entities}, nil
		},
	})
}

func TestHistoryRecordAndListNewestFirst(t *testing.T) {
	table := newFakeTable()
	h := &History{table: table}
	ctx := context.Background()

	base := time.Date(2024, time.May, 1, 9, 0, 0, 0, time.UTC)
	changes := []domain.StatusChange{
		{ID: "a", PublicationID: 5, From: domain.StatusNew, To: domain.StatusRead, UserID: "1", ChangedAt: base},
		{ID: "b", PublicationID: 5, From: domain.StatusRead, To: domain.StatusProcessed, UserID: "1", ChangedAt: base.Add(time.Hour)},
		{ID: "c", PublicationID: 6, From: domain.StatusNew, To: domain.StatusRead, ChangedAt: base},
	}
	for _, ch := range changes {
		if err := h.Record(ctx, ch); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if err := h.Record(ctx, changes[0]); err != nil {
		t.Fatalf("recording a duplicate should be ignored: %v", err)
	}

	got, err := h.List(ctx, 5)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 changes, got %d", len(got))
	}
	if got[0].ID != "b" || got[1].ID != "a" {
		t.Fatalf("expected newest first, got %s then %s", got[0].ID, got[1].ID)
	}
	if !got[0].ChangedAt.Equal(changes[1].ChangedAt) || got[0].To != domain.StatusProcessed {
		t.Fatalf("unexpected change: %#v", got[0])
	}
}

type fakeQueue struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (f *fakeQueue) EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return azqueue.EnqueueMessagesResponse{}, f.err
	}
	f.messages = append(f.messages, content)
	return azqueue.EnqueueMessagesResponse{}, nil
}

func TestEventQueueRecord(t *testing.T) {
	q := &fakeQueue{}
	eq := &EventQueue{queue: q}

	ch := domain.StatusChange{ID: "evt-1", PublicationID: 9, From: domain.StatusProcessed, To: domain.StatusDone, ChangedAt: time.Now()}
	if err := eq.Record(context.Background(), ch); err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(q.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(q.messages))
	}

	var env struct {
		Type string              `json:"type"`
		Data domain.StatusChange `json:"data"`
	}
	if err := json.Unmarshal([]byte(q.messages[0]), &env); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if env.Type != StatusChangedEvent || env.Data.PublicationID != 9 || env.Data.To != domain.StatusDone {
		t.Fatalf("unexpected envelope: %#v", env)
	}

	q.err = errors.New("queue down")
	if err := eq.Record(context.Background(), ch); err == nil {
		t.Fatalf("expected enqueue error to propagate")
	}
}
