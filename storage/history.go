package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"github.com/LucasAro/JuscashCase/domain"
)

type historyTable interface {
	AddEntity(ctx context.Context, entity []byte, options *aztables.AddEntityOptions) (aztables.AddEntityResponse, error)
	NewListEntitiesPager(listOptions *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse]
}

// History keeps one table row per committed status change, partitioned by
// publication id. Row keys sort newest first.
type History struct {
	table historyTable
}

// NewHistory connects to the named table.
func NewHistory(connStr, table string) (*History, error) {
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, tablesClientOptions())
	if err != nil {
		return nil, err
	}
	return &History{table: svc.NewClient(table)}, nil
}

type historyEntity struct {
	aztables.Entity
	ChangeID  string `json:"ChangeID"`
	From      string `json:"From"`
	To        string `json:"To"`
	UserID    string `json:"UserID"`
	ChangedAt string `json:"ChangedAt"`
}

func historyRowKey(ch domain.StatusChange) string {
	return fmt.Sprintf("%019d_%s", math.MaxInt64-ch.ChangedAt.UnixNano(), ch.ID)
}

// Record stores a change. Recording the same change twice is not an error.
func (h *History) Record(ctx context.Context, ch domain.StatusChange) error {
	ent := historyEntity{
		Entity: aztables.Entity{
			PartitionKey: strconv.FormatInt(ch.PublicationID, 10),
			RowKey:       historyRowKey(ch),
		},
		ChangeID:  ch.ID,
		From:      string(ch.From),
		To:        string(ch.To),
		UserID:    ch.UserID,
		ChangedAt: ch.ChangedAt.UTC().Format(time.RFC3339Nano),
	}
	data, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	if _, err := h.table.AddEntity(ctx, data, nil); err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.EntityAlreadyExists) {
			return nil
		}
		return err
	}
	return nil
}

// List returns the changes of one publication, newest first.
func (h *History) List(ctx context.Context, publicationID int64) ([]domain.StatusChange, error) {
	filter := "PartitionKey eq '" + strconv.FormatInt(publicationID, 10) + "'"
	pager := h.table.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	out := []domain.StatusChange{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			var ent historyEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				return nil, err
			}
			changedAt, _ := time.Parse(time.RFC3339Nano, ent.ChangedAt)
			out = append(out, domain.StatusChange{
				ID:            ent.ChangeID,
				PublicationID: publicationID,
				From:          domain.Status(ent.From),
				To:            domain.Status(ent.To),
				UserID:        ent.UserID,
				ChangedAt:     changedAt,
			})
		}
	}
	return out, nil
}
