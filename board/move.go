package board

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/LucasAro/JuscashCase/domain"
)

// ErrUpdating is returned for drag gestures made while a move is pending.
var ErrUpdating = errors.New("board: a move is already being saved")

// MoveState is the lifecycle of one move.
type MoveState int

const (
	MovePending MoveState = iota
	MoveCommitted
	MoveRolledBack
)

func (s MoveState) String() string {
	switch s {
	case MovePending:
		return "pending"
	case MoveCommitted:
		return "committed"
	case MoveRolledBack:
		return "rolled_back"
	default:
		return fmt.Sprintf("MoveState(%d)", int(s))
	}
}

// MoveRequest describes a drop: the card left From at FromIndex and was
// released on To at ToIndex.
type MoveRequest struct {
	ItemID    int64
	From      domain.Status
	FromIndex int
	To        domain.Status
	ToIndex   int
}

// Move is the outcome of one drop. Record holds the server copy once the move
// is committed; Err holds the cause of a rollback.
type Move struct {
	ID      string
	Request MoveRequest
	State   MoveState
	Record  domain.Publication
	Err     error
}

func (m *Move) commit(p domain.Publication) {
	m.State = MoveCommitted
	m.Record = p
}

func (m *Move) rollback(err error) {
	m.State = MoveRolledBack
	m.Err = err
}

// Move applies a drop. Reordering inside one column is local only. Moves
// across columns are checked against the workflow, applied optimistically and
// then saved; a failed save restores the source column exactly.
func (b *Board) Move(ctx context.Context, req MoveRequest) (*Move, error) {
	src, dst := req.From.Index(), req.To.Index()
	if src < 0 || dst < 0 {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidStatus, req.From, req.To)
	}
	m := &Move{ID: uuid.NewString(), Request: req, State: MovePending}

	b.mu.Lock()
	if b.updating {
		b.mu.Unlock()
		return nil, ErrUpdating
	}
	from := &b.columns[src]
	idx := req.FromIndex
	if idx < 0 || idx >= len(from.Items) || from.Items[idx].ID != req.ItemID {
		idx = from.indexOf(req.ItemID)
	}
	if idx < 0 {
		b.mu.Unlock()
		return nil, fmt.Errorf("%w: publication %d is not in %s", domain.ErrNotFound, req.ItemID, req.From)
	}

	if src == dst {
		p := from.remove(idx)
		from.insert(req.ToIndex, p)
		m.commit(p)
		b.mu.Unlock()
		return m, nil
	}

	if err := domain.CheckMove(req.From, req.To); err != nil {
		b.setNoticeLocked(noticeFor(err))
		b.mu.Unlock()
		return nil, err
	}

	original := from.remove(idx)
	from.Total--
	from.refresh()
	b.updating = true
	gen, loaded := b.generation, b.loaded
	b.mu.Unlock()

	updated, err := b.store.UpdateStatus(ctx, req.ItemID, req.To)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.updating = false
	fields := log.Fields{"move_id": m.ID, "publication_id": req.ItemID, "from": req.From, "to": req.To}
	if err != nil {
		m.rollback(err)
		if gen == b.generation {
			if from.indexOf(original.ID) < 0 {
				from.insert(idx, original)
			}
			// a load that settled meanwhile already counted the card
			if loaded == b.loaded {
				from.Total++
			}
			from.refresh()
		}
		b.err = err
		b.setNoticeLocked(noticeFor(err))
		b.log.WithFields(fields).WithError(err).Warn("move rolled back")
		return m, err
	}

	m.commit(updated)
	if gen == b.generation {
		to := &b.columns[dst]
		if i := to.indexOf(updated.ID); i >= 0 {
			to.remove(i)
			to.Total--
		}
		to.insert(req.ToIndex, updated)
		to.Total++
		to.refresh()
	}
	b.err = nil
	b.log.WithFields(fields).Debug("move committed")
	return m, nil
}
