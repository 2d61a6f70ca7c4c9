package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Status is the workflow stage of a publication.
type Status string

const (
	StatusNew       Status = "new"
	StatusRead      Status = "read"
	StatusProcessed Status = "processed"
	StatusDone      Status = "done"
)

// Statuses lists every status in workflow order.
var Statuses = [...]Status{StatusNew, StatusRead, StatusProcessed, StatusDone}

// legacyStatuses maps the values written by the ingestion pipeline before the
// board existed onto the canonical set.
var legacyStatuses = map[string]Status{
	"nova":       StatusNew,
	"lida":       StatusRead,
	"processada": StatusProcessed,
	"concluída":  StatusDone,
	"concluida":  StatusDone,
}

// ParseStatus accepts canonical and legacy values, case-insensitively.
func ParseStatus(raw string) (Status, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	for _, s := range Statuses {
		if string(s) == v {
			return s, nil
		}
	}
	if s, ok := legacyStatuses[v]; ok {
		return s, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
}

// Index returns the position of s in the workflow, or -1 for unknown values.
func (s Status) Index() int {
	for i, v := range Statuses {
		if v == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is part of the workflow.
func (s Status) Valid() bool { return s.Index() >= 0 }

// StoredValues returns every value that may represent s in the records table.
func (s Status) StoredValues() []string {
	out := []string{string(s)}
	for legacy, canonical := range legacyStatuses {
		if canonical == s {
			out = append(out, legacy)
		}
	}
	sort.Strings(out[1:])
	return out
}

// IsValidMove reports whether a card may move from src to dst.
//
// A card may advance at most one column. The only backward move allowed is
// processed -> read. Reordering inside one column never goes through here.
func IsValidMove(src, dst Status) bool {
	si, di := src.Index(), dst.Index()
	if si < 0 || di < 0 {
		return false
	}
	if di < si && !(src == StatusProcessed && dst == StatusRead) {
		return false
	}
	return di-si <= 1
}

// CheckMove is IsValidMove with an error describing the rejected pair.
func CheckMove(src, dst Status) error {
	if IsValidMove(src, dst) {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, src, dst)
}
