package domain

import (
	"errors"
	"testing"
)

func TestIsValidMoveTable(t *testing.T) {
	// rows: source, columns: destination, in workflow order
	want := [4][4]bool{
		{true, true, false, false},
		{false, true, true, false},
		{false, true, true, true},
		{false, false, false, true},
	}
	for i, src := range Statuses {
		for j, dst := range Statuses {
			if got := IsValidMove(src, dst); got != want[i][j] {
				t.Fatalf("IsValidMove(%s, %s) = %v, want %v", src, dst, got, want[i][j])
			}
		}
	}
}

func TestIsValidMoveUnknownStatus(t *testing.T) {
	if IsValidMove("archived", StatusNew) {
		t.Fatalf("expected unknown source to be rejected")
	}
	if IsValidMove(StatusNew, "") {
		t.Fatalf("expected unknown destination to be rejected")
	}
}

func TestCheckMoveWrapsSentinel(t *testing.T) {
	err := CheckMove(StatusRead, StatusDone)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if err := CheckMove(StatusProcessed, StatusRead); err != nil {
		t.Fatalf("processed -> read should be allowed: %v", err)
	}
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want Status
	}{
		{raw: "new", want: StatusNew},
		{raw: " READ ", want: StatusRead},
		{raw: "processada", want: StatusProcessed},
		{raw: "Concluída", want: StatusDone},
		{raw: "concluida", want: StatusDone},
		{raw: "nova", want: StatusNew},
	}
	for _, tt := range tests {
		got, err := ParseStatus(tt.raw)
		if err != nil {
			t.Fatalf("ParseStatus(%q): %v", tt.raw, err)
		}
		if got != tt.want {
			t.Fatalf("ParseStatus(%q) = %s, want %s", tt.raw, got, tt.want)
		}
	}

	if _, err := ParseStatus("archived"); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestStoredValues(t *testing.T) {
	got := StatusDone.StoredValues()
	want := []string{"done", "concluida", "concluída"}
	if len(got) != len(want) {
		t.Fatalf("unexpected stored values: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("stored values = %v, want %v", got, want)
		}
	}
}
