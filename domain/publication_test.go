package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDateJSON(t *testing.T) {
	d := NewDate(2024, time.March, 7)
	data, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"2024-03-07"` {
		t.Fatalf("unexpected json: %s", data)
	}

	var parsed Date
	if err := json.Unmarshal([]byte(`"2024-03-07T00:00:00.000Z"`), &parsed); err != nil {
		t.Fatalf("unmarshal timestamp: %v", err)
	}
	if !parsed.Equal(d.Time) {
		t.Fatalf("expected %s, got %s", d, parsed)
	}

	if err := json.Unmarshal([]byte(`"07/03/2024"`), &parsed); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
}

func TestFilterEqualAndKey(t *testing.T) {
	from := NewDate(2024, time.January, 1)
	sameFrom := NewDate(2024, time.January, 1)
	a := Filter{Search: "1234", DateFrom: &from}
	b := Filter{Search: "1234", DateFrom: &sameFrom}
	if !a.Equal(b) {
		t.Fatalf("expected filters to be equal")
	}
	if a.Key() != b.Key() {
		t.Fatalf("expected equal keys, got %q and %q", a.Key(), b.Key())
	}
	if a.Equal(Filter{Search: "1234"}) {
		t.Fatalf("expected filters with different dates to differ")
	}
	if got := (Filter{Search: "  x "}).Normalize().Search; got != "x" {
		t.Fatalf("unexpected normalized search %q", got)
	}
}

func TestCursorKeyCoversEveryStatus(t *testing.T) {
	c := Cursor{Limit: 30, Offsets: map[Status]int{StatusRead: 30}}
	key := c.Key()
	for _, s := range Statuses {
		if !strings.Contains(key, string(s)+"=") {
			t.Fatalf("key %q misses %s", key, s)
		}
	}
	if c.Offset(StatusNew) != 0 || c.Offset(StatusRead) != 30 {
		t.Fatalf("unexpected offsets in %+v", c)
	}
}

func TestNewPageHasAllBuckets(t *testing.T) {
	p := NewPage()
	for _, s := range Statuses {
		b, ok := p[s]
		if !ok || b.Records == nil {
			t.Fatalf("missing bucket for %s", s)
		}
	}
}

func TestPasswordProblems(t *testing.T) {
	if problems := PasswordProblems("Str0ng!pass"); len(problems) != 0 {
		t.Fatalf("unexpected problems: %v", problems)
	}
	if problems := PasswordProblems("short"); len(problems) != 4 {
		t.Fatalf("expected 4 problems, got %v", problems)
	}
}

func TestNormalizeEmail(t *testing.T) {
	got, err := NormalizeEmail(" Ana@Example.com ")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got != "ana@example.com" {
		t.Fatalf("unexpected email %q", got)
	}
	for _, bad := range []string{"", "ana", "ana@host", "Ana <ana@example.com>"} {
		if _, err := NormalizeEmail(bad); err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}
