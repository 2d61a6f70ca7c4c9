package domain

import (
	"fmt"
	"strings"
	"time"
)

// Publication is a legal case notice tracked on the board.
type Publication struct {
	ID                 int64     `json:"id"`
	Status             Status    `json:"status"`
	CaseNumber         string    `json:"caseNumber"`
	Claimants          string    `json:"claimants,omitempty"`
	Respondent         string    `json:"respondent,omitempty"`
	Counsel            string    `json:"counsel,omitempty"`
	PrincipalAmount    *string   `json:"principalAmount"`
	InterestAmount     *string   `json:"interestAmount"`
	AttorneyFeesAmount *string   `json:"attorneyFeesAmount"`
	PublicationDate    *Date     `json:"publicationDate"`
	SourceFile         string    `json:"sourceFile,omitempty"`
	Body               string    `json:"body,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

const dateLayout = "2006-01-02"

// Date is a calendar date without a time of day.
type Date struct {
	time.Time
}

// NewDate builds a Date at midnight UTC.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date in t's location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(raw string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(raw))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	return Date{t}, nil
}

func (d Date) String() string { return d.Format(dateLayout) }

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if len(s) > len(dateLayout) {
		// Timestamps written by older clients carry a time part.
		s = s[:len(dateLayout)]
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Filter constrains the publications shown on the board. Zero fields do not
// constrain anything.
type Filter struct {
	Search   string `json:"search,omitempty"`
	DateFrom *Date  `json:"dateFrom,omitempty"`
	DateTo   *Date  `json:"dateTo,omitempty"`
}

// Normalize trims the search text.
func (f Filter) Normalize() Filter {
	f.Search = strings.TrimSpace(f.Search)
	return f
}

// Equal compares two filters by value.
func (f Filter) Equal(o Filter) bool {
	return f.Search == o.Search && sameDate(f.DateFrom, o.DateFrom) && sameDate(f.DateTo, o.DateTo)
}

// Key is a stable textual form of the filter, used for cache keys.
func (f Filter) Key() string {
	var b strings.Builder
	b.WriteString("q=")
	b.WriteString(f.Search)
	if f.DateFrom != nil {
		b.WriteString("|from=")
		b.WriteString(f.DateFrom.String())
	}
	if f.DateTo != nil {
		b.WriteString("|to=")
		b.WriteString(f.DateTo.String())
	}
	return b.String()
}

func sameDate(a, b *Date) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(b.Time)
}

// Cursor tracks how far each board column has been paged.
type Cursor struct {
	Offsets map[Status]int `json:"offsets,omitempty"`
	Limit   int            `json:"limit"`
}

// Offset returns the offset for one status.
func (c Cursor) Offset(s Status) int {
	if c.Offsets == nil {
		return 0
	}
	return c.Offsets[s]
}

// Key is a stable textual form of the cursor, used for cache keys.
func (c Cursor) Key() string {
	var b strings.Builder
	fmt.Fprintf(&b, "limit=%d", c.Limit)
	for _, s := range Statuses {
		fmt.Fprintf(&b, "|%s=%d", s, c.Offset(s))
	}
	return b.String()
}

// Bucket is one status column of a fetched page.
type Bucket struct {
	Total   int           `json:"total"`
	Records []Publication `json:"records"`
}

// Page holds one bucket per status.
type Page map[Status]Bucket

// NewPage returns a page with an empty bucket for every status.
func NewPage() Page {
	p := make(Page, len(Statuses))
	for _, s := range Statuses {
		p[s] = Bucket{Records: []Publication{}}
	}
	return p
}

// SearchQuery is the flat lookup used outside the board.
type SearchQuery struct {
	CaseNumber string
	Date       *Date
	Status     *Status
	Party      string
}

// StatusChange records one committed move.
type StatusChange struct {
	ID            string    `json:"id"`
	PublicationID int64     `json:"publicationId"`
	From          Status    `json:"from"`
	To            Status    `json:"to"`
	UserID        string    `json:"userId,omitempty"`
	ChangedAt     time.Time `json:"changedAt"`
}
