// Package render formats the board and publication cards for the terminal.
package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/LucasAro/JuscashCase/domain"
)

const dateLayout = "02/01/2006"

// TimeFromNow is the card age label: "agora" under a minute, then whole
// minutes, hours or days.
func TimeFromNow(t time.Time) string {
	return TimeFrom(t, time.Now())
}

// TimeFrom is TimeFromNow against a fixed reference time.
func TimeFrom(t, now time.Time) string {
	diff := now.Sub(t)
	switch {
	case diff >= 24*time.Hour:
		return fmt.Sprintf("%dd", int(diff/(24*time.Hour)))
	case diff >= time.Hour:
		return fmt.Sprintf("%dh", int(diff/time.Hour))
	case diff >= time.Minute:
		return fmt.Sprintf("%dm", int(diff/time.Minute))
	default:
		return "agora"
	}
}

// Date renders DD/MM/YYYY, or N/A for a missing date.
func Date(d *domain.Date) string {
	if d == nil || d.IsZero() {
		return "N/A"
	}
	return d.Format(dateLayout)
}

// Timestamp renders the calendar part of t as DD/MM/YYYY.
func Timestamp(t time.Time) string {
	if t.IsZero() {
		return "N/A"
	}
	return t.Format(dateLayout)
}

// Field returns N/A for blank text.
func Field(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

// Amount renders a monetary value in reais.
func Amount(v *string) string {
	if v == nil || strings.TrimSpace(*v) == "" {
		return "R$ N/A"
	}
	return "R$ " + *v
}

// ColumnTitle is the heading shown above a status column.
func ColumnTitle(s domain.Status) string {
	switch s {
	case domain.StatusNew:
		return "Nova Publicação"
	case domain.StatusRead:
		return "Publicação Lida"
	case domain.StatusProcessed:
		return "Enviar para o Advogado Responsável"
	case domain.StatusDone:
		return "Concluído"
	default:
		return string(s)
	}
}

func truncate(s string, width int) string {
	r := []rune(s)
	if width <= 0 || len(r) <= width {
		return s
	}
	if width == 1 {
		return "…"
	}
	return string(r[:width-1]) + "…"
}
