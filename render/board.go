package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/LucasAro/JuscashCase/board"
	"github.com/LucasAro/JuscashCase/domain"
)

var (
	colorBlue   = lipgloss.Color("#83a598")
	colorYellow = lipgloss.Color("#fabd2f")
	colorRed    = lipgloss.Color("#fb4934")
	colorGreen  = lipgloss.Color("#8ec07c")
	colorDim    = lipgloss.Color("#928374")
	colorFg     = lipgloss.Color("#ebdbb2")
	colorHeader = lipgloss.Color("#fe8019")
)

var (
	styleHeader = lipgloss.NewStyle().Foreground(colorHeader).Bold(true)
	styleBold   = lipgloss.NewStyle().Foreground(colorFg).Bold(true)
	styleDim    = lipgloss.NewStyle().Foreground(colorDim)
	styleRed    = lipgloss.NewStyle().Foreground(colorRed)
	styleYellow = lipgloss.NewStyle().Foreground(colorYellow)
)

// MinColumnWidth is the narrowest column Board will draw.
const MinColumnWidth = 24

func statusColor(s domain.Status) lipgloss.Color {
	switch s {
	case domain.StatusNew:
		return colorBlue
	case domain.StatusRead:
		return colorYellow
	case domain.StatusProcessed:
		return colorHeader
	case domain.StatusDone:
		return colorGreen
	default:
		return colorDim
	}
}

// Board draws the four columns side by side within width cells, followed by
// the loading state, the transient notice and the last error.
func Board(v board.View, width int, now time.Time) string {
	colWidth := width/len(domain.Statuses) - 1
	if colWidth < MinColumnWidth {
		colWidth = MinColumnWidth
	}

	cols := make([]string, 0, len(domain.Statuses))
	for _, s := range domain.Statuses {
		cols = append(cols, column(v.Column(s), colWidth, now))
	}
	out := lipgloss.JoinHorizontal(lipgloss.Top, cols...)

	var footer []string
	if f := FilterLine(v.Filter); f != "" {
		footer = append(footer, styleDim.Render(f))
	}
	switch {
	case v.Loading:
		footer = append(footer, styleDim.Render("Carregando..."))
	case v.HasMore():
		footer = append(footer, styleDim.Render("Há mais registros, use --pages para carregar."))
	}
	if v.Updating {
		footer = append(footer, styleDim.Render("Atualizando..."))
	}
	if v.Notice != "" {
		footer = append(footer, styleYellow.Render(v.Notice))
	}
	if v.Err != nil {
		footer = append(footer, styleRed.Render("Erro: "+v.Err.Error()))
	}
	if len(footer) > 0 {
		out += "\n" + strings.Join(footer, "\n")
	}
	return out
}

func column(c board.Column, width int, now time.Time) string {
	inner := width - 4
	title := truncate(ColumnTitle(c.Status), inner)
	count := fmt.Sprintf("%d de %d", len(c.Items), c.Total)

	var b strings.Builder
	b.WriteString(styleHeader.Foreground(statusColor(c.Status)).Render(title))
	b.WriteString("\n")
	b.WriteString(styleDim.Render(count))
	for _, p := range c.Items {
		b.WriteString("\n\n")
		b.WriteString(Card(p, inner, now))
	}
	if len(c.Items) == 0 {
		b.WriteString("\n\n")
		b.WriteString(styleDim.Render("Nenhuma publicação"))
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(statusColor(c.Status)).
		PaddingLeft(1).
		PaddingRight(1).
		Width(width - 2).
		Render(b.String())
}

// Card is the compact form of a publication used inside a column.
func Card(p domain.Publication, width int, now time.Time) string {
	lines := []string{
		styleBold.Render(truncate(fmt.Sprintf("#%d %s", p.ID, Field(p.CaseNumber)), width)),
		styleDim.Render(truncate(fmt.Sprintf("%s  %s", TimeFrom(p.UpdatedAt, now), Timestamp(p.CreatedAt)), width)),
	}
	return strings.Join(lines, "\n")
}

// FilterLine describes the active filter, or "" when nothing is filtered.
func FilterLine(f domain.Filter) string {
	var parts []string
	if f.Search != "" {
		parts = append(parts, fmt.Sprintf("busca %q", f.Search))
	}
	if f.DateFrom != nil {
		parts = append(parts, "de "+Date(f.DateFrom))
	}
	if f.DateTo != nil {
		parts = append(parts, "até "+Date(f.DateTo))
	}
	if len(parts) == 0 {
		return ""
	}
	return "Filtro: " + strings.Join(parts, ", ")
}
