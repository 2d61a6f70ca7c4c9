package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/LucasAro/JuscashCase/domain"
)

func label(name, value string) string {
	return styleBold.Render(name+":") + " " + value
}

// Detail is the full card of a publication, with its status history when
// one is available.
func Detail(p domain.Publication, history []domain.StatusChange) string {
	var b strings.Builder
	b.WriteString(styleHeader.Render("Publicação - " + Field(p.CaseNumber)))
	b.WriteString("\n\n")
	b.WriteString(label("Status", ColumnTitle(p.Status)))
	b.WriteString("\n")
	b.WriteString(label("Data de publicação no DJE", Date(p.PublicationDate)))
	b.WriteString("\n\n")
	b.WriteString(label("Autor(es)", Field(p.Claimants)))
	b.WriteString("\n")
	b.WriteString(label("Réu", Field(p.Respondent)))
	b.WriteString("\n")
	b.WriteString(label("Advogado(s)", Field(p.Counsel)))
	b.WriteString("\n\n")
	b.WriteString(label("Valor principal bruto/líquido", Amount(p.PrincipalAmount)))
	b.WriteString("\n")
	b.WriteString(label("Valor dos juros moratórios", Amount(p.InterestAmount)))
	b.WriteString("\n")
	b.WriteString(label("Valor dos honorários advocatícios", Amount(p.AttorneyFeesAmount)))
	b.WriteString("\n\n")
	b.WriteString(styleBold.Render("Conteúdo da Publicação:"))
	b.WriteString("\n")
	b.WriteString(Field(p.Body))

	if len(history) > 0 {
		b.WriteString("\n\n")
		b.WriteString(styleBold.Render("Histórico:"))
		for _, h := range history {
			fmt.Fprintf(&b, "\n%s  %s → %s",
				h.ChangedAt.Format("02/01/2006 15:04"), ColumnTitle(h.From), ColumnTitle(h.To))
			if h.UserID != "" {
				b.WriteString(styleDim.Render("  (" + h.UserID + ")"))
			}
		}
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorDim).
		PaddingLeft(2).
		PaddingRight(2).
		PaddingTop(1).
		PaddingBottom(1).
		Render(b.String())
}
