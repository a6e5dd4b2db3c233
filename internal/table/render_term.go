package table

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/xaviermatuz/formdesk/model"
)

// NarrowWidth is the terminal width below which cards replace the table.
const NarrowWidth = 100

const maxCellWidth = 40

// ChooseLayout picks the layout for a terminal of the given width.
func ChooseLayout(width int) model.Layout {
	if width > 0 && width < NarrowWidth {
		return model.LayoutCards
	}
	return model.LayoutTable
}

// TermStyles are the lipgloss styles used by RenderTerminal.
type TermStyles struct {
	Title    lipgloss.Style
	Header   lipgloss.Style
	Cell     lipgloss.Style
	Selected lipgloss.Style
	Card     lipgloss.Style
	Label    lipgloss.Style
	Muted    lipgloss.Style
	Error    lipgloss.Style
	Current  lipgloss.Style
}

// DefaultTermStyles returns the standard palette.
func DefaultTermStyles() TermStyles {
	return TermStyles{
		Title:    lipgloss.NewStyle().Bold(true).MarginBottom(1),
		Header:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).PaddingRight(2),
		Cell:     lipgloss.NewStyle().PaddingRight(2),
		Selected: lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		Card:     lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).Padding(0, 1),
		Label:    lipgloss.NewStyle().Bold(true),
		Muted:    lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		Error:    lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		Current:  lipgloss.NewStyle().Reverse(true),
	}
}

// RenderTerminal renders the view for a terminal.
func RenderTerminal(view model.TableView, styles TermStyles) string {
	var sections []string
	if view.Title != "" {
		sections = append(sections, styles.Title.Render(view.Title))
	}
	if view.Loading {
		sections = append(sections, styles.Muted.Render("Loading..."))
	}
	if view.Error != "" {
		sections = append(sections, styles.Error.Render(view.Error))
	}

	if view.Layout == model.LayoutCards {
		sections = append(sections, renderCards(view, styles))
	} else {
		sections = append(sections, renderRows(view, styles))
	}
	sections = append(sections, renderFooter(view, styles))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func renderRows(view model.TableView, styles TermStyles) string {
	widths := make([]int, len(view.Headers))
	for i, h := range view.Headers {
		widths[i] = lipgloss.Width(headerText(h))
	}
	for _, row := range view.Rows {
		for i, c := range row.Cells {
			if i < len(widths) {
				widths[i] = max(widths[i], lipgloss.Width(cellText(c, row)))
			}
		}
	}
	for i := range widths {
		widths[i] = min(widths[i], maxCellWidth)
	}

	lines := make([]string, 0, len(view.Rows)+2)
	header := []string{styles.Header.Render("   ")}
	for i, h := range view.Headers {
		header = append(header, styles.Header.Width(widths[i]+2).Render(truncate(headerText(h), widths[i])))
	}
	lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, header...))

	if view.Empty != nil {
		lines = append(lines, styles.Muted.Render(view.Empty.Message))
	}
	for _, row := range view.Rows {
		cols := []string{styles.Cell.Render(checkbox(row.Selected))}
		for i, c := range row.Cells {
			if i >= len(widths) {
				break
			}
			cols = append(cols, styles.Cell.Width(widths[i]+2).Render(truncate(cellText(c, row), widths[i])))
		}
		line := lipgloss.JoinHorizontal(lipgloss.Top, cols...)
		if row.Selected {
			line = styles.Selected.Render(line)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func renderCards(view model.TableView, styles TermStyles) string {
	if view.Empty != nil {
		return styles.Card.Render(styles.Muted.Render(view.Empty.Message))
	}
	cards := make([]string, 0, len(view.Rows))
	for _, row := range view.Rows {
		lines := []string{checkbox(row.Selected)}
		for _, c := range row.Cells {
			if c.IsAction {
				if labels := actionLabels(row.Actions); labels != "" {
					lines = append(lines, styles.Muted.Render(labels))
				}
				continue
			}
			lines = append(lines, styles.Label.Render(c.Label+":")+" "+c.Value)
		}
		card := styles.Card.Render(strings.Join(lines, "\n"))
		if row.Selected {
			card = styles.Selected.Render(card)
		}
		cards = append(cards, card)
	}
	return lipgloss.JoinVertical(lipgloss.Left, cards...)
}

func renderFooter(view model.TableView, styles TermStyles) string {
	parts := []string{styles.Muted.Render(view.Summary)}
	if p := view.Pagination; p != nil {
		var items []string
		for _, it := range p.Items {
			switch {
			case it.Ellipsis:
				items = append(items, it.Label)
			case it.Current:
				items = append(items, styles.Current.Render(" "+it.Label+" "))
			default:
				items = append(items, it.Label)
			}
		}
		parts = append(parts, strings.Join(items, " "))
	}
	return strings.Join(parts, "   ")
}

func headerText(h model.HeaderCell) string {
	if h.Indicator != "" {
		return h.Label + " " + h.Indicator
	}
	return h.Label
}

func cellText(c model.CellView, row model.RowView) string {
	if c.IsAction {
		return actionLabels(row.Actions)
	}
	return c.Value
}

func actionLabels(actions []model.ActionDescriptor) string {
	labels := make([]string, len(actions))
	for i, a := range actions {
		labels[i] = a.Label
	}
	return strings.Join(labels, " / ")
}

func checkbox(selected bool) string {
	if selected {
		return "[x]"
	}
	return "[ ]"
}

func truncate(s string, width int) string {
	if lipgloss.Width(s) <= width {
		return s
	}
	r := []rune(s)
	if width <= 1 || len(r) <= width {
		return s
	}
	return string(r[:width-1]) + "…"
}
