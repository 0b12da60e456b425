package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"

	"github.com/jask/finsense/internal/export"
	"github.com/jask/finsense/internal/ledger"
	"github.com/jask/finsense/internal/txlist"
)

// cardHeight is the rendered height of one card, border included.
const cardHeight = 4

func (a *App) View() string {
	if a.state == viewAuth {
		return a.authView()
	}

	header := a.renderHeader()
	statusLine := a.renderStatus()
	footer := a.renderFooter(a.footerBindings())

	title := a.tx.Filter().Label()
	if a.tx.Loading() {
		title += mutedStyle.Render("  loading…")
	}
	var content string
	if a.cardView {
		content = a.renderCards()
	} else {
		content = a.renderTable()
	}
	main := header + "\n\n" + a.renderSection(title, content)

	switch a.modal {
	case modalConfirm:
		return a.composeModal(main, statusLine, footer, dangerModalStyle, a.confirmView())
	case modalExport:
		return a.composeModal(main, statusLine, footer, modalStyle, a.exportView())
	}
	return a.placeWithFooter(main, statusLine, footer)
}

func (a *App) footerBindings() []key.Binding {
	switch a.modal {
	case modalConfirm:
		return a.keys.HelpBindings(scopeConfirm)
	case modalExport:
		return a.keys.HelpBindings(scopeExport)
	}
	return a.keys.HelpBindings(scopeTransactions)
}

// ---------------------------------------------------------------------------
// Chrome
// ---------------------------------------------------------------------------

func (a *App) renderHeader() string {
	name := headerAppStyle.Background(colorMantle).Render(appName)

	tabs := make([]string, 0, len(ledger.Filters()))
	for _, f := range ledger.Filters() {
		if f == a.tx.Filter() {
			tabs = append(tabs, activeTabStyle.Render(f.Label()))
		} else {
			tabs = append(tabs, inactiveTabStyle.Render(f.Label()))
		}
	}
	line := name + tabSepStyle.Render("  ") + strings.Join(tabs, tabSepStyle.Render("│"))

	if a.width <= 0 {
		return headerBarStyle.Render(line)
	}
	user := headerUserStyle.Render(a.displayName())
	inner := a.width - headerBarStyle.GetHorizontalFrameSize()
	if gap := inner - lipgloss.Width(line) - lipgloss.Width(user); gap > 0 {
		line += tabSepStyle.Render(strings.Repeat(" ", gap)) + user
	}
	return headerBarStyle.Width(a.width).Render(line)
}

func (a *App) renderSection(title, content string) string {
	contentWidth := a.sectionContentWidth()
	header := padRight(titleStyle.Render(title), contentWidth)
	separator := sepStyle.Render(strings.Repeat("─", contentWidth))
	section := listBoxStyle.Width(a.sectionWidth()).Render(header + "\n" + separator + "\n" + content)
	if a.width == 0 {
		return section
	}
	return lipgloss.Place(a.width, lipgloss.Height(section), lipgloss.Center, lipgloss.Top, section)
}

func (a *App) renderFooter(bindings []key.Binding) string {
	// Every cell carries the footer background.
	bg := colorMantle
	keyStyle := helpKeyStyle.Background(bg)
	descStyle := helpDescStyle.Background(bg)
	space := lipgloss.NewStyle().Background(bg).Render(" ")
	sep := lipgloss.NewStyle().Background(bg).Render("  ")

	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		help := b.Help()
		if help.Key == "" && help.Desc == "" {
			continue
		}
		parts = append(parts, keyStyle.Render(help.Key)+space+descStyle.Render(help.Desc))
	}
	content := strings.Join(parts, sep)
	if a.width == 0 {
		return footerStyle.Render(content)
	}
	return footerStyle.Width(a.width).Render(truncate(content, a.width-footerStyle.GetHorizontalFrameSize()))
}

func (a *App) renderStatus() string {
	text := strings.ReplaceAll(a.status, "\n", " ")
	style := statusBarStyle
	if a.statusErr {
		style = style.Foreground(colorError)
	}
	if a.width == 0 {
		return style.Render(text)
	}
	return style.Width(a.width).Render(text)
}

func (a *App) placeWithFooter(body, statusLine, footer string) string {
	if a.height == 0 {
		return body + "\n\n" + statusLine + "\n" + footer
	}
	contentHeight := max(a.height-2, 1)
	if lipgloss.Height(body) >= contentHeight {
		return body + "\n" + statusLine + "\n" + footer
	}
	main := lipgloss.Place(a.width, contentHeight, lipgloss.Left, lipgloss.Top, body)
	// Full-width lines keep stale cells from the previous frame out.
	lines := splitLines(main)
	for i, line := range lines {
		lines[i] = padRight(line, a.width)
	}
	return strings.Join(lines, "\n") + "\n" + statusLine + "\n" + footer
}

func (a *App) composeModal(base, statusLine, footer string, frame lipgloss.Style, content string) string {
	baseView := a.placeWithFooter(base, statusLine, footer)
	modal := frame.Render(content)
	if a.height == 0 || a.width == 0 {
		return baseView + "\n\n" + modal
	}
	lines := splitLines(modal)
	targetHeight := max(a.height-2, 1)
	x := max((a.width-maxLineWidth(lines))/2, 0)
	y := max((targetHeight-len(lines))/2, 0)
	return overlayAt(baseView, modal, x, y, a.width, targetHeight)
}

// ---------------------------------------------------------------------------
// Transaction list
// ---------------------------------------------------------------------------

func (a *App) renderTable() string {
	rows := a.tx.Transactions()
	if len(rows) == 0 {
		return emptyStyle.Render("No transactions found")
	}

	width := a.sectionContentWidth()
	const (
		cursorWidth   = 2
		dateWidth     = 12
		typeWidth     = 8
		categoryWidth = 14
		amountWidth   = 14
	)
	descWidth := max(width-cursorWidth-dateWidth-typeWidth-categoryWidth-amountWidth-8, 5)

	header := fmt.Sprintf("  %-*s  %-*s  %-*s  %-*s  %*s",
		dateWidth, "Date", typeWidth, "Type", categoryWidth, "Category", descWidth, "Description", amountWidth, "Amount")
	lines := []string{tableHeaderStyle.Render(header)}

	visible := a.visibleRows()
	end := min(a.topIndex+visible, len(rows))
	for i := a.topIndex; i < end; i++ {
		row := rows[i]
		prefix := "  "
		if i == a.cursor {
			prefix = cursorStyle.Render("> ")
		}
		amount := padLeft(ledger.FormatAmount(a.currency, row.Amount), amountWidth)
		lines = append(lines, prefix+
			padRight(ledger.FormatDate(row.Date), dateWidth)+"  "+
			padRight(truncate(ledger.FormatType(row.Type), typeWidth), typeWidth)+"  "+
			padRight(truncate(row.Category, categoryWidth), categoryWidth)+"  "+
			padRight(truncate(ledger.DescriptionOrPlaceholder(row.Description), descWidth), descWidth)+"  "+
			amountStyle(ledger.StyleClass(row.Type)).Render(amount))
	}
	lines = append(lines, a.scrollIndicator(len(rows), visible))
	return strings.Join(lines, "\n")
}

func (a *App) renderCards() string {
	rows := a.tx.Transactions()
	if len(rows) == 0 {
		return emptyStyle.Render("No transactions found")
	}
	width := a.sectionContentWidth()
	inner := max(width-cardStyle.GetHorizontalFrameSize(), 10)

	visible := a.visibleRows()
	end := min(a.topIndex+visible, len(rows))
	cards := make([]string, 0, max(end-a.topIndex, 0)+1)
	for i := a.topIndex; i < end; i++ {
		row := rows[i]
		amount := amountStyle(ledger.StyleClass(row.Type)).Render(ledger.FormatSignedAmount(a.currency, row.Type, row.Amount))
		top := truncate(row.Category, inner-lipgloss.Width(amount)-1)
		top = padRight(top, inner-lipgloss.Width(amount)) + amount
		meta := mutedStyle.Render(ledger.FormatType(row.Type) + " · " + ledger.FormatDate(row.Date))
		if row.Description != nil && *row.Description != "" {
			meta += mutedStyle.Render(" · ") + truncate(*row.Description, max(inner-lipgloss.Width(meta)-3, 1))
		}
		style := cardStyle
		if i == a.cursor {
			style = activeCardStyle
		}
		cards = append(cards, style.Width(width-cardStyle.GetHorizontalBorderSize()).Render(top+"\n"+meta))
	}
	cards = append(cards, a.scrollIndicator(len(rows), visible))
	return strings.Join(cards, "\n")
}

func (a *App) scrollIndicator(total, visible int) string {
	start := a.topIndex + 1
	end := min(a.topIndex+visible, total)
	return scrollStyle.Render(fmt.Sprintf("── showing %d-%d of %d ──", start, end, total))
}

// ---------------------------------------------------------------------------
// Modals
// ---------------------------------------------------------------------------

func (a *App) confirmView() string {
	var detail string
	if id, ok := a.tx.PendingDelete(); ok {
		for _, row := range a.tx.Transactions() {
			if row.ID == id {
				detail = fmt.Sprintf("%s · %s · %s", ledger.FormatDate(row.Date), row.Category,
					ledger.FormatAmount(a.currency, row.Amount))
				break
			}
		}
	}
	lines := []string{titleStyle.Render("Delete transaction"), "", txlist.ConfirmPrompt}
	if detail != "" {
		lines = append(lines, mutedStyle.Render(detail))
	}
	lines = append(lines, "", helpKeyStyle.Render("y")+" "+helpDescStyle.Render("delete")+"   "+
		helpKeyStyle.Render("n")+" "+helpDescStyle.Render("keep"))
	return strings.Join(lines, "\n")
}

func (a *App) exportView() string {
	r := a.export.Range()
	bound := func(label, value string, focused bool) string {
		if value == "" {
			value = "YYYY-MM"
		}
		field := "‹ " + value + " ›"
		if focused {
			return focusStyle.Render(fmt.Sprintf("%-6s", label) + field)
		}
		return labelStyle.Render(fmt.Sprintf("%-6s", label)) + field
	}

	lines := []string{
		titleStyle.Render("Export transactions"),
		"",
		bound("From", r.From, a.exportFocus == fieldFrom),
		bound("To", r.To, a.exportFocus == fieldTo),
		"",
	}
	if r.From != "" && r.To != "" {
		lines = append(lines, previewStyle.Render(r.Preview()))
	}
	switch {
	case a.exporting:
		lines = append(lines, infoStyle.Render("Exporting..."))
	case a.exportErr != "":
		lines = append(lines, errorStyle.Render(a.exportErr))
	}
	lines = append(lines, mutedStyle.Render("Saves "+export.FileName(r)+" to "+a.export.Dir()))

	if len(a.recentExports) > 0 {
		lines = append(lines, "", labelStyle.Render("Recent exports"))
		for _, e := range a.recentExports {
			lines = append(lines, mutedStyle.Render(fmt.Sprintf("%s  %s → %s", e.CreatedAt.Local().Format("Jan 2 15:04"), e.From, e.To)))
		}
	}
	return strings.Join(lines, "\n")
}
