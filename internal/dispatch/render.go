package dispatch

import (
	"fmt"
	"strings"

	"github.com/Harshitk-cp/botdesk/internal/channel"
	"github.com/Harshitk-cp/botdesk/internal/domain"
)

// renderMenu lists items numbered from 1; the numbers double as WhatsApp
// selections and each item also gets a button for Telegram.
func renderMenu(m *domain.Menu) *channel.OutboundMessage {
	title := m.Title
	if title == "" {
		title = "Menu"
	}

	var sb strings.Builder
	sb.WriteString("*" + title + "*\n\n")
	if len(m.Items) == 0 {
		sb.WriteString("No options yet.")
		return &channel.OutboundMessage{Text: sb.String()}
	}

	buttons := make([][]channel.Button, 0, len(m.Items))
	for i, it := range m.Items {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, it.Label)
		buttons = append(buttons, []channel.Button{{Text: it.Label, Token: fmt.Sprintf("m:%s:%d", m.Slug, i+1)}})
	}
	sb.WriteString("\nReply with a number to choose.")
	return &channel.OutboundMessage{Text: sb.String(), Buttons: buttons}
}

func renderRow(columns []string, r domain.Row) string {
	parts := make([]string, 0, len(columns))
	for i, c := range columns {
		parts = append(parts, c+": "+r.Value(i))
	}
	return strings.Join(parts, ", ")
}

// renderTablePage shows one page of rows. item is the main menu number the
// table was reached from, or 0 when it came from a button.
func renderTablePage(ds *domain.Dataset, rows []domain.Row, rowCap, item, page int) *channel.OutboundMessage {
	title := ds.DisplayName
	if title == "" {
		title = ds.Name
	}
	if len(rows) == 0 {
		return &channel.OutboundMessage{Text: fmt.Sprintf("Table '%s' is empty.", title)}
	}

	pages := (len(rows) + rowCap - 1) / rowCap
	if page > pages {
		page = pages
	}
	start := (page - 1) * rowCap
	end := min(start+rowCap, len(rows))

	var sb strings.Builder
	sb.WriteString("*" + title + "*")
	if pages > 1 {
		fmt.Fprintf(&sb, " (page %d of %d)", page, pages)
	}
	sb.WriteString("\n\n")
	for _, r := range rows[start:end] {
		sb.WriteString("- " + renderRow(ds.Columns, r) + "\n")
	}

	out := &channel.OutboundMessage{}
	if remaining := len(rows) - end; remaining > 0 {
		fmt.Fprintf(&sb, "\n...and %d more rows.", remaining)
		if item > 0 {
			fmt.Fprintf(&sb, "\nReply %d#%d for the next page.", item, page+1)
		}
		out.Buttons = [][]channel.Button{{{Text: "Next page", Token: fmt.Sprintf("p:%s:%d", ds.Name, page+1)}}}
	}
	out.Text = strings.TrimRight(sb.String(), "\n")
	return out
}

func renderSearch(query string, hits []domain.SearchHit) string {
	if len(hits) == 0 {
		return fmt.Sprintf("No results for \"%s\".\n\nType MENU to see the options.", query)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Results for \"%s\":\n\n", query)
	for _, h := range hits {
		name := h.Dataset.DisplayName
		if name == "" {
			name = h.Dataset.Name
		}
		sb.WriteString("• *" + name + "*: " + renderRow(h.Dataset.Columns, h.Row) + "\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func renderResult(label string, r Result) string {
	line := fmt.Sprintf("%s of %s: %s", r.Aggregation, r.Column, r.Value.String())
	if label == "" {
		return line
	}
	return "*" + label + "*\n" + line
}
