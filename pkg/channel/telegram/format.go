package telegram

import (
	"fmt"
	"strings"

	"github.com/jxucoder/uavlog/pkg/model"
)

func formatSummary(id, name string, s model.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n", escapeMarkdown(name))
	fmt.Fprintf(&b, "ID: `%s`\n", escapeCode(id))
	fmt.Fprintf(&b, "Duration: %s s\n", escapeMarkdown(fmt.Sprintf("%.1f", s.Duration)))
	fmt.Fprintf(&b, "Max altitude: %s m\n", escapeMarkdown(fmt.Sprintf("%.1f", s.MaxAltitude)))
	fmt.Fprintf(&b, "Max speed: %s m/s\n", escapeMarkdown(fmt.Sprintf("%.1f", s.MaxSpeed)))
	fmt.Fprintf(&b, "Distance: %s m", escapeMarkdown(fmt.Sprintf("%.1f", s.TotalDistance)))
	if len(s.Anomalies) == 0 {
		b.WriteString("\nAnomalies: none")
		return b.String()
	}
	b.WriteString("\nAnomalies:")
	for _, a := range s.Anomalies {
		fmt.Fprintf(&b, "\n• %s", escapeMarkdown(a))
	}
	return b.String()
}

func formatFlightList(flights []model.FlightSummary, active string) string {
	if len(flights) == 0 {
		return "No flights uploaded yet\\. Send a `.bin` or `.log` file to start\\."
	}
	var b strings.Builder
	b.WriteString("*Flights:*")
	for _, f := range flights {
		marker := ""
		if f.ID == active {
			marker = " ◀"
		}
		fmt.Fprintf(&b, "\n`%s` %s \\(%s s\\)%s",
			escapeCode(f.ID), escapeMarkdown(f.FileName),
			escapeMarkdown(fmt.Sprintf("%.1f", f.Summary.Duration)), marker)
	}
	b.WriteString("\n\nSelect one with `/flight <id>`")
	return b.String()
}

func formatChatResponse(r *model.ChatResponse) string {
	var b strings.Builder
	b.WriteString(escapeMarkdown(r.Response))
	if r.ComparisonInsights != "" {
		fmt.Fprintf(&b, "\n\n📊 %s", escapeMarkdown(r.ComparisonInsights))
	}
	for _, s := range r.ProactiveSuggestions {
		fmt.Fprintf(&b, "\n\n💡 %s", escapeMarkdown(s))
	}
	return b.String()
}

func escapeMarkdown(s string) string {
	replacer := strings.NewReplacer(
		"\\", "\\\\",
		"_", "\\_", "*", "\\*", "[", "\\[", "]", "\\]",
		"(", "\\(", ")", "\\)", "~", "\\~", "`", "\\`",
		">", "\\>", "#", "\\#", "+", "\\+", "-", "\\-",
		"=", "\\=", "|", "\\|", "{", "\\{", "}", "\\}",
		".", "\\.", "!", "\\!",
	)
	return replacer.Replace(s)
}

// escapeCode escapes text placed inside a `code` span.
func escapeCode(s string) string {
	return strings.NewReplacer("\\", "\\\\", "`", "\\`").Replace(s)
}

func stripMarkdown(s string) string {
	r := strings.NewReplacer(
		"\\\\", "\\",
		"\\*", "*", "\\_", "_", "\\[", "[", "\\]", "]",
		"\\(", "(", "\\)", ")", "\\~", "~", "\\`", "`",
		"\\>", ">", "\\#", "#", "\\+", "+", "\\-", "-",
		"\\=", "=", "\\|", "|", "\\{", "{", "\\}", "}",
		"\\.", ".", "\\!", "!",
	)
	return r.Replace(s)
}
