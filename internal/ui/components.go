package ui

import (
	"strings"
)

// Header renders the styled banner line shown at the top of a command's
// output.
func Header(emoji, title string) string {
	return StyleHeader.Render(emoji+" "+title) + "\n"
}

// Success renders a one-line success message.
func Success(message string) string {
	return StyleSuccess.Render("✨ " + message)
}

// Warning renders a one-line warning.
func Warning(message string) string {
	return StyleWarning.Render("⚠️  " + message)
}

// Error renders a one-line error message.
func Error(message string) string {
	return StyleError.Render("❌ " + message)
}

// CheckMark renders a green check, optionally followed by a label.
func CheckMark(label string) string {
	if label == "" {
		return StyleGreen.Render("✓")
	}
	return StyleGreen.Render("✓ " + label)
}

// InfoBox renders title and content inside a rounded border. Used for
// the panel announcing an incoming request.
func InfoBox(title, content string) string {
	if title == "" {
		title = "Info"
	}
	body := StyleCyan.Render("ℹ️  " + title)
	if content != "" {
		body += "\n\n" + content
	}
	return "\n" + InfoBoxStyle.Render(body) + "\n"
}

// Table renders headers and rows as aligned columns. Cells may carry
// ANSI styling; widths are computed on the unstyled text.
func Table(headers []string, rows [][]string) string {
	if len(headers) == 0 {
		return ""
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i >= len(widths) {
				continue
			}
			if n := len(stripANSI(cell)); n > widths[i] {
				widths[i] = n
			}
		}
	}

	var b strings.Builder
	for i, h := range headers {
		b.WriteString(TableHeaderStyle.Render(h + strings.Repeat(" ", widths[i]-len(h))))
	}
	b.WriteString("\n")

	for _, w := range widths {
		b.WriteString(strings.Repeat("─", w+2))
	}
	b.WriteString("\n")

	for _, row := range rows {
		for i, cell := range row {
			if i >= len(widths) {
				continue
			}
			b.WriteString(cell)
			b.WriteString(strings.Repeat(" ", widths[i]-len(stripANSI(cell))))
			b.WriteString("  ")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// stripANSI drops CSI escape sequences so column widths reflect visible
// characters only.
func stripANSI(str string) string {
	var b strings.Builder
	inEscape := false
	for i := 0; i < len(str); i++ {
		switch {
		case inEscape:
			if (str[i] >= 'a' && str[i] <= 'z') || (str[i] >= 'A' && str[i] <= 'Z') {
				inEscape = false
			}
		case str[i] == '\x1b' && i+1 < len(str) && str[i+1] == '[':
			inEscape = true
			i++
		default:
			b.WriteByte(str[i])
		}
	}
	return b.String()
}
