// Package highlight renders policy text and diffs with terminal colors.
// Policy files get a dedicated chroma lexer; everything else falls back to
// chroma's detection.
package highlight

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss"
)

// policyLexer tokenizes qrexec-style policy lines: service, argument,
// source/target tokens, action and qualifier parameters.
var policyLexer = chroma.MustNewLexer(
	&chroma.Config{
		Name:      "QubesPolicy",
		Aliases:   []string{"qubes-policy"},
		Filenames: []string{"*.policy"},
	},
	func() chroma.Rules {
		return chroma.Rules{
			"root": {
				{Pattern: `#.*`, Type: chroma.Comment},
				{Pattern: `\s+`, Type: chroma.Whitespace},
				{Pattern: `\b(allow|ask|deny)\b`, Type: chroma.Keyword},
				{Pattern: `@[A-Za-z_]+(:[^\s]+)?`, Type: chroma.NameDecorator},
				{Pattern: `[a-z_]+=[^\s]+`, Type: chroma.NameAttribute},
				{Pattern: `\*|\+[^\s]*`, Type: chroma.Operator},
				{Pattern: `[^\s]+`, Type: chroma.Name},
			},
		}
	},
)

// Highlighter provides syntax highlighting for policy text and diffs.
type Highlighter struct {
	style     string
	formatter chroma.Formatter
}

// New creates a Highlighter with the specified chroma style, defaulting to
// monokai.
func New(style string) *Highlighter {
	if style == "" {
		style = "monokai"
	}
	return &Highlighter{
		style:     style,
		formatter: formatters.Get("terminal256"),
	}
}

// Policy highlights policy file text.
func (h *Highlighter) Policy(text string) string {
	return h.render(policyLexer, text)
}

// Highlight applies syntax highlighting based on a language name.
func (h *Highlighter) Highlight(code, lang string) string {
	lexer := lexers.Get(lang)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	return h.render(lexer, code)
}

func (h *Highlighter) render(lexer chroma.Lexer, code string) string {
	lexer = chroma.Coalesce(lexer)
	style := styles.Get(h.style)
	if style == nil {
		style = styles.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}
	var buf bytes.Buffer
	if err := h.formatter.Format(&buf, style, iterator); err != nil {
		return code
	}
	return buf.String()
}

// PolicyWithLineNumbers highlights policy text with a line number gutter.
func (h *Highlighter) PolicyWithLineNumbers(text string, startLine int) string {
	highlighted := h.Policy(text)
	lines := strings.Split(highlighted, "\n")

	lineNumStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))

	var result strings.Builder
	for i, line := range lines {
		result.WriteString(lineNumStyle.Render(fmt.Sprintf("%4d", startLine+i)))
		result.WriteString(" │ ")
		result.WriteString(line)
		if i < len(lines)-1 {
			result.WriteString("\n")
		}
	}
	return result.String()
}

// HighlightDiff colors unified-diff style lines for the save preview.
func (h *Highlighter) HighlightDiff(diff string) string {
	addedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
	removedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#06B6D4")).Bold(true)
	contextStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))

	lines := strings.Split(diff, "\n")
	var result strings.Builder
	for i, line := range lines {
		var styledLine string
		switch {
		case strings.HasPrefix(line, "+++") || strings.HasPrefix(line, "---"):
			styledLine = headerStyle.Render(line)
		case strings.HasPrefix(line, "+"):
			styledLine = addedStyle.Render(line)
		case strings.HasPrefix(line, "-"):
			styledLine = removedStyle.Render(line)
		default:
			styledLine = contextStyle.Render(line)
		}
		result.WriteString(styledLine)
		if i < len(lines)-1 {
			result.WriteString("\n")
		}
	}
	return result.String()
}
