package vectorize

import (
	"regexp"
	"strings"
)

// deniedHeadings lists section headings (case-insensitive) dropped from a
// README before summarization, in English and their common translations.
// Grounded on the teacher's keyword-list classification style in
// internal/shards/researcher/extract.go.
var deniedHeadings = []string{
	"installation", "instalación", "installazione", "installation fr",
	"contributing", "contribución", "contribuer", "mitwirken",
	"license", "licencia", "licence", "lizenz",
	"changelog", "historial de cambios",
	"tests", "testing", "pruebas",
	"development", "desarrollo", "développement", "entwicklung",
	"faq",
	"donate", "donaciones", "donation",
	"authors", "autores", "auteurs",
	"acknowledgements", "acknowledgments", "agradecimientos", "remerciements",
}

var (
	headingPattern = regexp.MustCompile(`(?m)^(#{1,6})\s*(.+?)\s*$`)
	badgePattern   = regexp.MustCompile(`\[!\[[^\]]*\]\([^)]*\)\]\([^)]*\)|!\[[^\]]*\]\([^)]*\)`)
)

// ExtractSummary filters raw README content down to a compact summary:
// deny-listed sections are dropped, badge images are stripped, and the
// result is truncated to maxChars. If the filtered text is under 50
// characters, it falls back to the first 200 characters of the raw input
// (spec §4.5).
func ExtractSummary(raw string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = 500
	}

	stripped := badgePattern.ReplaceAllString(raw, "")
	filtered := dropDeniedSections(stripped)
	filtered = strings.TrimSpace(filtered)

	if len(filtered) < 50 {
		fallback := strings.TrimSpace(raw)
		return truncate(fallback, 200)
	}

	return truncate(filtered, maxChars)
}

// dropDeniedSections removes every markdown section (heading through the
// next heading of equal-or-higher level) whose heading text matches the
// deny list.
func dropDeniedSections(text string) string {
	matches := headingPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text
	}

	var b strings.Builder
	prevEnd := 0
	for i, m := range matches {
		headingStart := m[0]
		if headingStart < prevEnd {
			// Sub-heading inside a section that was already dropped.
			continue
		}
		headingText := text[m[4]:m[5]]
		level := m[3] - m[2]

		sectionEnd := len(text)
		for _, next := range matches[i+1:] {
			if next[3]-next[2] <= level {
				sectionEnd = next[0]
				break
			}
		}

		if isDeniedHeading(headingText) {
			b.WriteString(text[prevEnd:headingStart])
			prevEnd = sectionEnd
		}
	}
	b.WriteString(text[prevEnd:])
	return b.String()
}

func isDeniedHeading(heading string) bool {
	normalized := strings.ToLower(strings.TrimSpace(heading))
	normalized = strings.Trim(normalized, "*_ ")
	for _, denied := range deniedHeadings {
		if normalized == denied {
			return true
		}
	}
	return false
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
