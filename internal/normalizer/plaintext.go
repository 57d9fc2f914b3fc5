package normalizer

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PlainText renders an HTML description as collapsed plain text for table
// previews. Input that is not HTML comes back with whitespace collapsed.
func PlainText(html string) string {
	if html == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.Join(strings.Fields(html), " ")
	}

	doc.Find("script, style").Remove()
	doc.Find("br, p, li, div").Each(func(i int, s *goquery.Selection) {
		s.AppendHtml(" ")
	})

	return strings.Join(strings.Fields(doc.Text()), " ")
}

// Excerpt is PlainText cut to at most limit runes, with an ellipsis when cut.
func Excerpt(html string, limit int) string {
	text := PlainText(html)
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return text
	}
	return strings.TrimSpace(string(runes[:limit])) + "…"
}
