// Package notify delivers run notifications by email and run-completed events to
// an event bus.
package notify

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PlainText renders a notification body without markup, one line per <br>.
func PlainText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	doc.Find("br").ReplaceWithHtml("\n")

	var lines []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
