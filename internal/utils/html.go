package utils

import (
	"github.com/jaytaylor/html2text"
)

// HTMLToText strips markup from an HTML body so it can be forwarded
// as a plain chat message. Falls back to the raw input when the HTML
// cannot be parsed.
func HTMLToText(html string) string {
	text, err := html2text.FromString(html, html2text.Options{TextOnly: true})
	if err != nil {
		return html
	}
	return text
}
