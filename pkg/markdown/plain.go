// Package markdown flattens model output into plain chat text.
package markdown

import (
	"regexp"
	"strings"

	"github.com/russross/blackfriday/v2"
)

var (
	tagPattern     = regexp.MustCompile(`</?[a-zA-Z]+(?:\s[^>]*)?/?>`)
	newlinePattern = regexp.MustCompile(`\n{3,}`)
)

// ToPlainText renders markdown and strips every remaining tag, so code
// fences, headers, emphasis and lists come out as bare text. Persona replies
// must read like typed messages, not rendered documents.
func ToPlainText(markdown string) string {
	if markdown == "" {
		return ""
	}

	html := string(blackfriday.Run([]byte(markdown), blackfriday.WithExtensions(blackfriday.CommonExtensions)))

	html = strings.ReplaceAll(html, "</p>", "\n")
	html = strings.ReplaceAll(html, "</li>", "\n")
	html = strings.ReplaceAll(html, "<br>", "\n")
	html = strings.ReplaceAll(html, "<br/>", "\n")

	text := tagPattern.ReplaceAllString(html, "")

	text = strings.ReplaceAll(text, "&amp;", "&")
	text = strings.ReplaceAll(text, "&lt;", "<")
	text = strings.ReplaceAll(text, "&gt;", ">")
	text = strings.ReplaceAll(text, "&quot;", "\"")
	text = strings.ReplaceAll(text, "&#39;", "'")
	text = strings.ReplaceAll(text, "&rsquo;", "'")

	text = newlinePattern.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
