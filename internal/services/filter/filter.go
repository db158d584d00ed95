// Package filter post-processes generated replies before delivery.
package filter

import (
	"regexp"
	"strings"

	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/i18n"
	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/services/lexicon"
	"github.com/alexgrosjean991-web/luna-bot-sub000/pkg/markdown"
	"github.com/sirupsen/logrus"
)

var (
	stageDirection = regexp.MustCompile(`\*[^*\n]{1,80}\*`)
	underscoreEmph = regexp.MustCompile(`_[^_\n]{1,80}_`)
	multiSpace     = regexp.MustCompile(`[ \t]{2,}`)
)

// Result is the filtered output.
type Result struct {
	Text string
	// RefusalReplaced is set when an out-of-character refusal was swapped
	// for a localized deflection. Invisible to the user.
	RefusalReplaced bool
}

// Filter strips generation artifacts and enforces the emoji cap.
type Filter struct {
	lex       *lexicon.Lexicons
	localizer *i18n.Localizer
	emojiCap  int
	logger    *logrus.Logger
}

// NewFilter creates a response filter.
func NewFilter(lex *lexicon.Lexicons, localizer *i18n.Localizer, emojiCap int, logger *logrus.Logger) *Filter {
	return &Filter{lex: lex, localizer: localizer, emojiCap: emojiCap, logger: logger}
}

// Apply runs the full post-processing chain on a generated reply.
func (f *Filter) Apply(text, lang string) Result {
	if lexicon.Matches(text, f.lex.Refusal) {
		f.logger.WithField("preview", preview(text)).Debug("Refusal artifact replaced")
		replacement := f.localizer.GetOneOf(lang, i18n.GroupDeflection, i18n.GroupDeflectionCount)
		return Result{Text: replacement, RefusalReplaced: true}
	}

	cleaned := stageDirection.ReplaceAllString(text, "")
	cleaned = underscoreEmph.ReplaceAllString(cleaned, "")
	cleaned = markdown.ToPlainText(cleaned)

	cleaned = capEmojis(cleaned, f.emojiCap)
	cleaned = multiSpace.ReplaceAllString(cleaned, " ")
	cleaned = stripWrappingQuotes(strings.TrimSpace(cleaned))

	if cleaned == "" {
		// Everything was markup; fall back to a deflection instead of
		// sending an empty bubble.
		replacement := f.localizer.GetOneOf(lang, i18n.GroupDeflection, i18n.GroupDeflectionCount)
		return Result{Text: replacement, RefusalReplaced: true}
	}
	return Result{Text: cleaned}
}

func stripWrappingQuotes(s string) string {
	for len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			s = strings.TrimSpace(s[1 : len(s)-1])
			continue
		}
		if strings.HasPrefix(s, "«") && strings.HasSuffix(s, "»") {
			s = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(s, "«"), "»"))
			continue
		}
		break
	}
	return s
}

// capEmojis keeps the first n emoji occurrences and removes the rest.
func capEmojis(s string, n int) string {
	if n <= 0 {
		n = 2
	}
	var b strings.Builder
	b.Grow(len(s))
	count := 0
	for _, r := range s {
		if isEmoji(r) {
			count++
			if count > n {
				continue
			}
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

func isEmoji(r rune) bool {
	return (r >= 0x1F300 && r <= 0x1FAFF) ||
		(r >= 0x2600 && r <= 0x27BF) ||
		r == 0x2764
}

func preview(s string) string {
	if len(s) > 60 {
		return s[:60]
	}
	return s
}
