package i18n

import (
	"encoding/json"
	"fmt"
	"math/rand"

	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/config"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

// Localizer manages internationalization
type Localizer struct {
	bundle          *i18n.Bundle
	defaultLanguage string
	localizers      map[string]*i18n.Localizer
}

// NewLocalizer creates a new localizer
func NewLocalizer(cfg *config.I18nConfig) (*Localizer, error) {
	bundle := i18n.NewBundle(language.French)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	for _, lang := range cfg.Languages {
		if _, err := bundle.LoadMessageFile(fmt.Sprintf("%s/%s.json", cfg.Directory, lang)); err != nil {
			return nil, fmt.Errorf("failed to load language file %s: %w", lang, err)
		}
	}

	localizers := make(map[string]*i18n.Localizer)
	for _, lang := range cfg.Languages {
		localizers[lang] = i18n.NewLocalizer(bundle, lang)
	}

	return &Localizer{
		bundle:          bundle,
		defaultLanguage: cfg.DefaultLanguage,
		localizers:      localizers,
	}, nil
}

// Get returns localized message
func (l *Localizer) Get(lang, messageID string, data map[string]interface{}) string {
	localizer, exists := l.localizers[lang]
	if !exists {
		localizer = l.localizers[l.defaultLanguage]
	}

	msg, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: data,
	})
	if err != nil {
		return messageID // Fallback to message ID
	}

	return msg
}

// GetOneOf returns one of the numbered variants of a message group
// (e.g. excuse_1..excuse_4), picked at random.
func (l *Localizer) GetOneOf(lang, prefix string, count int) string {
	if count <= 0 {
		return l.Get(lang, prefix, nil)
	}
	id := fmt.Sprintf("%s_%d", prefix, rand.Intn(count)+1)
	return l.Get(lang, id, nil)
}

// Message IDs
const (
	MsgWelcome        = "welcome"
	MsgHelp           = "help"
	MsgProfile        = "profile"
	MsgPaywall        = "paywall"
	MsgPostPaywall    = "post_paywall"
	MsgConversion     = "conversion"
	MsgFallback       = "fallback"
	MsgUnknownCommand = "unknown_command"
	MsgAdminOnly      = "admin_only"
	MsgResetDone      = "reset_done"
	MsgUserNotFound   = "user_not_found"
)

// Variant group prefixes and sizes. Replies are picked with GetOneOf.
const (
	GroupExcuse          = "excuse"
	GroupExcuseCount     = 4
	GroupDeflection      = "refusal_deflection"
	GroupDeflectionCount = 4
)
