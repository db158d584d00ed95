// Package lexicon loads the opaque keyword lists the engines match against.
// The lists themselves are data: the core never hardcodes vocabulary.
package lexicon

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Lexicons holds every keyword list the pipeline matches against. All
// matching is case-insensitive substring match over the lowercased text.
type Lexicons struct {
	Flirt           []string `mapstructure:"flirt"`
	Hot             []string `mapstructure:"hot"`
	NSFW            []string `mapstructure:"nsfw"`
	Distress        []string `mapstructure:"distress"`
	ClimaxUser      []string `mapstructure:"climax_user"`
	ClimaxAssistant []string `mapstructure:"climax_assistant"`
	Refusal         []string `mapstructure:"refusal"`
	Compliment      []string `mapstructure:"compliment"`
	Vulnerability   []string `mapstructure:"vulnerability"`
	ThirdParty      []string `mapstructure:"third_party"`
	AIProbe         []string `mapstructure:"ai_probe"`
	Question        []string `mapstructure:"question"`
}

// Load reads the lexicon file. Missing optional lists stay empty; the three
// intensity lists are required.
func Load(path string) (*Lexicons, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read lexicon file: %w", err)
	}

	var lex Lexicons
	if err := v.Unmarshal(&lex); err != nil {
		return nil, fmt.Errorf("failed to unmarshal lexicons: %w", err)
	}

	if len(lex.Flirt) == 0 || len(lex.Hot) == 0 || len(lex.NSFW) == 0 {
		return nil, fmt.Errorf("lexicon file %s is missing intensity lists", path)
	}

	normalize := func(list []string) []string {
		out := make([]string, 0, len(list))
		for _, s := range list {
			s = strings.ToLower(strings.TrimSpace(s))
			if s != "" {
				out = append(out, s)
			}
		}
		return out
	}

	lex.Flirt = normalize(lex.Flirt)
	lex.Hot = normalize(lex.Hot)
	lex.NSFW = normalize(lex.NSFW)
	lex.Distress = normalize(lex.Distress)
	lex.ClimaxUser = normalize(lex.ClimaxUser)
	lex.ClimaxAssistant = normalize(lex.ClimaxAssistant)
	lex.Refusal = normalize(lex.Refusal)
	lex.Compliment = normalize(lex.Compliment)
	lex.Vulnerability = normalize(lex.Vulnerability)
	lex.ThirdParty = normalize(lex.ThirdParty)
	lex.AIProbe = normalize(lex.AIProbe)
	lex.Question = normalize(lex.Question)

	return &lex, nil
}

// Matches reports whether any entry of the list occurs in the text.
func Matches(text string, list []string) bool {
	lowered := strings.ToLower(text)
	for _, entry := range list {
		if strings.Contains(lowered, entry) {
			return true
		}
	}
	return false
}
