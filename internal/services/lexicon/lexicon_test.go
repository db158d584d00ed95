package lexicon

import (
	"testing"
)

const shippedPath = "../../../configs/lexicons.yaml"

// The shipped defaults must classify the vocabulary the engines depend on.
func TestShippedLexiconsCoverKnownInputs(t *testing.T) {
	lex, err := Load(shippedPath)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		text string
		list []string
	}{
		{name: "nsfw imperative", text: "baise-moi", list: lex.NSFW},
		{name: "nsfw undressing", text: "déshabille-toi", list: lex.NSFW},
		{name: "hot", text: "j'ai envie de toi", list: lex.Hot},
		{name: "flirt", text: "t'es trop mignonne", list: lex.Flirt},
		{name: "distress", text: "je vais mal ce soir", list: lex.Distress},
		{name: "ai probe", text: "t'es un bot non ?", list: lex.AIProbe},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !Matches(tt.text, tt.list) {
				t.Errorf("%q matched nothing in the %s list", tt.text, tt.name)
			}
		})
	}
}

func TestMatchesIsCaseInsensitive(t *testing.T) {
	if !Matches("BAISE-MOI", []string{"baise"}) {
		t.Error("uppercase input did not match")
	}
	if Matches("bonjour", []string{"baise"}) {
		t.Error("unrelated input matched")
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load("does-not-exist.yaml"); err == nil {
		t.Error("expected an error for a missing file")
	}
}
