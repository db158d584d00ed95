package memory

import (
	"context"
	"testing"
	"time"

	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/config"
	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/middleware"
	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/models"
	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/services/storage"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var testMetrics = middleware.NewMetrics()

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func testStore(t *testing.T) *storage.Manager {
	t.Helper()
	cfg := &config.Config{}
	cfg.Storage.Type = "memory"
	m, err := storage.NewManager(cfg, testMetrics, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func testMemoryConfig() *config.MemoryConfig {
	return &config.MemoryConfig{
		TopK:           8,
		ScoreThreshold: 0.01,
		HalfLifeDays:   14,
		CharBudget:     500,
		DeepCharBudget: 5000,
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		text string
		lang string
		want []string
	}{
		{
			name: "french stopwords filtered",
			text: "je suis allé à la plage avec mon chien",
			lang: "fr",
			want: []string{"allé", "plage", "chien"},
		},
		{
			name: "english stopwords filtered",
			text: "I went to the beach with my dog",
			lang: "en",
			want: []string{"went", "beach", "dog"},
		},
		{
			name: "punctuation splits tokens",
			text: "Pixel, mon chat!",
			lang: "fr",
			want: []string{"pixel", "chat"},
		},
		{
			name: "single letters dropped",
			text: "a b chat",
			lang: "fr",
			want: []string{"chat"},
		},
		{
			name: "unknown language falls back to french",
			text: "le chat dort",
			lang: "de",
			want: []string{"chat", "dort"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokenize(tt.text, tt.lang)
			if len(got) != len(tt.want) {
				t.Fatalf("Tokenize(%q) = %v, want %v", tt.text, got, tt.want)
			}
			for _, w := range tt.want {
				if !got[w] {
					t.Errorf("Tokenize(%q) missing token %q (got %v)", tt.text, w, got)
				}
			}
		})
	}
}

// A question about the user's cat must surface the cat fact over unrelated
// ones, whatever their recency.
func TestRetrieveRecallsTheCat(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 20, 20, 0, 0, 0, time.UTC)

	user, _, err := store.GetOrCreateUser(ctx, 42, "Theo", "fr")
	if err != nil {
		t.Fatal(err)
	}

	events := []models.TimelineEvent{
		{
			FactType: models.FactPlain, Summary: "Il a un chat qui s'appelle Pixel",
			Keywords: []string{"chat", "pixel"}, Importance: 6,
			AgeTier: models.TimelineWarm, OccurredAt: now.Add(-20 * 24 * time.Hour),
		},
		{
			FactType: models.FactEvent, Summary: "Il a déménagé à Bordeaux le mois dernier",
			Keywords: []string{"déménagement", "bordeaux"}, Importance: 7,
			AgeTier: models.TimelineHot, OccurredAt: now.Add(-2 * 24 * time.Hour),
		},
		{
			FactType: models.FactPreference, Summary: "Il déteste le café",
			Keywords: []string{"café"}, Importance: 4,
			AgeTier: models.TimelineHot, OccurredAt: now.Add(-24 * time.Hour),
		},
	}
	for i := range events {
		events[i].ID = uuid.New()
		events[i].UserID = user.ID
		events[i].Type = models.EventMoment
		if err := store.AppendTimeline(ctx, &events[i]); err != nil {
			t.Fatal(err)
		}
	}

	r := NewRetriever(store, testMemoryConfig(), testLogger())
	facts, err := r.Retrieve(ctx, user.ID, "comment va Pixel ?", nil, "fr", now)
	if err != nil {
		t.Fatal(err)
	}
	if len(facts) == 0 {
		t.Fatal("no facts retrieved")
	}
	if facts[0].Event.Summary != "Il a un chat qui s'appelle Pixel" {
		t.Errorf("top fact = %q, want the cat", facts[0].Event.Summary)
	}
}

func TestRetrieveEmptyTimeline(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	user, _, err := store.GetOrCreateUser(ctx, 42, "Theo", "fr")
	if err != nil {
		t.Fatal(err)
	}

	r := NewRetriever(store, testMemoryConfig(), testLogger())
	facts, err := r.Retrieve(ctx, user.ID, "salut", nil, "fr", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if facts != nil {
		t.Errorf("expected no facts, got %v", facts)
	}
}

func TestRetrieveHonorsTopK(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	now := time.Now()

	user, _, err := store.GetOrCreateUser(ctx, 42, "Theo", "fr")
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 10; i++ {
		ev := models.TimelineEvent{
			ID: uuid.New(), UserID: user.ID, Type: models.EventMoment,
			FactType: models.FactPlain, Summary: "Il adore la montagne et le ski",
			Keywords: []string{"montagne", "ski"}, Importance: 5,
			AgeTier: models.TimelineHot, OccurredAt: now.Add(-time.Hour),
		}
		if err := store.AppendTimeline(ctx, &ev); err != nil {
			t.Fatal(err)
		}
	}

	cfg := testMemoryConfig()
	cfg.TopK = 3
	r := NewRetriever(store, cfg, testLogger())
	facts, err := r.Retrieve(ctx, user.ID, "on va au ski ?", nil, "fr", now)
	if err != nil {
		t.Fatal(err)
	}
	if len(facts) != 3 {
		t.Errorf("retrieved %d facts, want 3", len(facts))
	}
}

func TestFormat(t *testing.T) {
	facts := []ScoredFact{
		{Event: models.TimelineEvent{FactType: models.FactPlain, Summary: "Il a un chat nommé Pixel"}, Score: 0.9},
		{Event: models.TimelineEvent{FactType: models.FactRelationship, Summary: "Il est proche de sa soeur"}, Score: 0.8},
		{Event: models.TimelineEvent{FactType: models.FactPreference, Summary: "Il déteste le café"}, Score: 0.7},
	}

	out := Format(facts, 500)
	if out == "" {
		t.Fatal("empty format output")
	}
	// Relationship facts lead regardless of score order.
	relIdx := indexOf(out, "proche de sa soeur")
	factIdx := indexOf(out, "chat nommé Pixel")
	if relIdx == -1 || factIdx == -1 {
		t.Fatalf("facts missing from output: %q", out)
	}
	if relIdx > factIdx {
		t.Errorf("relationship fact not first: %q", out)
	}
}

func TestFormatRespectsBudget(t *testing.T) {
	var facts []ScoredFact
	for i := 0; i < 50; i++ {
		facts = append(facts, ScoredFact{
			Event: models.TimelineEvent{
				FactType: models.FactPlain,
				Summary:  "Une anecdote assez longue sur sa journée de travail au bureau",
			},
			Score: 0.5,
		})
	}

	out := Format(facts, 200)
	if len(out) > 200 {
		t.Errorf("output length %d exceeds budget 200", len(out))
	}
}

func TestFormatEmpty(t *testing.T) {
	if out := Format(nil, 500); out != "" {
		t.Errorf("Format(nil) = %q, want empty", out)
	}
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func TestParseFacts(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{
			name: "well formed lines",
			raw:  "fact|6|Il a un chat nommé Pixel|chat,pixel\npreference|4|Il déteste le café|café",
			want: 2,
		},
		{
			name: "none sentinel",
			raw:  "NONE",
			want: 0,
		},
		{
			name: "invalid type skipped",
			raw:  "opinion|5|Quelque chose|mot",
			want: 0,
		},
		{
			name: "importance out of range skipped",
			raw:  "fact|15|Trop important|mot\nfact|0|Pas assez|mot",
			want: 0,
		},
		{
			name: "malformed line skipped among valid ones",
			raw:  "du texte libre du modèle\nfact|5|Il joue de la guitare|guitare,musique",
			want: 1,
		},
		{
			name: "empty summary skipped",
			raw:  "fact|5||mots",
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseFacts(tt.raw)
			if len(got) != tt.want {
				t.Errorf("ParseFacts() = %d facts, want %d (%v)", len(got), tt.want, got)
			}
		})
	}
}

func TestParseFactsFields(t *testing.T) {
	facts := ParseFacts("relationship|8|Il est très proche de sa soeur Léa|soeur, léa, famille")
	if len(facts) != 1 {
		t.Fatalf("parsed %d facts, want 1", len(facts))
	}
	f := facts[0]
	if f.FactType != models.FactRelationship {
		t.Errorf("FactType = %q", f.FactType)
	}
	if f.Importance != 8 {
		t.Errorf("Importance = %d", f.Importance)
	}
	if f.Summary != "Il est très proche de sa soeur Léa" {
		t.Errorf("Summary = %q", f.Summary)
	}
	if len(f.Keywords) != 3 || f.Keywords[0] != "soeur" {
		t.Errorf("Keywords = %v", f.Keywords)
	}
}
