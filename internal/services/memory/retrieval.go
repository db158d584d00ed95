// Package memory scores stored facts for prompt injection and extracts new
// ones from recent conversation.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/config"
	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/models"
	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/services/storage"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// decayFloor keeps old facts from being fully forgotten.
const decayFloor = 0.1

// typeBoost weights facts by kind; relational facts matter most.
var typeBoost = map[string]float64{
	models.FactRelationship: 1.5,
	models.FactPreference:   1.3,
	models.FactEvent:        1.2,
	models.FactPlain:        1.0,
	models.FactEmotion:      0.9,
}

// tierBoost favors long-term memory bands.
var tierBoost = map[string]float64{
	models.TimelineHot:  1.0,
	models.TimelineWarm: 1.1,
	models.TimelineCold: 1.2,
}

// ScoredFact pairs a timeline event with its retrieval score.
type ScoredFact struct {
	Event models.TimelineEvent
	Score float64
}

// Retriever scores stored facts against the conversation query.
type Retriever struct {
	store  *storage.Manager
	cfg    *config.MemoryConfig
	logger *logrus.Logger
}

// NewRetriever creates a retriever over the store.
func NewRetriever(store *storage.Manager, cfg *config.MemoryConfig, logger *logrus.Logger) *Retriever {
	return &Retriever{store: store, cfg: cfg, logger: logger}
}

// Retrieve returns the top facts for the query, ordered by descending score.
// priorMessages extend the query context; lang selects the stopword list.
func (r *Retriever) Retrieve(ctx context.Context, userID uuid.UUID, query string, priorMessages []string, lang string, now time.Time) ([]ScoredFact, error) {
	events, err := r.store.QueryTimeline(ctx, userID, nil)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}

	queryTokens := Tokenize(query, lang)
	for _, prior := range priorMessages {
		for tok := range Tokenize(prior, lang) {
			if _, seen := queryTokens[tok]; !seen {
				queryTokens[tok] = true
			}
		}
	}
	topics := detectTopics(queryTokens)

	var scored []ScoredFact
	for _, ev := range events {
		score := r.score(&ev, queryTokens, topics, lang, now)
		if score >= r.cfg.ScoreThreshold {
			scored = append(scored, ScoredFact{Event: ev, Score: score})
		}
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > r.cfg.TopK {
		scored = scored[:r.cfg.TopK]
	}
	return scored, nil
}

// score = relevance * decay * importance * type_boost * topic_boost * tier_boost
func (r *Retriever) score(ev *models.TimelineEvent, queryTokens map[string]bool, topics map[string]bool, lang string, now time.Time) float64 {
	factTokens := Tokenize(ev.Summary, lang)
	for _, kw := range ev.Keywords {
		for tok := range Tokenize(kw, lang) {
			factTokens[tok] = true
		}
	}

	relevance := similarity(queryTokens, factTokens)
	if ev.Pinned && relevance < 0.2 {
		relevance = 0.2 // pinned facts keep a floor of presence
	}
	if relevance == 0 {
		return 0
	}

	ageDays := now.Sub(ev.OccurredAt).Hours() / 24
	decay := math.Exp(-math.Ln2 * ageDays / r.cfg.HalfLifeDays)
	if decay < decayFloor {
		decay = decayFloor
	}

	importance := float64(ev.Importance) / 10
	if importance <= 0 {
		importance = 0.1
	}

	tb, ok := typeBoost[ev.FactType]
	if !ok {
		tb = 1.0
	}

	topic := 1.0
	for cluster := range topics {
		if factInCluster(factTokens, cluster) {
			topic += 0.3
		}
	}

	band, ok := tierBoost[ev.AgeTier]
	if !ok {
		band = 1.0
	}

	return relevance * decay * importance * tb * topic * band
}

// similarity blends Jaccard with query-term overlap so short queries still
// hit long facts.
func similarity(query, fact map[string]bool) float64 {
	if len(query) == 0 || len(fact) == 0 {
		return 0
	}

	intersection := 0
	for tok := range query {
		if fact[tok] {
			intersection++
		}
	}
	if intersection == 0 {
		return 0
	}

	union := len(query) + len(fact) - intersection
	jaccard := float64(intersection) / float64(union)
	overlap := float64(intersection) / float64(len(query))

	return 0.5*jaccard + 0.5*overlap
}

// detectTopics finds which clusters the query vocabulary touches.
func detectTopics(queryTokens map[string]bool) map[string]bool {
	topics := make(map[string]bool)
	for cluster, vocab := range topicClusters {
		for _, w := range vocab {
			if queryTokens[w] {
				topics[cluster] = true
				break
			}
		}
	}
	return topics
}

func factInCluster(factTokens map[string]bool, cluster string) bool {
	for _, w := range topicClusters[cluster] {
		if factTokens[w] {
			return true
		}
	}
	return false
}

// Tokenize lowercases, splits on non-letter/digit runes and filters the
// stopwords of the given language (falling back to French).
func Tokenize(text, lang string) map[string]bool {
	stops, ok := stopwords[lang]
	if !ok {
		stops = stopwords["fr"]
	}

	tokens := make(map[string]bool)
	var b strings.Builder
	flush := func() {
		if b.Len() == 0 {
			return
		}
		tok := b.String()
		b.Reset()
		if utf8.RuneCountInString(tok) < 2 || stops[tok] {
			return
		}
		tokens[tok] = true
	}

	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

// Format renders scored facts grouped by fact type within the char budget.
func Format(facts []ScoredFact, budget int) string {
	if len(facts) == 0 {
		return ""
	}

	order := []string{
		models.FactRelationship, models.FactPreference, models.FactEvent,
		models.FactPlain, models.FactEmotion,
	}
	grouped := make(map[string][]ScoredFact)
	for _, f := range facts {
		grouped[f.Event.FactType] = append(grouped[f.Event.FactType], f)
	}

	var b strings.Builder
	for _, factType := range order {
		group := grouped[factType]
		if len(group) == 0 {
			continue
		}
		header := fmt.Sprintf("[%s]\n", factType)
		if b.Len()+len(header) > budget {
			break
		}
		b.WriteString(header)
		for _, f := range group {
			line := "- " + f.Event.Summary + "\n"
			if b.Len()+len(line) > budget {
				break
			}
			b.WriteString(line)
		}
	}
	return strings.TrimSpace(b.String())
}
