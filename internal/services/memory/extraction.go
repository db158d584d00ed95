package memory

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/config"
	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/middleware"
	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/models"
	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/services/ai"
	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/services/storage"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// extractionPrompt asks the cheap model for pipe-delimited facts. Malformed
// lines in the reply are skipped.
const extractionPrompt = `Extract durable facts about the user from the conversation below.
Output one fact per line, format: type|importance|summary|keywords
- type: one of relationship, preference, event, fact, emotion
- importance: integer 1-10
- summary: one short sentence
- keywords: comma-separated words
Output nothing else. If there is no new fact, output NONE.`

// Extractor runs asynchronous memory extraction jobs. A failed or cancelled
// job never affects user-visible state: it only appends timeline events.
type Extractor struct {
	store   *storage.Manager
	aiSvc   ai.Service
	cfg     *config.MemoryConfig
	metrics *middleware.Metrics
	logger  *logrus.Logger

	root  context.Context
	group *errgroup.Group
}

// NewExtractor creates the extraction worker pool. Jobs inherit from root so
// shutdown cancels them independently of any turn.
func NewExtractor(root context.Context, store *storage.Manager, aiSvc ai.Service, cfg *config.MemoryConfig, metrics *middleware.Metrics, logger *logrus.Logger) *Extractor {
	group, ctx := errgroup.WithContext(root)
	group.SetLimit(4)
	return &Extractor{
		store:   store,
		aiSvc:   aiSvc,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
		root:    ctx,
		group:   group,
	}
}

// Schedule queues an extraction job over the user's recent window. It never
// blocks the calling turn.
func (e *Extractor) Schedule(userID uuid.UUID, lang string) {
	e.group.Go(func() error {
		if err := e.run(e.root, userID, lang); err != nil {
			e.logger.WithError(err).WithField("user_id", userID).Warn("Memory extraction failed")
			if e.metrics != nil {
				e.metrics.RecordExtractionJob("error")
			}
		} else if e.metrics != nil {
			e.metrics.RecordExtractionJob("success")
		}
		return nil // extraction errors are swallowed
	})
}

// Wait blocks until in-flight jobs finish; used on shutdown.
func (e *Extractor) Wait() {
	_ = e.group.Wait()
}

func (e *Extractor) run(ctx context.Context, userID uuid.UUID, lang string) error {
	history, err := e.store.LoadHistory(ctx, userID, e.cfg.ExtractWindow)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		return nil
	}

	var convo strings.Builder
	for _, msg := range history {
		convo.WriteString(msg.Role)
		convo.WriteString(": ")
		convo.WriteString(msg.Content)
		convo.WriteString("\n")
	}

	window := []models.Message{{
		UserID:  userID,
		Role:    models.RoleUser,
		Content: convo.String(),
	}}

	raw, err := e.aiSvc.Generate(ctx, ai.BackendEconomical, extractionPrompt, window, 300)
	if err != nil {
		return err
	}

	facts := ParseFacts(raw)
	if len(facts) == 0 {
		return nil
	}

	// Running extraction twice over the same window must not duplicate
	// stored facts, so dedupe against existing summaries.
	existing, err := e.store.QueryTimeline(ctx, userID, nil)
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(existing))
	for _, ev := range existing {
		seen[normalizeSummary(ev.Summary)] = true
	}

	now := time.Now()
	stored := 0
	for _, fact := range facts {
		key := normalizeSummary(fact.Summary)
		if seen[key] {
			continue
		}
		seen[key] = true

		event := models.TimelineEvent{
			ID:         uuid.New(),
			UserID:     userID,
			Type:       models.EventMoment,
			FactType:   fact.FactType,
			Summary:    fact.Summary,
			Keywords:   fact.Keywords,
			Importance: fact.Importance,
			AgeTier:    models.TimelineHot,
			OccurredAt: now,
		}
		if err := e.store.AppendTimeline(ctx, &event); err != nil {
			return err
		}
		stored++
	}

	e.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"parsed":  len(facts),
		"stored":  stored,
	}).Debug("Memory extraction completed")

	return nil
}

// ParsedFact is one line of extractor output.
type ParsedFact struct {
	FactType   string
	Importance int
	Summary    string
	Keywords   []string
}

var validFactTypes = map[string]bool{
	models.FactRelationship: true,
	models.FactPreference:   true,
	models.FactEvent:        true,
	models.FactPlain:        true,
	models.FactEmotion:      true,
}

// ParseFacts parses the pipe-delimited extractor output, skipping anything
// that does not fit the format.
func ParseFacts(raw string) []ParsedFact {
	var facts []ParsedFact
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.EqualFold(line, "NONE") {
			continue
		}

		parts := strings.SplitN(line, "|", 4)
		if len(parts) != 4 {
			continue
		}

		factType := strings.ToLower(strings.TrimSpace(parts[0]))
		if !validFactTypes[factType] {
			continue
		}

		importance, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil || importance < 1 || importance > 10 {
			continue
		}

		summary := strings.TrimSpace(parts[2])
		if summary == "" {
			continue
		}

		var keywords []string
		for _, kw := range strings.Split(parts[3], ",") {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" {
				keywords = append(keywords, kw)
			}
		}

		facts = append(facts, ParsedFact{
			FactType:   factType,
			Importance: importance,
			Summary:    summary,
			Keywords:   keywords,
		})
	}
	return facts
}

func normalizeSummary(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
