// Package mood selects Luna's current emotional stance from a weighted
// distribution conditioned on time, history and sentiment.
package mood

import (
	"math/rand"
	"sync"
	"time"

	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/models"
	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/services/lexicon"
	"github.com/sirupsen/logrus"
)

// recomputeGate bounds how often the sampled mood may change on its own.
const recomputeGate = 2 * time.Hour

// Immediate-override probabilities. These bypass the two-hour gate.
const (
	complimentOverrideP    = 0.6
	vulnerabilityOverrideP = 0.7
	thirdPartyOverrideP    = 0.4
)

// Inputs gathers everything one mood computation looks at.
type Inputs struct {
	Now           time.Time
	LastMessageAt time.Time
	Text          string
	Intensity     models.Intensity
	Distress      bool
	Trust         float64 // 0..1 attachment estimate
	Phase         models.Phase
}

// Engine samples moods. The random source is injectable for tests.
type Engine struct {
	lex    *lexicon.Lexicons
	logger *logrus.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewEngine creates a mood engine.
func NewEngine(lex *lexicon.Lexicons, logger *logrus.Logger) *Engine {
	return NewEngineWithSeed(lex, logger, time.Now().UnixNano())
}

// NewEngineWithSeed creates a mood engine with a deterministic random source.
func NewEngineWithSeed(lex *lexicon.Lexicons, logger *logrus.Logger, seed int64) *Engine {
	return &Engine{
		lex:    lex,
		logger: logger,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// baseline returns the starting weight distribution.
func baseline() map[models.Mood]float64 {
	return map[models.Mood]float64{
		models.MoodNeutral:    0.30,
		models.MoodHappy:      0.18,
		models.MoodPlayful:    0.16,
		models.MoodTired:      0.08,
		models.MoodStressed:   0.07,
		models.MoodVulnerable: 0.06,
		models.MoodAnnoyed:    0.05,
		models.MoodAnxious:    0.05,
		models.MoodHorny:      0.05,
	}
}

// Update returns the mood state after this turn. Outside the two-hour gate the
// distribution is resampled; inside it only immediate overrides can change
// the mood.
func (e *Engine) Update(state models.MoodState, in Inputs) models.MoodState {
	if next, ok := e.immediateOverride(in); ok {
		if next != state.Current {
			e.logger.WithFields(logrus.Fields{
				"user_id": state.UserID,
				"from":    state.Current,
				"to":      next,
			}).Debug("Mood override")
			state.Current = next
			state.UpdatedAt = in.Now
		}
		return state
	}

	if !state.UpdatedAt.IsZero() && in.Now.Sub(state.UpdatedAt) < recomputeGate {
		return state
	}

	weights := baseline()
	e.adjust(weights, in)

	state.Current = e.sample(weights)
	state.UpdatedAt = in.Now
	return state
}

// adjust applies the additive conditioning rules in place.
func (e *Engine) adjust(weights map[models.Mood]float64, in Inputs) {
	hour := in.Now.Hour()
	weekday := in.Now.Weekday()

	// Late night leans playful and tired.
	if hour >= 22 || hour < 2 {
		weights[models.MoodPlayful] += 0.10
		weights[models.MoodTired] += 0.12
		weights[models.MoodHorny] += 0.05
	}
	// Early morning is groggy.
	if hour >= 6 && hour < 9 {
		weights[models.MoodTired] += 0.10
	}
	// Monday blues.
	if weekday == time.Monday {
		weights[models.MoodStressed] += 0.10
		weights[models.MoodAnnoyed] += 0.06
	}
	// Friday evening lifts everything.
	if weekday == time.Friday && hour >= 18 {
		weights[models.MoodHappy] += 0.12
		weights[models.MoodPlayful] += 0.08
	}
	// Long absence makes her anxious.
	if !in.LastMessageAt.IsZero() {
		silent := in.Now.Sub(in.LastMessageAt)
		if silent > 24*time.Hour {
			weights[models.MoodAnxious] += 0.15
			weights[models.MoodVulnerable] += 0.05
		}
	}
	// High trust opens the vulnerable register.
	if in.Trust > 0.6 {
		weights[models.MoodVulnerable] += 0.10
	}
	// Heated exchange.
	if in.Intensity.Escalating() {
		weights[models.MoodHorny] += 0.15
		weights[models.MoodPlayful] += 0.05
	}
	// A distressed user pulls her out of light moods.
	if in.Distress {
		weights[models.MoodPlayful] -= 0.10
		weights[models.MoodHorny] -= 0.20
		weights[models.MoodVulnerable] += 0.08
	}
	// Early phases keep the persona on safer ground.
	if in.Phase <= models.PhaseConnect {
		weights[models.MoodHorny] -= 0.04
	}

	for mood, w := range weights {
		if w < 0 {
			weights[mood] = 0
		}
	}
}

// immediateOverride checks the bypass triggers against the user text.
func (e *Engine) immediateOverride(in Inputs) (models.Mood, bool) {
	switch {
	case lexicon.Matches(in.Text, e.lex.Compliment) && e.draw() < complimentOverrideP:
		return models.MoodHappy, true
	case lexicon.Matches(in.Text, e.lex.Vulnerability) && e.draw() < vulnerabilityOverrideP:
		return models.MoodVulnerable, true
	case lexicon.Matches(in.Text, e.lex.ThirdParty) && e.draw() < thirdPartyOverrideP:
		return models.MoodAnnoyed, true
	}
	return models.MoodNeutral, false
}

// sample draws from the normalized distribution in AllMoods order.
func (e *Engine) sample(weights map[models.Mood]float64) models.Mood {
	var total float64
	for _, mood := range models.AllMoods {
		total += weights[mood]
	}
	if total <= 0 {
		return models.MoodNeutral
	}

	target := e.draw() * total
	var acc float64
	for _, mood := range models.AllMoods {
		acc += weights[mood]
		if target < acc {
			return mood
		}
	}
	return models.AllMoods[len(models.AllMoods)-1]
}

func (e *Engine) draw() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rng.Float64()
}

// TrustEstimate condenses durable counters into the 0..1 attachment proxy the
// mood and availability engines consume.
func TrustEstimate(rel *models.Relationship) float64 {
	trust := 0.05*float64(rel.Day) + 0.06*float64(rel.IntimacyHistory) + 0.04*float64(rel.TeasingStage)
	if trust > 1 {
		trust = 1
	}
	return trust
}
