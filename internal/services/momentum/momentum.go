// Package momentum translates message content into the 0-100 scalar that
// drives tier selection and content gating.
package momentum

import (
	"time"

	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/models"
	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/services/lexicon"
	"github.com/sirupsen/logrus"
)

// Per-bucket momentum increments.
const (
	incrementSFW   = 2
	incrementFlirt = 8
	incrementHot   = 15
	incrementNSFW  = 25

	// decayPerMinute is subtracted per minute of silence before integrating.
	decayPerMinute = 5.0

	// sfwAccelerator speeds the return to baseline right after intimacy.
	sfwAccelerator       = 10.0
	sfwAcceleratorWindow = 3

	// climaxCooldown is the one-shot reduction on climax detection.
	climaxCooldown = 40.0

	momentumMax = 100.0
)

// Soft-cap gates: HOT/NSFW attempts are downgraded while either holds.
const (
	softCapMinDay     = 3
	softCapMinSession = 8
)

// Engine classifies messages and integrates them into momentum state.
type Engine struct {
	lex    *lexicon.Lexicons
	logger *logrus.Logger
}

// NewEngine creates a momentum engine over the loaded lexicons.
func NewEngine(lex *lexicon.Lexicons, logger *logrus.Logger) *Engine {
	return &Engine{lex: lex, logger: logger}
}

// Classify buckets a user message by the strongest lexicon it matches.
func (e *Engine) Classify(text string) models.Intensity {
	switch {
	case lexicon.Matches(text, e.lex.NSFW):
		return models.IntensityNSFW
	case lexicon.Matches(text, e.lex.Hot):
		return models.IntensityHot
	case lexicon.Matches(text, e.lex.Flirt):
		return models.IntensityFlirt
	}
	return models.IntensitySFW
}

// DetectDistress flags sadness/distress tokens. A distressed turn forbids
// escalation modifiers regardless of classified intensity.
func (e *Engine) DetectDistress(text string) bool {
	return lexicon.Matches(text, e.lex.Distress)
}

// DetectUserClimax matches the user-direction climax lexicon.
func (e *Engine) DetectUserClimax(text string) bool {
	return lexicon.Matches(text, e.lex.ClimaxUser)
}

// DetectAssistantClimax matches the assistant-direction climax lexicon.
func (e *Engine) DetectAssistantClimax(text string) bool {
	return lexicon.Matches(text, e.lex.ClimaxAssistant)
}

// Integrate applies time decay for the silence since the previous message,
// then the bucket increment, then the SFW accelerator when the user is
// cooling down after intimacy. The result stays within [0, 100].
func (e *Engine) Integrate(state models.MomentumState, rel *models.Relationship, intensity models.Intensity, now time.Time) models.MomentumState {
	if !state.UpdatedAt.IsZero() {
		minutes := now.Sub(state.UpdatedAt).Minutes()
		if minutes > 0 {
			state.Momentum -= decayPerMinute * minutes
		}
	}
	if state.Momentum < 0 {
		state.Momentum = 0
	}

	switch intensity {
	case models.IntensityNSFW:
		state.Momentum += incrementNSFW
	case models.IntensityHot:
		state.Momentum += incrementHot
	case models.IntensityFlirt:
		state.Momentum += incrementFlirt
	default:
		state.Momentum += incrementSFW
		if rel.MessagesSinceClimax <= sfwAcceleratorWindow {
			state.Momentum += sfwAccelerator
		}
	}

	if state.Momentum > momentumMax {
		state.Momentum = momentumMax
	}

	state.Tier = e.TierFor(state.Momentum, rel.IntimacyHistory)
	state.UpdatedAt = now
	return state
}

// ApplyClimax reduces momentum by the cooldown and stamps the climax time.
func (e *Engine) ApplyClimax(state models.MomentumState, rel *models.Relationship, now time.Time) models.MomentumState {
	state.Momentum -= climaxCooldown
	if state.Momentum < 0 {
		state.Momentum = 0
	}
	state.LastClimaxAt = now
	state.Tier = e.TierFor(state.Momentum, rel.IntimacyHistory)
	state.UpdatedAt = now

	e.logger.WithFields(logrus.Fields{
		"user_id":  state.UserID,
		"momentum": state.Momentum,
	}).Debug("Climax cooldown applied")

	return state
}

// Thresholds returns the (tier2, tier3) momentum boundaries for a user with
// the given number of completed intimate sessions. Familiar users heat up
// faster.
func Thresholds(intimacyHistory int) (t2, t3 float64) {
	switch {
	case intimacyHistory >= 10:
		return 20, 40
	case intimacyHistory >= 3:
		return 25, 50
	case intimacyHistory >= 1:
		return 35, 60
	default:
		return 40, 70
	}
}

// TierFor maps momentum to a content tier given the user's history.
func (e *Engine) TierFor(momentum float64, intimacyHistory int) models.Tier {
	t2, t3 := Thresholds(intimacyHistory)
	switch {
	case momentum >= t3:
		return models.Tier3
	case momentum >= t2:
		return models.Tier2
	default:
		return models.Tier1
	}
}

// SoftCapApplies reports whether a HOT/NSFW attempt must be downgraded
// because the relationship is too young or the session too short.
func SoftCapApplies(intensity models.Intensity, rel *models.Relationship) bool {
	if !intensity.Escalating() {
		return false
	}
	return rel.Day < softCapMinDay || rel.MessagesThisSession < softCapMinSession
}

// CapTier downgrades an effective tier under the soft cap.
func CapTier(tier models.Tier) models.Tier {
	if tier > models.Tier2 {
		return models.Tier2
	}
	return tier
}
