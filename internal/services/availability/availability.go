// Package availability decides whether Luna engages, deflects or initiates.
package availability

import (
	"math/rand"
	"sync"
	"time"

	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/models"
	"github.com/sirupsen/logrus"
)

// Deflection types, consumed as prompt module suffixes.
const (
	DeflectTooSoon  = "too_soon"
	DeflectTired    = "tired"
	DeflectPlayful  = "playful"
	DeflectRomantic = "romantic"
	DeflectBusy     = "busy"
)

// initiateProbability triggers LUNA_INITIATES on calm playful turns.
const initiateProbability = 0.05

// initiateCooldown spaces Luna-initiated threads apart.
const initiateCooldown = 6 * time.Hour

// climaxPenaltyWindow steeply penalizes availability right after intimacy.
const climaxPenaltyWindow = 15 * time.Minute

// Inputs gathers what one arbitration looks at.
type Inputs struct {
	Now              time.Time
	Mood             models.Mood
	Momentum         float64
	LastClimaxAt     time.Time
	LastInitiationAt time.Time
	Intensity        models.Intensity
	Distress         bool
	SoftCapped       bool
	Phase            models.Phase
	PendingRecovery  models.Modifier // AFTERCARE / POST_INTIMATE carried from the previous turn
}

// Verdict is the arbitration outcome for the turn.
type Verdict struct {
	Modifier      models.Modifier
	DeflectReason string
	// TierCapped asks the router to keep the effective tier at 2 or below.
	TierCapped bool
}

// Arbiter implements the availability state machine. The random source is
// injectable for tests.
type Arbiter struct {
	logger *logrus.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewArbiter creates an arbiter.
func NewArbiter(logger *logrus.Logger) *Arbiter {
	return NewArbiterWithSeed(logger, time.Now().UnixNano())
}

// NewArbiterWithSeed creates an arbiter with a deterministic random source.
func NewArbiterWithSeed(logger *logrus.Logger, seed int64) *Arbiter {
	return &Arbiter{logger: logger, rng: rand.New(rand.NewSource(seed))}
}

// moodBias adjusts availability per mood.
var moodBias = map[models.Mood]float64{
	models.MoodTired:      -0.25,
	models.MoodStressed:   -0.15,
	models.MoodAnnoyed:    -0.20,
	models.MoodAnxious:    -0.10,
	models.MoodVulnerable: -0.05,
	models.MoodNeutral:    0,
	models.MoodHappy:      0.10,
	models.MoodPlayful:    0.20,
	models.MoodHorny:      0.30,
}

// Score computes the availability probability in [0, 1].
func (a *Arbiter) Score(in Inputs) float64 {
	score := 0.5

	// Steep penalty right after a climax, fading over the window.
	if !in.LastClimaxAt.IsZero() {
		since := in.Now.Sub(in.LastClimaxAt)
		if since < climaxPenaltyWindow {
			score -= 0.5 * (1 - since.Seconds()/climaxPenaltyWindow.Seconds())
		}
	}

	hour := in.Now.Hour()
	switch {
	case hour >= 21 || hour < 1:
		score += 0.20
	case hour >= 5 && hour < 9:
		score -= 0.25
	}

	score += moodBias[in.Mood]
	score += (a.draw() - 0.5) * 0.2 // uniform noise within ±0.10

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

// Decide applies the modifier precedence: user-distress override, post-climax
// recovery, soft cap, availability-based deflect, Luna-initiates, normal.
func (a *Arbiter) Decide(in Inputs) Verdict {
	if in.Distress {
		return Verdict{Modifier: models.ModifierUserDistress, TierCapped: true}
	}

	if in.PendingRecovery.IsRecovery() {
		return Verdict{Modifier: in.PendingRecovery}
	}

	if in.SoftCapped {
		return Verdict{Modifier: models.CappedModifier(in.Phase), TierCapped: true}
	}

	if in.Intensity.Escalating() {
		score := a.Score(in)
		if a.draw() > score {
			reason := a.deflectReason(in)
			a.logger.WithFields(logrus.Fields{
				"score":  score,
				"reason": reason,
				"mood":   in.Mood,
			}).Debug("Escalation deflected")
			return Verdict{
				Modifier:      models.DeflectModifier(reason),
				DeflectReason: reason,
				TierCapped:    true,
			}
		}
		return Verdict{}
	}

	if a.shouldInitiate(in) {
		return Verdict{Modifier: models.ModifierLunaInitiates}
	}

	return Verdict{}
}

// deflectReason picks the deflection type from mood and climax recency.
func (a *Arbiter) deflectReason(in Inputs) string {
	if !in.LastClimaxAt.IsZero() && in.Now.Sub(in.LastClimaxAt) < climaxPenaltyWindow {
		return DeflectTooSoon
	}
	switch in.Mood {
	case models.MoodTired:
		return DeflectTired
	case models.MoodPlayful, models.MoodHappy:
		return DeflectPlayful
	case models.MoodVulnerable, models.MoodHorny:
		return DeflectRomantic
	case models.MoodStressed, models.MoodAnnoyed:
		return DeflectBusy
	default:
		return DeflectTired
	}
}

// shouldInitiate fires on non-escalating turns with low momentum while Luna
// is playful, at most once per cooldown.
func (a *Arbiter) shouldInitiate(in Inputs) bool {
	if in.Intensity.Escalating() || in.Mood != models.MoodPlayful {
		return false
	}
	if in.Momentum >= 20 {
		return false
	}
	if !in.LastInitiationAt.IsZero() && in.Now.Sub(in.LastInitiationAt) < initiateCooldown {
		return false
	}
	return a.draw() < initiateProbability
}

func (a *Arbiter) draw() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rng.Float64()
}
