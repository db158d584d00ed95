// Package pacing decides how a finished reply is delivered: think delay,
// typing duration, splits and excuses.
package pacing

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/i18n"
	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/models"
	"github.com/sirupsen/logrus"
)

// Pattern is the coarse response-speed bucket.
type Pattern string

const (
	PatternInstant  Pattern = "instant"
	PatternQuick    Pattern = "quick"
	PatternNormal   Pattern = "normal"
	PatternSlow     Pattern = "slow"
	PatternVerySlow Pattern = "very_slow"
	PatternDelayed  Pattern = "delayed"
)

// Style governs how the typing indicator behaves.
type Style string

const (
	StyleSimple   Style = "simple"
	StyleHesitant Style = "hesitant"
	StyleRewrite  Style = "rewrite"
	StyleExcited  Style = "excited"
	StyleThinking Style = "thinking"
)

// excuseProbability applies on very_slow/delayed non-intimate turns.
const excuseProbability = 0.7

// typingCap bounds the simulated typing time.
const typingCap = 30 * time.Second

// splitThreshold is the reply length above which splitting is considered.
const splitThreshold = 220

// Inputs gathers what one pacing decision looks at.
type Inputs struct {
	Response     string
	UserTextLen  int
	Momentum     float64
	Now          time.Time
	Mood         models.Mood
	Subscription string
	Intimate     bool
	Lang         string
}

// Plan is the delivery schedule for one reply.
type Plan struct {
	Pattern        Pattern
	Style          Style
	ThinkDelay     time.Duration
	TypingDuration time.Duration
	// Excuse, when non-empty, is sent as its own message before the reply.
	Excuse string
	// Parts is the reply split into 1-3 messages, in order.
	Parts []string
	// Pauses holds the inter-message pauses; len(Pauses) == len(Parts)-1.
	Pauses []time.Duration
}

// Dispatcher samples delivery plans. The random source is injectable for
// tests.
type Dispatcher struct {
	localizer *i18n.Localizer
	logger    *logrus.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewDispatcher creates a pacing dispatcher.
func NewDispatcher(localizer *i18n.Localizer, logger *logrus.Logger) *Dispatcher {
	return NewDispatcherWithSeed(localizer, logger, time.Now().UnixNano())
}

// NewDispatcherWithSeed creates a dispatcher with a deterministic source.
func NewDispatcherWithSeed(localizer *i18n.Localizer, logger *logrus.Logger, seed int64) *Dispatcher {
	return &Dispatcher{
		localizer: localizer,
		logger:    logger,
		rng:       rand.New(rand.NewSource(seed)),
	}
}

// patternWeights returns the sampling table for the hour bucket.
func patternWeights(hour int) map[Pattern]float64 {
	switch {
	case hour >= 23 || hour < 6: // she is mostly asleep
		return map[Pattern]float64{
			PatternInstant: 0.02, PatternQuick: 0.08, PatternNormal: 0.20,
			PatternSlow: 0.30, PatternVerySlow: 0.25, PatternDelayed: 0.15,
		}
	case hour < 12: // getting ready, commuting
		return map[Pattern]float64{
			PatternInstant: 0.05, PatternQuick: 0.20, PatternNormal: 0.35,
			PatternSlow: 0.25, PatternVerySlow: 0.10, PatternDelayed: 0.05,
		}
	case hour < 18: // at work
		return map[Pattern]float64{
			PatternInstant: 0.05, PatternQuick: 0.15, PatternNormal: 0.30,
			PatternSlow: 0.30, PatternVerySlow: 0.15, PatternDelayed: 0.05,
		}
	default: // evening, phone in hand
		return map[Pattern]float64{
			PatternInstant: 0.15, PatternQuick: 0.35, PatternNormal: 0.30,
			PatternSlow: 0.12, PatternVerySlow: 0.06, PatternDelayed: 0.02,
		}
	}
}

var patternOrder = []Pattern{
	PatternInstant, PatternQuick, PatternNormal,
	PatternSlow, PatternVerySlow, PatternDelayed,
}

// thinkDelayRange returns the pre-typing pause bounds per pattern.
func thinkDelayRange(p Pattern) (time.Duration, time.Duration) {
	switch p {
	case PatternInstant:
		return 300 * time.Millisecond, 1 * time.Second
	case PatternQuick:
		return 500 * time.Millisecond, 2 * time.Second
	case PatternNormal:
		return 1 * time.Second, 3 * time.Second
	case PatternSlow:
		return 3 * time.Second, 8 * time.Second
	case PatternVerySlow:
		return 8 * time.Second, 20 * time.Second
	default: // delayed
		return 20 * time.Second, 60 * time.Second
	}
}

// BuildPlan computes the full delivery plan for one reply.
func (d *Dispatcher) BuildPlan(in Inputs) Plan {
	pattern := d.samplePattern(in)
	style := d.sampleStyle(pattern, in)

	minDelay, maxDelay := thinkDelayRange(pattern)
	think := minDelay + time.Duration(d.draw()*float64(maxDelay-minDelay))
	if style == StyleThinking {
		think += time.Duration(d.draw() * float64(2*time.Second))
	}

	// Typing speed 3-5 chars per second, scaled by reply length.
	cps := 3 + d.draw()*2
	typing := time.Duration(float64(len(in.Response)) / cps * float64(time.Second))
	if style == StyleRewrite {
		typing = typing * 3 / 2
	}
	if typing > typingCap {
		typing = typingCap
	}

	plan := Plan{
		Pattern:        pattern,
		Style:          style,
		ThinkDelay:     think,
		TypingDuration: typing,
	}

	// Excuses are forbidden during intimate turns to preserve immersion.
	if (pattern == PatternVerySlow || pattern == PatternDelayed) && !in.Intimate {
		if d.draw() < excuseProbability {
			plan.Excuse = d.localizer.GetOneOf(in.Lang, i18n.GroupExcuse, i18n.GroupExcuseCount)
		}
	}

	plan.Parts, plan.Pauses = d.split(in.Response)

	d.logger.WithFields(logrus.Fields{
		"pattern": pattern,
		"style":   style,
		"think":   think,
		"typing":  typing,
		"parts":   len(plan.Parts),
	}).Debug("Pacing plan built")

	return plan
}

// samplePattern draws from the hour table, then applies modifiers.
func (d *Dispatcher) samplePattern(in Inputs) Pattern {
	// Intimate turns never make the user wait.
	if in.Intimate {
		if d.draw() < 0.5 {
			return PatternInstant
		}
		return PatternQuick
	}

	weights := patternWeights(in.Now.Hour())

	// High momentum means she is hooked on the exchange.
	if in.Momentum > 60 {
		weights[PatternInstant] *= 2
		weights[PatternQuick] *= 2
		weights[PatternVerySlow] *= 0.3
		weights[PatternDelayed] *= 0.2
	}
	if in.Mood == models.MoodTired {
		weights[PatternSlow] *= 1.5
		weights[PatternVerySlow] *= 1.5
		weights[PatternInstant] *= 0.5
	}
	if in.Mood == models.MoodPlayful || in.Mood == models.MoodHorny {
		weights[PatternQuick] *= 1.4
	}
	// Subscribers get a slightly more present Luna.
	if in.Subscription == models.SubscriptionActive {
		weights[PatternDelayed] *= 0.5
	}

	var total float64
	for _, p := range patternOrder {
		total += weights[p]
	}
	target := d.draw() * total
	var acc float64
	for _, p := range patternOrder {
		acc += weights[p]
		if target < acc {
			return p
		}
	}
	return PatternNormal
}

// sampleStyle picks the typing style consistent with the pattern and mood.
func (d *Dispatcher) sampleStyle(pattern Pattern, in Inputs) Style {
	roll := d.draw()
	switch {
	case in.Mood == models.MoodHorny || in.Mood == models.MoodPlayful:
		if roll < 0.4 {
			return StyleExcited
		}
	case in.Mood == models.MoodVulnerable || in.Mood == models.MoodAnxious:
		if roll < 0.4 {
			return StyleHesitant
		}
	}
	switch {
	case pattern == PatternSlow || pattern == PatternVerySlow:
		if roll < 0.35 {
			return StyleThinking
		}
	case len(in.Response) > splitThreshold:
		if roll < 0.25 {
			return StyleRewrite
		}
	}
	return StyleSimple
}

// split cuts long replies on sentence boundaries into at most 3 messages
// with 1-4 s pauses.
func (d *Dispatcher) split(response string) ([]string, []time.Duration) {
	if len(response) <= splitThreshold {
		return []string{response}, nil
	}

	sentences := splitSentences(response)
	if len(sentences) < 2 {
		return []string{response}, nil
	}

	maxParts := 2
	if len(response) > 2*splitThreshold && len(sentences) >= 3 {
		maxParts = 3
	}

	parts := make([]string, 0, maxParts)
	per := (len(sentences) + maxParts - 1) / maxParts
	for i := 0; i < len(sentences); i += per {
		end := i + per
		if end > len(sentences) {
			end = len(sentences)
		}
		parts = append(parts, strings.TrimSpace(strings.Join(sentences[i:end], " ")))
	}

	pauses := make([]time.Duration, len(parts)-1)
	for i := range pauses {
		pauses[i] = time.Second + time.Duration(d.draw()*float64(3*time.Second))
	}
	return parts, pauses
}

// splitSentences performs a light sentence segmentation.
func splitSentences(text string) []string {
	var sentences []string
	var b strings.Builder
	for _, r := range text {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' || r == '…' {
			if s := strings.TrimSpace(b.String()); s != "" {
				sentences = append(sentences, s)
			}
			b.Reset()
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func (d *Dispatcher) draw() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rng.Float64()
}
