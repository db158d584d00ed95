// Package phase maps durable counters onto the conversation phase and hosts
// the paywall/conversion gate.
package phase

import (
	"time"

	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/config"
	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/models"
	"github.com/sirupsen/logrus"
)

// Message-count boundaries for the trial phases.
const (
	hookMax    = 10
	connectMax = 25
	attachMax  = 35
)

// Resolve is pure and cheap; it is recomputed every turn from counters.
func Resolve(rel *models.Relationship) models.Phase {
	switch {
	case rel.Paid:
		return models.PhaseLibre
	case rel.Day >= 3 && rel.MessageCount >= attachMax && !rel.PaywallShown:
		return models.PhasePaywall
	case rel.PaywallShown:
		return models.PhaseTension
	case rel.MessageCount < hookMax:
		return models.PhaseHook
	case rel.MessageCount < connectMax:
		return models.PhaseConnect
	case rel.MessageCount < attachMax:
		return models.PhaseAttach
	default:
		return models.PhaseTension
	}
}

// Decision is the gate's verdict for the current turn.
type Decision int

const (
	// DecisionNone lets the turn proceed through generation.
	DecisionNone Decision = iota
	// DecisionPaywall emits the paywall message and terminates the turn.
	DecisionPaywall
	// DecisionPostPaywall emits the degraded post-paywall line and terminates.
	DecisionPostPaywall
	// DecisionConversion prepends the soft conversion offer, then proceeds.
	DecisionConversion
)

// Gate implements trial-day bookkeeping and paywall-once semantics.
type Gate struct {
	cfg    *config.PaywallConfig
	loc    *time.Location
	logger *logrus.Logger
}

// NewGate creates the paywall/conversion gate.
func NewGate(cfg *config.PaywallConfig, loc *time.Location, logger *logrus.Logger) *Gate {
	return &Gate{cfg: cfg, loc: loc, logger: logger}
}

// TrialExpired reports whether the fixed trial window has elapsed, counted in
// calendar days in the configured time zone.
func (g *Gate) TrialExpired(user *models.User, now time.Time) bool {
	if user.Subscription == models.SubscriptionActive {
		return false
	}
	start := user.TrialStartedAt.In(g.loc)
	local := now.In(g.loc)

	startDay := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, g.loc)
	nowDay := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, g.loc)

	elapsed := int(nowDay.Sub(startDay).Hours() / 24)
	return elapsed >= g.cfg.TrialDays
}

// Evaluate decides the gate action for one turn. A shown paywall keeps the
// user on the degraded path until payment, whether it fired on trial expiry
// or on the phase boundary; otherwise trial expiry is checked first, the
// phase-based paywall second, the soft conversion last.
func (g *Gate) Evaluate(user *models.User, rel *models.Relationship, now time.Time) Decision {
	if rel.Paid || user.Subscription == models.SubscriptionActive {
		return DecisionNone
	}

	if user.PaywallSent || rel.PaywallShown {
		return DecisionPostPaywall
	}

	if g.TrialExpired(user, now) {
		return DecisionPaywall
	}

	if rel.Day >= g.cfg.PaywallDay && rel.MessageCount >= g.cfg.PaywallMsgs {
		return DecisionPaywall
	}

	if g.conversionEligible(user, rel) {
		return DecisionConversion
	}

	return DecisionNone
}

// conversionEligible implements the once-per-user soft offer at the
// configured day, fired only when engagement signals cross thresholds.
func (g *Gate) conversionEligible(user *models.User, rel *models.Relationship) bool {
	if user.ConversionShown != nil {
		return false
	}
	if rel.Day < g.cfg.ConversionDay {
		return false
	}
	return rel.TeasingStage >= g.cfg.MinTeasing && user.PreviewCount >= g.cfg.MinPreviews
}
