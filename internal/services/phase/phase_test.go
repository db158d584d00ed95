package phase

import (
	"testing"
	"time"

	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/config"
	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/models"
	"github.com/sirupsen/logrus"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		rel  models.Relationship
		want models.Phase
	}{
		{
			name: "first messages are hook",
			rel:  models.Relationship{Day: 1, MessageCount: 3},
			want: models.PhaseHook,
		},
		{
			name: "connect after ten messages",
			rel:  models.Relationship{Day: 1, MessageCount: 12},
			want: models.PhaseConnect,
		},
		{
			name: "attach after twenty five",
			rel:  models.Relationship{Day: 2, MessageCount: 30},
			want: models.PhaseAttach,
		},
		{
			name: "high count before day three stays tension",
			rel:  models.Relationship{Day: 2, MessageCount: 50},
			want: models.PhaseTension,
		},
		{
			name: "day three with enough messages hits paywall",
			rel:  models.Relationship{Day: 3, MessageCount: 40},
			want: models.PhasePaywall,
		},
		{
			name: "shown paywall falls back to tension",
			rel:  models.Relationship{Day: 4, MessageCount: 60, PaywallShown: true},
			want: models.PhaseTension,
		},
		{
			name: "paid user is libre",
			rel:  models.Relationship{Day: 1, MessageCount: 1, Paid: true},
			want: models.PhaseLibre,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Resolve(&tt.rel); got != tt.want {
				t.Errorf("Resolve() = %v, want %v", got, tt.want)
			}
		})
	}
}

// Phases never move backwards as counters grow, except for the terminal
// paywall/tension handoff.
func TestResolveMonotonic(t *testing.T) {
	rel := models.Relationship{Day: 1}
	prev := models.PhaseHook
	for count := 1; count <= 34; count++ {
		rel.MessageCount = count
		got := Resolve(&rel)
		if got < prev {
			t.Fatalf("phase regressed at count %d: %v after %v", count, got, prev)
		}
		prev = got
	}
}

func testGate() *Gate {
	cfg := &config.PaywallConfig{
		TrialDays:     3,
		ConversionDay: 5,
		PaywallDay:    3,
		PaywallMsgs:   35,
		MinTeasing:    3,
		MinPreviews:   2,
	}
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewGate(cfg, time.UTC, logger)
}

func TestTrialExpired(t *testing.T) {
	g := testGate()
	start := time.Date(2025, 6, 1, 22, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		user models.User
		now  time.Time
		want bool
	}{
		{
			name: "same day",
			user: models.User{TrialStartedAt: start},
			now:  start.Add(1 * time.Hour),
			want: false,
		},
		{
			name: "two calendar days later",
			user: models.User{TrialStartedAt: start},
			now:  start.Add(48 * time.Hour),
			want: false,
		},
		{
			name: "three calendar days later",
			user: models.User{TrialStartedAt: start},
			now:  time.Date(2025, 6, 4, 8, 0, 0, 0, time.UTC),
			want: true,
		},
		{
			name: "active subscription never expires",
			user: models.User{TrialStartedAt: start, Subscription: models.SubscriptionActive},
			now:  start.Add(30 * 24 * time.Hour),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := g.TrialExpired(&tt.user, tt.now); got != tt.want {
				t.Errorf("TrialExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluate(t *testing.T) {
	g := testGate()
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	shown := start.Add(24 * time.Hour)

	tests := []struct {
		name string
		user models.User
		rel  models.Relationship
		now  time.Time
		want Decision
	}{
		{
			name: "fresh trial proceeds",
			user: models.User{TrialStartedAt: start, Subscription: models.SubscriptionTrial},
			rel:  models.Relationship{Day: 1, MessageCount: 5},
			now:  start.Add(2 * time.Hour),
			want: DecisionNone,
		},
		{
			name: "expired trial shows paywall once",
			user: models.User{TrialStartedAt: start, Subscription: models.SubscriptionTrial},
			rel:  models.Relationship{Day: 4, MessageCount: 10},
			now:  start.Add(96 * time.Hour),
			want: DecisionPaywall,
		},
		{
			name: "expired trial after paywall degrades",
			user: models.User{TrialStartedAt: start, Subscription: models.SubscriptionTrial, PaywallSent: true},
			rel:  models.Relationship{Day: 4, MessageCount: 10},
			now:  start.Add(96 * time.Hour),
			want: DecisionPostPaywall,
		},
		{
			name: "phase paywall fires inside trial",
			user: models.User{TrialStartedAt: start, Subscription: models.SubscriptionTrial},
			rel:  models.Relationship{Day: 3, MessageCount: 40},
			now:  start.Add(30 * time.Hour),
			want: DecisionPaywall,
		},
		{
			name: "shown phase paywall degrades inside trial",
			user: models.User{TrialStartedAt: start, Subscription: models.SubscriptionTrial, PaywallSent: true},
			rel:  models.Relationship{Day: 3, MessageCount: 41, PaywallShown: true},
			now:  start.Add(31 * time.Hour),
			want: DecisionPostPaywall,
		},
		{
			name: "paid relationship always proceeds",
			user: models.User{TrialStartedAt: start, Subscription: models.SubscriptionActive},
			rel:  models.Relationship{Day: 30, MessageCount: 500, Paid: true},
			now:  start.Add(40 * 24 * time.Hour),
			want: DecisionNone,
		},
		{
			name: "conversion offer when all signals align",
			user: models.User{TrialStartedAt: start.Add(-2 * 24 * time.Hour), Subscription: models.SubscriptionTrial, PreviewCount: 3},
			rel:  models.Relationship{Day: 5, MessageCount: 20, TeasingStage: 4},
			now:  start,
			want: DecisionConversion,
		},
		{
			name: "conversion fires once",
			user: models.User{TrialStartedAt: start.Add(-2 * 24 * time.Hour), Subscription: models.SubscriptionTrial, PreviewCount: 3, ConversionShown: &shown},
			rel:  models.Relationship{Day: 5, MessageCount: 20, TeasingStage: 4},
			now:  start,
			want: DecisionNone,
		},
		{
			name: "conversion held back without teasing",
			user: models.User{TrialStartedAt: start.Add(-2 * 24 * time.Hour), Subscription: models.SubscriptionTrial, PreviewCount: 3},
			rel:  models.Relationship{Day: 5, MessageCount: 20, TeasingStage: 1},
			now:  start,
			want: DecisionNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := g.Evaluate(&tt.user, &tt.rel, tt.now); got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}
