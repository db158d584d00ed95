package momentum

import (
	"testing"
	"time"

	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/models"
	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/services/lexicon"
	"github.com/sirupsen/logrus"
)

func testLexicons() *lexicon.Lexicons {
	return &lexicon.Lexicons{
		Flirt:      []string{"mignonne", "tu me plais"},
		Hot:        []string{"embrasse-moi", "envie de toi"},
		NSFW:       []string{"déshabille", "faire l'amour"},
		Distress:   []string{"je vais mal", "déprimé"},
		ClimaxUser: []string{"j'ai joui"},
	}
}

func testEngine() *Engine {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewEngine(testLexicons(), logger)
}

func TestClassify(t *testing.T) {
	e := testEngine()

	tests := []struct {
		name string
		text string
		want models.Intensity
	}{
		{
			name: "plain message",
			text: "j'ai passé une bonne journée au boulot",
			want: models.IntensitySFW,
		},
		{
			name: "flirt token",
			text: "t'es trop mignonne toi",
			want: models.IntensityFlirt,
		},
		{
			name: "hot token",
			text: "j'ai envie de toi ce soir",
			want: models.IntensityHot,
		},
		{
			name: "nsfw token",
			text: "déshabille-toi",
			want: models.IntensityNSFW,
		},
		{
			name: "strongest bucket wins",
			text: "tu me plais et j'ai envie de toi, on pourrait faire l'amour",
			want: models.IntensityNSFW,
		},
		{
			name: "case insensitive",
			text: "EMBRASSE-MOI",
			want: models.IntensityHot,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.Classify(tt.text); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestIntegrate(t *testing.T) {
	e := testEngine()
	now := time.Date(2025, 6, 1, 21, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		state     models.MomentumState
		rel       models.Relationship
		intensity models.Intensity
		now       time.Time
		want      float64
	}{
		{
			name:      "fresh state gets the bucket increment",
			state:     models.MomentumState{},
			rel:       models.Relationship{MessagesSinceClimax: models.NoClimaxSentinel},
			intensity: models.IntensityFlirt,
			now:       now,
			want:      8,
		},
		{
			name:      "decay applies for the silent gap",
			state:     models.MomentumState{Momentum: 50, UpdatedAt: now.Add(-4 * time.Minute)},
			rel:       models.Relationship{MessagesSinceClimax: models.NoClimaxSentinel},
			intensity: models.IntensityHot,
			now:       now,
			want:      45, // 50 - 4*5 + 15
		},
		{
			name:      "momentum never drops below zero",
			state:     models.MomentumState{Momentum: 10, UpdatedAt: now.Add(-1 * time.Hour)},
			rel:       models.Relationship{MessagesSinceClimax: models.NoClimaxSentinel},
			intensity: models.IntensitySFW,
			now:       now,
			want:      2,
		},
		{
			name:      "momentum caps at one hundred",
			state:     models.MomentumState{Momentum: 95, UpdatedAt: now},
			rel:       models.Relationship{MessagesSinceClimax: models.NoClimaxSentinel},
			intensity: models.IntensityNSFW,
			now:       now,
			want:      100,
		},
		{
			name:      "sfw accelerator right after intimacy",
			state:     models.MomentumState{Momentum: 20, UpdatedAt: now},
			rel:       models.Relationship{MessagesSinceClimax: 2},
			intensity: models.IntensitySFW,
			now:       now,
			want:      32, // 20 + 2 + 10
		},
		{
			name:      "no accelerator outside the window",
			state:     models.MomentumState{Momentum: 20, UpdatedAt: now},
			rel:       models.Relationship{MessagesSinceClimax: 12},
			intensity: models.IntensitySFW,
			now:       now,
			want:      22,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Integrate(tt.state, &tt.rel, tt.intensity, tt.now)
			if got.Momentum != tt.want {
				t.Errorf("Integrate() momentum = %v, want %v", got.Momentum, tt.want)
			}
			if got.UpdatedAt != tt.now {
				t.Errorf("Integrate() did not stamp UpdatedAt")
			}
		})
	}
}

func TestThresholds(t *testing.T) {
	tests := []struct {
		name            string
		intimacyHistory int
		wantT2, wantT3  float64
	}{
		{name: "new user", intimacyHistory: 0, wantT2: 40, wantT3: 70},
		{name: "one session", intimacyHistory: 1, wantT2: 35, wantT3: 60},
		{name: "a few sessions", intimacyHistory: 5, wantT2: 25, wantT3: 50},
		{name: "familiar", intimacyHistory: 10, wantT2: 20, wantT3: 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t2, t3 := Thresholds(tt.intimacyHistory)
			if t2 != tt.wantT2 || t3 != tt.wantT3 {
				t.Errorf("Thresholds(%d) = (%v, %v), want (%v, %v)",
					tt.intimacyHistory, t2, t3, tt.wantT2, tt.wantT3)
			}
		})
	}
}

func TestTierFor(t *testing.T) {
	e := testEngine()

	tests := []struct {
		name            string
		momentum        float64
		intimacyHistory int
		want            models.Tier
	}{
		{name: "low momentum", momentum: 10, intimacyHistory: 0, want: models.Tier1},
		{name: "new user at tier2 boundary", momentum: 40, intimacyHistory: 0, want: models.Tier2},
		{name: "new user at tier3 boundary", momentum: 70, intimacyHistory: 0, want: models.Tier3},
		{name: "familiar user reaches tier3 sooner", momentum: 45, intimacyHistory: 10, want: models.Tier3},
		{name: "just under a threshold stays below", momentum: 39.9, intimacyHistory: 0, want: models.Tier1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.TierFor(tt.momentum, tt.intimacyHistory); got != tt.want {
				t.Errorf("TierFor(%v, %d) = %v, want %v", tt.momentum, tt.intimacyHistory, got, tt.want)
			}
		})
	}
}

func TestApplyClimax(t *testing.T) {
	e := testEngine()
	now := time.Now()

	state := models.MomentumState{Momentum: 90, Tier: models.Tier3}
	rel := models.Relationship{IntimacyHistory: 1}

	got := e.ApplyClimax(state, &rel, now)
	if got.Momentum != 50 {
		t.Errorf("ApplyClimax() momentum = %v, want 50", got.Momentum)
	}
	if !got.LastClimaxAt.Equal(now) {
		t.Errorf("ApplyClimax() did not stamp LastClimaxAt")
	}

	low := e.ApplyClimax(models.MomentumState{Momentum: 15}, &rel, now)
	if low.Momentum != 0 {
		t.Errorf("ApplyClimax() from low momentum = %v, want 0", low.Momentum)
	}
}

func TestSoftCapApplies(t *testing.T) {
	tests := []struct {
		name      string
		intensity models.Intensity
		rel       models.Relationship
		want      bool
	}{
		{
			name:      "young relationship blocks escalation",
			intensity: models.IntensityNSFW,
			rel:       models.Relationship{Day: 1, MessagesThisSession: 20},
			want:      true,
		},
		{
			name:      "short session blocks escalation",
			intensity: models.IntensityHot,
			rel:       models.Relationship{Day: 10, MessagesThisSession: 3},
			want:      true,
		},
		{
			name:      "warmed up relationship passes",
			intensity: models.IntensityNSFW,
			rel:       models.Relationship{Day: 5, MessagesThisSession: 12},
			want:      false,
		},
		{
			name:      "sfw never soft-capped",
			intensity: models.IntensitySFW,
			rel:       models.Relationship{Day: 1, MessagesThisSession: 0},
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SoftCapApplies(tt.intensity, &tt.rel); got != tt.want {
				t.Errorf("SoftCapApplies(%v) = %v, want %v", tt.intensity, got, tt.want)
			}
		})
	}
}
