package pacing

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/config"
	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/i18n"
	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/models"
	"github.com/sirupsen/logrus"
)

func testLocalizer(t *testing.T) *i18n.Localizer {
	t.Helper()
	dir := t.TempDir()

	content := `{
  "excuse_1": "excuse one",
  "excuse_2": "excuse two",
  "excuse_3": "excuse three",
  "excuse_4": "excuse four"
}`
	for _, lang := range []string{"fr", "en"} {
		if err := os.WriteFile(filepath.Join(dir, lang+".json"), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	loc, err := i18n.NewLocalizer(&config.I18nConfig{
		DefaultLanguage: "fr",
		Languages:       []string{"fr", "en"},
		Directory:       dir,
	})
	if err != nil {
		t.Fatal(err)
	}
	return loc
}

func testDispatcher(t *testing.T, seed int64) *Dispatcher {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewDispatcherWithSeed(testLocalizer(t), logger, seed)
}

func TestBuildPlanIntimate(t *testing.T) {
	now := time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC) // worst hour bucket

	for seed := int64(0); seed < 30; seed++ {
		d := testDispatcher(t, seed)
		plan := d.BuildPlan(Inputs{
			Response: "viens là",
			Now:      now,
			Mood:     models.MoodHorny,
			Intimate: true,
			Lang:     "fr",
		})

		if plan.Pattern != PatternInstant && plan.Pattern != PatternQuick {
			t.Fatalf("seed %d: intimate pattern = %v", seed, plan.Pattern)
		}
		if plan.Excuse != "" {
			t.Fatalf("seed %d: excuse on an intimate turn: %q", seed, plan.Excuse)
		}
		if plan.ThinkDelay > 2*time.Second+2*time.Second {
			t.Fatalf("seed %d: intimate think delay too long: %v", seed, plan.ThinkDelay)
		}
	}
}

func TestBuildPlanShortReplySinglePart(t *testing.T) {
	d := testDispatcher(t, 1)

	plan := d.BuildPlan(Inputs{
		Response: "Coucou toi",
		Now:      time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC),
		Mood:     models.MoodNeutral,
		Lang:     "fr",
	})
	if len(plan.Parts) != 1 || plan.Parts[0] != "Coucou toi" {
		t.Errorf("Parts = %v, want the reply untouched", plan.Parts)
	}
	if len(plan.Pauses) != 0 {
		t.Errorf("Pauses = %v, want none", plan.Pauses)
	}
}

func TestBuildPlanSplitsLongReplies(t *testing.T) {
	long := strings.Repeat("Une phrase qui raconte quelque chose d'assez long sur ma journée. ", 10)

	for seed := int64(0); seed < 10; seed++ {
		d := testDispatcher(t, seed)
		plan := d.BuildPlan(Inputs{
			Response: long,
			Now:      time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC),
			Mood:     models.MoodNeutral,
			Lang:     "fr",
		})

		if len(plan.Parts) < 2 || len(plan.Parts) > 3 {
			t.Fatalf("seed %d: parts = %d, want 2 or 3", seed, len(plan.Parts))
		}
		if len(plan.Pauses) != len(plan.Parts)-1 {
			t.Fatalf("seed %d: pauses = %d for %d parts", seed, len(plan.Pauses), len(plan.Parts))
		}
		for _, p := range plan.Pauses {
			if p < time.Second || p > 4*time.Second {
				t.Fatalf("seed %d: pause %v out of range", seed, p)
			}
		}

		joined := strings.Join(plan.Parts, " ")
		if strings.Join(strings.Fields(joined), " ") != strings.Join(strings.Fields(long), " ") {
			t.Fatalf("seed %d: split lost content", seed)
		}
	}
}

func TestBuildPlanTypingCapped(t *testing.T) {
	huge := strings.Repeat("a", 10000) // no sentence boundaries

	d := testDispatcher(t, 3)
	plan := d.BuildPlan(Inputs{
		Response: huge,
		Now:      time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC),
		Mood:     models.MoodNeutral,
		Lang:     "fr",
	})
	if plan.TypingDuration > 30*time.Second {
		t.Errorf("typing duration %v exceeds the cap", plan.TypingDuration)
	}
	if len(plan.Parts) != 1 {
		t.Errorf("unsplittable reply produced %d parts", len(plan.Parts))
	}
}

func TestThinkDelayWithinPatternRange(t *testing.T) {
	for seed := int64(0); seed < 50; seed++ {
		d := testDispatcher(t, seed)
		plan := d.BuildPlan(Inputs{
			Response: "ok",
			Now:      time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC),
			Mood:     models.MoodNeutral,
			Lang:     "fr",
		})

		minDelay, maxDelay := thinkDelayRange(plan.Pattern)
		// StyleThinking may stretch past the pattern ceiling by two seconds.
		if plan.ThinkDelay < minDelay || plan.ThinkDelay > maxDelay+2*time.Second {
			t.Fatalf("seed %d: think delay %v outside [%v, %v] for %v",
				seed, plan.ThinkDelay, minDelay, maxDelay, plan.Pattern)
		}
	}
}

func TestExcuseOnlyOnSlowPatterns(t *testing.T) {
	sawExcuse := false
	for seed := int64(0); seed < 200; seed++ {
		d := testDispatcher(t, seed)
		plan := d.BuildPlan(Inputs{
			Response: "désolée du retard",
			Now:      time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC),
			Mood:     models.MoodNeutral,
			Lang:     "fr",
		})
		if plan.Excuse == "" {
			continue
		}
		sawExcuse = true
		if plan.Pattern != PatternVerySlow && plan.Pattern != PatternDelayed {
			t.Fatalf("seed %d: excuse on pattern %v", seed, plan.Pattern)
		}
		if !strings.HasPrefix(plan.Excuse, "excuse ") {
			t.Fatalf("seed %d: unexpected excuse %q", seed, plan.Excuse)
		}
	}
	if !sawExcuse {
		t.Error("no excuse sampled across seeds at night")
	}
}

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{name: "plain sentences", text: "Une. Deux ! Trois ?", want: 3},
		{name: "no terminator", text: "une seule phrase sans point", want: 1},
		{name: "ellipsis", text: "Attends… je réfléchis.", want: 2},
		{name: "empty", text: "", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitSentences(tt.text)
			if len(got) != tt.want {
				t.Errorf("splitSentences(%q) = %v, want %d parts", tt.text, got, tt.want)
			}
		})
	}
}
