package prompt

import (
	"strings"

	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/models"
	"github.com/sirupsen/logrus"
)

// charsPerToken approximates the prompt token budget in characters.
const charsPerToken = 4

// antiRepetitionWindow is how many recent assistant outputs feed the hints.
const antiRepetitionWindow = 5

// Context carries everything one assembly consumes.
type Context struct {
	User          *models.User
	Relationship  *models.Relationship
	Phase         models.Phase
	EffectiveTier models.Tier
	Modifier      models.Modifier
	Mood          models.Mood
	MemoryBlock   string
	// RecentAssistant holds the last assistant outputs, oldest first.
	RecentAssistant []string
	FirstOfDay      bool
	LongSilence     bool
	AIProbe         bool
	ConversionOffer bool
}

// Assembler composes the system prompt from cached modules.
type Assembler struct {
	modules     *ModuleStore
	tokenBudget int
	logger      *logrus.Logger
}

// NewAssembler creates an assembler with the configured token budget.
func NewAssembler(modules *ModuleStore, tokenBudget int, logger *logrus.Logger) *Assembler {
	return &Assembler{modules: modules, tokenBudget: tokenBudget, logger: logger}
}

// Assemble concatenates, in order: persona base, phase/tier module, modifier
// module, mood module, memory block, anti-repetition hints and special
// context notes, then substitutes placeholders and trims to the budget.
func (a *Assembler) Assemble(pc *Context) string {
	var sections []string

	if base := a.modules.Get(ModulePersonaBase); base != "" {
		sections = append(sections, base)
	}

	phaseID := modulePhasePrefix + strings.ToLower(pc.Phase.String())
	if mod := a.modules.Get(phaseID); mod != "" {
		sections = append(sections, mod)
	}
	tierID := moduleTierPrefix + tierName(pc.EffectiveTier)
	if mod := a.modules.Get(tierID); mod != "" {
		sections = append(sections, mod)
	}

	if modID := modifierModule(pc.Modifier); modID != "" {
		if mod := a.modules.Get(modID); mod != "" {
			sections = append(sections, mod)
		}
	}

	moodID := moduleMoodPrefix + string(pc.Mood)
	if mod := a.modules.Get(moodID); mod != "" {
		sections = append(sections, mod)
	}

	if pc.MemoryBlock != "" {
		sections = append(sections, "Ce que tu sais de lui:\n"+pc.MemoryBlock)
	}

	if hints := AntiRepetitionHints(pc.RecentAssistant); hints != "" {
		sections = append(sections, hints)
	}

	if pc.FirstOfDay {
		if mod := a.modules.Get(ModuleFirstOfDay); mod != "" {
			sections = append(sections, mod)
		}
	}
	if pc.LongSilence {
		if mod := a.modules.Get(ModuleLongSilence); mod != "" {
			sections = append(sections, mod)
		}
	}
	if pc.AIProbe {
		if mod := a.modules.Get(ModuleAIProbe); mod != "" {
			sections = append(sections, mod)
		}
	}
	if pc.ConversionOffer {
		if mod := a.modules.Get(ModuleConversion); mod != "" {
			sections = append(sections, mod)
		}
	}

	prompt := strings.Join(sections, "\n\n")
	prompt = a.substitute(prompt, pc)

	budget := a.tokenBudget * charsPerToken
	if len(prompt) > budget {
		a.logger.WithFields(logrus.Fields{
			"length": len(prompt),
			"budget": budget,
		}).Warn("Prompt over budget, truncating")
		prompt = prompt[:budget]
	}
	return prompt
}

// modifierModule maps a turn modifier to its prompt module identifier.
func modifierModule(m models.Modifier) string {
	switch {
	case m == models.ModifierNone:
		return ""
	case m == models.ModifierAftercare:
		return ModuleAftercare
	case m == models.ModifierPostIntimate:
		return ModulePostIntimate
	case m == models.ModifierUserDistress:
		return ModuleDistress
	case m == models.ModifierLunaInitiates:
		return ModuleInitiate
	case m.IsDeflection():
		return moduleDeflectPrefix + strings.ToLower(strings.TrimPrefix(string(m), models.ModifierDeflectPrefix))
	case m.IsCap():
		return ModuleCapped
	}
	return ""
}

func tierName(t models.Tier) string {
	switch t {
	case models.Tier3:
		return "3"
	case models.Tier2:
		return "2"
	default:
		return "1"
	}
}

// substitute replaces the well-defined placeholders. Module text is otherwise
// never interpreted.
func (a *Assembler) substitute(prompt string, pc *Context) string {
	name := ""
	if pc.User != nil {
		name = pc.User.DisplayName
	}
	jokes, petNames := "", ""
	if pc.Relationship != nil {
		jokes = strings.Join(pc.Relationship.InsideJokes, ", ")
		petNames = strings.Join(pc.Relationship.PetNames, ", ")
	}

	replacer := strings.NewReplacer(
		"{name}", name,
		"{jokes}", jokes,
		"{pet_names}", petNames,
	)
	return replacer.Replace(prompt)
}

// AntiRepetitionHints derives short corrective hints from the last assistant
// outputs: repeated openings, repeated signature emojis, repeated closings.
func AntiRepetitionHints(recent []string) string {
	if len(recent) > antiRepetitionWindow {
		recent = recent[len(recent)-antiRepetitionWindow:]
	}
	if len(recent) < 2 {
		return ""
	}

	var hints []string

	if opening := repeatedOpening(recent); opening != "" {
		hints = append(hints, "Ne commence pas encore par \""+opening+"\".")
	}
	if emoji := repeatedEmoji(recent); emoji != "" {
		hints = append(hints, "Évite de remettre "+emoji+" dans chaque message.")
	}
	if closing := repeatedClosing(recent); closing != "" {
		hints = append(hints, "Ne termine pas encore par \""+closing+"\".")
	}

	if len(hints) == 0 {
		return ""
	}
	return strings.Join(hints, "\n")
}

// repeatedOpening returns the first word when more than half the recent
// outputs start with it.
func repeatedOpening(recent []string) string {
	counts := make(map[string]int)
	for _, msg := range recent {
		fields := strings.Fields(msg)
		if len(fields) == 0 {
			continue
		}
		counts[strings.ToLower(fields[0])]++
	}
	for word, n := range counts {
		if n > len(recent)/2 && n >= 2 {
			return word
		}
	}
	return ""
}

// repeatedEmoji returns an emoji appearing in most recent outputs.
func repeatedEmoji(recent []string) string {
	counts := make(map[rune]int)
	for _, msg := range recent {
		seen := make(map[rune]bool)
		for _, r := range msg {
			if isEmoji(r) && !seen[r] {
				seen[r] = true
				counts[r]++
			}
		}
	}
	for r, n := range counts {
		if n > len(recent)/2 && n >= 2 {
			return string(r)
		}
	}
	return ""
}

// repeatedClosing returns the final word when it closes most recent outputs.
func repeatedClosing(recent []string) string {
	counts := make(map[string]int)
	for _, msg := range recent {
		fields := strings.Fields(msg)
		if len(fields) == 0 {
			continue
		}
		last := strings.ToLower(strings.Trim(fields[len(fields)-1], ".!?…"))
		if last == "" {
			continue
		}
		counts[last]++
	}
	for word, n := range counts {
		if n > len(recent)/2 && n >= 2 {
			return word
		}
	}
	return ""
}

func isEmoji(r rune) bool {
	return (r >= 0x1F300 && r <= 0x1FAFF) ||
		(r >= 0x2600 && r <= 0x27BF) ||
		r == 0x2764 // heavy black heart
}
