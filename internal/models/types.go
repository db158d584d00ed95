package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Subscription status values.
const (
	SubscriptionTrial  = "trial"
	SubscriptionActive = "active"
)

// Phase is the coarse relationship stage, totally ordered from HOOK to LIBRE.
type Phase int

const (
	PhaseHook Phase = iota
	PhaseConnect
	PhaseAttach
	PhaseTension
	PhasePaywall
	PhaseLibre
)

func (p Phase) String() string {
	switch p {
	case PhaseHook:
		return "HOOK"
	case PhaseConnect:
		return "CONNECT"
	case PhaseAttach:
		return "ATTACH"
	case PhaseTension:
		return "TENSION"
	case PhasePaywall:
		return "PAYWALL"
	case PhaseLibre:
		return "LIBRE"
	}
	return "UNKNOWN"
}

// Tier is the 1-3 content permissiveness level.
type Tier int

const (
	Tier1 Tier = 1
	Tier2 Tier = 2
	Tier3 Tier = 3
)

// Intensity is the classified heat of a single user message.
type Intensity int

const (
	IntensitySFW Intensity = iota
	IntensityFlirt
	IntensityHot
	IntensityNSFW
)

func (i Intensity) String() string {
	switch i {
	case IntensitySFW:
		return "SFW"
	case IntensityFlirt:
		return "FLIRT"
	case IntensityHot:
		return "HOT"
	case IntensityNSFW:
		return "NSFW"
	}
	return "UNKNOWN"
}

// Escalating reports whether the bucket asks for intimate content.
func (i Intensity) Escalating() bool {
	return i == IntensityHot || i == IntensityNSFW
}

// Mood is Luna's immediate emotional stance.
type Mood string

const (
	MoodNeutral    Mood = "neutral"
	MoodHappy      Mood = "happy"
	MoodPlayful    Mood = "playful"
	MoodTired      Mood = "tired"
	MoodStressed   Mood = "stressed"
	MoodVulnerable Mood = "vulnerable"
	MoodAnnoyed    Mood = "annoyed"
	MoodAnxious    Mood = "anxious"
	MoodHorny      Mood = "horny"
)

// AllMoods lists every mood in a stable order for weighted sampling.
var AllMoods = []Mood{
	MoodNeutral, MoodHappy, MoodPlayful, MoodTired, MoodStressed,
	MoodVulnerable, MoodAnnoyed, MoodAnxious, MoodHorny,
}

// Modifier is a short token attached to a turn that forces a specific prompt
// module. Deflection and cap tokens carry a suffix (DEFLECT_tired, CAPPED_HOOK).
type Modifier string

const (
	ModifierNone          Modifier = ""
	ModifierAftercare     Modifier = "AFTERCARE"
	ModifierPostIntimate  Modifier = "POST_INTIMATE"
	ModifierUserDistress  Modifier = "USER_DISTRESSED"
	ModifierLunaInitiates Modifier = "LUNA_INITIATES"

	ModifierDeflectPrefix = "DEFLECT_"
	ModifierCappedPrefix  = "CAPPED_"
)

// DeflectModifier builds a deflection token for the given reason.
func DeflectModifier(reason string) Modifier {
	return Modifier(ModifierDeflectPrefix + reason)
}

// CappedModifier builds a soft-cap token for the given phase.
func CappedModifier(phase Phase) Modifier {
	return Modifier(ModifierCappedPrefix + phase.String())
}

// IsDeflection reports whether the modifier is a deflection token.
func (m Modifier) IsDeflection() bool {
	return strings.HasPrefix(string(m), ModifierDeflectPrefix)
}

// IsCap reports whether the modifier is a soft-cap token.
func (m Modifier) IsCap() bool {
	return strings.HasPrefix(string(m), ModifierCappedPrefix)
}

// IsRecovery reports whether the modifier belongs to the post-climax track.
func (m Modifier) IsRecovery() bool {
	return m == ModifierAftercare || m == ModifierPostIntimate
}

// NoClimaxSentinel marks "no recent climax" in MessagesSinceClimax.
const NoClimaxSentinel = 999

// User is the durable per-user record. ID is the internal surrogate assigned
// at creation; ExternalID is the chat-platform identifier.
type User struct {
	ID              uuid.UUID  `json:"id"`
	ExternalID      int64      `json:"external_id"`
	DisplayName     string     `json:"display_name"`
	Language        string     `json:"language"`
	CreatedAt       time.Time  `json:"created_at"`
	Subscription    string     `json:"subscription"`
	TrialStartedAt  time.Time  `json:"trial_started_at"`
	PaywallSent     bool       `json:"paywall_sent"`
	PreparationSent bool       `json:"preparation_sent"`
	ConversionShown *time.Time `json:"conversion_shown,omitempty"`
	PreviewCount    int        `json:"preview_count"`
}

// Relationship tracks the evolving state between Luna and one user.
type Relationship struct {
	UserID              uuid.UUID `json:"user_id"`
	Day                 int       `json:"day"`
	MessageCount        int       `json:"message_count"`
	IntimacyHistory     int       `json:"intimacy_history"`
	MessagesSinceClimax int       `json:"messages_since_climax"`
	MessagesThisSession int       `json:"messages_this_session"`
	LastMessageAt       time.Time `json:"last_message_at"`
	InsideJokes         []string  `json:"inside_jokes,omitempty"`
	PetNames            []string  `json:"pet_names,omitempty"`
	Paid                bool      `json:"paid"`
	PaywallShown        bool      `json:"paywall_shown"`
	TeasingStage        int       `json:"teasing_stage"`
	NextModifier        Modifier  `json:"next_modifier,omitempty"`
	RecoveryTurnsLeft   int       `json:"recovery_turns_left"`
}

// MomentumState is the per-user intimate-temperature snapshot.
type MomentumState struct {
	UserID       uuid.UUID `json:"user_id"`
	Momentum     float64   `json:"momentum"`
	Tier         Tier      `json:"tier"`
	LastClimaxAt time.Time `json:"last_climax_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// MoodState is the per-user mood snapshot.
type MoodState struct {
	UserID           uuid.UUID `json:"user_id"`
	Current          Mood      `json:"current"`
	UpdatedAt        time.Time `json:"updated_at"`
	LastInitiationAt time.Time `json:"last_initiation_at"`
}

// Timeline event types.
const (
	EventMoment        = "moment"
	EventLunaSaid      = "luna_said"
	EventPromise       = "promise"
	EventMilestone     = "milestone"
	EventContradiction = "contradiction"
)

// Timeline age bands governing retention and retrieval weight.
const (
	TimelineHot  = "hot"
	TimelineWarm = "warm"
	TimelineCold = "cold"
)

// Fact types recognized by memory retrieval, strongest boost first.
const (
	FactRelationship = "relationship"
	FactPreference   = "preference"
	FactEvent        = "event"
	FactPlain        = "fact"
	FactEmotion      = "emotion"
)

// TimelineEvent is a salient fact extracted from conversation and stored for
// later recall.
type TimelineEvent struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	Type       string    `json:"type"`
	FactType   string    `json:"fact_type"`
	Summary    string    `json:"summary"`
	Keywords   []string  `json:"keywords,omitempty"`
	Importance int       `json:"importance"`
	AgeTier    string    `json:"age_tier"`
	Pinned     bool      `json:"pinned"`
	OccurredAt time.Time `json:"occurred_at"`
}

// TimelineFilter narrows timeline queries. Zero values match everything.
type TimelineFilter struct {
	Types    []string
	AgeTiers []string
	Since    time.Time
	Limit    int
}

// Message is one stored chat message.
type Message struct {
	UserID    uuid.UUID `json:"user_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// UserPatch is a partial update applied atomically by the store. Nil fields
// are left untouched.
type UserPatch struct {
	DisplayName     *string
	Language        *string
	Subscription    *string
	PaywallSent     *bool
	PreparationSent *bool
	ConversionShown *time.Time
	PreviewCount    *int
}

// RelationshipPatch is a partial update for Relationship. Add* slices append
// with deduplication.
type RelationshipPatch struct {
	Day                 *int
	MessageCount        *int
	IntimacyHistory     *int
	MessagesSinceClimax *int
	MessagesThisSession *int
	LastMessageAt       *time.Time
	AddInsideJokes      []string
	AddPetNames         []string
	Paid                *bool
	PaywallShown        *bool
	TeasingStage        *int
	NextModifier        *Modifier
	RecoveryTurnsLeft   *int
}
