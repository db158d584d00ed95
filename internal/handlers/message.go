package handlers

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/config"
	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/i18n"
	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/middleware"
	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/models"
	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/services/ai"
	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/services/availability"
	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/services/filter"
	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/services/lexicon"
	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/services/memory"
	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/services/momentum"
	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/services/mood"
	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/services/pacing"
	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/services/phase"
	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/services/prompt"
	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/services/storage"
	"github.com/alexgrosjean991-web/luna-bot-sub000/pkg/logger"
	"github.com/sirupsen/logrus"
)

// Sender is the outbound chat-platform surface the pipeline depends on.
type Sender interface {
	SendText(externalID int64, text string) error
	SendTyping(externalID int64) error
}

// longSilenceThreshold marks a return after a long absence.
const longSilenceThreshold = 24 * time.Hour

// teasingStageMax caps the engagement ladder.
const teasingStageMax = 5

// userLocks serializes turns per user. Parallelism is across users only.
type userLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[int64]*sync.Mutex)}
}

func (l *userLocks) forUser(externalID int64) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, exists := l.locks[externalID]
	if !exists {
		lock = &sync.Mutex{}
		l.locks[externalID] = lock
	}
	return lock
}

// MessageHandler runs the full turn pipeline for inbound user messages.
type MessageHandler struct {
	config      *config.Config
	sender      Sender
	store       *storage.Manager
	aiService   ai.Service
	momentumEng *momentum.Engine
	moodEng     *mood.Engine
	arbiter     *availability.Arbiter
	retriever   *memory.Retriever
	extractor   *memory.Extractor
	assembler   *prompt.Assembler
	respFilter  *filter.Filter
	pacer       *pacing.Dispatcher
	gate        *phase.Gate
	lex         *lexicon.Lexicons
	sanitizer   *middleware.Sanitizer
	rateLimiter middleware.RateLimiter
	localizer   *i18n.Localizer
	metrics     *middleware.Metrics
	logger      *logrus.Logger
	loc         *time.Location
	locks       *userLocks

	// sleep is swappable in tests so pacing does not slow them down.
	sleep func(ctx context.Context, d time.Duration) error
}

// MessageHandlerParams bundles the pipeline collaborators.
type MessageHandlerParams struct {
	Config      *config.Config
	Sender      Sender
	Store       *storage.Manager
	AIService   ai.Service
	Momentum    *momentum.Engine
	Mood        *mood.Engine
	Arbiter     *availability.Arbiter
	Retriever   *memory.Retriever
	Extractor   *memory.Extractor
	Assembler   *prompt.Assembler
	Filter      *filter.Filter
	Pacer       *pacing.Dispatcher
	Gate        *phase.Gate
	Lexicons    *lexicon.Lexicons
	RateLimiter middleware.RateLimiter
	Localizer   *i18n.Localizer
	Metrics     *middleware.Metrics
	Logger      *logrus.Logger
}

// NewMessageHandler creates the pipeline handler.
func NewMessageHandler(p MessageHandlerParams) *MessageHandler {
	return &MessageHandler{
		config:      p.Config,
		sender:      p.Sender,
		store:       p.Store,
		aiService:   p.AIService,
		momentumEng: p.Momentum,
		moodEng:     p.Mood,
		arbiter:     p.Arbiter,
		retriever:   p.Retriever,
		extractor:   p.Extractor,
		assembler:   p.Assembler,
		respFilter:  p.Filter,
		pacer:       p.Pacer,
		gate:        p.Gate,
		lex:         p.Lexicons,
		sanitizer:   middleware.NewSanitizer(&p.Config.Pipeline),
		rateLimiter: p.RateLimiter,
		localizer:   p.Localizer,
		metrics:     p.Metrics,
		logger:      p.Logger,
		loc:         p.Config.Location(),
		locks:       newUserLocks(),
		sleep:       sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// HandleText runs one turn for an inbound text message. Sanitizer and
// rate-limit rejections drop the message silently; store errors abandon the
// turn without a reply.
func (h *MessageHandler) HandleText(ctx context.Context, externalID int64, displayName, langHint, rawText string) error {
	h.metrics.RecordTurnStarted()

	text, ok := h.sanitizer.Sanitize(rawText)
	if !ok {
		h.metrics.RecordMessageDropped("sanitizer")
		return nil
	}

	if !h.rateLimiter.Allow(externalID) {
		h.metrics.RecordMessageDropped("rate_limit")
		return nil
	}

	// An in-flight turn for the same user blocks this one until it
	// completes; the pipeline mutates per-user state without transactions.
	lock := h.locks.forUser(externalID)
	lock.Lock()
	defer lock.Unlock()

	err := h.runTurn(ctx, externalID, displayName, langHint, text)
	if err != nil {
		h.metrics.RecordTurnCompleted("error")
		return err
	}
	h.metrics.RecordTurnCompleted("success")
	return nil
}

// turnState carries the request-scoped snapshots through the pipeline.
type turnState struct {
	now  time.Time
	text string
	lang string

	user *models.User
	rel  *models.Relationship

	intensity models.Intensity
	distress  bool
	aiProbe   bool

	momentum models.MomentumState
	moodSt   models.MoodState

	firstOfDay   bool
	longSilence  bool
	userClimax   bool
	conversion   bool
	prevLastSeen time.Time
}

func (h *MessageHandler) runTurn(ctx context.Context, externalID int64, displayName, langHint, text string) error {
	now := time.Now().In(h.loc)

	user, created, err := h.store.GetOrCreateUser(ctx, externalID, displayName, langHint)
	if err != nil {
		return err
	}
	rel, err := h.store.GetRelationship(ctx, user.ID)
	if err != nil {
		return err
	}

	st := &turnState{
		now:          now,
		text:         text,
		lang:         user.Language,
		user:         user,
		rel:          rel,
		prevLastSeen: rel.LastMessageAt,
	}
	if created {
		st.prevLastSeen = time.Time{}
	}

	h.advanceCounters(st)

	log := logger.WithUser(h.logger, externalID, user.ID.String()).WithFields(logrus.Fields{
		"day":   st.rel.Day,
		"count": st.rel.MessageCount,
	})

	if err := h.store.AppendMessage(ctx, &models.Message{
		UserID:    user.ID,
		Role:      models.RoleUser,
		Content:   text,
		Timestamp: now,
	}); err != nil {
		return err
	}

	// Paywall gate terminates the turn before any generation.
	switch h.gate.Evaluate(st.user, st.rel, now) {
	case phase.DecisionPaywall:
		return h.emitPaywall(ctx, st)
	case phase.DecisionPostPaywall:
		return h.emitPostPaywall(ctx, st)
	case phase.DecisionConversion:
		st.conversion = true
	}

	h.classify(st)

	momentumState, err := h.store.LoadMomentum(ctx, user.ID)
	if err != nil {
		return err
	}
	st.momentum = h.momentumEng.Integrate(*momentumState, st.rel, st.intensity, now)

	// User-direction climax during a hot exchange starts the recovery cycle.
	if st.momentum.Tier == models.Tier3 && h.momentumEng.DetectUserClimax(text) {
		st.userClimax = true
	}

	moodState, err := h.store.LoadMood(ctx, user.ID)
	if err != nil {
		return err
	}
	st.moodSt = h.moodEng.Update(*moodState, mood.Inputs{
		Now:           now,
		LastMessageAt: st.prevLastSeen,
		Text:          text,
		Intensity:     st.intensity,
		Distress:      st.distress,
		Trust:         mood.TrustEstimate(st.rel),
		Phase:         phase.Resolve(st.rel),
	})

	verdict := h.arbiter.Decide(availability.Inputs{
		Now:              now,
		Mood:             st.moodSt.Current,
		Momentum:         st.momentum.Momentum,
		LastClimaxAt:     st.momentum.LastClimaxAt,
		LastInitiationAt: st.moodSt.LastInitiationAt,
		Intensity:        st.intensity,
		Distress:         st.distress,
		SoftCapped:       momentum.SoftCapApplies(st.intensity, st.rel),
		Phase:            phase.Resolve(st.rel),
		PendingRecovery:  st.rel.NextModifier,
	})
	if verdict.Modifier.IsDeflection() {
		h.metrics.RecordDeflection(verdict.DeflectReason)
	}
	if verdict.Modifier == models.ModifierLunaInitiates {
		h.metrics.RecordInitiation()
		st.moodSt.LastInitiationAt = now
	}

	route := ai.SelectRoute(ai.RouteInputs{
		Tier:         st.momentum.Tier,
		Subscription: st.user.Subscription,
		Intensity:    st.intensity,
		Modifier:     verdict.Modifier,
		TierCapped:   verdict.TierCapped,
	})

	history, err := h.store.LoadHistory(ctx, user.ID, h.config.Pipeline.HistoryWindow)
	if err != nil {
		return err
	}

	memoryBlock := h.retrieveMemory(ctx, st, history, route.EffectiveTier)

	systemPrompt := h.assembler.Assemble(&prompt.Context{
		User:            st.user,
		Relationship:    st.rel,
		Phase:           phase.Resolve(st.rel),
		EffectiveTier:   route.EffectiveTier,
		Modifier:        verdict.Modifier,
		Mood:            st.moodSt.Current,
		MemoryBlock:     memoryBlock,
		RecentAssistant: recentAssistant(history),
		FirstOfDay:      st.firstOfDay,
		LongSilence:     st.longSilence,
		AIProbe:         st.aiProbe,
		ConversionOffer: st.conversion,
	})

	reply, genErr := h.aiService.Generate(ctx, route.BackendID, systemPrompt, historyForBackend(history), h.config.Backends.MaxTokens)
	if genErr != nil {
		if ctx.Err() != nil {
			// Turn cancelled: abandon without committing anything.
			return ctx.Err()
		}
		log.WithError(genErr).Warn("Generation failed, using fallback")
		reply = h.localizer.Get(st.lang, i18n.MsgFallback, nil)
	}

	filtered := h.respFilter.Apply(reply, st.lang)

	intimate := route.EffectiveTier == models.Tier3 && st.intensity.Escalating()
	plan := h.pacer.BuildPlan(pacing.Inputs{
		Response:     filtered.Text,
		UserTextLen:  len(text),
		Momentum:     st.momentum.Momentum,
		Now:          now,
		Mood:         st.moodSt.Current,
		Subscription: st.user.Subscription,
		Intimate:     intimate,
		Lang:         st.lang,
	})

	if err := h.deliver(ctx, externalID, plan); err != nil {
		// Cancelled mid-delivery: nothing is committed.
		return err
	}

	return h.commit(ctx, st, filtered.Text, route, verdict)
}

// advanceCounters applies the day/session bookkeeping for the new message.
func (h *MessageHandler) advanceCounters(st *turnState) {
	rel := st.rel

	if !st.prevLastSeen.IsZero() {
		gap := st.now.Sub(st.prevLastSeen)
		prevLocal := st.prevLastSeen.In(h.loc)
		dateChanged := prevLocal.YearDay() != st.now.YearDay() || prevLocal.Year() != st.now.Year()

		if gap >= h.config.Pipeline.NewDayThreshold || dateChanged {
			rel.Day++
			st.firstOfDay = true
		}
		if gap > longSilenceThreshold {
			st.longSilence = true
		}
		if gap > h.config.Pipeline.SessionGap {
			rel.MessagesThisSession = 0
		}
	} else {
		st.firstOfDay = true
	}

	rel.MessageCount++
	rel.MessagesThisSession++
	if rel.MessagesSinceClimax != models.NoClimaxSentinel {
		rel.MessagesSinceClimax++
	}
	rel.LastMessageAt = st.now
}

// classify runs the cheap lexicon passes over the user text.
func (h *MessageHandler) classify(st *turnState) {
	st.intensity = h.momentumEng.Classify(st.text)
	st.distress = h.momentumEng.DetectDistress(st.text)
	st.aiProbe = lexicon.Matches(st.text, h.lex.AIProbe)
	if st.distress {
		// A distressed turn never escalates, whatever the vocabulary.
		st.intensity = models.IntensitySFW
	}
}

// retrieveMemory runs fact retrieval; failures degrade to an empty block.
func (h *MessageHandler) retrieveMemory(ctx context.Context, st *turnState, history []models.Message, tier models.Tier) string {
	var prior []string
	for i := len(history) - 1; i >= 0 && len(prior) < 3; i-- {
		if history[i].Role == models.RoleUser && history[i].Content != st.text {
			prior = append(prior, history[i].Content)
		}
	}

	facts, err := h.retriever.Retrieve(ctx, st.user.ID, st.text, prior, st.lang, st.now)
	if err != nil {
		h.logger.WithError(err).Warn("Memory retrieval failed")
		return ""
	}

	budget := h.config.Memory.CharBudget
	if tier >= models.Tier2 {
		budget = h.config.Memory.DeepCharBudget
	}
	return memory.Format(facts, budget)
}

// deliver plays the pacing plan against the platform.
func (h *MessageHandler) deliver(ctx context.Context, externalID int64, plan pacing.Plan) error {
	if len(plan.Parts) == 0 {
		return nil
	}

	if err := h.sleep(ctx, plan.ThinkDelay); err != nil {
		return err
	}

	if plan.Excuse != "" {
		if err := h.sender.SendText(externalID, plan.Excuse); err != nil {
			return err
		}
		if err := h.sleep(ctx, time.Second); err != nil {
			return err
		}
	}

	for i, part := range plan.Parts {
		if err := h.typeFor(ctx, externalID, plan.TypingDuration/time.Duration(len(plan.Parts)), plan.Style); err != nil {
			return err
		}
		if err := h.sender.SendText(externalID, part); err != nil {
			return err
		}
		if i < len(plan.Pauses) {
			if err := h.sleep(ctx, plan.Pauses[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

// typeFor keeps the typing indicator alive for the duration. The hesitant
// style pauses midway; the indicator itself expires server-side, so long
// durations re-send it.
func (h *MessageHandler) typeFor(ctx context.Context, externalID int64, d time.Duration, style pacing.Style) error {
	if d <= 0 {
		return nil
	}

	if style == pacing.StyleHesitant && d > 2*time.Second {
		half := d / 2
		if err := h.typeFor(ctx, externalID, half, pacing.StyleSimple); err != nil {
			return err
		}
		if err := h.sleep(ctx, time.Second); err != nil {
			return err
		}
		return h.typeFor(ctx, externalID, half, pacing.StyleSimple)
	}

	remaining := d
	for remaining > 0 {
		if err := h.sender.SendTyping(externalID); err != nil {
			h.logger.WithError(err).Debug("Typing indicator failed")
		}
		chunk := 4 * time.Second
		if remaining < chunk {
			chunk = remaining
		}
		if err := h.sleep(ctx, chunk); err != nil {
			return err
		}
		remaining -= chunk
	}
	return nil
}

// commit is the post-response write-back: history, climax cycle, momentum,
// counters, teasing stage, mood, async extraction.
func (h *MessageHandler) commit(ctx context.Context, st *turnState, replyText string, route ai.Route, verdict availability.Verdict) error {
	if err := h.store.AppendMessage(ctx, &models.Message{
		UserID:    st.user.ID,
		Role:      models.RoleAssistant,
		Content:   replyText,
		Timestamp: time.Now().In(h.loc),
	}); err != nil {
		return err
	}

	assistantClimax := route.EffectiveTier == models.Tier3 && h.momentumEng.DetectAssistantClimax(replyText)
	climax := st.userClimax || assistantClimax

	rel := st.rel
	nextModifier := models.ModifierNone
	recoveryLeft := rel.RecoveryTurnsLeft

	if climax {
		h.metrics.RecordClimax()
		st.momentum = h.momentumEng.ApplyClimax(st.momentum, rel, st.now)
		rel.IntimacyHistory++
		rel.MessagesSinceClimax = 0
		nextModifier = models.ModifierAftercare
		recoveryLeft = 2
	} else if verdict.Modifier == models.ModifierAftercare {
		// The aftercare turn hands over to the post-intimate turns without
		// consuming one of them.
		nextModifier = models.ModifierPostIntimate
	} else if verdict.Modifier == models.ModifierPostIntimate {
		if recoveryLeft > 0 {
			recoveryLeft--
		}
		if recoveryLeft > 0 {
			nextModifier = models.ModifierPostIntimate
		}
	}

	if err := h.store.SaveMomentum(ctx, &st.momentum); err != nil {
		return err
	}

	teasing := rel.TeasingStage
	if h.engagementSignal(st) && teasing < teasingStageMax {
		teasing++
	}

	relPatch := &models.RelationshipPatch{
		Day:                 &rel.Day,
		MessageCount:        &rel.MessageCount,
		IntimacyHistory:     &rel.IntimacyHistory,
		MessagesSinceClimax: &rel.MessagesSinceClimax,
		MessagesThisSession: &rel.MessagesThisSession,
		LastMessageAt:       &rel.LastMessageAt,
		TeasingStage:        &teasing,
		NextModifier:        &nextModifier,
		RecoveryTurnsLeft:   &recoveryLeft,
	}
	if _, err := h.store.PatchRelationship(ctx, st.user.ID, relPatch); err != nil {
		return err
	}

	userPatch := &models.UserPatch{}
	patchUser := false
	if route.EffectiveTier >= models.Tier2 && !rel.Paid {
		previews := st.user.PreviewCount + 1
		userPatch.PreviewCount = &previews
		patchUser = true
	}
	if st.conversion {
		h.metrics.RecordConversionOffered()
		shown := st.now
		userPatch.ConversionShown = &shown
		patchUser = true
	}
	if patchUser {
		if _, err := h.store.PatchUser(ctx, st.user.ID, userPatch); err != nil {
			return err
		}
	}

	if err := h.store.SaveMood(ctx, &st.moodSt); err != nil {
		return err
	}

	if rel.MessageCount%h.config.Memory.ExtractEvery == 0 {
		h.extractor.Schedule(st.user.ID, st.lang)
	}

	return nil
}

// engagementSignal reports whether the turn advances the teasing stage.
func (h *MessageHandler) engagementSignal(st *turnState) bool {
	if st.intensity.Escalating() {
		return true
	}
	if lexicon.Matches(st.text, h.lex.Compliment) {
		return true
	}
	return lexicon.Matches(st.text, h.lex.Question) || strings.Contains(st.text, "?")
}

// emitPaywall sends the paywall message once and marks both flags.
func (h *MessageHandler) emitPaywall(ctx context.Context, st *turnState) error {
	h.metrics.RecordPaywallShown()

	text := h.localizer.Get(st.lang, i18n.MsgPaywall, map[string]interface{}{
		"Name": st.user.DisplayName,
	})
	if err := h.sender.SendText(st.user.ExternalID, text); err != nil {
		return err
	}

	sent := true
	if _, err := h.store.PatchUser(ctx, st.user.ID, &models.UserPatch{PaywallSent: &sent}); err != nil {
		return err
	}
	shown := true
	_, err := h.store.PatchRelationship(ctx, st.user.ID, &models.RelationshipPatch{
		Day:                 &st.rel.Day,
		MessageCount:        &st.rel.MessageCount,
		MessagesThisSession: &st.rel.MessagesThisSession,
		MessagesSinceClimax: &st.rel.MessagesSinceClimax,
		LastMessageAt:       &st.rel.LastMessageAt,
		PaywallShown:        &shown,
	})
	return err
}

// emitPostPaywall sends the degraded post-paywall line.
func (h *MessageHandler) emitPostPaywall(ctx context.Context, st *turnState) error {
	text := h.localizer.Get(st.lang, i18n.MsgPostPaywall, nil)
	if err := h.sender.SendText(st.user.ExternalID, text); err != nil {
		return err
	}
	_, err := h.store.PatchRelationship(ctx, st.user.ID, &models.RelationshipPatch{
		Day:                 &st.rel.Day,
		MessageCount:        &st.rel.MessageCount,
		MessagesThisSession: &st.rel.MessagesThisSession,
		MessagesSinceClimax: &st.rel.MessagesSinceClimax,
		LastMessageAt:       &st.rel.LastMessageAt,
	})
	return err
}

// recentAssistant collects the last assistant outputs, oldest first.
func recentAssistant(history []models.Message) []string {
	var outputs []string
	for _, msg := range history {
		if msg.Role == models.RoleAssistant {
			outputs = append(outputs, msg.Content)
		}
	}
	return outputs
}

// historyForBackend maps stored history into the generation window.
func historyForBackend(history []models.Message) []models.Message {
	out := make([]models.Message, 0, len(history))
	for _, msg := range history {
		if msg.Role == models.RoleUser || msg.Role == models.RoleAssistant {
			out = append(out, msg)
		}
	}
	return out
}
