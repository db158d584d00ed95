package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/config"
	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/middleware"
	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/models"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Storage interface defines the durable operations the pipeline relies on.
// All entities are exclusively owned by the store; callers read snapshots,
// mutate locally and write back through Patch* at commit points.
type Storage interface {
	// User operations
	GetOrCreateUser(ctx context.Context, externalID int64, displayName, language string) (*models.User, bool, error)
	GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error)
	GetUserByExternalID(ctx context.Context, externalID int64) (*models.User, error)
	PatchUser(ctx context.Context, userID uuid.UUID, patch *models.UserPatch) (*models.User, error)

	// Relationship operations
	GetRelationship(ctx context.Context, userID uuid.UUID) (*models.Relationship, error)
	PatchRelationship(ctx context.Context, userID uuid.UUID, patch *models.RelationshipPatch) (*models.Relationship, error)

	// Message history
	AppendMessage(ctx context.Context, msg *models.Message) error
	LoadHistory(ctx context.Context, userID uuid.UUID, limit int) ([]models.Message, error)

	// Timeline
	AppendTimeline(ctx context.Context, event *models.TimelineEvent) error
	QueryTimeline(ctx context.Context, userID uuid.UUID, filter *models.TimelineFilter) ([]models.TimelineEvent, error)
	CompactTimeline(ctx context.Context, userID uuid.UUID, now time.Time) (int, error)

	// Engine snapshots
	LoadMomentum(ctx context.Context, userID uuid.UUID) (*models.MomentumState, error)
	SaveMomentum(ctx context.Context, state *models.MomentumState) error
	LoadMood(ctx context.Context, userID uuid.UUID) (*models.MoodState, error)
	SaveMood(ctx context.Context, state *models.MoodState) error

	// Admin operations
	ResetUser(ctx context.Context, userID uuid.UUID) error
	KnownUserIDs(ctx context.Context) ([]uuid.UUID, error)
}

// Manager wraps a storage backend with the transient-retry policy and
// per-operation metrics.
type Manager struct {
	storage Storage
	logger  *logrus.Logger
	metrics *middleware.Metrics

	retryInterval time.Duration
	retryMax      uint64
}

// NewManager creates a new storage manager for the configured backend.
func NewManager(cfg *config.Config, metrics *middleware.Metrics, logger *logrus.Logger) (*Manager, error) {
	var storage Storage

	switch cfg.Storage.Type {
	case "redis":
		redisStorage, err := NewRedisStorage(cfg, logger)
		if err != nil {
			return nil, err
		}
		storage = redisStorage
	case "memory":
		storage = NewMemoryStorage(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}

	return &Manager{
		storage:       storage,
		logger:        logger,
		metrics:       metrics,
		retryInterval: 500 * time.Millisecond,
		retryMax:      2, // 3 tries total
	}, nil
}

// withRetry runs op, retrying transient store errors with constant spacing.
func (m *Manager) withRetry(ctx context.Context, name string, op func() error) error {
	start := time.Now()

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(m.retryInterval), m.retryMax),
		ctx,
	)

	err := backoff.Retry(func() error {
		opErr := op()
		if opErr == nil {
			return nil
		}
		if models.KindOf(opErr) == models.KindTransientStore {
			return opErr
		}
		return backoff.Permanent(opErr)
	}, policy)

	status := "success"
	if err != nil {
		status = "error"
		m.logger.WithError(err).WithField("operation", name).Error("Storage operation failed")
	}
	if m.metrics != nil {
		m.metrics.RecordStorageOperation(name, status, time.Since(start))
	}
	return err
}

func (m *Manager) GetOrCreateUser(ctx context.Context, externalID int64, displayName, language string) (*models.User, bool, error) {
	var user *models.User
	var created bool
	err := m.withRetry(ctx, "get_or_create_user", func() error {
		var opErr error
		user, created, opErr = m.storage.GetOrCreateUser(ctx, externalID, displayName, language)
		return opErr
	})
	return user, created, err
}

func (m *Manager) GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user *models.User
	err := m.withRetry(ctx, "get_user", func() error {
		var opErr error
		user, opErr = m.storage.GetUser(ctx, userID)
		return opErr
	})
	return user, err
}

func (m *Manager) GetUserByExternalID(ctx context.Context, externalID int64) (*models.User, error) {
	var user *models.User
	err := m.withRetry(ctx, "get_user_by_external", func() error {
		var opErr error
		user, opErr = m.storage.GetUserByExternalID(ctx, externalID)
		return opErr
	})
	return user, err
}

func (m *Manager) PatchUser(ctx context.Context, userID uuid.UUID, patch *models.UserPatch) (*models.User, error) {
	var user *models.User
	err := m.withRetry(ctx, "patch_user", func() error {
		var opErr error
		user, opErr = m.storage.PatchUser(ctx, userID, patch)
		return opErr
	})
	return user, err
}

func (m *Manager) GetRelationship(ctx context.Context, userID uuid.UUID) (*models.Relationship, error) {
	var rel *models.Relationship
	err := m.withRetry(ctx, "get_relationship", func() error {
		var opErr error
		rel, opErr = m.storage.GetRelationship(ctx, userID)
		return opErr
	})
	return rel, err
}

func (m *Manager) PatchRelationship(ctx context.Context, userID uuid.UUID, patch *models.RelationshipPatch) (*models.Relationship, error) {
	var rel *models.Relationship
	err := m.withRetry(ctx, "patch_relationship", func() error {
		var opErr error
		rel, opErr = m.storage.PatchRelationship(ctx, userID, patch)
		return opErr
	})
	return rel, err
}

func (m *Manager) AppendMessage(ctx context.Context, msg *models.Message) error {
	return m.withRetry(ctx, "append_message", func() error {
		return m.storage.AppendMessage(ctx, msg)
	})
}

func (m *Manager) LoadHistory(ctx context.Context, userID uuid.UUID, limit int) ([]models.Message, error) {
	var history []models.Message
	err := m.withRetry(ctx, "load_history", func() error {
		var opErr error
		history, opErr = m.storage.LoadHistory(ctx, userID, limit)
		return opErr
	})
	return history, err
}

func (m *Manager) AppendTimeline(ctx context.Context, event *models.TimelineEvent) error {
	return m.withRetry(ctx, "append_timeline", func() error {
		return m.storage.AppendTimeline(ctx, event)
	})
}

func (m *Manager) QueryTimeline(ctx context.Context, userID uuid.UUID, filter *models.TimelineFilter) ([]models.TimelineEvent, error) {
	var events []models.TimelineEvent
	err := m.withRetry(ctx, "query_timeline", func() error {
		var opErr error
		events, opErr = m.storage.QueryTimeline(ctx, userID, filter)
		return opErr
	})
	return events, err
}

func (m *Manager) CompactTimeline(ctx context.Context, userID uuid.UUID, now time.Time) (int, error) {
	var changed int
	err := m.withRetry(ctx, "compact_timeline", func() error {
		var opErr error
		changed, opErr = m.storage.CompactTimeline(ctx, userID, now)
		return opErr
	})
	return changed, err
}

func (m *Manager) LoadMomentum(ctx context.Context, userID uuid.UUID) (*models.MomentumState, error) {
	var state *models.MomentumState
	err := m.withRetry(ctx, "load_momentum", func() error {
		var opErr error
		state, opErr = m.storage.LoadMomentum(ctx, userID)
		return opErr
	})
	return state, err
}

func (m *Manager) SaveMomentum(ctx context.Context, state *models.MomentumState) error {
	return m.withRetry(ctx, "save_momentum", func() error {
		return m.storage.SaveMomentum(ctx, state)
	})
}

func (m *Manager) LoadMood(ctx context.Context, userID uuid.UUID) (*models.MoodState, error) {
	var state *models.MoodState
	err := m.withRetry(ctx, "load_mood", func() error {
		var opErr error
		state, opErr = m.storage.LoadMood(ctx, userID)
		return opErr
	})
	return state, err
}

func (m *Manager) SaveMood(ctx context.Context, state *models.MoodState) error {
	return m.withRetry(ctx, "save_mood", func() error {
		return m.storage.SaveMood(ctx, state)
	})
}

func (m *Manager) ResetUser(ctx context.Context, userID uuid.UUID) error {
	return m.withRetry(ctx, "reset_user", func() error {
		return m.storage.ResetUser(ctx, userID)
	})
}

func (m *Manager) KnownUserIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := m.withRetry(ctx, "known_user_ids", func() error {
		var opErr error
		ids, opErr = m.storage.KnownUserIDs(ctx)
		return opErr
	})
	return ids, err
}

// newUser builds a freshly registered user with its surrogate id.
func newUser(externalID int64, displayName, language string, now time.Time) *models.User {
	if language == "" {
		language = "fr"
	}
	return &models.User{
		ID:             uuid.New(),
		ExternalID:     externalID,
		DisplayName:    displayName,
		Language:       language,
		CreatedAt:      now,
		Subscription:   models.SubscriptionTrial,
		TrialStartedAt: now,
	}
}

// newRelationship builds the day-1 relationship record for a new user.
func newRelationship(userID uuid.UUID, now time.Time) *models.Relationship {
	return &models.Relationship{
		UserID:              userID,
		Day:                 1,
		MessagesSinceClimax: models.NoClimaxSentinel,
		LastMessageAt:       now,
	}
}

// applyUserPatch mutates a copy of u according to the patch.
func applyUserPatch(u models.User, patch *models.UserPatch) models.User {
	if patch == nil {
		return u
	}
	if patch.DisplayName != nil {
		u.DisplayName = *patch.DisplayName
	}
	if patch.Language != nil {
		u.Language = *patch.Language
	}
	if patch.Subscription != nil {
		u.Subscription = *patch.Subscription
	}
	if patch.PaywallSent != nil {
		u.PaywallSent = *patch.PaywallSent
	}
	if patch.PreparationSent != nil {
		u.PreparationSent = *patch.PreparationSent
	}
	if patch.ConversionShown != nil {
		t := *patch.ConversionShown
		u.ConversionShown = &t
	}
	if patch.PreviewCount != nil {
		u.PreviewCount = *patch.PreviewCount
	}
	return u
}

// applyRelationshipPatch mutates a copy of rel according to the patch.
func applyRelationshipPatch(rel models.Relationship, patch *models.RelationshipPatch) models.Relationship {
	if patch == nil {
		return rel
	}
	if patch.Day != nil {
		rel.Day = *patch.Day
	}
	if patch.MessageCount != nil {
		rel.MessageCount = *patch.MessageCount
	}
	if patch.IntimacyHistory != nil {
		rel.IntimacyHistory = *patch.IntimacyHistory
	}
	if patch.MessagesSinceClimax != nil {
		rel.MessagesSinceClimax = *patch.MessagesSinceClimax
	}
	if patch.MessagesThisSession != nil {
		rel.MessagesThisSession = *patch.MessagesThisSession
	}
	if patch.LastMessageAt != nil {
		rel.LastMessageAt = *patch.LastMessageAt
	}
	rel.InsideJokes = appendUnique(rel.InsideJokes, patch.AddInsideJokes)
	rel.PetNames = appendUnique(rel.PetNames, patch.AddPetNames)
	if patch.Paid != nil {
		rel.Paid = *patch.Paid
	}
	if patch.PaywallShown != nil {
		rel.PaywallShown = *patch.PaywallShown
	}
	if patch.TeasingStage != nil {
		rel.TeasingStage = *patch.TeasingStage
	}
	if patch.NextModifier != nil {
		rel.NextModifier = *patch.NextModifier
	}
	if patch.RecoveryTurnsLeft != nil {
		rel.RecoveryTurnsLeft = *patch.RecoveryTurnsLeft
	}
	return rel
}

func appendUnique(existing, add []string) []string {
	if len(add) == 0 {
		return existing
	}
	seen := make(map[string]bool, len(existing))
	for _, s := range existing {
		seen[s] = true
	}
	for _, s := range add {
		if s != "" && !seen[s] {
			existing = append(existing, s)
			seen[s] = true
		}
	}
	return existing
}

// matchesFilter applies a timeline filter to one event.
func matchesFilter(event *models.TimelineEvent, filter *models.TimelineFilter) bool {
	if filter == nil {
		return true
	}
	if len(filter.Types) > 0 && !containsString(filter.Types, event.Type) {
		return false
	}
	if len(filter.AgeTiers) > 0 && !containsString(filter.AgeTiers, event.AgeTier) {
		return false
	}
	if !filter.Since.IsZero() && event.OccurredAt.Before(filter.Since) {
		return false
	}
	return true
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// compactEvents demotes ages in place and reports surviving events plus the
// number changed. Hot events older than 7 days become warm, warm older than 90
// days become cold, cold older than a year are purged unless pinned.
func compactEvents(events []models.TimelineEvent, now time.Time) ([]models.TimelineEvent, int) {
	const (
		hotMax  = 7 * 24 * time.Hour
		warmMax = 90 * 24 * time.Hour
		coldMax = 365 * 24 * time.Hour
	)

	kept := events[:0]
	changed := 0
	for _, ev := range events {
		age := now.Sub(ev.OccurredAt)
		switch {
		case ev.AgeTier == models.TimelineHot && age > hotMax:
			ev.AgeTier = models.TimelineWarm
			changed++
		case ev.AgeTier == models.TimelineWarm && age > warmMax:
			ev.AgeTier = models.TimelineCold
			changed++
		case ev.AgeTier == models.TimelineCold && age > coldMax && !ev.Pinned:
			changed++
			continue // purge
		}
		kept = append(kept, ev)
	}
	return kept, changed
}
