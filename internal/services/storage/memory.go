package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/config"
	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/models"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// MemoryStorage implements Storage using in-process caches. Users and
// relationships never expire; histories and engine snapshots follow the
// configured expiration so idle users shed memory.
type MemoryStorage struct {
	users     *cache.Cache
	extIndex  *cache.Cache
	rels      *cache.Cache
	histories *cache.Cache
	timelines *cache.Cache
	momentum  *cache.Cache
	moods     *cache.Cache
	logger    *logrus.Logger

	// go-cache stores interface values; slices need copy-on-write under a
	// single writer lock to stay race-free across turns.
	mu sync.Mutex
}

func NewMemoryStorage(cfg *config.Config, logger *logrus.Logger) *MemoryStorage {
	exp := cfg.Storage.Memory.DefaultExpiration
	cleanup := cfg.Storage.Memory.CleanupInterval
	if exp == 0 {
		exp = cache.NoExpiration
	}
	if cleanup == 0 {
		cleanup = 10 * time.Minute
	}

	return &MemoryStorage{
		users:     cache.New(cache.NoExpiration, cleanup),
		extIndex:  cache.New(cache.NoExpiration, cleanup),
		rels:      cache.New(cache.NoExpiration, cleanup),
		histories: cache.New(exp, cleanup),
		timelines: cache.New(cache.NoExpiration, cleanup),
		momentum:  cache.New(exp, cleanup),
		moods:     cache.New(exp, cleanup),
		logger:    logger,
	}
}

func (m *MemoryStorage) GetOrCreateUser(ctx context.Context, externalID int64, displayName, language string) (*models.User, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	extKey := extIDKey(externalID)
	if val, found := m.extIndex.Get(extKey); found {
		userID := val.(uuid.UUID)
		if u, found := m.users.Get(userKey(userID)); found {
			user := u.(models.User)
			return &user, false, nil
		}
	}

	now := time.Now()
	user := newUser(externalID, displayName, language, now)
	rel := newRelationship(user.ID, now)

	m.users.Set(userKey(user.ID), *user, cache.NoExpiration)
	m.rels.Set(relKey(user.ID), *rel, cache.NoExpiration)
	m.extIndex.Set(extKey, user.ID, cache.NoExpiration)

	m.logger.WithFields(logrus.Fields{
		"user_id":     user.ID,
		"external_id": externalID,
	}).Info("User created")

	return user, true, nil
}

func (m *MemoryStorage) GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	if val, found := m.users.Get(userKey(userID)); found {
		user := val.(models.User)
		return &user, nil
	}
	return nil, nil
}

func (m *MemoryStorage) GetUserByExternalID(ctx context.Context, externalID int64) (*models.User, error) {
	if val, found := m.extIndex.Get(extIDKey(externalID)); found {
		return m.GetUser(ctx, val.(uuid.UUID))
	}
	return nil, nil
}

func (m *MemoryStorage) PatchUser(ctx context.Context, userID uuid.UUID, patch *models.UserPatch) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	val, found := m.users.Get(userKey(userID))
	if !found {
		return nil, models.NewTurnError(models.KindPermanentStore, fmt.Errorf("user %s not found", userID))
	}

	updated := applyUserPatch(val.(models.User), patch)
	m.users.Set(userKey(userID), updated, cache.NoExpiration)
	return &updated, nil
}

func (m *MemoryStorage) GetRelationship(ctx context.Context, userID uuid.UUID) (*models.Relationship, error) {
	if val, found := m.rels.Get(relKey(userID)); found {
		rel := val.(models.Relationship)
		return &rel, nil
	}
	return nil, models.NewTurnError(models.KindPermanentStore, fmt.Errorf("relationship for %s not found", userID))
}

func (m *MemoryStorage) PatchRelationship(ctx context.Context, userID uuid.UUID, patch *models.RelationshipPatch) (*models.Relationship, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	val, found := m.rels.Get(relKey(userID))
	if !found {
		return nil, models.NewTurnError(models.KindPermanentStore, fmt.Errorf("relationship for %s not found", userID))
	}

	updated := applyRelationshipPatch(val.(models.Relationship), patch)
	m.rels.Set(relKey(userID), updated, cache.NoExpiration)
	return &updated, nil
}

func (m *MemoryStorage) AppendMessage(ctx context.Context, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := historyKey(msg.UserID)
	var history []models.Message
	if val, found := m.histories.Get(key); found {
		history = val.([]models.Message)
	}

	history = append(append([]models.Message(nil), history...), *msg)
	if len(history) > historyCap {
		history = history[len(history)-historyCap:]
	}
	m.histories.SetDefault(key, history)
	return nil
}

func (m *MemoryStorage) LoadHistory(ctx context.Context, userID uuid.UUID, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 20
	}
	val, found := m.histories.Get(historyKey(userID))
	if !found {
		return nil, nil
	}

	history := val.([]models.Message)
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	return append([]models.Message(nil), history...), nil
}

func (m *MemoryStorage) AppendTimeline(ctx context.Context, event *models.TimelineEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := timelineKey(event.UserID)
	var events []models.TimelineEvent
	if val, found := m.timelines.Get(key); found {
		events = val.([]models.TimelineEvent)
	}

	events = append(append([]models.TimelineEvent(nil), events...), *event)
	m.timelines.Set(key, events, cache.NoExpiration)
	return nil
}

func (m *MemoryStorage) QueryTimeline(ctx context.Context, userID uuid.UUID, filter *models.TimelineFilter) ([]models.TimelineEvent, error) {
	val, found := m.timelines.Get(timelineKey(userID))
	if !found {
		return nil, nil
	}

	all := val.([]models.TimelineEvent)
	var events []models.TimelineEvent
	for i := range all {
		if matchesFilter(&all[i], filter) {
			events = append(events, all[i])
		}
	}
	if filter != nil && filter.Limit > 0 && len(events) > filter.Limit {
		events = events[len(events)-filter.Limit:]
	}
	return events, nil
}

func (m *MemoryStorage) CompactTimeline(ctx context.Context, userID uuid.UUID, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := timelineKey(userID)
	val, found := m.timelines.Get(key)
	if !found {
		return 0, nil
	}

	events := append([]models.TimelineEvent(nil), val.([]models.TimelineEvent)...)
	kept, changed := compactEvents(events, now)
	if changed > 0 {
		m.timelines.Set(key, append([]models.TimelineEvent(nil), kept...), cache.NoExpiration)
	}
	return changed, nil
}

func (m *MemoryStorage) LoadMomentum(ctx context.Context, userID uuid.UUID) (*models.MomentumState, error) {
	if val, found := m.momentum.Get(momentumKey(userID)); found {
		state := val.(models.MomentumState)
		return &state, nil
	}
	return &models.MomentumState{UserID: userID, Tier: models.Tier1}, nil
}

func (m *MemoryStorage) SaveMomentum(ctx context.Context, state *models.MomentumState) error {
	m.momentum.SetDefault(momentumKey(state.UserID), *state)
	return nil
}

func (m *MemoryStorage) LoadMood(ctx context.Context, userID uuid.UUID) (*models.MoodState, error) {
	if val, found := m.moods.Get(moodKey(userID)); found {
		state := val.(models.MoodState)
		return &state, nil
	}
	return &models.MoodState{UserID: userID, Current: models.MoodNeutral}, nil
}

func (m *MemoryStorage) SaveMood(ctx context.Context, state *models.MoodState) error {
	m.moods.SetDefault(moodKey(state.UserID), *state)
	return nil
}

func (m *MemoryStorage) ResetUser(ctx context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if val, found := m.users.Get(userKey(userID)); found {
		user := val.(models.User)
		m.extIndex.Delete(extIDKey(user.ExternalID))
	}
	m.users.Delete(userKey(userID))
	m.rels.Delete(relKey(userID))
	m.histories.Delete(historyKey(userID))
	m.timelines.Delete(timelineKey(userID))
	m.momentum.Delete(momentumKey(userID))
	m.moods.Delete(moodKey(userID))
	return nil
}

func (m *MemoryStorage) KnownUserIDs(ctx context.Context) ([]uuid.UUID, error) {
	items := m.users.Items()
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		user := item.Object.(models.User)
		ids = append(ids, user.ID)
	}
	return ids, nil
}
