package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/config"
	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/models"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// historyCap bounds the stored per-user message list. Retrieval windows are
// far smaller; the tail only serves extraction and debugging.
const historyCap = 200

// RedisStorage implements Storage using Redis. Values are JSON blobs keyed by
// the surrogate user id; an extid index maps platform ids to surrogate ids.
type RedisStorage struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewRedisStorage(cfg *config.Config, logger *logrus.Logger) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Storage.Redis.Addr,
		Password:     cfg.Storage.Redis.Password,
		DB:           cfg.Storage.Redis.DB,
		PoolSize:     cfg.Storage.Redis.PoolSize,
		MinIdleConns: cfg.Storage.Redis.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStorage{
		client: client,
		logger: logger,
	}, nil
}

// wrapErr classifies redis failures: network/timeout errors are transient,
// everything else permanent.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return models.NewTurnError(models.KindTransientStore, err)
	}
	return models.NewTurnError(models.KindPermanentStore, err)
}

func userKey(id uuid.UUID) string      { return "user:" + id.String() }
func extIDKey(externalID int64) string { return fmt.Sprintf("extid:%d", externalID) }
func relKey(id uuid.UUID) string       { return "rel:" + id.String() }
func historyKey(id uuid.UUID) string   { return "history:" + id.String() }
func timelineKey(id uuid.UUID) string  { return "timeline:" + id.String() }
func momentumKey(id uuid.UUID) string  { return "momentum:" + id.String() }
func moodKey(id uuid.UUID) string      { return "mood:" + id.String() }

const usersIndexKey = "users:index"

func (r *RedisStorage) getJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, wrapErr(err)
	}
	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return false, models.NewTurnError(models.KindPermanentStore, err)
	}
	return true, nil
}

func (r *RedisStorage) setJSON(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return models.NewTurnError(models.KindPermanentStore, err)
	}
	return wrapErr(r.client.Set(ctx, key, data, 0).Err())
}

func (r *RedisStorage) GetOrCreateUser(ctx context.Context, externalID int64, displayName, language string) (*models.User, bool, error) {
	idStr, err := r.client.Get(ctx, extIDKey(externalID)).Result()
	if err != nil && err != redis.Nil {
		return nil, false, wrapErr(err)
	}
	if err == nil {
		userID, parseErr := uuid.Parse(idStr)
		if parseErr != nil {
			return nil, false, models.NewTurnError(models.KindPermanentStore, parseErr)
		}
		user, getErr := r.GetUser(ctx, userID)
		if getErr != nil {
			return nil, false, getErr
		}
		if user != nil {
			return user, false, nil
		}
		// Dangling index entry; fall through and recreate.
	}

	now := time.Now()
	user := newUser(externalID, displayName, language, now)
	rel := newRelationship(user.ID, now)

	if err := r.setJSON(ctx, userKey(user.ID), user); err != nil {
		return nil, false, err
	}
	if err := r.setJSON(ctx, relKey(user.ID), rel); err != nil {
		return nil, false, err
	}
	if err := r.client.Set(ctx, extIDKey(externalID), user.ID.String(), 0).Err(); err != nil {
		return nil, false, wrapErr(err)
	}
	if err := r.client.SAdd(ctx, usersIndexKey, user.ID.String()).Err(); err != nil {
		return nil, false, wrapErr(err)
	}

	r.logger.WithFields(logrus.Fields{
		"user_id":     user.ID,
		"external_id": externalID,
	}).Info("User created")

	return user, true, nil
}

func (r *RedisStorage) GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	found, err := r.getJSON(ctx, userKey(userID), &user)
	if err != nil || !found {
		return nil, err
	}
	return &user, nil
}

func (r *RedisStorage) GetUserByExternalID(ctx context.Context, externalID int64) (*models.User, error) {
	idStr, err := r.client.Get(ctx, extIDKey(externalID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr(err)
	}
	userID, parseErr := uuid.Parse(idStr)
	if parseErr != nil {
		return nil, models.NewTurnError(models.KindPermanentStore, parseErr)
	}
	return r.GetUser(ctx, userID)
}

func (r *RedisStorage) PatchUser(ctx context.Context, userID uuid.UUID, patch *models.UserPatch) (*models.User, error) {
	user, err := r.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.NewTurnError(models.KindPermanentStore, fmt.Errorf("user %s not found", userID))
	}

	updated := applyUserPatch(*user, patch)
	if err := r.setJSON(ctx, userKey(userID), &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (r *RedisStorage) GetRelationship(ctx context.Context, userID uuid.UUID) (*models.Relationship, error) {
	var rel models.Relationship
	found, err := r.getJSON(ctx, relKey(userID), &rel)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, models.NewTurnError(models.KindPermanentStore, fmt.Errorf("relationship for %s not found", userID))
	}
	return &rel, nil
}

func (r *RedisStorage) PatchRelationship(ctx context.Context, userID uuid.UUID, patch *models.RelationshipPatch) (*models.Relationship, error) {
	rel, err := r.GetRelationship(ctx, userID)
	if err != nil {
		return nil, err
	}

	updated := applyRelationshipPatch(*rel, patch)
	if err := r.setJSON(ctx, relKey(userID), &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (r *RedisStorage) AppendMessage(ctx context.Context, msg *models.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return models.NewTurnError(models.KindPermanentStore, err)
	}
	key := historyKey(msg.UserID)
	if err := r.client.RPush(ctx, key, data).Err(); err != nil {
		return wrapErr(err)
	}
	return wrapErr(r.client.LTrim(ctx, key, -historyCap, -1).Err())
}

func (r *RedisStorage) LoadHistory(ctx context.Context, userID uuid.UUID, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 20
	}
	items, err := r.client.LRange(ctx, historyKey(userID), int64(-limit), -1).Result()
	if err != nil {
		return nil, wrapErr(err)
	}

	history := make([]models.Message, 0, len(items))
	for _, item := range items {
		var msg models.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, models.NewTurnError(models.KindPermanentStore, err)
		}
		history = append(history, msg)
	}
	return history, nil
}

func (r *RedisStorage) AppendTimeline(ctx context.Context, event *models.TimelineEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return models.NewTurnError(models.KindPermanentStore, err)
	}
	return wrapErr(r.client.RPush(ctx, timelineKey(event.UserID), data).Err())
}

func (r *RedisStorage) QueryTimeline(ctx context.Context, userID uuid.UUID, filter *models.TimelineFilter) ([]models.TimelineEvent, error) {
	items, err := r.client.LRange(ctx, timelineKey(userID), 0, -1).Result()
	if err != nil {
		return nil, wrapErr(err)
	}

	var events []models.TimelineEvent
	for _, item := range items {
		var ev models.TimelineEvent
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			return nil, models.NewTurnError(models.KindPermanentStore, err)
		}
		if matchesFilter(&ev, filter) {
			events = append(events, ev)
		}
	}
	if filter != nil && filter.Limit > 0 && len(events) > filter.Limit {
		events = events[len(events)-filter.Limit:]
	}
	return events, nil
}

func (r *RedisStorage) CompactTimeline(ctx context.Context, userID uuid.UUID, now time.Time) (int, error) {
	events, err := r.QueryTimeline(ctx, userID, nil)
	if err != nil {
		return 0, err
	}

	kept, changed := compactEvents(events, now)
	if changed == 0 {
		return 0, nil
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, timelineKey(userID))
	for i := range kept {
		data, err := json.Marshal(&kept[i])
		if err != nil {
			return 0, models.NewTurnError(models.KindPermanentStore, err)
		}
		pipe.RPush(ctx, timelineKey(userID), data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, wrapErr(err)
	}
	return changed, nil
}

func (r *RedisStorage) LoadMomentum(ctx context.Context, userID uuid.UUID) (*models.MomentumState, error) {
	var state models.MomentumState
	found, err := r.getJSON(ctx, momentumKey(userID), &state)
	if err != nil {
		return nil, err
	}
	if !found {
		return &models.MomentumState{UserID: userID, Tier: models.Tier1}, nil
	}
	return &state, nil
}

func (r *RedisStorage) SaveMomentum(ctx context.Context, state *models.MomentumState) error {
	return r.setJSON(ctx, momentumKey(state.UserID), state)
}

func (r *RedisStorage) LoadMood(ctx context.Context, userID uuid.UUID) (*models.MoodState, error) {
	var state models.MoodState
	found, err := r.getJSON(ctx, moodKey(userID), &state)
	if err != nil {
		return nil, err
	}
	if !found {
		return &models.MoodState{UserID: userID, Current: models.MoodNeutral}, nil
	}
	return &state, nil
}

func (r *RedisStorage) SaveMood(ctx context.Context, state *models.MoodState) error {
	return r.setJSON(ctx, moodKey(state.UserID), state)
}

func (r *RedisStorage) ResetUser(ctx context.Context, userID uuid.UUID) error {
	user, err := r.GetUser(ctx, userID)
	if err != nil {
		return err
	}

	keys := []string{
		userKey(userID), relKey(userID), historyKey(userID),
		timelineKey(userID), momentumKey(userID), moodKey(userID),
	}
	if user != nil {
		keys = append(keys, extIDKey(user.ExternalID))
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return wrapErr(err)
	}
	return wrapErr(r.client.SRem(ctx, usersIndexKey, userID.String()).Err())
}

func (r *RedisStorage) KnownUserIDs(ctx context.Context) ([]uuid.UUID, error) {
	members, err := r.client.SMembers(ctx, usersIndexKey).Result()
	if err != nil {
		return nil, wrapErr(err)
	}
	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		if id, err := uuid.Parse(m); err == nil {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
