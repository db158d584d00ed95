package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/config"
	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/i18n"
	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/models"
	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/services/phase"
	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/services/storage"
	"github.com/sirupsen/logrus"
)

// CommandHandler handles slash commands.
type CommandHandler struct {
	config    *config.Config
	sender    Sender
	store     *storage.Manager
	localizer *i18n.Localizer
	logger    *logrus.Logger
	loc       *time.Location
}

// NewCommandHandler creates a new command handler.
func NewCommandHandler(cfg *config.Config, sender Sender, store *storage.Manager, localizer *i18n.Localizer, logger *logrus.Logger) *CommandHandler {
	return &CommandHandler{
		config:    cfg,
		sender:    sender,
		store:     store,
		localizer: localizer,
		logger:    logger,
		loc:       cfg.Location(),
	}
}

// HandleCommand processes one slash command.
func (h *CommandHandler) HandleCommand(ctx context.Context, externalID int64, displayName, langHint, command, args string) error {
	user, _, err := h.store.GetOrCreateUser(ctx, externalID, displayName, langHint)
	if err != nil {
		return err
	}
	lang := user.Language

	switch command {
	case "start":
		return h.handleStart(user, lang)
	case "help":
		return h.handleHelp(user, lang)
	case "profile":
		return h.handleProfile(ctx, user, lang)
	case "debug":
		return h.handleDebug(ctx, user, lang, args)
	case "reset":
		return h.handleReset(ctx, user, lang, args)
	case "health":
		return h.handleHealth(ctx, user, lang)
	default:
		return h.sender.SendText(externalID, h.localizer.Get(lang, i18n.MsgUnknownCommand, nil))
	}
}

func (h *CommandHandler) handleStart(user *models.User, lang string) error {
	text := h.localizer.Get(lang, i18n.MsgWelcome, map[string]interface{}{
		"Name": user.DisplayName,
	})
	return h.sender.SendText(user.ExternalID, text)
}

func (h *CommandHandler) handleHelp(user *models.User, lang string) error {
	return h.sender.SendText(user.ExternalID, h.localizer.Get(lang, i18n.MsgHelp, nil))
}

func (h *CommandHandler) handleProfile(ctx context.Context, user *models.User, lang string) error {
	rel, err := h.store.GetRelationship(ctx, user.ID)
	if err != nil {
		return err
	}
	text := h.localizer.Get(lang, i18n.MsgProfile, map[string]interface{}{
		"Name":  user.DisplayName,
		"Day":   rel.Day,
		"Count": rel.MessageCount,
		"Phase": phase.Resolve(rel).String(),
	})
	return h.sender.SendText(user.ExternalID, text)
}

// handleDebug dumps the relationship state of a user. Admin only.
func (h *CommandHandler) handleDebug(ctx context.Context, caller *models.User, lang, args string) error {
	if !h.isAdmin(caller.ExternalID) {
		return h.sender.SendText(caller.ExternalID, h.localizer.Get(lang, i18n.MsgAdminOnly, nil))
	}

	target := caller
	if args != "" {
		extID, err := strconv.ParseInt(strings.TrimSpace(args), 10, 64)
		if err != nil {
			return h.sender.SendText(caller.ExternalID, h.localizer.Get(lang, i18n.MsgUserNotFound, nil))
		}
		target, err = h.store.GetUserByExternalID(ctx, extID)
		if err != nil || target == nil {
			return h.sender.SendText(caller.ExternalID, h.localizer.Get(lang, i18n.MsgUserNotFound, nil))
		}
	}

	rel, err := h.store.GetRelationship(ctx, target.ID)
	if err != nil {
		return err
	}
	momentumState, err := h.store.LoadMomentum(ctx, target.ID)
	if err != nil {
		return err
	}
	moodState, err := h.store.LoadMood(ctx, target.ID)
	if err != nil {
		return err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "user: %s (%d)\n", target.ID, target.ExternalID)
	fmt.Fprintf(&sb, "subscription: %s  paid: %v\n", target.Subscription, rel.Paid)
	fmt.Fprintf(&sb, "day: %d  messages: %d  session: %d\n", rel.Day, rel.MessageCount, rel.MessagesThisSession)
	fmt.Fprintf(&sb, "phase: %s  teasing: %d  intimacy: %d\n", phase.Resolve(rel).String(), rel.TeasingStage, rel.IntimacyHistory)
	fmt.Fprintf(&sb, "momentum: %.1f  tier: %d\n", momentumState.Momentum, momentumState.Tier)
	fmt.Fprintf(&sb, "mood: %s\n", moodState.Current)
	fmt.Fprintf(&sb, "since_climax: %d  next_modifier: %s\n", rel.MessagesSinceClimax, rel.NextModifier)
	fmt.Fprintf(&sb, "paywall_sent: %v  paywall_shown: %v  previews: %d\n", target.PaywallSent, rel.PaywallShown, target.PreviewCount)
	return h.sender.SendText(caller.ExternalID, sb.String())
}

// handleReset wipes a user's state, or all state with "all". Admin only.
func (h *CommandHandler) handleReset(ctx context.Context, caller *models.User, lang, args string) error {
	if !h.isAdmin(caller.ExternalID) {
		return h.sender.SendText(caller.ExternalID, h.localizer.Get(lang, i18n.MsgAdminOnly, nil))
	}

	args = strings.TrimSpace(args)
	switch args {
	case "":
		if err := h.store.ResetUser(ctx, caller.ID); err != nil {
			return err
		}
	case "all":
		ids, err := h.store.KnownUserIDs(ctx)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if err := h.store.ResetUser(ctx, id); err != nil {
				h.logger.WithError(err).WithField("user_id", id).Warn("Reset failed")
			}
		}
	default:
		extID, err := strconv.ParseInt(args, 10, 64)
		if err != nil {
			return h.sender.SendText(caller.ExternalID, h.localizer.Get(lang, i18n.MsgUserNotFound, nil))
		}
		target, err := h.store.GetUserByExternalID(ctx, extID)
		if err != nil || target == nil {
			return h.sender.SendText(caller.ExternalID, h.localizer.Get(lang, i18n.MsgUserNotFound, nil))
		}
		if err := h.store.ResetUser(ctx, target.ID); err != nil {
			return err
		}
	}
	return h.sender.SendText(caller.ExternalID, h.localizer.Get(lang, i18n.MsgResetDone, nil))
}

// handleHealth reports store reachability and population. Admin only.
func (h *CommandHandler) handleHealth(ctx context.Context, caller *models.User, lang string) error {
	if !h.isAdmin(caller.ExternalID) {
		return h.sender.SendText(caller.ExternalID, h.localizer.Get(lang, i18n.MsgAdminOnly, nil))
	}

	start := time.Now()
	ids, err := h.store.KnownUserIDs(ctx)
	latency := time.Since(start)

	var sb strings.Builder
	if err != nil {
		fmt.Fprintf(&sb, "storage: DOWN (%v)\n", err)
	} else {
		fmt.Fprintf(&sb, "storage: ok (%s)\n", latency.Round(time.Millisecond))
		fmt.Fprintf(&sb, "users: %d\n", len(ids))
	}
	fmt.Fprintf(&sb, "time: %s\n", time.Now().In(h.loc).Format(time.RFC3339))
	return h.sender.SendText(caller.ExternalID, sb.String())
}

func (h *CommandHandler) isAdmin(externalID int64) bool {
	for _, id := range h.config.Bot.AdminIDs {
		if id == externalID {
			return true
		}
	}
	return false
}
