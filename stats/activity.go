package stats

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/brettboylen/linkedin-agent/db"
	"github.com/brettboylen/linkedin-agent/events"
	"github.com/brettboylen/linkedin-agent/models"
)

const (
	// MaxActivities caps the persisted journal; oldest entries are evicted
	MaxActivities = 500

	commentPreviewLength = 50
	skipReasonLength     = 100
	recentWindow         = 30 * 24 * time.Hour
)

// ActivityLog is the append-only journal of pipeline outcomes plus its
// derived statistics cache
type ActivityLog struct {
	store  db.Store
	events events.Publisher
	log    *logrus.Logger
	now    func() time.Time
	mutex  sync.Mutex
}

// NewActivityLog creates a new activity log
func NewActivityLog(store db.Store, publisher events.Publisher, log *logrus.Logger) *ActivityLog {
	if publisher == nil {
		publisher = events.Discard
	}
	return &ActivityLog{
		store:  store,
		events: publisher,
		log:    log,
		now:    time.Now,
	}
}

// Record prepends the activity, trims the journal and rewrites the stats
// cache. Failures are logged and returned; they must never stop the caller.
func (a *ActivityLog) Record(ctx context.Context, activity models.Activity) error {
	if activity.ID == "" {
		activity.ID = uuid.NewString()
	}
	if activity.Timestamp.IsZero() {
		activity.Timestamp = a.now().UTC()
	}
	if activity.Details == nil {
		activity.Details = map[string]any{}
	}

	a.mutex.Lock()
	err := a.record(ctx, activity)
	a.mutex.Unlock()

	if err != nil {
		a.log.WithError(err).WithFields(logrus.Fields{
			"type":    activity.Type,
			"profile": activity.ProfileURL,
		}).Error("Failed to record activity")
		return err
	}

	a.log.WithFields(logrus.Fields{
		"type":    activity.Type,
		"profile": activity.ProfileURL,
	}).Debug("Recorded activity")

	a.events.Publish(events.NewActivityEvent(activity))
	return nil
}

func (a *ActivityLog) record(ctx context.Context, activity models.Activity) error {
	if err := a.store.Push(ctx, db.KeyActivities, activity, MaxActivities); err != nil {
		return fmt.Errorf("failed to append activity: %w", err)
	}
	if _, err := a.refresh(ctx); err != nil {
		return err
	}
	return nil
}

// RecordVisit records a profile visit
func (a *ActivityLog) RecordVisit(ctx context.Context, profileURL string) error {
	return a.Record(ctx, models.Activity{
		Type:       models.ActivityVisit,
		ProfileURL: profileURL,
		Success:    true,
	})
}

// RecordSkip records a deliberate non-action with its reason
func (a *ActivityLog) RecordSkip(ctx context.Context, profileURL, reason string) error {
	if reason == "" {
		reason = "Unknown reason"
	}
	return a.Record(ctx, models.Activity{
		Type:       models.ActivitySkip,
		ProfileURL: profileURL,
		Details:    map[string]any{"reason": truncate(reason, skipReasonLength, false)},
		Success:    true,
	})
}

// RecordReaction records a reaction applied to a post
func (a *ActivityLog) RecordReaction(ctx context.Context, profileURL, postID string, reaction models.Reaction) error {
	return a.Record(ctx, models.Activity{
		Type:       models.ActivityReaction,
		ProfileURL: profileURL,
		PostID:     postID,
		Details:    map[string]any{"reactionType": string(reaction)},
		Success:    true,
	})
}

// RecordComment records a posted comment; reaction is empty when none was applied
func (a *ActivityLog) RecordComment(ctx context.Context, profileURL, postID, comment string, reaction models.Reaction) error {
	details := map[string]any{
		"commentText":   truncate(comment, commentPreviewLength, true),
		"reactionAdded": reaction != "",
		"reactionType":  nil,
	}
	if reaction != "" {
		details["reactionType"] = string(reaction)
	}
	return a.Record(ctx, models.Activity{
		Type:       models.ActivityComment,
		ProfileURL: profileURL,
		PostID:     postID,
		Details:    details,
		Success:    true,
	})
}

// Summary returns the cached stats, recomputing them when the cache is missing
func (a *ActivityLog) Summary(ctx context.Context) (models.ActivityStats, error) {
	var cached models.ActivityStats
	ok, err := a.store.Get(ctx, db.KeyActivityStats, &cached)
	if err != nil {
		a.log.WithError(err).Warn("Failed to read activity stats cache, recomputing")
	}
	if ok && err == nil {
		return cached, nil
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.refresh(ctx)
}

// Recent returns up to limit activities, newest first
func (a *ActivityLog) Recent(ctx context.Context, limit int) ([]models.Activity, error) {
	raw, err := a.store.List(ctx, db.KeyActivities, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	return db.DecodeList[models.Activity](raw)
}

// Clear empties the journal and resets the stats cache
func (a *ActivityLog) Clear(ctx context.Context) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if err := a.store.Delete(ctx, db.KeyActivities, db.KeyActivityStats); err != nil {
		return fmt.Errorf("failed to clear activities: %w", err)
	}
	if _, err := a.refresh(ctx); err != nil {
		return err
	}

	a.log.Info("Activity history cleared")
	return nil
}

// refresh recomputes the stats from the full journal and overwrites the cache
func (a *ActivityLog) refresh(ctx context.Context) (models.ActivityStats, error) {
	activities, err := a.Recent(ctx, 0)
	if err != nil {
		return models.ActivityStats{}, err
	}

	stats := ComputeStats(activities, a.now())
	if err := a.store.Set(ctx, db.KeyActivityStats, stats); err != nil {
		return models.ActivityStats{}, fmt.Errorf("failed to save activity stats: %w", err)
	}
	return stats, nil
}

// ComputeStats derives aggregate statistics from a newest-first journal
func ComputeStats(activities []models.Activity, now time.Time) models.ActivityStats {
	var stats models.ActivityStats
	cutoff := now.Add(-recentWindow)
	profiles := make(map[string]struct{})

	for _, activity := range activities {
		recent := !activity.Timestamp.Before(cutoff)

		switch activity.Type {
		case models.ActivityComment:
			stats.TotalComments++
			if recent {
				stats.Last30Days.Comments++
			}
		case models.ActivityReaction:
			stats.TotalReactions++
			if recent {
				stats.Last30Days.Reactions++
			}
		case models.ActivityVisit:
			stats.TotalVisits++
		case models.ActivitySkip:
			stats.TotalSkips++
		}

		if activity.ProfileURL != "" {
			profiles[activity.ProfileURL] = struct{}{}
		}
	}

	stats.UniqueProfiles = len(profiles)
	if len(activities) > 0 {
		last := activities[0].Timestamp
		stats.LastActive = &last
	}

	return stats
}

func truncate(s string, max int, ellipsis bool) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if ellipsis {
		return string(runes[:max]) + "..."
	}
	return string(runes[:max])
}
