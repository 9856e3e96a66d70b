package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brettboylen/linkedin-agent/db"
	"github.com/brettboylen/linkedin-agent/events"
	"github.com/brettboylen/linkedin-agent/models"
)

// MaxLogEntries caps the operational log
const MaxLogEntries = 500

// OpLog is the operational log shown to observers. It is separate from the
// activity journal and from the process logger, which it mirrors into.
type OpLog struct {
	store  db.Store
	events events.Publisher
	log    *logrus.Logger
}

// NewOpLog creates a new operational log
func NewOpLog(store db.Store, publisher events.Publisher, log *logrus.Logger) *OpLog {
	if publisher == nil {
		publisher = events.Discard
	}
	return &OpLog{store: store, events: publisher, log: log}
}

// Add persists and broadcasts a log entry; persistence errors are only logged
func (o *OpLog) Add(ctx context.Context, level models.LogLevel, message string) {
	entry := models.LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   message,
	}

	o.mirror(entry)

	if err := o.store.Push(ctx, db.KeyLogs, entry, MaxLogEntries); err != nil {
		o.log.WithError(err).Error("Failed to save log entry")
	}

	o.events.Publish(events.NewLogEvent(entry))
}

// Addf formats and adds a log entry
func (o *OpLog) Addf(ctx context.Context, level models.LogLevel, format string, args ...any) {
	o.Add(ctx, level, fmt.Sprintf(format, args...))
}

// Recent returns up to limit entries, newest first
func (o *OpLog) Recent(ctx context.Context, limit int) ([]models.LogEntry, error) {
	raw, err := o.store.List(ctx, db.KeyLogs, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list logs: %w", err)
	}
	return db.DecodeList[models.LogEntry](raw)
}

// Clear removes every entry
func (o *OpLog) Clear(ctx context.Context) error {
	if err := o.store.Delete(ctx, db.KeyLogs); err != nil {
		return fmt.Errorf("failed to clear logs: %w", err)
	}
	return nil
}

func (o *OpLog) mirror(entry models.LogEntry) {
	l := o.log.WithField("oplog", true)
	switch entry.Level {
	case models.LogDebug:
		l.Debug(entry.Message)
	case models.LogWarn:
		l.Warn(entry.Message)
	case models.LogError:
		l.Error(entry.Message)
	default:
		l.Info(entry.Message)
	}
}
