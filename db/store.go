package db

import (
	"context"
	"encoding/json"
	"fmt"
)

// Logical keys shared by every component that persists state
const (
	KeySettings         = "settings"
	KeyActivities       = "activities"
	KeyActivityStats    = "activityStats"
	KeyCommentedPostIDs = "commentedPostIds"
	KeyLogs             = "logs"
	KeyCommentedCount   = "commentedCount"
	KeySkippedCount     = "skippedCount"
	KeyProcessedCount   = "processedCount"
	KeyAgentStatus      = "agentStatus"
)

// Store is durable key-value persistence with list and set collections.
// Values are JSON encoded. Writers are expected to serialize through the
// single pipeline worker; concurrent readers see last-write-wins.
type Store interface {
	// Get decodes the value stored at key into dest and reports whether it existed
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	// Delete removes every value, list and set stored under the keys
	Delete(ctx context.Context, keys ...string) error
	Incr(ctx context.Context, key string) (int64, error)

	// Push prepends value to the list at key and keeps only the newest limit entries
	Push(ctx context.Context, key string, value any, limit int) error
	// List returns up to limit entries newest first; limit <= 0 returns all
	List(ctx context.Context, key string, limit int) ([]json.RawMessage, error)

	AddMember(ctx context.Context, key, member string) error
	IsMember(ctx context.Context, key, member string) (bool, error)
	CountMembers(ctx context.Context, key string) (int, error)

	Close() error
}

// DecodeList unmarshals raw list entries into a typed slice
func DecodeList[T any](raw []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(raw))
	for i, r := range raw {
		var v T
		if err := json.Unmarshal(r, &v); err != nil {
			return nil, fmt.Errorf("failed to decode entry %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}
