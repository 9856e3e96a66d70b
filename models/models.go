package models

import (
	"strings"
	"time"
)

// ActivityType classifies an entry in the activity journal
type ActivityType string

const (
	ActivityComment  ActivityType = "comment"
	ActivityReaction ActivityType = "reaction"
	ActivityVisit    ActivityType = "visit"
	ActivitySkip     ActivityType = "skip"
)

// Activity is one observable outcome of the pipeline; never mutated after creation
type Activity struct {
	ID         string         `json:"id"`
	Type       ActivityType   `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	ProfileURL string         `json:"profile_url"`
	PostID     string         `json:"post_id,omitempty"`
	Details    map[string]any `json:"details"`
	Success    bool           `json:"success"`
}

// PeriodStats holds counts for a trailing window
type PeriodStats struct {
	Comments  int `json:"comments"`
	Reactions int `json:"reactions"`
}

// ActivityStats is derived from the activity journal and cached for reads
type ActivityStats struct {
	TotalComments  int         `json:"total_comments"`
	TotalReactions int         `json:"total_reactions"`
	TotalVisits    int         `json:"total_visits"`
	TotalSkips     int         `json:"total_skips"`
	UniqueProfiles int         `json:"unique_profiles"`
	Last30Days     PeriodStats `json:"last_30_days"`
	LastActive     *time.Time  `json:"last_active,omitempty"`
}

// Reaction is one of the reactions the target site supports
type Reaction string

const (
	ReactionLike       Reaction = "Like"
	ReactionCelebrate  Reaction = "Celebrate"
	ReactionSupport    Reaction = "Support"
	ReactionLove       Reaction = "Love"
	ReactionInsightful Reaction = "Insightful"
	ReactionFunny      Reaction = "Funny"
)

// Reactions lists every valid reaction in display order
var Reactions = []Reaction{
	ReactionLike,
	ReactionCelebrate,
	ReactionSupport,
	ReactionLove,
	ReactionInsightful,
	ReactionFunny,
}

// ParseReaction matches a reaction word case-insensitively
func ParseReaction(word string) (Reaction, bool) {
	word = strings.TrimSpace(word)
	for _, r := range Reactions {
		if strings.EqualFold(string(r), word) {
			return r, true
		}
	}
	return "", false
}

// PostSnapshot is the scraped state of a profile's latest post
type PostSnapshot struct {
	PostID         string   `json:"postId"`
	Text           string   `json:"postText"`
	ImageURLs      []string `json:"imageUrls"`
	DocumentRef    string   `json:"documentUrl"`
	AlreadyReacted bool     `json:"preReacted"`
}

// GeneratedContent is the parsed output of the content generator
type GeneratedContent struct {
	Reaction    Reaction `json:"reaction"`
	CommentText string   `json:"comment_text"`
}

// CommentResult is what the page reports after submitting a comment
type CommentResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// RunState is the controller's queue position; owned by the controller only
type RunState struct {
	IsRunning    bool     `json:"is_running"`
	CurrentIndex int      `json:"current_index"`
	Targets      []string `json:"targets"`
}

// CustomPrompts override the built-in prompts when non-empty
type CustomPrompts struct {
	VisionPrompt  string `json:"vision_prompt,omitempty"`
	CommentPrompt string `json:"comment_prompt,omitempty"`
}

// Settings are the persisted run settings
type Settings struct {
	GeminiAPIKey    string        `json:"gemini_api_key"`
	MistralAPIKey   string        `json:"mistral_api_key"`
	TargetProfiles  []string      `json:"target_profiles"`
	BusinessContext string        `json:"business_context"`
	CustomPrompts   CustomPrompts `json:"custom_prompts"`
}

// Masked returns a copy safe to hand to observers
func (s Settings) Masked() Settings {
	s.GeminiAPIKey = maskSecret(s.GeminiAPIKey)
	s.MistralAPIKey = maskSecret(s.MistralAPIKey)
	s.TargetProfiles = append([]string(nil), s.TargetProfiles...)
	return s
}

func maskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}

// LogLevel is the severity of an operational log entry
type LogLevel string

const (
	LogDebug   LogLevel = "debug"
	LogInfo    LogLevel = "info"
	LogWarn    LogLevel = "warn"
	LogError   LogLevel = "error"
	LogSuccess LogLevel = "success"
)

// LogEntry is one line of the operational log
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     LogLevel  `json:"level"`
	Message   string    `json:"message"`
}

// Counters are the run counters shown to observers
type Counters struct {
	Commented int `json:"commented"`
	Skipped   int `json:"skipped"`
	Processed int `json:"processed"`
}

// RunStats is the structured payload of a status change
type RunStats struct {
	Commented int `json:"commented"`
	Skipped   int `json:"skipped"`
	Processed int `json:"processed"`
	Total     int `json:"total"`
}
