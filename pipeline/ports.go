// Package pipeline walks the target profiles one at a time, takes each through
// navigate, scrape, analyze, generate and post, and records what happened.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/brettboylen/linkedin-agent/models"
)

var (
	// ErrAlreadyRunning is returned by Start while a run is in progress
	ErrAlreadyRunning = errors.New("already running")
	// ErrMissingCredential is returned by Start when no Gemini API key is configured
	ErrMissingCredential = errors.New("gemini API key not set")
	// ErrNoTargets is returned by Start when the target list is empty
	ErrNoTargets = errors.New("no target profiles set")
	// ErrNoTabAvailable means the page adapter could neither find nor open a tab
	ErrNoTabAvailable = errors.New("no tab available")
	// ErrNavigationTimeout means the page did not finish loading in time
	ErrNavigationTimeout = errors.New("navigation timeout")
)

// ScrapeError is returned when the latest post could not be read
type ScrapeError struct {
	Reason string
}

func (e *ScrapeError) Error() string {
	return fmt.Sprintf("scrape failed: %s", e.Reason)
}

// GenerationError wraps a content generator failure
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// IsConfigError reports whether err prevents a run from starting
func IsConfigError(err error) bool {
	return errors.Is(err, ErrMissingCredential) || errors.Is(err, ErrNoTargets)
}

// Tab identifies a browser tab on the target site
type Tab struct {
	ID string
}

// PageAdapter drives the target site's pages
type PageAdapter interface {
	// LocateOrOpenTab reuses a tab on the site or opens one; fails with ErrNoTabAvailable
	LocateOrOpenTab(ctx context.Context, siteHint string) (Tab, error)
	// Navigate loads url and waits for it; the controller bounds ctx with the navigation timeout
	Navigate(ctx context.Context, tab Tab, url string) error
	ScrapeLatestPost(ctx context.Context, tab Tab) (models.PostSnapshot, error)
	// ApplyReaction is best effort and never fails the attempt
	ApplyReaction(ctx context.Context, tab Tab, postID string, reaction models.Reaction) bool
	SubmitComment(ctx context.Context, tab Tab, postID, text string) models.CommentResult
}

// ContentGenerator produces image descriptions and raw comment text
type ContentGenerator interface {
	DescribeImages(ctx context.Context, urls []string, prompt string) (string, error)
	// Generate returns raw text in the "Reaction: ...\nComment: ..." format
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFactory builds a ContentGenerator from the settings loaded at start
type GeneratorFactory func(settings models.Settings) (ContentGenerator, error)
