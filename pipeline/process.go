package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brettboylen/linkedin-agent/db"
	"github.com/brettboylen/linkedin-agent/models"
)

// Skip reasons recorded on the activity journal
const (
	ReasonInvalidPostID     = "invalid post id"
	ReasonAlreadyCommented  = "already commented"
	ReasonDocumentPost      = "document post"
	ReasonNoContent         = "no content"
	ReasonGenerationFailed  = "generation failed"
	ReasonSubmissionFailed  = "comment submission failed"
	ReasonNavigationTimeout = "navigation timeout"
	ReasonNoTab             = "no tab available"
	ReasonUnexpected        = "unexpected error"
)

const (
	stageNavigate = "navigate"
	stageScrape   = "scrape"
	stageAnalyze  = "analyze"
	stageGenerate = "generate"
	stagePost     = "post"
)

type outcome string

const (
	outcomeCommented outcome = "commented"
	outcomeSkipped   outcome = "skipped"
	outcomeStopped   outcome = "stopped"
)

// placeholder ids the page scripts return when no real post id was found
var invalidPostIDPrefixes = []string{"error_", "post_", "unexpected_error_"}

// processTarget takes one profile through every stage. Stage failures become
// skips; a stop observed at a checkpoint abandons the target without a skip.
// ctx is never cancelled by Stop, runCtx is.
func (c *Controller) processTarget(ctx, runCtx context.Context, r *run, profile string) outcome {
	log := c.log.WithFields(logrus.Fields{"run_id": r.id, "profile": profile})
	log.Info("Processing profile")
	c.setStatus(ctx, fmt.Sprintf("Processing: %s", profile))

	// failures are logged by the activity log itself
	_ = c.activities.RecordVisit(ctx, profile)

	if !c.isRunning() {
		return outcomeStopped
	}

	start := time.Now()
	tab, err := c.pages.LocateOrOpenTab(ctx, c.cfg.SiteURL)
	if err == nil {
		err = c.navigate(ctx, tab, activityURL(profile))
	}
	c.metrics.observe(stageNavigate, start)
	if !c.isRunning() {
		return outcomeStopped
	}
	if err != nil {
		log.WithError(err).Warn("Failed to load profile activity")
		return c.skip(ctx, profile, failureReason(err))
	}

	if !c.pause(runCtx, c.cfg.PostLoadDelay, "Waiting for page to settle") || !c.pause(runCtx, c.cfg.PreScrapeDelay, "Waiting before reading post") {
		return outcomeStopped
	}

	start = time.Now()
	snap, err := c.pages.ScrapeLatestPost(ctx, tab)
	c.metrics.observe(stageScrape, start)
	if !c.isRunning() {
		return outcomeStopped
	}
	if err != nil {
		log.WithError(err).Warn("Failed to scrape latest post")
		return c.skip(ctx, profile, failureReason(err))
	}

	reason, err := c.eligibility(ctx, snap)
	if err != nil {
		return c.skip(ctx, profile, failureReason(err))
	}
	if reason != "" {
		return c.skip(ctx, profile, reason)
	}
	log = log.WithField("post_id", snap.PostID)

	analysis, kind := c.analyze(ctx, r, snap)
	if !c.pause(runCtx, c.cfg.PostAnalysisDelay, "Waiting after analysis") {
		return outcomeStopped
	}

	promptContext := ""
	if kind == AnalysisImage {
		promptContext = imageContext(analysis)
	}
	prompt := CommentPrompt(r.settings, snap.Text, promptContext, kind)

	start = time.Now()
	raw, err := r.generator.Generate(ctx, prompt)
	c.metrics.observe(stageGenerate, start)
	if err != nil {
		c.metrics.GeneratorFailures.WithLabelValues("generate").Inc()
	}
	if !c.isRunning() {
		return outcomeStopped
	}
	if err != nil {
		log.WithError(err).Warn("Comment generation failed")
		return c.skip(ctx, profile, failureReason(&GenerationError{Err: err}))
	}

	content, ok := ParseGenerated(raw)
	if !ok {
		log.WithField("raw", raw).Warn("Generated comment is unusable")
		return c.skip(ctx, profile, ReasonGenerationFailed)
	}
	log.WithField("reaction", content.Reaction).Debug("Generated comment")

	if !c.pause(runCtx, c.cfg.PrePostDelay, "Waiting before posting") {
		return outcomeStopped
	}

	start = time.Now()
	var applied models.Reaction
	if !snap.AlreadyReacted {
		if c.pages.ApplyReaction(ctx, tab, snap.PostID, content.Reaction) {
			applied = content.Reaction
		} else {
			log.WithField("reaction", content.Reaction).Warn("Failed to apply reaction")
			c.oplog.Addf(ctx, models.LogWarn, "Could not add %s reaction for %s", content.Reaction, shortName(profile))
		}
	}

	result := c.pages.SubmitComment(ctx, tab, snap.PostID, content.CommentText)
	c.metrics.observe(stagePost, start)
	if !result.Success {
		detail := result.Error
		if detail == "" {
			detail = "unknown error"
		}
		return c.skip(ctx, profile, fmt.Sprintf("%s: %s", ReasonSubmissionFailed, detail))
	}

	c.recordSuccess(ctx, profile, snap.PostID, content.CommentText, applied)
	return outcomeCommented
}

// navigate bounds the page load with the navigation timeout
func (c *Controller) navigate(ctx context.Context, tab Tab, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, c.cfg.NavigationTimeout)
	defer cancel()

	err := c.pages.Navigate(navCtx, tab, url)
	if err != nil && errors.Is(navCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrNavigationTimeout) {
		return fmt.Errorf("%w: %s", ErrNavigationTimeout, url)
	}
	return err
}

// eligibility returns the first reason the post must be skipped, or ""
func (c *Controller) eligibility(ctx context.Context, snap models.PostSnapshot) (string, error) {
	if !validPostID(snap.PostID) {
		return ReasonInvalidPostID, nil
	}

	seen, err := c.store.IsMember(ctx, db.KeyCommentedPostIDs, snap.PostID)
	if err != nil {
		return "", fmt.Errorf("failed to check commented posts: %w", err)
	}
	if seen {
		return ReasonAlreadyCommented, nil
	}

	if snap.DocumentRef != "" {
		return ReasonDocumentPost, nil
	}
	if strings.TrimSpace(snap.Text) == "" && len(snap.ImageURLs) == 0 {
		return ReasonNoContent, nil
	}
	return "", nil
}

// analyze describes the post's images. A failed description is kept as
// degraded text instead of failing the target.
func (c *Controller) analyze(ctx context.Context, r *run, snap models.PostSnapshot) (string, AnalysisType) {
	if len(snap.ImageURLs) == 0 {
		return textOnlyAnalysis, AnalysisTextOnly
	}

	start := time.Now()
	description, err := r.generator.DescribeImages(ctx, snap.ImageURLs, VisionPrompt(r.settings.CustomPrompts))
	c.metrics.observe(stageAnalyze, start)
	if err != nil {
		c.metrics.GeneratorFailures.WithLabelValues("describe_images").Inc()
		c.log.WithError(err).WithField("post_id", snap.PostID).Warn("Image analysis failed")
		return fmt.Sprintf("%s: %v", imageAnalysisError, err), AnalysisImage
	}
	return description, AnalysisImage
}

// skip records a deliberate non-action; every skip counts as processed
func (c *Controller) skip(ctx context.Context, profile, reason string) outcome {
	_ = c.activities.RecordSkip(ctx, profile, reason)
	if err := c.counters.IncrementSkipped(ctx); err != nil {
		c.log.WithError(err).Warn("Failed to count skip")
	}
	c.metrics.skipped(reason)
	c.oplog.Addf(ctx, models.LogWarn, "Skipping %s: %s", shortName(profile), reason)
	return outcomeSkipped
}

func (c *Controller) recordSuccess(ctx context.Context, profile, postID, comment string, reaction models.Reaction) {
	short := shortName(profile)

	if reaction != "" {
		_ = c.activities.RecordReaction(ctx, profile, postID, reaction)
		c.oplog.Addf(ctx, models.LogSuccess, "Added %s reaction and comment for profile: %s", reaction, short)
	} else {
		c.oplog.Addf(ctx, models.LogInfo, "Comment posted for profile: %s (no reaction added)", short)
	}
	_ = c.activities.RecordComment(ctx, profile, postID, comment, reaction)

	if err := c.store.AddMember(ctx, db.KeyCommentedPostIDs, postID); err != nil {
		c.log.WithError(err).WithField("post_id", postID).Error("Failed to store commented post id")
	}
	if err := c.counters.IncrementCommented(ctx); err != nil {
		c.log.WithError(err).Warn("Failed to count comment")
	}

	c.setStatus(ctx, fmt.Sprintf("Comment posted for %s", profile))
}

// failureReason turns a stage error into a skip reason
func failureReason(err error) string {
	var scrapeErr *ScrapeError
	var genErr *GenerationError

	switch {
	case errors.Is(err, ErrNavigationTimeout):
		return ReasonNavigationTimeout
	case errors.Is(err, ErrNoTabAvailable):
		return ReasonNoTab
	case errors.As(err, &scrapeErr):
		return scrapeErr.Error()
	case errors.As(err, &genErr):
		return genErr.Error()
	default:
		return fmt.Sprintf("%s: %v", ReasonUnexpected, err)
	}
}

func validPostID(id string) bool {
	if id == "" || id == "invalid" {
		return false
	}
	for _, prefix := range invalidPostIDPrefixes {
		if strings.HasPrefix(id, prefix) {
			return false
		}
	}
	return true
}

func activityURL(profile string) string {
	return strings.TrimSuffix(profile, "/") + "/recent-activity/all/"
}

// shortName is the last path segment of a profile URL
func shortName(profile string) string {
	parts := strings.FieldsFunc(profile, func(r rune) bool { return r == '/' })
	if len(parts) == 0 {
		return profile
	}
	return parts[len(parts)-1]
}
