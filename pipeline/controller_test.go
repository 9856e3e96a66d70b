package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brettboylen/linkedin-agent/db"
	"github.com/brettboylen/linkedin-agent/events"
	"github.com/brettboylen/linkedin-agent/models"
)

const (
	profileA = "https://www.linkedin.com/in/alice"
	profileB = "https://www.linkedin.com/in/bob/"
)

func textPost(id string) models.PostSnapshot {
	return models.PostSnapshot{PostID: id, Text: "We cut p99 latency in half by moving the cache closer to the edge."}
}

func TestStartConfigErrors(t *testing.T) {
	tests := []struct {
		name     string
		settings models.Settings
		wantErr  error
	}{
		{
			name:     "missing gemini key",
			settings: models.Settings{TargetProfiles: []string{profileA}},
			wantErr:  ErrMissingCredential,
		},
		{
			name:     "no targets",
			settings: models.Settings{GeminiAPIKey: "key"},
			wantErr:  ErrNoTargets,
		},
		{
			name:     "blank targets only",
			settings: models.Settings{GeminiAPIKey: "key", TargetProfiles: []string{" ", ""}},
			wantErr:  ErrNoTargets,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.settings)

			err := h.ctrl.Start(context.Background())
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr))
			assert.True(t, IsConfigError(err))

			status := h.ctrl.Status()
			assert.Equal(t, StateIdle, status.State)
			assert.False(t, status.Run.IsRunning)
			assert.Empty(t, h.pages.navigated)
		})
	}
}

func TestStartWhileRunning(t *testing.T) {
	h := newHarness(t, testSettings(profileA))
	h.pages.post(profileA, textPost("urn:li:activity:1"))

	release := make(chan struct{})
	h.gen.onGenerate = func() { <-release }

	require.NoError(t, h.ctrl.Start(context.Background()))
	err := h.ctrl.Start(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	assert.False(t, IsConfigError(err))

	close(release)
	h.ctrl.Wait()
	assert.Equal(t, StateIdle, h.ctrl.Status().State)
}

func TestStopWhenIdle(t *testing.T) {
	h := newHarness(t, testSettings(profileA))
	assert.False(t, h.ctrl.Stop())
	h.ctrl.Wait()
}

func TestSuccessfulRun(t *testing.T) {
	h := newHarness(t, testSettings(profileA))
	h.pages.post(profileA, textPost("urn:li:activity:1"))

	h.runToEnd(t)

	journal := h.journal(t)
	require.Len(t, journal, 3)
	assert.Equal(t, models.ActivityVisit, journal[0].Type)
	assert.Equal(t, models.ActivityReaction, journal[1].Type)
	assert.Equal(t, "Insightful", journal[1].Details["reactionType"])
	assert.Equal(t, models.ActivityComment, journal[2].Type)
	assert.Equal(t, "urn:li:activity:1", journal[2].PostID)
	assert.Equal(t, true, journal[2].Details["reactionAdded"])

	assert.Equal(t, []string{profileA + "/recent-activity/all/"}, h.pages.navigated)
	assert.Equal(t, []models.Reaction{models.ReactionInsightful}, h.pages.reactions)
	assert.Equal(t, []string{"urn:li:activity:1"}, h.pages.comments)

	seen, err := h.store.IsMember(context.Background(), db.KeyCommentedPostIDs, "urn:li:activity:1")
	require.NoError(t, err)
	assert.True(t, seen)
	assert.Equal(t, models.Counters{Commented: 1, Processed: 1}, h.snapshot(t))

	status := h.ctrl.Status()
	assert.Equal(t, StateIdle, status.State)
	assert.Equal(t, msgFinished, status.Message)
	assert.Equal(t, 1, status.Run.CurrentIndex)
	assert.Equal(t, models.RunStats{Commented: 1, Processed: 1, Total: 1}, status.Stats)

	var persisted events.StatusData
	ok, err := h.store.Get(context.Background(), db.KeyAgentStatus, &persisted)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, msgFinished, persisted.Message)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.ctrl.metrics.Targets.WithLabelValues("commented")))
	assert.Equal(t, 0.0, testutil.ToFloat64(h.ctrl.metrics.Running))
}

func TestAlreadyCommentedSkipsWithoutPosting(t *testing.T) {
	h := newHarness(t, testSettings(profileA))
	h.pages.post(profileA, textPost("urn:li:activity:7"))
	require.NoError(t, h.store.AddMember(context.Background(), db.KeyCommentedPostIDs, "urn:li:activity:7"))

	h.runToEnd(t)

	journal := h.journal(t)
	require.Len(t, journal, 2)
	assert.Equal(t, models.ActivityVisit, journal[0].Type)

	var skips []models.Activity
	for _, a := range journal {
		if a.Type == models.ActivitySkip {
			skips = append(skips, a)
		}
	}
	require.Len(t, skips, 1)
	assert.Equal(t, ReasonAlreadyCommented, skips[0].Details["reason"])

	assert.Empty(t, h.pages.comments)
	assert.Empty(t, h.gen.prompts)
	assert.Equal(t, models.Counters{Skipped: 1, Processed: 1}, h.snapshot(t))
}

func TestEligibilitySkips(t *testing.T) {
	tests := []struct {
		name      string
		snap      models.PostSnapshot
		commented bool
		reason    string
	}{
		{"empty post id", models.PostSnapshot{Text: "hello world, long enough"}, false, ReasonInvalidPostID},
		{"invalid sentinel", models.PostSnapshot{PostID: "invalid", Text: "hello"}, false, ReasonInvalidPostID},
		{"error placeholder", models.PostSnapshot{PostID: "error_1712", Text: "hello"}, false, ReasonInvalidPostID},
		{"generated placeholder", models.PostSnapshot{PostID: "post_1712", Text: "hello"}, false, ReasonInvalidPostID},
		{"unexpected error placeholder", models.PostSnapshot{PostID: "unexpected_error_1712"}, false, ReasonInvalidPostID},
		{"document", models.PostSnapshot{PostID: "urn:li:activity:2", Text: "slides", DocumentRef: "https://media/doc.pdf"}, false, ReasonDocumentPost},
		{"commented document", models.PostSnapshot{PostID: "urn:li:activity:2", Text: "slides", DocumentRef: "https://media/doc.pdf"}, true, ReasonAlreadyCommented},
		{"no content", models.PostSnapshot{PostID: "urn:li:activity:3", Text: "  "}, false, ReasonNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, testSettings(profileA))
			h.pages.post(profileA, tt.snap)
			if tt.commented {
				require.NoError(t, h.store.AddMember(context.Background(), db.KeyCommentedPostIDs, tt.snap.PostID))
			}

			h.runToEnd(t)

			journal := h.journal(t)
			require.Len(t, journal, 2)
			assert.Equal(t, models.ActivitySkip, journal[1].Type)
			assert.Equal(t, tt.reason, journal[1].Details["reason"])
			assert.Empty(t, h.pages.comments)
			assert.Equal(t, 1.0, testutil.ToFloat64(h.ctrl.metrics.Skips.WithLabelValues(tt.reason)))
		})
	}
}

func TestDocumentPostThenNextTarget(t *testing.T) {
	h := newHarness(t, testSettings(profileA, profileB))
	h.pages.post(profileA, models.PostSnapshot{
		PostID:      "urn:li:activity:10",
		Text:        "Our annual report",
		DocumentRef: "https://media.licdn.com/report.pdf",
	})
	h.pages.post(profileB, textPost("urn:li:activity:11"))

	h.runToEnd(t)

	journal := h.journal(t)
	require.GreaterOrEqual(t, len(journal), 3)
	assert.Equal(t, models.ActivityVisit, journal[0].Type)
	assert.Equal(t, profileA, journal[0].ProfileURL)
	assert.Equal(t, models.ActivitySkip, journal[1].Type)
	assert.Equal(t, profileA, journal[1].ProfileURL)
	assert.Equal(t, ReasonDocumentPost, journal[1].Details["reason"])
	assert.Equal(t, models.ActivityVisit, journal[2].Type)
	assert.Equal(t, profileB, journal[2].ProfileURL)

	assert.Equal(t, []string{
		profileA + "/recent-activity/all/",
		"https://www.linkedin.com/in/bob/recent-activity/all/",
	}, h.pages.navigated)
	assert.Equal(t, models.Counters{Commented: 1, Skipped: 1, Processed: 2}, h.snapshot(t))
}

func TestShortCommentIsGenerationFailure(t *testing.T) {
	h := newHarness(t, testSettings(profileA))
	h.pages.post(profileA, textPost("urn:li:activity:4"))
	h.gen.response = "Reaction: Like\nComment: Too short"

	h.runToEnd(t)

	journal := h.journal(t)
	require.Len(t, journal, 2)
	assert.Contains(t, journal[1].Details["reason"], "generation failed")
	assert.Empty(t, h.pages.comments)
	assert.Empty(t, h.pages.reactions)
}

func TestGeneratorErrorIsSkip(t *testing.T) {
	h := newHarness(t, testSettings(profileA))
	h.pages.post(profileA, textPost("urn:li:activity:4"))
	h.gen.err = errors.New("quota exhausted")

	h.runToEnd(t)

	journal := h.journal(t)
	require.Len(t, journal, 2)
	assert.Equal(t, "generation failed: quota exhausted", journal[1].Details["reason"])
	assert.Equal(t, 1.0, testutil.ToFloat64(h.ctrl.metrics.GeneratorFailures.WithLabelValues("generate")))
}

func TestStopDuringGeneration(t *testing.T) {
	h := newHarness(t, testSettings(profileA, profileB))
	h.pages.post(profileA, textPost("urn:li:activity:5"))
	h.pages.post(profileB, textPost("urn:li:activity:6"))
	h.gen.onGenerate = func() { h.ctrl.Stop() }

	h.runToEnd(t)

	journal := h.journal(t)
	require.Len(t, journal, 1)
	assert.Equal(t, models.ActivityVisit, journal[0].Type)
	assert.Equal(t, profileA, journal[0].ProfileURL)

	assert.Len(t, h.pages.navigated, 1)
	assert.Empty(t, h.pages.comments)
	assert.Equal(t, models.Counters{}, h.snapshot(t))

	status := h.ctrl.Status()
	assert.Equal(t, StateIdle, status.State)
	assert.Equal(t, msgStopped, status.Message)
	assert.Equal(t, 1, status.Run.CurrentIndex)
}

func TestReactionFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, testSettings(profileA))
	h.pages.post(profileA, textPost("urn:li:activity:8"))
	h.pages.reactOK = false

	h.runToEnd(t)

	journal := h.journal(t)
	require.Len(t, journal, 2)
	assert.Equal(t, models.ActivityComment, journal[1].Type)
	assert.Equal(t, false, journal[1].Details["reactionAdded"])
	assert.Equal(t, []string{"urn:li:activity:8"}, h.pages.comments)
}

func TestAlreadyReactedSkipsReaction(t *testing.T) {
	h := newHarness(t, testSettings(profileA))
	snap := textPost("urn:li:activity:9")
	snap.AlreadyReacted = true
	h.pages.post(profileA, snap)

	h.runToEnd(t)

	assert.Empty(t, h.pages.reactions)
	assert.Equal(t, []string{"urn:li:activity:9"}, h.pages.comments)
}

func TestSubmissionFailureIsSkip(t *testing.T) {
	h := newHarness(t, testSettings(profileA))
	h.pages.post(profileA, textPost("urn:li:activity:12"))
	h.pages.submitErr = "comment box not found"

	h.runToEnd(t)

	journal := h.journal(t)
	assert.Equal(t, "comment submission failed: comment box not found", journal[len(journal)-1].Details["reason"])

	seen, err := h.store.IsMember(context.Background(), db.KeyCommentedPostIDs, "urn:li:activity:12")
	require.NoError(t, err)
	assert.False(t, seen)
	assert.Equal(t, models.Counters{Skipped: 1, Processed: 1}, h.snapshot(t))
}

func TestNavigationTimeoutIsSkip(t *testing.T) {
	h := newHarness(t, testSettings(profileA))
	h.ctrl.cfg.NavigationTimeout = 20 * time.Millisecond
	h.pages.hang = true

	h.runToEnd(t)

	journal := h.journal(t)
	require.Len(t, journal, 2)
	assert.Equal(t, ReasonNavigationTimeout, journal[1].Details["reason"])
}

func TestStageErrorsBecomeSkips(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(p *fakePages)
		reason string
	}{
		{"no tab", func(p *fakePages) { p.tabErr = ErrNoTabAvailable }, ReasonNoTab},
		{"scrape error", func(p *fakePages) { p.scrapeErr = &ScrapeError{Reason: "no post element"} }, "scrape failed: no post element"},
		{"unexpected", func(p *fakePages) { p.scrapeErr = errors.New("target closed") }, "unexpected error: target closed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, testSettings(profileA, profileB))
			tt.setup(h.pages)

			h.runToEnd(t)

			journal := h.journal(t)
			require.Len(t, journal, 4)
			assert.Equal(t, tt.reason, journal[1].Details["reason"])
			assert.Equal(t, profileB, journal[2].ProfileURL)
			assert.Equal(t, models.Counters{Skipped: 2, Processed: 2}, h.snapshot(t))
		})
	}
}

func TestImageAnalysis(t *testing.T) {
	t.Run("description feeds the prompt", func(t *testing.T) {
		h := newHarness(t, testSettings(profileA))
		h.pages.post(profileA, models.PostSnapshot{PostID: "urn:li:activity:20", ImageURLs: []string{"https://media/1.jpg"}})
		h.gen.description = "A bar chart of quarterly revenue"

		h.runToEnd(t)

		require.Len(t, h.gen.prompts, 1)
		assert.Contains(t, h.gen.prompts[0], `Description of image(s) in the post: "A bar chart of quarterly revenue"`)
		assert.Contains(t, h.gen.prompts[0], "image description and text")
		assert.Len(t, h.pages.comments, 1)
	})

	t.Run("failed description degrades", func(t *testing.T) {
		h := newHarness(t, testSettings(profileA))
		h.pages.post(profileA, models.PostSnapshot{
			PostID:    "urn:li:activity:21",
			Text:      "New office!",
			ImageURLs: []string{"https://media/2.jpg"},
		})
		h.gen.describeErr = errors.New("mistral api key not set")

		h.runToEnd(t)

		require.Len(t, h.gen.prompts, 1)
		assert.NotContains(t, h.gen.prompts[0], "Error analyzing")
		assert.Contains(t, h.gen.prompts[0], noAnalysisContext)
		assert.Len(t, h.pages.comments, 1)
		assert.Equal(t, 1.0, testutil.ToFloat64(h.ctrl.metrics.GeneratorFailures.WithLabelValues("describe_images")))
	})
}

func TestPacingBetweenTargets(t *testing.T) {
	h := newHarness(t, testSettings(profileA, profileB))
	h.zeroStageDelays()
	h.pages.post(profileA, textPost("urn:li:activity:30"))
	h.pages.post(profileB, textPost("urn:li:activity:31"))

	ch, cancel := h.broker.Subscribe(1024)
	defer cancel()

	h.runToEnd(t)

	ticks := countdownTicks(ch, "Waiting before next profile")
	require.NotEmpty(t, ticks)
	assert.Equal(t, 0, ticks[len(ticks)-1].Remaining)
	assert.GreaterOrEqual(t, ticks[0].Total, 60)
	assert.LessOrEqual(t, ticks[0].Total, 120)
	assert.Equal(t, "Waiting before next profile (2/2)", ticks[0].Description)
	assert.Len(t, h.pages.comments, 2)

	var waited time.Duration
	for _, d := range h.sleeps() {
		waited += d
	}
	assert.GreaterOrEqual(t, waited, 60*time.Second)
	assert.LessOrEqual(t, waited, 120*time.Second)
}

func TestPacingAfterSkip(t *testing.T) {
	h := newHarness(t, testSettings(profileA, profileB))
	h.zeroStageDelays()
	h.pages.post(profileA, models.PostSnapshot{
		PostID:      "urn:li:activity:32",
		Text:        "Quarterly deck",
		DocumentRef: "https://media.licdn.com/deck.pdf",
	})
	h.pages.post(profileB, textPost("urn:li:activity:33"))

	ch, cancel := h.broker.Subscribe(1024)
	defer cancel()

	h.runToEnd(t)

	waits := h.sleeps()
	require.Len(t, waits, 1)
	assert.GreaterOrEqual(t, waits[0], time.Second)
	assert.LessOrEqual(t, waits[0], 3*time.Second)
	assert.Empty(t, countdownTicks(ch, ""))
	assert.Equal(t, []string{"urn:li:activity:33"}, h.pages.comments)
}

func TestLongStagePauseCountsDown(t *testing.T) {
	h := newHarness(t, testSettings(profileA))
	h.zeroStageDelays()
	h.ctrl.cfg.PrePostDelay = Range{Min: 10 * time.Second, Max: 10 * time.Second}
	h.pages.post(profileA, textPost("urn:li:activity:34"))

	ch, cancel := h.broker.Subscribe(1024)
	defer cancel()

	h.runToEnd(t)

	ticks := countdownTicks(ch, "Waiting before posting")
	require.Len(t, ticks, 11)
	assert.Equal(t, events.CountdownData{Description: "Waiting before posting", Remaining: 10, Total: 10}, ticks[0])
	assert.Equal(t, 0, ticks[10].Remaining)
	assert.Len(t, h.pages.comments, 1)
}

func TestStopDuringPacing(t *testing.T) {
	h := newHarness(t, testSettings(profileA, profileB))
	h.zeroStageDelays()
	h.pages.post(profileA, textPost("urn:li:activity:35"))
	h.pages.post(profileB, textPost("urn:li:activity:36"))

	waiting := make(chan struct{})
	var once sync.Once
	h.ctrl.sleep = func(ctx context.Context, d time.Duration) error {
		if d <= 0 {
			return ctx.Err()
		}
		once.Do(func() { close(waiting) })
		<-ctx.Done()
		return ctx.Err()
	}

	require.NoError(t, h.ctrl.Start(context.Background()))
	select {
	case <-waiting:
	case <-time.After(5 * time.Second):
		t.Fatal("run never reached the wait between profiles")
	}
	require.True(t, h.ctrl.Stop())

	done := make(chan struct{})
	go func() {
		h.ctrl.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stop did not cut the wait short")
	}

	assert.Equal(t, []string{profileA + "/recent-activity/all/"}, h.pages.navigated)
	assert.Equal(t, []string{"urn:li:activity:35"}, h.pages.comments)

	status := h.ctrl.Status()
	assert.Equal(t, StateIdle, status.State)
	assert.Equal(t, msgStopped, status.Message)
	assert.Equal(t, 1, status.Run.CurrentIndex)
}

func TestStatusWhileStarting(t *testing.T) {
	h := newHarness(t, testSettings(profileA))
	h.pages.post(profileA, textPost("urn:li:activity:37"))

	entered := make(chan struct{})
	release := make(chan struct{})
	h.ctrl.generators = func(models.Settings) (ContentGenerator, error) {
		close(entered)
		<-release
		return h.gen, nil
	}

	started := make(chan error, 1)
	go func() { started <- h.ctrl.Start(context.Background()) }()
	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("start never built a generator")
	}

	statuses := make(chan Status, 1)
	go func() { statuses <- h.ctrl.Status() }()
	select {
	case status := <-statuses:
		assert.Equal(t, StateStarting, status.State)
	case <-time.After(time.Second):
		t.Fatal("status blocked while the run was starting")
	}
	assert.ErrorIs(t, h.ctrl.Start(context.Background()), ErrAlreadyRunning)
	assert.False(t, h.ctrl.Stop())

	close(release)
	require.NoError(t, <-started)
	h.ctrl.Wait()

	assert.Equal(t, StateIdle, h.ctrl.Status().State)
	assert.Len(t, h.pages.comments, 1)
}
