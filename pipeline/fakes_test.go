package pipeline

import (
	"context"
	"io"
	"math/rand"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/brettboylen/linkedin-agent/db"
	"github.com/brettboylen/linkedin-agent/events"
	"github.com/brettboylen/linkedin-agent/models"
	"github.com/brettboylen/linkedin-agent/stats"
)

type fakePages struct {
	mu sync.Mutex

	snapshots map[string]models.PostSnapshot
	tabErr    error
	hang      bool
	scrapeErr error
	reactOK   bool
	submitErr string

	current   string
	navigated []string
	reactions []models.Reaction
	comments  []string
}

func newFakePages() *fakePages {
	return &fakePages{snapshots: map[string]models.PostSnapshot{}, reactOK: true}
}

// post registers the snapshot returned for a profile
func (p *fakePages) post(profile string, snap models.PostSnapshot) {
	p.snapshots[activityURL(profile)] = snap
}

func (p *fakePages) LocateOrOpenTab(ctx context.Context, siteHint string) (Tab, error) {
	if p.tabErr != nil {
		return Tab{}, p.tabErr
	}
	return Tab{ID: "tab-1"}, nil
}

func (p *fakePages) Navigate(ctx context.Context, tab Tab, url string) error {
	p.mu.Lock()
	p.current = url
	p.navigated = append(p.navigated, url)
	hang := p.hang
	p.mu.Unlock()

	if hang {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (p *fakePages) ScrapeLatestPost(ctx context.Context, tab Tab) (models.PostSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.scrapeErr != nil {
		return models.PostSnapshot{}, p.scrapeErr
	}
	return p.snapshots[p.current], nil
}

func (p *fakePages) ApplyReaction(ctx context.Context, tab Tab, postID string, reaction models.Reaction) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reactions = append(p.reactions, reaction)
	return p.reactOK
}

func (p *fakePages) SubmitComment(ctx context.Context, tab Tab, postID, text string) models.CommentResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.comments = append(p.comments, postID)
	if p.submitErr != "" {
		return models.CommentResult{Success: false, Error: p.submitErr}
	}
	return models.CommentResult{Success: true}
}

type fakeGenerator struct {
	mu sync.Mutex

	response    string
	err         error
	description string
	describeErr error
	onGenerate  func()

	prompts []string
}

func (g *fakeGenerator) DescribeImages(ctx context.Context, urls []string, prompt string) (string, error) {
	return g.description, g.describeErr
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	hook := g.onGenerate
	g.mu.Unlock()

	if hook != nil {
		hook()
	}
	return g.response, g.err
}

type harness struct {
	ctrl       *Controller
	store      db.Store
	pages      *fakePages
	gen        *fakeGenerator
	activities *stats.ActivityLog
	counters   *stats.Counters
	broker     *events.Broker

	mu    sync.Mutex
	slept []time.Duration
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testSettings(targets ...string) models.Settings {
	return models.Settings{
		GeminiAPIKey:    "gemini-key",
		TargetProfiles:  targets,
		BusinessContext: "I build distributed systems.",
	}
}

func newHarness(t *testing.T, settings models.Settings) *harness {
	t.Helper()
	ctx := context.Background()
	log := quietLogger()

	store, err := db.NewDatabase(filepath.Join(t.TempDir(), "agent.db"), log)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, SaveSettings(ctx, store, settings))

	h := &harness{
		store:  store,
		pages:  newFakePages(),
		gen:    &fakeGenerator{response: "Reaction: Insightful\nComment: Great insight on distributed caches!"},
		broker: events.NewBroker(log),
	}
	h.activities = stats.NewActivityLog(store, h.broker, log)
	h.counters = stats.NewCounters(store)

	h.ctrl = NewController(DefaultConfig(), Deps{
		Store: store,
		Pages: h.pages,
		Generators: func(models.Settings) (ContentGenerator, error) {
			return h.gen, nil
		},
		Activities: h.activities,
		OpLog:      stats.NewOpLog(store, h.broker, log),
		Counters:   h.counters,
		Events:     h.broker,
		Metrics:    NewMetrics(prometheus.NewRegistry()),
		Log:        log,
	})
	h.ctrl.rand = rand.New(rand.NewSource(1))
	h.ctrl.sleep = func(ctx context.Context, d time.Duration) error {
		h.mu.Lock()
		h.slept = append(h.slept, d)
		h.mu.Unlock()
		return ctx.Err()
	}
	return h
}

// runToEnd starts a run and waits for it to finish
func (h *harness) runToEnd(t *testing.T) {
	t.Helper()
	require.NoError(t, h.ctrl.Start(context.Background()))
	h.ctrl.Wait()
}

// journal returns the activity journal oldest first
func (h *harness) journal(t *testing.T) []models.Activity {
	t.Helper()
	recent, err := h.activities.Recent(context.Background(), 0)
	require.NoError(t, err)

	out := make([]models.Activity, len(recent))
	for i, a := range recent {
		out[len(recent)-1-i] = a
	}
	return out
}

func (h *harness) snapshot(t *testing.T) models.Counters {
	t.Helper()
	counters, err := h.counters.Snapshot(context.Background())
	require.NoError(t, err)
	return counters
}

// zeroStageDelays removes the intra-target pauses so only the between-target wait sleeps
func (h *harness) zeroStageDelays() {
	h.ctrl.cfg.PostLoadDelay = Range{}
	h.ctrl.cfg.PreScrapeDelay = Range{}
	h.ctrl.cfg.PostAnalysisDelay = Range{}
	h.ctrl.cfg.PrePostDelay = Range{}
}

// sleeps returns every non-zero sleep the worker asked for
func (h *harness) sleeps() []time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []time.Duration
	for _, d := range h.slept {
		if d > 0 {
			out = append(out, d)
		}
	}
	return out
}

// countdownTicks drains ch and keeps the countdown ticks whose description starts with prefix
func countdownTicks(ch <-chan events.Event, prefix string) []events.CountdownData {
	var ticks []events.CountdownData
	for len(ch) > 0 {
		ev := <-ch
		if ev.Type != events.TypeCountdownTick {
			continue
		}
		data := ev.Data.(events.CountdownData)
		if strings.HasPrefix(data.Description, prefix) {
			ticks = append(ticks, data)
		}
	}
	return ticks
}
