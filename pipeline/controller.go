package pipeline

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/brettboylen/linkedin-agent/db"
	"github.com/brettboylen/linkedin-agent/events"
	"github.com/brettboylen/linkedin-agent/models"
	"github.com/brettboylen/linkedin-agent/stats"
)

// State is the controller lifecycle state
type State string

const (
	StateIdle     State = "idle"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

const (
	msgRunning  = "Running"
	msgStopping = "Stopping agent..."
	msgStopped  = "Agent stopped."
	msgFinished = "Finished all profiles. Idling."
)

// Status is a point-in-time view of the controller
type Status struct {
	State   State           `json:"state"`
	RunID   string          `json:"run_id,omitempty"`
	Run     models.RunState `json:"run"`
	Stats   models.RunStats `json:"stats"`
	Message string          `json:"message"`
}

// Deps are the controller's collaborators
type Deps struct {
	Store      db.Store
	Pages      PageAdapter
	Generators GeneratorFactory
	Activities *stats.ActivityLog
	OpLog      *stats.OpLog
	Counters   *stats.Counters
	Events     events.Publisher
	Metrics    *Metrics
	Log        *logrus.Logger
}

// run is everything fixed for the lifetime of one run
type run struct {
	id        string
	settings  models.Settings
	generator ContentGenerator
	targets   []string
}

// Controller owns the run state and the single worker that processes targets
type Controller struct {
	cfg        Config
	store      db.Store
	pages      PageAdapter
	generators GeneratorFactory
	activities *stats.ActivityLog
	oplog      *stats.OpLog
	counters   *stats.Counters
	events     events.Publisher
	metrics    *Metrics
	log        *logrus.Logger

	// worker-only
	sleep SleepFunc
	rand  *rand.Rand

	mutex   sync.RWMutex
	state   State
	run     models.RunState
	runID   string
	message string
	stats   models.RunStats
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewController creates an idle controller
func NewController(cfg Config, deps Deps) *Controller {
	if deps.Events == nil {
		deps.Events = events.Discard
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics(prometheus.NewRegistry())
	}

	return &Controller{
		cfg:        cfg,
		store:      deps.Store,
		pages:      deps.Pages,
		generators: deps.Generators,
		activities: deps.Activities,
		oplog:      deps.OpLog,
		counters:   deps.Counters,
		events:     deps.Events,
		metrics:    deps.Metrics,
		log:        deps.Log,
		sleep:      sleepContext,
		rand:       rand.New(rand.NewSource(time.Now().UnixNano())),
		state:      StateIdle,
		message:    "Idle",
	}
}

// Start loads the settings and begins a run in the background. Configuration
// problems are returned and leave the controller idle.
func (c *Controller) Start(ctx context.Context) error {
	c.mutex.Lock()
	if c.state != StateIdle {
		c.mutex.Unlock()
		return ErrAlreadyRunning
	}
	c.state = StateStarting
	c.mutex.Unlock()

	r, err := c.prepare(ctx)
	if err != nil {
		c.mutex.Lock()
		c.state = StateIdle
		c.mutex.Unlock()

		c.log.WithError(err).Warn("Failed to start run")
		c.setStatus(ctx, fmt.Sprintf("Error: %v", err))
		return err
	}

	base := context.WithoutCancel(ctx)
	runCtx, cancel := context.WithCancel(base)
	done := make(chan struct{})

	c.mutex.Lock()
	c.state = StateRunning
	c.run = models.RunState{IsRunning: true, CurrentIndex: 0, Targets: r.targets}
	c.runID = r.id
	c.cancel = cancel
	c.done = done
	c.mutex.Unlock()

	c.metrics.Running.Set(1)
	c.log.WithFields(logrus.Fields{
		"run_id":  r.id,
		"targets": len(r.targets),
	}).Info("Starting run")
	c.oplog.Addf(ctx, models.LogInfo, "Starting run for %d profiles", len(r.targets))
	c.setStatus(ctx, msgRunning)

	go c.work(base, runCtx, r, done)
	return nil
}

func (c *Controller) prepare(ctx context.Context) (*run, error) {
	settings, err := LoadSettings(ctx, c.store, c.cfg.Defaults)
	if err != nil {
		return nil, err
	}
	if err := validateSettings(settings); err != nil {
		return nil, err
	}

	generator, err := c.generators(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create content generator: %w", err)
	}

	return &run{
		id:        uuid.NewString(),
		settings:  settings,
		generator: generator,
		targets:   NormalizeTargets(settings.TargetProfiles),
	}, nil
}

// Stop asks the running worker to stop at its next checkpoint and cuts short
// any pending delay. It reports whether a run was in progress.
func (c *Controller) Stop() bool {
	c.mutex.Lock()
	if c.state != StateRunning {
		c.mutex.Unlock()
		return false
	}
	c.state = StateStopping
	c.run.IsRunning = false
	cancel := c.cancel
	c.mutex.Unlock()

	c.log.Info("Stop requested")
	c.setStatus(context.Background(), msgStopping)
	// the worker's final status must land after this one
	cancel()
	return true
}

// Wait blocks until the current run, if any, has ended
func (c *Controller) Wait() {
	c.mutex.RLock()
	done := c.done
	c.mutex.RUnlock()

	if done != nil {
		<-done
	}
}

// Status returns a snapshot of the controller
func (c *Controller) Status() Status {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	snapshot := c.run
	snapshot.Targets = append([]string(nil), c.run.Targets...)
	return Status{
		State:   c.state,
		RunID:   c.runID,
		Run:     snapshot,
		Stats:   c.stats,
		Message: c.message,
	}
}

func (c *Controller) isRunning() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.state == StateRunning && c.run.IsRunning
}

// work runs the loop and always returns the controller to idle
func (c *Controller) work(ctx, runCtx context.Context, r *run, done chan struct{}) {
	defer close(done)

	message := c.loop(ctx, runCtx, r)

	c.mutex.Lock()
	c.state = StateIdle
	c.run.IsRunning = false
	c.cancel()
	c.mutex.Unlock()

	c.metrics.Running.Set(0)
	c.setStatus(ctx, message)
	c.log.WithField("run_id", r.id).Info(message)
}

// loop processes targets in order until the list is exhausted or the run is stopped
func (c *Controller) loop(ctx, runCtx context.Context, r *run) string {
	for {
		index := c.currentIndex()
		if index >= len(r.targets) {
			return msgFinished
		}
		profile := r.targets[index]

		result := c.processTarget(ctx, runCtx, r, profile)
		c.metrics.Targets.WithLabelValues(string(result)).Inc()

		next, running := c.advance()
		if !running {
			return msgStopped
		}
		if next >= len(r.targets) {
			return msgFinished
		}

		if err := c.pace(ctx, runCtx, r, profile, result, next); err != nil || !c.isRunning() {
			return msgStopped
		}
	}
}

func (c *Controller) currentIndex() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.run.CurrentIndex
}

// advance moves the queue forward and reports the new index and whether the run is still live
func (c *Controller) advance() (int, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.run.CurrentIndex < len(c.run.Targets) {
		c.run.CurrentIndex++
	}
	return c.run.CurrentIndex, c.state == StateRunning && c.run.IsRunning
}

// pace waits before the next target: briefly after a skip, at length otherwise
func (c *Controller) pace(ctx, runCtx context.Context, r *run, profile string, result outcome, next int) error {
	position := fmt.Sprintf("(%d/%d)", next+1, len(r.targets))
	short := shortName(profile)

	if result == outcomeSkipped {
		delay := c.randomDelay(c.cfg.AfterSkipDelay)
		c.oplog.Addf(ctx, models.LogInfo, "Skipped %s. Moving to next profile quickly.", short)
		c.setStatus(ctx, fmt.Sprintf("Skipped %s. Next... %s", short, position))
		return c.wait(runCtx, delay, fmt.Sprintf("Moving to next profile %s", position))
	}

	delay := c.randomDelay(c.cfg.BetweenTargetsDelay)
	seconds := int(math.Round(delay.Seconds()))
	c.oplog.Addf(ctx, models.LogInfo, "Waiting %ds before next profile %s", seconds, position)
	c.setStatus(ctx, fmt.Sprintf("Waiting %ds... %s", seconds, position))
	return c.wait(runCtx, delay, fmt.Sprintf("Waiting before next profile %s", position))
}

// setStatus persists and broadcasts a status message with fresh counters
func (c *Controller) setStatus(ctx context.Context, message string) {
	counters, err := c.counters.Snapshot(ctx)
	if err != nil {
		c.log.WithError(err).Warn("Failed to read counters for status")
	}

	c.mutex.Lock()
	c.message = message
	c.stats = models.RunStats{
		Commented: counters.Commented,
		Skipped:   counters.Skipped,
		Processed: counters.Processed,
		Total:     len(c.run.Targets),
	}
	data := events.StatusData{
		RunID:   c.runID,
		State:   string(c.state),
		Message: message,
		Stats:   c.stats,
	}
	c.mutex.Unlock()

	if err := c.store.Set(ctx, db.KeyAgentStatus, data); err != nil {
		c.log.WithError(err).Warn("Failed to save agent status")
	}
	c.events.Publish(events.NewStatusEvent(data.RunID, data.State, data.Message, data.Stats))
	c.log.WithField("run_id", data.RunID).Debugf("Status: %s", message)
}
