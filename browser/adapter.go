// Package browser drives the target site in a real Chrome session through the
// DevTools protocol.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/sirupsen/logrus"

	"github.com/brettboylen/linkedin-agent/models"
	"github.com/brettboylen/linkedin-agent/pipeline"
)

// Config controls how the adapter reaches a browser
type Config struct {
	// DebuggerURL attaches to a running browser; empty launches one
	DebuggerURL string
	Bin         string
	Headless    bool
}

// Adapter implements pipeline.PageAdapter with go-rod
type Adapter struct {
	cfg Config
	log *logrus.Logger

	mutex   sync.Mutex
	browser *rod.Browser
}

var _ pipeline.PageAdapter = (*Adapter)(nil)

// NewAdapter creates an adapter; the browser is connected on first use
func NewAdapter(cfg Config, log *logrus.Logger) *Adapter {
	return &Adapter{cfg: cfg, log: log}
}

func (a *Adapter) connect() (*rod.Browser, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.browser != nil {
		return a.browser, nil
	}

	controlURL := a.cfg.DebuggerURL
	if controlURL == "" {
		l := launcher.New().Headless(a.cfg.Headless)
		if a.cfg.Bin != "" {
			l = l.Bin(a.cfg.Bin)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("failed to launch browser: %w", err)
		}
		controlURL = u
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	a.log.WithField("control_url", controlURL).Info("Connected to browser")
	a.browser = b
	return b, nil
}

// Close disconnects from the browser
func (a *Adapter) Close() error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.browser == nil {
		return nil
	}
	err := a.browser.Close()
	a.browser = nil
	return err
}

// LocateOrOpenTab returns the first tab already on the site or opens the feed
func (a *Adapter) LocateOrOpenTab(ctx context.Context, siteHint string) (pipeline.Tab, error) {
	b, err := a.connect()
	if err != nil {
		return pipeline.Tab{}, fmt.Errorf("%w: %v", pipeline.ErrNoTabAvailable, err)
	}

	host := siteHost(siteHint)
	pages, err := b.Context(ctx).Pages()
	if err != nil {
		return pipeline.Tab{}, fmt.Errorf("%w: %v", pipeline.ErrNoTabAvailable, err)
	}
	for _, page := range pages {
		info, err := page.Info()
		if err != nil {
			continue
		}
		if onSite(info.URL, host) {
			return pipeline.Tab{ID: string(page.TargetID)}, nil
		}
	}

	page, err := b.Context(ctx).Page(proto.TargetCreateTarget{URL: feedURL(siteHint)})
	if err != nil {
		return pipeline.Tab{}, fmt.Errorf("%w: %v", pipeline.ErrNoTabAvailable, err)
	}

	a.log.WithField("tab", page.TargetID).Info("Opened new tab")
	return pipeline.Tab{ID: string(page.TargetID)}, nil
}

// Navigate loads target and waits for the load event
func (a *Adapter) Navigate(ctx context.Context, tab pipeline.Tab, target string) error {
	page, err := a.page(ctx, tab)
	if err != nil {
		return err
	}

	if err := page.Navigate(target); err != nil {
		return navigationError(ctx, err)
	}
	if err := page.WaitLoad(); err != nil {
		return navigationError(ctx, err)
	}
	return nil
}

// ScrapeLatestPost reads the most prominent post on the current page
func (a *Adapter) ScrapeLatestPost(ctx context.Context, tab pipeline.Tab) (models.PostSnapshot, error) {
	raw, err := a.eval(ctx, tab, scrapeScript)
	if err != nil {
		return models.PostSnapshot{}, &pipeline.ScrapeError{Reason: err.Error()}
	}
	return decodeSnapshot(raw)
}

// ApplyReaction clicks reaction on postID; failures are logged and reported as false
func (a *Adapter) ApplyReaction(ctx context.Context, tab pipeline.Tab, postID string, reaction models.Reaction) bool {
	raw, err := a.eval(ctx, tab, reactScript, postID, string(reaction))
	if err != nil {
		a.log.WithError(err).WithField("post_id", postID).Warn("Reaction script failed")
		return false
	}

	result := decodeResult(raw)
	if !result.Success {
		a.log.WithFields(logrus.Fields{
			"post_id":  postID,
			"reaction": reaction,
			"error":    result.Error,
		}).Warn("Reaction not applied")
	}
	return result.Success
}

// SubmitComment types text into postID's comment box and submits it
func (a *Adapter) SubmitComment(ctx context.Context, tab pipeline.Tab, postID, text string) models.CommentResult {
	raw, err := a.eval(ctx, tab, commentScript, postID, text)
	if err != nil {
		return models.CommentResult{Success: false, Error: err.Error()}
	}
	return decodeResult(raw)
}

func (a *Adapter) page(ctx context.Context, tab pipeline.Tab) (*rod.Page, error) {
	b, err := a.connect()
	if err != nil {
		return nil, err
	}

	page, err := b.PageFromTarget(proto.TargetTargetID(tab.ID))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pipeline.ErrNoTabAvailable, err)
	}
	return page.Context(ctx), nil
}

func (a *Adapter) eval(ctx context.Context, tab pipeline.Tab, script string, args ...any) ([]byte, error) {
	page, err := a.page(ctx, tab)
	if err != nil {
		return nil, err
	}

	res, err := page.Evaluate(&rod.EvalOptions{
		JS:           script,
		JSArgs:       args,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return nil, fmt.Errorf("script failed: %w", err)
	}
	if res == nil {
		return nil, errors.New("script returned nothing")
	}
	return res.Value.MarshalJSON()
}

type scrapeResult struct {
	models.PostSnapshot
	Error string `json:"error"`
}

// decodeSnapshot turns the scrape script's output into a snapshot; a reported
// error becomes a ScrapeError
func decodeSnapshot(raw []byte) (models.PostSnapshot, error) {
	var result scrapeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return models.PostSnapshot{}, &pipeline.ScrapeError{Reason: fmt.Sprintf("unreadable scrape result: %v", err)}
	}
	if result.Error != "" {
		return models.PostSnapshot{}, &pipeline.ScrapeError{Reason: result.Error}
	}
	if result.ImageURLs == nil {
		result.ImageURLs = []string{}
	}
	return result.PostSnapshot, nil
}

func decodeResult(raw []byte) models.CommentResult {
	var result models.CommentResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return models.CommentResult{Success: false, Error: fmt.Sprintf("unreadable script result: %v", err)}
	}
	if !result.Success && result.Error == "" {
		result.Error = "unknown error"
	}
	return result
}

func navigationError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("navigation failed: %w", err)
}

func siteHost(site string) string {
	u, err := url.Parse(site)
	if err != nil || u.Host == "" {
		return strings.TrimPrefix(strings.TrimSuffix(site, "/"), "www.")
	}
	return strings.TrimPrefix(u.Host, "www.")
}

// onSite reports whether pageURL is on host or one of its subdomains
func onSite(pageURL, host string) bool {
	if host == "" {
		return false
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		return false
	}
	h := u.Hostname()
	return h == host || strings.HasSuffix(h, "."+host)
}

func feedURL(site string) string {
	if !strings.Contains(site, "://") {
		site = "https://" + site
	}
	return strings.TrimSuffix(site, "/") + "/feed/"
}
