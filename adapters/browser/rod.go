// Package browser drives Chrome through the DevTools protocol with go-rod.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"tello-renewal/core/renewal"
)

// Config holds browser configuration.
type Config struct {
	// DebuggerURL attaches to an already running Chrome instead of launching one.
	DebuggerURL string `mapstructure:"debugger_url"`

	// Bin is the Chrome binary; empty lets the launcher find or download one.
	Bin string `mapstructure:"bin"`

	Headless bool `mapstructure:"headless"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{Headless: true}
}

// Rod is a single Chrome tab. Chrome is started on first use.
type Rod struct {
	cfg      Config
	log      *zap.Logger
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
}

var _ renewal.Browser = (*Rod)(nil)

// New creates an unstarted browser.
func New(cfg Config, log *zap.Logger) *Rod {
	if log == nil {
		log = zap.NewNop()
	}
	return &Rod{cfg: cfg, log: log}
}

func (r *Rod) ensureStarted() (*rod.Page, error) {
	if r.page != nil {
		return r.page, nil
	}

	controlURL := r.cfg.DebuggerURL
	if controlURL == "" {
		l := launcher.New().Headless(r.cfg.Headless)
		if r.cfg.Bin != "" {
			l = l.Bin(r.cfg.Bin)
		}
		url, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		r.launcher = l
		controlURL = url
		r.log.Debug("Launched chrome", zap.Bool("headless", r.cfg.Headless))
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		r.killLauncher()
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = browser.Close()
		r.killLauncher()
		return nil, fmt.Errorf("create page: %w", err)
	}

	r.browser = browser
	r.page = page
	return page, nil
}

// Navigate loads url and waits for the load event.
func (r *Rod) Navigate(ctx context.Context, url string) error {
	page, err := r.ensureStarted()
	if err != nil {
		return err
	}
	p := page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return p.WaitLoad()
}

// Element polls for selector until it matches or ctx is done.
func (r *Rod) Element(ctx context.Context, selector string) (renewal.Element, error) {
	page, err := r.ensureStarted()
	if err != nil {
		return nil, err
	}
	el, err := page.Context(ctx).Element(selector)
	if err != nil {
		return nil, err
	}
	return &element{el: el}, nil
}

// Elements polls until selector matches, then returns every match.
func (r *Rod) Elements(ctx context.Context, selector string) ([]renewal.Element, error) {
	page, err := r.ensureStarted()
	if err != nil {
		return nil, err
	}
	p := page.Context(ctx)
	if _, err := p.Element(selector); err != nil {
		return nil, err
	}
	found, err := p.Elements(selector)
	if err != nil {
		return nil, err
	}
	out := make([]renewal.Element, len(found))
	for i, el := range found {
		out[i] = &element{el: el}
	}
	return out, nil
}

// Close shuts Chrome down. It is a no-op if Chrome never started.
func (r *Rod) Close() error {
	var errs []error
	if r.page != nil {
		if err := r.page.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close page: %w", err))
		}
		r.page = nil
	}
	if r.browser != nil {
		if err := r.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close browser: %w", err))
		}
		r.browser = nil
	}
	if r.launcher != nil {
		r.launcher.Cleanup()
		r.launcher = nil
	}
	return errors.Join(errs...)
}

func (r *Rod) killLauncher() {
	if r.launcher != nil {
		r.launcher.Kill()
		r.launcher = nil
	}
}

type element struct {
	el *rod.Element
}

func (e *element) Input(ctx context.Context, text string) error {
	return e.el.Context(ctx).Input(text)
}

func (e *element) PressEnter(ctx context.Context) error {
	return e.el.Context(ctx).Type(input.Enter)
}

func (e *element) Click(ctx context.Context) error {
	return e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
}

func (e *element) Text(ctx context.Context) (string, error) {
	return e.el.Context(ctx).Text()
}

func (e *element) SelectValue(ctx context.Context, value string) error {
	selector := "[value=" + strconv.Quote(value) + "]"
	return e.el.Context(ctx).Select([]string{selector}, true, rod.SelectorTypeCSSSector)
}
