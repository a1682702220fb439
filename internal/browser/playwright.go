package browser

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
)

const (
	headlessEnv = "LOANFLOW_HEADLESS"

	viewportWidth  = 1920
	viewportHeight = 1080
)

// Launcher owns the playwright lifecycle and implements Opener.
type Launcher struct {
	pw       *playwright.Playwright
	browser  playwright.Browser
	headless bool
}

// HeadlessDefault reads LOANFLOW_HEADLESS; unset means headless.
func HeadlessDefault() bool {
	return parseBoolEnv(headlessEnv, true)
}

func NewLauncher(headless bool) (*Launcher, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}
	b, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(headless),
		Args: []string{
			"--disable-dev-shm-usage",
			"--no-sandbox",
		},
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch chromium: %w", err)
	}
	return &Launcher{pw: pw, browser: b, headless: headless}, nil
}

// Open creates an isolated context+page pair. The caller must Close it.
func (l *Launcher) Open(ctx context.Context) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bctx, err := l.browser.NewContext(playwright.BrowserNewContextOptions{
		IgnoreHttpsErrors: playwright.Bool(true),
		Viewport: &playwright.Size{
			Width:  viewportWidth,
			Height: viewportHeight,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("new context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, fmt.Errorf("new page: %w", err)
	}
	return &pwPage{context: bctx, page: page}, nil
}

func (l *Launcher) Close() error {
	if l.browser != nil {
		_ = l.browser.Close()
	}
	if l.pw != nil {
		return l.pw.Stop()
	}
	return nil
}

type pwPage struct {
	context playwright.BrowserContext
	page    playwright.Page
}

func (p *pwPage) Navigate(ctx context.Context, url string, strategy WaitStrategy, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	state := playwright.WaitUntilStateNetworkidle
	if strategy == WaitDOMContentLoaded {
		state = playwright.WaitUntilStateDomcontentloaded
	}
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: state,
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
	})
	return wrap(err)
}

func (p *pwPage) URL() string { return p.page.URL() }

func (p *pwPage) Content() (string, error) {
	content, err := p.page.Content()
	return content, wrap(err)
}

func (p *pwPage) Probe(ctx context.Context, sel string, timeout time.Duration) (Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	handle, err := p.page.WaitForSelector(sel, playwright.PageWaitForSelectorOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return nil, wrap(err)
	}
	if handle == nil {
		return nil, fmt.Errorf("no element for %q", sel)
	}
	return &pwElement{handle: handle}, nil
}

func (p *pwPage) AwaitNetworkIdle(timeout time.Duration) error {
	return wrap(p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	}))
}

func (p *pwPage) Close() error {
	if p.page != nil {
		_ = p.page.Close()
	}
	if p.context != nil {
		return p.context.Close()
	}
	return nil
}

type pwElement struct {
	handle playwright.ElementHandle
}

func (e *pwElement) Visible() (bool, error) {
	v, err := e.handle.IsVisible()
	return v, wrap(err)
}

func (e *pwElement) Enabled() (bool, error) {
	v, err := e.handle.IsEnabled()
	return v, wrap(err)
}

func (e *pwElement) BoundingBox() (*Box, error) {
	rect, err := e.handle.BoundingBox()
	if err != nil {
		return nil, wrap(err)
	}
	if rect == nil {
		return nil, nil
	}
	return &Box{X: rect.X, Y: rect.Y, Width: rect.Width, Height: rect.Height}, nil
}

func (e *pwElement) Attribute(name string) (string, error) {
	val, err := e.handle.GetAttribute(name)
	return val, wrap(err)
}

func (e *pwElement) Click(timeout time.Duration) error {
	return wrap(e.handle.Click(playwright.ElementHandleClickOptions{
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	}))
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("playwright: %w", err)
}

func parseBoolEnv(name string, def bool) bool {
	val := strings.TrimSpace(os.Getenv(name))
	if val == "" {
		return def
	}
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
