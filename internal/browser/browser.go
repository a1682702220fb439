// Package browser wraps playwright behind the small capability surface
// the resolver needs: open a page session, navigate with a chosen wait
// strategy, probe elements, validate them, click.
package browser

import (
	"context"
	"time"
)

// WaitStrategy selects the load event Navigate waits for.
type WaitStrategy int

const (
	// WaitNetworkIdle waits for the network to go quiet. Primary
	// strategy; slow pages may never reach it.
	WaitNetworkIdle WaitStrategy = iota
	// WaitDOMContentLoaded waits only for the DOM. Fallback strategy.
	WaitDOMContentLoaded
)

// Box is an element bounding box in page coordinates.
type Box struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Element is a live DOM element handle.
type Element interface {
	Visible() (bool, error)
	Enabled() (bool, error)
	BoundingBox() (*Box, error)
	// Attribute returns "" without error when the attribute is absent.
	Attribute(name string) (string, error)
	Click(timeout time.Duration) error
}

// Page is one rendered page inside a resolution session.
type Page interface {
	Navigate(ctx context.Context, url string, strategy WaitStrategy, timeout time.Duration) error
	URL() string
	Content() (string, error)
	// Probe waits up to timeout for the selector to match. CSS and
	// XPath expressions are both accepted.
	Probe(ctx context.Context, sel string, timeout time.Duration) (Element, error)
	AwaitNetworkIdle(timeout time.Duration) error
	Close() error
}

// Opener hands out page sessions. Each resolution call owns exactly
// one page and closes it before returning.
type Opener interface {
	Open(ctx context.Context) (Page, error)
}
