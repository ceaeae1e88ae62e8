// Package renewal drives the Tello account pages through one plan renewal.
package renewal

import (
	"context"
	"time"

	"tello-renewal/core/balance"
)

// Browser is one headless browser tab. Implementations create the
// underlying browser lazily on first use.
type Browser interface {
	// Navigate loads url in the tab.
	Navigate(ctx context.Context, url string) error

	// Element waits until selector matches and returns the first match.
	// It keeps polling until ctx is done.
	Element(ctx context.Context, selector string) (Element, error)

	// Elements waits until selector matches at least once and returns
	// every match in document order.
	Elements(ctx context.Context, selector string) ([]Element, error)

	// Close releases the browser. It is safe to call more than once and
	// before the browser was ever started.
	Close() error
}

// Element is a located DOM node.
type Element interface {
	Input(ctx context.Context, text string) error
	PressEnter(ctx context.Context) error
	Click(ctx context.Context) error
	Text(ctx context.Context) (string, error)

	// SelectValue picks the <option> whose value attribute equals value.
	SelectValue(ctx context.Context, value string) error
}

// Notifier delivers the renewal outcome to the account owner.
type Notifier interface {
	SendSuccess(ctx context.Context, recipient string, newBalance balance.Account) error
	SendFailure(ctx context.Context, recipient string) error
}

// Account is the resolved Tello login and payment data for one run.
type Account struct {
	Email          string
	Password       string
	CardExpiration time.Time
}
