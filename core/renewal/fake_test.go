package renewal

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"strings"
	"time"

	"tello-renewal/core/balance"
)

// fakeBrowser serves a static Tello dashboard + checkout page. A selector
// with no elements blocks until the wait times out.
type fakeBrowser struct {
	elements    map[string][]*fakeElement
	navigateErr error
	navigated   []string
	actions     []string
	reads       map[string]int
	lookups     map[string]int
	closed      int
}

type fakeElement struct {
	b        *fakeBrowser
	selector string
	text     string
	options  []string
	clickErr error
}

func newTelloPage(renewalDate time.Time) *fakeBrowser {
	b := &fakeBrowser{
		elements: make(map[string][]*fakeElement),
		reads:    make(map[string]int),
		lookups:  make(map[string]int),
	}

	b.add(selectorUsername, "")
	b.add(selectorPassword, "")
	b.add(selectorRenewalDate, renewalDate.Format("1/2/2006"))
	b.add(selectorCurrentBalance, "1.5 GB")
	b.add(selectorCurrentBalance, "Unlimited min")
	b.add(selectorCurrentBalance, "Unlimited texts")
	b.add(selectorPlanData, "10 GB")
	b.add(selectorPlanMinutes, "Unlimited minutes")
	b.add(selectorPlanTexts, "Unlimited texts")
	b.add(selectorRenewButton, "Renew Plan")

	months := b.add(selectorExpiryMonth, "")
	for m := 1; m <= 12; m++ {
		months.options = append(months.options, strconv.Itoa(m))
	}
	years := b.add(selectorExpiryYear, "")
	for y := 2026; y <= 2036; y++ {
		years.options = append(years.options, strconv.Itoa(y))
	}

	b.add(selectorNotificationCheck, "")
	b.add(selectorFinalizeOrderButton, "Finalize Order ($25.00)")
	return b
}

func (b *fakeBrowser) add(selector, text string) *fakeElement {
	el := &fakeElement{b: b, selector: selector, text: text}
	b.elements[selector] = append(b.elements[selector], el)
	return el
}

func (b *fakeBrowser) remove(selector string) {
	delete(b.elements, selector)
}

func (b *fakeBrowser) first(selector string) *fakeElement {
	return b.elements[selector][0]
}

func (b *fakeBrowser) record(action ...string) {
	b.actions = append(b.actions, strings.Join(action, " "))
}

func (b *fakeBrowser) did(action ...string) bool {
	return slices.Contains(b.actions, strings.Join(action, " "))
}

func (b *fakeBrowser) Navigate(_ context.Context, url string) error {
	if b.navigateErr != nil {
		return b.navigateErr
	}
	b.navigated = append(b.navigated, url)
	return nil
}

func (b *fakeBrowser) Element(ctx context.Context, selector string) (Element, error) {
	b.lookups[selector]++
	if els := b.elements[selector]; len(els) > 0 {
		return els[0], nil
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (b *fakeBrowser) Elements(ctx context.Context, selector string) ([]Element, error) {
	b.lookups[selector]++
	els := b.elements[selector]
	if len(els) == 0 {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	out := make([]Element, len(els))
	for i, el := range els {
		out[i] = el
	}
	return out, nil
}

func (b *fakeBrowser) Close() error {
	b.closed++
	return nil
}

func (e *fakeElement) Input(_ context.Context, text string) error {
	e.b.record("input", e.selector, text)
	return nil
}

func (e *fakeElement) PressEnter(_ context.Context) error {
	e.b.record("enter", e.selector)
	return nil
}

func (e *fakeElement) Click(_ context.Context) error {
	if e.clickErr != nil {
		return e.clickErr
	}
	e.b.record("click", e.selector)
	return nil
}

func (e *fakeElement) Text(_ context.Context) (string, error) {
	e.b.reads[e.selector]++
	return e.text, nil
}

func (e *fakeElement) SelectValue(_ context.Context, value string) error {
	if !slices.Contains(e.options, value) {
		return errors.New("no option with value " + value)
	}
	e.b.record("select", e.selector, value)
	return nil
}

type notice struct {
	recipient string
	balance   balance.Account
}

type fakeNotifier struct {
	successes  []notice
	failures   []string
	successErr error
	failureErr error
}

func (n *fakeNotifier) SendSuccess(_ context.Context, recipient string, newBalance balance.Account) error {
	if n.successErr != nil {
		return n.successErr
	}
	n.successes = append(n.successes, notice{recipient: recipient, balance: newBalance})
	return nil
}

func (n *fakeNotifier) SendFailure(ctx context.Context, recipient string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n.failureErr != nil {
		return n.failureErr
	}
	n.failures = append(n.failures, recipient)
	return nil
}
