package renewal

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"tello-renewal/core/balance"
	apperrors "tello-renewal/internal/errors"
)

// LoginURL is where every session starts
const LoginURL = "https://tello.com/account/login"

// DefaultElementTimeout bounds every element wait
const DefaultElementTimeout = 30 * time.Second

// FinalizeOrderLabel is the expected prefix of the submit button text
const FinalizeOrderLabel = "Finalize Order"

// renewalDateLayout is the M/D/YYYY format of the dashboard renewal date
const renewalDateLayout = "1/2/2006"

// CSS selectors of the Tello account pages.
const (
	selectorUsername            = "input#i_username"
	selectorPassword            = "input#i_current_password"
	selectorRenewalDate         = "span.card_text > span"
	selectorCurrentBalance      = "div.progress_holder div.pull-left.font-size30"
	selectorPlanData            = "div.subtitle > div.subtitle_heading"
	selectorPlanMinutes         = "div.subtitle > div:nth-child(4)"
	selectorPlanTexts           = "div.subtitle > div:nth-child(5)"
	selectorRenewButton         = "button#renew_plan"
	selectorExpiryMonth         = "select#cc_expiry_month"
	selectorExpiryYear          = "select#cc_expiry_year"
	selectorNotificationCheck   = "input[type=checkbox][name=recurring_charge_notification]"
	selectorFinalizeOrderButton = "button#checkout_form_submit_holder"
)

// Session is a single pass through the Tello web flow. It owns the
// browser for its whole lifetime and is not safe for concurrent use.
type Session struct {
	browser Browser
	timeout time.Duration
	log     *zap.Logger
	state   State

	// populated on first access, dropped on Close
	renewalDate    *time.Time
	currentBalance *balance.Account
	planBalance    *balance.Account
	newBalance     *balance.Account
}

// SessionOption configures a Session
type SessionOption func(*Session)

// WithSessionElementTimeout overrides DefaultElementTimeout
func WithSessionElementTimeout(d time.Duration) SessionOption {
	return func(s *Session) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithSessionLogger sets the session logger
func WithSessionLogger(l *zap.Logger) SessionOption {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// NewSession wraps browser in a new, unopened session.
func NewSession(browser Browser, opts ...SessionOption) *Session {
	s := &Session{
		browser: browser,
		timeout: DefaultElementTimeout,
		log:     zap.NewNop(),
		state:   StateUnopened,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current step of the flow
func (s *Session) State() State {
	return s.state
}

// OpenLoginPage navigates to the login page.
func (s *Session) OpenLoginPage(ctx context.Context) error {
	if err := s.expect("open login page", StateUnopened, StateLoggedOut); err != nil {
		return err
	}
	s.log.Info("Opening login page", zap.String("url", LoginURL))
	if err := s.browser.Navigate(ctx, LoginURL); err != nil {
		return s.fail(apperrors.Wrap(apperrors.TypeElementNotFound, "navigate to login page", err))
	}
	s.state = StateLoggedOut
	return nil
}

// Login fills in the credentials and submits the form with Enter. Whether
// the site accepted them is not checked here; a rejected login shows up as
// a missing element on the next read.
func (s *Session) Login(ctx context.Context, email, password string) error {
	if err := s.expect("login", StateLoggedOut); err != nil {
		return err
	}
	s.log.Info("Logging in", zap.String("email", email))

	username, err := s.element(ctx, selectorUsername)
	if err != nil {
		return s.fail(err)
	}
	if err := username.Input(ctx, email); err != nil {
		return s.fail(apperrors.Internal("enter email", err))
	}

	pass, err := s.element(ctx, selectorPassword)
	if err != nil {
		return s.fail(err)
	}
	if err := pass.Input(ctx, password); err != nil {
		return s.fail(apperrors.Internal("enter password", err))
	}

	s.state = StateLoggingIn
	if err := pass.PressEnter(ctx); err != nil {
		return s.fail(apperrors.Internal("submit login form", err))
	}
	s.state = StateLoggedIn
	return nil
}

// RenewalDate reads the next renewal date from the dashboard.
func (s *Session) RenewalDate(ctx context.Context) (time.Time, error) {
	if s.renewalDate != nil {
		return *s.renewalDate, nil
	}
	if err := s.expect("read renewal date", StateLoggedIn); err != nil {
		return time.Time{}, err
	}

	text, err := s.text(ctx, selectorRenewalDate)
	if err != nil {
		return time.Time{}, s.fail(err)
	}
	date, err := time.Parse(renewalDateLayout, strings.TrimSpace(text))
	if err != nil {
		return time.Time{}, s.fail(apperrors.Parsing("renewal date "+strconv.Quote(text), err))
	}

	s.renewalDate = &date
	return date, nil
}

// CurrentBalance reads what is left on the account.
func (s *Session) CurrentBalance(ctx context.Context) (balance.Account, error) {
	if s.currentBalance != nil {
		return *s.currentBalance, nil
	}
	if err := s.expect("read current balance", StateLoggedIn); err != nil {
		return balance.Account{}, err
	}

	wctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	elements, err := s.browser.Elements(wctx, selectorCurrentBalance)
	if err != nil {
		return balance.Account{}, s.fail(apperrors.ElementNotFound(selectorCurrentBalance, err))
	}
	if len(elements) != 3 {
		return balance.Account{}, s.fail(apperrors.Newf(apperrors.TypeUnexpectedPage,
			"expected 3 current balance values, found %d", len(elements)))
	}

	texts := make([]string, len(elements))
	for i, el := range elements {
		if texts[i], err = el.Text(ctx); err != nil {
			return balance.Account{}, s.fail(apperrors.Internal("read current balance", err))
		}
	}

	acct, err := balance.ParseAccount(texts[0], texts[1], texts[2])
	if err != nil {
		return balance.Account{}, s.fail(err)
	}
	s.currentBalance = &acct
	return acct, nil
}

// PlanBalance reads the allotment the plan adds on renewal.
func (s *Session) PlanBalance(ctx context.Context) (balance.Account, error) {
	if s.planBalance != nil {
		return *s.planBalance, nil
	}
	if err := s.expect("read plan balance", StateLoggedIn); err != nil {
		return balance.Account{}, err
	}

	var texts [3]string
	for i, selector := range []string{selectorPlanData, selectorPlanMinutes, selectorPlanTexts} {
		text, err := s.text(ctx, selector)
		if err != nil {
			return balance.Account{}, s.fail(err)
		}
		texts[i] = text
	}

	acct, err := balance.ParseAccount(texts[0], texts[1], texts[2])
	if err != nil {
		return balance.Account{}, s.fail(err)
	}
	s.planBalance = &acct
	return acct, nil
}

// NewBalance is the balance expected after renewal: current plus plan.
func (s *Session) NewBalance(ctx context.Context) (balance.Account, error) {
	if s.newBalance != nil {
		return *s.newBalance, nil
	}
	current, err := s.CurrentBalance(ctx)
	if err != nil {
		return balance.Account{}, err
	}
	plan, err := s.PlanBalance(ctx)
	if err != nil {
		return balance.Account{}, err
	}
	sum, err := current.Add(plan)
	if err != nil {
		return balance.Account{}, s.fail(err)
	}
	s.newBalance = &sum
	return sum, nil
}

// OpenRenewalPage clicks the renew button on the dashboard.
func (s *Session) OpenRenewalPage(ctx context.Context) error {
	if err := s.expect("open renewal page", StateLoggedIn); err != nil {
		return err
	}
	s.log.Info("Opening renewal page")
	if err := s.click(ctx, selectorRenewButton); err != nil {
		return s.fail(err)
	}
	s.state = StateRenewalPageOpen
	return nil
}

// AutofillCardExpiration picks the card expiration month and year.
func (s *Session) AutofillCardExpiration(ctx context.Context, expiration time.Time) error {
	if err := s.expect("fill card expiration", StateRenewalPageOpen); err != nil {
		return err
	}
	s.log.Info("Filling card expiration", zap.String("expiration", expiration.Format("01/2006")))

	if err := s.selectValue(ctx, selectorExpiryMonth, strconv.Itoa(int(expiration.Month()))); err != nil {
		return s.fail(err)
	}
	if err := s.selectValue(ctx, selectorExpiryYear, strconv.Itoa(expiration.Year())); err != nil {
		return s.fail(err)
	}
	s.state = StateCardFilled
	return nil
}

// CheckNotificationBox acknowledges the recurring charge notice.
func (s *Session) CheckNotificationBox(ctx context.Context) error {
	if err := s.expect("check notification box", StateCardFilled); err != nil {
		return err
	}
	if err := s.click(ctx, selectorNotificationCheck); err != nil {
		return s.fail(err)
	}
	s.state = StateNotificationChecked
	return nil
}

// SubmitOrder places the order. In a dry run the button is only checked
// for its label and never clicked.
func (s *Session) SubmitOrder(ctx context.Context, dryRun bool) error {
	if err := s.expect("submit order", StateNotificationChecked); err != nil {
		return err
	}

	button, err := s.element(ctx, selectorFinalizeOrderButton)
	if err != nil {
		return s.fail(err)
	}

	if dryRun {
		label, err := button.Text(ctx)
		if err != nil {
			return s.fail(apperrors.Internal("read submit button", err))
		}
		if !strings.HasPrefix(strings.TrimSpace(label), FinalizeOrderLabel) {
			return s.fail(apperrors.Newf(apperrors.TypeUnexpectedPage,
				"submit button reads %q, expected %q", label, FinalizeOrderLabel))
		}
		s.log.Info("Found finalize order button, skipping click for dry run")
	} else {
		s.log.Info("Submitting order")
		if err := button.Click(ctx); err != nil {
			return s.fail(apperrors.Internal("click submit button", err))
		}
	}

	s.state = StateSubmitted
	return nil
}

// Close releases the browser and drops cached values.
func (s *Session) Close() error {
	s.renewalDate = nil
	s.currentBalance = nil
	s.planBalance = nil
	s.newBalance = nil
	s.state = StateClosed
	return s.browser.Close()
}

func (s *Session) expect(op string, allowed ...State) error {
	for _, st := range allowed {
		if s.state == st {
			return nil
		}
	}
	return s.fail(apperrors.Newf(apperrors.TypeInternal, "cannot %s: session is %s", op, s.state))
}

func (s *Session) fail(err error) error {
	if !s.state.Terminal() {
		s.state = StateFailed
	}
	return err
}

// element waits at most s.timeout for selector.
func (s *Session) element(ctx context.Context, selector string) (Element, error) {
	wctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	s.log.Debug("Waiting for element", zap.String("selector", selector))
	el, err := s.browser.Element(wctx, selector)
	if err != nil {
		return nil, apperrors.ElementNotFound(selector, err)
	}
	return el, nil
}

func (s *Session) text(ctx context.Context, selector string) (string, error) {
	el, err := s.element(ctx, selector)
	if err != nil {
		return "", err
	}
	text, err := el.Text(ctx)
	if err != nil {
		return "", apperrors.Internal("read "+selector, err)
	}
	return text, nil
}

func (s *Session) click(ctx context.Context, selector string) error {
	el, err := s.element(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.Click(ctx); err != nil {
		return apperrors.Internal("click "+selector, err)
	}
	return nil
}

func (s *Session) selectValue(ctx context.Context, selector, value string) error {
	el, err := s.element(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.SelectValue(ctx, value); err != nil {
		return apperrors.ElementNotFound(selector+` option[value="`+value+`"]`, err)
	}
	return nil
}
