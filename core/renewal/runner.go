package renewal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tello-renewal/core/balance"
	apperrors "tello-renewal/internal/errors"
	"tello-renewal/internal/metrics"
)

// SettleDelay is how long a run waits after the submit step so the site can
// finish processing before the browser goes away.
const SettleDelay = 30 * time.Second

// failureNoticeTimeout bounds the failure email, which may be sent after
// the run context is already cancelled.
const failureNoticeTimeout = 30 * time.Second

// Outcome is how a run ended
type Outcome string

const (
	OutcomeRenewed Outcome = "renewed"
	OutcomeDryRun  Outcome = "dry_run"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// Result describes one run
type Result struct {
	RunID            string           `json:"run_id"`
	Outcome          Outcome          `json:"outcome"`
	DryRun           bool             `json:"dry_run"`
	RenewalDate      time.Time        `json:"renewal_date"`
	DaysUntilRenewal int              `json:"days_until_renewal"`
	CurrentBalance   *balance.Account `json:"current_balance,omitempty"`
	PlanBalance      *balance.Account `json:"plan_balance,omitempty"`
	NewBalance       *balance.Account `json:"new_balance,omitempty"`
	StartedAt        time.Time        `json:"started_at"`
	FinishedAt       time.Time        `json:"finished_at"`
	Error            string           `json:"error,omitempty"`
	ErrorType        apperrors.Type   `json:"error_type,omitempty"`
}

// Runner performs complete renewal runs for one account.
type Runner struct {
	account        Account
	browser        Browser
	notifier       Notifier
	dryRun         bool
	elementTimeout time.Duration
	settle         time.Duration
	log            *zap.Logger
	now            func() time.Time
}

// Option configures a Runner
type Option func(*Runner)

// WithDryRun stops short of placing the order
func WithDryRun(dryRun bool) Option {
	return func(r *Runner) { r.dryRun = dryRun }
}

// WithElementTimeout bounds every element wait of the session
func WithElementTimeout(d time.Duration) Option {
	return func(r *Runner) { r.elementTimeout = d }
}

// WithLogger sets the run logger
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

// WithClock replaces time.Now when deciding whether renewal is due
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// NewRunner creates a runner. The notifier must already be authenticated.
func NewRunner(account Account, browser Browser, notifier Notifier, opts ...Option) *Runner {
	r := &Runner{
		account:        account,
		browser:        browser,
		notifier:       notifier,
		elementTimeout: DefaultElementTimeout,
		settle:         SettleDelay,
		log:            zap.NewNop(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run performs one renewal. Any error after the session is created sends
// a failure email to the account address before the browser is released.
// The browser is released on every path.
func (r *Runner) Run(ctx context.Context) (result Result, err error) {
	result = Result{
		RunID:     uuid.NewString(),
		DryRun:    r.dryRun,
		StartedAt: r.now(),
	}
	log := r.log.With(zap.String("run_id", result.RunID))
	if r.dryRun {
		log.Info("Executing dry run")
	}

	sess := NewSession(r.browser,
		WithSessionElementTimeout(r.elementTimeout),
		WithSessionLogger(log.Named("session")),
	)
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			log.Warn("Failed to release browser", zap.Error(cerr))
		}
		result.FinishedAt = r.now()
		if err != nil {
			result.Error = err.Error()
			result.ErrorType = apperrors.TypeOf(err)
			if result.Outcome == "" {
				result.Outcome = OutcomeFailed
			}
		}
		metrics.ObserveRun(string(result.Outcome), result.StartedAt, result.FinishedAt)
	}()

	err = r.execute(ctx, log, sess, &result)
	if err != nil {
		log.Error("Renewal failed",
			zap.Error(err),
			zap.String("error_type", string(apperrors.TypeOf(err))),
			zap.Stringer("state", sess.State()))
		// the order is already placed; never ask for a manual renewal
		if result.Outcome != OutcomeRenewed {
			r.notifyFailure(ctx, log)
		}
	}
	return result, err
}

func (r *Runner) execute(ctx context.Context, log *zap.Logger, sess *Session, res *Result) error {
	if err := r.step("open_login_page", func() error { return sess.OpenLoginPage(ctx) }); err != nil {
		return err
	}
	if err := r.step("login", func() error { return sess.Login(ctx, r.account.Email, r.account.Password) }); err != nil {
		return err
	}

	var renewalDate time.Time
	if err := r.step("read_renewal_date", func() (err error) {
		renewalDate, err = sess.RenewalDate(ctx)
		return err
	}); err != nil {
		return err
	}
	days := daysBetween(r.now(), renewalDate)
	res.RenewalDate = renewalDate
	res.DaysUntilRenewal = days
	metrics.DaysUntilRenewal.Set(float64(days))

	if days > 1 {
		log.Warn(fmt.Sprintf("Renewal date is %d days away on %s", days, renewalDate.Format("01/02/2006")),
			zap.Int("days_until_renewal", days))
		if !r.dryRun {
			log.Info("Exiting...")
			res.Outcome = OutcomeSkipped
			return nil
		}
		log.Info("Proceeding with dry run anyway...")
	}

	var current, plan, next balance.Account
	if err := r.step("read_balance", func() (err error) {
		if current, err = sess.CurrentBalance(ctx); err != nil {
			return err
		}
		if plan, err = sess.PlanBalance(ctx); err != nil {
			return err
		}
		next, err = sess.NewBalance(ctx)
		return err
	}); err != nil {
		return err
	}
	res.CurrentBalance, res.PlanBalance, res.NewBalance = &current, &plan, &next
	log.Info("New balance: "+next.String(),
		zap.Stringer("current_balance", current),
		zap.Stringer("plan_balance", plan))

	if err := r.step("open_renewal_page", func() error { return sess.OpenRenewalPage(ctx) }); err != nil {
		return err
	}
	if err := r.step("fill_card_expiration", func() error {
		return sess.AutofillCardExpiration(ctx, r.account.CardExpiration)
	}); err != nil {
		return err
	}
	if err := r.step("check_notification_box", func() error { return sess.CheckNotificationBox(ctx) }); err != nil {
		return err
	}
	if err := r.step("submit_order", func() error { return sess.SubmitOrder(ctx, r.dryRun) }); err != nil {
		return err
	}

	if r.dryRun {
		res.Outcome = OutcomeDryRun
	} else {
		res.Outcome = OutcomeRenewed
		log.Info("Order submitted, sending confirmation", zap.String("recipient", r.account.Email))
		if err := r.notifier.SendSuccess(ctx, r.account.Email, next); err != nil {
			return fmt.Errorf("send success notification: %w", err)
		}
	}

	r.wait(ctx, log)
	return nil
}

// step runs fn and records its duration under name.
func (r *Runner) step(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.ObserveStep(name, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// wait holds the session open for the settle delay or until ctx is done.
func (r *Runner) wait(ctx context.Context, log *zap.Logger) {
	if r.settle <= 0 {
		return
	}
	log.Info("Waiting for the order to settle", zap.Duration("delay", r.settle))
	t := time.NewTimer(r.settle)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
		log.Warn("Settle delay interrupted", zap.Error(ctx.Err()))
	}
}

func (r *Runner) notifyFailure(ctx context.Context, log *zap.Logger) {
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureNoticeTimeout)
	defer cancel()

	if err := r.notifier.SendFailure(nctx, r.account.Email); err != nil {
		log.Error("Failed to send failure notification", zap.Error(err))
		return
	}
	log.Info("Sent failure notification", zap.String("recipient", r.account.Email))
}

// daysBetween counts calendar days from now's date to date.
func daysBetween(now, date time.Time) int {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	return int(day.Sub(today).Hours() / 24)
}
