package renewal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "tello-renewal/internal/errors"
)

const testTimeout = 50 * time.Millisecond

var testRenewalDate = time.Date(2026, time.October, 18, 0, 0, 0, 0, time.UTC)

func newTestSession(b *fakeBrowser) *Session {
	return NewSession(b, WithSessionElementTimeout(testTimeout))
}

func loggedIn(t *testing.T, b *fakeBrowser) *Session {
	t.Helper()
	s := newTestSession(b)
	ctx := context.Background()
	require.NoError(t, s.OpenLoginPage(ctx))
	require.NoError(t, s.Login(ctx, "me@example.com", "hunter2"))
	return s
}

func TestSessionWalksEveryState(t *testing.T) {
	b := newTelloPage(testRenewalDate)
	s := newTestSession(b)
	ctx := context.Background()

	assert.Equal(t, StateUnopened, s.State())

	require.NoError(t, s.OpenLoginPage(ctx))
	assert.Equal(t, StateLoggedOut, s.State())
	assert.Equal(t, []string{LoginURL}, b.navigated)

	require.NoError(t, s.Login(ctx, "me@example.com", "hunter2"))
	assert.Equal(t, StateLoggedIn, s.State())

	require.NoError(t, s.OpenRenewalPage(ctx))
	assert.Equal(t, StateRenewalPageOpen, s.State())

	require.NoError(t, s.AutofillCardExpiration(ctx, time.Date(2028, time.May, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, StateCardFilled, s.State())

	require.NoError(t, s.CheckNotificationBox(ctx))
	assert.Equal(t, StateNotificationChecked, s.State())

	require.NoError(t, s.SubmitOrder(ctx, false))
	assert.Equal(t, StateSubmitted, s.State())

	require.NoError(t, s.Close())
	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, 1, b.closed)

	assert.True(t, b.did("input", selectorUsername, "me@example.com"))
	assert.True(t, b.did("input", selectorPassword, "hunter2"))
	assert.True(t, b.did("enter", selectorPassword))
	assert.True(t, b.did("click", selectorRenewButton))
	assert.True(t, b.did("select", selectorExpiryMonth, "5"))
	assert.True(t, b.did("select", selectorExpiryYear, "2028"))
	assert.True(t, b.did("click", selectorNotificationCheck))
	assert.True(t, b.did("click", selectorFinalizeOrderButton))
}

func TestSessionReadsAndCachesDashboardValues(t *testing.T) {
	b := newTelloPage(testRenewalDate)
	s := loggedIn(t, b)
	ctx := context.Background()

	date, err := s.RenewalDate(ctx)
	require.NoError(t, err)
	assert.Equal(t, testRenewalDate, date)

	again, err := s.RenewalDate(ctx)
	require.NoError(t, err)
	assert.Equal(t, date, again)
	assert.Equal(t, 1, b.reads[selectorRenewalDate])

	next, err := s.NewBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, "11.5 GB, Unlimited min, Unlimited texts", next.String())

	current, err := s.CurrentBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.5 GB, Unlimited min, Unlimited texts", current.String())

	plan, err := s.PlanBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, "10 GB, Unlimited minutes, Unlimited texts", plan.String())

	_, err = s.NewBalance(ctx)
	require.NoError(t, err)
	// one lookup for the three current balance cells, each read once
	assert.Equal(t, 1, b.lookups[selectorCurrentBalance])
	assert.Equal(t, 3, b.reads[selectorCurrentBalance])
	assert.Equal(t, 1, b.lookups[selectorPlanData])
	assert.Equal(t, 1, b.reads[selectorPlanData])
	assert.Equal(t, 1, b.reads[selectorPlanTexts])

	// cached values outlive the dashboard page
	require.NoError(t, s.OpenRenewalPage(ctx))
	_, err = s.NewBalance(ctx)
	assert.NoError(t, err)
}

func TestSessionRejectsOutOfOrderSteps(t *testing.T) {
	b := newTelloPage(testRenewalDate)
	s := newTestSession(b)

	err := s.OpenRenewalPage(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.TypeInternal))
	assert.Equal(t, StateFailed, s.State())

	err = s.OpenLoginPage(context.Background())
	assert.Error(t, err, "a failed session cannot be reused")
}

func TestClosedSessionStaysClosed(t *testing.T) {
	b := newTelloPage(testRenewalDate)
	s := loggedIn(t, b)
	require.NoError(t, s.Close())

	_, err := s.CurrentBalance(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session is closed")
	assert.Equal(t, StateClosed, s.State())
	assert.Zero(t, b.lookups[selectorCurrentBalance])
}

func TestLoginFailsWhenFieldMissing(t *testing.T) {
	b := newTelloPage(testRenewalDate)
	b.remove(selectorPassword)
	s := newTestSession(b)
	ctx := context.Background()
	require.NoError(t, s.OpenLoginPage(ctx))

	start := time.Now()
	err := s.Login(ctx, "me@example.com", "hunter2")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.TypeElementNotFound))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.GreaterOrEqual(t, time.Since(start), testTimeout)
	assert.Equal(t, StateFailed, s.State())
}

func TestRenewalDateUnparseable(t *testing.T) {
	b := newTelloPage(testRenewalDate)
	b.first(selectorRenewalDate).text = "tomorrow"
	s := loggedIn(t, b)

	_, err := s.RenewalDate(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.TypeParsing))
	assert.Equal(t, StateFailed, s.State())
}

func TestCurrentBalanceNeedsThreeValues(t *testing.T) {
	b := newTelloPage(testRenewalDate)
	b.elements[selectorCurrentBalance] = b.elements[selectorCurrentBalance][:2]
	s := loggedIn(t, b)

	_, err := s.CurrentBalance(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.TypeUnexpectedPage))
}

func TestPlanBalanceUnknownUnit(t *testing.T) {
	b := newTelloPage(testRenewalDate)
	b.first(selectorPlanTexts).text = "100 emojis"
	s := loggedIn(t, b)

	_, err := s.PlanBalance(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.TypeParsing))
}

func TestAutofillCardExpirationMissingOption(t *testing.T) {
	b := newTelloPage(testRenewalDate)
	s := loggedIn(t, b)
	ctx := context.Background()
	require.NoError(t, s.OpenRenewalPage(ctx))

	err := s.AutofillCardExpiration(ctx, time.Date(2045, time.January, 1, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.TypeElementNotFound))
	assert.True(t, b.did("select", selectorExpiryMonth, "1"))
	assert.Equal(t, StateFailed, s.State())
}

func TestSubmitOrderDryRunChecksLabelWithoutClicking(t *testing.T) {
	b := newTelloPage(testRenewalDate)
	s := loggedIn(t, b)
	ctx := context.Background()
	require.NoError(t, s.OpenRenewalPage(ctx))
	require.NoError(t, s.AutofillCardExpiration(ctx, time.Date(2028, time.May, 1, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, s.CheckNotificationBox(ctx))

	require.NoError(t, s.SubmitOrder(ctx, true))
	assert.Equal(t, StateSubmitted, s.State())
	assert.False(t, b.did("click", selectorFinalizeOrderButton))
}

func TestSubmitOrderDryRunUnexpectedLabel(t *testing.T) {
	b := newTelloPage(testRenewalDate)
	b.first(selectorFinalizeOrderButton).text = "Pay Now"
	s := loggedIn(t, b)
	ctx := context.Background()
	require.NoError(t, s.OpenRenewalPage(ctx))
	require.NoError(t, s.AutofillCardExpiration(ctx, time.Date(2028, time.May, 1, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, s.CheckNotificationBox(ctx))

	err := s.SubmitOrder(ctx, true)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.TypeUnexpectedPage))
	assert.Equal(t, StateFailed, s.State())
}

func TestCloseIsSafeBeforeOpen(t *testing.T) {
	b := newTelloPage(testRenewalDate)
	s := newTestSession(b)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, 2, b.closed)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "notification_checked", StateNotificationChecked.String())
	assert.Equal(t, "unknown", State(99).String())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateSubmitted.Terminal())
}
