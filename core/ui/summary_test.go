package ui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tello-renewal/core/balance"
	"tello-renewal/core/renewal"
	apperrors "tello-renewal/internal/errors"
)

func account(t *testing.T, data, minutes, texts string) *balance.Account {
	t.Helper()
	a, err := balance.ParseAccount(data, minutes, texts)
	require.NoError(t, err)
	return &a
}

func TestRenderRenewed(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, true)

	start := time.Date(2026, time.October, 17, 9, 0, 0, 0, time.UTC)
	w.RenderResult(renewal.Result{
		Outcome:          renewal.OutcomeRenewed,
		RenewalDate:      time.Date(2026, time.October, 18, 0, 0, 0, 0, time.UTC),
		DaysUntilRenewal: 1,
		CurrentBalance:   account(t, "1.5 GB", "Unlimited min", "Unlimited texts"),
		PlanBalance:      account(t, "10 GB", "Unlimited minutes", "Unlimited texts"),
		NewBalance:       account(t, "11.5 GB", "Unlimited minutes", "Unlimited texts"),
		StartedAt:        start,
		FinishedAt:       start.Add(95 * time.Second),
	})

	out := buf.String()
	assert.Contains(t, out, "━━━ Tello Renewal ━━━")
	assert.Contains(t, out, "10/18/2026 (tomorrow)")
	assert.Contains(t, out, "After renewal │ 11.5 GB │ Unlimited minutes │ Unlimited texts")
	assert.Contains(t, out, "✓ Plan renewed")
	assert.Contains(t, out, "1m 35s")
	assert.NotContains(t, out, "\033[")
}

func TestRenderSkippedHasNoBalanceTable(t *testing.T) {
	var buf bytes.Buffer
	NewWriter(&buf, true).RenderResult(renewal.Result{
		Outcome:          renewal.OutcomeSkipped,
		RenewalDate:      time.Date(2026, time.October, 22, 0, 0, 0, 0, time.UTC),
		DaysUntilRenewal: 5,
	})

	out := buf.String()
	assert.Contains(t, out, "in 5 days")
	assert.Contains(t, out, "⚠ Renewal not due yet")
	assert.NotContains(t, out, "Balance")
}

func TestRenderFailedShowsErrorVerbatim(t *testing.T) {
	var buf bytes.Buffer
	NewWriter(&buf, true).RenderResult(renewal.Result{
		Outcome:   renewal.OutcomeFailed,
		DryRun:    true,
		Error:     "login: element not found: input#i_username (100% sure)",
		ErrorType: apperrors.TypeElementNotFound,
	})

	out := buf.String()
	assert.Contains(t, out, "(dry run)")
	assert.Contains(t, out, "✗ Renewal failed: login: element not found: input#i_username (100% sure)")
	assert.Contains(t, out, "ℹ Error type: ELEMENT_NOT_FOUND")
}

func TestRenderDryRunPointsAtRealRun(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, true)
	res := renewal.Result{Outcome: renewal.OutcomeDryRun, DryRun: true}
	w.RenderResult(res)

	out := buf.String()
	assert.Contains(t, out, "✓ Dry run complete, order not submitted")
	assert.Contains(t, out, "ℹ Run without --dry-run to place the order")

	buf.Reset()
	w.SetVerbosity(0)
	w.RenderResult(res)
	assert.NotContains(t, buf.String(), "--dry-run")
}

func TestTableAlignment(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, true)
	tbl := w.NewTable("A", "Bee")
	tbl.AddRow("long cell", "x")
	tbl.AddRow("y")
	tbl.Render()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "A         │ Bee", lines[0])
	assert.Equal(t, "──────────┼────", lines[1])
	assert.Equal(t, "long cell │ x", lines[2])
	assert.Equal(t, "y         │", lines[3])
}

func TestColorAndVerbosity(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, false)
	w.Success("ok")
	assert.Contains(t, buf.String(), Green+"✓ "+Reset+"ok")

	buf.Reset()
	w.SetVerbosity(0)
	w.Info("hidden")
	w.Debug("hidden")
	assert.Empty(t, buf.String())

	w.SetVerbosity(2)
	w.Debug("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestDaysLabel(t *testing.T) {
	assert.Equal(t, "today", daysLabel(0))
	assert.Equal(t, "tomorrow", daysLabel(1))
	assert.Equal(t, "in 3 days", daysLabel(3))
	assert.Equal(t, "2 days ago", daysLabel(-2))
}
