package ui

import (
	"fmt"

	"tello-renewal/core/balance"
	"tello-renewal/core/renewal"
)

// RenderResult prints what a renewal run saw and did.
func (w *Writer) RenderResult(res renewal.Result) {
	title := "Tello Renewal"
	if res.DryRun {
		title += " (dry run)"
	}
	w.Header(title)

	w.Debug("run %s", res.RunID)
	if !res.RenewalDate.IsZero() {
		w.Field("Renewal date", fmt.Sprintf("%s (%s)", res.RenewalDate.Format("01/02/2006"), daysLabel(res.DaysUntilRenewal)))
	}

	if res.CurrentBalance != nil || res.PlanBalance != nil || res.NewBalance != nil {
		w.line("")
		t := w.NewTable("Balance", "Data", "Minutes", "Texts")
		addBalanceRow(t, "Current", res.CurrentBalance)
		addBalanceRow(t, "Plan", res.PlanBalance)
		addBalanceRow(t, "After renewal", res.NewBalance)
		t.Render()
		w.line("")
	}

	switch res.Outcome {
	case renewal.OutcomeRenewed:
		w.Success("Plan renewed")
		if res.Error != "" {
			w.Warning("Confirmation email not sent: %s", res.Error)
		}
	case renewal.OutcomeDryRun:
		w.Success("Dry run complete, order not submitted")
		w.Info("Run without --dry-run to place the order")
	case renewal.OutcomeSkipped:
		w.Warning("Renewal not due yet, nothing to do")
	default:
		w.Error("Renewal failed: %s", res.Error)
		if res.ErrorType != "" {
			w.Info("Error type: %s", res.ErrorType)
		}
	}

	if !res.FinishedAt.IsZero() {
		w.Field("Took", formatDuration(res.FinishedAt.Sub(res.StartedAt)))
	}
}

func addBalanceRow(t *Table, label string, a *balance.Account) {
	if a == nil {
		return
	}
	t.AddRow(label, a.Data.String(), a.Minutes.String(), a.Texts.String())
}

func daysLabel(days int) string {
	switch {
	case days == 0:
		return "today"
	case days == 1:
		return "tomorrow"
	case days < 0:
		return fmt.Sprintf("%d days ago", -days)
	default:
		return fmt.Sprintf("in %d days", days)
	}
}
