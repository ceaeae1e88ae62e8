package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tello-renewal/adapters/browser"
	"tello-renewal/adapters/email"
	"tello-renewal/core/renewal"
	"tello-renewal/core/ui"
	"tello-renewal/internal/config"
	apperrors "tello-renewal/internal/errors"
	"tello-renewal/internal/logging"
	"tello-renewal/internal/metrics"
)

const (
	mailAuthTimeout = 30 * time.Second
	pushTimeout     = 10 * time.Second
	pushJob         = "tello_renewal"
)

func runRenew(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	log := logging.Named("renewal")
	ctx := logging.ContextWithLogger(cmd.Context(), log)

	res, err := renewOnce(ctx, cfg, dryRun)

	w := ui.NewWriter(cmd.OutOrStdout(), os.Getenv("NO_COLOR") != "")
	if verbose {
		w.SetVerbosity(2)
	}
	w.RenderResult(res)

	if url := cfg.Metrics.PushgatewayURL; url != "" {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
		defer cancel()
		if perr := metrics.Push(pctx, url, pushJob); perr != nil {
			log.Warn("Failed to push metrics", zap.String("url", url), zap.Error(perr))
		}
	}
	return err
}

// renewOnce authenticates a fresh mailer and runs one renewal with a fresh
// browser, logging through the logger carried by ctx. Errors before the
// session starts send no notification.
func renewOnce(ctx context.Context, cfg *config.Config, dry bool) (renewal.Result, error) {
	started := time.Now()
	log := logging.FromContext(ctx)

	mailer := email.NewMailer(cfg.SMTP, log.Named("email"))
	actx, cancel := context.WithTimeout(ctx, mailAuthTimeout)
	err := mailer.Authenticate(actx)
	cancel()
	if err != nil {
		log.Error("Mail relay authentication failed", zap.String("addr", cfg.SMTP.Addr()), zap.Error(err))
		err = fmt.Errorf("authenticate with mail relay: %w", err)
		return renewal.Result{
			Outcome:    renewal.OutcomeFailed,
			DryRun:     dry,
			StartedAt:  started,
			FinishedAt: time.Now(),
			Error:      err.Error(),
			ErrorType:  apperrors.TypeOf(err),
		}, err
	}
	defer func() {
		if cerr := mailer.Close(); cerr != nil {
			log.Warn("Failed to close mail session", zap.Error(cerr))
		}
	}()

	runner := renewal.NewRunner(
		cfg.Tello.Account(),
		browser.New(cfg.Browser.Config, log.Named("browser")),
		mailer,
		renewal.WithDryRun(dry),
		renewal.WithElementTimeout(cfg.Browser.ElementTimeout),
		renewal.WithLogger(log),
	)
	return runner.Run(ctx)
}
