package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os/signal"
	"syscall"

	"bitcoin-tipjar-go/internal/common"
	"bitcoin-tipjar-go/internal/config"
	"bitcoin-tipjar-go/internal/models"
	"bitcoin-tipjar-go/internal/orchestrator"
	"bitcoin-tipjar-go/internal/rates"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type tipRequest struct {
	amount      decimal.Decimal
	description string
}

func parseAndValidateFlags() (*tipRequest, error) {
	amountFlag := flag.String("amount", "", "Tip amount in USD (required)")
	descriptionFlag := flag.String("description", "Bitcoin Tip", "Payment description shown in the wallet")
	flag.Parse()

	if *amountFlag == "" {
		return nil, fmt.Errorf("the --amount flag is required")
	}

	amount, err := decimal.NewFromString(*amountFlag)
	if err != nil {
		return nil, fmt.Errorf("invalid amount format: %w", err)
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("amount must be greater than zero")
	}

	return &tipRequest{
		amount:      amount,
		description: *descriptionFlag,
	}, nil
}

// fallbackConverter prices tips with the live rate cache and falls back to
// an operator-supplied emergency rate when no rate, live or cached, exists.
// Only this diagnostic tool uses the fallback; the core refuses to price
// without a real rate.
type fallbackConverter struct {
	rates         *rates.Service
	fallbackPrice decimal.Decimal
}

func (f *fallbackConverter) ConvertUsdToMsats(ctx context.Context, usd decimal.Decimal) (int64, error) {
	msats, err := f.rates.ConvertUsdToMsats(ctx, usd)
	if err == nil {
		return msats, nil
	}

	var rateErr *rates.RateUnavailableError
	if errors.As(err, &rateErr) && f.fallbackPrice.IsPositive() {
		zap.L().Warn("No live or cached rate available, using configured fallback rate",
			zap.String("fallback_price_usd", f.fallbackPrice.String()),
			zap.Error(err))
		return rates.SatsAtRate(usd, f.fallbackPrice) * 1000, nil
	}

	return 0, err
}

func printTipJar(jar *common.TipJarConfig) {
	common.PrintHeader(fmt.Sprintf("TIP JAR: %s", jar.Creator), common.DefaultWidth)
	if jar.Tagline != "" {
		fmt.Println(jar.Tagline)
		fmt.Println()
	}
	for _, opt := range jar.Options {
		fmt.Printf("  %s  $%s  %s\n", opt.Emoji, opt.AmountUsd.String(), opt.Message)
	}
	if jar.AllowCustom {
		fmt.Println("  ...or any custom amount via --amount")
	}
	common.PrintSeparator("=", common.DefaultWidth)
}

// Lightning invoices run well past 80 characters, so the instructions
// banner uses the wide width.
func printInstructions(session *models.TipSession, handle *orchestrator.TipHandle) {
	common.PrintHeader("PAYMENT INSTRUCTIONS", common.WideWidth)
	fmt.Printf("Payment ID: %s\n", session.PaymentId)
	fmt.Printf("Amount:     $%s (%d sats)\n", session.AmountUsd.String(), session.AmountSats)
	if handle.LightningInvoice != "" {
		fmt.Printf("Invoice:    %s\n", handle.LightningInvoice)
	}
	if handle.OnchainAddress != "" {
		fmt.Printf("Address:    %s\n", handle.OnchainAddress)
	}
	if handle.Bip21Uri != "" {
		fmt.Printf("BIP21:      %s\n", handle.Bip21Uri)
	}
	common.PrintSeparator("=", common.WideWidth)
	fmt.Println("\nWaiting for payment... (Ctrl+C to abandon)")
}

func describeFailure(err error) string {
	var timeoutErr *orchestrator.PollTimeoutError
	if errors.As(err, &timeoutErr) {
		return fmt.Sprintf("timed out waiting for %s after %d attempts", timeoutErr.Stage, timeoutErr.Attempts)
	}
	var terminalErr *orchestrator.TerminalFailureError
	if errors.As(err, &terminalErr) {
		return fmt.Sprintf("payment reached terminal status %q", terminalErr.Status)
	}
	if errors.Is(err, orchestrator.ErrSessionSuperseded) {
		return "this tip was superseded by a newer one"
	}
	return err.Error()
}

func main() {
	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	req, err := parseAndValidateFlags()
	if err != nil {
		zap.L().Fatal("Invalid flags", zap.Error(err))
	}

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	jar, err := common.LoadTipJarConfig(cfg.TipsFile)
	if err != nil {
		zap.L().Fatal("Failed to load tip jar config", zap.Error(err))
	}
	printTipJar(jar)

	services, err := common.InitializeServices(cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}

	// This tool runs its own orchestrator so it can price with the
	// emergency fallback rate when the ticker and cache are both empty.
	orch := orchestrator.New(orchestrator.Config{
		Gateway: services.Voltage,
		Converter: &fallbackConverter{
			rates:         services.Rates,
			fallbackPrice: cfg.Rates.FallbackPriceUsd,
		},
		WalletId:     cfg.Voltage.WalletId,
		PaymentKind:  cfg.Voltage.PaymentKind,
		Instructions: cfg.Polling.Instructions,
		Settlement:   cfg.Polling.Settlement,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zap.L().Info("Starting tip",
		zap.String("amount_usd", req.amount.String()),
		zap.String("description", req.description))

	handle, err := orch.Start(ctx, req.amount, req.description)
	if err != nil {
		common.PrintHeader("TIP FAILED", common.DefaultWidth)
		fmt.Printf("Error: %s\n", describeFailure(err))
		common.PrintSeparator("=", common.DefaultWidth)
		zap.L().Fatal("Failed to start tip", zap.Error(err))
	}

	session := &models.TipSession{
		AmountUsd:  req.amount,
		AmountSats: handle.AmountMsats / 1000,
		PaymentId:  handle.PaymentId,
		Payment:    handle.Payment,
	}
	printInstructions(session, handle)

	select {
	case result := <-handle.Settlement:
		if result.Err != nil {
			common.PrintHeader("TIP FAILED", common.DefaultWidth)
			fmt.Printf("Error: %s\n", describeFailure(result.Err))
			common.PrintSeparator("=", common.DefaultWidth)
			zap.L().Fatal("Tip did not settle", zap.Error(result.Err))
		}
		session.Payment = result.Payment
		common.PrintFooter(fmt.Sprintf("TIP RECEIVED: $%s / %d sats (payment %s)",
			session.AmountUsd.String(), session.AmountSats, session.PaymentId), common.DefaultWidth)
		zap.L().Info("Tip settled",
			zap.String("payment_id", session.PaymentId),
			zap.String("amount_usd", session.AmountUsd.String()),
			zap.String("status", string(session.Payment.Status)))
	case <-ctx.Done():
		orch.Cancel()
		fmt.Println("\nAbandoned. The payment may still settle on the backend.")
	}
}
