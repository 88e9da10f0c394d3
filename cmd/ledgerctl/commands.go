package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"

	"tradeledger/backend/internal/bootstrap"
	"tradeledger/backend/internal/config"
	"tradeledger/backend/internal/ledger"
)

var commands = []subcommands.Command{
	&verifyCmd{},
	&summaryCmd{},
	&exportCmd{},
}

var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// openApp connects to the same storage the server is configured with.
var openApp = func(ctx context.Context) (*bootstrap.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := config.NewLogger(cfg.LogLevel)
	logger.SetOutput(stderr)
	if cfg.LogLevel == "" || cfg.LogLevel == "info" {
		logger.SetLevel(logrus.WarnLevel)
	}
	return bootstrap.Open(ctx, cfg, logger)
}

type verifyCmd struct{}

func (*verifyCmd) Name() string     { return "verify" }
func (*verifyCmd) Synopsis() string { return "check that every product's stock equals the sum of its movements" }
func (*verifyCmd) Usage() string {
	return `ledgerctl verify

  Exits non-zero and lists the products whose stored stock level disagrees
  with their stock movements.
`
}
func (*verifyCmd) SetFlags(*flag.FlagSet) {}

func (*verifyCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	app, err := openApp(ctx)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return subcommands.ExitFailure
	}
	defer app.Close()

	discrepancies, err := app.Service.VerifyStock(ctx)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return subcommands.ExitFailure
	}
	if len(discrepancies) == 0 {
		fmt.Fprintln(stdout, "stock is consistent with movements")
		return subcommands.ExitSuccess
	}
	for _, d := range discrepancies {
		fmt.Fprintf(stdout, "%s (%s): stock %d, movements %d\n", d.ProductName, d.ProductID, d.CurrentStock, d.MovementsTotal)
	}
	return subcommands.ExitFailure
}

type summaryCmd struct{}

func (*summaryCmd) Name() string     { return "summary" }
func (*summaryCmd) Synopsis() string { return "print the capital summary" }
func (*summaryCmd) Usage() string {
	return `ledgerctl summary

  Prints investment, withdrawal, profit and loss totals and the resulting
  balance in the display currency.
`
}
func (*summaryCmd) SetFlags(*flag.FlagSet) {}

func (*summaryCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	app, err := openApp(ctx)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return subcommands.ExitFailure
	}
	defer app.Close()

	summary, err := app.Service.CapitalSummary(ctx)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return subcommands.ExitFailure
	}

	currency := app.Engine.Currency()
	fmt.Fprintf(stdout, "Investments: %s\n", ledger.FormatMoney(summary.TotalInvestments, currency))
	fmt.Fprintf(stdout, "Withdrawals: %s\n", ledger.FormatMoney(summary.TotalWithdrawals, currency))
	fmt.Fprintf(stdout, "Profit:      %s\n", ledger.FormatMoney(summary.TotalProfit, currency))
	fmt.Fprintf(stdout, "Loss:        %s\n", ledger.FormatMoney(summary.TotalLoss, currency))
	fmt.Fprintf(stdout, "Balance:     %s\n", ledger.FormatMoney(summary.CurrentBalance, currency))
	return subcommands.ExitSuccess
}

type exportCmd struct {
	output string
}

func (*exportCmd) Name() string     { return "export" }
func (*exportCmd) Synopsis() string { return "write the ledger to an xlsx workbook" }
func (*exportCmd) Usage() string {
	return `ledgerctl export [-o <file.xlsx>]

  Writes products, transactions, stock movements and capital movements to
  one sheet each.
`
}

func (c *exportCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.output, "o", "ledger.xlsx", "Path of the workbook to write.")
}

func (c *exportCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	app, err := openApp(ctx)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return subcommands.ExitFailure
	}
	defer app.Close()

	if dir := filepath.Dir(c.output); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Fprintln(stderr, err)
			return subcommands.ExitFailure
		}
	}
	file, err := os.Create(c.output)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return subcommands.ExitFailure
	}
	if err := app.Service.ExportWorkbook(ctx, file); err != nil {
		_ = file.Close()
		fmt.Fprintln(stderr, err)
		return subcommands.ExitFailure
	}
	if err := file.Close(); err != nil {
		fmt.Fprintln(stderr, err)
		return subcommands.ExitFailure
	}
	fmt.Fprintf(stdout, "wrote %s\n", c.output)
	return subcommands.ExitSuccess
}
