package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/brojonat/solcredit/service/report"
	"github.com/urfave/cli/v2"
)

func interactiveCommand() *cli.Command {
	return &cli.Command{
		Name:  "interactive",
		Usage: "Analyze wallets one after another from a prompt",
		Description: `Prompts for wallet addresses until "exit" or "quit". After each report
you can save it to credit_analysis_<address>.json in --dir.`,
		Flags: append(commonFlags(),
			&cli.StringFlag{
				Name:  "dir",
				Usage: "Directory saved reports are written to",
				Value: ".",
			},
		),
		Action: func(c *cli.Context) error {
			a, err := newAnalyzer(c)
			if err != nil {
				return err
			}
			defer a.close(c.String("metrics-file"))

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Fprintln(c.App.Writer, "🔍 Solana Wallet Analyzer - Credit Assessment")
			return runInteractive(ctx, c.App.Reader, c.App.Writer, a.analyze, c.String("dir"))
		},
	}
}

// runInteractive reads addresses from in until exit, quit or end of input.
// Per-wallet failures are printed and the loop continues; only cancellation
// of ctx ends it with an error.
func runInteractive(ctx context.Context, in io.Reader, out io.Writer, analyze func(context.Context, string) (*report.CreditReport, error), dir string) error {
	scanner := bufio.NewScanner(in)
	prompt := func(msg string) (string, bool) {
		fmt.Fprint(out, msg)
		if !scanner.Scan() {
			return "", false
		}
		return strings.TrimSpace(scanner.Text()), true
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		address, ok := prompt("Please enter address or exit to quit: ")
		if !ok {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		switch strings.ToLower(address) {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		r, err := analyze(ctx, address)
		if err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return err
			}
			fmt.Fprintf(out, "⚠️ Analysis failed: %v\n", err)
			fmt.Fprintln(out, strings.Repeat("-", 50))
			continue
		}

		if err := r.Write(out); err != nil {
			return err
		}
		for _, w := range r.Warnings {
			fmt.Fprintf(out, "⚠️ %s\n", w)
		}

		answer, ok := prompt("Save analysis to file? (y/n): ")
		if ok && strings.EqualFold(answer, "y") {
			path := filepath.Join(dir, report.DefaultFilename(r.Address))
			if err := r.WriteFile(path); err != nil {
				fmt.Fprintf(out, "⚠️ %v\n", err)
			} else {
				fmt.Fprintf(out, "Saved to %s\n", path)
			}
		}
		fmt.Fprintln(out, strings.Repeat("-", 50))
		if !ok {
			return scanner.Err()
		}
	}
}
