package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	natspkg "github.com/brojonat/solcredit/service/nats"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/urfave/cli/v2"
)

// watchCommand streams published credit reports.
func watchCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Stream credit reports published with --publish",
		ArgsUsage: "[wallet_address]",
		Description: `Subscribes to the CREDIT_REPORTS JetStream stream and prints reports as
they arrive. Without an address every wallet's reports are shown.

Example:
  solcredit watch 9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM --json`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
				Value:   "nats://localhost:4222",
			},
			&cli.StringFlag{
				Name:  "consumer-name",
				Usage: "Create a durable consumer with this name (survives restarts)",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() > 1 {
				return fmt.Errorf("at most one wallet address is accepted")
			}
			subject := natspkg.StreamSubjects
			if c.NArg() == 1 {
				subject = natspkg.Subject(c.Args().Get(0))
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			return streamReports(ctx, c.App.Writer, c.String("nats-url"), subject, c.String("consumer-name"), c.Bool("json"))
		},
	}
}

// streamReports consumes report events on subject until ctx is done.
func streamReports(ctx context.Context, out io.Writer, natsURL, subject, consumerName string, jsonOutput bool) error {
	nc, err := nats.Connect(natsURL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	consumerConfig := jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	}
	if consumerName != "" {
		consumerConfig.Durable = consumerName
		consumerConfig.Name = consumerName
	}

	cons, err := js.CreateOrUpdateConsumer(ctx, natspkg.StreamName, consumerConfig)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	if !jsonOutput {
		fmt.Fprintf(out, "📡 Subscribing to: %s\n", subject)
		fmt.Fprintf(out, "   NATS: %s\n", natsURL)
		fmt.Fprintf(out, "\nWaiting for reports... (Ctrl-C to exit)\n\n")
	}

	msgChan := make(chan jetstream.Msg, 10)
	consumeCtx, err := cons.Consume(func(msg jetstream.Msg) {
		msgChan <- msg
	})
	if err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	count := 0
	for {
		select {
		case msg := <-msgChan:
			var event natspkg.ReportEvent
			if err := json.Unmarshal(msg.Data(), &event); err != nil {
				fmt.Fprintf(os.Stderr, "Error parsing event: %v\n", err)
				msg.Ack()
				continue
			}
			count++
			if err := printReportEvent(out, &event, count, jsonOutput); err != nil {
				return err
			}
			msg.Ack()

		case <-ctx.Done():
			if !jsonOutput {
				fmt.Fprintf(out, "\n✅ Received %d reports\n", count)
			}
			return nil
		}
	}
}

// printReportEvent renders one event, either as a JSON line or as a summary.
func printReportEvent(out io.Writer, event *natspkg.ReportEvent, n int, jsonOutput bool) error {
	if jsonOutput {
		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	fmt.Fprintf(out, "─────────────────────────────────────────────────────\n")
	fmt.Fprintf(out, "Report #%d\n", n)
	fmt.Fprintf(out, "─────────────────────────────────────────────────────\n")
	fmt.Fprintf(out, "Wallet:       %s\n", event.Address)
	fmt.Fprintf(out, "Score:        %d (%s)\n", event.Score, event.Tier)
	if r := event.Report; r != nil {
		fmt.Fprintf(out, "Retained:     %d of %d transactions\n", r.Activity.Retained, r.Activity.Raw)
		for _, w := range r.Warnings {
			fmt.Fprintf(out, "Warning:      %s\n", w)
		}
		fmt.Fprintf(out, "Generated:    %s\n", r.GeneratedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(out, "Published:    %s\n\n", event.PublishedAt.Format(time.RFC3339))
	return nil
}
