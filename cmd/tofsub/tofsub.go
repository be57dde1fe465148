// Command tofsub subscribes to a tofpub telemetry stream and prints one row
// per ranging sample, with a run summary on exit.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/banshee-data/range.report/internal/monitoring"
	"github.com/banshee-data/range.report/internal/telemetry"
	"github.com/banshee-data/range.report/internal/telemetry/stream"
	"github.com/banshee-data/range.report/internal/version"
)

var (
	connect     = flag.String("connect", "localhost:5555", "Telemetry stream address")
	topic       = flag.String("topic", telemetry.DefaultTopic, "Topic prefix to subscribe to")
	debug       = flag.Bool("debug", false, "Enable debug logging")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("tofsub"))
		return
	}
	monitoring.Configure(os.Stderr, *debug)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := stream.Dial(ctx, *connect, *topic)
	if err != nil {
		log.Fatalf("tofsub: %v", err)
	}
	defer c.Close()
	monitoring.Logf("subscribed to %q on %s", *topic, *connect)

	summary := telemetry.NewSummary()
	err = consume(ctx, c, os.Stdout, summary)
	fmt.Fprintf(os.Stdout, "\n%s\n", summary.Report())
	if err != nil {
		log.Fatalf("tofsub: %v", err)
	}
}

// lineSource yields telemetry lines until it returns an error.
type lineSource interface {
	Recv() (string, error)
}

// consume prints a header and then one row per decoded line until src ends.
// Malformed lines are counted and skipped. The end of the stream and
// cancellation of ctx are not errors.
func consume(ctx context.Context, src lineSource, out io.Writer, summary *telemetry.Summary) error {
	fmt.Fprintln(out, header())
	for {
		line, err := src.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil || status.Code(err) == codes.Canceled {
				return nil
			}
			return err
		}
		f, err := telemetry.Decode(line)
		if err != nil {
			monitoring.Debugf("skipping line: %v", err)
			summary.AddMalformed()
			continue
		}
		summary.Add(f)
		fmt.Fprintln(out, formatRow(f))
	}
}

const rowFormat = "%7s | %-7s | %10s"

func header() string {
	h := fmt.Sprintf(rowFormat, "DIST", "STATUS", "SIGNAL")
	return h + "\n" + strings.Repeat("-", len(h))
}

// formatRow renders f as "  900mm | WEAK    |       2.00".
func formatRow(f telemetry.Frame) string {
	return fmt.Sprintf(rowFormat,
		fmt.Sprintf("%dmm", f.DistanceMM),
		f.Class(),
		fmt.Sprintf("%5.2f", f.SignalRate))
}
