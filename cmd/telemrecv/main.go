// telemrecv listens for telemetry datagrams and prints each one as indented
// JSON on stdout.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/signalsfoundry/antenna-tracker/internal/logging"
	"github.com/signalsfoundry/antenna-tracker/telemetry"
)

func main() {
	host := flag.String("host", "", "Interface to bind (empty means all)")
	port := flag.Int("port", telemetry.DefaultPort, "UDP port to listen on")
	logFile := flag.String("log-file", os.Getenv("LOG_FILE"), "Write logs to this rotated file instead of stderr")
	flag.Parse()

	logCfg := logging.ConfigFromEnv()
	logCfg.File = *logFile
	if logCfg.File == "" {
		logCfg.Output = os.Stderr
	}
	log := logging.New(logCfg)

	link, err := telemetry.Open(telemetry.LinkConfig{Host: *host, Port: *port}, log)
	if err != nil {
		log.Error(context.Background(), "failed to bind telemetry socket", logging.Err(err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		_ = link.Close()
	}()

	if err := printLoop(link, os.Stdout, log); err != nil {
		log.Error(context.Background(), "telemetry receive loop failed", logging.Err(err))
		os.Exit(1)
	}
}

// printLoop writes every decoded datagram to w until the link is closed.
// Malformed datagrams are logged and skipped.
func printLoop(src telemetry.Source, w io.Writer, log logging.Logger) error {
	ctx := context.Background()
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	for {
		msg, ok, err := src.Receive()
		switch {
		case errors.Is(err, telemetry.ErrLinkClosed):
			return nil
		case errors.Is(err, telemetry.ErrMalformed):
			log.Warn(ctx, "skipping malformed datagram", logging.Err(err))
			continue
		case err != nil:
			return err
		case !ok:
			continue
		}
		if err := enc.Encode(msg.Data); err != nil {
			return fmt.Errorf("write telemetry: %w", err)
		}
	}
}
