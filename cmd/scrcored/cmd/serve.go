package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/scrcore/internal/decoder"
	"github.com/jmylchreest/scrcore/internal/engine"
	"github.com/jmylchreest/scrcore/internal/eventbus"
	"github.com/jmylchreest/scrcore/internal/observability"
	"github.com/jmylchreest/scrcore/internal/recorder"
	"github.com/jmylchreest/scrcore/internal/version"
	"github.com/jmylchreest/scrcore/internal/videobuffer"
)

// serveCmd runs the stream engine against a single capture connection.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Accept a capture connection and run the stream engine",
	Long: `serve listens for one capture connection, decodes the framed H.264
stream it carries, and optionally records it to an MP4 or Matroska file.

The engine accepts exactly one connection per invocation, matching the
capture protocol's single-peer design; serve exits once that stream ends.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	initLogging(cfg.Logging)
	logger := observability.WithComponent(slog.Default(), "serve")

	listener, err := net.Listen("tcp", cfg.Listen.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Listen.Addr, err)
	}
	defer listener.Close()
	logger.Info("listening for capture connection", slog.String("addr", cfg.Listen.Addr))

	conn, err := acceptOne(listener, cfg.Listen.AcceptTimeout)
	if err != nil {
		return fmt.Errorf("accepting capture connection: %w", err)
	}
	logger.Info("capture connection accepted", slog.String("remote_addr", conn.RemoteAddr().String()))

	buf := videobuffer.New()
	decSink := decoder.New(buf, nil, logger)

	var recSink *recorder.Sink
	comment := "Recorded by scrcore " + version.Short()
	if cfg.Recorder.Enabled {
		recSink, err = recorder.New(
			cfg.Recorder.Format,
			cfg.Recorder.OutputPath,
			cfg.Recorder.DeclaredWidth,
			cfg.Recorder.DeclaredHeight,
			comment,
			logger,
		)
		if err != nil {
			return fmt.Errorf("constructing recorder sink: %w", err)
		}
	}

	bus := eventbus.New()
	stopped := make(chan struct{})
	bus.Subscribe(func(ev eventbus.Event) {
		if ev.Kind == eventbus.StreamStopped {
			close(stopped)
		}
	})

	eng := engineFor(conn, decSink, recSink, cfg.Recorder.Enabled, logger, bus)

	if err := eng.Start(); err != nil {
		return fmt.Errorf("starting engine: %w", err)
	}
	logger.Info("stream engine started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-stopped:
		logger.Info("stream ended")
	case sig := <-sigCh:
		logger.Info("shutting down", slog.String("signal", sig.String()))
		eng.Stop()
		// Closing the connection unblocks the stream thread's socket read.
		conn.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Listen.ShutdownPeriod)
		defer cancel()

		select {
		case <-stopped:
		case <-shutdownCtx.Done():
			logger.Warn("shutdown period elapsed before stream engine drained")
		}
	}

	eng.Join()
	stats := eng.Stats()
	logger.Info("stream engine stopped",
		slog.Uint64("packets_received", stats.PacketsReceived),
		slog.Uint64("bytes_received", stats.BytesReceived),
		slog.Uint64("errors", stats.Errors),
	)

	return nil
}

// engineFor builds the engine with whichever sinks are attached, since
// recorder.Sink is nil (typed) when recording is disabled and must not be
// passed through as a non-nil packet.Sink interface value.
func engineFor(conn net.Conn, dec *decoder.Sink, rec *recorder.Sink, recorderEnabled bool, logger *slog.Logger, bus *eventbus.Bus) *engine.Engine {
	cfg := engine.Config{Codec: "h264", Logger: logger, Bus: bus}
	if recorderEnabled {
		return engine.New(conn, dec, rec, cfg)
	}
	return engine.New(conn, dec, nil, cfg)
}

// acceptOne blocks for a single inbound connection, honoring timeout if
// positive, then stops accepting further connections (this core serves
// exactly one capture peer per spec §5).
func acceptOne(listener net.Listener, timeout time.Duration) (net.Conn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := listener.Accept()
		ch <- result{conn, err}
	}()

	if timeout <= 0 {
		r := <-ch
		return r.conn, r.err
	}

	select {
	case r := <-ch:
		return r.conn, r.err
	case <-time.After(timeout):
		return nil, fmt.Errorf("no capture connection within %s", timeout)
	}
}
