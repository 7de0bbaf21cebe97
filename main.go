// Command chatter connects to live chat on several streaming platforms at
// once and merges the messages into one stream.
//
//   - serve: runs the aggregator with the HTTP API (health, status, metrics,
//     SSE stream, admin) and prints messages to stdout.
//   - tui: runs the aggregator behind a full-screen terminal view.
//   - accounts: edits the accounts snapshot (credentials, channels).
//   - reload: asks a running server to re-read its accounts.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"log/slog"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/onnwee/chatter/chat"
	"github.com/onnwee/chatter/config"
	"github.com/onnwee/chatter/render"
	"github.com/onnwee/chatter/render/tui"
	"github.com/onnwee/chatter/server"
	"github.com/onnwee/chatter/telemetry"
)

var version = "dev"

func main() {
	// Local dev convenience only; production relies on real env
	_ = godotenv.Load()

	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "chatter",
		Short:         "Multi-platform live chat aggregator",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.AddCommand(
		newServeCommand(),
		newTUICommand(),
		newAccountsCommand(),
		newReloadCommand(),
	)
	return cmd
}

// signalContext is cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// initTelemetry registers metrics and starts tracing when an OTLP endpoint
// is configured. The returned func flushes spans.
func initTelemetry(s *config.Settings) (func(), error) {
	telemetry.Init()
	shutdown, err := telemetry.InitTracing(telemetry.TracingConfig{
		ServiceName:    "chatter",
		ServiceVersion: version,
		Endpoint:       s.OTLPEndpoint,
		SampleRatio:    s.TraceSampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("tracing initialization failed: %w", err)
	}
	return shutdown, nil
}

func newServeCommand() *cobra.Command {
	var quiet, logMessages bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the aggregator with the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			s, err := config.Load()
			if err != nil {
				return err
			}
			log, closeLog, err := newLogger(s, false)
			if err != nil {
				return err
			}
			defer closeLog()
			log.Info("logger initialized", slog.String("level", s.LogLevel), slog.String("format", s.LogFormat))

			shutdownTracing, err := initTelemetry(s)
			if err != nil {
				return err
			}
			defer shutdownTracing()
			startPprof(s)

			ctx, stop := signalContext()
			defer stop()

			a, err := startApp(ctx, s, log)
			if err != nil {
				log.Error("startup failed", slog.Any("err", err))
				return err
			}
			defer a.Close()

			hub := server.NewHub(server.DefaultClientBuffer, log.With(slog.String("component", "stream")))
			renderers := render.Multi{hub}
			if !quiet {
				renderers = append(renderers, render.NewTerminal(os.Stdout))
			}
			if logMessages {
				renderers = append(renderers, render.NewLog(log))
			}
			go chat.Consume(ctx, a.bus, renderers)

			h := server.NewHandlers(ctx, a.agg, a.bus, a.store, hub, log.With(slog.String("component", "http")))
			err = server.Start(ctx, server.NewMux(ctx, h, s), s.HTTPAddr)
			log.Info("shutting down")
			return err
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print messages to stdout")
	cmd.Flags().BoolVar(&logMessages, "log-messages", false, "Also write each message as a log entry")
	return cmd
}

func newTUICommand() *cobra.Command {
	var scrollback int

	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Show merged chat in a full-screen terminal view",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			s, err := config.Load()
			if err != nil {
				return err
			}
			log, closeLog, err := newLogger(s, true)
			if err != nil {
				return err
			}
			defer closeLog()

			shutdownTracing, err := initTelemetry(s)
			if err != nil {
				return err
			}
			defer shutdownTracing()

			ctx, stop := signalContext()
			defer stop()

			a, err := startApp(ctx, s, log)
			if err != nil {
				return err
			}
			defer a.Close()

			p := tea.NewProgram(tui.New(a.agg.Status, scrollback), tea.WithAltScreen(), tea.WithContext(ctx))
			go chat.Consume(ctx, a.bus, tui.NewRenderer(p))

			if _, err := p.Run(); err != nil && ctx.Err() == nil {
				return err
			}
			stop()
			return nil
		},
	}
	cmd.Flags().IntVar(&scrollback, "scrollback", tui.DefaultScrollback, "Messages kept in the view")
	return cmd
}
