package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/neuralinbox/neuralinbox/internal/config"
	"github.com/neuralinbox/neuralinbox/internal/reminder"
	"github.com/neuralinbox/neuralinbox/internal/server"
	"github.com/neuralinbox/neuralinbox/internal/telemetry"
	"github.com/neuralinbox/neuralinbox/internal/tools"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the companion-client API and the reminder scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServe(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context) error {
	if err := telemetry.Init(ctx, "ninbox", Version); err != nil {
		log.Printf("telemetry init failed: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		telemetry.Shutdown(shutdownCtx)
	}()

	svc, err := newServices(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = svc.store.Close() }()

	registry, err := tools.NewRegistry(svc.store, svc.openai, tools.NewConfirmStore())
	if err != nil {
		return fmt.Errorf("failed to build tool registry: %w", err)
	}

	srv := server.New(svc.store, svc.engine, server.Config{
		BotToken:       config.GetString(config.KeyBotToken),
		AllowedOrigins: config.GetStringSlice(config.KeyHTTPAllowedOrigins),
		Assistant:      tools.NewLoop(svc.chat, registry),
	})

	sched := reminder.New(svc.store, logTransport{})
	sched.SetInterval(config.GetDuration(config.KeyReminderInterval))

	httpSrv := &http.Server{
		Addr:              config.GetString(config.KeyHTTPAddr),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("ninbox: listening on %s", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := sched.Run(ctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// logTransport writes reminders to the process log. The chat transport
// replaces it when the bot runtime is attached.
type logTransport struct{}

func (logTransport) SendReminder(_ context.Context, userID int64, text string) error {
	log.Printf("reminder for user %d:\n%s", userID, text)
	return nil
}
