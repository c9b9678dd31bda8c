package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"memberflow/auth"
	"memberflow/changereq"
	"memberflow/db"
	"memberflow/member"
	"memberflow/notify"
)

func main() {
	_ = godotenv.Load()

	log := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(log)

	if err := run(log); err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return errors.New("JWT_SECRET is required")
	}

	pool, err := db.NewPool(ctx, os.Getenv("DATABASE_URL"))
	if err != nil {
		return err
	}
	defer pool.Close()

	memberRepo := member.NewRepository(pool)
	authRepo := auth.NewRepository(pool)
	requestRepo := changereq.NewRepository(pool)

	authService := auth.NewService(authRepo, jwtSecret)

	memberNotifier, adminNotifier, reviewNotifier := buildNotifiers(log)

	memberService := member.NewService(memberRepo, authService, memberNotifier, log)
	exportService := member.NewExportService(memberRepo)
	submitService := changereq.NewSubmitService(memberRepo, requestRepo, adminNotifier, log)
	reviewService := changereq.NewReviewService(requestRepo, memberRepo, authRepo, reviewNotifier, log)

	if err := bootstrapAdmin(ctx, authService, log); err != nil {
		return err
	}

	server := &Server{
		memberService: memberService,
		exportService: exportService,
		submitService: submitService,
		reviewService: reviewService,
		authService:   authService,
		log:           log,
	}

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// buildNotifiers returns the mail-backed notifier when SMTP is configured and
// the logging stand-in otherwise.
func buildNotifiers(log *slog.Logger) (member.Notifier, changereq.AdminNotifier, changereq.MemberNotifier) {
	host := os.Getenv("SMTP_HOST")
	if host == "" {
		log.Warn("SMTP_HOST not set, notifications go to the log")
		ln := notify.NewLogNotifier(log)
		return ln, ln, ln
	}

	port := 587
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			port = p
		}
	}

	mailer, err := notify.NewMailer(notify.MailerConfig{
		Host:       host,
		Port:       port,
		Username:   os.Getenv("SMTP_USERNAME"),
		Password:   os.Getenv("SMTP_PASSWORD"),
		From:       os.Getenv("MAIL_FROM"),
		AdminEmail: os.Getenv("ADMIN_EMAIL"),
		LoginURL:   os.Getenv("BASE_URL") + "/login",
	})
	if err != nil {
		log.Error("smtp client unavailable, notifications go to the log", "error", err)
		ln := notify.NewLogNotifier(log)
		return ln, ln, ln
	}
	return mailer, mailer, mailer
}

// bootstrapAdmin makes sure the configured administrator can log in. An
// already-provisioned admin is left untouched.
func bootstrapAdmin(ctx context.Context, authService *auth.Service, log *slog.Logger) error {
	email := os.Getenv("ADMIN_EMAIL")
	password := os.Getenv("ADMIN_PASSWORD")
	if email == "" || password == "" {
		log.Warn("ADMIN_EMAIL/ADMIN_PASSWORD not set, skipping admin bootstrap")
		return nil
	}

	if _, err := authService.CreateAdmin(ctx, email, password); err != nil {
		if errors.Is(err, auth.ErrDuplicateUserName) {
			return nil
		}
		return err
	}
	log.Info("admin identity created", "email", email)
	return nil
}
