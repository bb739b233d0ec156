package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-session-auth/actiontoken"
	"github.com/jrsteele09/go-session-auth/auth"
	"github.com/jrsteele09/go-session-auth/identity"
	"github.com/jrsteele09/go-session-auth/internal/config"
	"github.com/jrsteele09/go-session-auth/notify"
	"github.com/jrsteele09/go-session-auth/server"
	"github.com/jrsteele09/go-session-auth/sessions"
	"github.com/jrsteele09/go-session-auth/storage/sqlite"
	"github.com/jrsteele09/go-session-auth/token"
	"github.com/rs/zerolog"
)

const sweepInterval = time.Hour

func main() {
	for {
		if err := run(); err != nil {
			log.Fatalf("Error running server: %s\n", err)
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Printf("Server stopped\n")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.New()
	if err != nil {
		return fmt.Errorf("config.New %w", err)
	}
	displayAppname(c.GetAppName())

	logger := newLogger(c)

	store, err := sqlite.Open(c.GetDatabasePath())
	if err != nil {
		return fmt.Errorf("sqlite.Open %w", err)
	}
	defer store.Close()

	authService, err := buildAuthService(c, store, logger)
	if err != nil {
		return err
	}

	srv, err := server.New(c, authService, logger)
	if err != nil {
		return fmt.Errorf("server.New %w", err)
	}

	httpServer := &http.Server{Addr: c.GetPort(), Handler: srv}
	go listenAndServe(httpServer, logger)

	stopSweep := startJanitor(store, logger)
	defer stopSweep()

	waitForStopSignal()
	returnError = shutdown(httpServer)
	return returnError
}

func buildAuthService(c config.Config, store *sqlite.Store, logger zerolog.Logger) (*auth.Service, error) {
	signer, err := newSigner(c)
	if err != nil {
		return nil, err
	}
	codec, err := token.NewCodec(signer, c.GetIssuer(), c.GetAudience(), c.GetAccessTokenTTL(),
		token.WithLeeway(c.GetClockSkew()))
	if err != nil {
		return nil, fmt.Errorf("token.NewCodec %w", err)
	}

	repos := store.Repos()

	sessionStore, err := sessions.NewStore(repos.Sessions, sessions.WithMaxAge(c.GetSessionMaxAge()))
	if err != nil {
		return nil, fmt.Errorf("sessions.NewStore %w", err)
	}

	actionTokens, err := actiontoken.NewStore(repos.ActionTokens)
	if err != nil {
		return nil, fmt.Errorf("actiontoken.NewStore %w", err)
	}

	options := []auth.ServiceOption{
		auth.WithLogger(logger),
		auth.WithRequireVerifiedLogin(c.GetRequireVerifiedLogin()),
		auth.WithActionTokenTTLs(c.GetVerifyTokenTTL(), c.GetResetTokenTTL(), c.GetEmailChangeTokenTTL()),
	}

	if c.GetGoogleClientID() != "" {
		verifier, err := identity.NewGoogleVerifier(context.Background(),
			c.GetGoogleClientID(), c.GetGoogleClientSecret(), c.GetBaseURL()+"/auth/google/callback")
		if err != nil {
			return nil, fmt.Errorf("identity.NewGoogleVerifier %w", err)
		}
		options = append(options, auth.WithIdentityVerifier(verifier))
	}

	return auth.NewService(repos, codec, sessionStore, actionTokens, newNotifier(c, logger), store, options...)
}

// newSigner prefers RS256 with a configured key pair and falls back to HMAC.
func newSigner(c config.Config) (token.Signer, error) {
	if pemKey := c.GetSigningPrivateKey(); pemKey != "" {
		keyPair, err := token.LoadKeyPairFromPEM(c.GetSigningKeyID(), pemKey)
		if err != nil {
			return nil, fmt.Errorf("token.LoadKeyPairFromPEM %w", err)
		}
		return token.NewKeyPairSigner(keyPair), nil
	}
	return token.NewHMACSigner(c.GetSigningSecret()), nil
}

func newNotifier(c config.Config, logger zerolog.Logger) notify.Notifier {
	if c.GetSmtpAccount() != "" {
		return notify.NewSMTPNotifier(c.GetSmtpHost(), c.GetSmtpPort(),
			c.GetSmtpAccount(), c.GetSmtpPassword(), c.GetBaseURL(), logger)
	}
	return notify.NewLogNotifier(logger)
}

func newLogger(c config.Config) zerolog.Logger {
	if c.GetEnv() == "DEV" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// startJanitor periodically deletes expired sessions and action tokens.
// Revoked-but-unexpired rows are kept until expiry so their fingerprints
// stay unresolvable rather than reusable.
func startJanitor(store *sqlite.Store, logger zerolog.Logger) (stop func()) {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				repos := store.Repos()
				now := time.Now()
				if err := repos.Sessions.DeleteExpired(now); err != nil {
					logger.Error().Err(err).Msg("session sweep failed")
				}
				if err := repos.ActionTokens.DeleteExpired(now); err != nil {
					logger.Error().Err(err).Msg("action token sweep failed")
				}
			}
		}
	}()
	return func() { close(done) }
}

func listenAndServe(server *http.Server, logger zerolog.Logger) {
	logger.Info().Str("addr", server.Addr).Msg("server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("server.ListenAndServe")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
