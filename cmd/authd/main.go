// Command authd runs the authentication service over HTTP.
//
// Configuration comes from the environment:
//
//	AUTHD_ADDR              listen address (default :8080)
//	AUTHD_REDIS_ADDR        redis address (default 127.0.0.1:6379)
//	AUTHD_PG_DSN            optional postgres DSN; when set, credentials
//	                        live in postgres instead of redis
//	AUTHD_SIGNING_METHOD    "hs256" (default) or "ed25519"
//	AUTHD_TOKEN_SECRET      hs256 secret, at least 32 bytes
//	AUTHD_PRIVATE_KEY_FILE  ed25519 private key (PEM or raw)
//	AUTHD_PUBLIC_KEY_FILE   ed25519 public key (PEM or raw)
//
// One-time codes are written to the audit log; production deployments
// replace the sink with their mail or SMS transport.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	authgate "github.com/authgate/authgate"
	"github.com/authgate/authgate/internal/httpapi"
	"github.com/authgate/authgate/postgres"
	"github.com/redis/go-redis/v9"
)

var version = "0.1.0"

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	addr := envOr("AUTHD_ADDR", ":8080")

	rdb := redis.NewClient(&redis.Options{
		Addr: envOr("AUTHD_REDIS_ADDR", "127.0.0.1:6379"),
	})
	defer rdb.Close()

	cfg, err := tokenConfigFromEnv(authgate.DefaultConfig())
	if err != nil {
		return err
	}

	builder := authgate.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCodeSink(authgate.CodeSinkFunc(logCodeSink)).
		WithAuditSink(authgate.NewJSONWriterSink(os.Stdout))

	probe := httpapi.ReadyProbe{Redis: rdb}
	if dsn := os.Getenv("AUTHD_PG_DSN"); dsn != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		store, err := postgres.Open(ctx, dsn)
		cancel()
		if err != nil {
			return err
		}
		defer store.Close()

		builder = builder.WithCredentialStore(store)
	}

	engine, err := builder.Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	api := httpapi.New(engine, probe, version)

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("authd %s listening on %s", version, addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-stop:
	}

	log.Println("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// logCodeSink is the development delivery transport. The code still counts
// as delivered out of band because it never appears in HTTP responses.
func logCodeSink(_ context.Context, email, code string) error {
	log.Printf("2fa code for %s: %s", email, code)
	return nil
}

func tokenConfigFromEnv(cfg authgate.Config) (authgate.Config, error) {
	cfg.Token.SigningMethod = envOr("AUTHD_SIGNING_METHOD", "hs256")

	switch cfg.Token.SigningMethod {
	case "hs256":
		cfg.Token.PrivateKey = []byte(os.Getenv("AUTHD_TOKEN_SECRET"))
	case "ed25519":
		priv, err := os.ReadFile(os.Getenv("AUTHD_PRIVATE_KEY_FILE"))
		if err != nil {
			return cfg, err
		}
		pub, err := os.ReadFile(os.Getenv("AUTHD_PUBLIC_KEY_FILE"))
		if err != nil {
			return cfg, err
		}
		cfg.Token.PrivateKey = priv
		cfg.Token.PublicKey = pub
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
