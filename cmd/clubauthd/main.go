// clubauthd serves the clubauth authentication API over HTTP.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clubsuite/clubauth"
	"github.com/clubsuite/clubauth/httpapi"
	"github.com/clubsuite/clubauth/internal/config"
	"github.com/clubsuite/clubauth/metricsexport"
	"github.com/clubsuite/clubauth/notify"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		cancel()
		log.Fatalf("redis: %v", err)
	}
	cancel()

	var notifier notify.Notifier = notify.NoOp{}
	if cfg.ResendAPIKey != "" {
		notifier, err = notify.NewResend(notify.ResendConfig{
			APIKey:    cfg.ResendAPIKey,
			FromName:  cfg.FromName,
			FromEmail: cfg.FromEmail,
			ResetURL:  cfg.ResetURL,
		})
		if err != nil {
			log.Fatalf("notify: %v", err)
		}
	}

	engineCfg := clubauth.Config{}
	engineCfg.Token.SigningKey = []byte(cfg.TokenSigningKey)
	engineCfg.Token.Issuer = cfg.TokenIssuer
	engineCfg.Token.AccessTTL = cfg.AccessTokenTTL()
	engineCfg.Token.RefreshTTL = cfg.RefreshTokenTTL()

	engine, err := clubauth.New().
		WithConfig(engineCfg).
		WithRedis(redisClient).
		WithPrincipalStore(clubauth.NewMemoryPrincipalStore()).
		WithNotifier(notifier).
		WithAuditSink(clubauth.NewJSONWriterSink(os.Stdout)).
		Build()
	if err != nil {
		log.Fatalf("engine: %v", err)
	}
	defer engine.Close()

	api := httpapi.NewServer(engine, httpapi.Config{
		InsecureCookies: cfg.InsecureCookies,
	})
	router := api.Router()
	router.Handle("/metrics", metricsexport.NewExporter(engine).Handler()).Methods(http.MethodGet)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("clubauthd listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	log.Println("stopped")
}
