package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"motocare/backend/internal/cache"
	"motocare/backend/internal/config"
	"motocare/backend/internal/diagnose"
	"motocare/backend/internal/httpapi"
	"motocare/backend/internal/service"
	"motocare/backend/internal/store"
	"motocare/backend/internal/store/memory"
	pgstore "motocare/backend/internal/store/postgres"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("dotenv: %v", err)
	}

	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Println("repository: postgres")
	} else if cfg.RedisAddr != "" {
		kv := cache.NewRedisKV(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := kv.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using in-memory store without snapshots", err)
			repo = memory.NewSeeded()
		} else {
			repo = memory.NewFromKV(ctx, kv)
			closers = append(closers, kv.Close)
			log.Println("repository: in-memory with redis snapshots")
		}
	} else {
		repo = memory.NewSeeded()
		log.Println("repository: in-memory")
	}

	var assistant service.DiagnosisAssistant
	if cfg.OpenAIAPIKey != "" {
		assistant = diagnose.New(cfg.OpenAIAPIKey, cfg.OpenAIModel)
		log.Println("ai assistant: enabled")
	} else {
		log.Println("ai assistant: disabled (OPENAI_API_KEY not set)")
	}

	svc := service.New(repo, assistant)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, svc)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("motocare backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	return nil
}
