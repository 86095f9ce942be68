package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pipiwyoux/midinaiver2/internal/config"
	"github.com/pipiwyoux/midinaiver2/internal/genai"
	"github.com/pipiwyoux/midinaiver2/internal/httpserver"
	"github.com/pipiwyoux/midinaiver2/internal/router"
	"github.com/pipiwyoux/midinaiver2/pkg/logger"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel)

	backend := router.NewGenAIBackend(genai.NewClient(cfg.GenAIKey, cfg.ChatModelID, cfg.ImageModelID, cfg.EditModelID))
	srv := httpserver.New(cfg, backend)

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           srv.Echo,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Infof("server listening on %s", cfg.HTTPAddress)
		serverErrors <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server error: %v", err)
		}
	case sig := <-sigChan:
		logger.Infof("shutdown signal received: %v", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("graceful shutdown failed: %v", err)
		_ = server.Close()
	}
}
