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

	"github.com/savegress/medledger/internal/api"
	"github.com/savegress/medledger/internal/audit"
	"github.com/savegress/medledger/internal/cache"
	"github.com/savegress/medledger/internal/config"
	"github.com/savegress/medledger/internal/ledger"
	"github.com/savegress/medledger/internal/roles"
	"github.com/savegress/medledger/internal/tx"
	"github.com/savegress/medledger/internal/validate"
	"github.com/savegress/medledger/internal/viewstate"
	"github.com/savegress/medledger/internal/wallet"
	"github.com/savegress/medledger/internal/websocket"
)

func main() {
	// Load .env if present, then configuration
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if cfg.ContractAddress == "" {
		log.Fatal("CONTRACT_ADDRESS is required")
	}
	if err := validate.Address(cfg.ContractAddress); err != nil {
		log.Fatalf("Invalid CONTRACT_ADDRESS: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Record cache
	recordCache, err := cache.New(&cache.Config{
		URL:     cfg.RedisURL,
		Enabled: cfg.CacheEnabled,
	})
	if err != nil {
		log.Fatalf("Failed to connect to cache: %v", err)
	}
	defer recordCache.Close()

	// Audit trail, persisted when a database is configured
	var sink audit.Sink
	if cfg.AuditEnabled && cfg.DatabaseURL != "" {
		repo, err := audit.NewRepository(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to audit database: %v", err)
		}
		defer repo.Close()
		sink = repo
	}
	trail := audit.NewLogger(sink)
	trail.Start(ctx)
	defer trail.Stop()

	// Ledger stack
	client := ledger.New(cfg.LedgerRPCURL, cfg.ContractAddress)
	signer := wallet.NewRPCSigner(cfg.SignerRPCURL)
	sessions := wallet.NewManager(signer, cfg.AccountPollInterval)
	resolver := roles.NewResolver(client)
	orch := tx.NewOrchestrator(client, trail, cfg.ConfirmationTimeout, cfg.ReceiptPollInterval)
	sync := viewstate.New(sessions, client, resolver, orch, recordCache)

	sessions.Start(ctx)
	defer sessions.Stop()

	// Live snapshot push
	hub := websocket.NewHub()
	go hub.Run()
	defer hub.Stop()
	sync.SetPublisher(hub.PublishViewState)

	// HTTP surface
	router := api.NewRouter(cfg, sync, hub)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.ConfirmationTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("MedLedger gateway starting on port %d (contract %s)", cfg.Port, cfg.ContractAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited properly")
}
