package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SagarKapoorin/ClickPe/internal/api"
	"github.com/SagarKapoorin/ClickPe/internal/config"
	"github.com/SagarKapoorin/ClickPe/internal/core"
	"github.com/SagarKapoorin/ClickPe/internal/store"
	"github.com/SagarKapoorin/ClickPe/internal/web"
)

func main() {
	cfg := config.Load()

	// Setup logging
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if cfg.LogLevel == "DEBUG" {
		log.Println("Service starting in DEBUG mode")
	}

	// Command line flag for product seeding
	seedFile := flag.String("seed", "", "Load products from a JSON file and exit")
	flag.Parse()

	// Initialize database store (Postgres or SQLite, by DATABASE_URL)
	dbStore, err := store.Open(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer dbStore.Close()

	// Handle product seeding if flag is set
	if *seedFile != "" {
		log.Printf("Seeding products from %s...", *seedFile)
		numSeeded, err := store.SeedFromFile(context.Background(), dbStore, *seedFile)
		if err != nil {
			log.Fatalf("Product seeding failed: %v", err)
		}
		log.Printf("Seeding complete. Upserted %d products. Exiting.", numSeeded)
		os.Exit(0)
	}

	// Pick the completion provider. With no API key configured the ask
	// service answers from the local fallback only.
	var completer core.Completer
	switch {
	case cfg.OpenAIAPIKey != "":
		completer = core.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
		log.Printf("Using OpenAI completion provider (model %s)", cfg.OpenAIModel)
	case cfg.GeminiAPIKey != "":
		geminiClient, err := core.NewGeminiClient(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.Fatalf("Failed to initialize Gemini client: %v", err)
		}
		defer geminiClient.Close()
		completer = geminiClient
		log.Printf("Using Gemini completion provider (model %s)", cfg.GeminiModel)
	}

	// Initialize services and handlers
	askService := core.NewAskService(dbStore, completer)

	renderer, err := web.NewRenderer()
	if err != nil {
		log.Fatalf("Failed to load page templates: %v", err)
	}

	apiHandler := api.NewAPIHandler(askService, dbStore, cfg)
	pageHandler := api.NewPageHandler(dbStore, renderer)
	router := api.NewRouter(apiHandler, pageHandler, cfg.MaxRequestBody)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // Completion calls can take time
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		log.Printf("Starting server on %s. Press Ctrl+C to quit.", serverAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", serverAddr, err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give active connections time to finish.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting gracefully")
}
