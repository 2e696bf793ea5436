package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"assistant-backend/cmd"
	"assistant-backend/internal/api"
	"assistant-backend/internal/chat"
	"assistant-backend/internal/core"
	"assistant-backend/internal/database"
	"assistant-backend/internal/gateway"
	"assistant-backend/internal/memory"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type APIConfig struct {
	DatabaseURL   string `env:"DATABASE_URL" envDefault:"assistant.db"`
	MemoryBackend string `env:"MEMORY_BACKEND" envDefault:"database"`
	BadgerPath    string `env:"BADGER_PATH" envDefault:"memory-store"`

	LLMProvider  string        `env:"LLM_PROVIDER" envDefault:"ollama"`
	OpenAIAPIKey string        `env:"OPENAI_API_KEY"`
	OllamaURL    string        `env:"OLLAMA_URL" envDefault:"http://localhost:11434"`
	Model        string        `env:"MODEL" envDefault:"llama3"`
	LLMTimeout   time.Duration `env:"LLM_TIMEOUT" envDefault:"60s"`

	ContextTokenLimit int           `env:"CONTEXT_TOKEN_LIMIT" envDefault:"4000"`
	FetchTimeout      time.Duration `env:"FETCH_TIMEOUT" envDefault:"15s"`

	APIPort     string   `env:"API_PORT" envDefault:"8001"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`
}

func main() {
	log.Println("Starting API Server...")

	cmd.LoadEnvFile()

	var cfg APIConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	var durable memory.Durable
	switch cfg.MemoryBackend {
	case "badger":
		tier, err := memory.NewBadgerTier(cfg.BadgerPath)
		if err != nil {
			log.Fatalf("Failed to open badger memory store: %v", err)
		}
		defer tier.Close()
		durable = tier
	case "database":
		durable = memory.NewDatabaseTier(db)
	default:
		log.Fatalf("Unknown memory backend %q", cfg.MemoryBackend)
	}

	var llm gateway.Gateway
	switch cfg.LLMProvider {
	case "openai":
		llm, err = gateway.NewOpenAI(cfg.OpenAIAPIKey, cfg.Model, cfg.LLMTimeout)
	case "ollama":
		llm, err = gateway.NewOllama(cfg.OllamaURL, cfg.Model, cfg.LLMTimeout)
	default:
		log.Fatalf("Unknown LLM provider %q", cfg.LLMProvider)
	}
	if err != nil {
		log.Fatalf("Failed to create model gateway: %v", err)
	}

	chatStore := chat.NewStore(db)
	sessionRouter := chat.NewSessionRouter(db, chatStore)
	memoryStore := memory.NewStore(durable)
	fetcher := memory.NewFetcher(memoryStore, cfg.FetchTimeout)

	assemblerOpts := core.DefaultOptions()
	assemblerOpts.TokenLimit = cfg.ContextTokenLimit
	assembler := core.NewAssembler(assemblerOpts)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-User-ID"},
		AllowCredentials: true,
	}))
	r.Get("/health", api.RestHandler(func(r *http.Request) (any, error) { return nil, nil }))

	// Everything below needs a resolved caller identity; health checks stay
	// outside so probes do not mint guest users.
	r.Group(func(r chi.Router) {
		r.Use(api.Identity(chatStore))

		chatService := api.NewChatService(chatStore, sessionRouter, memoryStore, assembler, llm)
		chatService.AddRoutes(r)

		memoryService := api.NewMemoryService(sessionRouter, memoryStore, fetcher)
		memoryService.AddRoutes(r)
	})

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: r,
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}
	}()

	log.Printf("API server listening on port %s", cfg.APIPort)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %s: %v\n", cfg.APIPort, err)
	}

	log.Println("Server stopped.")
}
