package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"roast-arena/server/game"
	"roast-arena/server/roast"
	"roast-arena/server/scrape"
	"roast-arena/server/store"
)

type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	AutoMigrate bool   `env:"AUTO_MIGRATE"`

	RoastModel string `env:"ROAST_MODEL" envDefault:"gpt-4o-mini"`
	JudgeModel string `env:"JUDGE_MODEL" envDefault:"gpt-4o-mini"`

	GenerateTimeout time.Duration `env:"GENERATE_TIMEOUT" envDefault:"40s"`
	JudgeTimeout    time.Duration `env:"JUDGE_TIMEOUT" envDefault:"30s"`
	ScrapeTimeout   time.Duration `env:"SCRAPE_TIMEOUT" envDefault:"15s"`
	FallbackDamage  int           `env:"FALLBACK_DAMAGE" envDefault:"10"`
}

// Tries: env var file, ./secrets/openai_api_key.txt, ./server/openai_api_key.txt,
// ./openai_api_key.txt, and /run/secrets/openai_api_key.
func loadAPIKeyFromSecret() {
	if os.Getenv("OPENAI_API_KEY") != "" {
		return
	}
	var candidates []string
	if p := os.Getenv("OPENAI_API_KEY_FILE"); strings.TrimSpace(p) != "" {
		candidates = append(candidates, p)
	}
	candidates = append(candidates,
		"./secrets/openai_api_key.txt",
		"server/openai_api_key.txt",
		"./server/openai_api_key.txt",
		"./openai_api_key.txt",
		"/run/secrets/openai_api_key",
	)
	for _, path := range candidates {
		if b, err := os.ReadFile(path); err == nil {
			key := strings.TrimSpace(string(b))
			if key != "" {
				os.Setenv("OPENAI_API_KEY", key)
				return
			}
		}
	}
}

func mustEnv(keys ...string) {
	for _, k := range keys {
		if os.Getenv(k) == "" {
			log.Fatalf("Missing required env var %s. Put it in .env (dev) or set it on the host (prod).", k)
		}
	}
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	_ = godotenv.Load()
	loadAPIKeyFromSecret()

	var migrate bool
	for _, a := range os.Args[1:] {
		if a == "--migrate" {
			migrate = true
		}
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Only require the key when not doing a pure DB migrate.
	if !migrate {
		mustEnv("OPENAI_API_KEY")
	}

	// The archive db is optional. Live games never depend on it, so any
	// failure here only disables the history and leaderboard endpoints.
	var db *store.DB
	if cfg.DatabaseURL != "" {
		p, err := store.Open(cfg.DatabaseURL)
		if err != nil {
			log.Printf("archive disabled (open failed): %v", err)
		} else {
			db = p
			defer db.Close(context.Background())
			if migrate || cfg.AutoMigrate {
				if err := store.Migrate(context.Background(), db); err != nil {
					if migrate {
						log.Fatal(err)
					}
					log.Printf("migrate failed (continuing without archive): %v", err)
					db = nil
				} else {
					log.Println("migrated")
				}
			}
		}
	} else if migrate {
		log.Fatal("--migrate requires DATABASE_URL")
	}
	if migrate {
		return
	}

	fetcher := scrape.NewFetcher(cfg.ScrapeTimeout)
	svc := roast.NewService(cfg.RoastModel, cfg.JudgeModel)
	orc := game.NewOrchestrator(game.OrchestratorOptions{
		Store:           game.NewStore(),
		Fetcher:         fetcher,
		Generator:       svc,
		Judge:           svc,
		GenerateTimeout: cfg.GenerateTimeout,
		JudgeTimeout:    cfg.JudgeTimeout,
		FetchTimeout:    cfg.ScrapeTimeout,
		FallbackDamage:  cfg.FallbackDamage,
	})

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     Router(orc, fetcher, db),
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: the live SSE stream stays open until the client leaves.
	}

	go func() {
		log.Printf("listening on http://localhost:%s (Ctrl+C to stop)", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
