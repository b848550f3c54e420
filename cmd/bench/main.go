// README: Smoke and load runner against a running gigmarket-api; executes HTTP/DB/Redis checks and prints results.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
)

// Config targets a server started with ORDER_STORE=memory, PAYMENT_GATEWAY_MOCK=true
// and DIRECTORY_FILE=cmd/bench/directory.json, so dev:<uid> tokens are accepted.
// Env vars set the defaults; flags override them.
type Config struct {
	BaseURL        string        `env:"BENCH_BASE_URL" envDefault:"http://localhost:8080"`
	DSN            string        `env:"DB_DSN"`
	RedisAddr      string        `env:"REDIS_ADDR"`
	Migrations     string        `env:"BENCH_MIGRATIONS" envDefault:"migrations/*.sql"`
	ApplyMigration bool          `env:"BENCH_APPLY_MIGRATION"`
	Strict         bool          `env:"BENCH_STRICT"`
	Timeout        time.Duration `env:"BENCH_TIMEOUT" envDefault:"60s"`
	Concurrency    int           `env:"BENCH_CONCURRENCY" envDefault:"20"`
	Duration       time.Duration `env:"BENCH_DURATION" envDefault:"10s"`

	GigID        string `env:"BENCH_GIG_ID" envDefault:"gig-logo"`
	PackageType  string `env:"BENCH_PACKAGE" envDefault:"basic"`
	ClientID     string `env:"BENCH_CLIENT_ID" envDefault:"client-1"`
	FreelancerID string `env:"BENCH_FREELANCER_ID" envDefault:"freelancer-1"`
	WebhookToken string `env:"PAYMENT_WEBHOOK_TOKEN"`
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "bench:", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	results := NewRunner(cfg).RunAll(ctx)
	counts := map[string]int{}
	for _, r := range results {
		counts[r.Status]++
	}
	fmt.Printf("\n== Summary ==\nPASS=%d FAIL=%d SKIP=%d\n", counts[StatusPass], counts[StatusFail], counts[StatusSkip])

	if counts[StatusFail] > 0 || (cfg.Strict && counts[StatusSkip] > 0) {
		os.Exit(1)
	}
}

func loadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	flag.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "API base URL")
	flag.StringVar(&cfg.DSN, "dsn", cfg.DSN, "Postgres DSN (event ledger); empty skips DB checks")
	flag.StringVar(&cfg.RedisAddr, "redis", cfg.RedisAddr, "Redis address; empty skips Redis checks")
	flag.StringVar(&cfg.Migrations, "migrations", cfg.Migrations, "Migration SQL glob")
	flag.BoolVar(&cfg.ApplyMigration, "apply-migration", cfg.ApplyMigration, "Apply migrations before tests")
	flag.BoolVar(&cfg.Strict, "strict", cfg.Strict, "Fail on skipped checks")
	flag.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Total timeout")
	flag.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "Concurrency for race and perf checks")
	flag.DurationVar(&cfg.Duration, "duration", cfg.Duration, "Duration for perf checks")
	flag.StringVar(&cfg.GigID, "gig", cfg.GigID, "Gig to order")
	flag.StringVar(&cfg.PackageType, "package", cfg.PackageType, "Package to order")
	flag.StringVar(&cfg.ClientID, "client", cfg.ClientID, "Client uid")
	flag.StringVar(&cfg.FreelancerID, "freelancer", cfg.FreelancerID, "Freelancer uid owning the gig")
	flag.StringVar(&cfg.WebhookToken, "webhook-token", cfg.WebhookToken, "Payment webhook token")
	flag.Parse()
	if cfg.Concurrency < 1 {
		return cfg, fmt.Errorf("concurrency must be positive, got %d", cfg.Concurrency)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return cfg, nil
}
