// README: Runner and check cases; environment, order lifecycle over HTTP, concurrency and throughput.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const (
	StatusPass = "PASS"
	StatusFail = "FAIL"
	StatusSkip = "SKIP"
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client

	// orderID is the order walked through the lifecycle cases.
	orderID string
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))

	for _, tc := range tests {
		res := tc.Run(ctx, r)
		res.Name = tc.Name
		results = append(results, res)
		fmt.Printf("%-5s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}

	return results
}

func (r *Runner) cases() []TestCase {
	return []TestCase{
		{Name: "Env: Postgres connect", Run: checkPostgres},
		{Name: "Env: Redis connect", Run: checkRedis},
		{Name: "Migration: apply (optional)", Run: applyMigrations},
		{Name: "Migration: tables exist", Run: checkTables},
		{Name: "API: health", Run: func(ctx context.Context, r *Runner) Result {
			res := r.call(ctx, http.MethodGet, "/health", "", nil)
			return expect(res, http.StatusOK)
		}},

		{Name: "Order: unauthenticated -> 401", Run: func(ctx context.Context, r *Runner) Result {
			return expect(r.call(ctx, http.MethodPost, "/api/orders", "", r.createBody(r.cfg.PackageType)), http.StatusUnauthorized)
		}},
		{Name: "Order: unknown package -> 400", Run: func(ctx context.Context, r *Runner) Result {
			return expect(r.call(ctx, http.MethodPost, "/api/orders", r.cfg.ClientID, r.createBody("nope")), http.StatusBadRequest)
		}},
		{Name: "Order: client creates draft", Run: func(ctx context.Context, r *Runner) Result {
			id, res := r.createOrder(ctx)
			r.orderID = id
			return res
		}},
		{Name: "Order: stranger cannot read -> 403", Run: r.onOrder(func(ctx context.Context, id string) Result {
			return expect(r.call(ctx, http.MethodGet, "/api/orders/"+id, "stranger", nil), http.StatusForbidden)
		})},
		{Name: "Order: checkout returns payment link", Run: r.onOrder(func(ctx context.Context, id string) Result {
			res := r.call(ctx, http.MethodPost, "/api/orders/"+id+"/checkout", r.cfg.ClientID, nil)
			if out := expect(res, http.StatusOK); out.Status != StatusPass {
				return out
			}
			if !bytes.Contains(res.body, []byte("paymentUrl")) {
				return Result{Status: StatusFail, Latency: res.latency, Note: "no paymentUrl (is a gateway configured?)"}
			}
			return Result{Status: StatusPass, Latency: res.latency}
		})},
		{Name: "Payment: webhook confirms payment", Run: r.onOrder(func(ctx context.Context, id string) Result {
			return r.pay(ctx, id)
		})},
		{Name: "Order: client cannot accept -> 403", Run: r.onOrder(func(ctx context.Context, id string) Result {
			return expect(r.call(ctx, http.MethodPost, "/api/orders/"+id+"/accept", r.cfg.ClientID, nil), http.StatusForbidden)
		})},
		{Name: "Order: freelancer accepts", Run: r.onOrder(func(ctx context.Context, id string) Result {
			return expect(r.call(ctx, http.MethodPost, "/api/orders/"+id+"/accept", r.cfg.FreelancerID, nil), http.StatusOK)
		})},
		{Name: "Order: freelancer delivers", Run: r.onOrder(func(ctx context.Context, id string) Result {
			body := map[string]any{"message": "first draft", "files": []string{"https://example.com/v1.png"}}
			return expect(r.call(ctx, http.MethodPost, "/api/orders/"+id+"/deliver", r.cfg.FreelancerID, body), http.StatusOK)
		})},
		{Name: "Revision: client requests revision", Run: r.onOrder(func(ctx context.Context, id string) Result {
			body := map[string]any{"message": "bigger font"}
			return expect(r.call(ctx, http.MethodPost, "/api/orders/"+id+"/revisions", r.cfg.ClientID, body), http.StatusOK)
		})},
		{Name: "Revision: freelancer redelivers", Run: r.onOrder(func(ctx context.Context, id string) Result {
			body := map[string]any{"message": "second draft"}
			return expect(r.call(ctx, http.MethodPost, "/api/orders/"+id+"/revisions/complete", r.cfg.FreelancerID, body), http.StatusOK)
		})},
		{Name: "Order: client completes", Run: r.onOrder(func(ctx context.Context, id string) Result {
			return expect(r.call(ctx, http.MethodPost, "/api/orders/"+id+"/complete", r.cfg.ClientID, nil), http.StatusOK)
		})},
		{Name: "Order: completed cannot transition -> 409", Run: r.onOrder(func(ctx context.Context, id string) Result {
			body := map[string]any{"reason": "too late"}
			return expect(r.call(ctx, http.MethodPost, "/api/orders/"+id+"/cancel", r.cfg.ClientID, body), http.StatusConflict)
		})},
		{Name: "Order: history readable", Run: r.onOrder(func(ctx context.Context, id string) Result {
			return expect(r.call(ctx, http.MethodGet, "/api/orders/"+id+"/history", r.cfg.FreelancerID, nil), http.StatusOK)
		})},
		{Name: "Order: list with details", Run: func(ctx context.Context, r *Runner) Result {
			return expect(r.call(ctx, http.MethodGet, "/api/orders?role=client&details=true", r.cfg.ClientID, nil), http.StatusOK)
		}},

		{Name: "Concurrency: multi accept same order", Run: concurrentAccept},
		{Name: "Perf: create order throughput", Run: perfCreate},
	}
}

type response struct {
	status  int
	body    []byte
	latency time.Duration
	err     error
}

// call sends a JSON request; uid becomes a dev:<uid> bearer token.
func (r *Runner) call(ctx context.Context, method, path, uid string, body any) response {
	var reader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
	if err != nil {
		return response{err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if uid != "" {
		req.Header.Set("Authorization", "Bearer dev:"+uid)
	}
	start := time.Now()
	resp, err := r.httpc.Do(req)
	if err != nil {
		return response{err: err}
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return response{status: resp.StatusCode, body: b, latency: time.Since(start)}
}

func expect(res response, want int) Result {
	if res.err != nil {
		return Result{Status: StatusFail, Note: res.err.Error()}
	}
	if res.status != want {
		return Result{Status: StatusFail, Latency: res.latency, Note: fmt.Sprintf("status=%d want=%d body=%s", res.status, want, truncate(res.body))}
	}
	return Result{Status: StatusPass, Latency: res.latency, Note: fmt.Sprintf("status=%d", res.status)}
}

func truncate(b []byte) string {
	if len(b) > 160 {
		return string(b[:160]) + "..."
	}
	return string(b)
}

// onOrder skips a lifecycle case when the order could not be created.
func (r *Runner) onOrder(fn func(ctx context.Context, id string) Result) func(ctx context.Context, r *Runner) Result {
	return func(ctx context.Context, r *Runner) Result {
		if r.orderID == "" {
			return Result{Status: StatusSkip, Note: "no order from the create case"}
		}
		return fn(ctx, r.orderID)
	}
}

func (r *Runner) createBody(pkg string) map[string]any {
	return map[string]any{"gigId": r.cfg.GigID, "packageType": pkg, "requirements": "bench"}
}

func (r *Runner) createOrder(ctx context.Context) (string, Result) {
	res := r.call(ctx, http.MethodPost, "/api/orders", r.cfg.ClientID, r.createBody(r.cfg.PackageType))
	out := expect(res, http.StatusCreated)
	if out.Status != StatusPass {
		return "", out
	}
	var o struct {
		ID          string `json:"id"`
		OrderNumber string `json:"orderNumber"`
	}
	if err := json.Unmarshal(res.body, &o); err != nil || o.ID == "" {
		return "", Result{Status: StatusFail, Note: "create response has no id"}
	}
	out.Note = o.OrderNumber
	return o.ID, out
}

// pay checks out and posts the mock payment id to the webhook.
func (r *Runner) pay(ctx context.Context, id string) Result {
	if r.cfg.WebhookToken == "" {
		return Result{Status: StatusSkip, Note: "PAYMENT_WEBHOOK_TOKEN not set"}
	}
	res := r.call(ctx, http.MethodPost, "/api/orders/"+id+"/checkout", r.cfg.ClientID, nil)
	if out := expect(res, http.StatusOK); out.Status != StatusPass {
		return out
	}
	var checkout struct {
		PaymentURL string `json:"paymentUrl"`
	}
	_ = json.Unmarshal(res.body, &checkout)
	u, err := url.Parse(checkout.PaymentURL)
	if err != nil || u.Query().Get("payment_id") == "" {
		return Result{Status: StatusSkip, Note: "payment link is not a mock link"}
	}
	body := map[string]any{"type": "payment", "data": map[string]string{"id": u.Query().Get("payment_id")}}
	res = r.call(ctx, http.MethodPost, "/webhooks/payments?token="+url.QueryEscape(r.cfg.WebhookToken), "", body)
	out := expect(res, http.StatusOK)
	if out.Status == StatusPass && !bytes.Contains(res.body, []byte(`"applied":true`)) {
		return Result{Status: StatusFail, Latency: res.latency, Note: "payment not applied: " + truncate(res.body)}
	}
	return out
}

func checkPostgres(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: StatusSkip, Note: "db not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.db.Ping(ctx); err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	return Result{Status: StatusPass}
}

func checkRedis(ctx context.Context, r *Runner) Result {
	if r.redis == nil {
		return Result{Status: StatusSkip, Note: "redis not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	return Result{Status: StatusPass}
}

func applyMigrations(ctx context.Context, r *Runner) Result {
	if !r.cfg.ApplyMigration {
		return Result{Status: StatusSkip, Note: "apply-migration=false"}
	}
	if r.db == nil {
		return Result{Status: StatusFail, Note: "db not configured"}
	}
	files, err := filepath.Glob(r.cfg.Migrations)
	if err != nil || len(files) == 0 {
		return Result{Status: StatusFail, Note: "no migrations match " + r.cfg.Migrations}
	}
	for _, f := range files {
		sql, err := os.ReadFile(f)
		if err != nil {
			return Result{Status: StatusFail, Note: err.Error()}
		}
		for _, s := range splitSQL(string(sql)) {
			if _, err := r.db.Exec(ctx, s); err != nil {
				return Result{Status: StatusFail, Note: fmt.Sprintf("%s: %v", filepath.Base(f), err)}
			}
		}
	}
	return Result{Status: StatusPass, Note: fmt.Sprintf("%d files", len(files))}
}

func checkTables(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: StatusSkip, Note: "db not configured"}
	}
	tables, err := extractTables(r.cfg.Migrations)
	if err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	for _, t := range tables {
		var exists bool
		err := r.db.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)",
			t,
		).Scan(&exists)
		if err != nil {
			return Result{Status: StatusFail, Note: err.Error()}
		}
		if !exists {
			return Result{Status: StatusFail, Note: "missing table: " + t}
		}
	}
	return Result{Status: StatusPass, Note: strings.Join(tables, ",")}
}

// concurrentAccept races accepts on one paid order; exactly one may win.
func concurrentAccept(ctx context.Context, r *Runner) Result {
	id, res := r.createOrder(ctx)
	if res.Status != StatusPass {
		return res
	}
	if res := r.pay(ctx, id); res.Status != StatusPass {
		return res
	}

	var wg sync.WaitGroup
	var succ, conflict atomic.Int32
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := r.call(ctx, http.MethodPost, "/api/orders/"+id+"/accept", r.cfg.FreelancerID, nil)
			switch res.status {
			case http.StatusOK:
				succ.Add(1)
			case http.StatusConflict:
				conflict.Add(1)
			}
		}()
	}
	wg.Wait()

	note := fmt.Sprintf("success=%d conflict=%d", succ.Load(), conflict.Load())
	if succ.Load() != 1 {
		return Result{Status: StatusFail, Note: note}
	}
	return Result{Status: StatusPass, Note: note}
}

func perfCreate(ctx context.Context, r *Runner) Result {
	end := time.Now().Add(r.cfg.Duration)
	var count, errCount atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				res := r.call(ctx, http.MethodPost, "/api/orders", r.cfg.ClientID, r.createBody(r.cfg.PackageType))
				if res.err != nil || res.status != http.StatusCreated {
					errCount.Add(1)
					continue
				}
				count.Add(1)
			}
		}()
	}
	wg.Wait()

	if count.Load() == 0 {
		return Result{Status: StatusFail, Note: "no requests completed"}
	}
	rps := float64(count.Load()) / r.cfg.Duration.Seconds()
	return Result{Status: StatusPass, Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount.Load())}
}

var createTableRe = regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)

func extractTables(pattern string) ([]string, error) {
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	var tables []string
	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			return nil, err
		}
		for _, m := range createTableRe.FindAllStringSubmatch(string(b), -1) {
			tables = append(tables, m[1])
		}
	}
	return tables, nil
}

func splitSQL(sql string) []string {
	lines := strings.Split(sql, "\n")
	filtered := make([]string, 0, len(lines))
	for _, line := range lines {
		l := strings.TrimSpace(line)
		if strings.HasPrefix(l, "--") || l == "" {
			continue
		}
		filtered = append(filtered, line)
	}
	cleaned := strings.Join(filtered, "\n")
	parts := strings.Split(cleaned, ";")
	stmts := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}
