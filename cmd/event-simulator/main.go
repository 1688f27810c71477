// Package main provides a load generator that posts synthetic security
// events to a running audit server.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/audit-engine/go-core/internal/events"
)

var (
	sourceIPs = []string{
		"203.0.113.45", "198.51.100.23", "192.0.2.89", "203.0.113.156",
		"198.51.100.78", "192.0.2.234", "203.0.113.210", "198.51.100.145",
		"192.0.2.67", "203.0.113.99",
	}
	paths = []string{
		"/api/login", "/api/users", "/api/users/profile",
		"/api/payment/process", "/admin/config", "/admin/users",
		"/api/products", "/api/orders", "/api/auth/reset-password",
		"/api/data/export",
	}
	methods  = []string{"GET", "POST", "PUT", "DELETE", "PATCH"}
	services = []string{
		"auth-service", "api-gateway", "payment-service", "user-service",
		"admin-service", "product-service", "order-service",
		"notification-service",
	}
	simRules = []struct{ id, name string }{
		{"CADE-00123", "SQL Injection Attempt"},
		{"CADE-00124", "Brute Force Login"},
		{"CADE-00125", "XSS Attempt"},
		{"CADE-00126", "Path Traversal Attack"},
		{"CADE-00127", "API Rate Limit Exceeded"},
		{"CADE-00128", "Suspicious File Upload"},
		{"CADE-00129", "Command Injection"},
		{"CADE-00130", "Authentication Bypass Attempt"},
	}
	severities   = []events.Severity{events.SeverityLow, events.SeverityMedium, events.SeverityHigh, events.SeverityCritical}
	dispositions = []events.Disposition{events.DispositionAllowed, events.DispositionBlocked}
	countries    = []string{"SG", "US", "CN", "IN", "JP", "GB", "DE", "FR", "AU", "BR"}
	environments = []string{"dev", "staging", "prod"}
)

func main() {
	var (
		apiURL   = flag.String("url", "http://localhost:8080", "Audit server base URL")
		interval = flag.Duration("interval", 500*time.Millisecond, "Delay between events")
		username = flag.String("username", "simulator", "Login username")
		password = flag.String("password", "", "Login password (or SIMULATOR_PASSWORD)")
	)
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	pass := *password
	if pass == "" {
		pass = os.Getenv("SIMULATOR_PASSWORD")
	}
	if pass == "" {
		logger.Fatal("password is required (flag -password or SIMULATOR_PASSWORD)")
	}

	client := &http.Client{Timeout: 5 * time.Second}

	token, err := login(client, *apiURL, *username, pass)
	if err != nil {
		logger.Fatal("login failed", zap.Error(err))
	}
	logger.Info("simulator started",
		zap.String("url", *apiURL),
		zap.Duration("interval", *interval),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	var sent, failed int
	for {
		select {
		case <-sigChan:
			logger.Info("simulator stopped", zap.Int("sent", sent), zap.Int("failed", failed))
			return
		case <-ticker.C:
			e := generateEvent()
			if err := postEvent(client, *apiURL, token, e); err != nil {
				failed++
				logger.Warn("event rejected", zap.String("id", e.ID), zap.Error(err))

				// Token may have expired; try once to refresh.
				if t, lerr := login(client, *apiURL, *username, pass); lerr == nil {
					token = t
				}
				continue
			}
			sent++
			logger.Debug("event sent",
				zap.String("id", e.ID),
				zap.String("rule", e.RuleName),
				zap.String("severity", string(e.Severity)),
			)
		}
	}
}

func generateEvent() *events.Event {
	rule := simRules[rand.Intn(len(simRules))]
	return &events.Event{
		ID:        "evt_" + uuid.NewString(),
		TS:        time.Now().UTC(),
		SourceIP:  pick(sourceIPs),
		Path:      pick(paths),
		Method:    pick(methods),
		Service:   pick(services),
		RuleID:    rule.id,
		RuleName:  rule.name,
		Severity:  severities[rand.Intn(len(severities))],
		Action:    dispositions[rand.Intn(len(dispositions))],
		LatencyMs: randomLatency(),
		Country:   pick(countries),
		Env:       pick(environments),
	}
}

func pick(pool []string) string {
	return pool[rand.Intn(len(pool))]
}

// randomLatency skews fast: most requests land in 50-200ms with a slow
// tail up to a second.
func randomLatency() int {
	if rand.Float64() < 0.8 {
		return 50 + rand.Intn(150)
	}
	return 200 + rand.Intn(800)
}

func login(client *http.Client, apiURL, username, password string) (string, error) {
	body, _ := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})

	resp, err := client.Post(apiURL+"/v1/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("post login: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login returned %d", resp.StatusCode)
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}
	return out.Token, nil
}

func postEvent(client *http.Client, apiURL, token string, e *events.Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, apiURL+"/v1/events", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
	return nil
}
