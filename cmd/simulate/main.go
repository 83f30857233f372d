// simulate drives load against a running waitlist API: concurrent workers add
// entries and read the list while a single goroutine triggers assignment runs,
// verifying the run lock keeps overlapping triggers honest.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type SimConfig struct {
	APIBaseURL  string
	Duration    time.Duration
	Workers     int
	AddRatio    float64
	RunInterval time.Duration
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	mu        sync.Mutex
	latencies []time.Duration
}

func (om *OperationMetrics) Record(latency time.Duration, status int) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case status >= 200 && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.latencies = append(om.latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Percentile(p int) time.Duration {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.latencies) == 0 {
		return 0
	}

	sorted := make([]time.Duration, len(om.latencies))
	copy(sorted, om.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := len(sorted) * p / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

type Simulator struct {
	cfg    SimConfig
	client *http.Client
	logger zerolog.Logger

	adds  OperationMetrics
	lists OperationMetrics
	runs  OperationMetrics
}

func main() {
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Str("service", "simulate").Logger()

	cfg := SimConfig{
		APIBaseURL:  getEnv("SIM_API_URL", "http://127.0.0.1:8080"),
		Duration:    getDuration("SIM_DURATION", time.Minute),
		Workers:     getInt("SIM_WORKERS", 8),
		AddRatio:    0.7,
		RunInterval: getDuration("SIM_RUN_INTERVAL", 5*time.Second),
	}

	logger.Info().
		Str("api", cfg.APIBaseURL).
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Msg("simulator starting")

	sim := &Simulator{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sim.workerLoop(ctx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		sim.runTriggerLoop(ctx)
	}()

	wg.Wait()
	sim.report()
}

func (s *Simulator) workerLoop(ctx context.Context) {
	for ctx.Err() == nil {
		if rand.Float64() < s.cfg.AddRatio {
			s.addEntry(ctx)
		} else {
			s.listWaiting(ctx)
		}
	}
}

func (s *Simulator) runTriggerLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.triggerRun(ctx)
		}
	}
}

func (s *Simulator) addEntry(ctx context.Context) {
	priorities := []string{"high", "medium", "low"}
	times := []string{"09:00", "10:00", "11:00", "14:00", "15:00"}

	body := map[string]any{
		"patient_id":      uuid.NewString(),
		"priority":        priorities[rand.Intn(len(priorities))],
		"preferred_dates": []string{time.Now().AddDate(0, 0, 1+rand.Intn(14)).Format("2006-01-02")},
		"preferred_times": []string{times[rand.Intn(len(times))]},
	}

	status, elapsed := s.post(ctx, "/waitlist", body)
	s.adds.Record(elapsed, status)
}

func (s *Simulator) listWaiting(ctx context.Context) {
	start := time.Now()
	status := s.get(ctx, "/waitlist?status=waiting&limit=50")
	s.lists.Record(time.Since(start), status)
}

func (s *Simulator) triggerRun(ctx context.Context) {
	status, elapsed := s.post(ctx, "/assignments/run", nil)
	s.runs.Record(elapsed, status)
	if status == http.StatusConflict {
		s.logger.Debug().Msg("run already in progress")
	}
}

func (s *Simulator) post(ctx context.Context, path string, body any) (int, time.Duration) {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, 0
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.APIBaseURL+path, reader)
	if err != nil {
		return 0, 0
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return 0, elapsed
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp.StatusCode, elapsed
}

func (s *Simulator) get(ctx context.Context, path string) int {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.APIBaseURL+path, http.NoBody)
	if err != nil {
		return 0
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp.StatusCode
}

func (s *Simulator) report() {
	print := func(name string, om *OperationMetrics) {
		fmt.Printf("%-12s total=%d success=%d conflict=%d error=%d p50=%s p95=%s\n",
			name, om.Total, om.Success, om.Conflict, om.Error,
			om.Percentile(50), om.Percentile(95))
	}

	fmt.Println("--- simulation results ---")
	print("add_entry", &s.adds)
	print("list", &s.lists)
	print("run", &s.runs)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
