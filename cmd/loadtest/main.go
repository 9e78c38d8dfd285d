// Command loadtest drives concurrent queries against a running searcher and
// prints a latency report.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

var defaultQueries = []string{
	"strategy game",
	"open world adventure",
	"multiplayer shooter",
	"puzzle platformer",
	"racing simulation",
	"turn based tactics",
	"survival crafting",
	"space exploration",
	"role playing fantasy",
	"retro arcade",
}

type config struct {
	baseURL     string
	concurrency int
	duration    time.Duration
	limit       int
	queries     []string
	usePost     bool
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the searcher")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	limit := flag.Int("limit", 10, "documents requested per query")
	queryFile := flag.String("queries", "", "file with one query per line")
	usePost := flag.Bool("post", false, "send queries to POST /query instead of GET /api/v1/search")
	flag.Parse()

	queries := defaultQueries
	if *queryFile != "" {
		loaded, err := loadQueries(*queryFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "loading queries: %v\n", err)
			os.Exit(1)
		}
		queries = loaded
	}

	cfg := config{
		baseURL:     strings.TrimRight(*baseURL, "/"),
		concurrency: *concurrency,
		duration:    *duration,
		limit:       *limit,
		queries:     queries,
		usePost:     *usePost,
	}

	fmt.Println("=== Retrieval Engine Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.baseURL)
	fmt.Printf("Concurrency: %d\n", cfg.concurrency)
	fmt.Printf("Duration:    %s\n", cfg.duration)
	fmt.Printf("Queries:     %d unique\n", len(cfg.queries))
	fmt.Println()

	rec := newRecorder()
	if err := run(context.Background(), cfg, rec); err != nil {
		fmt.Fprintf(os.Stderr, "load test failed: %v\n", err)
		os.Exit(1)
	}
	report := rec.report(cfg.duration)
	report.print(os.Stdout)
	if report.Total == 0 {
		fmt.Println("WARNING: no requests completed. Is the searcher running?")
		os.Exit(1)
	}
}

func loadQueries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if q := strings.TrimSpace(scanner.Text()); q != "" {
			out = append(out, q)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s contains no queries", path)
	}
	return out, nil
}

func run(ctx context.Context, cfg config, rec *recorder) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.duration)
	defer cancel()

	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.concurrency * 2,
			MaxIdleConnsPerHost: cfg.concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.concurrency; w++ {
		worker := w
		g.Go(func() error {
			for i := worker; ctx.Err() == nil; i++ {
				query := cfg.queries[i%len(cfg.queries)]
				req, err := newRequest(ctx, cfg, query)
				if err != nil {
					return err
				}
				start := time.Now()
				resp, err := client.Do(req)
				elapsed := time.Since(start)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					rec.record(sample{latency: elapsed, err: err})
					continue
				}
				rec.record(readSample(resp, elapsed))
			}
			return nil
		})
	}
	return g.Wait()
}

func newRequest(ctx context.Context, cfg config, query string) (*http.Request, error) {
	if cfg.usePost {
		body, err := json.Marshal(map[string]any{"query": query, "documents": cfg.limit})
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.baseURL+"/query", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}
	target := fmt.Sprintf("%s/api/v1/search?q=%s&limit=%d", cfg.baseURL, url.QueryEscape(query), cfg.limit)
	return http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
}

func readSample(resp *http.Response, elapsed time.Duration) sample {
	defer resp.Body.Close()
	s := sample{
		latency:  elapsed,
		status:   resp.StatusCode,
		cacheHit: resp.Header.Get("X-Cache") == "hit",
	}
	if resp.StatusCode == http.StatusOK {
		var body struct {
			Returned int `json:"returned"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
			s.zeroResult = body.Returned == 0
		}
	}
	io.Copy(io.Discard, resp.Body)
	return s
}
