package main

import (
	"fmt"
	"io"
	"math"
	"sort"
	"sync"
	"time"
)

type sample struct {
	latency    time.Duration
	status     int
	cacheHit   bool
	zeroResult bool
	err        error
}

type recorder struct {
	mu      sync.Mutex
	samples []sample
}

func newRecorder() *recorder {
	return &recorder{samples: make([]sample, 0, 100000)}
}

func (r *recorder) record(s sample) {
	r.mu.Lock()
	r.samples = append(r.samples, s)
	r.mu.Unlock()
}

type report struct {
	Total       int
	Success     int
	Errors      int
	CacheHits   int
	ZeroResults int
	RPS         float64
	Min         time.Duration
	Avg         time.Duration
	P50         time.Duration
	P90         time.Duration
	P99         time.Duration
	Max         time.Duration
	StdDev      time.Duration
	StatusCodes map[int]int
}

func (r *recorder) report(elapsed time.Duration) report {
	r.mu.Lock()
	samples := append([]sample(nil), r.samples...)
	r.mu.Unlock()

	rep := report{Total: len(samples), StatusCodes: make(map[int]int)}
	latencies := make([]time.Duration, 0, len(samples))
	for _, s := range samples {
		if s.err != nil {
			rep.Errors++
			continue
		}
		rep.StatusCodes[s.status]++
		if s.status >= 200 && s.status < 300 {
			rep.Success++
		} else {
			rep.Errors++
		}
		if s.cacheHit {
			rep.CacheHits++
		}
		if s.zeroResult {
			rep.ZeroResults++
		}
		latencies = append(latencies, s.latency)
	}
	if elapsed > 0 {
		rep.RPS = float64(rep.Total) / elapsed.Seconds()
	}
	if len(latencies) == 0 {
		return rep
	}

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	rep.Avg = sum / time.Duration(len(latencies))
	rep.Min = latencies[0]
	rep.Max = latencies[len(latencies)-1]
	rep.P50 = percentile(latencies, 50)
	rep.P90 = percentile(latencies, 90)
	rep.P99 = percentile(latencies, 99)

	var sq float64
	for _, l := range latencies {
		d := float64(l - rep.Avg)
		sq += d * d
	}
	rep.StdDev = time.Duration(math.Sqrt(sq / float64(len(latencies))))
	return rep
}

func (rep report) print(w io.Writer) {
	fmt.Fprintln(w, "=== Results ===")
	fmt.Fprintf(w, "Total Requests:  %d\n", rep.Total)
	fmt.Fprintf(w, "Successful:      %d\n", rep.Success)
	fmt.Fprintf(w, "Errors:          %d\n", rep.Errors)
	if rep.Total > 0 {
		fmt.Fprintf(w, "Error Rate:      %.2f%%\n", float64(rep.Errors)/float64(rep.Total)*100)
		fmt.Fprintf(w, "Cache Hits:      %d\n", rep.CacheHits)
		fmt.Fprintf(w, "Zero Results:    %d\n", rep.ZeroResults)
		fmt.Fprintf(w, "Requests/sec:    %.2f\n", rep.RPS)
	}
	if rep.Max > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Latency ===")
		fmt.Fprintf(w, "Min:    %s\n", rep.Min)
		fmt.Fprintf(w, "Avg:    %s\n", rep.Avg)
		fmt.Fprintf(w, "P50:    %s\n", rep.P50)
		fmt.Fprintf(w, "P90:    %s\n", rep.P90)
		fmt.Fprintf(w, "P99:    %s\n", rep.P99)
		fmt.Fprintf(w, "Max:    %s\n", rep.Max)
		fmt.Fprintf(w, "StdDev: %s\n", rep.StdDev)
	}

	codes := make([]int, 0, len(rep.StatusCodes))
	for code := range rep.StatusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Status Codes ===")
	for _, code := range codes {
		fmt.Fprintf(w, "  %d: %d\n", code, rep.StatusCodes[code])
	}
}

// percentile uses the nearest-rank method on an ascending slice.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
