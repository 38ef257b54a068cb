// Benchmark tool for load testing FraudLens.
//
// Usage:
//   go run cmd/benchmark/main.go -url http://localhost:8080 -n 10000
//   go run cmd/benchmark/main.go -input requests.jsonl -workers 20
//
// This tool:
//   1. Reads raw attribute objects (one JSON object per line) or generates
//      synthetic ones
//   2. Sends each to POST /predict
//   3. Reports latency percentiles, throughput and the label distribution
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// PredictResponse is the FraudLens API response format
type PredictResponse struct {
	PredictionID string  `json:"predictionId"`
	Label        int     `json:"label"`
	Probability  float64 `json:"probability"`
}

// Metrics tracks benchmark results
type Metrics struct {
	TotalProcessed int64
	Fraud          int64
	Legitimate     int64
	Unavailable    int64 // 422: pipeline could not score
	TotalErrors    int64

	mu        sync.Mutex
	latencies []time.Duration
	probSum   float64
}

func (m *Metrics) observe(elapsed time.Duration, result *PredictResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencies = append(m.latencies, elapsed)
	if result != nil {
		m.probSum += result.Probability
	}
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "FraudLens base URL")
	input := flag.String("input", "", "JSON lines file of raw attribute objects (default: synthetic)")
	count := flag.Int("n", 1000, "Number of synthetic requests (ignored with -input)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	seed := flag.Uint64("seed", 1, "Seed for synthetic requests")
	verbose := flag.Bool("verbose", false, "Print each prediction result")
	flag.Parse()

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║              FRAUDLENS BENCHMARK - POST /predict              ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nFraudLens URL: %s\n", *baseURL)
	fmt.Printf("Workers:       %d\n", *workers)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: FraudLens not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure FraudLens is running:")
		fmt.Println("  go run cmd/fraudlens/main.go -demo")
		os.Exit(1)
	}
	fmt.Println("✓ FraudLens is healthy")

	var (
		requests [][]byte
		err      error
	)
	if *input != "" {
		requests, err = readRequests(*input)
		if err != nil {
			fmt.Printf("ERROR: Failed to read %s: %v\n", *input, err)
			os.Exit(1)
		}
	} else {
		requests = syntheticRequests(*count, *seed)
	}
	fmt.Printf("✓ Prepared %d requests\n", len(requests))

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(requests, *baseURL, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func readRequests(path string) ([][]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var requests [][]byte
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if !json.Valid(line) {
			continue // Skip malformed rows
		}
		requests = append(requests, append([]byte(nil), line...))
	}
	return requests, scanner.Err()
}

// syntheticRequests builds n attribute sets around a typical card-present
// purchase, varying amount, distance and device.
func syntheticRequests(n int, seed uint64) [][]byte {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	devices := []map[string]any{
		{"DeviceInfo": "Windows", "DeviceType": "desktop"},
		{"DeviceInfo": "iOS Device", "DeviceType": "mobile"},
		{"DeviceInfo": "MacOS", "DeviceType": "desktop"},
	}

	requests := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		attrs := map[string]any{
			"Transaction ID":                        100000000 + i,
			"Transaction Date":                      r.IntN(15_000_000),
			"Transaction Amount":                    10 + r.Float64()*2000,
			"Product Type":                          "retail",
			"Card Data":                             map[string]any{"Card1": 1000 + r.IntN(9000), "Card2": 500, "Card3": 150, "Card4": "visa", "Card5": 226, "Card6": "debit"},
			"Address 1":                             100 + r.IntN(400),
			"Address 2":                             87,
			"Distance":                              r.ExpFloat64() * 50,
			"Purchaser Email Domain":                "gmail.com",
			"Recipient Email Domain":                "gmail.com",
			"Device Data":                           devices[r.IntN(len(devices))],
			"Hours":                                 r.IntN(24),
			"Days":                                  r.IntN(31),
			"Weekdays":                              r.IntN(7),
			"Mean Transaction Amount":               4 + r.Float64()*2,
			"Minimum Transaction Amount":            5,
			"Maximum Transaction Amount":            2500,
			"Standard Deviation Transaction Amount": r.Float64(),
			"Card Amount Range":                     map[string]any{"Minimum": 20, "Maximum": 400},
			"Billing Data":                          map[string]any{"M1": 1, "M2": 1, "M3": 1, "M4": 1, "M5": 2, "M6": 1, "M7": 1},
			"Transactional Usage Data":              map[string]any{"C5": r.Float64(), "C9": r.Float64(), "C14": r.Float64(), "C7": r.Float64(), "C12": r.Float64(), "C6": r.Float64()},
			"Transaction Time Behavioral Data":      map[string]any{"D5": r.Float64(), "D4": r.Float64(), "D3": r.Float64(), "D11": r.Float64(), "D2": r.Float64()},
			"Behavioral Data": map[string]any{
				"V88": 1, "V14": 1, "V1": 1, "V65": 1, "V41": 1, "V94": r.Float64(),
				"V35": r.Float64(), "V12": 1, "V241": 1, "V69": r.Float64(), "V75": r.Float64(),
			},
		}
		body, _ := json.Marshal(attrs)
		requests = append(requests, body)
	}
	return requests
}

func runBenchmark(requests [][]byte, baseURL string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{latencies: make([]time.Duration, 0, len(requests))}

	// Create work channel
	work := make(chan []byte, 100)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for body := range work {
				start := time.Now()
				result, status, err := predict(client, baseURL, body)
				elapsed := time.Since(start)

				atomic.AddInt64(&metrics.TotalProcessed, 1)
				metrics.observe(elapsed, result)

				switch {
				case err != nil:
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %v\n", err)
					}
					continue
				case status == http.StatusUnprocessableEntity:
					atomic.AddInt64(&metrics.Unavailable, 1)
					continue
				case result.Label == 1:
					atomic.AddInt64(&metrics.Fraud, 1)
				default:
					atomic.AddInt64(&metrics.Legitimate, 1)
				}

				if verbose {
					fmt.Printf("%s | Label: %d | Probability: %.4f | %v\n",
						result.PredictionID, result.Label, result.Probability, elapsed.Round(time.Microsecond))
				}
			}
		}()
	}

	// Send work
	for _, body := range requests {
		work <- body
	}
	close(work)

	// Wait for completion
	wg.Wait()

	return metrics
}

func predict(client *http.Client, baseURL string, body []byte) (*PredictResponse, int, error) {
	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnprocessableEntity:
		return nil, resp.StatusCode, nil
	default:
		return nil, resp.StatusCode, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result PredictResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, resp.StatusCode, err
	}
	return &result, resp.StatusCode, nil
}

// percentile returns the p-th percentile of sorted by nearest rank.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p/100*float64(len(sorted))+0.5) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	scored := m.Fraud + m.Legitimate
	fmt.Printf("\n📊 LABEL DISTRIBUTION\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	if scored > 0 {
		fmt.Printf("   Fraud (1):        %d (%.2f%%)\n", m.Fraud, 100*float64(m.Fraud)/float64(scored))
		fmt.Printf("   Legitimate (0):   %d (%.2f%%)\n", m.Legitimate, 100*float64(m.Legitimate)/float64(scored))
		fmt.Printf("   Mean Probability: %.4f\n", m.probSum/float64(scored))
	}
	fmt.Printf("   Unavailable:      %d\n", m.Unavailable)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	sorted := append([]time.Duration(nil), m.latencies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	fmt.Printf("\n⏱️  LATENCY\n")
	for _, p := range []float64{50, 90, 95, 99} {
		fmt.Printf("   p%-3.0f             %v\n", p, percentile(sorted, p).Round(time.Microsecond))
	}
	if len(sorted) > 0 {
		fmt.Printf("   max              %v\n", sorted[len(sorted)-1].Round(time.Microsecond))
	}

	fmt.Printf("\n🚀 THROUGHPUT\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		fmt.Printf("   Throughput:       %.2f req/sec\n", float64(m.TotalProcessed)/duration.Seconds())
	}

	fmt.Println()
}
