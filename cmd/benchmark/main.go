// Benchmark tool for measuring ParsePay extraction accuracy on labelled SMS.
//
// Usage:
//
//	go run cmd/benchmark/main.go -csv /path/to/labelled.csv -url http://localhost:8080
//
// The CSV header must contain "text" and "is_financial". Optional columns
// are "sender", "received_at" (RFC 3339) and one column per expected
// field: bank, amount, date, transaction_type, payee, account_from,
// account_to. An empty expected cell means the field should be absent.
//
// This tool:
//  1. Sends each message to POST /extract
//  2. Scores the gate verdict against is_financial (confusion matrix)
//  3. Scores each labelled field of financial messages (exact match)
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/parsepay/internal/domain"
)

// Sample is one labelled row.
type Sample struct {
	Line        int
	Sender      string
	Text        string
	ReceivedAt  *time.Time
	IsFinancial bool

	// Expected holds the labelled fields; a present key with "" means absent.
	Expected map[string]string
}

// Metrics tracks benchmark results
type Metrics struct {
	TruePositives  int64 // Financial extracted as financial
	FalsePositives int64 // Non-financial extracted as financial
	TrueNegatives  int64 // Non-financial rejected
	FalseNegatives int64 // Financial rejected

	TotalProcessed int64
	TotalErrors    int64

	ProcessingTimeMs int64

	mu     sync.Mutex
	fields map[string]*fieldScore
}

type fieldScore struct {
	Labelled int
	Correct  int
	Missed   int // expected a value, got none
	Spurious int // expected none, got a value
}

func (m *Metrics) scoreField(name, want string, got domain.FieldResult) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.fields[name]
	if s == nil {
		s = &fieldScore{}
		m.fields[name] = s
	}
	s.Labelled++

	switch {
	case want == "" && !got.Present():
		s.Correct++
		return true
	case want == "":
		s.Spurious++
	case !got.Present():
		s.Missed++
	case strings.EqualFold(want, got.String()):
		s.Correct++
		return true
	}
	return false
}

func main() {
	// Parse flags
	csvPath := flag.String("csv", "", "Path to labelled SMS CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "ParsePay base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	limit := flag.Int("limit", 10000, "Maximum messages to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	financialOnly := flag.Bool("financial-only", false, "Only test messages labelled financial")
	verbose := flag.Bool("verbose", false, "Print each mismatch")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/labelled.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("PARSEPAY BENCHMARK - labelled SMS extraction")
	fmt.Printf("\nCSV File:      %s\n", *csvPath)
	fmt.Printf("ParsePay URL:  %s\n", *baseURL)
	fmt.Printf("Tenant ID:     %s\n", *tenantID)
	fmt.Printf("Workers:       %d\n", *workers)
	fmt.Printf("Limit:         %d\n", *limit)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: ParsePay not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure ParsePay is running:")
		fmt.Println("  go run ./cmd/parsepay")
		os.Exit(1)
	}
	fmt.Println("ParsePay is healthy")

	f, err := os.Open(*csvPath)
	if err != nil {
		fmt.Printf("ERROR: Failed to open CSV: %v\n", err)
		os.Exit(1)
	}
	samples, err := readSamples(f, *limit, *financialOnly)
	f.Close()
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d messages\n", len(samples))

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(samples, *baseURL, *tenantID, *workers, *verbose)
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

func readSamples(r io.Reader, limit int, financialOnly bool) ([]Sample, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, required := range []string{"text", "is_financial"} {
		if _, ok := colIndex[required]; !ok {
			return nil, fmt.Errorf("missing required column %q", required)
		}
	}

	cell := func(record []string, col string) (string, bool) {
		i, ok := colIndex[col]
		if !ok || i >= len(record) {
			return "", false
		}
		return strings.TrimSpace(record[i]), true
	}

	var samples []Sample
	line := 1
	for {
		record, err := reader.Read()
		line++
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		text, _ := cell(record, "text")
		if text == "" {
			continue
		}
		label, _ := cell(record, "is_financial")
		s := Sample{
			Line:        line,
			Text:        text,
			IsFinancial: label == "1" || strings.EqualFold(label, "true"),
			Expected:    make(map[string]string),
		}
		if financialOnly && !s.IsFinancial {
			continue
		}

		s.Sender, _ = cell(record, "sender")
		if v, _ := cell(record, "received_at"); v != "" {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				s.ReceivedAt = &t
			}
		}
		for _, name := range domain.FieldNames() {
			if v, ok := cell(record, name); ok {
				s.Expected[name] = v
			}
		}

		samples = append(samples, s)
		if limit > 0 && len(samples) >= limit {
			break
		}
	}

	return samples, nil
}

func runBenchmark(samples []Sample, baseURL, tenantID string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{fields: make(map[string]*fieldScore)}

	work := make(chan Sample, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for s := range work {
				start := time.Now()
				result, err := extractMessage(client, baseURL, tenantID, s)
				atomic.AddInt64(&metrics.ProcessingTimeMs, time.Since(start).Milliseconds())
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: line %d -> %v\n", s.Line, err)
					}
					continue
				}

				predicted := result.Status != domain.StatusRejected
				switch {
				case predicted && s.IsFinancial:
					atomic.AddInt64(&metrics.TruePositives, 1)
				case predicted && !s.IsFinancial:
					atomic.AddInt64(&metrics.FalsePositives, 1)
				case !predicted && !s.IsFinancial:
					atomic.AddInt64(&metrics.TrueNegatives, 1)
				default:
					atomic.AddInt64(&metrics.FalseNegatives, 1)
				}
				if verbose && predicted != s.IsFinancial {
					fmt.Printf("GATE  line %-5d expected financial=%v got %s (score %.2f)\n",
						s.Line, s.IsFinancial, result.Status, result.Metadata.GateScore)
				}

				if !s.IsFinancial || result.Record == nil {
					continue
				}
				for name, want := range s.Expected {
					got, _ := result.Record.Get(name)
					if !metrics.scoreField(name, want, got) && verbose {
						fmt.Printf("FIELD line %-5d %-16s expected %q got %q\n", s.Line, name, want, got.String())
					}
				}
			}
		}()
	}

	for _, s := range samples {
		work <- s
	}
	close(work)

	wg.Wait()

	return metrics
}

func extractMessage(client *http.Client, baseURL, tenantID string, s Sample) (*domain.ExtractionResponse, error) {
	body, err := json.Marshal(domain.MessageRequest{
		Sender:     s.Sender,
		Text:       s.Text,
		ReceivedAt: s.ReceivedAt,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/extract", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result domain.ExtractionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func ratio(num, den int64) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\nBENCHMARK RESULTS")

	fmt.Printf("\nDATASET\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\nGATE CONFUSION MATRIX\n")
	fmt.Println("                     Predicted")
	fmt.Println("                  FIN        NON")
	fmt.Printf("   Actual  FIN  %8d   %8d   (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Printf("           NON  %8d   %8d   (FP, TN)\n", m.FalsePositives, m.TrueNegatives)

	precision := ratio(m.TruePositives, m.TruePositives+m.FalsePositives)
	recall := ratio(m.TruePositives, m.TruePositives+m.FalseNegatives)
	f1 := 0.0
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	accuracy := ratio(m.TruePositives+m.TrueNegatives,
		m.TruePositives+m.TrueNegatives+m.FalsePositives+m.FalseNegatives)

	fmt.Printf("\nGATE METRICS\n")
	fmt.Printf("   Precision:  %.4f\n", precision)
	fmt.Printf("   Recall:     %.4f\n", recall)
	fmt.Printf("   F1-Score:   %.4f\n", f1)
	fmt.Printf("   Accuracy:   %.4f\n", accuracy)

	fmt.Printf("\nFIELD ACCURACY (financial messages)\n")
	fmt.Printf("   %-16s %8s %8s %8s %8s %8s\n", "field", "labelled", "correct", "missed", "spurious", "accuracy")
	for _, name := range domain.FieldNames() {
		s := m.fields[name]
		if s == nil {
			continue
		}
		fmt.Printf("   %-16s %8d %8d %8d %8d %8.4f\n",
			name, s.Labelled, s.Correct, s.Missed, s.Spurious,
			ratio(int64(s.Correct), int64(s.Labelled)))
	}

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		fmt.Printf("   Avg Latency:      %.2f ms\n", float64(m.ProcessingTimeMs)/float64(m.TotalProcessed))
		fmt.Printf("   Throughput:       %.2f msg/sec\n", float64(m.TotalProcessed)/duration.Seconds())
	}
	fmt.Println()
}
