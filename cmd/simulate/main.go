package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"
)

// simulate fires concurrent booking attempts at a single slot and reports
// how many succeeded versus hit capacity. With a slot of capacity N exactly
// N attempts should come back 201 and the rest 409, whatever the order.
type result struct {
	status  int
	latency time.Duration
}

func main() {
	var (
		baseURL  = flag.String("url", "http://localhost:8080", "API base URL")
		slotID   = flag.String("slot", "", "slot UUID to hammer (required)")
		patient  = flag.String("patient", "", "patient id to book for (required)")
		tenantID = flag.String("tenant", "", "tenant id for principals without a home tenant")
		workers  = flag.Int("workers", 20, "number of concurrent booking attempts")
	)
	flag.Parse()

	token := os.Getenv("SIM_TOKEN")
	if token == "" || *slotID == "" || *patient == "" {
		log.Fatal("SIM_TOKEN, -slot and -patient are required")
	}

	body, _ := json.Marshal(map[string]any{
		"slot_id":    *slotID,
		"patient_id": *patient,
		"tenant_id":  *tenantID,
	})

	results := make([]result, *workers)
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start

			began := time.Now()
			status, err := book(*baseURL, token, body)
			if err != nil {
				log.Printf("worker %d: %v", i, err)
				status = 0
			}
			results[i] = result{status: status, latency: time.Since(began)}
		}(i)
	}

	close(start)
	wg.Wait()

	report(results)
}

func book(baseURL, token string, body []byte) (int, error) {
	req, err := http.NewRequest(http.MethodPost, baseURL+"/commands/scheduling/appointments", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}

func report(results []result) {
	counts := make(map[int]int)
	latencies := make([]time.Duration, 0, len(results))
	for _, r := range results {
		counts[r.status]++
		latencies = append(latencies, r.latency)
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	fmt.Println("booking attempts:", len(results))
	fmt.Println("  created (201):", counts[http.StatusCreated])
	fmt.Println("  conflict (409):", counts[http.StatusConflict])
	for status, n := range counts {
		if status != http.StatusCreated && status != http.StatusConflict {
			fmt.Printf("  other (%d): %d\n", status, n)
		}
	}
	if len(latencies) > 0 {
		fmt.Println("  p50 latency:", latencies[len(latencies)*50/100])
		fmt.Println("  p95 latency:", latencies[min(len(latencies)*95/100, len(latencies)-1)])
	}
}
