// loadgen fires checkout requests at a running order engine, for eyeballing
// breaker and cache behavior under load.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

func main() {
	var (
		addr     = flag.String("addr", "http://localhost:8081", "order engine base URL")
		rate     = flag.Int("rate", 10, "requests per second")
		duration = flag.Duration("duration", 30*time.Second, "how long to run")
		users    = flag.Int("users", 50, "size of the simulated user pool")
	)
	flag.Parse()

	client := &http.Client{Timeout: 10 * time.Second}

	var sent, ok, degraded, failed atomic.Int64
	var wg sync.WaitGroup

	ticker := time.NewTicker(time.Second / time.Duration(*rate))
	defer ticker.Stop()
	deadline := time.After(*duration)

	start := time.Now()
loop:
	for {
		select {
		case <-deadline:
			break loop
		case <-ticker.C:
			wg.Add(1)
			go func() {
				defer wg.Done()
				sent.Add(1)

				payload, _ := json.Marshal(map[string]string{
					"userId":          fmt.Sprintf("user-%d", rand.Intn(*users)),
					"deliveryAddress": "123 Main St",
					"idempotencyKey":  uuid.NewString(),
				})
				resp, err := client.Post(*addr+"/checkout", "application/json", bytes.NewReader(payload))
				if err != nil {
					failed.Add(1)
					return
				}
				defer resp.Body.Close()

				var body struct {
					CartClearOutcome string `json:"cartClearOutcome"`
				}
				_ = json.NewDecoder(resp.Body).Decode(&body)

				switch {
				case resp.StatusCode != http.StatusCreated:
					failed.Add(1)
				case body.CartClearOutcome == "failed":
					degraded.Add(1)
				default:
					ok.Add(1)
				}
			}()
		}
	}
	wg.Wait()

	elapsed := time.Since(start)
	log.Printf("done in %v: sent=%d ok=%d degraded=%d failed=%d (%.1f req/s)",
		elapsed.Round(time.Millisecond), sent.Load(), ok.Load(), degraded.Load(), failed.Load(),
		float64(sent.Load())/elapsed.Seconds(),
	)
}
