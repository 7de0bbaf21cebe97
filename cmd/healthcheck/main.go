// Command healthcheck probes a running chatter server and exits non-zero
// when it is not healthy. It is meant for container HEALTHCHECK lines.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

func main() {
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	path := flag.String("path", "/healthz", "endpoint to probe (/healthz or /readyz)")
	timeout := flag.Duration("timeout", 3*time.Second, "request timeout")
	flag.Parse()

	os.Exit(probe("http://"+addr+*path, *timeout))
}

// probe returns the process exit code for a GET of url.
func probe(url string, timeout time.Duration) int {
	client := &http.Client{Timeout: timeout}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		return 1
	}
	resp, err := client.Do(req)
	if err != nil {
		return 1
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("failed to close response body: %v", err)
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return 1
	}
	return 0
}
