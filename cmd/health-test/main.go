package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Services  struct {
		Cache struct {
			Status  string `json:"status"`
			Batches int    `json:"batches"`
		} `json:"cache"`
	} `json:"services"`
}

func main() {
	base := "http://localhost:8080"
	if port := os.Getenv("PORT"); port != "" {
		base = "http://localhost:" + port
	}
	if len(os.Args) > 1 {
		base = strings.TrimSuffix(os.Args[1], "/")
	}

	client := &http.Client{
		Timeout: 10 * time.Second,
	}

	fmt.Printf("🔍 Testing health endpoint: %s/health\n", base)
	body, err := fetch(client, base+"/health")
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}

	var health HealthResponse
	if err := json.Unmarshal(body, &health); err != nil {
		fmt.Printf("❌ Error parsing JSON response: %v\n", err)
		os.Exit(1)
	}
	if health.Status != "ok" || health.Services.Cache.Status != "ok" {
		fmt.Printf("❌ Unhealthy: status=%s cache=%s\n", health.Status, health.Services.Cache.Status)
		os.Exit(1)
	}

	fmt.Printf("🔍 Testing metrics endpoint: %s/metrics\n", base)
	body, err = fetch(client, base+"/metrics")
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
	if !strings.Contains(string(body), "logaware_") {
		fmt.Printf("❌ Metrics endpoint exposes no logaware collectors\n")
		os.Exit(1)
	}

	fmt.Printf("✅ Health check passed!\n")
	fmt.Printf("   Version: %s\n", health.Version)
	fmt.Printf("   Cached batches: %d\n", health.Services.Cache.Batches)
	fmt.Printf("   Timestamp: %s\n", health.Timestamp)
}

func fetch(client *http.Client, url string) ([]byte, error) {
	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("error connecting to %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s answered %s: %s", url, resp.Status, body)
	}
	return body, nil
}
