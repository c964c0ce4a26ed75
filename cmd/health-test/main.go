package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/tradelens/backend/internal/client"
	"github.com/tradelens/backend/internal/transport"
)

func main() {
	url := "http://localhost:8080"
	if len(os.Args) > 1 {
		url = os.Args[1]
	}

	fmt.Printf("🔍 Testing store server: %s\n", url)

	c := client.New(url, transport.New(transport.Config{}))
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	start := time.Now()
	if err := c.HealthCheck(ctx); err != nil {
		fmt.Printf("❌ Health check failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✅ Health check passed in %s\n", time.Since(start).Round(time.Millisecond))

	stats, err := c.Stats(ctx)
	if err != nil {
		fmt.Printf("❌ Error fetching stats: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("   Files: %d\n", stats.FileCount)
	fmt.Printf("   Analyses: %d\n", stats.AnalysisCount)
	fmt.Printf("   Messages: %d\n", stats.MessageCount)
	fmt.Printf("   Storage: %d bytes\n", stats.StorageSize)
}
