// Package main replays a captured feed event file through the full
// ingestion path (repair, normalization, merge) and prints what the live
// store would contain. Used to debug upstream schema drift offline.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"launchfeed/internal/domain"
	"launchfeed/internal/ingest"
	"launchfeed/internal/storage/memory"
	"launchfeed/internal/transform"
)

func main() {
	// Parse flags
	eventFile := flag.String("file", "", "Captured event file to replay (required)")
	outputJSON := flag.Bool("json", false, "Output final snapshot as JSON")
	verbose := flag.Bool("verbose", false, "Log every store update")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stderr, "[replay] ", log.LstdFlags)

	// Validate required flags
	if *eventFile == "" {
		logger.Fatal("--file is required")
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	f, err := os.Open(*eventFile)
	if err != nil {
		logger.Fatalf("open event file: %v", err)
	}
	defer f.Close()

	store := memory.NewTokenStore(logger)
	if *verbose {
		unsubscribe := store.Subscribe(func(tokens []*domain.Token) {
			logger.Printf("store updated: %d tokens", len(tokens))
		})
		defer unsubscribe()
	}

	pool := transform.NewPool(transform.PoolOptions{Logger: logger})
	defer pool.Stop()

	runner := ingest.NewRunner(ingest.RunnerOptions{
		Store:       store,
		Transformer: pool,
		Logger:      logger,
	})
	controller := ingest.NewSSEController(ingest.SSEOptions{Logger: logger}, runner)

	start := time.Now()
	delivered, err := controller.ProcessStream(ctx, eventReader(f))
	if err != nil {
		logger.Fatalf("replay failed: %v", err)
	}

	stats := store.Stats()
	if *outputJSON {
		snapshot := domain.FeedSnapshot{
			Event:             "tokens",
			Timestamp:         time.Now().UTC().Format(time.RFC3339Nano),
			TokenCount:        stats.TokenCount,
			Data:              store.GetTokens(),
			LastSSEUpdate:     stats.LastUpdate,
			BackendTotalCount: stats.TokenCount,
		}
		output, _ := json.MarshalIndent(snapshot, "", "  ")
		fmt.Println(string(output))
		return
	}

	fmt.Printf("\n=== Replay Summary ===\n")
	fmt.Printf("Event File:       %s\n", *eventFile)
	fmt.Printf("Events Delivered: %d\n", delivered)
	fmt.Printf("Tokens In Feed:   %d\n", stats.TokenCount)
	fmt.Printf("Last Update:      %s\n", orNA(stats.LastUpdate))
	fmt.Printf("Elapsed:          %v\n", time.Since(start).Round(time.Millisecond))
}

// eventReader adapts a capture file to the SSE framing the controller
// expects. The server's capture path writes one payload per line, so plain
// files are re-framed; a file that already carries data: lines (a saved raw
// stream) passes through untouched.
func eventReader(f *os.File) io.Reader {
	peek := bufio.NewReader(f)
	head, _ := peek.Peek(8192)
	if isFramed(string(head)) {
		return peek
	}

	pr, pw := io.Pipe()
	go func() {
		scanner := bufio.NewScanner(peek)
		scanner.Buffer(make([]byte, 1024*1024), 64*1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if _, err := fmt.Fprintf(pw, "data: %s\n\n", line); err != nil {
				return
			}
		}
		pw.CloseWithError(scanner.Err())
	}()
	return pr
}

// isFramed reports whether the head of the file looks like a raw SSE
// stream rather than one payload per line.
func isFramed(head string) bool {
	for _, line := range strings.Split(head, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		return strings.HasPrefix(line, "data:") ||
			strings.HasPrefix(line, "event:") ||
			strings.HasPrefix(line, ":")
	}
	return false
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
