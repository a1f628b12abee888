package main

import (
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/ignite/leadflow/internal/sandbox"
)

func main() {
	log.Println("WARNING: sandbox-api serves MOCK provider responses for local testing only.")
	log.Println("Point APOLLO_BASE_URL, BETTERCONTACT_BASE_URL, CLAY_BASE_URL,")
	log.Println("INSTANTLY_BASE_URL, and the GHL base/token URLs at the addresses below,")
	log.Println("or set LEADFLOW_SANDBOX=1 to run everything in-process instead.")

	m := sandbox.New()
	defer m.Close()

	urls := m.URLs()
	names := make([]string, 0, len(urls))
	for name := range urls {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		log.Printf("  %-13s %s", name, urls[name])
	}

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			log.Printf("sandbox-api: queued=%d synced=%d", m.QueuedCount(), m.SyncedCount())
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("sandbox-api stopped")
}
