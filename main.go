package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"geogate/internal/access"
	"geogate/internal/artifact"
	"geogate/internal/audit"
	"geogate/internal/cache"
	"geogate/internal/config"
	"geogate/internal/gatehttp"
	"geogate/internal/geoip"
	"geogate/internal/models"
	"geogate/internal/sites"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "geogate",
		Short: "Access gate for hosted sites",
	}

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Starts the gate server",
		Args:  cobra.ExactArgs(0),
		RunE: func(_ *cobra.Command, _ []string) error {
			return serve()
		},
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve() error {
	// Load configuration
	cfg := config.Load()

	// Initialize audit backends
	auditManager, auditStore, err := audit.NewManager(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize audit backends: %v", err)
	}

	// Initialize geolocation: MaxMind lookup behind a read-through cache
	var lookup geoip.Lookup
	mmdb, err := geoip.NewMaxMindLookup(cfg.GeoIPDBPath)
	if err != nil {
		log.Fatalf("Failed to open GeoIP database: %v", err)
	}
	if mmdb != nil {
		lookup = mmdb
	}

	geoCache := cache.NewTTLCache[models.GeoLocation]("geoip", cfg.GeoCacheTTL, cfg.GeoCacheSize)
	resolver := geoip.NewResolver(lookup, geoCache, cfg.GeoLookupTimeout)

	// Load site configuration and start watching it
	siteStore, err := sites.NewStore(cfg.SitesFilePath)
	if err != nil {
		log.Fatalf("Failed to load sites: %v", err)
	}

	capturer := artifact.NewCapturer(cfg.CaptureEnabled, artifact.NewFSStore(cfg.ArtifactDir), cfg.CaptureTimeout)

	engine := access.NewEngine(resolver)

	server, err := gatehttp.NewServer(cfg, siteStore, engine, auditManager, capturer, auditStore)
	if err != nil {
		log.Fatalf("Failed to initialize gate server: %v", err)
	}
	if err := server.Start(); err != nil {
		log.Fatalf("Failed to start gate server: %v", err)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutting down gracefully...")

	// 1. Stop accepting requests and drain in-flight ones.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Error shutting down gate server: %v", err)
	}

	// 2. Close the GeoIP database.
	if mmdb != nil {
		if err := mmdb.Close(); err != nil {
			log.Printf("Error closing GeoIP database: %v", err)
		}
	}

	// 3. Shutdown audit backends only after all other work is done.
	auditManager.Shutdown()

	log.Println("Shutdown complete")
	return nil
}
