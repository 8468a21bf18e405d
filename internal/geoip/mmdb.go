package geoip

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"geogate/internal/models"

	"github.com/fsnotify/fsnotify"
	"github.com/oschwald/geoip2-golang"
)

// MaxMindLookup answers lookups from a GeoIP2 city database on disk and
// reloads it when the file is replaced.
type MaxMindLookup struct {
	path string
	db   *geoip2.Reader
	mu   sync.RWMutex
}

// NewMaxMindLookup opens the database and starts a background goroutine
// watching for updates. It returns a nil lookup and nil error if the path
// is not configured.
func NewMaxMindLookup(path string) (*MaxMindLookup, error) {
	if path == "" {
		log.Println("GeoIP database path is not configured.")
		return nil, nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, err
	}

	db, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}

	l := &MaxMindLookup{path: path, db: db}
	go l.watchForUpdates()
	log.Println("GeoIP lookup initialized, watching for database updates.")
	return l, nil
}

// Locate maps ip to a location. An address absent from the database
// yields a location with nil coordinates rather than an error.
func (l *MaxMindLookup) Locate(ctx context.Context, ip string) (models.GeoLocation, error) {
	if err := ctx.Err(); err != nil {
		return models.GeoLocation{}, err
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return models.GeoLocation{}, fmt.Errorf("invalid IP address: %s", ip)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.db == nil {
		return models.GeoLocation{}, fmt.Errorf("geoip database unavailable")
	}

	record, err := l.db.City(parsed)
	if err != nil {
		return models.GeoLocation{}, err
	}

	location := models.GeoLocation{
		Country: record.Country.IsoCode,
		City:    record.City.Names["en"],
	}

	// MaxMind reports (0, 0) for addresses it has no fix for; keep those
	// as nil coordinates so callers see "no location".
	if record.Location.Latitude != 0 || record.Location.Longitude != 0 {
		location.Latitude = models.Float64(record.Location.Latitude)
		location.Longitude = models.Float64(record.Location.Longitude)
	}

	return location, nil
}

// Close releases the underlying database.
func (l *MaxMindLookup) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.db == nil {
		return nil
	}
	err := l.db.Close()
	l.db = nil
	return err
}

func (l *MaxMindLookup) watchForUpdates() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("GeoIP: Error creating file watcher: %v", err)
		return
	}
	defer watcher.Close()

	// Watch the directory, as file updates can sometimes be atomic renames.
	dir := filepath.Dir(l.path)
	if err := watcher.Add(dir); err != nil {
		log.Printf("GeoIP: Error adding watcher for directory %s: %v", dir, err)
		return
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}

			if event.Name == l.path && (event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create || event.Op&fsnotify.Rename == fsnotify.Rename) {
				log.Printf("GeoIP: Database file %s appears to have been updated. Reloading.", l.path)
				l.reloadDB()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("GeoIP: Watcher error: %v", err)
			return
		}
	}
}

// reloadDB swaps in the updated database file.
func (l *MaxMindLookup) reloadDB() {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Close the existing database to release the file lock before opening
	// a new one.
	if l.db != nil {
		if err := l.db.Close(); err != nil {
			log.Printf("GeoIP: Error closing old database: %v", err)
		}
		l.db = nil
	}

	// Retry to ride out transient file locks on Windows.
	var newDB *geoip2.Reader
	var err error
	const maxRetries = 5
	const retryDelay = 100 * time.Millisecond

	for i := 0; i < maxRetries; i++ {
		newDB, err = geoip2.Open(l.path)
		if err == nil {
			break
		}

		if strings.Contains(err.Error(), "used by another process") {
			log.Printf("GeoIP: Database is locked, retrying in %v...", retryDelay)
			time.Sleep(retryDelay)
			continue
		}

		break
	}

	if err != nil {
		log.Printf("GeoIP: Error reloading database %s after retries: %v", l.path, err)
		return
	}

	l.db = newDB
	log.Println("GeoIP: Database reloaded successfully.")
}
