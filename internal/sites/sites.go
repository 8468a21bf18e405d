// Package sites loads per-site gate configuration from a YAML file and
// serves read-only snapshots of it. Authoring and authorization of rules
// happen elsewhere; this package only reads what it is given.
package sites

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"geogate/internal/models"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Site is one gated site's configuration.
type Site struct {
	ID               string
	Hostname         string
	Name             string
	FilterMode       models.FilterMode
	BlockPageTitle   string
	BlockPageMessage string
	BlockPageURL     string
	Rules            []models.IPRule
	Fences           []models.Geofence
}

// ActiveRules returns the rules the engine should see: active entries
// only, in declared order.
func (s *Site) ActiveRules() []models.IPRule {
	rules := make([]models.IPRule, 0, len(s.Rules))
	for _, r := range s.Rules {
		if r.Active {
			rules = append(rules, r)
		}
	}
	return rules
}

// ActiveFences returns the active geofences in declared order.
func (s *Site) ActiveFences() []models.Geofence {
	fences := make([]models.Geofence, 0, len(s.Fences))
	for _, f := range s.Fences {
		if f.Active {
			fences = append(fences, f)
		}
	}
	return fences
}

type fileFormat struct {
	Sites []siteSpec `yaml:"sites"`
}

type siteSpec struct {
	ID               string           `yaml:"id"`
	Hostname         string           `yaml:"hostname"`
	Name             string           `yaml:"name"`
	FilterMode       string           `yaml:"filter_mode"`
	BlockPageTitle   string           `yaml:"block_page_title"`
	BlockPageMessage string           `yaml:"block_page_message"`
	BlockPageURL     string           `yaml:"block_page_url"`
	IPRules          []models.IPRule  `yaml:"ip_rules"`
	Geofences        []map[string]any `yaml:"geofences"`
}

// fenceSpec is the decoded shape of one geofence entry. Geofence entries
// stay schemaless in YAML (polygon payloads are nested GeoJSON) and are
// decoded here with mapstructure, weakly typed so numeric YAML scalars fit.
type fenceSpec struct {
	Name         string          `mapstructure:"name"`
	Active       *bool           `mapstructure:"active"`
	CenterLat    *float64        `mapstructure:"center_lat"`
	CenterLon    *float64        `mapstructure:"center_lon"`
	RadiusMeters *float64        `mapstructure:"radius_meters"`
	Polygon      *models.Polygon `mapstructure:"polygon"`
}

// Store holds the current site set and answers lookups by ID or hostname.
// Reload swaps the whole set atomically.
type Store struct {
	path string
	mu   sync.RWMutex
	byID map[string]*Site
}

// NewStore loads the sites file and starts watching it for changes.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path, byID: make(map[string]*Site)}
	if err := s.reload(); err != nil {
		return nil, err
	}
	go s.watchForUpdates()
	return s, nil
}

// Lookup finds a site by its ID or hostname.
func (s *Store) Lookup(identifier string) (*Site, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	site, ok := s.byID[identifier]
	return site, ok
}

// Len returns the number of configured sites.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	seen := make(map[*Site]struct{})
	for _, site := range s.byID {
		if _, dup := seen[site]; !dup {
			seen[site] = struct{}{}
			n++
		}
	}
	return n
}

func (s *Store) reload() error {
	payload, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("could not read sites file %s: %w", s.path, err)
	}

	var parsed fileFormat
	if err := yaml.Unmarshal(payload, &parsed); err != nil {
		return fmt.Errorf("could not parse sites file %s: %w", s.path, err)
	}

	byID := make(map[string]*Site, len(parsed.Sites)*2)
	for i, spec := range parsed.Sites {
		site, err := buildSite(spec)
		if err != nil {
			return fmt.Errorf("site %d (%s): %w", i, spec.ID, err)
		}
		if site.ID != "" {
			byID[site.ID] = site
		}
		if site.Hostname != "" {
			byID[site.Hostname] = site
		}
	}

	s.mu.Lock()
	s.byID = byID
	s.mu.Unlock()

	log.Printf("sites: loaded %d site(s) from %s", len(parsed.Sites), s.path)
	return nil
}

func buildSite(spec siteSpec) (*Site, error) {
	if spec.ID == "" && spec.Hostname == "" {
		return nil, fmt.Errorf("site needs an id or a hostname")
	}

	site := &Site{
		ID:               spec.ID,
		Hostname:         spec.Hostname,
		Name:             spec.Name,
		FilterMode:       models.FilterMode(spec.FilterMode),
		BlockPageTitle:   spec.BlockPageTitle,
		BlockPageMessage: spec.BlockPageMessage,
		BlockPageURL:     spec.BlockPageURL,
		Rules:            spec.IPRules,
	}
	if site.FilterMode == "" {
		site.FilterMode = models.FilterDisabled
	}
	if site.BlockPageTitle == "" {
		site.BlockPageTitle = "Access denied"
	}

	for i, raw := range spec.Geofences {
		fence, err := decodeFence(raw)
		if err != nil {
			return nil, fmt.Errorf("geofence %d: %w", i, err)
		}
		site.Fences = append(site.Fences, fence)
	}

	return site, nil
}

func decodeFence(raw map[string]any) (models.Geofence, error) {
	var spec fenceSpec

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &spec,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return models.Geofence{}, err
	}
	if err := decoder.Decode(raw); err != nil {
		return models.Geofence{}, fmt.Errorf("failed to decode geofence: %w", err)
	}

	fence := models.Geofence{
		Name:         spec.Name,
		Polygon:      spec.Polygon,
		CenterLat:    spec.CenterLat,
		CenterLon:    spec.CenterLon,
		RadiusMeters: spec.RadiusMeters,
		Active:       true,
	}
	if spec.Active != nil {
		fence.Active = *spec.Active
	}
	return fence, nil
}

func (s *Store) watchForUpdates() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("sites: Error creating file watcher: %v", err)
		return
	}
	defer watcher.Close()

	// Watch the directory, as file updates can sometimes be atomic renames.
	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		log.Printf("sites: Error adding watcher for directory %s: %v", dir, err)
		return
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}

			if event.Name == s.path && (event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create || event.Op&fsnotify.Rename == fsnotify.Rename) {
				log.Printf("sites: file %s changed, reloading", s.path)
				if err := s.reload(); err != nil {
					// Keep serving the previous snapshot on a bad reload.
					log.Printf("sites: reload failed, keeping previous configuration: %v", err)
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("sites: Watcher error: %v", err)
			return
		}
	}
}
