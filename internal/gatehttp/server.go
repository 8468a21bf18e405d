// Package gatehttp is the public HTTP surface of the gate: per-site
// access checks, the audit query API, readiness and metrics.
package gatehttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"geogate/internal/access"
	"geogate/internal/artifact"
	"geogate/internal/audit"
	"geogate/internal/config"
	"geogate/internal/models"
	"geogate/internal/sites"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	gpsHeader        = "X-Client-GPS"
	defaultListLimit = 100
)

var (
	allowedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "geogate",
		Name:      "allowed_total",
		Help:      "Total of allowed requests.",
	}, []string{"site"})
	blockedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "geogate",
		Name:      "blocked_total",
		Help:      "Total of blocked requests.",
	}, []string{"site"})
)

func init() {
	prometheus.Register(allowedTotal) //nolint:errcheck
	prometheus.Register(blockedTotal) //nolint:errcheck
}

var blockPageTemplate = template.Must(template.New("blockpage").Parse(`<!DOCTYPE html>
<html>
<head><title>{{.Title}}</title></head>
<body>
<h1>{{.Title}}</h1>
<p>{{.Message}}</p>
</body>
</html>
`))

// SiteDirectory answers site lookups by ID or hostname.
type SiteDirectory interface {
	Lookup(identifier string) (*sites.Site, bool)
}

type Server struct {
	sites    SiteDirectory
	engine   *access.Engine
	audits   audit.Manager
	capturer *artifact.Capturer
	store    *audit.Store
	server   *http.Server
}

type grantResponse struct {
	Status  string `json:"status"`
	Site    string `json:"site"`
	Message string `json:"message"`
}

// NewServer wires the gate endpoints. The audit store may be nil, in
// which case the audit query endpoints report the store as unavailable.
func NewServer(cfg *config.Config, directory SiteDirectory, engine *access.Engine, audits audit.Manager, capturer *artifact.Capturer, store *audit.Store) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if directory == nil {
		return nil, fmt.Errorf("site directory is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("access engine is required")
	}
	if audits == nil {
		return nil, fmt.Errorf("audit manager is required")
	}

	s := &Server{
		sites:    directory,
		engine:   engine,
		audits:   audits,
		capturer: capturer,
		store:    store,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/s/{site}", s.handleGate)
	mux.HandleFunc("/s/{site}/{rest...}", s.handleGate)
	mux.HandleFunc("/audit/records", s.handleAuditList)
	mux.HandleFunc("/ready", s.handleReady)
	mux.Handle("/metrics", promhttp.Handler())

	s.server = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s, nil
}

func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen for gate HTTP server on %s: %w", s.server.Addr, err)
	}

	s.server.Addr = listener.Addr().String()
	slog.Info("Gate HTTP server enabled", "addr", s.server.Addr)

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Gate HTTP server failed", "error", err)
		}
	}()

	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.server.Addr
}

func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) handleReady(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// handleGate evaluates access for one site and serves either a grant or
// the block page. Every evaluated request leaves an audit record.
func (s *Server) handleGate(w http.ResponseWriter, req *http.Request) {
	site, ok := s.sites.Lookup(req.PathValue("site"))
	if !ok {
		http.Error(w, "unknown site", http.StatusNotFound)
		return
	}

	clientIP := clientIP(req)
	gpsLat, gpsLon := parseGPSHeader(req.Header.Get(gpsHeader))

	decision := s.engine.Decide(req.Context(), access.Request{
		Mode:     site.FilterMode,
		ClientIP: clientIP,
		GPSLat:   gpsLat,
		GPSLon:   gpsLon,
		Rules:    site.ActiveRules(),
		Fences:   site.ActiveFences(),
	})

	var artifactKey string
	if decision.Allowed {
		allowedTotal.WithLabelValues(siteKey(site)).Inc()
		s.writeGrant(w, site, decision)
	} else {
		blockedTotal.WithLabelValues(siteKey(site)).Inc()
		artifactKey = s.writeBlockPage(w, req, site, decision, clientIP)
	}

	record := audit.NewRecord(siteKey(site), clientIP, decision, gpsLat, gpsLon, req.UserAgent(), artifactKey)
	s.audits.Broadcast(record)
}

func (s *Server) writeGrant(w http.ResponseWriter, site *sites.Site, decision models.AccessDecision) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	payload := grantResponse{Status: "allowed", Site: siteKey(site), Message: decision.Reason}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Failed to encode grant response", "error", err)
	}
}

// writeBlockPage renders the 403 page and, when capture is enabled,
// stores an artifact of what the client saw. The returned key is empty
// when nothing was captured.
func (s *Server) writeBlockPage(w http.ResponseWriter, req *http.Request, site *sites.Site, decision models.AccessDecision, clientIP string) string {
	var page bytes.Buffer
	data := struct {
		Title   string
		Message string
	}{Title: site.BlockPageTitle, Message: site.BlockPageMessage}

	if err := blockPageTemplate.Execute(&page, data); err != nil {
		slog.Error("Failed to render block page", "site", siteKey(site), "error", err)
		http.Error(w, "access denied", http.StatusForbidden)
		return ""
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusForbidden)
	_, _ = w.Write(page.Bytes())

	if s.capturer == nil {
		return ""
	}

	var result artifact.Result
	if site.BlockPageURL != "" {
		// The site hosts a custom block page elsewhere; snapshot that one.
		result = s.capturer.CaptureBlockPage(req.Context(), siteKey(site), clientIP, decision.Reason, site.BlockPageURL)
	} else {
		result = s.capturer.CaptureServed(siteKey(site), clientIP, page.Bytes())
	}
	if result.Err != nil {
		slog.Error("Block page capture failed", "site", siteKey(site), "error", result.Err)
	}
	return result.Key
}

// handleAuditList serves stored audit records as JSON, or CSV with
// ?format=csv. Only available when the sqlite audit backend is enabled.
func (s *Server) handleAuditList(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		http.Error(w, "audit store is not enabled", http.StatusServiceUnavailable)
		return
	}

	query := req.URL.Query()
	limit := parseIntParam(query.Get("limit"), defaultListLimit)
	offset := parseIntParam(query.Get("offset"), 0)

	records, err := s.store.List(req.Context(), query.Get("site"), limit, offset)
	if err != nil {
		slog.Error("Failed to list audit records", "error", err)
		http.Error(w, "failed to list audit records", http.StatusInternalServerError)
		return
	}

	if strings.EqualFold(query.Get("format"), "csv") {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="audit.csv"`)
		if err := audit.WriteCSV(w, records); err != nil {
			slog.Error("Failed to write audit CSV", "error", err)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(records); err != nil {
		slog.Error("Failed to encode audit records", "error", err)
	}
}

// clientIP prefers the first hop of X-Forwarded-For, then falls back to
// the connection's remote address.
func clientIP(req *http.Request) string {
	if forwarded := req.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}

// parseGPSHeader reads "lat,lon" device coordinates. Anything malformed
// is treated as no GPS fix.
func parseGPSHeader(value string) (*float64, *float64) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}

	rawLat, rawLon, found := strings.Cut(value, ",")
	if !found {
		return nil, nil
	}

	lat, err := strconv.ParseFloat(strings.TrimSpace(rawLat), 64)
	if err != nil {
		return nil, nil
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(rawLon), 64)
	if err != nil {
		return nil, nil
	}
	return &lat, &lon
}

func parseIntParam(value string, defaultValue int) int {
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return defaultValue
	}
	return parsed
}

func siteKey(site *sites.Site) string {
	if site.ID != "" {
		return site.ID
	}
	return site.Hostname
}
