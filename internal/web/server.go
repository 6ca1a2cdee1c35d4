package web

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"github.com/vadiminshakov/estate/internal"
	"github.com/vadiminshakov/estate/internal/domain"
	"github.com/vadiminshakov/estate/internal/services/executor"
	"github.com/vadiminshakov/estate/internal/services/market"
)

const (
	summaryPollInterval = 2 * time.Second
	heartbeatInterval   = 30 * time.Second
	shutdownTimeout     = 5 * time.Second

	// DefaultCertCache is where issued certificates are kept when no cache
	// directory is configured.
	DefaultCertCache = "cert-cache"
)

type registryView interface {
	Current() *domain.Snapshot
	Portfolio() (domain.Portfolio, error)
	Resolve(ctx context.Context, query string) (domain.Resolution, error)
	PlatformStats() (domain.PlatformStats, error)
	Investments() ([]domain.DecoratedAsset, market.InvestmentStats, error)
	Rentals(q market.RentalQuery) ([]domain.DecoratedAsset, market.RentalStats, error)
	Pending() []domain.MutationKey
}

type summaryReader interface {
	SummariesAfter(index uint64) ([]domain.SnapshotSummaryRecord, error)
	SummariesFor(account common.Address, index uint64) ([]domain.SnapshotSummaryRecord, error)
}

type journalReader interface {
	Entries() []executor.JournalEntry
}

// Server exposes the published registry view as JSON and the snapshot
// history as an SSE stream. It never mutates the registry.
type Server struct {
	Addr    string
	View    registryView
	History summaryReader
	Journal journalReader
	logger  *zap.Logger
}

// NewServer creates a new web server instance. history and journal may be nil.
func NewServer(addr string, view registryView, history summaryReader, journal journalReader, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{Addr: addr, View: view, History: history, Journal: journal, logger: logger}
}

// Handler returns the routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/snapshot", s.handleSnapshot)
	mux.HandleFunc("/api/portfolio", s.handlePortfolio)
	mux.HandleFunc("/api/explorer", s.handleExplorer)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/market/investments", s.handleInvestments)
	mux.HandleFunc("/api/market/rentals", s.handleRentals)
	mux.HandleFunc("/api/pending", s.handlePending)
	mux.HandleFunc("/api/journal", s.handleJournal)
	mux.HandleFunc("/snapshots/stream", s.handleSnapshotStream)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	server := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("web view listening", zap.String("addr", s.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StartWithAutoTLS serves the view over HTTPS with certificates issued via
// ACME for domains. A plain HTTP server on :80 answers the HTTP-01
// challenges and redirects everything else to HTTPS.
func (s *Server) StartWithAutoTLS(ctx context.Context, domains []string, cacheDir string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	manager, err := certManager(domains, cacheDir)
	if err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:              ":80",
		Handler:           manager.HTTPHandler(nil),
		ReadHeaderTimeout: 5 * time.Second,
	}

	tlsConfig := manager.TLSConfig()
	tlsConfig.MinVersion = tls.VersionTLS12

	httpsSrv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		TLSConfig:         tlsConfig,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("acme challenge server shutdown", zap.Error(err))
		}
		if err := httpsSrv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("https server shutdown", zap.Error(err))
		}
	}()

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("acme challenge server stopped", zap.Error(err))
		}
	}()

	s.logger.Info("web view listening with automatic tls",
		zap.String("addr", s.Addr),
		zap.Strings("domains", domains))
	if err := httpsSrv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// certManager issues certificates for domains only, caching them in cacheDir.
func certManager(domains []string, cacheDir string) (*autocert.Manager, error) {
	if len(domains) == 0 {
		return nil, errors.New("no domains provided for automatic tls")
	}
	if cacheDir == "" {
		cacheDir = DefaultCertCache
	}
	return &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(domains...),
		Cache:      autocert.DirCache(cacheDir),
	}, nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, indexHTML)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	snap := s.View.Current()
	if snap == nil {
		s.writeError(w, internal.ErrNoSnapshot)
		return
	}
	s.writeJSON(w, snap)
}

func (s *Server) handlePortfolio(w http.ResponseWriter, _ *http.Request) {
	p, err := s.View.Portfolio()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, p)
}

func (s *Server) handleExplorer(w http.ResponseWriter, r *http.Request) {
	res, err := s.View.Resolve(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, res)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	stats, err := s.View.PlatformStats()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, stats)
}

type investmentsResponse struct {
	Assets []domain.DecoratedAsset `json:"assets"`
	Stats  market.InvestmentStats  `json:"stats"`
}

func (s *Server) handleInvestments(w http.ResponseWriter, _ *http.Request) {
	list, stats, err := s.View.Investments()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, investmentsResponse{Assets: list, Stats: stats})
}

type rentalsResponse struct {
	Assets []domain.DecoratedAsset `json:"assets"`
	Stats  market.RentalStats      `json:"stats"`
}

func (s *Server) handleRentals(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	tag, err := market.ParseTag(query.Get("tag"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	order, err := market.ParseOrder(query.Get("order"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	list, stats, err := s.View.Rentals(market.RentalQuery{Search: query.Get("search"), Tag: tag, Order: order})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, rentalsResponse{Assets: list, Stats: stats})
}

func (s *Server) handlePending(w http.ResponseWriter, _ *http.Request) {
	keys := s.View.Pending()
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k.String())
	}
	s.writeJSON(w, out)
}

func (s *Server) handleJournal(w http.ResponseWriter, _ *http.Request) {
	if s.Journal == nil {
		http.Error(w, "mutation journal not available", http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, s.Journal.Entries())
}

func (s *Server) handleSnapshotStream(w http.ResponseWriter, r *http.Request) {
	if s.History == nil {
		http.Error(w, "snapshot history not available", http.StatusServiceUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	// ?account= narrows the stream to one account's history
	load := s.History.SummariesAfter
	if q := r.URL.Query().Get("account"); q != "" {
		if !common.IsHexAddress(q) {
			s.writeError(w, errors.Wrapf(domain.ErrInvalidQuery, "account %q", q))
			return
		}
		account := common.HexToAddress(q)
		load = func(index uint64) ([]domain.SnapshotSummaryRecord, error) {
			return s.History.SummariesFor(account, index)
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// send a comment heartbeat so proxies keep the connection
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	pollTicker := time.NewTicker(summaryPollInterval)
	defer pollTicker.Stop()

	lastIndex := uint64(0)
	sendSummaries := func() error {
		records, err := load(lastIndex)
		if err != nil {
			return err
		}
		for _, record := range records {
			payload, err := json.Marshal(record.Summary)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "event: snapshot\n")
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
			lastIndex = record.Index
		}
		return nil
	}

	if err := sendSummaries(); err != nil {
		http.Error(w, "failed to load snapshot history", http.StatusInternalServerError)
		s.logger.Warn("snapshot stream initial load failed", zap.Error(err))
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case <-pollTicker.C:
			if err := sendSummaries(); err != nil {
				s.logger.Warn("snapshot stream poll failed", zap.Error(err))
			}
		}
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, internal.ErrNoSnapshot):
		status = http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidQuery), errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotConnected):
		status = http.StatusConflict
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to encode response", zap.Error(err))
	}
}

// Single page showing the published portfolio and the snapshot history.
const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <title>Estate</title>
  <link href="https://fonts.googleapis.com/css2?family=Space+Mono:wght@400;700&display=swap" rel="stylesheet">
  <style>
    :root { --bg:#ffffff; --ink:#111111; --ink-soft:#9c9c9c; --panel:#f6f6f6; }
    * { box-sizing:border-box; }
    body { margin:0; padding:2rem; background:var(--bg); color:var(--ink); font-family:'Space Mono',monospace; }
    #app { max-width:1100px; margin:0 auto; background:var(--panel); border:3px solid var(--ink); padding:2rem; box-shadow:12px 12px 0 rgba(0,0,0,.15); }
    h1 { margin-top:0; letter-spacing:.2em; }
    h2 { font-size:.9rem; text-transform:uppercase; letter-spacing:.15em; color:var(--ink-soft); }
    table { width:100%; border-collapse:collapse; }
    td, th { text-align:left; padding:.35rem .5rem; border-bottom:1px solid rgba(0,0,0,.1); }
    .stats { display:flex; gap:2rem; }
    .stat b { display:block; font-size:1.3rem; }
  </style>
</head>
<body>
<div id="app">
  <h1>ESTATE</h1>
  <div class="stats">
    <div class="stat"><span>Version</span><b id="version">-</b></div>
    <div class="stat"><span>Assets</span><b id="assets">-</b></div>
    <div class="stat"><span>Balance (wei)</span><b id="balance">-</b></div>
    <div class="stat"><span>Locked deposit (wei)</span><b id="locked">-</b></div>
  </div>
  <h2>Assets</h2>
  <table><thead><tr><th>ID</th><th>Name</th><th>Status</th><th>Sold</th><th>Roles</th></tr></thead><tbody id="rows"></tbody></table>
  <h2>History</h2>
  <table><thead><tr><th>Version</th><th>Built</th><th>Assets</th><th>Failures</th></tr></thead><tbody id="history"></tbody></table>
</div>
<script>
function roles(r) {
  return [r.is_owner ? 'owner' : '', r.is_investor ? 'investor' : '', r.is_tenant ? 'tenant' : ''].filter(Boolean).join(', ');
}
function loadSnapshot() {
  fetch('/api/snapshot').then(r => r.ok ? r.json() : null).then(s => {
    if (!s) return;
    document.getElementById('version').textContent = s.version;
    document.getElementById('assets').textContent = s.assets.length;
    document.getElementById('balance').textContent = s.balance;
    document.getElementById('locked').textContent = s.locked_deposit;
    document.getElementById('rows').innerHTML = s.assets.map(a =>
      '<tr><td>' + a.id + '</td><td>' + a.info.name + '</td><td>' + a.status + '</td><td>' +
      a.total_shares_sold + '%</td><td>' + roles(a.roles) + '</td></tr>').join('');
  });
}
const stream = new EventSource('/snapshots/stream');
stream.addEventListener('snapshot', e => {
  const s = JSON.parse(e.data);
  const row = document.createElement('tr');
  row.innerHTML = '<td>' + s.version + '</td><td>' + s.ts + '</td><td>' + s.assets + '</td><td>' + s.failures + '</td>';
  document.getElementById('history').prepend(row);
  loadSnapshot();
});
loadSnapshot();
</script>
</body>
</html>
`
