package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/gridsentry/gridwatch/internal/monitor"
	"github.com/gridsentry/gridwatch/internal/prefs"
	"github.com/gridsentry/gridwatch/internal/version"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Server exposes the engine over a local HTTP interface.
type Server struct {
	engine *monitor.Engine
	prefs  *prefs.Store
	hub    *Hub
	listen string
	server *http.Server
}

// ServerConfig contains construction options for the dashboard server.
type ServerConfig struct {
	Engine *monitor.Engine
	Prefs  *prefs.Store
	Listen string
}

// NewServer wires the dashboard server and subscribes its WebSocket hub to
// engine updates.
func NewServer(config ServerConfig) *Server {
	s := &Server{
		engine: config.Engine,
		prefs:  config.Prefs,
		hub:    NewHub(),
		listen: config.Listen,
	}
	s.engine.Subscribe(s.hub.BroadcastUpdate)

	s.server = &http.Server{
		Addr:    s.listen,
		Handler: s.Handler(),
	}
	return s
}

// ServeMux mounts all dashboard routes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/events", s.listEvents)
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/mode", s.switchMode)
	mux.HandleFunc("/api/refresh", s.refreshNow)
	mux.HandleFunc("/api/export.csv", s.exportCSV)
	mux.HandleFunc("/api/prefs/darkmode", s.darkMode)
	mux.HandleFunc("/api/version", s.showVersion)
	mux.HandleFunc("/charts/consumption", s.handleConsumptionChart)
	mux.HandleFunc("/charts/consumption.png", s.handleConsumptionPNG)
	mux.HandleFunc("/ws", s.hub.HandleWebSocket)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/", s.root)
	return mux
}

// Handler wraps the mux with request logging and permissive CORS (the
// original dashboard backend allowed any origin; this is a local tool).
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(LoggingMiddleware(s.ServeMux()))
}

// Start begins the HTTP server and handles graceful shutdown when the
// context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		log.Printf("dashboard listening on %s", s.listen)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start dashboard server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down dashboard server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("dashboard shutdown error: %v", err)
		if err := s.server.Close(); err != nil {
			log.Printf("dashboard force close error: %v", err)
		}
	}
	return nil
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	default:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	}
}

// LoggingMiddleware logs method, path, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to write response: %v", err)
	}
}

func (s *Server) root(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	http.Redirect(w, r, "/charts/consumption", http.StatusFound)
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.writeJSON(w, s.engine.Events())
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.writeJSON(w, s.engine.Stats())
}

// statusResponse is the status block for the dashboard header: the latest
// reading's classification plus mode and connectivity.
type statusResponse struct {
	Mode      monitor.Mode    `json:"mode"`
	Connected bool            `json:"connected"`
	Status    *monitor.Status `json:"status"`
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	snap := s.engine.Snapshot()
	s.writeJSON(w, statusResponse{
		Mode:      snap.Mode,
		Connected: snap.Connected,
		Status:    snap.Status,
	})
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.writeJSON(w, version.Info())
}

func (s *Server) switchMode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	mode, err := monitor.ParseMode(r.FormValue("mode"))
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.engine.SwitchMode(r.Context(), mode); err != nil {
		s.writeJSONError(w, http.StatusBadGateway, fmt.Sprintf("Failed to switch mode: %v", err))
		return
	}
	s.writeJSON(w, map[string]string{"mode": string(mode)})
}

func (s *Server) refreshNow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.engine.RefreshNow(r.Context())
	s.writeJSON(w, s.engine.Snapshot())
}

// exportCSV streams the current history as CSV, oldest first. Values are
// written raw with comma joins and no quoting; the data domain contains no
// embedded delimiters.
func (s *Server) exportCSV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="meter_history.csv"`)

	fmt.Fprintln(w, "Timestamp,Consumption (kWh),Risk Score (%),Anomaly")
	for _, e := range s.engine.Events() {
		anomaly := 0
		if e.Anomaly {
			anomaly = 1
		}
		fmt.Fprintf(w, "%s,%s,%s,%d\n",
			e.Timestamp,
			strconv.FormatFloat(e.Consumption, 'f', -1, 64),
			strconv.FormatFloat(e.RiskScore, 'f', -1, 64),
			anomaly,
		)
	}
}

func (s *Server) darkMode(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		dark, err := s.prefs.DarkMode()
		if err != nil {
			s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to read preference: %v", err))
			return
		}
		s.writeJSON(w, map[string]bool{"dark_mode": dark})
	case http.MethodPost:
		// The user action is a toggle; the new value is returned.
		dark, err := s.prefs.DarkMode()
		if err != nil {
			s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to read preference: %v", err))
			return
		}
		if err := s.prefs.SetDarkMode(!dark); err != nil {
			s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to store preference: %v", err))
			return
		}
		s.writeJSON(w, map[string]bool{"dark_mode": !dark})
	default:
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}
