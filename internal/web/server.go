package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"sync"
	"time"

	"portfolio-images/internal/config"
	"portfolio-images/internal/generator"
	"portfolio-images/internal/picture"
	"portfolio-images/internal/statistics"
	"portfolio-images/internal/verifier"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// ErrBusy is returned when a generation is already running.
var ErrBusy = errors.New("generation already in progress")

type Server struct {
	cfg        *config.Config
	log        *logrus.Logger
	router     *mux.Router
	httpServer *http.Server
	wsUpgrader websocket.Upgrader
	wsClients  map[*websocket.Conn]bool
	wsMutex    sync.RWMutex

	// Current operation state
	operationMutex sync.RWMutex
	isRunning      bool
	currentStats   *statistics.Statistics
	lastError      string
	lastFinished   time.Time
}

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func NewServer(cfg *config.Config, log *logrus.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		log:       log,
		router:    mux.NewRouter(),
		wsClients: make(map[*websocket.Conn]bool),
		wsUpgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // local preview only
			},
		},
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/generate", s.handleGenerate).Methods("POST")
	api.HandleFunc("/artifacts", s.handleArtifacts).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/", s.handleIndex).Methods("GET")

	// Artifacts are served under the same prefix the site uses.
	prefix := strings.TrimSuffix(s.cfg.Picture.PublicPath, "/") + "/"
	s.router.PathPrefix(prefix).Handler(
		http.StripPrefix(prefix, http.FileServer(http.Dir(s.cfg.OutputDirectory))),
	)
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.log.Infof("Starting preview server on http://localhost%s", addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	s.wsMutex.Lock()
	for conn := range s.wsClients {
		conn.Close()
		delete(s.wsClients, conn)
	}
	s.wsMutex.Unlock()

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Regenerate runs a generation synchronously. It returns ErrBusy when one is
// already running.
func (s *Server) Regenerate(ctx context.Context) error {
	if !s.tryStart() {
		return ErrBusy
	}
	return s.runGenerate(ctx)
}

func (s *Server) tryStart() bool {
	s.operationMutex.Lock()
	defer s.operationMutex.Unlock()
	if s.isRunning {
		return false
	}
	s.isRunning = true
	s.currentStats = statistics.NewStatistics()
	return true
}

func (s *Server) runGenerate(ctx context.Context) error {
	s.operationMutex.RLock()
	stats := s.currentStats
	s.operationMutex.RUnlock()

	params := generator.ParamsFromConfig(s.cfg)
	s.broadcastWSMessage("generate_started", map[string]interface{}{
		"source": params.SourcePath,
		"widths": params.Widths,
	})

	gen := generator.NewDefaultGeneratorWithProgress(s.log, stats, func(width int, results []generator.Result) {
		files := make([]string, 0, len(results))
		for _, r := range results {
			files = append(files, picture.URL(s.cfg.Picture.PublicPath, params.BaseName, r.Width, r.Encoding.Format))
		}
		s.broadcastWSMessage("width_written", map[string]interface{}{
			"width": width,
			"files": files,
		})
	})

	_, err := gen.Generate(ctx, params)

	s.operationMutex.Lock()
	s.isRunning = false
	s.lastFinished = time.Now()
	if err != nil {
		s.lastError = err.Error()
	} else {
		s.lastError = ""
	}
	s.operationMutex.Unlock()

	if err != nil {
		s.log.Errorf("Generation failed: %v", err)
		s.broadcastWSMessage("generate_error", map[string]interface{}{
			"error": err.Error(),
		})
		return err
	}

	s.broadcastWSMessage("generate_completed", map[string]interface{}{
		"statistics": stats.Snapshot(),
	})
	return nil
}

var indexTmpl = template.Must(template.New("index").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Responsive image preview</title>
<style>body{font-family:sans-serif;margin:2rem}picture img{max-width:100%;height:auto}</style>
</head>
<body>
<h1>{{.BaseName}}</h1>
<p>Widths: {{range $i, $w := .Widths}}{{if $i}}, {{end}}{{$w}}px{{end}}</p>
{{.Picture}}
<pre id="log"></pre>
<script>
const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
ws.onmessage = (ev) => {
  const msg = JSON.parse(ev.data);
  document.getElementById("log").textContent += msg.type + "\n";
  if (msg.type === "generate_completed") location.reload();
};
</script>
</body>
</html>`))

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	opts := picture.OptionsFromConfig(s.cfg)
	markup, err := picture.Markup(opts)
	if err != nil {
		s.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err = indexTmpl.Execute(w, map[string]interface{}{
		"BaseName": opts.BaseName,
		"Widths":   s.cfg.SortedWidths(),
		"Picture":  markup,
	})
	if err != nil {
		s.log.Errorf("Failed to render index: %v", err)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.RLock()
	running := s.isRunning
	stats := s.currentStats
	lastError := s.lastError
	lastFinished := s.lastFinished
	s.operationMutex.RUnlock()

	var statsData interface{}
	if stats != nil {
		statsData = map[string]interface{}{
			"summary":  stats.GetSummary(),
			"counters": stats.Snapshot(),
		}
	}

	var finished string
	if !lastFinished.IsZero() {
		finished = lastFinished.Format(time.RFC3339)
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"running":       running,
			"last_error":    lastError,
			"last_finished": finished,
			"statistics":    statsData,
		},
	})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if !s.tryStart() {
		s.writeError(w, ErrBusy.Error(), http.StatusConflict)
		return
	}

	go s.runGenerate(context.Background())

	s.writeJSON(w, APIResponse{
		Success: true,
		Message: "Generation started",
	})
}

func (s *Server) handleArtifacts(w http.ResponseWriter, r *http.Request) {
	report, err := verifier.New(s.log).Verify(generator.ParamsFromConfig(s.cfg))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, generator.ErrMissingSource) {
			status = http.StatusNotFound
		}
		s.writeError(w, err.Error(), status)
		return
	}

	s.writeJSON(w, APIResponse{
		Success: report.OK(),
		Data:    report,
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	s.wsMutex.Lock()
	s.wsClients[conn] = true
	s.wsMutex.Unlock()

	s.log.Debug("WebSocket client connected")

	defer func() {
		s.wsMutex.Lock()
		delete(s.wsClients, conn)
		s.wsMutex.Unlock()
		s.log.Debug("WebSocket client disconnected")
	}()

	// Keep connection alive
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			break
		}
	}
}

func (s *Server) broadcastWSMessage(messageType string, data interface{}) {
	message := WSMessage{
		Type: messageType,
		Data: data,
	}

	msgBytes, err := json.Marshal(message)
	if err != nil {
		s.log.Errorf("Failed to marshal WebSocket message: %v", err)
		return
	}

	// Writes are serialized under the write lock; gorilla connections
	// allow one concurrent writer.
	s.wsMutex.Lock()
	defer s.wsMutex.Unlock()

	for conn := range s.wsClients {
		if err := conn.WriteMessage(websocket.TextMessage, msgBytes); err != nil {
			s.log.Errorf("Failed to write WebSocket message: %v", err)
			delete(s.wsClients, conn)
			conn.Close()
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error:   message,
	})
}
