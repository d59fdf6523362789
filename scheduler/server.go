package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebServer provides HTTP endpoints for health checking and monitoring
type WebServer struct {
	scheduler *FleetScheduler
	server    *http.Server
	port      int
	startTime time.Time
	upgrader  websocket.Upgrader
	clients   sync.Map
	broadcast chan []byte
	done      chan struct{}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string          `json:"status"`
	Timestamp string          `json:"timestamp"`
	Version   string          `json:"version,omitempty"`
	Scheduler SchedulerHealth `json:"scheduler"`
	System    SystemHealth    `json:"system"`
}

// SchedulerHealth represents scheduler-specific health information
type SchedulerHealth struct {
	IsRunning        bool   `json:"is_running"`
	SitesCount       int    `json:"sites_count"`
	OptimizedSites   int    `json:"optimized_sites"`
	OptimizationHour int    `json:"optimization_hour"`
	DispatchInterval string `json:"dispatch_interval"`
}

// SystemHealth represents system-level health information
type SystemHealth struct {
	Uptime string `json:"uptime"`
}

// SiteStatus summarizes the latest optimization of one site.
type SiteStatus struct {
	Name          string  `json:"name"`
	GridArea      string  `json:"grid_area"`
	LastRun       string  `json:"last_run,omitempty"`
	DataQuality   string  `json:"data_quality,omitempty"`
	SavingsTotal  float64 `json:"savings_total,omitempty"`
	SavingsPct    float64 `json:"savings_pct,omitempty"`
	PeakKWWith    float64 `json:"peak_kw_with,omitempty"`
	PeakKWWithout float64 `json:"peak_kw_without,omitempty"`
}

// NewWebServer creates a new web server with health endpoints
func NewWebServer(scheduler *FleetScheduler, port int) *WebServer {
	if port <= 0 {
		return nil // Health server disabled
	}

	mux := http.NewServeMux()
	hs := &WebServer{
		scheduler: scheduler,
		port:      port,
		startTime: time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins in development
			},
		},
		broadcast: make(chan []byte, 256),
		done:      make(chan struct{}),
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}

	// Register API routes
	mux.HandleFunc("/api/health", hs.healthHandler)
	mux.HandleFunc("/api/ready", hs.readinessHandler)
	mux.HandleFunc("/api/status", hs.statusHandler)
	mux.HandleFunc("/api/ws", hs.wsHandler)

	return hs
}

// Start starts the web server
func (hs *WebServer) Start() error {
	if hs == nil {
		return nil // Web server disabled
	}

	go hs.handleBroadcasts()
	go hs.broadcastStatus()

	go func() {
		if err := hs.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// Log error but don't crash the main application
			fmt.Printf("Web server error: %v\n", err)
		}
	}()

	return nil
}

// Stop gracefully stops the web server
func (hs *WebServer) Stop(ctx context.Context) error {
	if hs == nil {
		return nil // Web server disabled
	}

	// Signal goroutines to stop
	close(hs.done)

	// Close all WebSocket connections
	hs.clients.Range(func(key, value any) bool {
		if conn, ok := key.(*websocket.Conn); ok {
			conn.Close()
		}
		return true
	})

	return hs.server.Shutdown(ctx)
}

// healthHandler handles the /api/health endpoint
func (hs *WebServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := hs.buildHealth()

	if health.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(health); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// readinessHandler handles the /api/ready endpoint
func (hs *WebServer) readinessHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := hs.scheduler.GetStatus()

	ready := map[string]any{
		"ready":     status.IsRunning,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")

	if !status.IsRunning {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	if err := json.NewEncoder(w).Encode(ready); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// statusHandler handles the /api/status endpoint (detailed status)
func (hs *WebServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(hs.buildStatusData()); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// wsHandler handles WebSocket connections
func (hs *WebServer) wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := hs.upgrader.Upgrade(w, r, nil)
	if err != nil {
		fmt.Printf("WebSocket upgrade error: %v\n", err)
		return
	}

	// Register new client
	hs.clients.Store(conn, true)

	// Send initial data immediately
	hs.sendStatusToClient(conn)

	// Handle client disconnection
	defer func() {
		hs.clients.Delete(conn)
		conn.Close()
	}()

	// Read messages from client (ping/pong, close)
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				fmt.Printf("WebSocket error: %v\n", err)
			}
			break
		}
	}
}

// handleBroadcasts sends messages to all connected clients
func (hs *WebServer) handleBroadcasts() {
	for {
		select {
		case message := <-hs.broadcast:
			hs.clients.Range(func(key, value any) bool {
				conn, ok := key.(*websocket.Conn)
				if !ok {
					return true
				}

				err := conn.WriteMessage(websocket.TextMessage, message)
				if err != nil {
					fmt.Printf("WebSocket write error: %v\n", err)
					conn.Close()
					hs.clients.Delete(conn)
				}
				return true
			})
		case <-hs.done:
			return
		}
	}
}

// broadcastStatus periodically broadcasts status updates
func (hs *WebServer) broadcastStatus() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			hasClients := false
			hs.clients.Range(func(key, value any) bool {
				hasClients = true
				return false // Stop after finding first client
			})

			if hasClients {
				message, err := json.Marshal(hs.buildStatusData())
				if err != nil {
					fmt.Printf("Failed to marshal status data: %v\n", err)
					continue
				}
				hs.broadcast <- message
			}
		case <-hs.done:
			return
		}
	}
}

// sendStatusToClient sends status data to a specific client
func (hs *WebServer) sendStatusToClient(conn *websocket.Conn) {
	if err := conn.WriteJSON(hs.buildStatusData()); err != nil {
		fmt.Printf("Failed to send initial data: %v\n", err)
	}
}

// buildHealth builds the health response
func (hs *WebServer) buildHealth() HealthResponse {
	status := hs.scheduler.GetStatus()
	config := hs.scheduler.GetConfig()

	health := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   "1.0.0",
		Scheduler: SchedulerHealth{
			IsRunning:        status.IsRunning,
			SitesCount:       status.SitesCount,
			OptimizedSites:   status.OptimizedSites,
			OptimizationHour: config.OptimizationHour,
			DispatchInterval: config.DispatchInterval.String(),
		},
		System: SystemHealth{
			Uptime: formatUptime(time.Since(hs.startTime)),
		},
	}

	if !status.IsRunning {
		health.Status = "unhealthy"
	}
	return health
}

// buildStatusData builds combined health and per-site status data
func (hs *WebServer) buildStatusData() map[string]any {
	config := hs.scheduler.GetConfig()

	sites := make([]SiteStatus, 0, len(config.Sites))
	for i := range config.Sites {
		site := &config.Sites[i]
		ss := SiteStatus{
			Name:     site.Name,
			GridArea: site.Property.GridArea,
		}
		if result := hs.scheduler.GetLastResult(site.Name); result != nil {
			ss.DataQuality = string(result.DataQuality)
			ss.SavingsTotal = result.SavingsTotal
			ss.SavingsPct = result.SavingsPct
			ss.PeakKWWith = result.PeakKWWith
			ss.PeakKWWithout = result.PeakKWWithout
		}
		hs.scheduler.mu.RLock()
		if at, ok := hs.scheduler.lastRunAt[site.Name]; ok {
			ss.LastRun = at.UTC().Format(time.RFC3339)
		}
		hs.scheduler.mu.RUnlock()
		sites = append(sites, ss)
	}

	return map[string]any{
		"type":   "status_update",
		"health": hs.buildHealth(),
		"status": map[string]any{
			"scheduler_status": hs.scheduler.GetStatus(),
			"sites": map[string]any{
				"count": len(sites),
				"list":  sites,
			},
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	}
}

// formatUptime formats a duration as a string with seconds rounded to integer
func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
