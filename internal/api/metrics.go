package api

import (
	"context"
	"net/http"
	"runtime"
	"time"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string            `json:"timestamp"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Runtime       RuntimeMetrics    `json:"runtime"`
	WebSocket     WSMetrics         `json:"websocket"`
	Sync          SyncMetrics       `json:"sync"`
	Services      ServiceMetrics    `json:"services"`
	Database      *DatabaseMetrics  `json:"database,omitempty"`
	Components    map[string]string `json:"components,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int    `json:"connected_clients"`
	DroppedMessages  uint64 `json:"dropped_messages"`
}

// SyncMetrics describes the link to the box.
type SyncMetrics struct {
	Configured bool   `json:"configured"`
	Origin     string `json:"origin,omitempty"`
	LoggedIn   bool   `json:"logged_in"`
	Polling    bool   `json:"polling"`
	Boxes      int    `json:"boxes"`
}

// ServiceMetrics contains cache statistics.
type ServiceMetrics struct {
	Total  int            `json:"total"`
	ByType map[string]int `json:"by_type"`
	ByTag  map[string]int `json:"by_tag"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns runtime, cache and component metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
			DroppedMessages:  s.hub.Dropped(),
		},
		Sync: SyncMetrics{
			Configured: s.core.Configured(ctx),
			Origin:     s.core.Origin(ctx),
			LoggedIn:   s.core.IsLoggedIn(ctx),
			Polling:    s.core.PollingEnabled(ctx),
			Boxes:      len(s.core.Boxes()),
		},
		Services: ServiceMetrics{
			ByType: make(map[string]int),
			ByTag:  make(map[string]int),
		},
	}

	if services, err := s.core.Services(ctx); err == nil {
		metrics.Services.Total = len(services)
		for _, svc := range services {
			metrics.Services.ByType[svc.Type]++
			for _, tag := range svc.Tags {
				metrics.Services.ByTag[tag]++
			}
		}
	} else {
		s.logger.Warn("metrics: listing services failed", "error", err)
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = &DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	if len(s.components) > 0 {
		hctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		defer cancel()
		metrics.Components = make(map[string]string, len(s.components))
		for name, c := range s.components {
			if err := c.HealthCheck(hctx); err != nil {
				metrics.Components[name] = err.Error()
				continue
			}
			metrics.Components[name] = "ok"
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
