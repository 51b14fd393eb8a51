package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemStatus is the response of GET /api/v1/status.
type SystemStatus struct {
	Timestamp     string          `json:"timestamp"`
	Version       string          `json:"version"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Runtime       RuntimeStatus   `json:"runtime"`
	Sessions      SessionStatus   `json:"sessions"`
	MQTT          ConnStatus      `json:"mqtt"`
	InfluxDB      ConnStatus      `json:"influxdb"`
	Database      DatabaseMetrics `json:"database"`
}

// RuntimeStatus contains Go runtime statistics.
type RuntimeStatus struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// SessionStatus describes the open floor plan sessions.
type SessionStatus struct {
	Open        int `json:"open"`
	LiveImages  int `json:"live_images"`
	LiveDevices int `json:"live_devices"`
}

// ConnStatus reports an external connection. Enabled is false when the
// service runs without it.
type ConnStatus struct {
	Enabled   bool `json:"enabled"`
	Connected bool `json:"connected"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleStatus returns a JSON snapshot of the service.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	status := SystemStatus{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeStatus{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Sessions: s.sessions.status(),
	}

	if s.mqtt != nil {
		status.MQTT = ConnStatus{Enabled: true, Connected: s.mqtt.IsConnected()}
	}
	if s.influx != nil {
		status.InfluxDB = ConnStatus{Enabled: true, Connected: s.influx.IsConnected()}
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		status.Database = DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, status)
}
