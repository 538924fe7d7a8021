package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/mblarson/omnihome/internal/persistence"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string          `json:"timestamp"`
	Version       string          `json:"version"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Runtime       RuntimeMetrics  `json:"runtime"`
	WebSocket     WSMetrics       `json:"websocket"`
	MQTT          MQTTMetrics     `json:"mqtt"`
	Storage       *StorageMetrics `json:"storage,omitempty"`
	Devices       DeviceMetrics   `json:"devices"`
	Database      DatabaseMetrics `json:"database"`
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
	ConnectedClients int `json:"connected_clients"`
}

// MQTTMetrics contains MQTT mirror client statistics.
type MQTTMetrics struct {
	Connected bool `json:"connected"`
}

// StorageMetrics reports which device store is active.
type StorageMetrics struct {
	Mode      persistence.Mode `json:"mode"`
	Connected bool             `json:"connected"`
	LastError string           `json:"last_error,omitempty"`
}

// DeviceMetrics contains device list statistics.
type DeviceMetrics struct {
	Total  int            `json:"total"`
	Active int            `json:"active"`
	ByType map[string]int `json:"by_type"`
	ByRoom map[string]int `json:"by_room"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns system metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     s.now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(s.now().Sub(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
	}

	if m := s.mqttStatus(); m != nil {
		metrics.MQTT.Connected = m.IsConnected()
	}

	if s.storage != nil {
		st := s.storage.Status()
		metrics.Storage = &StorageMetrics{Mode: st.Mode, Connected: st.Connected, LastError: st.LastError}
	}

	devices := s.devices.Devices()
	metrics.Devices = DeviceMetrics{
		Total:  len(devices),
		ByType: make(map[string]int),
		ByRoom: make(map[string]int),
	}
	for _, d := range devices {
		if d.IsOn {
			metrics.Devices.Active++
		}
		metrics.Devices.ByType[string(d.Type)]++
		metrics.Devices.ByRoom[d.Room]++
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
