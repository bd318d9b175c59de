package server

import (
	"encoding/json"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/steward-fi/steward/internal/database"
)

// SystemHandlers serves health and system status endpoints
type SystemHandlers struct {
	databases map[string]*database.DB
	startTime time.Time
	log       zerolog.Logger
}

// NewSystemHandlers creates system handlers
func NewSystemHandlers(databases map[string]*database.DB, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		databases: databases,
		startTime: time.Now(),
		log:       log.With().Str("handler", "system").Logger(),
	}
}

// HandleHealth is the liveness probe: cheap, no host metrics
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	databases := make(map[string]string, len(h.databases))
	status := http.StatusOK

	for name, db := range h.databases {
		if err := db.Conn().Ping(); err != nil {
			databases[name] = "unreachable"
			status = http.StatusServiceUnavailable
			continue
		}
		databases[name] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":         statusWord(status),
		"uptime_seconds": int(time.Since(h.startTime).Seconds()),
		"databases":      databases,
	})
}

// HandleSystemStatus returns host and process statistics
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPct, ramPct := h.getSystemStats()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	databases := make(map[string]interface{}, len(h.databases))
	for name, db := range h.databases {
		entry := map[string]interface{}{"path": db.Path()}
		if info, err := os.Stat(db.Path()); err == nil {
			entry["size_mb"] = float64(info.Size()) / 1024 / 1024
		}
		databases[name] = entry
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"uptime_seconds": int(time.Since(h.startTime).Seconds()),
		"cpu_percent":    cpuPct,
		"ram_percent":    ramPct,
		"goroutines":     runtime.NumGoroutine(),
		"heap_alloc_mb":  float64(memStats.HeapAlloc) / 1024 / 1024,
		"databases":      databases,
	})
}

// getSystemStats samples CPU over a short window so the endpoint stays fast
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

func statusWord(status int) string {
	if status == http.StatusOK {
		return "ok"
	}
	return "degraded"
}
