// Package system serves the operational endpoints: health and metrics.
package system

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"voice-quiz-server/internal/platform/logging"
	"voice-quiz-server/internal/platform/observability"
	httptransport "voice-quiz-server/internal/transport/http"
)

// Check probes one dependency. A nil error means up.
type Check func(ctx context.Context) error

type Service struct {
	logger  *logging.Logger
	metrics *observability.Metrics
	checks  map[string]Check
	started time.Time
}

func NewService(logger *logging.Logger, metrics *observability.Metrics, checks map[string]Check) *Service {
	return &Service{logger: logger, metrics: metrics, checks: checks, started: time.Now()}
}

func (s *Service) Register(ctx context.Context, router *gin.RouterGroup) error {
	router.GET("/health", s.handleHealth)
	if s.metrics != nil {
		h := s.metrics.Handler()
		router.GET("/metrics", gin.WrapH(h))
	}
	s.logger.InfoTag("HTTP", "system routes registered")
	return nil
}

type HealthData struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
	Uptime     string            `json:"uptime"`
	Goroutines int               `json:"goroutines"`
	Host       *HostStats        `json:"host,omitempty"`
}

type HostStats struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	MemoryUsedMB  uint64  `json:"memory_used_mb"`
	MemoryTotalMB uint64  `json:"memory_total_mb"`
}

func (s *Service) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	data := HealthData{
		Status:     "ok",
		Components: make(map[string]string, len(s.checks)),
		Uptime:     time.Since(s.started).Round(time.Second).String(),
		Goroutines: runtime.NumGoroutine(),
		Host:       hostStats(ctx),
	}
	status := http.StatusOK
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			s.logger.WarnTag("HTTP", "health check %s failed: %v", name, err)
			data.Components[name] = "down"
			data.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		data.Components[name] = "up"
	}

	if status != http.StatusOK {
		httptransport.RespondError(c, status, "dependency unavailable", data)
		return
	}
	httptransport.RespondSuccess(c, status, data, "")
}

// hostStats is best effort; a platform without /proc just omits it.
func hostStats(ctx context.Context) *HostStats {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil
	}
	stats := &HostStats{
		MemoryPercent: vm.UsedPercent,
		MemoryUsedMB:  vm.Used >> 20,
		MemoryTotalMB: vm.Total >> 20,
	}
	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		stats.CPUPercent = pct[0]
	}
	return stats
}
