package app

import (
	"context"
	"fmt"
	"time"

	"nbcollab/internal/data/queue"
)

type HealthStatus struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components"`
}

type HealthService struct {
	app *App
}

func NewHealthService(app *App) *HealthService {
	return &HealthService{app: app}
}

func (s *HealthService) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:     "up",
		Timestamp:  time.Now().UTC(),
		Components: make(map[string]string),
	}
	if err := ctx.Err(); err != nil {
		status.Status = "down"
		status.Components["context"] = err.Error()
		return status
	}

	s.app.analysesMu.RLock()
	notebooks := len(s.app.analyses)
	s.app.analysesMu.RUnlock()
	status.Components["notebooks"] = fmt.Sprintf("ok (%d analyzed)", notebooks)

	switch {
	case s.app.history != nil:
		status.Components["history"] = "ok"
	case s.app.Config.DB.Enabled:
		status.Status = "degraded"
		status.Components["history"] = "missing but enabled in config"
	default:
		status.Components["history"] = "disabled"
	}

	s.app.watcherMu.Lock()
	watching := s.app.activeWatcher != nil
	s.app.watcherMu.Unlock()
	if watching {
		status.Components["watcher"] = "running"
	} else {
		status.Components["watcher"] = "idle"
	}

	if mq, ok := s.app.writeQueue.(*queue.MemoryQueue); ok {
		status.Components["write_queue"] = fmt.Sprintf("ok (%d pending)", mq.Len())
	}
	return status
}
