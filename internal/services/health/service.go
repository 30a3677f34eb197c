package health

import (
	"context"
	"time"
)

const pingTimeout = 2 * time.Second

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Service reports whether the work order store and staging backends are usable.
type Service struct {
	DB          Pinger
	StoreType   string
	QueueActive bool
}

// Report is the health payload.
type Report struct {
	OK         bool              `json:"ok"`
	Components map[string]string `json:"components"`
}

// NewService constructs a health service. db may be nil when the in-memory
// repository is in use.
func NewService(db Pinger, storeType string, queueActive bool) *Service {
	return &Service{DB: db, StoreType: storeType, QueueActive: queueActive}
}

// Status checks the database and describes the configured backends.
func (s *Service) Status(ctx context.Context) Report {
	report := Report{OK: true, Components: map[string]string{}}
	if s == nil {
		return report
	}

	switch {
	case s.DB == nil:
		report.Components["workOrders"] = "memory"
	default:
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		if err := s.DB.PingContext(pingCtx); err != nil {
			report.OK = false
			report.Components["workOrders"] = "unavailable"
		} else {
			report.Components["workOrders"] = "postgres"
		}
	}

	report.Components["staging"] = s.StoreType
	if s.QueueActive {
		report.Components["replayQueue"] = "sqs"
	} else {
		report.Components["replayQueue"] = "disabled"
	}
	return report
}
