package service

import (
	"context"
	"time"

	"github.com/ordercast/notify-service/internal/repo"
	"go.uber.org/zap"
)

// LifecycleManager retires endpoints the delivery paths report unreachable
// and reclaims expired rows.
type LifecycleManager struct {
	repo repo.RepositoryInterface
	log  *zap.SugaredLogger
}

// NewLifecycleManager returns LifecycleManager.
func NewLifecycleManager(r repo.RepositoryInterface, logger *zap.SugaredLogger) *LifecycleManager {
	return &LifecycleManager{repo: r, log: logger}
}

// OnTransportGone deactivates an endpoint after a definitive "gone" signal
// from either delivery path. Idempotent; the row stays for TTL reclamation
// so a late re-registration can resurrect it.
func (m *LifecycleManager) OnTransportGone(ctx context.Context, endpointID string) {
	if err := m.repo.DeactivateEndpoint(ctx, endpointID); err != nil {
		m.log.Errorf("deactivate endpoint %s: %v", endpointID, err)
		return
	}
	m.log.Infow("endpoint deactivated", "endpoint_id", endpointID)
}

// SweepExpired hard-deletes endpoints and push logs past their TTL.
// Pure storage reclamation: deactivated rows are already excluded from
// fan-out, so a failed sweep only defers disk space to the next tick.
func (m *LifecycleManager) SweepExpired(ctx context.Context) (endpoints, logs int64) {
	now := time.Now()
	var err error
	if endpoints, err = m.repo.DeleteExpiredEndpoints(ctx, now); err != nil {
		m.log.Errorf("sweep endpoints: %v", err)
	}
	if logs, err = m.repo.DeleteExpiredPushLogs(ctx, now); err != nil {
		m.log.Errorf("sweep push logs: %v", err)
	}
	if endpoints > 0 || logs > 0 {
		m.log.Infow("sweep complete", "endpoints", endpoints, "push_logs", logs)
	}
	return endpoints, logs
}
