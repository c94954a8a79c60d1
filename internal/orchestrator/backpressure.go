package orchestrator

import (
	"context"

	"pixav/internal/domain/ports"
)

// QueueDepthMonitor reports pressure for a fixed set of named queues,
// grounded on the original QueueDepthMonitor.
type QueueDepthMonitor struct {
	queues   map[string]ports.Queue
	warn     int64
	critical int64
}

func NewQueueDepthMonitor(queues map[string]ports.Queue, warnThreshold, criticalThreshold int64) *QueueDepthMonitor {
	if warnThreshold <= 0 {
		warnThreshold = 50
	}
	if criticalThreshold <= 0 {
		criticalThreshold = 100
	}
	return &QueueDepthMonitor{queues: queues, warn: warnThreshold, critical: criticalThreshold}
}

var _ ports.BackpressureMonitor = (*QueueDepthMonitor)(nil)

// CheckPressure returns false once depth reaches the critical threshold.
func (m *QueueDepthMonitor) CheckPressure(ctx context.Context, queueName string) (bool, error) {
	q, ok := m.queues[queueName]
	if !ok {
		return true, nil
	}
	depth, err := q.Length(ctx)
	if err != nil {
		return false, err
	}
	return depth < m.critical, nil
}

func (m *QueueDepthMonitor) AllPressures(ctx context.Context) (map[string]ports.QueuePressure, error) {
	out := make(map[string]ports.QueuePressure, len(m.queues))
	for name, q := range m.queues {
		depth, err := q.Length(ctx)
		if err != nil {
			return nil, err
		}
		out[name] = ports.QueuePressure{
			Depth:    depth,
			OK:       depth < m.critical,
			Warn:     depth >= m.warn,
			Critical: depth >= m.critical,
		}
	}
	return out, nil
}
