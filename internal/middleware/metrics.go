package middleware

import (
	"bugline/internal/metric"
	"bugline/internal/store"
)

// Metrics counts every action by type and forwards it.
type Metrics struct {
	Metrics *metric.Metrics
}

func (m Metrics) Handle(s store.API, action store.Action, next store.Next) {
	if m.Metrics != nil {
		m.Metrics.ActionsDispatched.WithLabelValues(action.Type).Inc()
	}
	next(action)
}
