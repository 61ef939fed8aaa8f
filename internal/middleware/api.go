// Package middleware provides the dispatch pipeline stages bugline wires
// into its store.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"bugline/internal/metric"
	"bugline/internal/store"
	"bugline/internal/store/api"
)

// Transport performs one call relative to a fixed base endpoint and returns
// the raw response body. Non-2xx responses are errors.
type Transport interface {
	Call(ctx context.Context, method, path string, data any) (json.RawMessage, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, method, path string, data any) (json.RawMessage, error)

func (f TransportFunc) Call(ctx context.Context, method, path string, data any) (json.RawMessage, error) {
	return f(ctx, method, path, data)
}

var errBadCall = errors.New("api/callBegan payload is not an api.Call")

// API is the only stage that performs network calls. For every
// api.TypeCallBegan action it dispatches OnStart, forwards the action, then
// runs the call on its own goroutine and dispatches the generic and the
// caller's success or failure actions when it completes. Calls are never
// retried.
type API struct {
	ctx       context.Context
	transport Transport
	logger    *zap.Logger
	metrics   *metric.Metrics

	wg sync.WaitGroup
}

// APIConfig configures NewAPI. Context bounds every call; cancelling it
// fails the calls still in flight.
type APIConfig struct {
	Context   context.Context
	Transport Transport
	Logger    *zap.Logger
	Metrics   *metric.Metrics
}

func NewAPI(cfg APIConfig) *API {
	ctx := cfg.Context
	if ctx == nil {
		ctx = context.Background()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{
		ctx:       ctx,
		transport: cfg.Transport,
		logger:    logger,
		metrics:   cfg.Metrics,
	}
}

func (m *API) Handle(s store.API, action store.Action, next store.Next) {
	if action.Type != api.TypeCallBegan {
		next(action)
		return
	}
	call, ok := callOf(action.Payload)
	if !ok {
		next(action)
		s.Dispatch(api.CallFailed(api.CallError{Message: errBadCall.Error()}))
		return
	}
	if call.OnStart != "" {
		s.Dispatch(store.Action{Type: call.OnStart})
	}
	next(action)

	m.wg.Add(1)
	if m.metrics != nil {
		m.metrics.APICallsInFlight.Inc()
	}
	go func() {
		defer m.wg.Done()
		m.perform(s, call)
	}()
}

// Wait blocks until every call started so far, and any call those calls
// started in turn, has dispatched its outcome.
func (m *API) Wait() {
	m.wg.Wait()
}

func (m *API) perform(s store.API, call api.Call) {
	method := strings.ToUpper(call.Method)
	if method == "" {
		method = http.MethodGet
	}
	start := time.Now()
	body, err := m.transport.Call(m.ctx, method, call.URL, call.Data)
	elapsed := time.Since(start)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	if m.metrics != nil {
		m.metrics.APICallsInFlight.Dec()
		m.metrics.APICallDuration.WithLabelValues(method, outcome).Observe(elapsed.Seconds())
	}

	if err != nil {
		ce := api.NewCallError(err)
		m.logger.Debug("api call failed",
			zap.String("method", method),
			zap.String("url", call.URL),
			zap.Int("status", ce.StatusCode),
			zap.Error(err))
		s.Dispatch(api.CallFailed(ce))
		if call.OnError != "" {
			s.Dispatch(store.Action{Type: call.OnError, Payload: ce.Message})
		}
		return
	}
	m.logger.Debug("api call succeeded",
		zap.String("method", method),
		zap.String("url", call.URL),
		zap.Duration("elapsed", elapsed))
	s.Dispatch(api.CallSuccess(body))
	if call.OnSuccess != "" {
		s.Dispatch(store.Action{Type: call.OnSuccess, Payload: body})
	}
}

func callOf(p any) (api.Call, bool) {
	switch v := p.(type) {
	case api.Call:
		return v, true
	case *api.Call:
		if v != nil {
			return *v, true
		}
	}
	return api.Call{}, false
}
