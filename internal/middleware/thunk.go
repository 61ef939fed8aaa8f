package middleware

import (
	"go.uber.org/zap"

	"bugline/internal/store"
)

// Thunk runs store.TypeThunk actions and swallows them. Thunk actions whose
// payload cannot run are dropped with a warning.
type Thunk struct {
	Logger *zap.Logger
}

func (t Thunk) Handle(s store.API, action store.Action, next store.Next) {
	if action.Type != store.TypeThunk {
		next(action)
		return
	}
	runner, ok := action.Payload.(store.Runner)
	if !ok {
		t.logger().Warn("thunk payload cannot run", zap.String("payload_type", typeName(action.Payload)))
		return
	}
	if err := runner.Run(s); err != nil {
		t.logger().Warn("thunk failed", zap.Error(err))
	}
}

func (t Thunk) logger() *zap.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return zap.NewNop()
}
