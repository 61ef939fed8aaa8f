package middleware

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"bugline/internal/store"
)

// Logger writes every action to zap at debug level and forwards it.
type Logger struct {
	Logger *zap.Logger
}

func (l Logger) Handle(s store.API, action store.Action, next store.Next) {
	if l.Logger != nil {
		if ce := l.Logger.Check(zap.DebugLevel, "action"); ce != nil {
			ce.Write(zap.String("type", action.Type), payloadField(action.Payload))
		}
	}
	next(action)
}

func payloadField(p any) zap.Field {
	switch v := p.(type) {
	case nil:
		return zap.Skip()
	case json.RawMessage:
		return zap.ByteString("payload", v)
	case store.Runner:
		return zap.String("payload_type", typeName(v))
	default:
		return zap.Any("payload", v)
	}
}

func typeName(v any) string {
	return fmt.Sprintf("%T", v)
}
