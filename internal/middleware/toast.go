package middleware

import (
	"go.uber.org/zap"

	"bugline/internal/store"
	"bugline/internal/store/api"
)

// TypeError carries a user-facing error notification.
const TypeError = "error"

type ToastMessage struct {
	Message string
}

// Error builds a notification action for the toast stage.
func Error(msg string) store.Action {
	return store.Action{Type: TypeError, Payload: ToastMessage{Message: msg}}
}

// Toast shows error notifications. TypeError actions end here; failed api
// calls are shown and forwarded so reducers still observe them.
type Toast struct {
	Notify func(msg string)
	Logger *zap.Logger
}

func (t Toast) Handle(s store.API, action store.Action, next store.Next) {
	switch action.Type {
	case TypeError:
		t.show(messageOf(action.Payload))
		return
	case api.TypeCallFailed:
		t.show(messageOf(action.Payload))
	}
	next(action)
}

func (t Toast) show(msg string) {
	if t.Logger != nil {
		t.Logger.Info("toast", zap.String("message", msg))
	}
	if t.Notify != nil {
		t.Notify(msg)
	}
}

func messageOf(p any) string {
	switch v := p.(type) {
	case ToastMessage:
		return v.Message
	case api.CallError:
		return v.Message
	case string:
		return v
	case error:
		return v.Error()
	}
	return "unknown error"
}
