// Package api defines the actions that ask for, and report on, network
// calls performed by the api middleware.
package api

import (
	"encoding/json"
	"errors"

	"bugline/internal/store"
)

const (
	TypeCallBegan   = "api/callBegan"
	TypeCallSuccess = "api/callSuccess"
	TypeCallFailed  = "api/callFailed"
)

// Call is the payload of a TypeCallBegan action. OnStart, OnSuccess and
// OnError name the slice actions to dispatch at each lifecycle point; any of
// them may be empty.
type Call struct {
	URL       string
	Method    string
	Data      any
	OnStart   string
	OnSuccess string
	OnError   string
}

// CallError keeps what a failed call is known to have returned. StatusCode
// is zero when no response arrived.
type CallError struct {
	Message    string `json:"message"`
	StatusCode int    `json:"status_code,omitempty"`
	Body       string `json:"body,omitempty"`
}

func (e CallError) Error() string { return e.Message }

// httpError is implemented by transport errors that carry a response.
type httpError interface {
	HTTPStatus() int
	ResponseBody() string
}

// NewCallError collapses err into a CallError.
func NewCallError(err error) CallError {
	ce := CallError{Message: err.Error()}
	var he httpError
	if errors.As(err, &he) {
		ce.StatusCode = he.HTTPStatus()
		ce.Body = he.ResponseBody()
	}
	return ce
}

func CallBegan(c Call) store.Action {
	return store.Action{Type: TypeCallBegan, Payload: c}
}

func CallSuccess(body json.RawMessage) store.Action {
	return store.Action{Type: TypeCallSuccess, Payload: body}
}

func CallFailed(err CallError) store.Action {
	return store.Action{Type: TypeCallFailed, Payload: err}
}
