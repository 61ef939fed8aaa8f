package api

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type statusErr struct {
	status int
	body   string
}

func (e *statusErr) Error() string        { return fmt.Sprintf("status %d", e.status) }
func (e *statusErr) HTTPStatus() int      { return e.status }
func (e *statusErr) ResponseBody() string { return e.body }

func TestNewCallErrorKeepsResponseDetail(t *testing.T) {
	wrapped := fmt.Errorf("patch bug: %w", &statusErr{status: 404, body: `{"error":{}}`})
	ce := NewCallError(wrapped)
	assert.Equal(t, "patch bug: status 404", ce.Message)
	assert.Equal(t, 404, ce.StatusCode)
	assert.Equal(t, `{"error":{}}`, ce.Body)
	assert.Equal(t, ce.Message, ce.Error())
}

func TestNewCallErrorTransportFailure(t *testing.T) {
	ce := NewCallError(errors.New("connection refused"))
	assert.Equal(t, CallError{Message: "connection refused"}, ce)
}

func TestActionCreators(t *testing.T) {
	c := Call{URL: "/bugs", OnSuccess: "bugs/bugsReceived"}
	assert.Equal(t, TypeCallBegan, CallBegan(c).Type)
	assert.Equal(t, c, CallBegan(c).Payload)
	assert.Equal(t, TypeCallSuccess, CallSuccess([]byte(`[]`)).Type)
	assert.Equal(t, TypeCallFailed, CallFailed(CallError{Message: "x"}).Type)
}
