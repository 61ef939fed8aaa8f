// Package store holds application state behind an explicit dispatch
// pipeline.
//
// Every dispatched Action runs the full middleware chain from its head. A
// middleware forwards by calling next, swallows by not calling it, and may
// dispatch further actions through the API it receives; those re-enter the
// chain from the head as fresh traversals, which includes dispatches issued
// later from goroutines when an asynchronous operation completes. Actions
// that get through every middleware reach the reducer.
//
// Reducer application is the only place state changes. It is serialized by
// a mutex held for the reduce step alone, so Dispatch may be called from any
// goroutine and recursively from middleware without deadlocking.
// Synchronous dispatches issued from one goroutine are processed in program
// order.
//
// Subscribers see states one at a time in the order they were reduced. When
// a dispatch reduces while another goroutine is still notifying, its state
// is queued and delivered by that goroutine, so the last notification always
// carries the current state.
package store

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/zap"
)

// ErrInvalidAction is reported for actions without a type.
var ErrInvalidAction = errors.New("action type is required")

// Action describes an intended state change or side effect. Payload shape is
// fixed per Type by convention.
type Action struct {
	Type    string
	Payload any
}

func (a Action) String() string {
	return a.Type
}

// Next continues an action down the remaining middleware.
type Next func(Action)

// API is what middleware and thunks may use from the store.
type API interface {
	Dispatch(Action)
	GetState() any
}

// Middleware observes every dispatched action.
type Middleware interface {
	Handle(api API, action Action, next Next)
}

// MiddlewareFunc adapts a function to Middleware.
type MiddlewareFunc func(api API, action Action, next Next)

func (f MiddlewareFunc) Handle(api API, action Action, next Next) {
	f(api, action, next)
}

// Reducer computes the next state. Returning an error keeps the current
// state and reports the error to observers.
type Reducer[S any] func(state S, action Action) (S, error)

// Config for a Store.
type Config struct {
	// Middleware runs in order for every dispatch.
	Middleware []Middleware
	Logger     *zap.Logger
}

type Store[S any] struct {
	reducer Reducer[S]
	chain   []Middleware
	logger  *zap.Logger

	mu       sync.Mutex
	state    S
	pending  []S
	draining bool

	obsMu     sync.Mutex
	nextObsID int
	subs      map[int]func(S)
	errObs    map[int]func(Action, error)
}

// New returns a store holding initial. The middleware order is fixed here.
func New[S any](reducer Reducer[S], initial S, cfg Config) *Store[S] {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	chain := make([]Middleware, len(cfg.Middleware))
	copy(chain, cfg.Middleware)
	return &Store[S]{
		reducer: reducer,
		chain:   chain,
		logger:  logger,
		state:   initial,
		subs:    make(map[int]func(S)),
		errObs:  make(map[int]func(Action, error)),
	}
}

// Dispatch runs action through the whole chain and into the reducer.
func (s *Store[S]) Dispatch(action Action) {
	if action.Type == "" {
		s.report(action, ErrInvalidAction)
		return
	}
	s.handle(0, action)
}

func (s *Store[S]) handle(i int, action Action) {
	if i == len(s.chain) {
		s.reduce(action)
		return
	}
	s.chain[i].Handle(s, action, func(forwarded Action) {
		if forwarded.Type == "" {
			s.report(forwarded, ErrInvalidAction)
			return
		}
		s.handle(i+1, forwarded)
	})
}

func (s *Store[S]) reduce(action Action) {
	s.mu.Lock()
	next, err := s.reducer(s.state, action)
	if err != nil {
		s.mu.Unlock()
		s.report(action, err)
		return
	}
	s.state = next
	s.pending = append(s.pending, next)
	if s.draining {
		s.mu.Unlock()
		return
	}
	s.draining = true
	s.mu.Unlock()
	s.drain()
}

// drain delivers queued states until none are left. Only one goroutine
// drains at a time.
func (s *Store[S]) drain() {
	done := false
	defer func() {
		if !done {
			s.mu.Lock()
			s.pending = nil
			s.draining = false
			s.mu.Unlock()
		}
	}()
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.draining = false
			s.mu.Unlock()
			done = true
			return
		}
		st := s.pending[0]
		var zero S
		s.pending[0] = zero
		s.pending = s.pending[1:]
		s.mu.Unlock()
		s.notify(st)
	}
}

// State returns the current state.
func (s *Store[S]) State() S {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// GetState is State for callers holding only the API.
func (s *Store[S]) GetState() any {
	return s.State()
}

// Subscribe registers fn to run after every applied action. Subscribers may
// be called from whichever goroutine dispatched, never concurrently.
func (s *Store[S]) Subscribe(fn func(S)) (unsubscribe func()) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	id := s.nextObsID
	s.nextObsID++
	s.subs[id] = fn
	return func() {
		s.obsMu.Lock()
		delete(s.subs, id)
		s.obsMu.Unlock()
	}
}

// OnError registers fn for actions the store or reducer rejected.
func (s *Store[S]) OnError(fn func(Action, error)) (unsubscribe func()) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	id := s.nextObsID
	s.nextObsID++
	s.errObs[id] = fn
	return func() {
		s.obsMu.Lock()
		delete(s.errObs, id)
		s.obsMu.Unlock()
	}
}

func (s *Store[S]) notify(state S) {
	s.obsMu.Lock()
	subs := make([]func(S), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.obsMu.Unlock()
	for _, fn := range subs {
		fn(state)
	}
}

func (s *Store[S]) report(action Action, err error) {
	s.logger.Warn("action rejected", zap.String("type", action.Type), zap.Error(err))
	s.obsMu.Lock()
	obs := make([]func(Action, error), 0, len(s.errObs))
	for _, fn := range s.errObs {
		obs = append(obs, fn)
	}
	s.obsMu.Unlock()
	for _, fn := range obs {
		fn(action, err)
	}
}

// TypeThunk tags deferred function actions.
const TypeThunk = "@@thunk"

// Runner is the payload of a thunk action.
type Runner interface {
	Run(api API) error
}

// ThunkFunc runs with the store's dispatch and a typed state getter. S may
// be an interface satisfied by the store's state.
type ThunkFunc[S any] func(dispatch func(Action), getState func() S)

func (fn ThunkFunc[S]) Run(api API) error {
	if _, ok := api.GetState().(S); !ok {
		return fmt.Errorf("thunk expects state %v, store holds %T", reflect.TypeFor[S](), api.GetState())
	}
	fn(api.Dispatch, func() S { return api.GetState().(S) })
	return nil
}

// Thunk wraps fn in an action the thunk middleware executes.
func Thunk[S any](fn ThunkFunc[S]) Action {
	return Action{Type: TypeThunk, Payload: fn}
}
