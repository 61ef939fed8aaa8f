// Package bugs is the bug slice: its state, the events its reducer accepts,
// and the commands that ask the api middleware to talk to the server.
package bugs

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bugline/internal/domain"
	"bugline/internal/store"
)

const (
	TypeAdded         = "bugs/bugAdded"
	TypeResolved      = "bugs/bugResolved"
	TypeRemoved       = "bugs/bugRemoved"
	TypeReceived      = "bugs/bugsReceived"
	TypeRequested     = "bugs/bugsRequested"
	TypeRequestFailed = "bugs/bugsRequestFailed"
	TypeAssignedUser  = "bugs/bugAssignedUser"
)

var (
	ErrBugNotFound  = errors.New("bug not found")
	ErrDuplicateBug = errors.New("bug already listed")
	ErrBadPayload   = errors.New("unexpected payload")
)

// State is never modified in place; every change produces a new *State.
type State struct {
	List      []domain.Bug
	Loading   bool
	LastFetch *time.Time
}

func Initial() *State {
	return &State{List: []domain.Bug{}}
}

func (s *State) index(id int64) int {
	for i, b := range s.List {
		if b.ID == id {
			return i
		}
	}
	return -1
}

func (s *State) clone() *State {
	next := *s
	next.List = append([]domain.Bug(nil), s.List...)
	return &next
}

// Event is the closed set of changes the reducer applies.
type Event interface {
	bugEvent()
}

type (
	Added         struct{ Bug domain.Bug }
	Resolved      struct{ ID int64 }
	Removed       struct{ ID int64 }
	Received      struct{ List []domain.Bug }
	Requested     struct{}
	RequestFailed struct{ Message string }
	AssignedUser  struct{ ID, UserID int64 }
)

func (Added) bugEvent()         {}
func (Resolved) bugEvent()      {}
func (Removed) bugEvent()       {}
func (Received) bugEvent()      {}
func (Requested) bugEvent()     {}
func (RequestFailed) bugEvent() {}
func (AssignedUser) bugEvent()  {}

// Decode turns an action into an Event. Actions of other slices decode to
// nil. Payloads may be typed values or the raw response body the api
// middleware delivers.
func Decode(a store.Action) (Event, error) {
	switch a.Type {
	case TypeAdded:
		b, err := decodeBug(a.Payload)
		if err != nil {
			return nil, err
		}
		return Added{Bug: b}, nil
	case TypeResolved:
		id, err := decodeID(a.Payload)
		if err != nil {
			return nil, err
		}
		return Resolved{ID: id}, nil
	case TypeRemoved:
		id, err := decodeID(a.Payload)
		if err != nil {
			return nil, err
		}
		return Removed{ID: id}, nil
	case TypeReceived:
		list, err := decodeList(a.Payload)
		if err != nil {
			return nil, err
		}
		return Received{List: list}, nil
	case TypeRequested:
		return Requested{}, nil
	case TypeRequestFailed:
		msg, _ := a.Payload.(string)
		return RequestFailed{Message: msg}, nil
	case TypeAssignedUser:
		if ev, ok := a.Payload.(AssignedUser); ok {
			return ev, nil
		}
		b, err := decodeBug(a.Payload)
		if err != nil {
			return nil, err
		}
		if b.UserID == nil {
			return nil, fmt.Errorf("%s: bug %d has no userId: %w", a.Type, b.ID, ErrBadPayload)
		}
		return AssignedUser{ID: b.ID, UserID: *b.UserID}, nil
	}
	return nil, nil
}

func decodeBug(p any) (domain.Bug, error) {
	switch v := p.(type) {
	case domain.Bug:
		return v, nil
	case *domain.Bug:
		if v != nil {
			return *v, nil
		}
	case json.RawMessage:
		return unmarshalBug(v)
	case []byte:
		return unmarshalBug(v)
	}
	return domain.Bug{}, fmt.Errorf("bug payload %T: %w", p, ErrBadPayload)
}

func unmarshalBug(data []byte) (domain.Bug, error) {
	var b domain.Bug
	if err := json.Unmarshal(data, &b); err != nil {
		return b, fmt.Errorf("decode bug: %v: %w", err, ErrBadPayload)
	}
	return b, nil
}

func decodeID(p any) (int64, error) {
	switch v := p.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	}
	b, err := decodeBug(p)
	return b.ID, err
}

func decodeList(p any) ([]domain.Bug, error) {
	switch v := p.(type) {
	case []domain.Bug:
		return v, nil
	case json.RawMessage:
		return unmarshalList(v)
	case []byte:
		return unmarshalList(v)
	}
	return nil, fmt.Errorf("bug list payload %T: %w", p, ErrBadPayload)
}

func unmarshalList(data []byte) ([]domain.Bug, error) {
	var list []domain.Bug
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decode bug list: %v: %w", err, ErrBadPayload)
	}
	return list, nil
}

// Slice reduces bug actions. Now stamps LastFetch.
type Slice struct {
	Now func() time.Time
}

// Reduce returns s itself when nothing changed. Guarded failures (unknown
// id, duplicate id, bad payload) leave s untouched and return an error.
func (sl Slice) Reduce(s *State, a store.Action) (*State, error) {
	if s == nil {
		s = Initial()
	}
	ev, err := Decode(a)
	if err != nil || ev == nil {
		return s, err
	}
	switch ev := ev.(type) {
	case Added:
		if s.index(ev.Bug.ID) >= 0 {
			return s, fmt.Errorf("add bug %d: %w", ev.Bug.ID, ErrDuplicateBug)
		}
		next := s.clone()
		next.List = append(next.List, ev.Bug)
		return next, nil
	case Resolved:
		i := s.index(ev.ID)
		if i < 0 {
			return s, fmt.Errorf("resolve bug %d: %w", ev.ID, ErrBugNotFound)
		}
		if s.List[i].Resolved {
			return s, nil
		}
		next := s.clone()
		next.List[i].Resolved = true
		return next, nil
	case Removed:
		i := s.index(ev.ID)
		if i < 0 {
			return s, fmt.Errorf("remove bug %d: %w", ev.ID, ErrBugNotFound)
		}
		next := *s
		next.List = make([]domain.Bug, 0, len(s.List)-1)
		next.List = append(next.List, s.List[:i]...)
		next.List = append(next.List, s.List[i+1:]...)
		return &next, nil
	case Received:
		seen := make(map[int64]struct{}, len(ev.List))
		for _, b := range ev.List {
			if _, dup := seen[b.ID]; dup {
				return s, fmt.Errorf("receive bugs: id %d: %w", b.ID, ErrDuplicateBug)
			}
			seen[b.ID] = struct{}{}
		}
		now := sl.now()
		list := append([]domain.Bug{}, ev.List...)
		return &State{List: list, Loading: false, LastFetch: &now}, nil
	case Requested:
		if s.Loading {
			return s, nil
		}
		next := *s
		next.Loading = true
		return &next, nil
	case RequestFailed:
		if !s.Loading {
			return s, nil
		}
		next := *s
		next.Loading = false
		return &next, nil
	case AssignedUser:
		i := s.index(ev.ID)
		if i < 0 {
			return s, fmt.Errorf("assign bug %d: %w", ev.ID, ErrBugNotFound)
		}
		next := s.clone()
		uid := ev.UserID
		next.List[i].UserID = &uid
		return next, nil
	}
	return s, nil
}

func (sl Slice) now() time.Time {
	if sl.Now != nil {
		return sl.Now()
	}
	return time.Now()
}
