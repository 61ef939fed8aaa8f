package projects

import (
	"encoding/json"
	"errors"
	"fmt"

	"bugline/internal/domain"
	"bugline/internal/store"
)

const (
	TypeAdded   = "projects/projectAdded"
	TypeRemoved = "projects/projectRemoved"
)

var (
	ErrProjectNotFound  = errors.New("project not found")
	ErrDuplicateProject = errors.New("project already listed")
)

type State struct {
	List []domain.Project
}

func Initial() *State {
	return &State{List: []domain.Project{}}
}

func AddProject(p domain.Project) store.Action {
	return store.Action{Type: TypeAdded, Payload: p}
}

func RemoveProject(id int64) store.Action {
	return store.Action{Type: TypeRemoved, Payload: id}
}

// Reduce handles project actions and returns s itself for everything else.
func Reduce(s *State, a store.Action) (*State, error) {
	if s == nil {
		s = Initial()
	}
	switch a.Type {
	case TypeAdded:
		p, err := decodeProject(a.Payload)
		if err != nil {
			return s, err
		}
		for _, existing := range s.List {
			if existing.ID == p.ID {
				return s, fmt.Errorf("add project %d: %w", p.ID, ErrDuplicateProject)
			}
		}
		list := make([]domain.Project, 0, len(s.List)+1)
		list = append(list, s.List...)
		return &State{List: append(list, p)}, nil
	case TypeRemoved:
		id, ok := a.Payload.(int64)
		if !ok {
			return s, fmt.Errorf("remove project: payload %T is not an id", a.Payload)
		}
		list := make([]domain.Project, 0, len(s.List))
		for _, p := range s.List {
			if p.ID != id {
				list = append(list, p)
			}
		}
		if len(list) == len(s.List) {
			return s, fmt.Errorf("remove project %d: %w", id, ErrProjectNotFound)
		}
		return &State{List: list}, nil
	}
	return s, nil
}

func decodeProject(p any) (domain.Project, error) {
	switch v := p.(type) {
	case domain.Project:
		return v, nil
	case json.RawMessage:
		var out domain.Project
		if err := json.Unmarshal(v, &out); err != nil {
			return out, fmt.Errorf("decode project: %w", err)
		}
		return out, nil
	}
	return domain.Project{}, fmt.Errorf("project payload %T not supported", p)
}
