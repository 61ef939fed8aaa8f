// Package entities assembles the root state from the bug and project
// slices and hosts the selectors that read across them.
package entities

import (
	"time"

	"bugline/internal/domain"
	"bugline/internal/store"
	"bugline/internal/store/bugs"
	"bugline/internal/store/projects"
	"bugline/internal/store/selector"
)

// State is the root state. Its set of slices is fixed.
type State struct {
	Bugs     *bugs.State
	Projects *projects.State
}

func Initial() *State {
	return &State{Bugs: bugs.Initial(), Projects: projects.Initial()}
}

func (s *State) BugSlice() *bugs.State { return s.Bugs }

// Reducer delegates to every slice reducer and returns a new root only when
// a slice changed. now stamps bug fetches.
func Reducer(now func() time.Time) store.Reducer[*State] {
	bugSlice := bugs.Slice{Now: now}
	return func(s *State, a store.Action) (*State, error) {
		if s == nil {
			s = Initial()
		}
		nextBugs, err := bugSlice.Reduce(s.Bugs, a)
		if err != nil {
			return s, err
		}
		nextProjects, err := projects.Reduce(s.Projects, a)
		if err != nil {
			return s, err
		}
		if nextBugs == s.Bugs && nextProjects == s.Projects {
			return s, nil
		}
		return &State{Bugs: nextBugs, Projects: nextProjects}, nil
	}
}

func bugsOf(s *State) *bugs.State         { return s.Bugs }
func projectsOf(s *State) *projects.State { return s.Projects }

// NewUnresolvedBugs returns a fresh memoized selector of open bugs. It is
// invalidated by changes to the bug or project slice.
func NewUnresolvedBugs() func(*State) []domain.Bug {
	return selector.New2(bugsOf, projectsOf, func(b *bugs.State, _ *projects.State) []domain.Bug {
		return bugs.FilterUnresolved(b)
	})
}

// UnresolvedBugs is the shared instance of NewUnresolvedBugs.
var UnresolvedBugs = NewUnresolvedBugs()

// ResolvedBugs is a plain projection, recomputed on every call.
func ResolvedBugs(s *State) []domain.Bug {
	return bugs.FilterResolved(s.Bugs)
}
