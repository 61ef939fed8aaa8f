package bugs

import (
	"fmt"
	"net/http"
	"time"

	"bugline/internal/domain"
	"bugline/internal/store"
	"bugline/internal/store/api"
)

// DefaultCacheWindow is how long a fetched list counts as fresh.
const DefaultCacheWindow = 10 * time.Minute

// Root is the part of the store state the bug commands read.
type Root interface {
	BugSlice() *State
}

// LoadOptions tune LoadBugs.
type LoadOptions struct {
	CacheWindow time.Duration
	Now         func() time.Time
}

// LoadBugs fetches the bug list unless the last fetch is younger than the
// cache window.
func LoadBugs(opts LoadOptions) store.Action {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return store.Thunk(store.ThunkFunc[Root](func(dispatch func(store.Action), getState func() Root) {
		if s := getState().BugSlice(); s != nil && s.LastFetch != nil {
			if now().Sub(*s.LastFetch) < opts.CacheWindow {
				return
			}
		}
		dispatch(api.CallBegan(api.Call{
			URL:       "/bugs",
			Method:    http.MethodGet,
			OnStart:   TypeRequested,
			OnSuccess: TypeReceived,
			OnError:   TypeRequestFailed,
		}))
	}))
}

// NewBug is the body of a create request; the server assigns id and
// resolved.
type NewBug struct {
	Description string `json:"description"`
	UserID      *int64 `json:"userId,omitempty"`
}

func AddBug(b NewBug) store.Action {
	return api.CallBegan(api.Call{
		URL:       "/bugs",
		Method:    http.MethodPost,
		Data:      b,
		OnSuccess: TypeAdded,
	})
}

func ResolveBug(id int64) store.Action {
	return api.CallBegan(api.Call{
		URL:       fmt.Sprintf("/bugs/%d", id),
		Method:    http.MethodPatch,
		Data:      map[string]any{"resolved": true},
		OnSuccess: TypeResolved,
	})
}

func AssignUser(bugID, userID int64) store.Action {
	return api.CallBegan(api.Call{
		URL:       fmt.Sprintf("/bugs/%d", bugID),
		Method:    http.MethodPatch,
		Data:      map[string]any{"userId": userID},
		OnSuccess: TypeAssignedUser,
	})
}

// RemoveBug drops a bug from the local list only; the server has no delete.
func RemoveBug(id int64) store.Action {
	return store.Action{Type: TypeRemoved, Payload: id}
}

// FilterUnresolved filters the list down to open bugs.
func FilterUnresolved(s *State) []domain.Bug {
	res := []domain.Bug{}
	if s == nil {
		return res
	}
	for _, b := range s.List {
		if !b.Resolved {
			res = append(res, b)
		}
	}
	return res
}

// FilterResolved is the counterpart of FilterUnresolved.
func FilterResolved(s *State) []domain.Bug {
	res := []domain.Bug{}
	if s == nil {
		return res
	}
	for _, b := range s.List {
		if b.Resolved {
			res = append(res, b)
		}
	}
	return res
}
