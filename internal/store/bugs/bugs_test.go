package bugs

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bugline/internal/domain"
	"bugline/internal/store"
	"bugline/internal/store/api"
)

var fixedNow = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func testSlice() Slice {
	return Slice{Now: func() time.Time { return fixedNow }}
}

func uid(v int64) *int64 { return &v }

func seeded() *State {
	return &State{List: []domain.Bug{
		{ID: 1, Description: "bug 1", UserID: uid(1)},
		{ID: 2, Description: "bug 2", UserID: uid(1)},
		{ID: 3, Description: "bug 3", UserID: uid(2)},
	}}
}

func TestResolveOnlyTouchesMatchingBug(t *testing.T) {
	sl := testSlice()
	for _, id := range []int64{1, 2, 3} {
		before := seeded()
		after, err := sl.Reduce(before, store.Action{Type: TypeResolved, Payload: id})
		require.NoError(t, err)

		for i, b := range after.List {
			want := before.List[i]
			if b.ID == id {
				want.Resolved = true
			}
			if diff := cmp.Diff(want, b); diff != "" {
				t.Fatalf("resolve %d changed bug %d (-want +got):\n%s", id, b.ID, diff)
			}
		}
		assert.False(t, before.List[id-1].Resolved, "previous state is not mutated")
	}
}

func TestResolveSequence(t *testing.T) {
	sl := testSlice()
	s := seeded()
	var err error
	for _, id := range []int64{3, 1, 3} {
		s, err = sl.Reduce(s, store.Action{Type: TypeResolved, Payload: id})
		require.NoError(t, err)
	}
	assert.True(t, s.List[0].Resolved)
	assert.False(t, s.List[1].Resolved)
	assert.True(t, s.List[2].Resolved)
}

func TestResolveFromResponseBody(t *testing.T) {
	s, err := testSlice().Reduce(seeded(), store.Action{
		Type:    TypeResolved,
		Payload: json.RawMessage(`{"id":2,"description":"bug 2","userId":1,"resolved":true}`),
	})
	require.NoError(t, err)
	assert.True(t, s.List[1].Resolved)
}

func TestResolveUnknownIDIsGuarded(t *testing.T) {
	before := seeded()
	after, err := testSlice().Reduce(before, store.Action{Type: TypeResolved, Payload: int64(999)})
	assert.ErrorIs(t, err, ErrBugNotFound)
	assert.Same(t, before, after)
}

func TestResolveAlreadyResolvedKeepsPointer(t *testing.T) {
	sl := testSlice()
	s, err := sl.Reduce(seeded(), store.Action{Type: TypeResolved, Payload: 1})
	require.NoError(t, err)
	again, err := sl.Reduce(s, store.Action{Type: TypeResolved, Payload: 1})
	require.NoError(t, err)
	assert.Same(t, s, again)
}

func TestReceivedIsIdempotent(t *testing.T) {
	sl := testSlice()
	list := json.RawMessage(`[{"id":1,"description":"bug 1","userId":1,"resolved":false},{"id":4,"description":"bug 4","resolved":true}]`)
	loading := &State{List: []domain.Bug{}, Loading: true}

	once, err := sl.Reduce(loading, store.Action{Type: TypeReceived, Payload: list})
	require.NoError(t, err)
	twice, err := sl.Reduce(once, store.Action{Type: TypeReceived, Payload: list})
	require.NoError(t, err)

	if diff := cmp.Diff(once, twice); diff != "" {
		t.Fatalf("second received changed state (-once +twice):\n%s", diff)
	}
	assert.False(t, once.Loading)
	require.NotNil(t, once.LastFetch)
	assert.Equal(t, fixedNow, *once.LastFetch)
	assert.Len(t, once.List, 2)
}

func TestRequestedAndFailedToggleLoading(t *testing.T) {
	sl := testSlice()
	s, err := sl.Reduce(Initial(), store.Action{Type: TypeRequested})
	require.NoError(t, err)
	assert.True(t, s.Loading)

	same, err := sl.Reduce(s, store.Action{Type: TypeRequested})
	require.NoError(t, err)
	assert.Same(t, s, same)

	s, err = sl.Reduce(s, store.Action{Type: TypeRequestFailed, Payload: "boom"})
	require.NoError(t, err)
	assert.False(t, s.Loading)
	assert.Nil(t, s.LastFetch)
}

func TestAddAppendsAndRejectsDuplicates(t *testing.T) {
	sl := testSlice()
	s, err := sl.Reduce(seeded(), store.Action{Type: TypeAdded, Payload: json.RawMessage(`{"id":9,"description":"new","resolved":false}`)})
	require.NoError(t, err)
	require.Len(t, s.List, 4)
	assert.Equal(t, int64(9), s.List[3].ID)
	assert.Nil(t, s.List[3].UserID)

	_, err = sl.Reduce(s, store.Action{Type: TypeAdded, Payload: domain.Bug{ID: 9}})
	assert.ErrorIs(t, err, ErrDuplicateBug)
}

func TestReceivedRejectsRepeatedIDs(t *testing.T) {
	sl := testSlice()
	before := seeded()
	after, err := sl.Reduce(before, store.Action{Type: TypeReceived, Payload: json.RawMessage(`[{"id":4,"description":"a"},{"id":4,"description":"b"}]`)})
	assert.ErrorIs(t, err, ErrDuplicateBug)
	assert.Same(t, before, after)
}

func TestRemoveReassignsList(t *testing.T) {
	sl := testSlice()
	before := seeded()
	after, err := sl.Reduce(before, RemoveBug(2))
	require.NoError(t, err)
	ids := []int64{}
	for _, b := range after.List {
		ids = append(ids, b.ID)
	}
	assert.Equal(t, []int64{1, 3}, ids)
	assert.Len(t, before.List, 3)

	_, err = sl.Reduce(after, RemoveBug(2))
	assert.ErrorIs(t, err, ErrBugNotFound)
}

func TestAssignUser(t *testing.T) {
	sl := testSlice()
	s, err := sl.Reduce(seeded(), store.Action{Type: TypeAssignedUser, Payload: json.RawMessage(`{"id":3,"description":"bug 3","userId":7,"resolved":false}`)})
	require.NoError(t, err)
	require.NotNil(t, s.List[2].UserID)
	assert.Equal(t, int64(7), *s.List[2].UserID)

	_, err = sl.Reduce(s, store.Action{Type: TypeAssignedUser, Payload: AssignedUser{ID: 42, UserID: 1}})
	assert.ErrorIs(t, err, ErrBugNotFound)

	_, err = sl.Reduce(s, store.Action{Type: TypeAssignedUser, Payload: domain.Bug{ID: 3}})
	assert.ErrorIs(t, err, ErrBadPayload)
}

func TestBadPayloadAndForeignActions(t *testing.T) {
	sl := testSlice()
	before := seeded()
	after, err := sl.Reduce(before, store.Action{Type: TypeReceived, Payload: json.RawMessage(`{"not":"a list"}`)})
	assert.ErrorIs(t, err, ErrBadPayload)
	assert.Same(t, before, after)

	after, err = sl.Reduce(before, store.Action{Type: "projects/projectAdded"})
	assert.NoError(t, err)
	assert.Same(t, before, after)

	fresh, err := sl.Reduce(nil, store.Action{Type: "other"})
	require.NoError(t, err)
	assert.Empty(t, fresh.List)
}

type rootState struct{ bugs *State }

func (r rootState) BugSlice() *State { return r.bugs }

func runThunk(t *testing.T, a store.Action, root Root) []store.Action {
	t.Helper()
	var dispatched []store.Action
	require.Equal(t, store.TypeThunk, a.Type)
	runner := a.Payload.(store.Runner)
	err := runner.Run(fakeAPI{state: root, dispatch: func(a store.Action) { dispatched = append(dispatched, a) }})
	require.NoError(t, err)
	return dispatched
}

type fakeAPI struct {
	state    Root
	dispatch func(store.Action)
}

func (f fakeAPI) Dispatch(a store.Action) { f.dispatch(a) }
func (f fakeAPI) GetState() any           { return f.state }

func TestLoadBugsHonoursCacheWindow(t *testing.T) {
	opts := LoadOptions{CacheWindow: 10 * time.Minute, Now: func() time.Time { return fixedNow }}

	got := runThunk(t, LoadBugs(opts), rootState{bugs: Initial()})
	require.Len(t, got, 1)
	assert.Equal(t, api.TypeCallBegan, got[0].Type)
	call := got[0].Payload.(api.Call)
	assert.Equal(t, api.Call{
		URL:       "/bugs",
		Method:    http.MethodGet,
		OnStart:   TypeRequested,
		OnSuccess: TypeReceived,
		OnError:   TypeRequestFailed,
	}, call)

	recent := fixedNow.Add(-9 * time.Minute)
	got = runThunk(t, LoadBugs(opts), rootState{bugs: &State{LastFetch: &recent}})
	assert.Empty(t, got, "fresh list is not refetched")

	stale := fixedNow.Add(-10 * time.Minute)
	got = runThunk(t, LoadBugs(opts), rootState{bugs: &State{LastFetch: &stale}})
	assert.Len(t, got, 1)
}

func TestCommandCalls(t *testing.T) {
	add := AddBug(NewBug{Description: "x", UserID: uid(2)}).Payload.(api.Call)
	assert.Equal(t, http.MethodPost, add.Method)
	assert.Equal(t, "/bugs", add.URL)
	assert.Equal(t, TypeAdded, add.OnSuccess)

	res := ResolveBug(4).Payload.(api.Call)
	assert.Equal(t, "/bugs/4", res.URL)
	assert.Equal(t, http.MethodPatch, res.Method)
	assert.Equal(t, map[string]any{"resolved": true}, res.Data)
	assert.Equal(t, TypeResolved, res.OnSuccess)

	assign := AssignUser(4, 9).Payload.(api.Call)
	assert.Equal(t, map[string]any{"userId": int64(9)}, assign.Data)
	assert.Equal(t, TypeAssignedUser, assign.OnSuccess)
}

func TestFilters(t *testing.T) {
	s := seeded()
	s.List[1].Resolved = true
	assert.Len(t, FilterUnresolved(s), 2)
	assert.Equal(t, int64(2), FilterResolved(s)[0].ID)
	assert.Empty(t, FilterUnresolved(nil))
}
