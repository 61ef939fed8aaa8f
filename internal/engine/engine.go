package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"bugline/internal/domain"
	"bugline/internal/events"
	"bugline/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Now    func() time.Time
}

func New(db *sql.DB) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{Now: time.Now},
		Now:    time.Now,
	}
}

func (e Engine) events() events.Writer {
	w := e.Events
	if e.Now != nil {
		w.Now = e.Now
	}
	return w
}

// BugCreateOptions are parameters for filing a bug.
type BugCreateOptions struct {
	Description string
	UserID      *int64
}

// CreateBug stores a new unresolved bug; the id is always assigned here.
func (e Engine) CreateBug(ctx context.Context, opts BugCreateOptions) (domain.Bug, error) {
	desc := strings.TrimSpace(opts.Description)
	if desc == "" {
		return domain.Bug{}, errors.New("description is required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Bug{}, err
	}
	defer tx.Rollback()

	b := domain.Bug{Description: desc, UserID: opts.UserID}
	id, err := e.Repo.InsertBugTx(ctx, tx, b)
	if err != nil {
		return domain.Bug{}, fmt.Errorf("insert bug: %w", err)
	}
	b.ID = id
	payload := events.EventPayload{"description": b.Description}
	if b.UserID != nil {
		payload["userId"] = *b.UserID
	}
	if err := e.events().Append(ctx, tx, events.TypeBugCreated, "bug", strconv.FormatInt(id, 10), payload); err != nil {
		return domain.Bug{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Bug{}, err
	}
	return b, nil
}

// BugUpdateOptions carries the fields present in a patch; nil means untouched.
type BugUpdateOptions struct {
	ID       int64
	Resolved *bool
	UserID   *int64
}

// UpdateBug applies a partial update. Unknown ids yield repo.ErrNotFound.
func (e Engine) UpdateBug(ctx context.Context, opts BugUpdateOptions) (domain.Bug, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Bug{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateBugTx(ctx, tx, opts.ID, opts.Resolved, opts.UserID); err != nil {
		return domain.Bug{}, err
	}
	payload := events.EventPayload{}
	if opts.Resolved != nil {
		payload["resolved"] = *opts.Resolved
	}
	if opts.UserID != nil {
		payload["userId"] = *opts.UserID
	}
	if err := e.events().Append(ctx, tx, events.TypeBugUpdated, "bug", strconv.FormatInt(opts.ID, 10), payload); err != nil {
		return domain.Bug{}, err
	}
	b, err := e.Repo.GetBugTx(ctx, tx, opts.ID)
	if err != nil {
		return domain.Bug{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Bug{}, err
	}
	return b, nil
}

func (e Engine) ListBugs(ctx context.Context) ([]domain.Bug, error) {
	return e.Repo.ListBugs(ctx)
}
