package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"bugline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanBug(row interface{ Scan(...any) error }) (domain.Bug, error) {
	var b domain.Bug
	var userID sql.NullInt64
	var resolved int
	if err := row.Scan(&b.ID, &b.Description, &userID, &resolved); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return b, ErrNotFound
		}
		return b, err
	}
	if userID.Valid {
		uid := userID.Int64
		b.UserID = &uid
	}
	b.Resolved = resolved != 0
	return b, nil
}

func (r Repo) ListBugs(ctx context.Context) ([]domain.Bug, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,description,user_id,resolved FROM bugs ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Bug{}
	for rows.Next() {
		b, err := scanBug(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}

func (r Repo) GetBug(ctx context.Context, id int64) (domain.Bug, error) {
	return getBug(ctx, r.DB, id)
}

func (r Repo) GetBugTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Bug, error) {
	return getBug(ctx, tx, id)
}

func getBug(ctx context.Context, q queryer, id int64) (domain.Bug, error) {
	b, err := scanBug(q.QueryRowContext(ctx, `SELECT id,description,user_id,resolved FROM bugs WHERE id=?`, id))
	if errors.Is(err, ErrNotFound) {
		return b, fmt.Errorf("bug %d: %w", id, ErrNotFound)
	}
	return b, err
}

// InsertBugTx stores a new bug and returns the id assigned by the database.
func (r Repo) InsertBugTx(ctx context.Context, tx *sql.Tx, b domain.Bug) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO bugs(description,user_id,resolved) VALUES (?,?,?)`,
		b.Description, nullableInt(b.UserID), boolInt(b.Resolved))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpdateBugTx applies the present fields only.
func (r Repo) UpdateBugTx(ctx context.Context, tx *sql.Tx, id int64, resolved *bool, userID *int64) error {
	var (
		fields []string
		args   []any
	)
	if resolved != nil {
		fields = append(fields, "resolved=?")
		args = append(args, boolInt(*resolved))
	}
	if userID != nil {
		fields = append(fields, "user_id=?")
		args = append(args, *userID)
	}
	if len(fields) == 0 {
		// nothing to set, still report unknown ids
		_, err := getBug(ctx, tx, id)
		return err
	}
	args = append(args, id)
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE bugs SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("bug %d: %w", id, ErrNotFound)
	}
	return nil
}

func (r Repo) LatestEvents(ctx context.Context, limit int, evtType string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 20
	}
	clauses := []string{}
	args := []any{}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, `SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),payload_json FROM events `+where+` ORDER BY id DESC LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Event{}
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullableInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
