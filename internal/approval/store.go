// internal/approval/store.go
package approval

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	apperrors "property-approvals/internal/common/errors"
)

// ErrNotPending is returned by the compare-and-swap transitions when the
// row exists but is no longer pending. Callers distinguish it from an
// unknown id by a follow-up read.
var ErrNotPending = errors.New("request is not pending")

// Store is the durable home of approval requests. It owns the canonical
// status column and the audit timestamps; it never interprets kind or
// metadata.
type Store interface {
	Create(ctx context.Context, req *Request) (*Request, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Request, error)
	List(ctx context.Context, filter Filter) (*Page, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status, reviewedBy string, notes *string) (*Request, error)
	TransitionFromPending(ctx context.Context, id uuid.UUID, to Status, actor string, notes *string) (*Request, error)
	BulkTransitionFromPending(ctx context.Context, ids []uuid.UUID, to Status, actor string, notes *string) ([]*Request, error)
	CountByStatusAndKind(ctx context.Context, since *time.Time) (*Stats, error)
}

const requestColumns = `id, kind, target_id, requested_by, status, reviewed_by, reviewed_at, notes, metadata, created_at, updated_at`

// SQLStore implements Store over PostgreSQL.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRequest(row rowScanner) (*Request, error) {
	var req Request
	var metadata []byte
	err := row.Scan(
		&req.ID,
		&req.Kind,
		&req.TargetID,
		&req.RequestedBy,
		&req.Status,
		&req.ReviewedBy,
		&req.ReviewedAt,
		&req.Notes,
		&metadata,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	req.Metadata = json.RawMessage(metadata)
	return &req, nil
}

// Create persists a new request with status pending. Kind, target and
// requester are validated here so no caller can slip an open-ended kind
// into the table.
func (s *SQLStore) Create(ctx context.Context, req *Request) (*Request, error) {
	if !req.Kind.IsValid() {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown request kind: %q", req.Kind))
	}
	if strings.TrimSpace(req.TargetID) == "" {
		return nil, apperrors.NewValidationError("target_id is required")
	}
	if strings.TrimSpace(req.RequestedBy) == "" {
		return nil, apperrors.NewValidationError("requested_by is required")
	}

	metadata := req.Metadata
	if len(metadata) == 0 {
		metadata = json.RawMessage(`{}`)
	}

	id := req.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO approval_requests (id, kind, target_id, requested_by, status, notes, metadata)
		VALUES ($1, $2, $3, $4, 'pending', $5, $6)
		RETURNING `+requestColumns,
		id, req.Kind, req.TargetID, req.RequestedBy, req.Notes, []byte(metadata),
	)

	created, err := scanRequest(row)
	if err != nil {
		return nil, apperrors.NewDatabaseQueryFailedError(err)
	}
	return created, nil
}

func (s *SQLStore) GetByID(ctx context.Context, id uuid.UUID) (*Request, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM approval_requests WHERE id = $1`, id)

	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("approval request", id.String())
		}
		return nil, apperrors.NewDatabaseQueryFailedError(err)
	}
	return req, nil
}

// List returns one page of requests ordered by created_at descending with
// a stable id tie-break. The total count rides along as a window column so
// page items and total come from one snapshot.
func (s *SQLStore) List(ctx context.Context, filter Filter) (*Page, error) {
	var conds []string
	var args []interface{}

	addArg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Status != "" {
		conds = append(conds, "status = "+addArg(filter.Status))
	}
	if filter.Kind != "" {
		conds = append(conds, "kind = "+addArg(filter.Kind))
	}
	if filter.CreatedFrom != nil {
		conds = append(conds, "created_at >= "+addArg(*filter.CreatedFrom))
	}
	if filter.CreatedTo != nil {
		conds = append(conds, "created_at <= "+addArg(*filter.CreatedTo))
	}
	if strings.TrimSpace(filter.Search) != "" {
		pattern := addArg("%" + strings.TrimSpace(filter.Search) + "%")
		conds = append(conds, fmt.Sprintf(
			"(target_id ILIKE %s OR requested_by ILIKE %s OR COALESCE(notes, '') ILIKE %s)",
			pattern, pattern, pattern))
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 25
	}

	query := fmt.Sprintf(`
		SELECT %s, COUNT(*) OVER() AS total
		FROM approval_requests
		%s
		ORDER BY created_at DESC, id DESC
		LIMIT %s OFFSET %s`,
		requestColumns, where, addArg(pageSize), addArg((page-1)*pageSize))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewDatabaseQueryFailedError(err)
	}
	defer rows.Close()

	result := &Page{Items: []*Request{}, Page: page, PageSize: pageSize}
	for rows.Next() {
		var req Request
		var metadata []byte
		if err := rows.Scan(
			&req.ID, &req.Kind, &req.TargetID, &req.RequestedBy, &req.Status,
			&req.ReviewedBy, &req.ReviewedAt, &req.Notes, &metadata,
			&req.CreatedAt, &req.UpdatedAt, &result.Total,
		); err != nil {
			return nil, apperrors.NewDatabaseQueryFailedError(err)
		}
		req.Metadata = json.RawMessage(metadata)
		result.Items = append(result.Items, &req)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseQueryFailedError(err)
	}

	return result, nil
}

// UpdateStatus performs the raw field update with no legality checks.
// Transition legality lives in the engine; this only fails on storage
// errors or an unknown id.
func (s *SQLStore) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, reviewedBy string, notes *string) (*Request, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE approval_requests
		SET status = $2, reviewed_by = $3, reviewed_at = now(), notes = COALESCE($4, notes), updated_at = now()
		WHERE id = $1
		RETURNING `+requestColumns,
		id, status, reviewedBy, notes,
	)

	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("approval request", id.String())
		}
		return nil, apperrors.NewDatabaseQueryFailedError(err)
	}
	return req, nil
}

// TransitionFromPending is the compare-and-swap write that makes
// resolution race-safe: the row moves out of pending at most once, so at
// most one caller ever sees the updated row and goes on to dispatch the
// side effect. Losers get ErrNotPending.
func (s *SQLStore) TransitionFromPending(ctx context.Context, id uuid.UUID, to Status, actor string, notes *string) (*Request, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE approval_requests
		SET status = $2, reviewed_by = $3, reviewed_at = now(), notes = COALESCE($4, notes), updated_at = now()
		WHERE id = $1 AND status = 'pending'
		RETURNING `+requestColumns,
		id, to, actor, notes,
	)

	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotPending
		}
		return nil, apperrors.NewDatabaseQueryFailedError(err)
	}
	return req, nil
}

// BulkTransitionFromPending applies the same per-row pending guard as
// TransitionFromPending across a batch. Only rows still pending are
// updated and returned; the rest are simply absent from the result.
func (s *SQLStore) BulkTransitionFromPending(ctx context.Context, ids []uuid.UUID, to Status, actor string, notes *string) ([]*Request, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	idStrs := make([]string, len(ids))
	for i, id := range ids {
		idStrs[i] = id.String()
	}

	rows, err := s.db.QueryContext(ctx, `
		UPDATE approval_requests
		SET status = $2, reviewed_by = $3, reviewed_at = now(), notes = COALESCE($4, notes), updated_at = now()
		WHERE id = ANY($1) AND status = 'pending'
		RETURNING `+requestColumns,
		pq.Array(idStrs), to, actor, notes,
	)
	if err != nil {
		return nil, apperrors.NewDatabaseQueryFailedError(err)
	}
	defer rows.Close()

	var updated []*Request
	for rows.Next() {
		var req Request
		var metadata []byte
		if err := rows.Scan(
			&req.ID, &req.Kind, &req.TargetID, &req.RequestedBy, &req.Status,
			&req.ReviewedBy, &req.ReviewedAt, &req.Notes, &metadata,
			&req.CreatedAt, &req.UpdatedAt,
		); err != nil {
			return nil, apperrors.NewDatabaseQueryFailedError(err)
		}
		req.Metadata = json.RawMessage(metadata)
		updated = append(updated, &req)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseQueryFailedError(err)
	}

	return updated, nil
}

// CountByStatusAndKind aggregates the whole table in a single query so
// every counter in the snapshot is consistent with the others.
func (s *SQLStore) CountByStatusAndKind(ctx context.Context, since *time.Time) (*Stats, error) {
	var conds []string
	var args []interface{}
	if since != nil {
		args = append(args, *since)
		conds = append(conds, "created_at >= $1")
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT kind, status, COUNT(*),
			COUNT(*) FILTER (WHERE created_at >= date_trunc('day', now())),
			COUNT(*) FILTER (WHERE created_at >= date_trunc('week', now()))
		FROM approval_requests
		%s
		GROUP BY kind, status`, where)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewDatabaseQueryFailedError(err)
	}
	defer rows.Close()

	stats := &Stats{ByKind: map[Kind]int{}}
	for rows.Next() {
		var kind Kind
		var status Status
		var count, today, thisWeek int
		if err := rows.Scan(&kind, &status, &count, &today, &thisWeek); err != nil {
			return nil, apperrors.NewDatabaseQueryFailedError(err)
		}

		stats.Total += count
		stats.ByKind[kind] += count

		switch status {
		case StatusPending:
			stats.Pending += count
			stats.TodayPending += today
			stats.ThisWeekPending += thisWeek
		case StatusApproved:
			stats.Approved += count
		case StatusRejected:
			stats.Rejected += count
		case StatusCancelled:
			stats.Cancelled += count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseQueryFailedError(err)
	}

	return stats, nil
}
