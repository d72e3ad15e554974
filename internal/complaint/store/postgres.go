package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"civicdesk/internal/complaint/access"
	"civicdesk/internal/complaint/models"
	"civicdesk/internal/platform/postgres"
	id "civicdesk/pkg/domain"
	"civicdesk/pkg/platform/sentinel"
	txcontext "civicdesk/pkg/platform/tx"
)

const complaintColumns = `id, reference_number, citizen_id, department_id, assigned_employee_id,
	type, location, description, priority, status,
	is_locked, locked_by, locked_at, lock_expires_at,
	created_at, updated_at, resolved_at`

// PostgresStore persists complaints, their history and comments in PostgreSQL.
// It joins the transaction carried by ctx when there is one.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, c *models.Complaint) error {
	query := `
		INSERT INTO complaints (` + complaintColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err := txcontext.Use(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(c.ID),
		c.ReferenceNumber,
		uuid.UUID(c.CitizenID),
		nullDepartment(c.DepartmentID),
		nullUser(c.AssignedEmployeeID),
		c.Type,
		c.Location,
		c.Description,
		c.Priority,
		string(c.Status),
		c.IsLocked,
		nullUser(c.LockedBy),
		c.LockedAt,
		c.LockExpiresAt,
		c.CreatedAt,
		c.UpdatedAt,
		c.ResolvedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err, "") {
			return sentinel.ErrAlreadyUsed
		}
		if postgres.IsForeignKeyViolation(err) {
			return fmt.Errorf("insert complaint: unknown department: %w", sentinel.ErrNotFound)
		}
		return fmt.Errorf("insert complaint: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, complaintID id.ComplaintID) (*models.Complaint, error) {
	query := `SELECT ` + complaintColumns + ` FROM complaints WHERE id = $1`
	return s.findOne(ctx, query, complaintID)
}

// FindByIDForUpdate row-locks the complaint until the surrounding transaction ends.
func (s *PostgresStore) FindByIDForUpdate(ctx context.Context, complaintID id.ComplaintID) (*models.Complaint, error) {
	query := `SELECT ` + complaintColumns + ` FROM complaints WHERE id = $1 FOR UPDATE`
	return s.findOne(ctx, query, complaintID)
}

func (s *PostgresStore) findOne(ctx context.Context, query string, complaintID id.ComplaintID) (*models.Complaint, error) {
	c, err := scanComplaint(txcontext.Use(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(complaintID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find complaint: %w", err)
	}
	return c, nil
}

// Update writes the mutable fields. Lock fields are only changed through the
// Try* lease methods.
func (s *PostgresStore) Update(ctx context.Context, c *models.Complaint) error {
	query := `
		UPDATE complaints
		SET department_id = $2,
			assigned_employee_id = $3,
			priority = $4,
			status = $5,
			updated_at = $6,
			resolved_at = $7
		WHERE id = $1
	`
	res, err := txcontext.Use(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(c.ID),
		nullDepartment(c.DepartmentID),
		nullUser(c.AssignedEmployeeID),
		c.Priority,
		string(c.Status),
		c.UpdatedAt,
		c.ResolvedAt,
	)
	if err != nil {
		if postgres.IsForeignKeyViolation(err) {
			return fmt.Errorf("update complaint: unknown department: %w", sentinel.ErrNotFound)
		}
		return fmt.Errorf("update complaint: %w", err)
	}
	return requireRow(res, "update complaint")
}

// Delete removes the complaint. History and comments cascade; notifications
// keep their row with complaint_id cleared.
func (s *PostgresStore) Delete(ctx context.Context, complaintID id.ComplaintID) error {
	res, err := txcontext.Use(ctx, s.db).ExecContext(ctx, `DELETE FROM complaints WHERE id = $1`, uuid.UUID(complaintID))
	if err != nil {
		return fmt.Errorf("delete complaint: %w", err)
	}
	return requireRow(res, "delete complaint")
}

func (s *PostgresStore) List(ctx context.Context, scope access.ListScope, f models.Filter) ([]*models.Complaint, int, error) {
	if scope.None {
		return []*models.Complaint{}, 0, nil
	}
	f = f.Normalize()
	where, args := buildWhere(scope, f)
	q := txcontext.Use(ctx, s.db)

	var total int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM complaints`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count complaints: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM complaints%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		complaintColumns, where, len(args)+1, len(args)+2)
	rows, err := q.QueryContext(ctx, query, append(args, f.Limit, f.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("list complaints: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Complaint, 0, f.Limit)
	for rows.Next() {
		c, err := scanComplaint(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan complaint: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate complaints: %w", err)
	}
	return out, total, nil
}

func buildWhere(scope access.ListScope, f models.Filter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if scope.CitizenID != nil {
		add("citizen_id = $%d", uuid.UUID(*scope.CitizenID))
	}
	if scope.DepartmentID != nil {
		add("department_id = $%d", uuid.UUID(*scope.DepartmentID))
	}
	if f.Status != nil {
		add("status = $%d", string(*f.Status))
	}
	if f.DepartmentID != nil {
		add("department_id = $%d", uuid.UUID(*f.DepartmentID))
	}
	if f.CitizenID != nil {
		add("citizen_id = $%d", uuid.UUID(*f.CitizenID))
	}
	if f.Search != "" {
		args = append(args, "%"+escapeLike(f.Search)+"%")
		n := len(args)
		clauses = append(clauses, fmt.Sprintf("(reference_number ILIKE $%d OR description ILIKE $%d OR type ILIKE $%d)", n, n, n))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func (s *PostgresStore) CountByStatus(ctx context.Context, scope access.ListScope) (map[models.Status]int, error) {
	counts := make(map[models.Status]int, len(models.Statuses))
	if scope.None {
		return counts, nil
	}
	where, args := buildWhere(scope, models.Filter{})
	rows, err := txcontext.Use(ctx, s.db).QueryContext(ctx, `SELECT status, COUNT(*) FROM complaints`+where+` GROUP BY status`, args...)
	if err != nil {
		return nil, fmt.Errorf("count complaints by status: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[models.Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}
	return counts, nil
}

func (s *PostgresStore) AppendHistory(ctx context.Context, entry *models.HistoryEntry) error {
	query := `
		INSERT INTO complaint_history (id, complaint_id, action, old_value, new_value, description, performed_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := txcontext.Use(ctx, s.db).ExecContext(ctx, query,
		entry.ID,
		uuid.UUID(entry.ComplaintID),
		string(entry.Action),
		entry.OldValue,
		entry.NewValue,
		entry.Description,
		uuid.UUID(entry.PerformedBy),
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert complaint history: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListHistory(ctx context.Context, complaintID id.ComplaintID, limit int) ([]*models.HistoryEntry, error) {
	query := `
		SELECT id, complaint_id, action, old_value, new_value, description, performed_by, created_at
		FROM complaint_history
		WHERE complaint_id = $1
		ORDER BY created_at DESC, seq DESC
		LIMIT $2
	`
	rows, err := txcontext.Use(ctx, s.db).QueryContext(ctx, query, uuid.UUID(complaintID), limit)
	if err != nil {
		return nil, fmt.Errorf("list complaint history: %w", err)
	}
	defer rows.Close()

	var out []*models.HistoryEntry
	for rows.Next() {
		var (
			e           models.HistoryEntry
			complaintID uuid.UUID
			performedBy uuid.UUID
			action      string
		)
		if err := rows.Scan(&e.ID, &complaintID, &action, &e.OldValue, &e.NewValue, &e.Description, &performedBy, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan complaint history: %w", err)
		}
		e.ComplaintID = id.ComplaintID(complaintID)
		e.PerformedBy = id.UserID(performedBy)
		e.Action = models.HistoryAction(action)
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate complaint history: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) AddComment(ctx context.Context, comment *models.Comment) error {
	query := `
		INSERT INTO complaint_comments (id, complaint_id, author_id, content, is_internal, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := txcontext.Use(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(comment.ID),
		uuid.UUID(comment.ComplaintID),
		uuid.UUID(comment.AuthorID),
		comment.Content,
		comment.IsInternal,
		comment.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert complaint comment: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListComments(ctx context.Context, complaintID id.ComplaintID, includeInternal bool) ([]*models.Comment, error) {
	query := `
		SELECT id, complaint_id, author_id, content, is_internal, created_at
		FROM complaint_comments
		WHERE complaint_id = $1 AND ($2 OR NOT is_internal)
		ORDER BY created_at DESC, seq DESC
	`
	rows, err := txcontext.Use(ctx, s.db).QueryContext(ctx, query, uuid.UUID(complaintID), includeInternal)
	if err != nil {
		return nil, fmt.Errorf("list complaint comments: %w", err)
	}
	defer rows.Close()

	var out []*models.Comment
	for rows.Next() {
		var (
			c                            models.Comment
			commentID, ownerID, authorID uuid.UUID
		)
		if err := rows.Scan(&commentID, &ownerID, &authorID, &c.Content, &c.IsInternal, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan complaint comment: %w", err)
		}
		c.ID = id.CommentID(commentID)
		c.ComplaintID = id.ComplaintID(ownerID)
		c.AuthorID = id.UserID(authorID)
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate complaint comments: %w", err)
	}
	return out, nil
}

// TryAcquire grants the lease in one conditional update. A re-acquire by the
// live holder keeps locked_at.
func (s *PostgresStore) TryAcquire(ctx context.Context, complaintID id.ComplaintID, holder id.UserID, override bool, now, expiresAt time.Time) (*models.Complaint, error) {
	query := `
		UPDATE complaints
		SET is_locked = TRUE,
			locked_by = $2,
			locked_at = CASE WHEN is_locked AND locked_by = $2 AND lock_expires_at > $3 THEN locked_at ELSE $3 END,
			lock_expires_at = $4
		WHERE id = $1
		  AND (NOT is_locked OR locked_by = $2 OR lock_expires_at <= $3 OR $5)
		RETURNING ` + complaintColumns
	c, err := scanComplaint(txcontext.Use(ctx, s.db).QueryRowContext(ctx, query,
		uuid.UUID(complaintID), uuid.UUID(holder), now, expiresAt, override))
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("acquire complaint lock: %w", err)
	}
	return nil, s.leaseMissReason(ctx, complaintID)
}

func (s *PostgresStore) TryRelease(ctx context.Context, complaintID id.ComplaintID, holder id.UserID, override bool, now time.Time) (*models.Complaint, error) {
	query := `
		UPDATE complaints
		SET is_locked = FALSE,
			locked_by = NULL,
			locked_at = NULL,
			lock_expires_at = NULL
		WHERE id = $1
		  AND (NOT is_locked OR locked_by = $2 OR lock_expires_at <= $3 OR $4)
		RETURNING ` + complaintColumns
	c, err := scanComplaint(txcontext.Use(ctx, s.db).QueryRowContext(ctx, query,
		uuid.UUID(complaintID), uuid.UUID(holder), now, override))
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("release complaint lock: %w", err)
	}
	return nil, s.leaseMissReason(ctx, complaintID)
}

// TryRenew extends a lease the holder still owns, lapsed or not.
func (s *PostgresStore) TryRenew(ctx context.Context, complaintID id.ComplaintID, holder id.UserID, now, expiresAt time.Time) (*models.Complaint, error) {
	query := `
		UPDATE complaints
		SET lock_expires_at = $3
		WHERE id = $1 AND is_locked AND locked_by = $2
		RETURNING ` + complaintColumns
	c, err := scanComplaint(txcontext.Use(ctx, s.db).QueryRowContext(ctx, query,
		uuid.UUID(complaintID), uuid.UUID(holder), expiresAt))
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("renew complaint lock: %w", err)
	}

	var (
		isLocked      bool
		currentExpiry sql.NullTime
	)
	err = txcontext.Use(ctx, s.db).QueryRowContext(ctx,
		`SELECT is_locked, lock_expires_at FROM complaints WHERE id = $1`, uuid.UUID(complaintID),
	).Scan(&isLocked, &currentExpiry)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("inspect complaint lock: %w", err)
	}
	if isLocked && currentExpiry.Valid && now.Before(currentExpiry.Time) {
		return nil, sentinel.ErrLocked
	}
	return nil, sentinel.ErrInvalidState
}

// leaseMissReason explains a conditional update that matched no row.
func (s *PostgresStore) leaseMissReason(ctx context.Context, complaintID id.ComplaintID) error {
	var exists bool
	err := txcontext.Use(ctx, s.db).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM complaints WHERE id = $1)`, uuid.UUID(complaintID),
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check complaint exists: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrLocked
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanComplaint(row rowScanner) (*models.Complaint, error) {
	var (
		c                                  models.Complaint
		complaintID, citizenID             uuid.UUID
		departmentID, assignedID, lockedBy uuid.NullUUID
		status                             string
		lockedAt, lockExpiresAt, resolved  sql.NullTime
	)
	err := row.Scan(
		&complaintID, &c.ReferenceNumber, &citizenID, &departmentID, &assignedID,
		&c.Type, &c.Location, &c.Description, &c.Priority, &status,
		&c.IsLocked, &lockedBy, &lockedAt, &lockExpiresAt,
		&c.CreatedAt, &c.UpdatedAt, &resolved,
	)
	if err != nil {
		return nil, err
	}
	c.ID = id.ComplaintID(complaintID)
	c.CitizenID = id.UserID(citizenID)
	c.Status = models.Status(status)
	if departmentID.Valid {
		dept := id.DepartmentID(departmentID.UUID)
		c.DepartmentID = &dept
	}
	if assignedID.Valid {
		emp := id.UserID(assignedID.UUID)
		c.AssignedEmployeeID = &emp
	}
	if lockedBy.Valid {
		holder := id.UserID(lockedBy.UUID)
		c.LockedBy = &holder
	}
	c.LockedAt = timePtr(lockedAt)
	c.LockExpiresAt = timePtr(lockExpiresAt)
	c.ResolvedAt = timePtr(resolved)
	return &c, nil
}

func requireRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func nullDepartment(p *id.DepartmentID) any {
	if p == nil {
		return nil
	}
	return uuid.UUID(*p)
}

func nullUser(p *id.UserID) any {
	if p == nil {
		return nil
	}
	return uuid.UUID(*p)
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
