package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"civicdesk/internal/platform/postgres"
	"civicdesk/internal/staff/models"
	id "civicdesk/pkg/domain"
	"civicdesk/pkg/platform/sentinel"
	txcontext "civicdesk/pkg/platform/tx"
)

// staffRoles are the roles notified about new complaints in their department.
var staffRoles = []string{string(id.RoleEmployee), string(id.RoleAdmin)}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreateDepartment(ctx context.Context, d *models.Department) error {
	_, err := txcontext.Use(ctx, s.db).ExecContext(ctx,
		`INSERT INTO departments (id, name, is_active, created_at) VALUES ($1, $2, $3, $4)`,
		uuid.UUID(d.ID), d.Name, d.IsActive, d.CreatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err, "") {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert department: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindDepartment(ctx context.Context, deptID id.DepartmentID) (*models.Department, error) {
	var (
		d     models.Department
		rawID uuid.UUID
	)
	err := txcontext.Use(ctx, s.db).QueryRowContext(ctx,
		`SELECT id, name, is_active, created_at FROM departments WHERE id = $1`, uuid.UUID(deptID),
	).Scan(&rawID, &d.Name, &d.IsActive, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find department: %w", err)
	}
	d.ID = id.DepartmentID(rawID)
	return &d, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, u *models.User) error {
	query := `
		INSERT INTO users (id, name, email, phone, role, department_id, password_hash, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	var dept any
	if u.DepartmentID != nil {
		dept = uuid.UUID(*u.DepartmentID)
	}
	_, err := txcontext.Use(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(u.ID),
		u.Name,
		u.Email,
		u.Phone,
		string(u.Role),
		dept,
		u.PasswordHash,
		u.IsActive,
		u.CreatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err, "") {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindUser(ctx context.Context, userID id.UserID) (*models.User, error) {
	query := `
		SELECT id, name, email, phone, role, department_id, password_hash, is_active, created_at
		FROM users
		WHERE id = $1
	`
	var (
		u     models.User
		rawID uuid.UUID
		role  string
		dept  uuid.NullUUID
	)
	err := txcontext.Use(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(userID)).Scan(
		&rawID, &u.Name, &u.Email, &u.Phone, &role, &dept, &u.PasswordHash, &u.IsActive, &u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	u.ID = id.UserID(rawID)
	u.Role = id.Role(role)
	if dept.Valid {
		d := id.DepartmentID(dept.UUID)
		u.DepartmentID = &d
	}
	return &u, nil
}

func (s *PostgresStore) SetUserDepartment(ctx context.Context, userID id.UserID, deptID *id.DepartmentID) error {
	var dept any
	if deptID != nil {
		dept = uuid.UUID(*deptID)
	}
	res, err := txcontext.Use(ctx, s.db).ExecContext(ctx,
		`UPDATE users SET department_id = $2 WHERE id = $1`, uuid.UUID(userID), dept)
	if err != nil {
		return fmt.Errorf("update user department: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user department rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) StaffOf(ctx context.Context, deptID id.DepartmentID) ([]id.UserID, error) {
	query := `
		SELECT id FROM users
		WHERE department_id = $1 AND is_active AND role = ANY($2)
		ORDER BY created_at
	`
	rows, err := txcontext.Use(ctx, s.db).QueryContext(ctx, query, uuid.UUID(deptID), pq.Array(staffRoles))
	if err != nil {
		return nil, fmt.Errorf("list department staff: %w", err)
	}
	defer rows.Close()

	var out []id.UserID
	for rows.Next() {
		var raw uuid.UUID
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan staff id: %w", err)
		}
		out = append(out, id.UserID(raw))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate staff: %w", err)
	}
	return out, nil
}
