package member

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound signals that no member exists for the given key.
	ErrNotFound = errors.New("member: not found")
	// ErrDuplicateEmail signals the email is already used by another member.
	ErrDuplicateEmail = errors.New("member: email already in use")
	// ErrDuplicatePhone signals the phone number is already used by another member.
	ErrDuplicatePhone = errors.New("member: phone already in use")
	// ErrVersionConflict signals the record changed underneath an update.
	ErrVersionConflict = errors.New("member: stale version")
)

// Repository defines the data access required by the member services.
type Repository interface {
	GetByID(ctx context.Context, id string) (Member, error)
	GetByEmail(ctx context.Context, email string) (Member, error)
	Create(ctx context.Context, m Member) (Member, error)
	Update(ctx context.Context, m Member) (Member, error)
	Delete(ctx context.Context, id string) error
	ExistsByEmailExcludingID(ctx context.Context, email, id string) (bool, error)
	ExistsByPhoneExcludingID(ctx context.Context, phone, id string) (bool, error)
	Search(ctx context.Context, filters Filters) ([]Member, int, error)
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed member repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const memberColumns = `id, name, email, phone_number, age, place, registration_date, version, created_at, updated_at`

// GetByID retrieves a member by identifier.
func (r *PGRepository) GetByID(ctx context.Context, id string) (Member, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+memberColumns+` FROM members WHERE id = $1`, id)
	m, err := scanMember(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Member{}, ErrNotFound
		}
		return Member{}, fmt.Errorf("member: get by id: %w", err)
	}
	return m, nil
}

// GetByEmail retrieves a member by the unique email column.
func (r *PGRepository) GetByEmail(ctx context.Context, email string) (Member, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+memberColumns+` FROM members WHERE email = $1`, NormalizeEmail(email))
	m, err := scanMember(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Member{}, ErrNotFound
		}
		return Member{}, fmt.Errorf("member: get by email: %w", err)
	}
	return m, nil
}

// Create inserts a new member at version 1.
func (r *PGRepository) Create(ctx context.Context, m Member) (Member, error) {
	const insertSQL = `
		INSERT INTO members (id, name, email, phone_number, age, place, registration_date, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 1)
		RETURNING ` + memberColumns

	created, err := scanMember(r.pool.QueryRow(ctx, insertSQL,
		m.ID, m.Name, m.Email, m.PhoneNumber, m.Age, m.Place, m.RegistrationDate))
	if err != nil {
		if dup := duplicateKeyError(err); dup != nil {
			return Member{}, dup
		}
		return Member{}, fmt.Errorf("member: create: %w", err)
	}
	return created, nil
}

// Update persists the full member row guarded by an optimistic version check.
// The stored version is bumped on success; a stale version surfaces as
// ErrVersionConflict.
func (r *PGRepository) Update(ctx context.Context, m Member) (Member, error) {
	const updateSQL = `
		UPDATE members
		SET name = $1,
		    email = $2,
		    phone_number = $3,
		    age = $4,
		    place = $5,
		    version = version + 1,
		    updated_at = now()
		WHERE id = $6 AND version = $7
		RETURNING ` + memberColumns

	updated, err := scanMember(r.pool.QueryRow(ctx, updateSQL,
		m.Name, m.Email, m.PhoneNumber, m.Age, m.Place, m.ID, m.Version))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Either the row is gone or someone saved a newer version.
			if _, getErr := r.GetByID(ctx, m.ID); errors.Is(getErr, ErrNotFound) {
				return Member{}, ErrNotFound
			}
			return Member{}, ErrVersionConflict
		}
		if dup := duplicateKeyError(err); dup != nil {
			return Member{}, dup
		}
		return Member{}, fmt.Errorf("member: update: %w", err)
	}
	return updated, nil
}

// Delete removes a member row. Deleting an absent member is not an error.
func (r *PGRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM members WHERE id = $1`, id); err != nil {
		return fmt.Errorf("member: delete: %w", err)
	}
	return nil
}

// ExistsByEmailExcludingID reports whether another member already owns email.
func (r *PGRepository) ExistsByEmailExcludingID(ctx context.Context, email, id string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM members WHERE email = $1 AND id <> $2)`,
		NormalizeEmail(email), id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("member: exists by email: %w", err)
	}
	return exists, nil
}

// ExistsByPhoneExcludingID reports whether another member already owns phone.
func (r *PGRepository) ExistsByPhoneExcludingID(ctx context.Context, phone, id string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM members WHERE phone_number = $1 AND id <> $2)`,
		phone, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("member: exists by phone: %w", err)
	}
	return exists, nil
}

// sortColumns whitelists the sortable columns so callers cannot inject SQL.
var sortColumns = map[string]string{
	"name":             "name",
	"email":            "email",
	"phoneNumber":      "phone_number",
	"age":              "age",
	"place":            "place",
	"registrationDate": "registration_date",
}

// Search returns one page of members matching filters plus the total count.
func (r *PGRepository) Search(ctx context.Context, filters Filters) ([]Member, int, error) {
	where, args := buildWhere(filters)

	page := filters.Page
	if page <= 0 {
		page = 1
	}
	pageSize := filters.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 10
	}

	query := `SELECT ` + memberColumns + ` FROM members` + where +
		orderBy(filters) +
		fmt.Sprintf(` LIMIT %d OFFSET %d`, pageSize, (page-1)*pageSize)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("member: search: %w", err)
	}
	defer rows.Close()

	members := []Member{}
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("member: search scan: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("member: search rows: %w", err)
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM members`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("member: search count: %w", err)
	}

	return members, total, nil
}

// SearchAll streams every member matching filters to fn, in filter order.
// Used by the export service to avoid materializing large result sets.
func (r *PGRepository) SearchAll(ctx context.Context, filters Filters, fn func(Member) error) error {
	where, args := buildWhere(filters)
	query := `SELECT ` + memberColumns + ` FROM members` + where + orderBy(filters)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("member: search all: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return fmt.Errorf("member: search all scan: %w", err)
		}
		if err := fn(m); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("member: search all rows: %w", err)
	}
	return nil
}

func buildWhere(filters Filters) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if q := strings.TrimSpace(filters.Query); q != "" {
		p := arg("%" + q + "%")
		clauses = append(clauses, fmt.Sprintf(
			"(name ILIKE %[1]s OR email ILIKE %[1]s OR phone_number ILIKE %[1]s OR place ILIKE %[1]s)", p))
	}
	if v := strings.TrimSpace(filters.Name); v != "" {
		clauses = append(clauses, "name ILIKE "+arg("%"+v+"%"))
	}
	if v := strings.TrimSpace(filters.Email); v != "" {
		clauses = append(clauses, "email ILIKE "+arg("%"+v+"%"))
	}
	if v := strings.TrimSpace(filters.PhoneNumber); v != "" {
		clauses = append(clauses, "phone_number ILIKE "+arg("%"+v+"%"))
	}
	if v := strings.TrimSpace(filters.Place); v != "" {
		clauses = append(clauses, "place ILIKE "+arg("%"+v+"%"))
	}
	if filters.AgeMin > 0 {
		clauses = append(clauses, "age >= "+arg(filters.AgeMin))
	}
	if filters.AgeMax > 0 {
		clauses = append(clauses, "age <= "+arg(filters.AgeMax))
	}
	if filters.RegisteredOn != nil {
		clauses = append(clauses, "registration_date = "+arg(*filters.RegisteredOn))
	} else {
		if filters.RegisteredFrom != nil {
			clauses = append(clauses, "registration_date >= "+arg(*filters.RegisteredFrom))
		}
		if filters.RegisteredUntil != nil {
			clauses = append(clauses, "registration_date <= "+arg(*filters.RegisteredUntil))
		}
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func orderBy(filters Filters) string {
	dir := "ASC"
	if strings.EqualFold(filters.SortOrder, "desc") {
		dir = "DESC"
	}

	var cols []string
	for _, key := range filters.SortBy {
		if col, ok := sortColumns[key]; ok {
			cols = append(cols, col+" "+dir)
		}
	}
	if len(cols) == 0 {
		cols = []string{"registration_date " + dir}
	}
	return " ORDER BY " + strings.Join(cols, ", ")
}

func duplicateKeyError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return nil
	}
	switch {
	case strings.Contains(pgErr.ConstraintName, "email"):
		return ErrDuplicateEmail
	case strings.Contains(pgErr.ConstraintName, "phone"):
		return ErrDuplicatePhone
	default:
		return fmt.Errorf("member: unique constraint %s violated: %w", pgErr.ConstraintName, err)
	}
}

func scanMember(row pgx.Row) (Member, error) {
	var m Member
	err := row.Scan(
		&m.ID,
		&m.Name,
		&m.Email,
		&m.PhoneNumber,
		&m.Age,
		&m.Place,
		&m.RegistrationDate,
		&m.Version,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return Member{}, err
	}
	return m, nil
}
