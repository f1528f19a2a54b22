package profiles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pubdesk/pubdesk/internal/perm"
	"github.com/pubdesk/pubdesk/internal/platform/db"
)

var (
	ErrNotFound = errors.New("profiles: not found")
)

// Advisory lock key serialising first-profile bootstrap decisions.
const bootstrapLockKey = 874219023

// Repository defines persistence operations for profiles.
type Repository interface {
	Get(ctx context.Context, id string) (*Profile, error)
	List(ctx context.Context) ([]Profile, error)
	CreateBootstrap(ctx context.Context, id, email, displayName string) (*Profile, error)
	UpdateRole(ctx context.Context, id string, role Role, perms perm.Set) error
	SetPermission(ctx context.Context, id string, m perm.Module, c perm.Capability, value bool) error
	Delete(ctx context.Context, id string) error
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const profileColumns = "id, email, display_name, role, permissions, created_at"

// Get fetches a profile by principal id.
func (r *PGRepository) Get(ctx context.Context, id string) (*Profile, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+profileColumns+" FROM profiles WHERE id = $1", id)
	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("profiles: get: %w", err)
	}
	return p, nil
}

// List returns all profiles, newest first.
func (r *PGRepository) List(ctx context.Context) ([]Profile, error) {
	rows, err := r.pool.Query(ctx, "SELECT "+profileColumns+" FROM profiles ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("profiles: list: %w", err)
	}
	defer rows.Close()

	var out []Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("profiles: list scan: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// CreateBootstrap inserts a profile for a first-time principal. The role is
// decided inside the same transaction that inserts the row, under an
// advisory lock, so two concurrent first sign-ins can never both observe an
// empty system and both become super admin.
func (r *PGRepository) CreateBootstrap(ctx context.Context, id, email, displayName string) (*Profile, error) {
	var created *Profile
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", bootstrapLockKey); err != nil {
			return fmt.Errorf("bootstrap lock: %w", err)
		}

		var hasSuper bool
		if err := tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM profiles WHERE role = $1)", RoleSuperAdmin).Scan(&hasSuper); err != nil {
			return fmt.Errorf("bootstrap probe: %w", err)
		}

		role, perms := bootstrapRole(hasSuper)

		permsJSON, err := json.Marshal(perms)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		var createdAt time.Time
		err = tx.QueryRow(ctx,
			`INSERT INTO profiles (id, email, display_name, role, permissions, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (id) DO NOTHING
			 RETURNING created_at`,
			id, email, displayName, role, permsJSON, now,
		).Scan(&createdAt)
		if errors.Is(err, pgx.ErrNoRows) {
			// Lost a same-principal race; the caller re-reads.
			return nil
		}
		if err != nil {
			return fmt.Errorf("bootstrap insert: %w", err)
		}

		created = &Profile{
			ID:          id,
			Email:       email,
			DisplayName: displayName,
			Role:        role,
			Permissions: perms,
			CreatedAt:   createdAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if created == nil {
		return r.Get(ctx, id)
	}
	return created, nil
}

// UpdateRole replaces the role and the full permission map in one write.
func (r *PGRepository) UpdateRole(ctx context.Context, id string, role Role, perms perm.Set) error {
	permsJSON, err := json.Marshal(perms)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, "UPDATE profiles SET role = $2, permissions = $3 WHERE id = $1", id, role, permsJSON)
	if err != nil {
		return fmt.Errorf("profiles: update role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetPermission toggles a single capability using a nested-field update,
// leaving the rest of the stored map untouched.
func (r *PGRepository) SetPermission(ctx context.Context, id string, m perm.Module, c perm.Capability, value bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE profiles
		 SET permissions = jsonb_set(
		     jsonb_set(permissions, ARRAY[$2::text], COALESCE(permissions -> $2::text, '{}'::jsonb), true),
		     ARRAY[$2::text, $3::text], to_jsonb($4::boolean), true)
		 WHERE id = $1`,
		id, string(m), string(c), value)
	if err != nil {
		return fmt.Errorf("profiles: set permission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a profile. Irrevocable.
func (r *PGRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM profiles WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("profiles: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*Profile, error) {
	var (
		p        Profile
		permsRaw []byte
	)
	if err := row.Scan(&p.ID, &p.Email, &p.DisplayName, &p.Role, &permsRaw, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.Permissions = decodePermissions(permsRaw)
	return &p, nil
}

// decodePermissions is tolerant of the deprecated flat-flag document shape:
// legacy flags seed the set, then any nested modules overwrite them.
func decodePermissions(raw []byte) perm.Set {
	if len(raw) == 0 {
		return perm.None()
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return perm.None()
	}

	set := perm.None()
	if perm.IsLegacy(doc) {
		set = perm.FromLegacy(doc)
	}
	for key, value := range doc {
		caps, ok := value.(map[string]any)
		if !ok {
			continue
		}
		for capName, v := range caps {
			granted, ok := v.(bool)
			if !ok {
				continue
			}
			set.Grant(perm.Module(key), perm.Capability(capName), granted)
		}
	}
	return set
}

var _ Repository = (*PGRepository)(nil)

// bootstrapRole decides the tier of a brand-new profile: the first profile
// ever created becomes super admin with everything granted, everyone after
// waits for approval with everything denied.
func bootstrapRole(hasSuper bool) (Role, perm.Set) {
	if hasSuper {
		return RolePending, perm.None()
	}
	return RoleSuperAdmin, perm.AllGranted()
}
