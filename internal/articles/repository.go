package articles

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("articles: not found")

// Scope bounds a listing. All=false restricts to rows owned by Owner.
// Query, when set, filters on title, authors and venue.
type Scope struct {
	All   bool
	Owner string
	Query string
}

// Repository defines persistence operations for articles.
type Repository interface {
	List(ctx context.Context, scope Scope) ([]Article, error)
	Get(ctx context.Context, id int64) (*Article, error)
	Create(ctx context.Context, a *Article) error
	Update(ctx context.Context, a *Article) error
	Delete(ctx context.Context, id int64) error
	CountByCategory(ctx context.Context) (map[string]int64, error)
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const articleColumns = "id, title, authors, venue, category, created_by, created_email, created_at, updated_at"

// List returns articles within scope, newest first.
func (r *PGRepository) List(ctx context.Context, scope Scope) ([]Article, error) {
	query := "SELECT " + articleColumns + " FROM articles"
	var (
		where []string
		args  []any
	)
	if !scope.All {
		args = append(args, scope.Owner)
		where = append(where, "created_by = $"+strconv.Itoa(len(args)))
	}
	if scope.Query != "" {
		args = append(args, "%"+scope.Query+"%")
		n := strconv.Itoa(len(args))
		where = append(where, "(title ILIKE $"+n+" OR authors ILIKE $"+n+" OR venue ILIKE $"+n+")")
	}
	for i, clause := range where {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("articles: list: %w", err)
	}
	defer rows.Close()

	var out []Article
	for rows.Next() {
		var a Article
		if err := scanArticle(rows, &a); err != nil {
			return nil, fmt.Errorf("articles: list scan: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Get fetches one article.
func (r *PGRepository) Get(ctx context.Context, id int64) (*Article, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+articleColumns+" FROM articles WHERE id = $1", id)
	var a Article
	if err := scanArticle(row, &a); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("articles: get: %w", err)
	}
	return &a, nil
}

// Create inserts the article and fills in its generated id.
func (r *PGRepository) Create(ctx context.Context, a *Article) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO articles (title, authors, venue, category, created_by, created_email, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		a.Title, a.Authors, a.Venue, a.Category, a.CreatedBy, a.CreatedEmail, a.CreatedAt, a.UpdatedAt,
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("articles: create: %w", err)
	}
	return nil
}

// Update rewrites the editable fields. Ownership columns are not in the
// statement at all, so no caller can drift them.
func (r *PGRepository) Update(ctx context.Context, a *Article) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE articles
		 SET title = $2, authors = $3, venue = $4, category = $5, updated_at = $6
		 WHERE id = $1`,
		a.ID, a.Title, a.Authors, a.Venue, a.Category, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("articles: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes an article.
func (r *PGRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM articles WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("articles: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CountByCategory tallies the whole catalogue for the stats warmup job.
func (r *PGRepository) CountByCategory(ctx context.Context) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx, "SELECT category, COUNT(*) FROM articles GROUP BY category")
	if err != nil {
		return nil, fmt.Errorf("articles: count by category: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var (
			category string
			count    int64
		)
		if err := rows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("articles: count scan: %w", err)
		}
		out[category] = count
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(row rowScanner, a *Article) error {
	return row.Scan(&a.ID, &a.Title, &a.Authors, &a.Venue, &a.Category,
		&a.CreatedBy, &a.CreatedEmail, &a.CreatedAt, &a.UpdatedAt)
}

var _ Repository = (*PGRepository)(nil)
