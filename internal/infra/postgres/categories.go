package postgres

import (
	"context"
	"fmt"

	"github.com/dvloznov/expense-tracker/internal/domain"
)

// ListCategories returns the user's categories in creation order.
func (r *Repository) ListCategories(ctx context.Context, userID string) ([]domain.Category, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, title, color, user_id FROM categories WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("ListCategories: query: %w", err)
	}
	defer rows.Close()

	categories := make([]domain.Category, 0)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Title, &c.Color, &c.UserID); err != nil {
			return nil, fmt.Errorf("ListCategories: scan: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListCategories: iterate: %w", err)
	}
	return categories, nil
}

// CreateCategory adds a category for the user.
func (r *Repository) CreateCategory(ctx context.Context, userID, title, color string) (*domain.Category, error) {
	c := domain.Category{Title: title, Color: color, UserID: userID}
	if err := r.pool.QueryRow(ctx,
		`INSERT INTO categories (title, color, user_id) VALUES ($1, $2, $3) RETURNING id`,
		title, color, userID,
	).Scan(&c.ID); err != nil {
		return nil, fmt.Errorf("CreateCategory: %w", err)
	}
	return &c, nil
}

// ListTags returns the user's tags.
func (r *Repository) ListTags(ctx context.Context, userID string) ([]domain.Tag, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, title, user_id FROM tags WHERE user_id = $1 ORDER BY title, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("ListTags: query: %w", err)
	}
	defer rows.Close()

	tags := make([]domain.Tag, 0)
	for rows.Next() {
		var t domain.Tag
		if err := rows.Scan(&t.ID, &t.Title, &t.UserID); err != nil {
			return nil, fmt.Errorf("ListTags: scan: %w", err)
		}
		tags = append(tags, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListTags: iterate: %w", err)
	}
	return tags, nil
}

// CreateTag adds a tag for the user.
func (r *Repository) CreateTag(ctx context.Context, userID, title string) (*domain.Tag, error) {
	t := domain.Tag{Title: title, UserID: userID}
	if err := r.pool.QueryRow(ctx,
		`INSERT INTO tags (title, user_id) VALUES ($1, $2) RETURNING id`, title, userID,
	).Scan(&t.ID); err != nil {
		return nil, fmt.Errorf("CreateTag: %w", err)
	}
	return &t, nil
}
