package store

import (
	"context"
	"fmt"

	"github.com/kjstillabower/climate-risk-service/internal/models"
)

// CreateContact stores a contact message with status pending.
func (s *SQLStore) CreateContact(ctx context.Context, c models.ContactMessage) (models.ContactMessage, error) {
	if c.Date.IsZero() {
		c.Date = s.now()
	}
	if c.Status == "" {
		c.Status = models.ContactPending
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO contacts (name, email, message, date, status)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		c.Name, c.Email, c.Message, c.Date, string(c.Status),
	).Scan(&c.ID)
	if err != nil {
		return models.ContactMessage{}, fmt.Errorf("insert contact: %w", err)
	}
	return c, nil
}

// ListContacts returns the newest contact messages first. limit <= 0 means all.
func (s *SQLStore) ListContacts(ctx context.Context, limit int) ([]models.ContactMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, email, message, date, status FROM contacts ORDER BY id DESC`+limitClause(limit))
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	var out []models.ContactMessage
	for rows.Next() {
		var c models.ContactMessage
		var status string
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Message, &c.Date, &status); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		c.Status = models.ContactStatus(status)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	return out, nil
}

// UpdateContactStatus sets the triage status of a message.
func (s *SQLStore) UpdateContactStatus(ctx context.Context, id int64, status models.ContactStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid contact status %q", status)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE contacts SET status = $1 WHERE id = $2`, string(status), id)
	if err != nil {
		return fmt.Errorf("update contact: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update contact: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
