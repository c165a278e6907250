package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"dm-service/internal/models"
)

var ErrClientNotFound = errors.New("client not found")

// ClientRepository abstracts the registry of connected clients.
type ClientRepository interface {
	Put(ctx context.Context, client models.Client) error
	Get(ctx context.Context, connectionID string) (models.Client, error)
	GetByNickname(ctx context.Context, nickname string) (models.Client, error)
	Delete(ctx context.Context, connectionID string) error
	All(ctx context.Context) ([]models.Client, error)
}

// ClientRepo is a sqlx implementation of ClientRepository.
type ClientRepo struct {
	db *sqlx.DB
}

// NewClientRepo constructs a ClientRepo.
func NewClientRepo(db *sqlx.DB) *ClientRepo {
	return &ClientRepo{db: db}
}

// Put upserts the client row, overwriting any row with the same connection id.
func (r *ClientRepo) Put(ctx context.Context, client models.Client) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO clients (connection_id, nickname) VALUES ($1, $2)
        ON CONFLICT (connection_id) DO UPDATE SET nickname = EXCLUDED.nickname`,
		client.ConnectionID, client.Nickname)
	return err
}

// Get fetches a client by connection id.
func (r *ClientRepo) Get(ctx context.Context, connectionID string) (models.Client, error) {
	var client models.Client
	err := r.db.GetContext(ctx, &client, `SELECT connection_id, nickname, connected_at FROM clients WHERE connection_id=$1`, connectionID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Client{}, ErrClientNotFound
	}
	return client, err
}

// GetByNickname resolves the current holder of a nickname.
func (r *ClientRepo) GetByNickname(ctx context.Context, nickname string) (models.Client, error) {
	var client models.Client
	err := r.db.GetContext(ctx, &client, `SELECT connection_id, nickname, connected_at FROM clients WHERE nickname=$1 LIMIT 1`, nickname)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Client{}, ErrClientNotFound
	}
	return client, err
}

// Delete removes the client row. Deleting an absent row is a no-op.
func (r *ClientRepo) Delete(ctx context.Context, connectionID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM clients WHERE connection_id=$1`, connectionID)
	return err
}

// All returns every registered client. The scan is unbounded; roster sizes are small.
func (r *ClientRepo) All(ctx context.Context) ([]models.Client, error) {
	var clients []models.Client
	err := r.db.SelectContext(ctx, &clients, `SELECT connection_id, nickname, connected_at FROM clients ORDER BY connected_at ASC`)
	return clients, err
}
