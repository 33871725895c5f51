// Package pgstore implements payment.Store against Postgres via pgx/v5,
// following the teacher's internal/credentials.Service transaction pattern
// (Pool.Begin / defer tx.Rollback / tx.Commit) for every multi-row write.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crosslogic/payment-orchestrator/internal/payment"
)

// Store implements payment.Store.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// CreatePayment inserts a Payment and its sessions in a single transaction
// (spec §5).
func (s *Store) CreatePayment(ctx context.Context, p *payment.Payment) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("pgstore: begin create payment: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO payments (id, user_id, order_id, amount, currency, status, idempotency_key, provider_order_id, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, p.ID, p.UserID, p.OrderID, p.Amount.Amount, p.Amount.Currency, p.Status, p.IdempotencyKey,
		nullableString(p.ProviderOrderID), p.ExpiresAt, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("pgstore: insert payment: %w", err)
	}

	for _, sess := range p.Sessions {
		if err := insertSession(ctx, tx, p.ID, sess); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("pgstore: commit create payment: %w", err)
	}
	return nil
}

// UpdatePayment overwrites the Payment row and upserts every session in a
// single transaction (spec §5).
func (s *Store) UpdatePayment(ctx context.Context, p *payment.Payment) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("pgstore: begin update payment: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE payments
		SET status = $2, provider_order_id = $3, updated_at = $4
		WHERE id = $1
	`, p.ID, p.Status, nullableString(p.ProviderOrderID), p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("pgstore: update payment: %w", err)
	}

	for _, sess := range p.Sessions {
		if err := upsertSession(ctx, tx, p.ID, sess); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("pgstore: commit update payment: %w", err)
	}
	return nil
}

func insertSession(ctx context.Context, tx pgx.Tx, paymentID string, sess payment.ProviderSession) error {
	metadata, err := json.Marshal(sess.Metadata)
	if err != nil {
		return fmt.Errorf("pgstore: marshal session metadata: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO payment_provider_sessions
			(id, payment_id, provider, provider_amount, provider_currency, fx_rate, fx_timestamp,
			 provider_order_id, provider_payment_id, status, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, sess.ID, paymentID, sess.Provider, sess.Amount.Amount, sess.Amount.Currency, sess.FXRate, sess.FXTimestamp,
		sess.ProviderOrderID, nullableString(sess.ProviderPaymentID), sess.Status, metadata, sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		return fmt.Errorf("pgstore: insert session: %w", err)
	}
	return nil
}

func upsertSession(ctx context.Context, tx pgx.Tx, paymentID string, sess payment.ProviderSession) error {
	metadata, err := json.Marshal(sess.Metadata)
	if err != nil {
		return fmt.Errorf("pgstore: marshal session metadata: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO payment_provider_sessions
			(id, payment_id, provider, provider_amount, provider_currency, fx_rate, fx_timestamp,
			 provider_order_id, provider_payment_id, status, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			provider_payment_id = EXCLUDED.provider_payment_id,
			status = EXCLUDED.status,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at
	`, sess.ID, paymentID, sess.Provider, sess.Amount.Amount, sess.Amount.Currency, sess.FXRate, sess.FXTimestamp,
		sess.ProviderOrderID, nullableString(sess.ProviderPaymentID), sess.Status, metadata, sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		return fmt.Errorf("pgstore: upsert session: %w", err)
	}
	return nil
}

// GetByID fetches a Payment and its sessions, or nil if not found.
func (s *Store) GetByID(ctx context.Context, id string) (*payment.Payment, error) {
	return s.getOne(ctx, "WHERE p.id = $1", id)
}

// GetByIdempotencyKey fetches a Payment by its caller-supplied idempotency key.
func (s *Store) GetByIdempotencyKey(ctx context.Context, key string) (*payment.Payment, error) {
	return s.getOne(ctx, "WHERE p.idempotency_key = $1", key)
}

// GetByProviderOrderID fetches a Payment by the provider order ID recorded
// on one of its sessions (spec §6's `(providerOrderId)` lookup index).
func (s *Store) GetByProviderOrderID(ctx context.Context, provider payment.Provider, providerOrderID string) (*payment.Payment, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT payment_id FROM payment_provider_sessions
		WHERE provider = $1 AND provider_order_id = $2
		ORDER BY created_at DESC LIMIT 1
	`, provider, providerOrderID)

	var paymentID string
	if err := row.Scan(&paymentID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("pgstore: lookup by provider order id: %w", err)
	}
	return s.GetByID(ctx, paymentID)
}

func (s *Store) getOne(ctx context.Context, where string, arg interface{}) (*payment.Payment, error) {
	query := fmt.Sprintf(`
		SELECT p.id, p.user_id, p.order_id, p.amount, p.currency, p.status, p.idempotency_key,
		       p.provider_order_id, p.expires_at, p.created_at, p.updated_at
		FROM payments p
		%s
	`, where)

	row := s.pool.QueryRow(ctx, query, arg)

	var p payment.Payment
	var providerOrderID *string
	var amount int64
	var currency string
	if err := row.Scan(&p.ID, &p.UserID, &p.OrderID, &amount, &currency, &p.Status, &p.IdempotencyKey,
		&providerOrderID, &p.ExpiresAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("pgstore: scan payment: %w", err)
	}
	p.Amount = payment.Money{Amount: amount, Currency: currency}
	if providerOrderID != nil {
		p.ProviderOrderID = *providerOrderID
	}

	sessions, err := s.sessionsForPayment(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	p.Sessions = sessions

	return &p, nil
}

func (s *Store) sessionsForPayment(ctx context.Context, paymentID string) ([]payment.ProviderSession, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, payment_id, provider, provider_amount, provider_currency, fx_rate, fx_timestamp,
		       provider_order_id, provider_payment_id, status, metadata, created_at, updated_at
		FROM payment_provider_sessions
		WHERE payment_id = $1
		ORDER BY created_at ASC
	`, paymentID)
	if err != nil {
		return nil, fmt.Errorf("pgstore: query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []payment.ProviderSession
	for rows.Next() {
		var sess payment.ProviderSession
		var providerPaymentID *string
		var amount int64
		var currency string
		var metadata []byte
		if err := rows.Scan(&sess.ID, &sess.PaymentID, &sess.Provider, &amount, &currency, &sess.FXRate, &sess.FXTimestamp,
			&sess.ProviderOrderID, &providerPaymentID, &sess.Status, &metadata, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("pgstore: scan session: %w", err)
		}
		sess.Amount = payment.Money{Amount: amount, Currency: currency}
		if providerPaymentID != nil {
			sess.ProviderPaymentID = *providerPaymentID
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &sess.Metadata); err != nil {
				return nil, fmt.Errorf("pgstore: unmarshal session metadata: %w", err)
			}
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// ListExpiredPending returns PENDING payments whose ExpiresAt has passed,
// bounded to limit rows, serving the sweeper's safety-net pass (spec §4.4).
// The `(status, expires_at)` composite index keeps this a fast index scan.
func (s *Store) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]*payment.Payment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM payments
		WHERE status = $1 AND expires_at <= $2
		ORDER BY expires_at ASC
		LIMIT $3
	`, payment.StatusPending, now, limit)
	if err != nil {
		return nil, fmt.Errorf("pgstore: query expired pending: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("pgstore: scan expired payment id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	payments := make([]*payment.Payment, 0, len(ids))
	for _, id := range ids {
		p, err := s.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if p != nil {
			payments = append(payments, p)
		}
	}
	return payments, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
