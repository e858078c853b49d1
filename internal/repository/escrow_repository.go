package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/KachiAlex/real-estate-marketplace-sub000/internal/models"
)

type EscrowRepository struct {
	db *sql.DB
}

func NewEscrowRepository(db *sql.DB) *EscrowRepository {
	return &EscrowRepository{db: db}
}

func (r *EscrowRepository) InitDB() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS escrow_transactions (
			id VARCHAR(64) PRIMARY KEY,
			entity_type VARCHAR(20) NOT NULL,
			property_id VARCHAR(64),
			investment_id VARCHAR(64),
			buyer_id VARCHAR(64) NOT NULL,
			seller_id VARCHAR(64),
			amount BIGINT NOT NULL,
			fee BIGINT NOT NULL,
			total_amount BIGINT NOT NULL,
			currency VARCHAR(8) NOT NULL,
			payment_method VARCHAR(20) NOT NULL,
			payment_reference VARCHAR(128),
			status VARCHAR(32) NOT NULL,
			metadata JSONB,
			paid_at TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_escrow_transactions_status ON escrow_transactions(status)`,
		`CREATE INDEX IF NOT EXISTS idx_escrow_transactions_property ON escrow_transactions(property_id)`,
		`CREATE INDEX IF NOT EXISTS idx_escrow_transactions_buyer ON escrow_transactions(buyer_id)`,
	}

	for _, query := range queries {
		if _, err := r.db.Exec(query); err != nil {
			return err
		}
	}

	return nil
}

func (r *EscrowRepository) Create(ctx context.Context, tx *models.EscrowTransaction) error {
	meta, err := json.Marshal(tx.Metadata)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO escrow_transactions
			(id, entity_type, property_id, investment_id, buyer_id, seller_id,
			 amount, fee, total_amount, currency, payment_method, status, metadata)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, NULLIF($6, ''),
			 $7, $8, $9, $10, $11, $12, $13)
	`, tx.ID, tx.EntityType, tx.PropertyID, tx.InvestmentID, tx.BuyerID, tx.SellerID,
		tx.Amount, tx.Fee, tx.TotalAmount, tx.Currency, tx.PaymentMethod, tx.Status, meta)
	return err
}

func (r *EscrowRepository) GetByID(ctx context.Context, id string) (*models.EscrowTransaction, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, entity_type, property_id, investment_id, buyer_id, seller_id,
		       amount, fee, total_amount, currency, payment_method, payment_reference,
		       status, metadata, paid_at, created_at, updated_at
		FROM escrow_transactions WHERE id = $1
	`, id)
	return scanEscrow(row)
}

func (r *EscrowRepository) FindActiveByProperty(ctx context.Context, propertyID string) (*models.EscrowTransaction, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, entity_type, property_id, investment_id, buyer_id, seller_id,
		       amount, fee, total_amount, currency, payment_method, payment_reference,
		       status, metadata, paid_at, created_at, updated_at
		FROM escrow_transactions
		WHERE property_id = $1 AND status NOT IN ('completed', 'cancelled', 'rejected')
		ORDER BY created_at DESC LIMIT 1
	`, propertyID)
	return scanEscrow(row)
}

func (r *EscrowRepository) List(ctx context.Context, filter models.EscrowFilter) ([]models.EscrowTransaction, int64, error) {
	where := "1=1"
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Status != "" {
		where += " AND status = " + arg(string(filter.Status))
	}
	switch {
	case filter.BuyerID != "" && filter.SellerID != "":
		where += " AND (buyer_id = " + arg(filter.BuyerID) + " OR seller_id = " + arg(filter.SellerID) + ")"
	case filter.BuyerID != "":
		where += " AND buyer_id = " + arg(filter.BuyerID)
	case filter.SellerID != "":
		where += " AND seller_id = " + arg(filter.SellerID)
	}

	var total int64
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM escrow_transactions WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * limit

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, entity_type, property_id, investment_id, buyer_id, seller_id,
		       amount, fee, total_amount, currency, payment_method, payment_reference,
		       status, metadata, paid_at, created_at, updated_at
		FROM escrow_transactions WHERE `+where+`
		ORDER BY created_at DESC LIMIT `+arg(limit)+" OFFSET "+arg(offset), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []models.EscrowTransaction
	for rows.Next() {
		tx, err := scanEscrow(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *tx)
	}
	return out, total, rows.Err()
}

func (r *EscrowRepository) TransitionStatus(ctx context.Context, id string, from, to models.EscrowStatus) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE escrow_transactions
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`, to, id, from)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *EscrowRepository) MarkFunded(ctx context.Context, id string, method models.PaymentMethod, reference string, paidAt time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE escrow_transactions
		SET status = $1, payment_method = $2, payment_reference = $3, paid_at = $4, updated_at = NOW()
		WHERE id = $5 AND status = $6
	`, models.EscrowPaymentReceived, method, reference, paidAt, id, models.EscrowPending)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEscrow(row rowScanner) (*models.EscrowTransaction, error) {
	var (
		tx         models.EscrowTransaction
		propertyID sql.NullString
		investID   sql.NullString
		sellerID   sql.NullString
		reference  sql.NullString
		meta       []byte
		paidAt     sql.NullTime
	)
	err := row.Scan(&tx.ID, &tx.EntityType, &propertyID, &investID, &tx.BuyerID, &sellerID,
		&tx.Amount, &tx.Fee, &tx.TotalAmount, &tx.Currency, &tx.PaymentMethod, &reference,
		&tx.Status, &meta, &paidAt, &tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		return nil, err
	}
	tx.PropertyID = propertyID.String
	tx.InvestmentID = investID.String
	tx.SellerID = sellerID.String
	tx.PaymentReference = reference.String
	if len(meta) > 0 {
		_ = json.Unmarshal(meta, &tx.Metadata)
	}
	if paidAt.Valid {
		t := paidAt.Time
		tx.PaidAt = &t
	}
	return &tx, nil
}
