package service

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bluebridge/termsheet-ingest/backend/config"
	"github.com/bluebridge/termsheet-ingest/backend/model"
)

var (
	ErrProductNotFound        = errors.New("product not found")
	ErrProductAlreadyApproved = errors.New("product is already approved")
)

//go:embed schema.sql
var schemaSQL string

// ProductRepository stores extracted products in Postgres
type ProductRepository struct {
	pool *pgxpool.Pool
}

func NewProductRepository(ctx context.Context, cfg config.DatabaseConfig) (*ProductRepository, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pg pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pg: %w", err)
	}
	return &ProductRepository{pool: pool}, nil
}

func (r *ProductRepository) Close() {
	r.pool.Close()
}

func (r *ProductRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Migrate creates the schema if it does not exist
func (r *ProductRepository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// ExistsByISIN reports whether a product with isin is already stored
func (r *ProductRepository) ExistsByISIN(ctx context.Context, isin string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE product_isin = $1)`, isin).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query product existence: %w", err)
	}
	return exists, nil
}

// Persist writes the product, its underlyings, its events and an extraction
// audit row in one transaction. The product is stored unapproved.
func (r *ProductRepository) Persist(ctx context.Context, data *model.TermsheetData, sourceFilename, blobPath, status string) (*model.ProductRecord, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	p := data.Product
	record := &model.ProductRecord{Product: p}
	err = tx.QueryRow(ctx, `
		INSERT INTO products (
			product_isin,
			sedol,
			short_description,
			issuer,
			issue_date,
			currency,
			maturity,
			product_type,
			word_description,
			approved
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,false)
		RETURNING approved, created_at
	`,
		p.ISIN,
		p.SEDOL,
		p.ShortDescription,
		p.Issuer,
		p.IssueDate.Time,
		p.Currency,
		p.Maturity.Time,
		p.ProductType,
		p.WordDescription,
	).Scan(&record.Approved, &record.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert product: %w", err)
	}

	batch := &pgx.Batch{}
	for _, u := range data.Underlyings {
		batch.Queue(`
			INSERT INTO underlyings (product_isin, bbg_code, weight, initial_price)
			VALUES ($1,$2,$3,$4)
		`, p.ISIN, u.BBGCode, u.Weight, u.InitialPrice)
	}
	for _, e := range data.Events {
		batch.Queue(`
			INSERT INTO events (
				product_isin,
				event_type,
				event_level_pct,
				event_strike_pct,
				event_date,
				event_amount,
				event_payment_date
			) VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, p.ISIN, string(e.Type), e.LevelPct, e.StrikePct, e.Date.Time, e.Amount, dateOrNil(e.PaymentDate))
	}
	batch.Queue(`
		INSERT INTO extraction_metadata (product_isin, source_filename, extracted_at, status, blob_path)
		VALUES ($1,$2,$3,$4,$5)
	`, p.ISIN, sourceFilename, time.Now().UTC(), status, nullIfEmpty(blobPath))

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return nil, fmt.Errorf("insert product children: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return record, nil
}

// List returns product summaries, newest issue date first
func (r *ProductRepository) List(ctx context.Context) ([]model.ProductSummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT
			p.product_isin,
			p.sedol,
			p.short_description,
			p.issuer,
			p.issue_date,
			p.currency,
			p.maturity,
			p.product_type,
			p.approved,
			(SELECT COUNT(*) FROM underlyings u WHERE u.product_isin = p.product_isin),
			(SELECT COUNT(*) FROM events e WHERE e.product_isin = p.product_isin)
		FROM products p
		ORDER BY p.issue_date DESC, p.product_isin
	`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	items := make([]model.ProductSummary, 0)
	for rows.Next() {
		var (
			item      model.ProductSummary
			issueDate time.Time
			maturity  time.Time
		)
		if err := rows.Scan(
			&item.ISIN,
			&item.SEDOL,
			&item.ShortDescription,
			&item.Issuer,
			&issueDate,
			&item.Currency,
			&maturity,
			&item.ProductType,
			&item.Approved,
			&item.UnderlyingCount,
			&item.EventCount,
		); err != nil {
			return nil, fmt.Errorf("scan product summary: %w", err)
		}
		item.IssueDate = model.Date{Time: issueDate}
		item.Maturity = model.Date{Time: maturity}
		items = append(items, item)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate products: %w", rows.Err())
	}
	return items, nil
}

// Get returns the product with its underlyings and its events ordered by date
func (r *ProductRepository) Get(ctx context.Context, isin string) (*model.ProductDetail, error) {
	var (
		detail    model.ProductDetail
		issueDate time.Time
		maturity  time.Time
	)
	err := r.pool.QueryRow(ctx, `
		SELECT product_isin, sedol, short_description, issuer, issue_date, currency, maturity, product_type, word_description, approved
		FROM products
		WHERE product_isin = $1
	`, isin).Scan(
		&detail.ISIN,
		&detail.SEDOL,
		&detail.ShortDescription,
		&detail.Issuer,
		&issueDate,
		&detail.Currency,
		&maturity,
		&detail.ProductType,
		&detail.WordDescription,
		&detail.Approved,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("query product: %w", err)
	}
	detail.IssueDate = model.Date{Time: issueDate}
	detail.Maturity = model.Date{Time: maturity}

	if detail.Underlyings, err = r.underlyings(ctx, isin); err != nil {
		return nil, err
	}
	if detail.Events, err = r.events(ctx, isin); err != nil {
		return nil, err
	}
	return &detail, nil
}

func (r *ProductRepository) underlyings(ctx context.Context, isin string) ([]model.Underlying, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT bbg_code, weight, initial_price
		FROM underlyings
		WHERE product_isin = $1
		ORDER BY id
	`, isin)
	if err != nil {
		return nil, fmt.Errorf("query underlyings: %w", err)
	}
	defer rows.Close()

	out := make([]model.Underlying, 0)
	for rows.Next() {
		var u model.Underlying
		if err := rows.Scan(&u.BBGCode, &u.Weight, &u.InitialPrice); err != nil {
			return nil, fmt.Errorf("scan underlying: %w", err)
		}
		out = append(out, u)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate underlyings: %w", rows.Err())
	}
	return out, nil
}

func (r *ProductRepository) events(ctx context.Context, isin string) ([]model.Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT event_type, event_level_pct, event_strike_pct, event_date, event_amount, event_payment_date
		FROM events
		WHERE product_isin = $1
		ORDER BY event_date, id
	`, isin)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	out := make([]model.Event, 0)
	for rows.Next() {
		var (
			e           model.Event
			eventType   string
			eventDate   time.Time
			paymentDate *time.Time
		)
		if err := rows.Scan(&eventType, &e.LevelPct, &e.StrikePct, &eventDate, &e.Amount, &paymentDate); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Type = model.EventType(eventType)
		e.Date = model.Date{Time: eventDate}
		if paymentDate != nil {
			e.PaymentDate = &model.Date{Time: *paymentDate}
		}
		out = append(out, e)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate events: %w", rows.Err())
	}
	return out, nil
}

// Approve marks a product approved. Approval happens at most once.
func (r *ProductRepository) Approve(ctx context.Context, isin string) error {
	command, err := r.pool.Exec(ctx, `
		UPDATE products
		SET approved = true
		WHERE product_isin = $1 AND NOT approved
	`, isin)
	if err != nil {
		return fmt.Errorf("approve product: %w", err)
	}
	if command.RowsAffected() == 1 {
		return nil
	}

	exists, err := r.ExistsByISIN(ctx, isin)
	if err != nil {
		return err
	}
	if !exists {
		return ErrProductNotFound
	}
	return ErrProductAlreadyApproved
}

// ExtractionHistory returns the audit rows for a product, oldest first
func (r *ProductRepository) ExtractionHistory(ctx context.Context, isin string) ([]model.ExtractionMetadata, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT product_isin, source_filename, extracted_at, status, COALESCE(blob_path, '')
		FROM extraction_metadata
		WHERE product_isin = $1
		ORDER BY extracted_at, id
	`, isin)
	if err != nil {
		return nil, fmt.Errorf("query extraction metadata: %w", err)
	}
	defer rows.Close()

	out := make([]model.ExtractionMetadata, 0)
	for rows.Next() {
		var m model.ExtractionMetadata
		if err := rows.Scan(&m.ProductISIN, &m.SourceFilename, &m.ExtractedAt, &m.Status, &m.BlobPath); err != nil {
			return nil, fmt.Errorf("scan extraction metadata: %w", err)
		}
		out = append(out, m)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate extraction metadata: %w", rows.Err())
	}
	return out, nil
}

func dateOrNil(d *model.Date) any {
	if d == nil || d.IsZero() {
		return nil
	}
	return d.Time
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
