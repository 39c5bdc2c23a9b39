package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the deployment store, backed by a pgx pool against the
// hosted Postgres instance.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	// Pool configuration
	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.migrate(ctx); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS products (
            id UUID PRIMARY KEY,
            name TEXT NOT NULL,
            bank TEXT NOT NULL,
            type TEXT NOT NULL,
            rate_apr DOUBLE PRECISION NOT NULL,
            min_income DOUBLE PRECISION NOT NULL,
            min_credit_score INTEGER NOT NULL,
            tenure_min_months INTEGER NOT NULL,
            tenure_max_months INTEGER NOT NULL,
            processing_fee_pct DOUBLE PRECISION NOT NULL,
            prepayment_allowed BOOLEAN NOT NULL DEFAULT FALSE,
            disbursal_speed TEXT NOT NULL,
            docs_level TEXT NOT NULL,
            summary TEXT,
            faq JSONB NOT NULL DEFAULT '[]',
            terms JSONB NOT NULL DEFAULT '{}'
        );

        CREATE TABLE IF NOT EXISTS users (
            id UUID PRIMARY KEY,
            email TEXT UNIQUE NOT NULL,
            display_name TEXT,
            password_hash TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );

        CREATE TABLE IF NOT EXISTS ai_chat_messages (
            id UUID PRIMARY KEY,
            user_id UUID REFERENCES users (id),
            product_id UUID REFERENCES products (id),
            role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
            content TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );

        CREATE INDEX IF NOT EXISTS idx_messages_user_created
            ON ai_chat_messages (user_id, created_at DESC);
    `)
	return err
}

const pgProductColumns = `id, name, bank, type, rate_apr, min_income, min_credit_score,
    tenure_min_months, tenure_max_months, processing_fee_pct, prepayment_allowed,
    disbursal_speed, docs_level, summary, faq::text, terms::text`

func scanPGProduct(row pgx.Row) (*Product, error) {
	var p Product
	var summary *string
	var faqJSON, termsJSON string
	err := row.Scan(&p.ID, &p.Name, &p.Bank, &p.Type, &p.RateAPR, &p.MinIncome,
		&p.MinCreditScore, &p.TenureMinMonths, &p.TenureMaxMonths, &p.ProcessingFeePct,
		&p.PrepaymentAllowed, &p.DisbursalSpeed, &p.DocsLevel, &summary, &faqJSON, &termsJSON)
	if err != nil {
		return nil, err
	}
	p.Summary = summary
	if err := decodeProductJSON(&p, faqJSON, termsJSON); err != nil {
		return nil, err
	}
	return &p, nil
}

// Product methods
func (s *PostgresStore) GetProduct(ctx context.Context, id string) (*Product, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+pgProductColumns+" FROM products WHERE id = $1", id)
	p, err := scanPGProduct(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to query product: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error) {
	query := "SELECT " + pgProductColumns + " FROM products"
	var conds []string
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if bank := strings.TrimSpace(filter.Bank); bank != "" {
		conds = append(conds, "bank ILIKE '%' || "+arg(bank)+" || '%'")
	}
	if filter.AprMax != nil {
		conds = append(conds, "rate_apr <= "+arg(*filter.AprMax))
	}
	if filter.MinIncome != nil {
		conds = append(conds, "min_income >= "+arg(*filter.MinIncome))
	}
	if filter.MaxIncome != nil {
		conds = append(conds, "min_income <= "+arg(*filter.MaxIncome))
	}
	if filter.MinCreditScore != nil {
		conds = append(conds, "min_credit_score >= "+arg(*filter.MinCreditScore))
	}
	if filter.MaxCreditScore != nil {
		conds = append(conds, "min_credit_score <= "+arg(*filter.MaxCreditScore))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY rate_apr ASC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanPGProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product row: %w", err)
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func (s *PostgresStore) TopProducts(ctx context.Context, limit int) ([]Product, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+pgProductColumns+" FROM products ORDER BY rate_apr ASC LIMIT $1", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanPGProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product row: %w", err)
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func (s *PostgresStore) UpsertProduct(ctx context.Context, p *Product) error {
	if err := validateProduct(p); err != nil {
		return err
	}
	faqJSON, termsJSON, err := encodeProductJSON(p)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
        INSERT INTO products (id, name, bank, type, rate_apr, min_income, min_credit_score,
            tenure_min_months, tenure_max_months, processing_fee_pct, prepayment_allowed,
            disbursal_speed, docs_level, summary, faq, terms)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15::jsonb, $16::jsonb)
        ON CONFLICT (id) DO UPDATE SET
            name = EXCLUDED.name,
            bank = EXCLUDED.bank,
            type = EXCLUDED.type,
            rate_apr = EXCLUDED.rate_apr,
            min_income = EXCLUDED.min_income,
            min_credit_score = EXCLUDED.min_credit_score,
            tenure_min_months = EXCLUDED.tenure_min_months,
            tenure_max_months = EXCLUDED.tenure_max_months,
            processing_fee_pct = EXCLUDED.processing_fee_pct,
            prepayment_allowed = EXCLUDED.prepayment_allowed,
            disbursal_speed = EXCLUDED.disbursal_speed,
            docs_level = EXCLUDED.docs_level,
            summary = EXCLUDED.summary,
            faq = EXCLUDED.faq,
            terms = EXCLUDED.terms`,
		p.ID, p.Name, p.Bank, p.Type, p.RateAPR, p.MinIncome, p.MinCreditScore,
		p.TenureMinMonths, p.TenureMaxMonths, p.ProcessingFeePct, p.PrepaymentAllowed,
		p.DisbursalSpeed, p.DocsLevel, p.Summary, faqJSON, termsJSON)
	if err != nil {
		return fmt.Errorf("failed to upsert product %s: %w", p.ID, err)
	}
	return nil
}

// User methods
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := s.pool.QueryRow(ctx,
		"SELECT id, email, display_name, password_hash, created_at FROM users WHERE email = $1", email).
		Scan(&user.ID, &user.Email, &user.DisplayName, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (*User, error) {
	var user User
	err := s.pool.QueryRow(ctx,
		"SELECT id, email, display_name, password_hash, created_at FROM users WHERE id = $1", id).
		Scan(&user.ID, &user.Email, &user.DisplayName, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return &user, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, email, passwordHash string, displayName *string) (*User, error) {
	id := uuid.NewString()
	now := time.Now()
	_, err := s.pool.Exec(ctx,
		"INSERT INTO users (id, email, display_name, password_hash, created_at) VALUES ($1, $2, $3, $4, $5)",
		id, email, displayName, passwordHash, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	return &User{ID: id, Email: email, DisplayName: displayName, PasswordHash: passwordHash, CreatedAt: now}, nil
}

// Message methods
func (s *PostgresStore) CreateChatMessage(ctx context.Context, msg *ChatMessage) error {
	msg.ID = uuid.NewString() // Ensure ID is set
	msg.CreatedAt = time.Now()

	_, err := s.pool.Exec(ctx,
		"INSERT INTO ai_chat_messages (id, user_id, product_id, role, content, created_at) VALUES ($1, $2, $3, $4, $5, $6)",
		msg.ID, msg.UserID, msg.ProductID, msg.Role, msg.Content, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert chat message: %w", err)
	}
	return nil
}

func (s *PostgresStore) ConversationsByUser(ctx context.Context, userID string) ([]Conversation, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT m.product_id, p.name, p.bank, m.content, m.role, m.created_at
        FROM ai_chat_messages m
        JOIN products p ON p.id = m.product_id
        WHERE m.user_id = $1 AND m.product_id IS NOT NULL
        ORDER BY m.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	var all []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ProductID, &c.ProductName, &c.ProductBank, &c.LastMessage, &c.LastRole, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		all = append(all, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return latestPerProduct(all), nil
}
