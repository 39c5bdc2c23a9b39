package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore backs local development and tests. Deployments point
// DATABASE_URL at Postgres instead.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS products (
        id TEXT PRIMARY KEY, -- UUID
        name TEXT NOT NULL,
        bank TEXT NOT NULL,
        type TEXT NOT NULL,
        rate_apr REAL NOT NULL,
        min_income REAL NOT NULL,
        min_credit_score INTEGER NOT NULL,
        tenure_min_months INTEGER NOT NULL,
        tenure_max_months INTEGER NOT NULL,
        processing_fee_pct REAL NOT NULL,
        prepayment_allowed BOOLEAN NOT NULL DEFAULT FALSE,
        disbursal_speed TEXT NOT NULL,
        docs_level TEXT NOT NULL,
        summary TEXT,
        faq_json TEXT NOT NULL DEFAULT '[]',
        terms_json TEXT NOT NULL DEFAULT '{}'
    );

    CREATE TABLE IF NOT EXISTS users (
        id TEXT PRIMARY KEY, -- UUID
        email TEXT UNIQUE NOT NULL,
        display_name TEXT,
        password_hash TEXT NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS ai_chat_messages (
        id TEXT PRIMARY KEY, -- UUID
        user_id TEXT,
        product_id TEXT,
        role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
        content TEXT NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (user_id) REFERENCES users (id),
        FOREIGN KEY (product_id) REFERENCES products (id)
    );

    CREATE INDEX IF NOT EXISTS idx_messages_user_created
        ON ai_chat_messages (user_id, created_at DESC);
    `
	_, err := s.db.Exec(schema)
	return err
}

const sqliteProductColumns = `id, name, bank, type, rate_apr, min_income, min_credit_score,
    tenure_min_months, tenure_max_months, processing_fee_pct, prepayment_allowed,
    disbursal_speed, docs_level, summary, faq_json, terms_json`

func scanSQLiteProduct(row interface{ Scan(...any) error }) (*Product, error) {
	var p Product
	var summary sql.NullString
	var faqJSON, termsJSON string
	err := row.Scan(&p.ID, &p.Name, &p.Bank, &p.Type, &p.RateAPR, &p.MinIncome,
		&p.MinCreditScore, &p.TenureMinMonths, &p.TenureMaxMonths, &p.ProcessingFeePct,
		&p.PrepaymentAllowed, &p.DisbursalSpeed, &p.DocsLevel, &summary, &faqJSON, &termsJSON)
	if err != nil {
		return nil, err
	}
	if summary.Valid {
		p.Summary = &summary.String
	}
	if err := decodeProductJSON(&p, faqJSON, termsJSON); err != nil {
		return nil, err
	}
	return &p, nil
}

func decodeProductJSON(p *Product, faqJSON, termsJSON string) error {
	p.FAQ = []FAQItem{}
	p.Terms = map[string]any{}
	if faqJSON != "" {
		if err := json.Unmarshal([]byte(faqJSON), &p.FAQ); err != nil {
			return fmt.Errorf("failed to decode faq for product %s: %w", p.ID, err)
		}
	}
	if termsJSON != "" {
		if err := json.Unmarshal([]byte(termsJSON), &p.Terms); err != nil {
			return fmt.Errorf("failed to decode terms for product %s: %w", p.ID, err)
		}
	}
	return nil
}

func encodeProductJSON(p *Product) (faqJSON, termsJSON string, err error) {
	faq := p.FAQ
	if faq == nil {
		faq = []FAQItem{}
	}
	terms := p.Terms
	if terms == nil {
		terms = map[string]any{}
	}
	faqBytes, err := json.Marshal(faq)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode faq: %w", err)
	}
	termsBytes, err := json.Marshal(terms)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode terms: %w", err)
	}
	return string(faqBytes), string(termsBytes), nil
}

// Product methods
func (s *SQLiteStore) GetProduct(ctx context.Context, id string) (*Product, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+sqliteProductColumns+" FROM products WHERE id = ?", id)
	p, err := scanSQLiteProduct(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to query product: %w", err)
	}
	return p, nil
}

func (s *SQLiteStore) ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error) {
	query := "SELECT " + sqliteProductColumns + " FROM products"
	var conds []string
	var args []any

	if bank := strings.TrimSpace(filter.Bank); bank != "" {
		conds = append(conds, "LOWER(bank) LIKE '%' || LOWER(?) || '%'")
		args = append(args, bank)
	}
	if filter.AprMax != nil {
		conds = append(conds, "rate_apr <= ?")
		args = append(args, *filter.AprMax)
	}
	if filter.MinIncome != nil {
		conds = append(conds, "min_income >= ?")
		args = append(args, *filter.MinIncome)
	}
	if filter.MaxIncome != nil {
		conds = append(conds, "min_income <= ?")
		args = append(args, *filter.MaxIncome)
	}
	if filter.MinCreditScore != nil {
		conds = append(conds, "min_credit_score >= ?")
		args = append(args, *filter.MinCreditScore)
	}
	if filter.MaxCreditScore != nil {
		conds = append(conds, "min_credit_score <= ?")
		args = append(args, *filter.MaxCreditScore)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY rate_apr ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanSQLiteProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product row: %w", err)
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func (s *SQLiteStore) TopProducts(ctx context.Context, limit int) ([]Product, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+sqliteProductColumns+" FROM products ORDER BY rate_apr ASC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanSQLiteProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product row: %w", err)
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func (s *SQLiteStore) UpsertProduct(ctx context.Context, p *Product) error {
	if err := validateProduct(p); err != nil {
		return err
	}
	faqJSON, termsJSON, err := encodeProductJSON(p)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
        INSERT INTO products (id, name, bank, type, rate_apr, min_income, min_credit_score,
            tenure_min_months, tenure_max_months, processing_fee_pct, prepayment_allowed,
            disbursal_speed, docs_level, summary, faq_json, terms_json)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (id) DO UPDATE SET
            name = excluded.name,
            bank = excluded.bank,
            type = excluded.type,
            rate_apr = excluded.rate_apr,
            min_income = excluded.min_income,
            min_credit_score = excluded.min_credit_score,
            tenure_min_months = excluded.tenure_min_months,
            tenure_max_months = excluded.tenure_max_months,
            processing_fee_pct = excluded.processing_fee_pct,
            prepayment_allowed = excluded.prepayment_allowed,
            disbursal_speed = excluded.disbursal_speed,
            docs_level = excluded.docs_level,
            summary = excluded.summary,
            faq_json = excluded.faq_json,
            terms_json = excluded.terms_json`,
		p.ID, p.Name, p.Bank, p.Type, p.RateAPR, p.MinIncome, p.MinCreditScore,
		p.TenureMinMonths, p.TenureMaxMonths, p.ProcessingFeePct, p.PrepaymentAllowed,
		p.DisbursalSpeed, p.DocsLevel, p.Summary, faqJSON, termsJSON)
	if err != nil {
		return fmt.Errorf("failed to upsert product %s: %w", p.ID, err)
	}
	return nil
}

// User methods
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	var displayName sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT id, email, display_name, password_hash, created_at FROM users WHERE email = ?", email).
		Scan(&user.ID, &user.Email, &displayName, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	if displayName.Valid {
		user.DisplayName = &displayName.String
	}
	return &user, nil
}

func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*User, error) {
	var user User
	var displayName sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT id, email, display_name, password_hash, created_at FROM users WHERE id = ?", id).
		Scan(&user.ID, &user.Email, &displayName, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	if displayName.Valid {
		user.DisplayName = &displayName.String
	}
	return &user, nil
}

func (s *SQLiteStore) CreateUser(ctx context.Context, email, passwordHash string, displayName *string) (*User, error) {
	id := uuid.NewString()
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO users (id, email, display_name, password_hash, created_at) VALUES (?, ?, ?, ?, ?)",
		id, email, displayName, passwordHash, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	return &User{ID: id, Email: email, DisplayName: displayName, PasswordHash: passwordHash, CreatedAt: now}, nil
}

// Message methods
func (s *SQLiteStore) CreateChatMessage(ctx context.Context, msg *ChatMessage) error {
	msg.ID = uuid.NewString() // Ensure ID is set
	msg.CreatedAt = time.Now()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO ai_chat_messages (id, user_id, product_id, role, content, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		msg.ID, msg.UserID, msg.ProductID, msg.Role, msg.Content, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert chat message: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ConversationsByUser(ctx context.Context, userID string) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT m.product_id, p.name, p.bank, m.content, m.role, m.created_at
        FROM ai_chat_messages m
        JOIN products p ON p.id = m.product_id
        WHERE m.user_id = ? AND m.product_id IS NOT NULL
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
