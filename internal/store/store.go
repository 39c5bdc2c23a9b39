package store

import (
	"context"
	"fmt"
	"strings"
)

// Store is the persistence boundary. Lookup methods return (nil, nil) when the
// row does not exist so callers can map absence to a not-found response.
type Store interface {
	GetProduct(ctx context.Context, id string) (*Product, error)
	ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error)
	TopProducts(ctx context.Context, limit int) ([]Product, error)
	UpsertProduct(ctx context.Context, p *Product) error

	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByID(ctx context.Context, id string) (*User, error)
	CreateUser(ctx context.Context, email, passwordHash string, displayName *string) (*User, error)

	CreateChatMessage(ctx context.Context, msg *ChatMessage) error
	ConversationsByUser(ctx context.Context, userID string) ([]Conversation, error)

	Close() error
}

// Open picks the backing database from the URL: postgres:// connection strings
// get the pgx pool, anything else is treated as a SQLite file path.
func Open(ctx context.Context, databaseURL string) (Store, error) {
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		return NewPostgresStore(ctx, databaseURL)
	}
	return NewSQLiteStore(databaseURL)
}

// latestPerProduct collapses a newest-first message scan into one conversation
// per product, keeping the first (most recent) row seen for each.
func latestPerProduct(rows []Conversation) []Conversation {
	seen := make(map[string]bool, len(rows))
	out := make([]Conversation, 0, len(rows))
	for _, row := range rows {
		if seen[row.ProductID] {
			continue
		}
		seen[row.ProductID] = true
		out = append(out, row)
	}
	return out
}

func validateProduct(p *Product) error {
	if p.ID == "" {
		return fmt.Errorf("product id is required")
	}
	for _, t := range ProductTypes {
		if p.Type == t {
			return nil
		}
	}
	return fmt.Errorf("unknown product type %q", p.Type)
}
