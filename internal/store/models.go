package store

import "time"

// ProductTypes is the fixed set of loan categories.
var ProductTypes = []string{
	"personal",
	"education",
	"vehicle",
	"home",
	"credit_line",
	"debt_consolidation",
}

type FAQItem struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Product is a loan offering. Created and mutated outside this service
// (seeded via -seed), treated as read-only reference data at runtime.
type Product struct {
	ID                string         `json:"id"` // UUID
	Name              string         `json:"name"`
	Bank              string         `json:"bank"`
	Type              string         `json:"type"`
	RateAPR           float64        `json:"rate_apr"`
	MinIncome         float64        `json:"min_income"`
	MinCreditScore    int            `json:"min_credit_score"`
	TenureMinMonths   int            `json:"tenure_min_months"`
	TenureMaxMonths   int            `json:"tenure_max_months"`
	ProcessingFeePct  float64        `json:"processing_fee_pct"`
	PrepaymentAllowed bool           `json:"prepayment_allowed"`
	DisbursalSpeed    string         `json:"disbursal_speed"`
	DocsLevel         string         `json:"docs_level"`
	Summary           *string        `json:"summary"` // Nullable
	FAQ               []FAQItem      `json:"faq"`
	Terms             map[string]any `json:"terms"`
}

type User struct {
	ID           string    `json:"id"` // UUID
	Email        string    `json:"email"`
	DisplayName  *string   `json:"display_name"` // Nullable
	PasswordHash string    `json:"-"`            // Do not expose this in JSON responses
	CreatedAt    time.Time `json:"created_at"`
}

// ChatMessage is one entry in the append-only chat log.
type ChatMessage struct {
	ID        string    `json:"id"`         // UUID
	UserID    *string   `json:"user_id"`    // Nullable, anonymous chats carry no user
	ProductID *string   `json:"product_id"` // Nullable
	Role      string    `json:"role"`       // "user" or "assistant"
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Conversation is the most recent exchange a user had about one product.
type Conversation struct {
	ProductID   string    `json:"product_id"`
	ProductName string    `json:"product_name"`
	ProductBank string    `json:"product_bank"`
	LastMessage string    `json:"last_message"`
	LastRole    string    `json:"last_role"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProductFilter holds the optional list filters. Nil pointers mean "not set";
// every set field adds one conjunctive predicate.
type ProductFilter struct {
	Bank           string
	AprMax         *float64
	MinIncome      *float64
	MaxIncome      *float64
	MinCreditScore *int
	MaxCreditScore *int
}
