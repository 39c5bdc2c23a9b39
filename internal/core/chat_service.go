package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/SagarKapoorin/ClickPe/internal/store"
)

var ErrProductNotFound = errors.New("product not found")

// AskService answers a chat question scoped to one product: load the record,
// build the prompt, call the completion provider, and log the exchange.
type AskService struct {
	dbStore   store.Store
	completer Completer // nil means no provider configured, fallback-only
}

func NewAskService(db store.Store, completer Completer) *AskService {
	return &AskService{
		dbStore:   db,
		completer: completer,
	}
}

// Ask returns the assistant's reply. The reply is never empty: if the
// completion call fails or comes back blank, the local fallback answer built
// from the product's scalar fields is used instead. userID may be nil for
// anonymous requests; it only affects how the exchange is logged.
func (s *AskService) Ask(ctx context.Context, userID *string, productID, message string, history []HistoryItem) (string, error) {
	product, err := s.dbStore.GetProduct(ctx, productID)
	if err != nil {
		return "", fmt.Errorf("failed to load product %s: %w", productID, err)
	}
	if product == nil {
		return "", ErrProductNotFound
	}

	systemPrompt := BuildSystemPrompt(product)
	messages := BuildMessages(systemPrompt, history, message)

	answer := BuildFallbackAnswer(product)
	if s.completer != nil {
		content, err := s.completer.Complete(ctx, messages)
		if err != nil {
			log.Printf("Completion call failed for product %s, using local fallback: %v", productID, err)
		} else if strings.TrimSpace(content) != "" {
			answer = content
		}
	}

	s.logExchange(ctx, userID, product.ID, message, answer)

	return answer, nil
}

// logExchange appends the user message and the reply to the chat log.
// Best-effort: a failed write must never affect the user-visible response.
func (s *AskService) logExchange(ctx context.Context, userID *string, productID, question, answer string) {
	userMsg := store.ChatMessage{
		UserID:    userID,
		ProductID: &productID,
		Role:      RoleUser,
		Content:   question,
	}
	if err := s.dbStore.CreateChatMessage(ctx, &userMsg); err != nil {
		log.Printf("Failed to log user message for product %s: %v", productID, err)
		return
	}

	assistantMsg := store.ChatMessage{
		UserID:    userID,
		ProductID: &productID,
		Role:      RoleAssistant,
		Content:   answer,
	}
	if err := s.dbStore.CreateChatMessage(ctx, &assistantMsg); err != nil {
		log.Printf("Failed to log assistant message for product %s: %v", productID, err)
	}
}
