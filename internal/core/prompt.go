package core

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/SagarKapoorin/ClickPe/internal/store"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// HistoryItem is one role-tagged turn of a chat, as sent by the browser.
type HistoryItem struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content" validate:"required"`
}

// PromptMessage is one entry of the message list sent to the completion API.
type PromptMessage struct {
	Role    string
	Content string
}

// BuildSystemPrompt serializes a product into the assistant's system message.
// It is a pure function of the record: scalar fields are interpolated as
// labeled lines, FAQs render as a numbered Q/A list, and the terms map renders
// as sorted key: value lines (JSON-encoded values). Empty lines are dropped.
func BuildSystemPrompt(product *store.Product) string {
	faqText := "No FAQs are provided."
	if len(product.FAQ) > 0 {
		parts := make([]string, 0, len(product.FAQ))
		for i, item := range product.FAQ {
			parts = append(parts, fmt.Sprintf("Q%d: %s\nA%d: %s", i+1, item.Question, i+1, item.Answer))
		}
		faqText = strings.Join(parts, "\n\n")
	}

	termsText := "No additional terms provided."
	if len(product.Terms) > 0 {
		keys := make([]string, 0, len(product.Terms))
		for key := range product.Terms {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		lines := make([]string, 0, len(keys))
		for _, key := range keys {
			encoded, err := json.Marshal(product.Terms[key])
			if err != nil {
				encoded = []byte(`"?"`)
			}
			lines = append(lines, key+": "+string(encoded))
		}
		termsText = strings.Join(lines, "\n")
	}

	summaryLine := ""
	if product.Summary != nil && *product.Summary != "" {
		summaryLine = "Summary: " + *product.Summary
	}

	lines := []string{
		"You are a loan suitability assistant helping the user decide whether this specific product is a good fit for them.",
		"Use only the product data provided below. Do not invent missing numbers or policies.",
		"If the user shares their income, credit score, desired tenure, or other constraints, compare those explicitly against the product requirements.",
		"If key details are missing to make a clear recommendation, ask brief follow-up questions before answering.",
		"Always format your answer exactly with the following sections in this order, using plain text only:",
		"Overview:",
		"Eligibility:",
		"Costs:",
		"Pros:",
		"Cons:",
		"Who it is good for:",
		"Recommendation:",
		"Each section should be a short paragraph or 3-5 bullet points that are easy to scan.",
		"Do not use markdown headings, numbered lists, emojis, tables, or code blocks.",
		"Do not give legal, tax, or personalized financial advice. Instead, explain tradeoffs and when the user should talk to a human advisor.",
		"If the answer is not clearly available in the data, say you do not know.",
		"",
		"Product Name: " + product.Name,
		"Bank: " + product.Bank,
		"Type: " + product.Type,
		"APR: " + formatNumber(product.RateAPR) + "%",
		fmt.Sprintf("Tenure Range (months): %d-%d", product.TenureMinMonths, product.TenureMaxMonths),
		"Minimum Income: " + formatNumber(product.MinIncome),
		"Minimum Credit Score: " + strconv.Itoa(product.MinCreditScore),
		"Processing Fee (% of amount): " + formatNumber(product.ProcessingFeePct),
		"Prepayment Allowed: " + yesNo(product.PrepaymentAllowed),
		"Disbursal Speed: " + product.DisbursalSpeed,
		"Documentation Level: " + product.DocsLevel,
		summaryLine,
		"",
		"FAQs:",
		faqText,
		"",
		"Additional Terms:",
		termsText,
	}

	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// BuildMessages assembles the flat ordered message list for a completion call:
// system prompt, prior history in original order, then the new user turn.
// No truncation or token budgeting is applied.
func BuildMessages(systemPrompt string, history []HistoryItem, message string) []PromptMessage {
	messages := make([]PromptMessage, 0, len(history)+2)
	messages = append(messages, PromptMessage{Role: RoleSystem, Content: systemPrompt})
	for _, item := range history {
		messages = append(messages, PromptMessage{Role: item.Role, Content: item.Content})
	}
	messages = append(messages, PromptMessage{Role: RoleUser, Content: message})
	return messages
}

// BuildFallbackAnswer produces the deterministic reply used when no completion
// provider is configured, the call fails, or it returns empty content. It only
// depends on the product's scalar fields and is never empty.
func BuildFallbackAnswer(product *store.Product) string {
	prepayment := "not allowed"
	if product.PrepaymentAllowed {
		prepayment = "allowed"
	}
	return strings.Join([]string{
		fmt.Sprintf("This is a %s loan from %s named %q.", product.Type, product.Bank, product.Name),
		fmt.Sprintf("The APR is approximately %s%% with a tenure range of %d to %d months.",
			formatNumber(product.RateAPR), product.TenureMinMonths, product.TenureMaxMonths),
		fmt.Sprintf("Minimum income is %s and the minimum credit score required is %d.",
			formatNumber(product.MinIncome), product.MinCreditScore),
		fmt.Sprintf("Prepayment is %s, and the disbursal speed is %s.", prepayment, product.DisbursalSpeed),
		"I am using a local fallback and cannot answer questions beyond this summary.",
	}, " ")
}

// formatNumber renders a float without trailing zeros (12.5, not 12.500000).
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}
