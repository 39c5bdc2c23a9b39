package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/SagarKapoorin/ClickPe/internal/auth"
	"github.com/SagarKapoorin/ClickPe/internal/config"
	"github.com/SagarKapoorin/ClickPe/internal/core"
	"github.com/SagarKapoorin/ClickPe/internal/store"
)

type APIHandler struct {
	askService *core.AskService
	dbStore    store.Store
	validate   *validator.Validate
	jwtSecret  string
	sessionTTL time.Duration
	askLimiter *ipRateLimiter
}

func NewAPIHandler(as *core.AskService, db store.Store, cfg config.Config) *APIHandler {
	return &APIHandler{
		askService: as,
		dbStore:    db,
		validate:   validator.New(),
		jwtSecret:  cfg.JWTSecret,
		sessionTTL: cfg.SessionTTL,
		askLimiter: newIPRateLimiter(cfg.AskRatePerMin),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

type AskRequest struct {
	ProductID string             `json:"productId" validate:"required,uuid"`
	Message   string             `json:"message" validate:"required"`
	History   []core.HistoryItem `json:"history" validate:"omitempty,dive"`
}

type AskResponse struct {
	Message string `json:"message"`
}

// AskHandler serves POST /api/ai/ask. Validation failures are client errors
// with no side effects; a missing product is a 404 and nothing is logged; the
// reply itself is never an error once the product resolves (the ask service
// falls back to a local answer when the completion provider misbehaves).
func (h *APIHandler) AskHandler(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request payload.")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request payload.")
		return
	}

	var userID *string
	if id, ok := userIDFromContext(r.Context()); ok {
		userID = &id
	}

	answer, err := h.askService.Ask(r.Context(), userID, req.ProductID, req.Message, req.History)
	if err != nil {
		if errors.Is(err, core.ErrProductNotFound) {
			writeJSONError(w, http.StatusNotFound, "Product not found.")
			return
		}
		log.Printf("Error answering chat for product %s: %v", req.ProductID, err)
		writeJSONError(w, http.StatusInternalServerError, "Unexpected error while processing the request.")
		return
	}

	writeJSON(w, http.StatusOK, AskResponse{Message: answer})
}

type CredentialsRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

func (h *APIHandler) SignupHandler(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request payload.")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if err := h.validate.Struct(req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request payload.")
		return
	}

	existing, err := h.dbStore.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		log.Printf("Error checking user %s: %v", req.Email, err)
		writeJSONError(w, http.StatusInternalServerError, "Failed to create account.")
		return
	}
	if existing != nil {
		writeJSONError(w, http.StatusConflict, "Email is already registered.")
		return
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		log.Printf("Error hashing password for %s: %v", req.Email, err)
		writeJSONError(w, http.StatusInternalServerError, "Failed to create account.")
		return
	}

	// Display name defaults to the email, mirroring the profile upsert the
	// web client used to do on signup.
	displayName := req.Email
	user, err := h.dbStore.CreateUser(r.Context(), req.Email, hashedPassword, &displayName)
	if err != nil {
		log.Printf("Error creating user %s: %v", req.Email, err)
		writeJSONError(w, http.StatusInternalServerError, "Failed to create account.")
		return
	}

	h.setSessionCookies(w, user.ID)
	writeJSON(w, http.StatusCreated, user)
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request payload.")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if err := h.validate.Struct(req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request payload.")
		return
	}

	user, err := h.dbStore.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		log.Printf("Error getting user %s: %v", req.Email, err)
		writeJSONError(w, http.StatusUnauthorized, "Invalid credentials.")
		return
	}
	if user == nil || !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		writeJSONError(w, http.StatusUnauthorized, "Invalid credentials.")
		return
	}

	h.setSessionCookies(w, user.ID)
	writeJSON(w, http.StatusOK, user)
}

func (h *APIHandler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	clearCookie := func(name string, httpOnly bool) {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: httpOnly,
			SameSite: http.SameSiteLaxMode,
		})
	}
	clearCookie(sessionCookieName, true)
	clearCookie(loginFlagCookieName, false)
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) setSessionCookies(w http.ResponseWriter, userID string) {
	token, err := auth.GenerateSessionToken(h.jwtSecret, userID, h.sessionTTL)
	if err != nil {
		log.Printf("Error generating session token for user %s: %v", userID, err)
		return
	}
	maxAge := int(h.sessionTTL.Seconds())
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	// Fallback flag readable by the browser, same lifetime as the session.
	http.SetCookie(w, &http.Cookie{
		Name:     loginFlagCookieName,
		Value:    "1",
		Path:     "/",
		MaxAge:   maxAge,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *APIHandler) ListProductsHandler(w http.ResponseWriter, r *http.Request) {
	filter := parseProductFilter(r.URL.Query())
	products, err := h.dbStore.ListProducts(r.Context(), filter)
	if err != nil {
		log.Printf("Error listing products: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "Failed to list products.")
		return
	}
	if products == nil {
		products = []store.Product{}
	}
	writeJSON(w, http.StatusOK, products)
}

func (h *APIHandler) ConversationsHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())
	conversations, err := h.dbStore.ConversationsByUser(r.Context(), userID)
	if err != nil {
		log.Printf("Error listing conversations for user %s: %v", userID, err)
		writeJSONError(w, http.StatusInternalServerError, "Unable to load conversations right now.")
		return
	}
	if conversations == nil {
		conversations = []store.Conversation{}
	}
	writeJSON(w, http.StatusOK, conversations)
}

// parseProductFilter maps query-string parameters onto filter predicates.
// Absent or unparsable numeric values are ignored, never rejected.
func parseProductFilter(values url.Values) store.ProductFilter {
	filter := store.ProductFilter{Bank: values.Get("bank")}

	parseFloat := func(key string) *float64 {
		raw := strings.TrimSpace(values.Get(key))
		if raw == "" {
			return nil
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil
		}
		return &v
	}
	parseInt := func(key string) *int {
		raw := strings.TrimSpace(values.Get(key))
		if raw == "" {
			return nil
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return nil
		}
		return &v
	}

	filter.AprMax = parseFloat("aprMax")
	filter.MinIncome = parseFloat("minIncome")
	filter.MaxIncome = parseFloat("maxIncome")
	filter.MinCreditScore = parseInt("minCreditScore")
	filter.MaxCreditScore = parseInt("maxCreditScore")
	return filter
}
