package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SagarKapoorin/ClickPe/internal/config"
	"github.com/SagarKapoorin/ClickPe/internal/core"
	"github.com/SagarKapoorin/ClickPe/internal/store"
	"github.com/SagarKapoorin/ClickPe/internal/web"
)

const testProductID = "0b8f1c2a-4d6e-4f7a-9b3c-1a2b3c4d5e6f"

type scriptedCompleter struct {
	reply string
	err   error
	calls int
}

func (c *scriptedCompleter) Complete(ctx context.Context, messages []core.PromptMessage) (string, error) {
	c.calls++
	return c.reply, c.err
}

func testConfig() config.Config {
	return config.Config{
		JWTSecret:      "test-secret",
		SessionTTL:     time.Hour,
		AskRatePerMin:  1000,
		MaxRequestBody: 1 << 20,
	}
}

// newTestServer wires the real router against an in-memory store.
func newTestServer(t *testing.T, completer core.Completer) (http.Handler, store.Store) {
	t.Helper()

	dbStore, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { dbStore.Close() })

	summary := "Quick personal loan."
	product := &store.Product{
		ID: testProductID, Name: "SwiftCash", Bank: "Axion Bank",
		Type: "personal", RateAPR: 11.5, MinIncome: 25000, MinCreditScore: 700,
		TenureMinMonths: 12, TenureMaxMonths: 60, ProcessingFeePct: 1.5,
		PrepaymentAllowed: true, DisbursalSpeed: "fast", DocsLevel: "low",
		Summary: &summary,
	}
	require.NoError(t, dbStore.UpsertProduct(context.Background(), product))

	renderer, err := web.NewRenderer()
	require.NoError(t, err)

	cfg := testConfig()
	askService := core.NewAskService(dbStore, completer)
	apiHandler := NewAPIHandler(askService, dbStore, cfg)
	pageHandler := NewPageHandler(dbStore, renderer)
	return NewRouter(apiHandler, pageHandler, cfg.MaxRequestBody), dbStore
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestAskHappyPath(t *testing.T) {
	completer := &scriptedCompleter{reply: "It fits your profile."}
	handler, _ := newTestServer(t, completer)

	body := fmt.Sprintf(`{"productId":%q,"message":"Is this for me?"}`, testProductID)
	rec := doJSON(t, handler, http.MethodPost, "/api/ai/ask", body, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp AskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "It fits your profile.", resp.Message)
	assert.Equal(t, 1, completer.calls)
}

func TestAskEmptyMessage(t *testing.T) {
	completer := &scriptedCompleter{reply: "unused"}
	handler, _ := newTestServer(t, completer)

	body := fmt.Sprintf(`{"productId":%q,"message":""}`, testProductID)
	rec := doJSON(t, handler, http.MethodPost, "/api/ai/ask", body, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid request payload.")
	assert.Zero(t, completer.calls)
}

func TestAskMalformedBody(t *testing.T) {
	handler, _ := newTestServer(t, &scriptedCompleter{})

	rec := doJSON(t, handler, http.MethodPost, "/api/ai/ask", `{"productId":`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAskNonUUIDProductID(t *testing.T) {
	completer := &scriptedCompleter{reply: "unused"}
	handler, _ := newTestServer(t, completer)

	rec := doJSON(t, handler, http.MethodPost, "/api/ai/ask", `{"productId":"not-a-uuid","message":"hi"}`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, completer.calls)
}

func TestAskUnknownProduct(t *testing.T) {
	completer := &scriptedCompleter{reply: "unused"}
	handler, _ := newTestServer(t, completer)

	body := `{"productId":"ffffffff-ffff-4fff-8fff-ffffffffffff","message":"hi"}`
	rec := doJSON(t, handler, http.MethodPost, "/api/ai/ask", body, nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Product not found.")
	assert.Zero(t, completer.calls)
}

func TestAskFallsBackWhenCompleterFails(t *testing.T) {
	handler, _ := newTestServer(t, &scriptedCompleter{err: errors.New("upstream down")})

	body := fmt.Sprintf(`{"productId":%q,"message":"hi"}`, testProductID)
	rec := doJSON(t, handler, http.MethodPost, "/api/ai/ask", body, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp AskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Message, "SwiftCash")
	assert.Contains(t, resp.Message, "local fallback")
}

func TestAskAttributesLoggedExchange(t *testing.T) {
	completer := &scriptedCompleter{reply: "Answer."}
	handler, dbStore := newTestServer(t, completer)

	cookies := signup(t, handler, "chat@example.com")
	body := fmt.Sprintf(`{"productId":%q,"message":"hi"}`, testProductID)
	rec := doJSON(t, handler, http.MethodPost, "/api/ai/ask", body, cookies)
	require.Equal(t, http.StatusOK, rec.Code)

	user, err := dbStore.GetUserByEmail(context.Background(), "chat@example.com")
	require.NoError(t, err)
	require.NotNil(t, user)

	conversations, err := dbStore.ConversationsByUser(context.Background(), user.ID)
	require.NoError(t, err)
	require.Len(t, conversations, 1)
	assert.Equal(t, "Answer.", conversations[0].LastMessage)
}

// signup creates an account and returns the session cookies the server set.
func signup(t *testing.T, handler http.Handler, email string) []*http.Cookie {
	t.Helper()
	body := fmt.Sprintf(`{"email":%q,"password":"secret123"}`, email)
	rec := doJSON(t, handler, http.MethodPost, "/api/auth/signup", body, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	return cookies
}

func TestSignupLoginFlow(t *testing.T) {
	handler, _ := newTestServer(t, nil)

	cookies := signup(t, handler, "new@example.com")
	var hasSession, hasFlag bool
	for _, c := range cookies {
		switch c.Name {
		case sessionCookieName:
			hasSession = c.Value != ""
			assert.True(t, c.HttpOnly)
		case loginFlagCookieName:
			hasFlag = c.Value == "1"
		}
	}
	assert.True(t, hasSession)
	assert.True(t, hasFlag)

	// Duplicate signup conflicts.
	rec := doJSON(t, handler, http.MethodPost, "/api/auth/signup", `{"email":"new@example.com","password":"secret123"}`, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "Email is already registered.")

	// Login with the right password succeeds, email case-insensitively.
	rec = doJSON(t, handler, http.MethodPost, "/api/auth/login", `{"email":"NEW@example.com","password":"secret123"}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret123")
	assert.NotContains(t, rec.Body.String(), "passwordHash")

	// Wrong password gets the same message as an unknown account.
	rec = doJSON(t, handler, http.MethodPost, "/api/auth/login", `{"email":"new@example.com","password":"wrongpass"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = doJSON(t, handler, http.MethodPost, "/api/auth/login", `{"email":"nobody@example.com","password":"secret123"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSignupRejectsWeakInput(t *testing.T) {
	handler, _ := newTestServer(t, nil)

	rec := doJSON(t, handler, http.MethodPost, "/api/auth/signup", `{"email":"not-an-email","password":"secret123"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/api/auth/signup", `{"email":"ok@example.com","password":"short"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogoutClearsCookies(t *testing.T) {
	handler, _ := newTestServer(t, nil)
	cookies := signup(t, handler, "out@example.com")

	rec := doJSON(t, handler, http.MethodPost, "/api/auth/logout", "", cookies)
	require.Equal(t, http.StatusNoContent, rec.Code)
	for _, c := range rec.Result().Cookies() {
		assert.Equal(t, "", c.Value)
		assert.Negative(t, c.MaxAge)
	}
}

func TestConversationsRequireSession(t *testing.T) {
	handler, _ := newTestServer(t, nil)

	rec := doJSON(t, handler, http.MethodGet, "/api/conversations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	cookies := signup(t, handler, "convo@example.com")
	rec = doJSON(t, handler, http.MethodGet, "/api/conversations", "", cookies)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String(), "no chats yet")
}

func TestListProductsFilters(t *testing.T) {
	handler, dbStore := newTestServer(t, nil)
	require.NoError(t, dbStore.UpsertProduct(context.Background(), &store.Product{
		ID: "1c9e2d3b-5e7f-4a8b-8c4d-2b3c4d5e6f70", Name: "EduGrow", Bank: "Meridian Finance",
		Type: "education", RateAPR: 8.9, MinCreditScore: 650,
		TenureMinMonths: 24, TenureMaxMonths: 120,
		DisbursalSpeed: "standard", DocsLevel: "high",
	}))

	rec := doJSON(t, handler, http.MethodGet, "/api/products", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var products []store.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &products))
	require.Len(t, products, 2)
	assert.Equal(t, "EduGrow", products[0].Name, "sorted by APR")

	rec = doJSON(t, handler, http.MethodGet, "/api/products?bank=axion", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &products))
	require.Len(t, products, 1)
	assert.Equal(t, "SwiftCash", products[0].Name)

	// Unparsable numeric filters are ignored, not rejected.
	rec = doJSON(t, handler, http.MethodGet, "/api/products?aprMax=banana", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &products))
	assert.Len(t, products, 2)
}

func TestParseProductFilter(t *testing.T) {
	filter := parseProductFilter(url.Values{
		"bank":           {"Axion"},
		"aprMax":         {"12.5"},
		"minCreditScore": {"700"},
		"maxIncome":      {"not-a-number"},
	})

	assert.Equal(t, "Axion", filter.Bank)
	require.NotNil(t, filter.AprMax)
	assert.Equal(t, 12.5, *filter.AprMax)
	require.NotNil(t, filter.MinCreditScore)
	assert.Equal(t, 700, *filter.MinCreditScore)
	assert.Nil(t, filter.MaxIncome)
	assert.Nil(t, filter.MinIncome)
	assert.Nil(t, filter.MaxCreditScore)
}

func TestHealthEndpoint(t *testing.T) {
	handler, _ := newTestServer(t, nil)
	rec := doJSON(t, handler, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
