package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/SagarKapoorin/ClickPe/internal/store"
	"github.com/SagarKapoorin/ClickPe/internal/web"
)

// PageHandler serves the server-rendered HTML pages.
type PageHandler struct {
	dbStore  store.Store
	renderer *web.Renderer
}

func NewPageHandler(db store.Store, renderer *web.Renderer) *PageHandler {
	return &PageHandler{dbStore: db, renderer: renderer}
}

type pageBase struct {
	Title    string
	LoggedIn bool
}

func newPageBase(r *http.Request, title string) pageBase {
	return pageBase{Title: title, LoggedIn: hasSessionIndicator(r)}
}

// hasSessionIndicator mirrors the gate check for display purposes only.
func hasSessionIndicator(r *http.Request) bool {
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		return true
	}
	if cookie, err := r.Cookie(loginFlagCookieName); err == nil && cookie.Value == "1" {
		return true
	}
	return false
}

type productView struct {
	store.Product
	Badges    []string
	RankLabel string
	Highlight bool
}

func productBadges(p *store.Product) []string {
	var badges []string
	if p.RateAPR < 10 {
		badges = append(badges, "Low APR")
	}
	if p.DisbursalSpeed == "fast" {
		badges = append(badges, "Fast Disbursal")
	}
	if p.DocsLevel == "low" {
		badges = append(badges, "Low Docs")
	}
	if p.PrepaymentAllowed {
		badges = append(badges, "No Prepayment Fee")
	}
	return badges
}

func toProductViews(products []store.Product, ranked bool) []productView {
	views := make([]productView, 0, len(products))
	for i := range products {
		view := productView{
			Product: products[i],
			Badges:  productBadges(&products[i]),
		}
		if ranked {
			view.RankLabel = "#" + strconv.Itoa(i+1)
			view.Highlight = i == 0
		}
		views = append(views, view)
	}
	return views
}

type dashboardPage struct {
	pageBase
	Products []productView
}

func (h *PageHandler) DashboardPage(w http.ResponseWriter, r *http.Request) {
	products, err := h.dbStore.TopProducts(r.Context(), 5)
	if err != nil {
		log.Printf("Error loading top products: %v", err)
		products = nil
	}
	h.renderer.Render(w, http.StatusOK, "dashboard", dashboardPage{
		pageBase: newPageBase(r, "Dashboard"),
		Products: toProductViews(products, true),
	})
}

type filterValues struct {
	Bank           string
	AprMax         string
	MinIncome      string
	MaxIncome      string
	MinCreditScore string
	MaxCreditScore string
}

type productsPage struct {
	pageBase
	Filters  filterValues
	Products []productView
}

func (h *PageHandler) ProductsPage(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := parseProductFilter(query)
	products, err := h.dbStore.ListProducts(r.Context(), filter)
	if err != nil {
		log.Printf("Error loading filtered products: %v", err)
		products = nil
	}
	h.renderer.Render(w, http.StatusOK, "products", productsPage{
		pageBase: newPageBase(r, "All Loan Products"),
		Filters: filterValues{
			Bank:           query.Get("bank"),
			AprMax:         query.Get("aprMax"),
			MinIncome:      query.Get("minIncome"),
			MaxIncome:      query.Get("maxIncome"),
			MinCreditScore: query.Get("minCreditScore"),
			MaxCreditScore: query.Get("maxCreditScore"),
		},
		Products: toProductViews(products, false),
	})
}

type termEntry struct {
	Key   string
	Value string
}

type productDetailPage struct {
	pageBase
	Product      store.Product
	Badges       []string
	TermsEntries []termEntry
}

func (h *PageHandler) ProductDetailPage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	product, err := h.dbStore.GetProduct(r.Context(), id)
	if err != nil {
		log.Printf("Error loading product %s: %v", id, err)
	}
	if product == nil {
		h.renderer.Render(w, http.StatusNotFound, "not_found", newPageBase(r, "Not found"))
		return
	}

	h.renderer.Render(w, http.StatusOK, "product_detail", productDetailPage{
		pageBase:     newPageBase(r, product.Name),
		Product:      *product,
		Badges:       productBadges(product),
		TermsEntries: topTerms(product.Terms, 3),
	})
}

// topTerms renders the first n terms in key order, JSON-encoding non-string
// values the same way the prompt does.
func topTerms(terms map[string]any, n int) []termEntry {
	keys := make([]string, 0, len(terms))
	for key := range terms {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	if len(keys) > n {
		keys = keys[:n]
	}

	entries := make([]termEntry, 0, len(keys))
	for _, key := range keys {
		value, ok := terms[key].(string)
		if !ok {
			encoded, err := json.Marshal(terms[key])
			if err != nil {
				continue
			}
			value = string(encoded)
		}
		entries = append(entries, termEntry{Key: key, Value: value})
	}
	return entries
}

type conversationsPage struct {
	pageBase
	Authenticated bool
	Conversations []store.Conversation
}

func (h *PageHandler) ConversationsPage(w http.ResponseWriter, r *http.Request) {
	data := conversationsPage{pageBase: newPageBase(r, "My AI Conversations")}

	// The gate lets flag-cookie-only visitors through; they have no user id
	// and therefore no saved conversations to show.
	if userID, ok := userIDFromContext(r.Context()); ok {
		data.Authenticated = true
		conversations, err := h.dbStore.ConversationsByUser(r.Context(), userID)
		if err != nil {
			log.Printf("Error loading conversations for user %s: %v", userID, err)
		}
		data.Conversations = conversations
	}

	h.renderer.Render(w, http.StatusOK, "conversations", data)
}

type authPage struct {
	pageBase
	RedirectTo string
}

func (h *PageHandler) AuthPage(w http.ResponseWriter, r *http.Request) {
	redirectTo := r.URL.Query().Get("redirectTo")
	// Only same-site paths; anything else falls back to the dashboard.
	if !strings.HasPrefix(redirectTo, "/") || strings.HasPrefix(redirectTo, "//") {
		redirectTo = "/dashboard"
	}
	h.renderer.Render(w, http.StatusOK, "auth", authPage{
		pageBase:   newPageBase(r, "Sign in"),
		RedirectTo: redirectTo,
	})
}
