package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ariefcatur/go-retail-loyalty/internal/history"
	"github.com/ariefcatur/go-retail-loyalty/internal/retail"
	"github.com/ariefcatur/go-retail-loyalty/internal/shop"
	"github.com/ariefcatur/go-retail-loyalty/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// HistoryReader is satisfied by *history.Service.
type HistoryReader interface {
	Feed(ctx context.Context, accountID string, limit int) ([]history.Entry, error)
}

type ShopHandler struct {
	Shop    *shop.Service
	History HistoryReader // nil when no redis is configured
	Log     *zap.Logger
}

type openSessionReq struct {
	AccountID string `json:"account_id"`
}

type addItemReq struct {
	ProductID string `json:"product_id"`
}

type setQuantityReq struct {
	Quantity *int `json:"quantity"`
}

type redeemReq struct {
	RewardID string `json:"reward_id"`
}

type referralReq struct {
	ReferrerID string `json:"referrer_id"`
	RefereeID  string `json:"referee_id"`
	Amount     int64  `json:"amount"`
}

type lineView struct {
	retail.CartLine
	Subtotal retail.Money `json:"subtotal"`
}

type cartView struct {
	Lines     []lineView   `json:"lines"`
	ItemCount int          `json:"item_count"`
	Total     retail.Money `json:"total"`
}

type sessionView struct {
	SessionID string   `json:"session_id"`
	AccountID string   `json:"account_id"`
	Cart      cartView `json:"cart"`
}

type checkoutResp struct {
	Transaction retail.Transaction `json:"transaction"`
	Cart        cartView           `json:"cart"`
	Account     shop.AccountView   `json:"account"`
}

type redeemResp struct {
	Redemption retail.Redemption `json:"redemption"`
	Account    shop.AccountView  `json:"account"`
}

type referralResp struct {
	Referrer shop.AccountView `json:"referrer"`
	Referee  shop.AccountView `json:"referee"`
}

func (h *ShopHandler) Register(r *chi.Mux) {
	r.Get("/products", h.listProducts)
	r.Get("/categories", h.listCategories)
	r.Get("/rewards", h.listRewards)

	r.Post("/sessions", h.openSession)
	r.Route("/sessions/{sid}", func(r chi.Router) {
		r.Get("/cart", h.getCart)
		r.Post("/items", h.addItem)
		r.Put("/items/{pid}", h.setQuantity)
		r.Delete("/items/{pid}", h.removeItem)
		r.Post("/checkout", h.checkout)
	})

	r.Get("/transactions/{id}", h.getTransaction)
	r.Get("/accounts/{id}", h.getAccount)
	r.Post("/accounts/{id}/redemptions", h.redeem)
	r.Get("/accounts/{id}/points-history", h.pointsHistory)
	r.Post("/referrals", h.referral)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// fail maps domain errors onto status codes; anything unrecognised is a 500.
func (h *ShopHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, retail.ErrInvalidQuantity),
		errors.Is(err, retail.ErrInvalidPoints),
		errors.Is(err, retail.ErrSelfReferral),
		errors.Is(err, shop.ErrAccountRequired):
		code = http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, retail.ErrProductNotFound),
		errors.Is(err, retail.ErrRewardNotFound):
		code = http.StatusNotFound
	case errors.Is(err, retail.ErrEmptyCart),
		errors.Is(err, store.ErrConflict):
		code = http.StatusConflict
	case errors.Is(err, retail.ErrInsufficientPoints):
		code = http.StatusUnprocessableEntity
	}
	if code == http.StatusInternalServerError {
		h.log().Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		writeError(w, code, "internal error")
		return
	}
	writeError(w, code, err.Error())
}

func (h *ShopHandler) ctx(r *http.Request) (context.Context, context.CancelFunc) {
	ctx := shop.WithTraceID(r.Context(), middleware.GetReqID(r.Context()))
	return context.WithTimeout(ctx, 5*time.Second)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

func toCartView(c retail.Cart) cartView {
	lines := c.Lines()
	out := cartView{Lines: make([]lineView, 0, len(lines)), ItemCount: c.ItemCount(), Total: retail.Total(c)}
	for _, l := range lines {
		out.Lines = append(out.Lines, lineView{CartLine: l, Subtotal: l.Subtotal()})
	}
	return out
}

func toSessionView(s store.Session) sessionView {
	return sessionView{SessionID: s.ID, AccountID: s.AccountID, Cart: toCartView(s.Cart)}
}

func (h *ShopHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	category := q.Get("category")
	if category == "" {
		category = retail.CategoryAll
	}
	writeJSON(w, http.StatusOK, h.Shop.Products(q.Get("q"), category))
}

func (h *ShopHandler) listCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Shop.Categories())
}

func (h *ShopHandler) listRewards(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Shop.RewardList())
}

func (h *ShopHandler) openSession(w http.ResponseWriter, r *http.Request) {
	var req openSessionReq
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := h.ctx(r)
	defer cancel()

	sess, err := h.Shop.OpenSession(ctx, req.AccountID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionView(sess))
}

func (h *ShopHandler) getCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ctx(r)
	defer cancel()

	sess, err := h.Shop.Session(ctx, chi.URLParam(r, "sid"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionView(sess))
}

func (h *ShopHandler) addItem(w http.ResponseWriter, r *http.Request) {
	var req addItemReq
	if !decode(w, r, &req) {
		return
	}
	if req.ProductID == "" {
		writeError(w, http.StatusBadRequest, "missing product_id")
		return
	}
	ctx, cancel := h.ctx(r)
	defer cancel()

	sess, err := h.Shop.AddItem(ctx, chi.URLParam(r, "sid"), req.ProductID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionView(sess))
}

func (h *ShopHandler) setQuantity(w http.ResponseWriter, r *http.Request) {
	var req setQuantityReq
	if !decode(w, r, &req) {
		return
	}
	if req.Quantity == nil {
		writeError(w, http.StatusBadRequest, "missing quantity")
		return
	}
	ctx, cancel := h.ctx(r)
	defer cancel()

	sess, err := h.Shop.SetQuantity(ctx, chi.URLParam(r, "sid"), chi.URLParam(r, "pid"), *req.Quantity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionView(sess))
}

func (h *ShopHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ctx(r)
	defer cancel()

	sess, err := h.Shop.RemoveItem(ctx, chi.URLParam(r, "sid"), chi.URLParam(r, "pid"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionView(sess))
}

func (h *ShopHandler) checkout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ctx(r)
	defer cancel()

	res, err := h.Shop.Checkout(ctx, chi.URLParam(r, "sid"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, checkoutResp{
		Transaction: res.Transaction,
		Cart:        toCartView(res.Session.Cart),
		Account:     res.Account,
	})
}

func (h *ShopHandler) getTransaction(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ctx(r)
	defer cancel()

	txn, err := h.Shop.Transaction(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, txn)
}

func (h *ShopHandler) getAccount(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ctx(r)
	defer cancel()

	view, err := h.Shop.Account(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *ShopHandler) redeem(w http.ResponseWriter, r *http.Request) {
	var req redeemReq
	if !decode(w, r, &req) {
		return
	}
	if req.RewardID == "" {
		writeError(w, http.StatusBadRequest, "missing reward_id")
		return
	}
	ctx, cancel := h.ctx(r)
	defer cancel()

	red, view, err := h.Shop.Redeem(ctx, chi.URLParam(r, "id"), req.RewardID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, redeemResp{Redemption: red, Account: view})
}

func (h *ShopHandler) referral(w http.ResponseWriter, r *http.Request) {
	var req referralReq
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := h.ctx(r)
	defer cancel()

	v1, v2, err := h.Shop.Referral(ctx, req.ReferrerID, req.RefereeID, req.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, referralResp{Referrer: v1, Referee: v2})
}

func (h *ShopHandler) pointsHistory(w http.ResponseWriter, r *http.Request) {
	if h.History == nil {
		writeError(w, http.StatusServiceUnavailable, "points history requires redis")
		return
	}
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	ctx, cancel := h.ctx(r)
	defer cancel()

	feed, err := h.History.Feed(ctx, chi.URLParam(r, "id"), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, feed)
}

func (h *ShopHandler) log() *zap.Logger {
	if h.Log == nil {
		return zap.NewNop()
	}
	return h.Log
}
