package billing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"eduplatform-api/internal/apperr"
	"eduplatform-api/internal/app/http/middleware"
	"eduplatform-api/internal/domain/subscriptions"
	"eduplatform-api/internal/infra/tokens"
	"eduplatform-api/internal/service/ledger"
	"eduplatform-api/internal/service/quota"
	"eduplatform-api/internal/service/subscription"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v75"
	"go.uber.org/zap"
)

type okReader struct{}

func (okReader) Read(_ context.Context, credential string) (*tokens.Identity, bool) {
	if tokens.StripBearer(credential) != "ok" {
		return nil, false
	}
	return &tokens.Identity{UserID: 5}, true
}

type fakeSubs struct {
	result    subscription.Result
	err       error
	cancelled bool
	view      subscription.View
	gotType   uint
}

func (f *fakeSubs) ListTypes(context.Context) ([]subscriptions.SubscriptionType, error) {
	price := decimal.NewFromInt(10000)
	return []subscriptions.SubscriptionType{{ID: 1, Code: "FREE"}, {ID: 2, Code: "BASIC", Price: &price}}, nil
}

func (f *fakeSubs) Subscribe(_ context.Context, _ uint, typeID uint) (subscription.Result, error) {
	f.gotType = typeID
	return f.result, f.err
}

func (f *fakeSubs) GetCurrentSubscription(context.Context, uint) (subscription.Result, error) {
	return f.result, f.err
}

func (f *fakeSubs) Cancel(context.Context, uint) (bool, error) { return f.cancelled, f.err }

func (f *fakeSubs) GetHistory(context.Context, uint) ([]subscription.View, error) {
	return []subscription.View{f.view}, f.err
}

func (f *fakeSubs) Get(_ context.Context, userID, id uint) (subscription.View, error) {
	if id != f.view.ID {
		return subscription.View{}, apperr.ErrNotFound
	}
	return f.view, nil
}

type fakeBalances struct{ err error }

func (f fakeBalances) GetBalance(context.Context, uint) (decimal.Decimal, error) {
	return decimal.RequireFromString("150.5"), f.err
}

func (f fakeBalances) GetBalanceInfo(_ context.Context, userID uint) (ledger.Snapshot, error) {
	b := decimal.RequireFromString("150.5")
	return ledger.Snapshot{UserID: userID, PreviousBalance: b, NewBalance: b}, f.err
}

type fakeUsage struct{}

func (fakeUsage) Summary(context.Context, uint) ([]quota.Usage, error) {
	limit := 20
	return []quota.Usage{{ActionKind: "AI_REQUEST", Used: 3, Limit: &limit}}, nil
}

func router(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	auth := r.Group("/")
	auth.Use(middleware.AuthMiddleware(okReader{}, zap.NewNop()))
	auth.GET("/balance", h.GetBalance)
	auth.GET("/balance/info", h.GetBalanceInfo)
	auth.GET("/usage/summary", h.GetUsageSummary)
	auth.GET("/subscriptions/types", h.ListSubscriptionTypes)
	auth.POST("/subscriptions", h.Subscribe)
	auth.GET("/subscriptions/current", h.GetCurrentSubscription)
	auth.DELETE("/subscriptions/current", h.CancelSubscription)
	auth.GET("/subscriptions/history", h.GetSubscriptionHistory)
	auth.GET("/subscriptions/:id", h.GetSubscription)
	auth.POST("/balance/checkout", h.CreateTopUpSession)
	return r
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer ok")
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestBalanceEndpoints(t *testing.T) {
	r := router(NewHandler(&fakeSubs{}, fakeBalances{}, fakeUsage{}, nil, zap.NewNop()))

	w := do(r, http.MethodGet, "/balance", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"balance":"150.50"`) {
		t.Fatalf("GET /balance = %d %s", w.Code, w.Body.String())
	}

	w = do(r, http.MethodGet, "/balance/info", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"userId":5`) {
		t.Fatalf("GET /balance/info = %d %s", w.Code, w.Body.String())
	}

	w = do(r, http.MethodGet, "/usage/summary", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"used":3`) {
		t.Fatalf("GET /usage/summary = %d %s", w.Code, w.Body.String())
	}

	r = router(NewHandler(&fakeSubs{}, fakeBalances{err: apperr.ErrNotFound}, fakeUsage{}, nil, zap.NewNop()))
	if w := do(r, http.MethodGet, "/balance", ""); w.Code != http.StatusNotFound {
		t.Fatalf("missing user status = %d", w.Code)
	}
}

func TestSubscribeEndpoint(t *testing.T) {
	price := decimal.NewFromInt(10000)
	bal := decimal.NewFromInt(5000)
	tests := []struct {
		name   string
		subs   *fakeSubs
		body   string
		status int
	}{
		{"success", &fakeSubs{result: subscription.Result{Status: subscription.StatusSuccess}}, `{"subscriptionTypeId":2}`, http.StatusOK},
		{"insufficient", &fakeSubs{result: subscription.Result{Status: subscription.StatusInsufficientBalance, RequiredAmount: &price, CurrentBalance: &bal}}, `{"subscriptionTypeId":2}`, http.StatusPaymentRequired},
		{"unknown type", &fakeSubs{err: apperr.ErrNotFound}, `{"subscriptionTypeId":99}`, http.StatusNotFound},
		{"missing id", &fakeSubs{}, `{}`, http.StatusBadRequest},
		{"storage down", &fakeSubs{err: apperr.ErrTransient}, `{"subscriptionTypeId":2}`, http.StatusServiceUnavailable},
		{"unexpected", &fakeSubs{err: errors.New("boom")}, `{"subscriptionTypeId":2}`, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := router(NewHandler(tt.subs, fakeBalances{}, fakeUsage{}, nil, zap.NewNop()))
			w := do(r, http.MethodPost, "/subscriptions", tt.body)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.status, w.Body.String())
			}
			if tt.status == http.StatusInternalServerError && strings.Contains(w.Body.String(), "boom") {
				t.Fatalf("internal error leaked: %s", w.Body.String())
			}
		})
	}
}

func TestSubscriptionReadEndpoints(t *testing.T) {
	subs := &fakeSubs{
		result:    subscription.Result{Status: subscription.StatusNoActiveSubscription},
		view:      subscription.View{ID: 4, SubscriptionCode: "BASIC"},
		cancelled: false,
	}
	r := router(NewHandler(subs, fakeBalances{}, fakeUsage{}, nil, zap.NewNop()))

	w := do(r, http.MethodGet, "/subscriptions/current", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "NO_ACTIVE_SUBSCRIPTION") {
		t.Fatalf("current = %d %s", w.Code, w.Body.String())
	}

	if w := do(r, http.MethodDelete, "/subscriptions/current", ""); w.Code != http.StatusNotFound {
		t.Fatalf("cancel without active = %d", w.Code)
	}
	subs.cancelled = true
	if w := do(r, http.MethodDelete, "/subscriptions/current", ""); w.Code != http.StatusOK {
		t.Fatalf("cancel = %d", w.Code)
	}

	w = do(r, http.MethodGet, "/subscriptions/history", "")
	var history []subscription.View
	if err := json.Unmarshal(w.Body.Bytes(), &history); err != nil || len(history) != 1 || history[0].ID != 4 {
		t.Fatalf("history = %s", w.Body.String())
	}

	w = do(r, http.MethodGet, "/subscriptions/types", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"price":"10000"`) || !strings.Contains(w.Body.String(), `"price":"0"`) {
		t.Fatalf("types = %s", w.Body.String())
	}
}

func TestGetSubscription(t *testing.T) {
	subs := &fakeSubs{view: subscription.View{ID: 8, SubscriptionCode: "BASIC"}}
	r := router(NewHandler(subs, fakeBalances{}, fakeUsage{}, nil, zap.NewNop()))

	if w := do(r, http.MethodGet, "/subscriptions/8", ""); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "BASIC") {
		t.Fatalf("own subscription = %d %s", w.Code, w.Body.String())
	}
	if w := do(r, http.MethodGet, "/subscriptions/9", ""); w.Code != http.StatusNotFound {
		t.Fatalf("foreign subscription = %d", w.Code)
	}
	if w := do(r, http.MethodGet, "/subscriptions/x", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("bad id = %d", w.Code)
	}
}

func TestCreateTopUpSession(t *testing.T) {
	var got *stripe.CheckoutSessionParams
	checkout := &Checkout{
		AppURL:   "https://app.test",
		Currency: "usd",
		NewSession: func(p *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
			got = p
			return &stripe.CheckoutSession{ID: "cs_1", URL: "https://checkout.test/cs_1"}, nil
		},
	}
	r := router(NewHandler(&fakeSubs{}, fakeBalances{}, fakeUsage{}, checkout, zap.NewNop()))

	w := do(r, http.MethodPost, "/balance/checkout", `{"amount":"100.25"}`)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "checkout.test/cs_1") {
		t.Fatalf("checkout = %d %s", w.Code, w.Body.String())
	}
	if got.Metadata[MetadataPurpose] != PurposeBalanceTopUp || got.Metadata[MetadataUserID] != "5" {
		t.Fatalf("metadata = %v", got.Metadata)
	}
	if *got.LineItems[0].PriceData.UnitAmount != 10025 {
		t.Fatalf("unit amount = %d", *got.LineItems[0].PriceData.UnitAmount)
	}

	for _, body := range []string{`{}`, `{"amount":"0"}`, `{"amount":"-5"}`, `{"amount":"1.005"}`} {
		got = nil
		if w := do(r, http.MethodPost, "/balance/checkout", body); w.Code != http.StatusBadRequest || got != nil {
			t.Fatalf("%s = %d", body, w.Code)
		}
	}

	r = router(NewHandler(&fakeSubs{}, fakeBalances{}, fakeUsage{}, nil, zap.NewNop()))
	if w := do(r, http.MethodPost, "/balance/checkout", `{"amount":"10"}`); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("unconfigured checkout = %d", w.Code)
	}
}
