package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/marketplace-system/internal/cart"
	"github.com/mmeshcher/marketplace-system/internal/gateway"
	"github.com/mmeshcher/marketplace-system/internal/middleware"
	"github.com/mmeshcher/marketplace-system/internal/model"
	"github.com/mmeshcher/marketplace-system/internal/repository"
	"github.com/mmeshcher/marketplace-system/internal/service"
)

type stubStore struct {
	items     []cart.Line
	addErr    error
	updateErr error
	removeErr error

	added []int64
}

func (s *stubStore) Add(ctx context.Context, productID int64, quantity int, price decimal.Decimal) error {
	s.added = append(s.added, productID)
	return s.addErr
}

func (s *stubStore) UpdateQuantity(ctx context.Context, productID int64, delta int) error {
	return s.updateErr
}

func (s *stubStore) Remove(ctx context.Context, productID int64) error {
	return s.removeErr
}

func (s *stubStore) Items(ctx context.Context) ([]cart.Line, error) {
	return s.items, nil
}

func (s *stubStore) TotalPrice(ctx context.Context) (decimal.Decimal, error) {
	return cart.TotalOf(s.items), nil
}

func (s *stubStore) ItemCount(ctx context.Context) (int, error) {
	return cart.CountOf(s.items), nil
}

type stubService struct {
	registerUserID int64
	registerErr    error

	authUserID int64
	authErr    error

	mergedSession string
	mergedUserID  int64

	store        *stubStore
	addToCartErr error

	order        *model.Order
	orderErr     error
	payOrderID   int64
	payErr       error
	methodErr    error
	deliveries   []model.Delivery
	historyResp  []repository.OrderHistory
	historyErr   error

	product    service.ProductView
	productErr error
	minPrice   decimal.Decimal
	shop       service.ShopView
	shopErr    error
	offers     []service.OfferView
	reviews    []service.ReviewView
	reviewErr  error
}

func (s *stubService) RegisterUser(ctx context.Context, email, password string) (int64, error) {
	return s.registerUserID, s.registerErr
}

func (s *stubService) AuthenticateUser(ctx context.Context, email, password string) (int64, error) {
	return s.authUserID, s.authErr
}

func (s *stubService) MergeSessionCart(ctx context.Context, sessionID string, userID int64) error {
	s.mergedSession = sessionID
	s.mergedUserID = userID
	return nil
}

func (s *stubService) CartFor(userID int64, sessionID string) cart.Store {
	return s.store
}

func (s *stubService) AddToCart(ctx context.Context, store cart.Store, offerID int64, quantity int) error {
	return s.addToCartErr
}

func (s *stubService) CreateOrder(ctx context.Context, userID int64) (*model.Order, error) {
	return s.order, s.orderErr
}

func (s *stubService) ListDeliveries(ctx context.Context) ([]model.Delivery, error) {
	return s.deliveries, nil
}

func (s *stubService) SetOrderDelivery(ctx context.Context, userID, deliveryID int64, addr model.Address) (*model.Order, error) {
	return s.order, s.orderErr
}

func (s *stubService) SetOrderPaymentMethod(ctx context.Context, userID int64, method model.PaymentMethod) error {
	return s.methodErr
}

func (s *stubService) PayOrder(ctx context.Context, userID int64, cardNumber string) (int64, error) {
	return s.payOrderID, s.payErr
}

func (s *stubService) GetOrdersByUser(ctx context.Context, userID int64) ([]repository.OrderHistory, error) {
	return s.historyResp, s.historyErr
}

func (s *stubService) GetProduct(ctx context.Context, slug string) (service.ProductView, error) {
	return s.product, s.productErr
}

func (s *stubService) GetMinPrice(ctx context.Context, slug string) (decimal.Decimal, error) {
	return s.minPrice, s.productErr
}

func (s *stubService) GetShop(ctx context.Context, slug string) (service.ShopView, error) {
	return s.shop, s.shopErr
}

func (s *stubService) GetOffers(ctx context.Context, slug string) ([]service.OfferView, error) {
	return s.offers, nil
}

func (s *stubService) GetReviews(ctx context.Context, slug string) ([]service.ReviewView, error) {
	return s.reviews, nil
}

func (s *stubService) CountReviews(ctx context.Context, slug string) (int, error) {
	return len(s.reviews), nil
}

func (s *stubService) AddReview(ctx context.Context, userID int64, slug, text string) (*model.Review, error) {
	return &model.Review{ID: 1}, s.reviewErr
}

func newTestHandler(t *testing.T, svc Service) *Handler {
	t.Helper()

	logger := zap.NewNop()
	auth := middleware.NewAuthMiddleware("test-secret")

	return NewHandler(svc, logger, auth, gateway.NewMockAPI(0))
}

func authCookie(t *testing.T, h *Handler, userID int64) *http.Cookie {
	t.Helper()

	rec := httptest.NewRecorder()
	h.authMiddleware.SetAuthCookie(rec, userID)
	cookies := rec.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatalf("no auth cookie set")
	}
	return cookies[0]
}

func TestRegister_Success(t *testing.T) {
	svc := &stubService{registerUserID: 42}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(credentialsRequest{Email: "user@example.com", Password: "pass"})

	req := httptest.NewRequest(http.MethodPost, "/api/user/register", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Register(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if len(res.Cookies()) == 0 {
		t.Fatalf("auth cookie must be set")
	}
}

func TestRegister_Conflict(t *testing.T) {
	svc := &stubService{registerErr: repository.ErrUserExists}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(credentialsRequest{Email: "user@example.com", Password: "pass"})

	req := httptest.NewRequest(http.MethodPost, "/api/user/register", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Register(rec, req)

	if rec.Result().StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusConflict)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	svc := &stubService{authErr: service.ErrInvalidCredentials}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(credentialsRequest{Email: "user@example.com", Password: "wrong"})

	req := httptest.NewRequest(http.MethodPost, "/api/user/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Login(rec, req)

	if rec.Result().StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestLogin_MergesSessionCart(t *testing.T) {
	svc := &stubService{authUserID: 42}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(credentialsRequest{Email: "user@example.com", Password: "pass"})

	req := httptest.NewRequest(http.MethodPost, "/api/user/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	req.AddCookie(&http.Cookie{Name: "session_id", Value: "sess-1"})
	middleware.SessionMiddleware(http.HandlerFunc(h.Login)).ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusOK)
	}
	if svc.mergedSession != "sess-1" || svc.mergedUserID != 42 {
		t.Fatalf("merge not called: session %q user %d", svc.mergedSession, svc.mergedUserID)
	}
}

func TestGetProduct_NotFound(t *testing.T) {
	svc := &stubService{productErr: repository.ErrProductNotFound}
	h := newTestHandler(t, svc)

	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/products/missing/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusNotFound)
	}
}

func TestGetProduct_JSONResponse(t *testing.T) {
	svc := &stubService{
		product: service.ProductView{ID: 1, Model: "phone", Slug: "phone", Tags: []string{"new"}},
		offers:  []service.OfferView{{ID: 5, ShopID: 2}},
		reviews: []service.ReviewView{{ID: 1, Text: "ok"}},
	}
	h := newTestHandler(t, svc)

	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/products/phone/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if ct := res.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type = %q, want application/json", ct)
	}

	var resp productResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Slug != "phone" || len(resp.Offers) != 1 || resp.ReviewsCount != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestAddToCart_NotForSale(t *testing.T) {
	svc := &stubService{
		store:        &stubStore{},
		addToCartErr: service.ErrNotForSale,
	}
	h := newTestHandler(t, svc)

	router := h.SetupRouter()

	body, _ := json.Marshal(addToCartRequest{ProductID: 5, Quantity: 1})
	req := httptest.NewRequest(http.MethodPost, "/api/cart/", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusConflict)
	}
}

func TestAddToCart_BadRequest(t *testing.T) {
	svc := &stubService{store: &stubStore{}}
	h := newTestHandler(t, svc)

	router := h.SetupRouter()

	body, _ := json.Marshal(addToCartRequest{ProductID: 5, Quantity: 0})
	req := httptest.NewRequest(http.MethodPost, "/api/cart/", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusBadRequest)
	}
}

func TestGetCart_JSONResponse(t *testing.T) {
	svc := &stubService{
		store: &stubStore{
			items: []cart.Line{
				{ProductID: 5, Quantity: 2, Price: decimal.NewFromInt(50)},
			},
		},
	}
	h := newTestHandler(t, svc)

	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/cart/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var resp cartResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Quantity != 2 || !resp.TotalPrice.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("unexpected totals: %+v", resp)
	}
}

func TestCreateOrder_Created(t *testing.T) {
	svc := &stubService{
		order: &model.Order{ID: 17, Status: model.OrderStatusActive},
	}
	h := newTestHandler(t, svc)

	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/user/order", nil)
	req.AddCookie(authCookie(t, h, 1))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusCreated)
	}
}

func TestCreateOrder_ConflictOnSecondPass(t *testing.T) {
	svc := &stubService{orderErr: repository.ErrOrderExists}
	h := newTestHandler(t, svc)

	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/user/order", nil)
	req.AddCookie(authCookie(t, h, 1))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusConflict)
	}
}

func TestCreateOrder_Unauthorized(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc)

	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/user/order", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestPayOrder_Accepted(t *testing.T) {
	svc := &stubService{payOrderID: 17}
	h := newTestHandler(t, svc)

	router := h.SetupRouter()

	body, _ := json.Marshal(payRequest{CardNumber: "12345678"})
	req := httptest.NewRequest(http.MethodPost, "/api/user/order/pay", bytes.NewReader(body))
	req.AddCookie(authCookie(t, h, 1))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusAccepted)
	}
}

func TestPayOrder_InvalidCard(t *testing.T) {
	svc := &stubService{payErr: gateway.ErrInvalidCardNumber}
	h := newTestHandler(t, svc)

	router := h.SetupRouter()

	body, _ := json.Marshal(payRequest{CardNumber: "12-34"})
	req := httptest.NewRequest(http.MethodPost, "/api/user/order/pay", bytes.NewReader(body))
	req.AddCookie(authCookie(t, h, 1))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusUnprocessableEntity)
	}
}

func TestSetOrderPaymentMethod_BadMethod(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc)

	router := h.SetupRouter()

	body, _ := json.Marshal(paymentMethodRequest{Method: "cash"})
	req := httptest.NewRequest(http.MethodPost, "/api/user/order/payment", bytes.NewReader(body))
	req.AddCookie(authCookie(t, h, 1))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusBadRequest)
	}
}

func TestGetOrders_NoContent(t *testing.T) {
	svc := &stubService{historyResp: []repository.OrderHistory{}}
	h := newTestHandler(t, svc)

	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/user/orders", nil)
	req.AddCookie(authCookie(t, h, 1))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusNoContent)
	}
}

func TestMockGatewayRoute(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc)

	router := h.SetupRouter()

	body, _ := json.Marshal(gateway.PaymentRequest{
		OrderNumber: 17,
		BankCard:    "12345678",
		Price:       decimal.NewFromInt(100),
	})
	req := httptest.NewRequest(http.MethodPost, "/api/pay", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var resp map[string]any
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != gateway.StatusPaid {
		t.Fatalf("status = %q, want %q", resp["status"], gateway.StatusPaid)
	}
}
