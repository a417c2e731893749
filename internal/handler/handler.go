// Package handler содержит HTTP-обработчики API сервиса маркетплейса.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/marketplace-system/internal/cart"
	"github.com/mmeshcher/marketplace-system/internal/gateway"
	"github.com/mmeshcher/marketplace-system/internal/middleware"
	"github.com/mmeshcher/marketplace-system/internal/model"
	"github.com/mmeshcher/marketplace-system/internal/repository"
	"github.com/mmeshcher/marketplace-system/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, email, password string) (int64, error)
	AuthenticateUser(ctx context.Context, email, password string) (int64, error)
	MergeSessionCart(ctx context.Context, sessionID string, userID int64) error

	CartFor(userID int64, sessionID string) cart.Store
	AddToCart(ctx context.Context, store cart.Store, offerID int64, quantity int) error

	CreateOrder(ctx context.Context, userID int64) (*model.Order, error)
	ListDeliveries(ctx context.Context) ([]model.Delivery, error)
	SetOrderDelivery(ctx context.Context, userID, deliveryID int64, addr model.Address) (*model.Order, error)
	SetOrderPaymentMethod(ctx context.Context, userID int64, method model.PaymentMethod) error
	PayOrder(ctx context.Context, userID int64, cardNumber string) (int64, error)
	GetOrdersByUser(ctx context.Context, userID int64) ([]repository.OrderHistory, error)

	GetProduct(ctx context.Context, slug string) (service.ProductView, error)
	GetMinPrice(ctx context.Context, slug string) (decimal.Decimal, error)
	GetShop(ctx context.Context, slug string) (service.ShopView, error)
	GetOffers(ctx context.Context, slug string) ([]service.OfferView, error)
	GetReviews(ctx context.Context, slug string) ([]service.ReviewView, error)
	CountReviews(ctx context.Context, slug string) (int, error)
	AddReview(ctx context.Context, userID int64, slug, text string) (*model.Review, error)
}

// Handler реализует HTTP-обработчики API сервиса маркетплейса.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	mockAPI        *gateway.MockAPI
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, mockAPI *gateway.MockAPI) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		mockAPI:        mockAPI,
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Email == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.RegisterUser(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
			return
		}
		h.logger.Error("register user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

// Login выполняет аутентификацию пользователя, установку cookie и перенос
// сессионной корзины в аккаунтную.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Email == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.AuthenticateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("login user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if sessionID, ok := middleware.GetSessionIDFromContext(r.Context()); ok {
		if err := h.service.MergeSessionCart(r.Context(), sessionID, userID); err != nil {
			h.logger.Error("merge session cart error", zap.Error(err), zap.Int64("userID", userID))
		}
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

type productResponse struct {
	service.ProductView
	Offers       []service.OfferView `json:"offers"`
	ReviewsCount int                 `json:"reviews_count"`
}

// GetProduct возвращает карточку товара с предложениями по магазинам.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	view, err := h.service.GetProduct(r.Context(), slug)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get product error", zap.Error(err), zap.String("slug", slug))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	offers, err := h.service.GetOffers(r.Context(), slug)
	if err != nil {
		h.logger.Error("get offers error", zap.Error(err), zap.String("slug", slug))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	count, err := h.service.CountReviews(r.Context(), slug)
	if err != nil {
		h.logger.Error("count reviews error", zap.Error(err), zap.String("slug", slug))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, productResponse{
		ProductView:  view,
		Offers:       offers,
		ReviewsCount: count,
	})
}

// GetMinPrice возвращает минимальную цену товара с учётом скидки.
func (h *Handler) GetMinPrice(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	price, err := h.service.GetMinPrice(r.Context(), slug)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) || errors.Is(err, repository.ErrOfferNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get min price error", zap.Error(err), zap.String("slug", slug))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, map[string]decimal.Decimal{"price": price})
}

// GetShop возвращает представление магазина.
func (h *Handler) GetShop(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	view, err := h.service.GetShop(r.Context(), slug)
	if err != nil {
		if errors.Is(err, repository.ErrShopNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get shop error", zap.Error(err), zap.String("slug", slug))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, view)
}

// GetReviews возвращает отзывы о товаре.
func (h *Handler) GetReviews(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	reviews, err := h.service.GetReviews(r.Context(), slug)
	if err != nil {
		h.logger.Error("get reviews error", zap.Error(err), zap.String("slug", slug))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, reviews)
}

type reviewRequest struct {
	Text string `json:"text"`
}

// AddReview сохраняет отзыв текущего пользователя о товаре.
func (h *Handler) AddReview(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	slug := chi.URLParam(r, "slug")

	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if _, err := h.service.AddReview(r.Context(), userID, slug, req.Text); err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("add review error", zap.Error(err), zap.String("slug", slug))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
}

// cartStore возвращает корзину запроса: аккаунтную для авторизованного
// пользователя, иначе сессионную.
func (h *Handler) cartStore(r *http.Request) (cart.Store, bool) {
	userID, _ := middleware.GetUserIDFromContext(r.Context())
	sessionID, hasSession := middleware.GetSessionIDFromContext(r.Context())
	if userID == 0 && !hasSession {
		return nil, false
	}
	return h.service.CartFor(userID, sessionID), true
}

type cartResponse struct {
	Items      []cart.Line     `json:"items"`
	Quantity   int             `json:"quantity"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

// GetCart возвращает позиции и итоги корзины.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	store, ok := h.cartStore(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	items, err := store.Items(r.Context())
	if err != nil {
		h.logger.Error("get cart error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []cart.Line{}
	}

	h.writeJSON(w, cartResponse{
		Items:      items,
		Quantity:   cart.CountOf(items),
		TotalPrice: cart.TotalOf(items),
	})
}

type addToCartRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// AddToCart кладёт предложение товара в корзину.
func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	store, ok := h.cartStore(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req addToCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if req.ProductID <= 0 || req.Quantity <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	err := h.service.AddToCart(r.Context(), store, req.ProductID, req.Quantity)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrOfferNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, service.ErrNotForSale):
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
		default:
			h.logger.Error("add to cart error", zap.Error(err), zap.Int64("productID", req.ProductID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
}

type changeQuantityRequest struct {
	Delta int `json:"delta"`
}

// ChangeCartItem прибавляет знаковую дельту к количеству позиции корзины.
func (h *Handler) ChangeCartItem(w http.ResponseWriter, r *http.Request) {
	store, ok := h.cartStore(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req changeQuantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Delta == 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := store.UpdateQuantity(r.Context(), productID, req.Delta); err != nil {
		if errors.Is(err, repository.ErrCartItemNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("change cart item error", zap.Error(err), zap.Int64("productID", productID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// RemoveCartItem удаляет позицию из корзины.
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	store, ok := h.cartStore(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := store.Remove(r.Context(), productID); err != nil {
		if errors.Is(err, repository.ErrCartItemNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("remove cart item error", zap.Error(err), zap.Int64("productID", productID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// CreateOrder открывает оформление заказа для активной корзины пользователя.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	order, err := h.service.CreateOrder(r.Context(), userID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrCartNotFound), errors.Is(err, repository.ErrOrderExists):
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
		default:
			h.logger.Error("create order error", zap.Error(err), zap.Int64("userID", userID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(map[string]int64{"order": order.ID}); err != nil {
		h.logger.Error("encode order error", zap.Error(err))
	}
}

// ListDeliveries возвращает доступные варианты доставки.
func (h *Handler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	deliveries, err := h.service.ListDeliveries(r.Context())
	if err != nil {
		h.logger.Error("list deliveries error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, deliveries)
}

type deliveryRequest struct {
	DeliveryID int64         `json:"delivery_id"`
	Address    model.Address `json:"address"`
}

type orderResponse struct {
	Order      int64           `json:"order"`
	Status     string          `json:"status"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

// SetOrderDelivery выбирает доставку и адрес для незавершённого заказа.
func (h *Handler) SetOrderDelivery(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req deliveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DeliveryID <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	order, err := h.service.SetOrderDelivery(r.Context(), userID, req.DeliveryID, req.Address)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrOrderNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, repository.ErrDeliveryNotFound):
			http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		default:
			h.logger.Error("set delivery error", zap.Error(err), zap.Int64("userID", userID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(w, orderResponse{
		Order:      order.ID,
		Status:     string(order.Status),
		TotalPrice: order.TotalPrice,
	})
}

type paymentMethodRequest struct {
	Method string `json:"method"`
}

// SetOrderPaymentMethod выбирает способ оплаты незавершённого заказа.
func (h *Handler) SetOrderPaymentMethod(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req paymentMethodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	method := model.PaymentMethod(req.Method)
	if method != model.PaymentMethodOnline && method != model.PaymentMethodOther {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.SetOrderPaymentMethod(r.Context(), userID, method); err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("set payment method error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

type payRequest struct {
	CardNumber string `json:"card_number"`
}

// PayOrder ставит оплату незавершённого заказа в очередь платёжного шлюза.
func (h *Handler) PayOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req payRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	orderID, err := h.service.PayOrder(r.Context(), userID, req.CardNumber)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrOrderNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, gateway.ErrInvalidCardNumber):
			http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		default:
			h.logger.Error("pay order error", zap.Error(err), zap.Int64("userID", userID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(map[string]int64{"order": orderID}); err != nil {
		h.logger.Error("encode pay response error", zap.Error(err))
	}
}

type historyResponse struct {
	Order      int64           `json:"order"`
	Status     string          `json:"status"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Paid       *bool           `json:"paid,omitempty"`
	CreatedAt  string          `json:"created_at"`
}

// GetOrders возвращает историю заказов текущего пользователя.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	orders, err := h.service.GetOrdersByUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("get orders error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]historyResponse, 0, len(orders))
	for _, o := range orders {
		item := historyResponse{
			Order:      o.Order.ID,
			Status:     string(o.Order.Status),
			TotalPrice: o.Order.TotalPrice,
			CreatedAt:  o.Order.CreatedAt.Format(time.RFC3339),
		}
		if o.Payment != nil {
			item.Paid = &o.Payment.Proven
		}
		resp = append(resp, item)
	}

	h.writeJSON(w, resp)
}
