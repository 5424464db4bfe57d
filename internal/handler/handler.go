// Package handler содержит HTTP-обработчики API магазина.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ntarasau/vapeshop-backend/internal/middleware"
	"github.com/ntarasau/vapeshop-backend/internal/model"
	"github.com/ntarasau/vapeshop-backend/internal/repository"
	"github.com/ntarasau/vapeshop-backend/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	CreateOrder(ctx context.Context, req service.CreateOrderRequest) (*model.Order, error)
	GetCatalog(ctx context.Context) ([]model.Product, error)
	GetCatalogAll(ctx context.Context) ([]model.Product, error)
	GetProductByID(ctx context.Context, id string) (*model.Product, error)
	GetCategories(ctx context.Context) ([]model.Category, error)
	AuthenticateAdmin(password string) error
	CreateProduct(ctx context.Context, req service.CreateProductRequest) (*model.Product, error)
	UpdateProduct(ctx context.Context, id string, req service.UpdateProductRequest) (*model.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	SetFlavorStock(ctx context.Context, productID, flavorName string, stock int64) (*model.Product, error)
	GetOrders(ctx context.Context) ([]model.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, to model.OrderStatus) (*model.Order, error)
	GetUsers(ctx context.Context) ([]model.UserSummary, error)
	GetStats(ctx context.Context) (*model.Stats, error)
}

// Handler реализует HTTP-обработчики API магазина.
type Handler struct {
	service   Service
	logger    *zap.Logger
	adminAuth *middleware.AdminAuth
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, adminAuth *middleware.AdminAuth) *Handler {
	return &Handler{
		service:   s,
		logger:    logger,
		adminAuth: adminAuth,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

// GetProducts возвращает активные товары витрины со вкусами.
func (h *Handler) GetProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.GetCatalog(r.Context())
	if err != nil {
		h.logger.Error("get products error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to fetch products"})
		return
	}

	if products == nil {
		products = []model.Product{}
	}
	writeJSON(w, http.StatusOK, products)
}

// GetProduct возвращает один активный товар по идентификатору.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request, id string) {
	product, err := h.service.GetProductByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "product not found"})
			return
		}
		h.logger.Error("get product error", zap.Error(err), zap.String("product", id))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to fetch product"})
		return
	}

	writeJSON(w, http.StatusOK, product)
}

// GetCategories возвращает список категорий.
func (h *Handler) GetCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.GetCategories(r.Context())
	if err != nil {
		h.logger.Error("get categories error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to fetch categories"})
		return
	}

	writeJSON(w, http.StatusOK, categories)
}

// CreateOrder оформляет заказ покупателя.
//
// Ошибки валидации отдаются как 400, конфликты остатков и неизвестные
// товары/вкусы — как 409, чтобы клиент мог обновить витрину и повторить.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req service.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	if key := r.Header.Get("Idempotency-Key"); key != "" {
		req.IdempotencyKey = key
	}

	order, err := h.service.CreateOrder(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmptyCart),
			errors.Is(err, service.ErrInvalidQuantity),
			errors.Is(err, service.ErrMissingBuyer),
			errors.Is(err, service.ErrInvalidContact),
			errors.Is(err, repository.ErrFlavorRequired):
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		case errors.Is(err, repository.ErrInsufficientStock),
			errors.Is(err, repository.ErrProductNotFound),
			errors.Is(err, repository.ErrFlavorNotFound):
			writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
		case errors.Is(err, repository.ErrUserNotFound):
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		default:
			h.logger.Error("create order error", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to create order"})
		}
		return
	}

	writeJSON(w, http.StatusCreated, order)
}

// Health отвечает на проверку живости сервиса.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}
