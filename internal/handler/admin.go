package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/ntarasau/vapeshop-backend/internal/model"
	"github.com/ntarasau/vapeshop-backend/internal/repository"
	"github.com/ntarasau/vapeshop-backend/internal/service"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// AdminLogin проверяет пароль администратора и выдаёт подписанный токен.
func (h *Handler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	if req.Username == "" {
		req.Username = "admin"
	}

	if err := h.service.AuthenticateAdmin(req.Password); err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid credentials"})
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{Token: h.adminAuth.IssueToken(req.Username)})
}

// AdminGetProducts возвращает все товары, включая скрытые.
func (h *Handler) AdminGetProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.GetCatalogAll(r.Context())
	if err != nil {
		h.logger.Error("admin get products error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to fetch products"})
		return
	}

	if products == nil {
		products = []model.Product{}
	}
	writeJSON(w, http.StatusOK, products)
}

// AdminCreateProduct создаёт товар.
func (h *Handler) AdminCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req service.CreateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	product, err := h.service.CreateProduct(r.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidProduct) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		h.logger.Error("create product error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to create product"})
		return
	}

	writeJSON(w, http.StatusCreated, product)
}

// AdminUpdateProduct обновляет товар.
func (h *Handler) AdminUpdateProduct(w http.ResponseWriter, r *http.Request, id string) {
	var req service.UpdateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	product, err := h.service.UpdateProduct(r.Context(), id, req)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrProductNotFound):
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "product not found"})
		case errors.Is(err, service.ErrInvalidProduct):
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		default:
			h.logger.Error("update product error", zap.Error(err), zap.String("product", id))
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to update product"})
		}
		return
	}

	writeJSON(w, http.StatusOK, product)
}

// AdminDeleteProduct скрывает товар из каталога.
func (h *Handler) AdminDeleteProduct(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.service.DeleteProduct(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "product not found"})
			return
		}
		h.logger.Error("delete product error", zap.Error(err), zap.String("product", id))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to delete product"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "product deleted"})
}

type flavorStockRequest struct {
	Stock int64 `json:"stock"`
}

// AdminSetFlavorStock устанавливает остаток вкуса товара.
func (h *Handler) AdminSetFlavorStock(w http.ResponseWriter, r *http.Request, productID, flavorName string) {
	var req flavorStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	product, err := h.service.SetFlavorStock(r.Context(), productID, flavorName, req.Stock)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrProductNotFound):
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "product not found"})
		case errors.Is(err, repository.ErrFlavorNotAllowed),
			errors.Is(err, service.ErrInvalidProduct):
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		default:
			h.logger.Error("set flavor stock error", zap.Error(err),
				zap.String("product", productID), zap.String("flavor", flavorName))
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to set flavor stock"})
		}
		return
	}

	writeJSON(w, http.StatusOK, product)
}

// AdminGetOrders возвращает все заказы со строками.
func (h *Handler) AdminGetOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.GetOrders(r.Context())
	if err != nil {
		h.logger.Error("admin get orders error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to fetch orders"})
		return
	}

	if orders == nil {
		orders = []model.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

type statusRequest struct {
	Status string `json:"status"`
}

// AdminUpdateOrderStatus переводит заказ в новый статус.
func (h *Handler) AdminUpdateOrderStatus(w http.ResponseWriter, r *http.Request, rawID string) {
	orderID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid order id"})
		return
	}

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	order, err := h.service.UpdateOrderStatus(r.Context(), orderID, model.OrderStatus(req.Status))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidStatus):
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		case errors.Is(err, repository.ErrOrderNotFound):
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "order not found"})
		case errors.Is(err, repository.ErrStatusTransition):
			writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
		default:
			h.logger.Error("update order status error", zap.Error(err), zap.Int64("order", orderID))
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to update order status"})
		}
		return
	}

	writeJSON(w, http.StatusOK, order)
}

// AdminGetUsers возвращает покупателей с производной статистикой заказов.
func (h *Handler) AdminGetUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.GetUsers(r.Context())
	if err != nil {
		h.logger.Error("admin get users error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to fetch users"})
		return
	}

	if users == nil {
		users = []model.UserSummary{}
	}
	writeJSON(w, http.StatusOK, users)
}

// AdminGetStats возвращает сводную статистику магазина.
func (h *Handler) AdminGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetStats(r.Context())
	if err != nil {
		h.logger.Error("admin get stats error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to fetch stats"})
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
