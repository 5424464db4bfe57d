// Package service реализует бизнес-логику магазина.
package service

import (
	"context"
	"crypto/hmac"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/ntarasau/vapeshop-backend/internal/cache"
	"github.com/ntarasau/vapeshop-backend/internal/metrics"
	"github.com/ntarasau/vapeshop-backend/internal/model"
	"github.com/ntarasau/vapeshop-backend/internal/repository"
	"github.com/ntarasau/vapeshop-backend/internal/validation"
)

// ErrEmptyCart возвращается при оформлении заказа без позиций.
var (
	ErrEmptyCart = errors.New("empty cart")
	// ErrInvalidQuantity возвращается при неположительном количестве в позиции.
	ErrInvalidQuantity = errors.New("quantity must be positive")
	// ErrMissingBuyer возвращается, если покупатель не указан ни идентификатором,
	// ни телеграм-аккаунтом.
	ErrMissingBuyer = errors.New("missing buyer identity")
	// ErrInvalidStatus возвращается при неизвестном статусе заказа.
	ErrInvalidStatus = errors.New("unknown order status")
	// ErrInvalidCredentials возвращается при неверном пароле администратора.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidProduct возвращается при некорректных данных товара.
	ErrInvalidProduct = errors.New("invalid product data")
	// ErrInvalidContact возвращается при некорректном телефоне или
	// имени пользователя Telegram.
	ErrInvalidContact = errors.New("invalid contact data")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateOrder(ctx context.Context, o repository.NewOrder) (*model.Order, bool, error)
	GetProducts(ctx context.Context, onlyActive bool) ([]model.Product, error)
	GetProductByID(ctx context.Context, id string, onlyActive bool) (*model.Product, error)
	GetCategories(ctx context.Context) ([]model.Category, error)
	CreateProduct(ctx context.Context, p model.Product) (*model.Product, error)
	UpdateProduct(ctx context.Context, id string, u repository.ProductUpdate) (*model.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	SetFlavorStock(ctx context.Context, productID, flavorName string, stock int64) (*model.Product, error)
	GetOrders(ctx context.Context) ([]model.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, to model.OrderStatus) (*model.Order, error)
	GetUsersWithStats(ctx context.Context) ([]model.UserSummary, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetStats(ctx context.Context) (*model.Stats, error)
}

// Notifier описывает канал уведомлений о новых заказах.
type Notifier interface {
	SendOrderNotification(ctx context.Context, order *model.Order, user *model.User) error
}

// CatalogCache описывает короткоживущий кэш каталога для витрины.
type CatalogCache interface {
	GetProducts(ctx context.Context) ([]model.Product, error)
	SetProducts(ctx context.Context, products []model.Product) error
	Invalidate(ctx context.Context) error
}

// Service содержит бизнес-логику магазина.
type Service struct {
	repo          Repository
	notifier      Notifier
	catalogCache  CatalogCache
	adminPassword string
	logger        *zap.Logger
}

// NewService создаёт новый сервис. Уведомления и кэш опциональны.
func NewService(repo Repository, notifier Notifier, catalogCache CatalogCache, adminPassword string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:          repo,
		notifier:      notifier,
		catalogCache:  catalogCache,
		adminPassword: adminPassword,
		logger:        logger,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// TelegramUser описывает телеграм-аккаунт покупателя из запроса оформления.
type TelegramUser struct {
	TelegramID       int64  `json:"telegram_id"`
	TelegramUsername string `json:"telegram_username"`
	FirstName        string `json:"first_name"`
	Phone            string `json:"phone"`
}

// OrderItemRequest описывает позицию корзины. Цена клиента игнорируется:
// сумма заказа всегда считается на сервере по текущим ценам.
type OrderItemRequest struct {
	ProductID  string  `json:"product_id"`
	FlavorName string  `json:"flavor_name"`
	Quantity   int32   `json:"quantity"`
	Price      float64 `json:"price"`
}

// CreateOrderRequest описывает запрос оформления заказа.
type CreateOrderRequest struct {
	UserID          int64              `json:"user_id"`
	TelegramUser    *TelegramUser      `json:"telegram_user"`
	Items           []OrderItemRequest `json:"items"`
	TotalAmount     float64            `json:"total_amount"`
	DeliveryAddress string             `json:"delivery_address"`
	Phone           string             `json:"phone"`
	Notes           string             `json:"notes"`
	IdempotencyKey  string             `json:"idempotency_key"`
}

// CreateOrder валидирует корзину, оформляет заказ одной транзакцией и после
// фиксации отправляет уведомление. Ошибка уведомления логируется и не
// влияет на результат оформления.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (*model.Order, error) {
	if len(req.Items) == 0 {
		metrics.OrdersFailedTotal.WithLabelValues("empty_cart").Inc()
		return nil, ErrEmptyCart
	}
	for _, it := range req.Items {
		if it.Quantity <= 0 {
			metrics.OrdersFailedTotal.WithLabelValues("invalid_quantity").Inc()
			return nil, ErrInvalidQuantity
		}
	}
	if req.UserID == 0 && (req.TelegramUser == nil || req.TelegramUser.TelegramID == 0) {
		metrics.OrdersFailedTotal.WithLabelValues("missing_buyer").Inc()
		return nil, ErrMissingBuyer
	}

	newOrder := repository.NewOrder{
		UserID:          req.UserID,
		DeliveryAddress: req.DeliveryAddress,
		Phone:           req.Phone,
		Notes:           req.Notes,
		IdempotencyKey:  req.IdempotencyKey,
	}
	if req.TelegramUser != nil {
		newOrder.TelegramID = req.TelegramUser.TelegramID
		newOrder.TelegramUsername = validation.NormalizeTelegramUsername(req.TelegramUser.TelegramUsername)
		newOrder.FirstName = req.TelegramUser.FirstName
		if newOrder.TelegramUsername != "" && !validation.IsValidTelegramUsername(newOrder.TelegramUsername) {
			metrics.OrdersFailedTotal.WithLabelValues("invalid_contact").Inc()
			return nil, ErrInvalidContact
		}
		if newOrder.Phone == "" {
			newOrder.Phone = req.TelegramUser.Phone
		}
	}
	if newOrder.Phone != "" && !validation.IsValidPhone(newOrder.Phone) {
		metrics.OrdersFailedTotal.WithLabelValues("invalid_contact").Inc()
		return nil, ErrInvalidContact
	}
	for _, it := range req.Items {
		newOrder.Items = append(newOrder.Items, repository.NewOrderItem{
			ProductID:  it.ProductID,
			FlavorName: it.FlavorName,
			Quantity:   it.Quantity,
		})
	}

	start := time.Now()
	order, alreadyExists, err := s.repo.CreateOrder(ctx, newOrder)
	metrics.CheckoutLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.OrdersFailedTotal.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}

	if alreadyExists {
		s.logger.Info("duplicate order submission",
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.Int64("order_id", order.ID))
		return order, nil
	}

	metrics.OrdersCreatedTotal.Inc()

	s.notifyNewOrder(ctx, order)

	return order, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, repository.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, repository.ErrProductNotFound):
		return "unknown_product"
	case errors.Is(err, repository.ErrFlavorNotFound):
		return "unknown_flavor"
	case errors.Is(err, repository.ErrFlavorRequired):
		return "missing_flavor"
	case errors.Is(err, repository.ErrUserNotFound):
		return "unknown_user"
	}
	return "internal"
}

// notifyNewOrder отправляет сводку заказа. Уведомление не транзакционно:
// его неудача не откатывает уже зафиксированный заказ.
func (s *Service) notifyNewOrder(ctx context.Context, order *model.Order) {
	if s.notifier == nil {
		return
	}

	user, err := s.repo.GetUserByID(ctx, order.UserID)
	if err != nil {
		s.logger.Warn("load buyer for notification", zap.Error(err), zap.Int64("order_id", order.ID))
		user = nil
	}

	if err := s.notifier.SendOrderNotification(ctx, order, user); err != nil {
		metrics.NotificationsFailedTotal.Inc()
		s.logger.Warn("send order notification", zap.Error(err), zap.Int64("order_id", order.ID))
	}
}

// GetCatalog возвращает активные товары витрины, по возможности из кэша.
// Кэш используется только для чтения витрины и никогда для решений о покупке.
func (s *Service) GetCatalog(ctx context.Context) ([]model.Product, error) {
	if s.catalogCache != nil {
		products, err := s.catalogCache.GetProducts(ctx)
		if err == nil {
			metrics.CatalogCacheHitsTotal.Inc()
			return products, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn("catalog cache read", zap.Error(err))
		}
	}

	products, err := s.repo.GetProducts(ctx, true)
	if err != nil {
		return nil, err
	}

	if s.catalogCache != nil {
		if err := s.catalogCache.SetProducts(ctx, products); err != nil {
			s.logger.Warn("catalog cache write", zap.Error(err))
		}
	}

	return products, nil
}

// GetCatalogAll возвращает все товары, включая скрытые, для админ-панели.
// Кэш витрины здесь не используется.
func (s *Service) GetCatalogAll(ctx context.Context) ([]model.Product, error) {
	return s.repo.GetProducts(ctx, false)
}

// GetProductByID возвращает активный товар витрины.
func (s *Service) GetProductByID(ctx context.Context, id string) (*model.Product, error) {
	return s.repo.GetProductByID(ctx, id, true)
}

// GetCategories возвращает список категорий.
func (s *Service) GetCategories(ctx context.Context) ([]model.Category, error) {
	return s.repo.GetCategories(ctx)
}

// AuthenticateAdmin проверяет пароль администратора.
func (s *Service) AuthenticateAdmin(password string) error {
	if s.adminPassword == "" {
		return ErrInvalidCredentials
	}
	if !hmac.Equal([]byte(password), []byte(s.adminPassword)) {
		return ErrInvalidCredentials
	}
	return nil
}

// CreateProductRequest описывает создаваемый товар.
type CreateProductRequest struct {
	Name        string           `json:"name"`
	CategoryID  model.CategoryID `json:"category_id"`
	Price       float64          `json:"price"`
	Description string           `json:"description"`
	ImageURL    string           `json:"image_url"`
	Stock       int64            `json:"stock"`
	Flavors     []model.Flavor   `json:"flavors"`
}

// CreateProduct создаёт товар каталога.
func (s *Service) CreateProduct(ctx context.Context, req CreateProductRequest) (*model.Product, error) {
	if req.Name == "" || req.Price <= 0 {
		return nil, ErrInvalidProduct
	}
	if req.Stock < 0 {
		return nil, ErrInvalidProduct
	}
	// Наличие вкусов определяется категорией: жидкости продаются только по
	// вкусам, расходники вкусов не имеют.
	if req.CategoryID.RequiresFlavor() && len(req.Flavors) == 0 {
		return nil, ErrInvalidProduct
	}
	if !req.CategoryID.RequiresFlavor() && len(req.Flavors) > 0 {
		return nil, ErrInvalidProduct
	}
	for _, f := range req.Flavors {
		if f.Name == "" || f.Stock < 0 {
			return nil, ErrInvalidProduct
		}
	}

	product, err := s.repo.CreateProduct(ctx, model.Product{
		Name:        req.Name,
		CategoryID:  req.CategoryID,
		PriceCents:  toCents(req.Price),
		Description: req.Description,
		ImageURL:    req.ImageURL,
		Stock:       req.Stock,
		Flavors:     req.Flavors,
	})
	if err != nil {
		return nil, err
	}

	s.invalidateCatalog(ctx)
	return product, nil
}

// UpdateProductRequest описывает частичное обновление товара.
type UpdateProductRequest struct {
	Name        *string           `json:"name"`
	CategoryID  *model.CategoryID `json:"category_id"`
	Price       *float64          `json:"price"`
	Description *string           `json:"description"`
	ImageURL    *string           `json:"image_url"`
	Stock       *int64            `json:"stock"`
	IsActive    *bool             `json:"is_active"`
}

// UpdateProduct обновляет поля товара.
func (s *Service) UpdateProduct(ctx context.Context, id string, req UpdateProductRequest) (*model.Product, error) {
	upd := repository.ProductUpdate{
		Name:        req.Name,
		CategoryID:  req.CategoryID,
		Description: req.Description,
		ImageURL:    req.ImageURL,
		Stock:       req.Stock,
		IsActive:    req.IsActive,
	}
	if req.Price != nil {
		if *req.Price <= 0 {
			return nil, ErrInvalidProduct
		}
		cents := toCents(*req.Price)
		upd.PriceCents = &cents
	}
	if req.Stock != nil && *req.Stock < 0 {
		return nil, ErrInvalidProduct
	}

	product, err := s.repo.UpdateProduct(ctx, id, upd)
	if err != nil {
		return nil, err
	}

	s.invalidateCatalog(ctx)
	return product, nil
}

// DeleteProduct скрывает товар из каталога.
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.invalidateCatalog(ctx)
	return nil
}

// SetFlavorStock устанавливает остаток вкуса через единый мутационный путь
// хранилища: агрегированный остаток и флаг активности пересчитываются там же.
func (s *Service) SetFlavorStock(ctx context.Context, productID, flavorName string, stock int64) (*model.Product, error) {
	if flavorName == "" || stock < 0 {
		return nil, ErrInvalidProduct
	}

	product, err := s.repo.SetFlavorStock(ctx, productID, flavorName, stock)
	if err != nil {
		return nil, err
	}

	s.invalidateCatalog(ctx)
	return product, nil
}

func (s *Service) invalidateCatalog(ctx context.Context) {
	if s.catalogCache == nil {
		return
	}
	if err := s.catalogCache.Invalidate(ctx); err != nil {
		s.logger.Warn("catalog cache invalidate", zap.Error(err))
	}
}

// GetOrders возвращает все заказы для админ-панели.
func (s *Service) GetOrders(ctx context.Context) ([]model.Order, error) {
	return s.repo.GetOrders(ctx)
}

// UpdateOrderStatus переводит заказ в новый статус с проверкой графа переходов.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID int64, to model.OrderStatus) (*model.Order, error) {
	if !model.ValidStatus(to) {
		return nil, ErrInvalidStatus
	}
	return s.repo.UpdateOrderStatus(ctx, orderID, to)
}

// GetUsers возвращает покупателей с производной статистикой.
func (s *Service) GetUsers(ctx context.Context) ([]model.UserSummary, error) {
	return s.repo.GetUsersWithStats(ctx)
}

// GetStats возвращает сводную статистику магазина.
func (s *Service) GetStats(ctx context.Context) (*model.Stats, error) {
	return s.repo.GetStats(ctx)
}

func toCents(price float64) int64 {
	return int64(math.Round(price * 100))
}
