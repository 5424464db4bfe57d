// Package model содержит доменные сущности магазина.
package model

import "time"

// CategoryID идентифицирует категорию товара. Набор категорий фиксированный.
type CategoryID int16

const (
	// CategoryLiquids — жидкости, товары этой категории продаются по вкусам.
	CategoryLiquids CategoryID = 1
	// CategoryConsumables — расходники, вкусов не имеют.
	CategoryConsumables CategoryID = 2
)

// RequiresFlavor сообщает, продаются ли товары категории по вкусам.
func (c CategoryID) RequiresFlavor() bool {
	return c == CategoryLiquids
}

// Category описывает категорию товара.
type Category struct {
	ID             CategoryID `json:"id"`
	Name           string     `json:"name"`
	RequiresFlavor bool       `json:"requires_flavor"`
}

// Flavor описывает вкус товара с независимым остатком.
type Flavor struct {
	Name  string `json:"flavor_name"`
	Stock int64  `json:"stock"`
}

// Product описывает товар каталога. Для товаров со вкусами поле Stock
// всегда равно сумме остатков по вкусам и пересчитывается при каждой
// мутации, а не изменяется независимо.
type Product struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	CategoryID  CategoryID `json:"category_id"`
	PriceCents  int64      `json:"-"`
	Price       float64    `json:"price"`
	Description string     `json:"description"`
	ImageURL    string     `json:"image_url"`
	Stock       int64      `json:"stock"`
	IsActive    bool       `json:"is_active"`
	Flavors     []Flavor   `json:"flavors"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// OrderStatus описывает статус обработки заказа.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// ValidStatus сообщает, известен ли статус.
func ValidStatus(s OrderStatus) bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

// CanTransition проверяет допустимость перехода статуса заказа.
// Граф переходов: pending -> processing -> completed, отмена возможна
// из любого нетерминального статуса.
func CanTransition(from, to OrderStatus) bool {
	switch from {
	case OrderStatusPending:
		return to == OrderStatusProcessing || to == OrderStatusCancelled
	case OrderStatusProcessing:
		return to == OrderStatusCompleted || to == OrderStatusCancelled
	}
	return false
}

// Order описывает заказ покупателя.
type Order struct {
	ID              int64       `json:"id"`
	UserID          int64       `json:"user_id"`
	TotalCents      int64       `json:"-"`
	TotalAmount     float64     `json:"total_amount"`
	Status          OrderStatus `json:"status"`
	DeliveryAddress string      `json:"delivery_address,omitempty"`
	Phone           string      `json:"phone,omitempty"`
	Notes           string      `json:"notes,omitempty"`
	Items           []OrderItem `json:"items,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// OrderItem описывает строку заказа. PriceCents — снимок цены на момент
// оформления, последующие изменения цены товара его не затрагивают.
type OrderItem struct {
	ID          int64   `json:"id"`
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name,omitempty"`
	FlavorName  string  `json:"flavor_name,omitempty"`
	Quantity    int32   `json:"quantity"`
	PriceCents  int64   `json:"-"`
	Price       float64 `json:"price"`
}

// User описывает покупателя, идентифицируемого телеграм-аккаунтом.
// Создаётся при первом заказе.
type User struct {
	ID               int64     `json:"id"`
	TelegramID       int64     `json:"telegram_id"`
	TelegramUsername string    `json:"telegram_username"`
	FirstName        string    `json:"first_name,omitempty"`
	Phone            string    `json:"phone,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// UserSummary — покупатель с производной статистикой заказов.
// Счётчики вычисляются агрегацией по заказам и нигде не хранятся.
type UserSummary struct {
	User
	OrdersCount     int64   `json:"orders_count"`
	TotalSpentCents int64   `json:"-"`
	TotalSpent      float64 `json:"total_spent"`
}

// Stats содержит сводную статистику магазина для админ-панели.
type Stats struct {
	TotalOrders     int64   `json:"total_orders"`
	TotalRevenue    float64 `json:"total_revenue"`
	PendingOrders   int64   `json:"pending_orders"`
	CompletedOrders int64   `json:"completed_orders"`
	TotalUsers      int64   `json:"total_users"`
	ActiveProducts  int64   `json:"active_products"`
}
