//go:build integration

package repository

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/ntarasau/vapeshop-backend/internal/model"
)

func newTestRepository(t *testing.T) *PostgresRepository {
	t.Helper()

	dsn := os.Getenv("DATABASE_URI")
	if dsn == "" {
		t.Skip("DATABASE_URI is not set")
	}

	r, err := NewPostgresRepository(dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	truncate := func() {
		_, err := r.pool.Exec(context.Background(),
			`TRUNCATE order_items, orders, users, product_flavors, products RESTART IDENTITY CASCADE`)
		if err != nil {
			t.Fatalf("truncate: %v", err)
		}
	}
	truncate()
	t.Cleanup(func() {
		truncate()
		r.Close()
	})

	return r
}

func createLiquid(t *testing.T, r *PostgresRepository, priceCents int64, flavors ...model.Flavor) *model.Product {
	t.Helper()
	p, err := r.CreateProduct(context.Background(), model.Product{
		Name:       "PARADISE Liquid 30ml",
		CategoryID: model.CategoryLiquids,
		PriceCents: priceCents,
		Flavors:    flavors,
	})
	if err != nil {
		t.Fatalf("create liquid: %v", err)
	}
	return p
}

func createConsumable(t *testing.T, r *PostgresRepository, priceCents, stock int64) *model.Product {
	t.Helper()
	p, err := r.CreateProduct(context.Background(), model.Product{
		Name:       "Картридж XROS",
		CategoryID: model.CategoryConsumables,
		PriceCents: priceCents,
		Stock:      stock,
	})
	if err != nil {
		t.Fatalf("create consumable: %v", err)
	}
	return p
}

func buyerOrder(items ...NewOrderItem) NewOrder {
	return NewOrder{
		TelegramID:       100500,
		TelegramUsername: "buyer",
		Items:            items,
	}
}

func countRows(t *testing.T, r *PostgresRepository, table string) int64 {
	t.Helper()
	var n int64
	if err := r.pool.QueryRow(context.Background(), `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func flavorStock(t *testing.T, p *model.Product, name string) int64 {
	t.Helper()
	for _, f := range p.Flavors {
		if f.Name == name {
			return f.Stock
		}
	}
	t.Fatalf("flavor %q not found in %+v", name, p.Flavors)
	return 0
}

func TestCreateOrder_InsufficientFlavorStockRollsBack(t *testing.T) {
	r := newTestRepository(t)
	ctx := context.Background()

	p := createLiquid(t, r, 2550, model.Flavor{Name: "Mango", Stock: 2})

	_, _, err := r.CreateOrder(ctx, buyerOrder(NewOrderItem{ProductID: p.ID, FlavorName: "Mango", Quantity: 3}))
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	reloaded, err := r.GetProductByID(ctx, p.ID, false)
	if err != nil {
		t.Fatalf("reload product: %v", err)
	}
	if got := flavorStock(t, reloaded, "Mango"); got != 2 {
		t.Fatalf("flavor stock = %d, want 2 after rollback", got)
	}
	if reloaded.Stock != 2 {
		t.Fatalf("aggregate stock = %d, want 2 after rollback", reloaded.Stock)
	}
	if n := countRows(t, r, "orders"); n != 0 {
		t.Fatalf("orders = %d, want 0 after rollback", n)
	}
}

func TestCreateOrder_DepletesAggregateAndDeactivates(t *testing.T) {
	r := newTestRepository(t)
	ctx := context.Background()

	p := createLiquid(t, r, 2550,
		model.Flavor{Name: "Mango", Stock: 2},
		model.Flavor{Name: "Ice", Stock: 0},
	)

	order, _, err := r.CreateOrder(ctx, buyerOrder(NewOrderItem{ProductID: p.ID, FlavorName: "Mango", Quantity: 2}))
	if err != nil {
		t.Fatalf("CreateOrder error: %v", err)
	}
	if order.TotalCents != 5100 {
		t.Fatalf("total = %d, want 5100", order.TotalCents)
	}

	reloaded, err := r.GetProductByID(ctx, p.ID, false)
	if err != nil {
		t.Fatalf("reload product: %v", err)
	}
	if reloaded.Stock != 0 {
		t.Fatalf("aggregate stock = %d, want sum of flavor stocks 0", reloaded.Stock)
	}
	if reloaded.IsActive {
		t.Fatal("product must be deactivated at zero aggregate stock")
	}

	// Скрытый товар недоступен для последующих заказов.
	_, _, err = r.CreateOrder(ctx, buyerOrder(NewOrderItem{ProductID: p.ID, FlavorName: "Mango", Quantity: 1}))
	if !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound for hidden product, got %v", err)
	}
}

func TestCreateOrder_MidFailureRollsBackAllItems(t *testing.T) {
	r := newTestRepository(t)
	ctx := context.Background()

	liquid := createLiquid(t, r, 2550, model.Flavor{Name: "Mango", Stock: 5})
	consumable := createConsumable(t, r, 200, 1)

	_, _, err := r.CreateOrder(ctx, buyerOrder(
		NewOrderItem{ProductID: liquid.ID, FlavorName: "Mango", Quantity: 2},
		NewOrderItem{ProductID: consumable.ID, Quantity: 3},
	))
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	reloadedLiquid, err := r.GetProductByID(ctx, liquid.ID, false)
	if err != nil {
		t.Fatalf("reload liquid: %v", err)
	}
	if got := flavorStock(t, reloadedLiquid, "Mango"); got != 5 {
		t.Fatalf("liquid flavor stock = %d, want 5: first item must be rolled back", got)
	}

	reloadedConsumable, err := r.GetProductByID(ctx, consumable.ID, false)
	if err != nil {
		t.Fatalf("reload consumable: %v", err)
	}
	if reloadedConsumable.Stock != 1 {
		t.Fatalf("consumable stock = %d, want 1 after rollback", reloadedConsumable.Stock)
	}

	if n := countRows(t, r, "orders"); n != 0 {
		t.Fatalf("orders = %d, want 0 after rollback", n)
	}
	if n := countRows(t, r, "order_items"); n != 0 {
		t.Fatalf("order_items = %d, want 0 after rollback", n)
	}
}

func TestCreateOrder_PriceSnapshot(t *testing.T) {
	r := newTestRepository(t)
	ctx := context.Background()

	p := createLiquid(t, r, 2550, model.Flavor{Name: "Mango", Stock: 5})

	order, _, err := r.CreateOrder(ctx, buyerOrder(NewOrderItem{ProductID: p.ID, FlavorName: "Mango", Quantity: 1}))
	if err != nil {
		t.Fatalf("CreateOrder error: %v", err)
	}

	newPrice := int64(3000)
	if _, err := r.UpdateProduct(ctx, p.ID, ProductUpdate{PriceCents: &newPrice}); err != nil {
		t.Fatalf("update price: %v", err)
	}

	orders, err := r.GetOrders(ctx)
	if err != nil {
		t.Fatalf("GetOrders error: %v", err)
	}
	if len(orders) != 1 || orders[0].ID != order.ID {
		t.Fatalf("unexpected orders: %+v", orders)
	}
	if len(orders[0].Items) != 1 {
		t.Fatalf("items = %d, want 1", len(orders[0].Items))
	}
	if got := orders[0].Items[0].PriceCents; got != 2550 {
		t.Fatalf("item price = %d, want snapshot 2550 despite price change", got)
	}
	if orders[0].TotalCents != 2550 {
		t.Fatalf("order total = %d, want 2550", orders[0].TotalCents)
	}
}

func TestCreateOrder_IdempotentResubmit(t *testing.T) {
	r := newTestRepository(t)
	ctx := context.Background()

	p := createLiquid(t, r, 2550, model.Flavor{Name: "Mango", Stock: 5})

	order := buyerOrder(NewOrderItem{ProductID: p.ID, FlavorName: "Mango", Quantity: 2})
	order.IdempotencyKey = "key-1"

	first, exists, err := r.CreateOrder(ctx, order)
	if err != nil {
		t.Fatalf("first CreateOrder error: %v", err)
	}
	if exists {
		t.Fatal("first submission must not be reported as existing")
	}

	second, exists, err := r.CreateOrder(ctx, order)
	if err != nil {
		t.Fatalf("second CreateOrder error: %v", err)
	}
	if !exists {
		t.Fatal("resubmission with same key must be reported as existing")
	}
	if second.ID != first.ID {
		t.Fatalf("order id = %d, want %d", second.ID, first.ID)
	}
	if len(second.Items) != 1 || second.Items[0].ProductName == "" {
		t.Fatalf("resubmission must return stored items, got %+v", second.Items)
	}

	// Списание выполняется один раз.
	reloaded, err := r.GetProductByID(ctx, p.ID, false)
	if err != nil {
		t.Fatalf("reload product: %v", err)
	}
	if got := flavorStock(t, reloaded, "Mango"); got != 3 {
		t.Fatalf("flavor stock = %d, want 3: stock must be decremented once", got)
	}
}

func TestSetFlavorStock_RecomputesAggregate(t *testing.T) {
	r := newTestRepository(t)
	ctx := context.Background()

	p := createLiquid(t, r, 2550, model.Flavor{Name: "Mango", Stock: 2})

	updated, err := r.SetFlavorStock(ctx, p.ID, "Ice", 3)
	if err != nil {
		t.Fatalf("SetFlavorStock error: %v", err)
	}
	if updated.Stock != 5 {
		t.Fatalf("aggregate stock = %d, want 5 (sum of flavors)", updated.Stock)
	}
}

func TestSetFlavorStock_RejectsFlavorlessCategory(t *testing.T) {
	r := newTestRepository(t)
	ctx := context.Background()

	p := createConsumable(t, r, 200, 5)

	_, err := r.SetFlavorStock(ctx, p.ID, "Mango", 3)
	if !errors.Is(err, ErrFlavorNotAllowed) {
		t.Fatalf("expected ErrFlavorNotAllowed, got %v", err)
	}

	reloaded, err := r.GetProductByID(ctx, p.ID, false)
	if err != nil {
		t.Fatalf("reload product: %v", err)
	}
	if len(reloaded.Flavors) != 0 {
		t.Fatalf("consumable must not gain flavors: %+v", reloaded.Flavors)
	}
	if reloaded.Stock != 5 {
		t.Fatalf("consumable stock = %d, want unchanged 5", reloaded.Stock)
	}
}
