// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"

	"github.com/ntarasau/vapeshop-backend/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrProductNotFound возвращается, если товар не найден или снят с продажи.
var (
	ErrProductNotFound = errors.New("product not found")
	// ErrFlavorNotFound возвращается, если у товара нет указанного вкуса.
	ErrFlavorNotFound = errors.New("flavor not found")
	// ErrFlavorRequired возвращается, если для товара со вкусами вкус не указан.
	ErrFlavorRequired = errors.New("flavor selection required")
	// ErrFlavorNotAllowed возвращается при попытке задать вкус товару,
	// категория которого вкусов не предусматривает.
	ErrFlavorNotAllowed = errors.New("flavors not supported for product")
	// ErrInsufficientStock возвращается, если остатка не хватает для списания.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrOrderNotFound возвращается, если заказ не найден.
	ErrOrderNotFound = errors.New("order not found")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrStatusTransition возвращается при недопустимом переходе статуса заказа.
	ErrStatusTransition = errors.New("invalid status transition")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// База может подниматься одновременно с сервисом, пингуем с бэкоффом.
	backoff := retry.WithMaxRetries(5, retry.NewFibonacci(500*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// NewOrderItem описывает строку оформляемого заказа.
type NewOrderItem struct {
	ProductID  string
	FlavorName string
	Quantity   int32
}

// NewOrder описывает данные для оформления заказа.
type NewOrder struct {
	UserID           int64
	TelegramID       int64
	TelegramUsername string
	FirstName        string
	Phone            string
	DeliveryAddress  string
	Notes            string
	IdempotencyKey   string
	Items            []NewOrderItem
}

type checkoutProduct struct {
	name           string
	priceCents     int64
	requiresFlavor bool
}

// CreateOrder атомарно оформляет заказ: разрешает покупателя, считает сумму
// по текущим ценам, сохраняет заказ со строками и списывает остатки условным
// обновлением. Любая ошибка откатывает транзакцию целиком. Возвращает заказ
// и признак того, что заказ с таким ключом идемпотентности уже существовал.
func (r *PostgresRepository) CreateOrder(ctx context.Context, o NewOrder) (*model.Order, bool, error) {
	order, alreadyExists, err := r.createOrderTx(ctx, o)
	if err != nil {
		var pgErr *pgconn.PgError
		if o.IdempotencyKey != "" && errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			// Параллельный запрос с тем же ключом успел первым.
			existing, getErr := r.getOrderByIdempotencyKey(ctx, o.IdempotencyKey)
			if getErr != nil {
				return nil, false, fmt.Errorf("get order by idempotency key: %w", getErr)
			}
			return existing, true, nil
		}
		return nil, false, err
	}

	return order, alreadyExists, nil
}

func (r *PostgresRepository) createOrderTx(ctx context.Context, o NewOrder) (*model.Order, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if o.IdempotencyKey != "" {
		existing, err := r.orderByIdempotencyKey(ctx, tx, o.IdempotencyKey)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, false, fmt.Errorf("check idempotency key: %w", err)
		}
		if existing != nil {
			return existing, true, nil
		}
	}

	userID, err := r.resolveBuyer(ctx, tx, o)
	if err != nil {
		return nil, false, err
	}

	// Первый проход: блокируем товары, проверяем наличие и требование вкуса,
	// считаем сумму по текущим ценам.
	products := make(map[string]checkoutProduct, len(o.Items))
	var totalCents int64
	for _, it := range o.Items {
		p, ok := products[it.ProductID]
		if !ok {
			row := tx.QueryRow(ctx,
				`SELECT p.name, p.price_cents, c.requires_flavor
				 FROM products p
				 JOIN categories c ON c.id = p.category_id
				 WHERE p.id = $1 AND p.is_active = true
				 FOR UPDATE OF p`,
				it.ProductID,
			)
			if err := row.Scan(&p.name, &p.priceCents, &p.requiresFlavor); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return nil, false, fmt.Errorf("%w: %s", ErrProductNotFound, it.ProductID)
				}
				return nil, false, fmt.Errorf("select product: %w", err)
			}
			products[it.ProductID] = p
		}

		if p.requiresFlavor && it.FlavorName == "" {
			return nil, false, fmt.Errorf("%w: %s", ErrFlavorRequired, it.ProductID)
		}
		if !p.requiresFlavor && it.FlavorName != "" {
			return nil, false, fmt.Errorf("%w: %s/%s", ErrFlavorNotFound, it.ProductID, it.FlavorName)
		}

		totalCents += p.priceCents * int64(it.Quantity)
	}

	order := &model.Order{
		UserID:          userID,
		TotalCents:      totalCents,
		TotalAmount:     float64(totalCents) / 100,
		Status:          model.OrderStatusPending,
		DeliveryAddress: o.DeliveryAddress,
		Phone:           o.Phone,
		Notes:           o.Notes,
	}

	var key *string
	if o.IdempotencyKey != "" {
		key = &o.IdempotencyKey
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO orders (user_id, total_cents, status, delivery_address, phone, notes, idempotency_key)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at, updated_at`,
		userID, totalCents, string(order.Status), o.DeliveryAddress, o.Phone, o.Notes, key,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("insert order: %w", err)
	}

	// Второй проход: строки заказа и условное списание остатков в порядке
	// поступления позиций.
	flavored := make(map[string]struct{})
	for _, it := range o.Items {
		p := products[it.ProductID]

		item := model.OrderItem{
			ProductID:   it.ProductID,
			ProductName: p.name,
			FlavorName:  it.FlavorName,
			Quantity:    it.Quantity,
			PriceCents:  p.priceCents,
			Price:       float64(p.priceCents) / 100,
		}

		var flavor *string
		if it.FlavorName != "" {
			flavor = &it.FlavorName
		}

		err = tx.QueryRow(ctx,
			`INSERT INTO order_items (order_id, product_id, flavor_name, quantity, price_cents)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING id`,
			order.ID, it.ProductID, flavor, it.Quantity, p.priceCents,
		).Scan(&item.ID)
		if err != nil {
			return nil, false, fmt.Errorf("insert order item: %w", err)
		}

		if err := r.decrementStock(ctx, tx, it); err != nil {
			return nil, false, err
		}

		if it.FlavorName != "" {
			flavored[it.ProductID] = struct{}{}
		}

		order.Items = append(order.Items, item)
	}

	// Агрегированный остаток товара со вкусами всегда пересчитывается как
	// сумма по вкусам, при нулевой сумме товар скрывается из каталога.
	for productID := range flavored {
		if err := recomputeAggregateStock(ctx, tx, productID); err != nil {
			return nil, false, err
		}
	}
	for _, it := range o.Items {
		if it.FlavorName == "" {
			_, err := tx.Exec(ctx,
				`UPDATE products SET is_active = false, updated_at = now() WHERE id = $1 AND stock = 0`,
				it.ProductID,
			)
			if err != nil {
				return nil, false, fmt.Errorf("deactivate product: %w", err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("commit tx: %w", err)
	}

	return order, false, nil
}

// decrementStock выполняет условное списание: UPDATE затрагивает строку
// только при достаточном остатке, гонка параллельных заказов не может
// увести остаток в минус.
func (r *PostgresRepository) decrementStock(ctx context.Context, tx pgx.Tx, it NewOrderItem) error {
	if it.FlavorName != "" {
		cmdTag, err := tx.Exec(ctx,
			`UPDATE product_flavors
			 SET stock = stock - $3
			 WHERE product_id = $1 AND flavor_name = $2 AND stock >= $3`,
			it.ProductID, it.FlavorName, it.Quantity,
		)
		if err != nil {
			return fmt.Errorf("decrement flavor stock: %w", err)
		}
		if cmdTag.RowsAffected() == 1 {
			return nil
		}

		var exists bool
		err = tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM product_flavors WHERE product_id = $1 AND flavor_name = $2)`,
			it.ProductID, it.FlavorName,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check flavor: %w", err)
		}
		if !exists {
			return fmt.Errorf("%w: %s/%s", ErrFlavorNotFound, it.ProductID, it.FlavorName)
		}
		return fmt.Errorf("%w: %s/%s", ErrInsufficientStock, it.ProductID, it.FlavorName)
	}

	cmdTag, err := tx.Exec(ctx,
		`UPDATE products
		 SET stock = stock - $2, updated_at = now()
		 WHERE id = $1 AND stock >= $2`,
		it.ProductID, it.Quantity,
	)
	if err != nil {
		return fmt.Errorf("decrement product stock: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrInsufficientStock, it.ProductID)
	}
	return nil
}

func recomputeAggregateStock(ctx context.Context, tx pgx.Tx, productID string) error {
	_, err := tx.Exec(ctx,
		`UPDATE products p SET
		     stock = COALESCE((SELECT SUM(f.stock) FROM product_flavors f WHERE f.product_id = p.id), 0),
		     is_active = CASE
		         WHEN COALESCE((SELECT SUM(f.stock) FROM product_flavors f WHERE f.product_id = p.id), 0) = 0
		         THEN false
		         ELSE p.is_active
		     END,
		     updated_at = now()
		 WHERE p.id = $1`,
		productID,
	)
	if err != nil {
		return fmt.Errorf("recompute aggregate stock: %w", err)
	}
	return nil
}

// resolveBuyer возвращает идентификатор покупателя: либо проверяет
// существующий, либо создаёт/обновляет запись по телеграм-аккаунту.
func (r *PostgresRepository) resolveBuyer(ctx context.Context, tx pgx.Tx, o NewOrder) (int64, error) {
	if o.UserID != 0 {
		var id int64
		err := tx.QueryRow(ctx, `SELECT id FROM users WHERE id = $1`, o.UserID).Scan(&id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return 0, fmt.Errorf("%w: %d", ErrUserNotFound, o.UserID)
			}
			return 0, fmt.Errorf("select user: %w", err)
		}
		return id, nil
	}

	var id int64
	err := tx.QueryRow(ctx,
		`INSERT INTO users (telegram_id, telegram_username, first_name, phone)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (telegram_id) DO UPDATE SET
		     telegram_username = EXCLUDED.telegram_username,
		     first_name = EXCLUDED.first_name,
		     phone = EXCLUDED.phone
		 RETURNING id`,
		o.TelegramID, o.TelegramUsername, o.FirstName, o.Phone,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert user: %w", err)
	}
	return id, nil
}

// querier объединяет pgx.Tx и pgxpool.Pool для читающих запросов.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadOrderItems(ctx context.Context, q querier, orderID int64) ([]model.OrderItem, error) {
	rows, err := q.Query(ctx,
		`SELECT i.id, i.product_id, p.name, i.flavor_name, i.quantity, i.price_cents
		 FROM order_items i
		 JOIN products p ON p.id = i.product_id
		 WHERE i.order_id = $1
		 ORDER BY i.id`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	var items []model.OrderItem
	for rows.Next() {
		var (
			item   model.OrderItem
			flavor *string
		)
		err := rows.Scan(&item.ID, &item.ProductID, &item.ProductName, &flavor, &item.Quantity, &item.PriceCents)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		if flavor != nil {
			item.FlavorName = *flavor
		}
		item.Price = float64(item.PriceCents) / 100
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return items, nil
}

func (r *PostgresRepository) orderByIdempotencyKey(ctx context.Context, tx pgx.Tx, key string) (*model.Order, error) {
	row := tx.QueryRow(ctx,
		`SELECT id, user_id, total_cents, status, delivery_address, phone, notes, created_at, updated_at
		 FROM orders WHERE idempotency_key = $1`,
		key,
	)
	var o model.Order
	err := row.Scan(&o.ID, &o.UserID, &o.TotalCents, &o.Status, &o.DeliveryAddress, &o.Phone, &o.Notes, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("select order by key: %w", err)
	}
	o.TotalAmount = float64(o.TotalCents) / 100

	if o.Items, err = loadOrderItems(ctx, tx, o.ID); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *PostgresRepository) getOrderByIdempotencyKey(ctx context.Context, key string) (*model.Order, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, user_id, total_cents, status, delivery_address, phone, notes, created_at, updated_at
		 FROM orders WHERE idempotency_key = $1`,
		key,
	)
	var o model.Order
	err := row.Scan(&o.ID, &o.UserID, &o.TotalCents, &o.Status, &o.DeliveryAddress, &o.Phone, &o.Notes, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.TotalAmount = float64(o.TotalCents) / 100

	if o.Items, err = loadOrderItems(ctx, r.pool, o.ID); err != nil {
		return nil, err
	}
	return &o, nil
}

// GetProducts возвращает товары каталога вместе со вкусами.
// При onlyActive=true скрытые товары не возвращаются.
func (r *PostgresRepository) GetProducts(ctx context.Context, onlyActive bool) ([]model.Product, error) {
	query := `SELECT p.id, p.name, p.category_id, p.price_cents, p.description, p.image_url,
	                 p.stock, p.is_active, p.created_at, p.updated_at,
	                 f.flavor_name, f.stock
	          FROM products p
	          LEFT JOIN product_flavors f ON f.product_id = p.id`
	if onlyActive {
		query += ` WHERE p.is_active = true`
	}
	query += ` ORDER BY p.name, f.flavor_name`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	var products []model.Product
	index := make(map[string]int)

	for rows.Next() {
		var (
			p           model.Product
			flavorName  *string
			flavorStock *int64
		)
		err := rows.Scan(&p.ID, &p.Name, &p.CategoryID, &p.PriceCents, &p.Description, &p.ImageURL,
			&p.Stock, &p.IsActive, &p.CreatedAt, &p.UpdatedAt, &flavorName, &flavorStock)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}

		i, ok := index[p.ID]
		if !ok {
			p.Price = float64(p.PriceCents) / 100
			products = append(products, p)
			i = len(products) - 1
			index[p.ID] = i
		}

		if flavorName != nil {
			products[i].Flavors = append(products[i].Flavors, model.Flavor{
				Name:  *flavorName,
				Stock: *flavorStock,
			})
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return products, nil
}

// GetProductByID возвращает товар со вкусами по идентификатору.
func (r *PostgresRepository) GetProductByID(ctx context.Context, id string, onlyActive bool) (*model.Product, error) {
	query := `SELECT id, name, category_id, price_cents, description, image_url,
	                 stock, is_active, created_at, updated_at
	          FROM products WHERE id = $1`
	if onlyActive {
		query += ` AND is_active = true`
	}

	var p model.Product
	err := r.pool.QueryRow(ctx, query, id).Scan(&p.ID, &p.Name, &p.CategoryID, &p.PriceCents,
		&p.Description, &p.ImageURL, &p.Stock, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("select product: %w", err)
	}
	p.Price = float64(p.PriceCents) / 100

	rows, err := r.pool.Query(ctx,
		`SELECT flavor_name, stock FROM product_flavors WHERE product_id = $1 ORDER BY flavor_name`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("select flavors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var f model.Flavor
		if err := rows.Scan(&f.Name, &f.Stock); err != nil {
			return nil, fmt.Errorf("scan flavor: %w", err)
		}
		p.Flavors = append(p.Flavors, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &p, nil
}

// GetCategories возвращает список категорий.
func (r *PostgresRepository) GetCategories(ctx context.Context) ([]model.Category, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, requires_flavor FROM categories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("select categories: %w", err)
	}
	defer rows.Close()

	var res []model.Category
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.RequiresFlavor); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		res = append(res, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// CreateProduct создаёт товар и его вкусы. Остаток товара со вкусами
// устанавливается равным сумме остатков по вкусам.
func (r *PostgresRepository) CreateProduct(ctx context.Context, p model.Product) (*model.Product, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	p.ID = uuid.NewString()

	stock := p.Stock
	if len(p.Flavors) > 0 {
		stock = 0
		for _, f := range p.Flavors {
			stock += f.Stock
		}
	}
	p.Stock = stock

	err = tx.QueryRow(ctx,
		`INSERT INTO products (id, name, category_id, price_cents, description, image_url, stock)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING is_active, created_at, updated_at`,
		p.ID, p.Name, p.CategoryID, p.PriceCents, p.Description, p.ImageURL, p.Stock,
	).Scan(&p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert product: %w", err)
	}

	for _, f := range p.Flavors {
		_, err := tx.Exec(ctx,
			`INSERT INTO product_flavors (product_id, flavor_name, stock) VALUES ($1, $2, $3)`,
			p.ID, f.Name, f.Stock,
		)
		if err != nil {
			return nil, fmt.Errorf("insert flavor: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	p.Price = float64(p.PriceCents) / 100
	return &p, nil
}

// ProductUpdate описывает частичное обновление товара. Нулевой указатель
// оставляет поле без изменений.
type ProductUpdate struct {
	Name        *string
	CategoryID  *model.CategoryID
	PriceCents  *int64
	Description *string
	ImageURL    *string
	Stock       *int64
	IsActive    *bool
}

// UpdateProduct обновляет поля товара по схеме COALESCE.
func (r *PostgresRepository) UpdateProduct(ctx context.Context, id string, u ProductUpdate) (*model.Product, error) {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE products SET
		     name = COALESCE($1, name),
		     category_id = COALESCE($2, category_id),
		     price_cents = COALESCE($3, price_cents),
		     description = COALESCE($4, description),
		     image_url = COALESCE($5, image_url),
		     stock = COALESCE($6, stock),
		     is_active = COALESCE($7, is_active),
		     updated_at = now()
		 WHERE id = $8`,
		u.Name, u.CategoryID, u.PriceCents, u.Description, u.ImageURL, u.Stock, u.IsActive, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return nil, ErrProductNotFound
	}

	return r.GetProductByID(ctx, id, false)
}

// DeleteProduct скрывает товар из каталога (мягкое удаление): строка
// остаётся для ссылочной целостности исторических заказов.
func (r *PostgresRepository) DeleteProduct(ctx context.Context, id string) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE products SET is_active = false, updated_at = now() WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("soft delete product: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

// SetFlavorStock устанавливает остаток вкуса и пересчитывает агрегированный
// остаток товара. Единственный путь прямой правки остатков для админки,
// инвариант stock >= 0 и скрытие товара при нулевой сумме сохраняются.
func (r *PostgresRepository) SetFlavorStock(ctx context.Context, productID, flavorName string, stock int64) (*model.Product, error) {
	if stock < 0 {
		return nil, fmt.Errorf("%w: %s/%s", ErrInsufficientStock, productID, flavorName)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var requiresFlavor bool
	err = tx.QueryRow(ctx,
		`SELECT c.requires_flavor
		 FROM products p
		 JOIN categories c ON c.id = p.category_id
		 WHERE p.id = $1`,
		productID,
	).Scan(&requiresFlavor)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
		}
		return nil, fmt.Errorf("check product: %w", err)
	}
	if !requiresFlavor {
		return nil, fmt.Errorf("%w: %s", ErrFlavorNotAllowed, productID)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO product_flavors (product_id, flavor_name, stock)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (product_id, flavor_name) DO UPDATE SET stock = EXCLUDED.stock`,
		productID, flavorName, stock,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert flavor stock: %w", err)
	}

	if err := recomputeAggregateStock(ctx, tx, productID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return r.GetProductByID(ctx, productID, false)
}

// GetOrders возвращает заказы со строками для админ-панели, новые первыми.
func (r *PostgresRepository) GetOrders(ctx context.Context) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT o.id, o.user_id, o.total_cents, o.status, o.delivery_address, o.phone, o.notes,
		        o.created_at, o.updated_at
		 FROM orders o
		 ORDER BY o.created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	index := make(map[int64]int)

	for rows.Next() {
		var o model.Order
		err := rows.Scan(&o.ID, &o.UserID, &o.TotalCents, &o.Status, &o.DeliveryAddress,
			&o.Phone, &o.Notes, &o.CreatedAt, &o.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.TotalAmount = float64(o.TotalCents) / 100
		index[o.ID] = len(orders)
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	if len(orders) == 0 {
		return orders, nil
	}

	itemRows, err := r.pool.Query(ctx,
		`SELECT i.order_id, i.id, i.product_id, p.name, i.flavor_name, i.quantity, i.price_cents
		 FROM order_items i
		 JOIN products p ON p.id = i.product_id
		 ORDER BY i.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var (
			orderID int64
			item    model.OrderItem
			flavor  *string
		)
		err := itemRows.Scan(&orderID, &item.ID, &item.ProductID, &item.ProductName, &flavor,
			&item.Quantity, &item.PriceCents)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		if flavor != nil {
			item.FlavorName = *flavor
		}
		item.Price = float64(item.PriceCents) / 100

		if i, ok := index[orderID]; ok {
			orders[i].Items = append(orders[i].Items, item)
		}
	}
	if err := itemRows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return orders, nil
}

// UpdateOrderStatus переводит заказ в новый статус с проверкой графа
// переходов под блокировкой строки заказа.
func (r *PostgresRepository) UpdateOrderStatus(ctx context.Context, orderID int64, to model.OrderStatus) (*model.Order, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var current model.OrderStatus
	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1 FOR UPDATE`, orderID).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", ErrOrderNotFound, orderID)
		}
		return nil, fmt.Errorf("select order status: %w", err)
	}

	if !model.CanTransition(current, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrStatusTransition, current, to)
	}

	var o model.Order
	err = tx.QueryRow(ctx,
		`UPDATE orders SET status = $2, updated_at = now()
		 WHERE id = $1
		 RETURNING id, user_id, total_cents, status, delivery_address, phone, notes, created_at, updated_at`,
		orderID, string(to),
	).Scan(&o.ID, &o.UserID, &o.TotalCents, &o.Status, &o.DeliveryAddress, &o.Phone, &o.Notes,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	o.TotalAmount = float64(o.TotalCents) / 100
	return &o, nil
}

// GetUsersWithStats возвращает покупателей с производными счётчиками заказов.
func (r *PostgresRepository) GetUsersWithStats(ctx context.Context) ([]model.UserSummary, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT u.id, u.telegram_id, u.telegram_username, u.first_name, u.phone, u.created_at,
		        COUNT(o.id), COALESCE(SUM(o.total_cents), 0)
		 FROM users u
		 LEFT JOIN orders o ON o.user_id = u.id AND o.status <> 'cancelled'
		 GROUP BY u.id
		 ORDER BY u.created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}
	defer rows.Close()

	var res []model.UserSummary
	for rows.Next() {
		var u model.UserSummary
		err := rows.Scan(&u.ID, &u.TelegramID, &u.TelegramUsername, &u.FirstName, &u.Phone,
			&u.CreatedAt, &u.OrdersCount, &u.TotalSpentCents)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.TotalSpent = float64(u.TotalSpentCents) / 100
		res = append(res, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// GetUserByID возвращает покупателя по идентификатору.
func (r *PostgresRepository) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, telegram_id, telegram_username, first_name, phone, created_at
		 FROM users WHERE id = $1`,
		id,
	)
	var u model.User
	err := row.Scan(&u.ID, &u.TelegramID, &u.TelegramUsername, &u.FirstName, &u.Phone, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("select user: %w", err)
	}
	return &u, nil
}

// GetStats возвращает сводную статистику магазина.
func (r *PostgresRepository) GetStats(ctx context.Context) (*model.Stats, error) {
	var s model.Stats
	var revenueCents int64

	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(total_cents) FILTER (WHERE status <> 'cancelled'), 0),
		        COUNT(*) FILTER (WHERE status = 'pending'),
		        COUNT(*) FILTER (WHERE status = 'completed')
		 FROM orders`,
	).Scan(&s.TotalOrders, &revenueCents, &s.PendingOrders, &s.CompletedOrders)
	if err != nil {
		return nil, fmt.Errorf("orders stats: %w", err)
	}

	err = r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&s.TotalUsers)
	if err != nil {
		return nil, fmt.Errorf("users count: %w", err)
	}

	err = r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products WHERE is_active = true`).Scan(&s.ActiveProducts)
	if err != nil {
		return nil, fmt.Errorf("products count: %w", err)
	}

	s.TotalRevenue = float64(revenueCents) / 100
	return &s, nil
}
