package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mmeshcher/marketplace-system/internal/model"
)

// CreateOrder создаёт заказ для активной корзины пользователя. Частичный
// уникальный индекс гарантирует не более одного незавершённого заказа на корзину.
func (r *PostgresRepository) CreateOrder(ctx context.Context, userID int64) (*model.Order, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		cartID   int64
		totalStr string
	)
	err = tx.QueryRow(ctx,
		`SELECT id, total_price::text FROM carts
		 WHERE user_id = $1 AND status = 'active'`,
		userID,
	).Scan(&cartID, &totalStr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("select cart: %w", err)
	}

	total, err := parseDecimal(totalStr)
	if err != nil {
		return nil, err
	}

	var (
		orderID   int64
		createdAt time.Time
	)
	err = tx.QueryRow(ctx,
		`INSERT INTO orders (cart_id, total_price) VALUES ($1, $2::numeric)
		 RETURNING id, created_at`,
		cartID, total.String(),
	).Scan(&orderID, &createdAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, ErrOrderExists
		}
		return nil, fmt.Errorf("insert order: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &model.Order{
		ID:            orderID,
		CartID:        cartID,
		PaymentMethod: model.PaymentMethodOnline,
		Status:        model.OrderStatusActive,
		TotalPrice:    total,
		CreatedAt:     createdAt,
	}, nil
}

func scanOrder(row pgx.Row) (*model.Order, error) {
	var (
		o        model.Order
		totalStr string
		status   string
		method   string
	)
	err := row.Scan(
		&o.ID, &o.CartID, &o.DeliveryID, &method, &status,
		&o.Address.Country, &o.Address.Locality, &o.Address.Street,
		&o.Address.House, &o.Address.Apartment, &o.Address.Entrance,
		&o.Address.Floor, &totalStr, &o.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}

	o.PaymentMethod = model.PaymentMethod(method)
	o.Status = model.OrderStatus(status)
	o.TotalPrice, err = parseDecimal(totalStr)
	if err != nil {
		return nil, err
	}

	return &o, nil
}

const orderColumns = `o.id, o.cart_id, o.delivery_id, o.payment_method, o.status,
	 o.country, o.locality, o.street, o.house, o.apartment, o.entrance, o.floor,
	 o.total_price::text, o.created_at`

// GetActiveOrder возвращает незавершённый заказ пользователя.
func (r *PostgresRepository) GetActiveOrder(ctx context.Context, userID int64) (*model.Order, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+`
		 FROM orders o
		 JOIN carts c ON c.id = o.cart_id
		 WHERE c.user_id = $1 AND o.status = 'active'
		 ORDER BY o.created_at
		 LIMIT 1`,
		userID,
	)
	return scanOrder(row)
}

// ListDeliveries возвращает доступные варианты доставки.
func (r *PostgresRepository) ListDeliveries(ctx context.Context) ([]model.Delivery, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, kind, price::text, express_price::text, free_threshold::text
		 FROM deliveries ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("select deliveries: %w", err)
	}
	defer rows.Close()

	var res []model.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

func scanDelivery(row pgx.Row) (*model.Delivery, error) {
	var (
		d            model.Delivery
		kind         string
		priceStr     string
		expressStr   string
		thresholdStr string
	)
	if err := row.Scan(&d.ID, &kind, &priceStr, &expressStr, &thresholdStr); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDeliveryNotFound
		}
		return nil, fmt.Errorf("scan delivery: %w", err)
	}

	d.Kind = model.DeliveryKind(kind)

	var err error
	if d.Price, err = parseDecimal(priceStr); err != nil {
		return nil, err
	}
	if d.ExpressPrice, err = parseDecimal(expressStr); err != nil {
		return nil, err
	}
	if d.FreeThreshold, err = parseDecimal(thresholdStr); err != nil {
		return nil, err
	}

	return &d, nil
}

// SetOrderDelivery выбирает доставку и адрес для незавершённого заказа и
// пересчитывает его сумму: стоимость корзины плюс стоимость доставки.
// Для обычной доставки сверх порога бесплатной, как и для экспресса,
// применяется экспресс-наценка.
func (r *PostgresRepository) SetOrderDelivery(ctx context.Context, userID, deliveryID int64, addr model.Address) (*model.Order, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		orderID      int64
		cartID       int64
		cartTotalStr string
	)
	err = tx.QueryRow(ctx,
		`SELECT o.id, c.id, c.total_price::text
		 FROM orders o
		 JOIN carts c ON c.id = o.cart_id
		 WHERE c.user_id = $1 AND o.status = 'active'
		 FOR UPDATE OF o`,
		userID,
	).Scan(&orderID, &cartID, &cartTotalStr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("select order: %w", err)
	}

	cartTotal, err := parseDecimal(cartTotalStr)
	if err != nil {
		return nil, err
	}

	delivery, err := scanDelivery(tx.QueryRow(ctx,
		`SELECT id, kind, price::text, express_price::text, free_threshold::text
		 FROM deliveries WHERE id = $1`,
		deliveryID,
	))
	if err != nil {
		return nil, err
	}

	deliveryPrice := delivery.Price
	if delivery.Kind == model.DeliveryExpress ||
		(delivery.Kind == model.DeliveryStandard && cartTotal.GreaterThan(delivery.FreeThreshold)) {
		deliveryPrice = delivery.ExpressPrice
	}
	orderTotal := cartTotal.Add(deliveryPrice)

	row := tx.QueryRow(ctx,
		`UPDATE orders o
		 SET delivery_id = $2, country = $3, locality = $4, street = $5,
		     house = $6, apartment = $7, entrance = $8, floor = $9,
		     total_price = $10::numeric
		 WHERE o.id = $1
		 RETURNING `+orderColumns,
		orderID, deliveryID, addr.Country, addr.Locality, addr.Street,
		addr.House, addr.Apartment, addr.Entrance, addr.Floor, orderTotal.String(),
	)

	order, err := scanOrder(row)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return order, nil
}

// SetOrderPaymentMethod выбирает способ оплаты незавершённого заказа.
func (r *PostgresRepository) SetOrderPaymentMethod(ctx context.Context, userID int64, method model.PaymentMethod) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE orders o
		 SET payment_method = $2
		 FROM carts c
		 WHERE c.id = o.cart_id AND c.user_id = $1 AND o.status = 'active'`,
		userID, string(method),
	)
	if err != nil {
		return fmt.Errorf("update payment method: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// OrderHistory описывает заказ пользователя вместе с результатом оплаты.
type OrderHistory struct {
	Order   model.Order
	Payment *model.Payment
}

// GetOrdersByUser возвращает историю заказов пользователя.
func (r *PostgresRepository) GetOrdersByUser(ctx context.Context, userID int64) ([]OrderHistory, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT o.id, o.cart_id, o.delivery_id, o.payment_method, o.status,
		        o.country, o.locality, o.street, o.house, o.apartment, o.entrance,
		        o.floor, o.total_price::text, o.created_at,
		        p.id, p.price::text, p.proven, p.created_at
		 FROM orders o
		 JOIN carts c ON c.id = o.cart_id
		 LEFT JOIN payments p ON p.order_id = o.id
		 WHERE c.user_id = $1
		 ORDER BY o.created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var res []OrderHistory
	for rows.Next() {
		var (
			o           model.Order
			totalStr    string
			status      string
			method      string
			payID       *int64
			payPriceStr *string
			payProven   *bool
			payCreated  *time.Time
		)
		err := rows.Scan(
			&o.ID, &o.CartID, &o.DeliveryID, &method, &status,
			&o.Address.Country, &o.Address.Locality, &o.Address.Street,
			&o.Address.House, &o.Address.Apartment, &o.Address.Entrance,
			&o.Address.Floor, &totalStr, &o.CreatedAt,
			&payID, &payPriceStr, &payProven, &payCreated,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}

		o.PaymentMethod = model.PaymentMethod(method)
		o.Status = model.OrderStatus(status)
		if o.TotalPrice, err = parseDecimal(totalStr); err != nil {
			return nil, err
		}

		h := OrderHistory{Order: o}
		if payID != nil {
			price, err := parseDecimal(*payPriceStr)
			if err != nil {
				return nil, err
			}
			h.Payment = &model.Payment{
				ID:        *payID,
				OrderID:   o.ID,
				Price:     price,
				Proven:    *payProven,
				CreatedAt: *payCreated,
			}
		}

		res = append(res, h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// FinalizeOrder фиксирует результат оплаты: завершает заказ независимо от
// исхода, сохраняет запись об оплате и при успехе завершает привязанную
// корзину. Все записи выполняются в одной транзакции. Повторная финализация
// уже завершённого заказа и неизвестный номер заказа — no-op.
func (r *PostgresRepository) FinalizeOrder(ctx context.Context, orderNumber int64, success bool) error {
	return r.withRetry(ctx, func() error {
		return r.finalizeOrder(ctx, orderNumber, success)
	})
}

func (r *PostgresRepository) finalizeOrder(ctx context.Context, orderNumber int64, success bool) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		cartID   int64
		status   string
		totalStr string
	)
	err = tx.QueryRow(ctx,
		`SELECT cart_id, status, total_price::text FROM orders
		 WHERE id = $1 FOR UPDATE`,
		orderNumber,
	).Scan(&cartID, &status, &totalStr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Заказ с таким номером отсутствует — молчаливый no-op.
			return nil
		}
		return fmt.Errorf("select order: %w", err)
	}

	// Заказ уже завершён: результат уже применён по другому пути доставки.
	if model.OrderStatus(status) == model.OrderStatusCompleted {
		return nil
	}

	total, err := parseDecimal(totalStr)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		`UPDATE orders SET status = $2 WHERE id = $1`,
		orderNumber, string(model.OrderStatusCompleted),
	)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO payments (order_id, price, proven)
		 VALUES ($1, $2::numeric, $3)
		 ON CONFLICT (order_id)
		 DO UPDATE SET price = EXCLUDED.price, proven = EXCLUDED.proven`,
		orderNumber, total.String(), success,
	)
	if err != nil {
		return fmt.Errorf("upsert payment: %w", err)
	}

	// Корзина завершается только при успешной оплате, при отказе она
	// остаётся активной.
	if success {
		_, err = tx.Exec(ctx,
			`UPDATE carts SET status = $2 WHERE id = $1 AND status = $3`,
			cartID, string(model.CartStatusCompleted), string(model.CartStatusActive),
		)
		if err != nil {
			return fmt.Errorf("update cart status: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// PaymentByOrder возвращает запись об оплате заказа.
func (r *PostgresRepository) PaymentByOrder(ctx context.Context, orderNumber int64) (*model.Payment, error) {
	var (
		p        model.Payment
		priceStr string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, order_id, price::text, proven, created_at
		 FROM payments WHERE order_id = $1`,
		orderNumber,
	).Scan(&p.ID, &p.OrderID, &priceStr, &p.Proven, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("select payment: %w", err)
	}

	if p.Price, err = parseDecimal(priceStr); err != nil {
		return nil, err
	}

	return &p, nil
}
