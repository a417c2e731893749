// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/marketplace-system/internal/cart"
	"github.com/mmeshcher/marketplace-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserExists возвращается при попытке создать пользователя с уже существующим email.
var (
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrShopNotFound возвращается, если магазин не найден.
	ErrShopNotFound = errors.New("shop not found")
	// ErrProductNotFound возвращается, если товар не найден.
	ErrProductNotFound = errors.New("product not found")
	// ErrOfferNotFound возвращается, если предложение товара в магазине не найдено.
	ErrOfferNotFound = errors.New("product offer not found")
	// ErrCartNotFound возвращается при отсутствии активной корзины.
	ErrCartNotFound = errors.New("active cart not found")
	// ErrCartItemNotFound возвращается, если позиция отсутствует в корзине.
	ErrCartItemNotFound = errors.New("cart item not found")
	// ErrOrderExists возвращается, если у корзины уже есть незавершённый заказ.
	ErrOrderExists = errors.New("active order already exists")
	// ErrOrderNotFound возвращается при отсутствии активного заказа.
	ErrOrderNotFound = errors.New("active order not found")
	// ErrDeliveryNotFound возвращается, если вариант доставки не найден.
	ErrDeliveryNotFound = errors.New("delivery not found")
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

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
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

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		// Если ошибка контекста — выходим сразу
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		// Ретраи полезны для Serialization Failure и Deadlocks.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		// Если это не pg-ошибка, но сетевая
		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

func parseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse decimal %q: %w", s, err)
	}
	return d, nil
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateUser создаёт нового пользователя.
func (r *PostgresRepository) CreateUser(ctx context.Context, email string, passwordHash []byte) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (email, password_hash) VALUES ($1, $2) RETURNING id`,
		email, passwordHash,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrUserExists, email)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetUserByEmail возвращает пользователя по email.
func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE email = $1`,
		email,
	)

	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &u, nil
}

// lockActiveCart создаёт при необходимости активную корзину пользователя и
// блокирует её строку до конца транзакции.
func (r *PostgresRepository) lockActiveCart(ctx context.Context, tx pgx.Tx, userID int64) (int64, error) {
	_, err := tx.Exec(ctx,
		`INSERT INTO carts (user_id) VALUES ($1)
		 ON CONFLICT (user_id) WHERE status = 'active' DO NOTHING`,
		userID,
	)
	if err != nil {
		return 0, fmt.Errorf("insert cart: %w", err)
	}

	var cartID int64
	err = tx.QueryRow(ctx,
		`SELECT id FROM carts WHERE user_id = $1 AND status = 'active' FOR UPDATE`,
		userID,
	).Scan(&cartID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrCartNotFound
		}
		return 0, fmt.Errorf("lock cart: %w", err)
	}

	return cartID, nil
}

// AddCartItem добавляет товар в корзину пользователя и пересчитывает
// денормализованные итоги корзины в той же транзакции.
func (r *PostgresRepository) AddCartItem(ctx context.Context, userID, productID int64, quantity int, price decimal.Decimal) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	cartID, err := r.lockActiveCart(ctx, tx, userID)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO cart_lines (cart_id, product_id, quantity, price)
		 VALUES ($1, $2, $3, $4::numeric)
		 ON CONFLICT (cart_id, product_id)
		 DO UPDATE SET quantity = cart_lines.quantity + EXCLUDED.quantity`,
		cartID, productID, quantity, price.String(),
	)
	if err != nil {
		return fmt.Errorf("upsert cart line: %w", err)
	}

	added := price.Mul(decimal.NewFromInt(int64(quantity)))
	_, err = tx.Exec(ctx,
		`UPDATE carts
		 SET quantity = quantity + $2, total_price = total_price + $3::numeric
		 WHERE id = $1`,
		cartID, quantity, added.String(),
	)
	if err != nil {
		return fmt.Errorf("update cart totals: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// ChangeCartItemQuantity прибавляет знаковую дельту к количеству позиции.
// Позиция с неположительным остатком удаляется. Итоги корзины не опускаются
// ниже нуля.
func (r *PostgresRepository) ChangeCartItemQuantity(ctx context.Context, userID, productID int64, delta int) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	cartID, err := r.lockActiveCart(ctx, tx, userID)
	if err != nil {
		return err
	}

	var (
		quantity int
		priceStr string
	)
	err = tx.QueryRow(ctx,
		`SELECT quantity, price::text FROM cart_lines
		 WHERE cart_id = $1 AND product_id = $2 FOR UPDATE`,
		cartID, productID,
	).Scan(&quantity, &priceStr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrCartItemNotFound
		}
		return fmt.Errorf("select cart line: %w", err)
	}

	price, err := parseDecimal(priceStr)
	if err != nil {
		return err
	}

	applied := delta
	newQuantity := quantity + delta
	if newQuantity <= 0 {
		applied = -quantity
		_, err = tx.Exec(ctx,
			`DELETE FROM cart_lines WHERE cart_id = $1 AND product_id = $2`,
			cartID, productID,
		)
	} else {
		_, err = tx.Exec(ctx,
			`UPDATE cart_lines SET quantity = $3 WHERE cart_id = $1 AND product_id = $2`,
			cartID, productID, newQuantity,
		)
	}
	if err != nil {
		return fmt.Errorf("update cart line: %w", err)
	}

	diff := price.Mul(decimal.NewFromInt(int64(applied)))
	_, err = tx.Exec(ctx,
		`UPDATE carts
		 SET quantity = GREATEST(quantity + $2, 0),
		     total_price = GREATEST(total_price + $3::numeric, 0)
		 WHERE id = $1`,
		cartID, applied, diff.String(),
	)
	if err != nil {
		return fmt.Errorf("update cart totals: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// RemoveCartItem удаляет позицию из корзины и корректирует итоги.
func (r *PostgresRepository) RemoveCartItem(ctx context.Context, userID, productID int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	cartID, err := r.lockActiveCart(ctx, tx, userID)
	if err != nil {
		return err
	}

	var (
		quantity int
		priceStr string
	)
	err = tx.QueryRow(ctx,
		`DELETE FROM cart_lines WHERE cart_id = $1 AND product_id = $2
		 RETURNING quantity, price::text`,
		cartID, productID,
	).Scan(&quantity, &priceStr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrCartItemNotFound
		}
		return fmt.Errorf("delete cart line: %w", err)
	}

	price, err := parseDecimal(priceStr)
	if err != nil {
		return err
	}

	removed := price.Mul(decimal.NewFromInt(int64(quantity)))
	_, err = tx.Exec(ctx,
		`UPDATE carts
		 SET quantity = GREATEST(quantity - $2, 0),
		     total_price = GREATEST(total_price - $3::numeric, 0)
		 WHERE id = $1`,
		cartID, quantity, removed.String(),
	)
	if err != nil {
		return fmt.Errorf("update cart totals: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetCartLines возвращает позиции активной корзины пользователя.
func (r *PostgresRepository) GetCartLines(ctx context.Context, userID int64) ([]cart.Line, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT l.product_id, l.quantity, l.price::text
		 FROM cart_lines l
		 JOIN carts c ON c.id = l.cart_id
		 WHERE c.user_id = $1 AND c.status = 'active'
		 ORDER BY l.id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select cart lines: %w", err)
	}
	defer rows.Close()

	var lines []cart.Line
	for rows.Next() {
		var (
			productID int64
			quantity  int
			priceStr  string
		)
		if err := rows.Scan(&productID, &quantity, &priceStr); err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}

		price, err := parseDecimal(priceStr)
		if err != nil {
			return nil, err
		}

		lines = append(lines, cart.Line{
			ProductID: productID,
			Quantity:  quantity,
			Price:     price,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return lines, nil
}

// GetCartTotals возвращает денормализованные итоги активной корзины.
// Отсутствие корзины трактуется как пустая корзина.
func (r *PostgresRepository) GetCartTotals(ctx context.Context, userID int64) (decimal.Decimal, int, error) {
	var (
		totalStr string
		quantity int
	)
	err := r.pool.QueryRow(ctx,
		`SELECT total_price::text, quantity FROM carts
		 WHERE user_id = $1 AND status = 'active'`,
		userID,
	).Scan(&totalStr, &quantity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, 0, nil
		}
		return decimal.Zero, 0, fmt.Errorf("select cart totals: %w", err)
	}

	total, err := parseDecimal(totalStr)
	if err != nil {
		return decimal.Zero, 0, err
	}

	return total, quantity, nil
}
