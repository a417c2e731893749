package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/marketplace-system/internal/model"
)

// GetShopBySlug возвращает магазин по его слагу.
func (r *PostgresRepository) GetShopBySlug(ctx context.Context, slug string) (*model.Shop, error) {
	var s model.Shop
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, description, slug, phone, email
		 FROM shops WHERE slug = $1`,
		slug,
	).Scan(&s.ID, &s.Name, &s.Description, &s.Slug, &s.Phone, &s.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrShopNotFound
		}
		return nil, fmt.Errorf("select shop: %w", err)
	}
	return &s, nil
}

// GetProductBySlug возвращает активную карточку товара по слагу.
func (r *PostgresRepository) GetProductBySlug(ctx context.Context, slug string) (*model.Product, error) {
	var p model.Product
	err := r.pool.QueryRow(ctx,
		`SELECT id, model, description, slug, code, manufacturer,
		        is_active, limited_edition, created_at
		 FROM products WHERE slug = $1 AND is_active`,
		slug,
	).Scan(&p.ID, &p.Model, &p.Description, &p.Slug, &p.Code,
		&p.Manufacturer, &p.IsActive, &p.LimitedEdition, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("select product: %w", err)
	}
	return &p, nil
}

// UpdateProduct сохраняет карточку товара и возвращает её предыдущее
// состояние для слоя инвалидации кеша.
func (r *PostgresRepository) UpdateProduct(ctx context.Context, p model.Product) (*model.Product, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var prev model.Product
	err = tx.QueryRow(ctx,
		`SELECT id, model, description, slug, code, manufacturer,
		        is_active, limited_edition, created_at
		 FROM products WHERE id = $1 FOR UPDATE`,
		p.ID,
	).Scan(&prev.ID, &prev.Model, &prev.Description, &prev.Slug, &prev.Code,
		&prev.Manufacturer, &prev.IsActive, &prev.LimitedEdition, &prev.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("select product: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE products
		 SET model = $2, description = $3, code = $4, manufacturer = $5,
		     is_active = $6, limited_edition = $7
		 WHERE id = $1`,
		p.ID, p.Model, p.Description, p.Code, p.Manufacturer,
		p.IsActive, p.LimitedEdition,
	)
	if err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &prev, nil
}

// GetDiscountsForProduct возвращает скидки товара вместе с их типами.
func (r *PostgresRepository) GetDiscountsForProduct(ctx context.Context, productID int64) ([]model.Discount, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT d.id, d.name, d.slug, d.date_start, d.date_end, d.is_active,
		        d.percent::text, d.value::text,
		        t.id, t.name, t.weight, t.is_active
		 FROM discounts d
		 JOIN discount_types t ON t.id = d.type_id
		 JOIN product_discounts pd ON pd.discount_id = d.id
		 WHERE pd.product_id = $1
		 ORDER BY d.id`,
		productID,
	)
	if err != nil {
		return nil, fmt.Errorf("select discounts: %w", err)
	}
	defer rows.Close()

	var res []model.Discount
	for rows.Next() {
		var (
			d          model.Discount
			percentStr *string
			valueStr   *string
		)
		err := rows.Scan(
			&d.ID, &d.Name, &d.Slug, &d.DateStart, &d.DateEnd, &d.IsActive,
			&percentStr, &valueStr,
			&d.Type.ID, &d.Type.Name, &d.Type.Weight, &d.Type.IsActive,
		)
		if err != nil {
			return nil, fmt.Errorf("scan discount: %w", err)
		}

		if percentStr != nil {
			pct, err := parseDecimal(*percentStr)
			if err != nil {
				return nil, err
			}
			d.Percent = &pct
		}
		if valueStr != nil {
			val, err := parseDecimal(*valueStr)
			if err != nil {
				return nil, err
			}
			d.Value = &val
		}

		res = append(res, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetOffer возвращает предложение товара по идентификатору.
func (r *PostgresRepository) GetOffer(ctx context.Context, offerID int64) (*model.ProductOnShop, error) {
	return scanOffer(r.pool.QueryRow(ctx,
		`SELECT id, shop_id, product_id, quantity, price::text, for_sale
		 FROM product_on_shops WHERE id = $1`,
		offerID,
	))
}

func scanOffer(row pgx.Row) (*model.ProductOnShop, error) {
	var (
		o        model.ProductOnShop
		priceStr string
	)
	err := row.Scan(&o.ID, &o.ShopID, &o.ProductID, &o.Quantity, &priceStr, &o.ForSale)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOfferNotFound
		}
		return nil, fmt.Errorf("scan offer: %w", err)
	}
	if o.Price, err = parseDecimal(priceStr); err != nil {
		return nil, err
	}
	return &o, nil
}

// GetOffersForProduct возвращает предложения товара во всех магазинах.
func (r *PostgresRepository) GetOffersForProduct(ctx context.Context, productSlug string) ([]model.ProductOnShop, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT pos.id, pos.shop_id, pos.product_id, pos.quantity,
		        pos.price::text, pos.for_sale
		 FROM product_on_shops pos
		 JOIN products p ON p.id = pos.product_id
		 WHERE p.slug = $1 AND pos.for_sale
		 ORDER BY pos.id`,
		productSlug,
	)
	if err != nil {
		return nil, fmt.Errorf("select offers: %w", err)
	}
	defer rows.Close()

	var res []model.ProductOnShop
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetMinPrice возвращает минимальную цену товара среди всех предложений.
func (r *PostgresRepository) GetMinPrice(ctx context.Context, productSlug string) (decimal.Decimal, error) {
	var priceStr *string
	err := r.pool.QueryRow(ctx,
		`SELECT MIN(pos.price)::text
		 FROM product_on_shops pos
		 JOIN products p ON p.id = pos.product_id
		 WHERE p.slug = $1 AND pos.for_sale`,
		productSlug,
	).Scan(&priceStr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("select min price: %w", err)
	}
	if priceStr == nil {
		return decimal.Zero, ErrOfferNotFound
	}
	return parseDecimal(*priceStr)
}

// SetOfferPrice обновляет цену предложения и возвращает его предыдущее и
// новое состояние вместе со слагом товара для инвалидации кеша.
func (r *PostgresRepository) SetOfferPrice(ctx context.Context, offerID int64, price decimal.Decimal) (prev, curr *model.ProductOnShop, productSlug string, err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	prev, err = scanOffer(tx.QueryRow(ctx,
		`SELECT id, shop_id, product_id, quantity, price::text, for_sale
		 FROM product_on_shops WHERE id = $1 FOR UPDATE`,
		offerID,
	))
	if err != nil {
		return nil, nil, "", err
	}

	curr, err = scanOffer(tx.QueryRow(ctx,
		`UPDATE product_on_shops SET price = $2::numeric WHERE id = $1
		 RETURNING id, shop_id, product_id, quantity, price::text, for_sale`,
		offerID, price.String(),
	))
	if err != nil {
		return nil, nil, "", err
	}

	err = tx.QueryRow(ctx,
		`SELECT slug FROM products WHERE id = $1`, curr.ProductID,
	).Scan(&productSlug)
	if err != nil {
		return nil, nil, "", fmt.Errorf("select product slug: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, "", fmt.Errorf("commit tx: %w", err)
	}

	return prev, curr, productSlug, nil
}

// AddReview сохраняет отзыв о товаре и возвращает его со слагом товара.
func (r *PostgresRepository) AddReview(ctx context.Context, userID int64, productSlug, text string) (*model.Review, error) {
	var rev model.Review
	err := r.pool.QueryRow(ctx,
		`INSERT INTO reviews (product_id, user_id, review)
		 SELECT p.id, $2, $3 FROM products p WHERE p.slug = $1
		 RETURNING id, product_id, user_id, review, is_active, created_at`,
		productSlug, userID, text,
	).Scan(&rev.ID, &rev.ProductID, &rev.UserID, &rev.Text, &rev.IsActive, &rev.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("insert review: %w", err)
	}
	return &rev, nil
}

// GetReviews возвращает активные отзывы о товаре, новые первыми.
func (r *PostgresRepository) GetReviews(ctx context.Context, productSlug string) ([]model.Review, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT rv.id, rv.product_id, rv.user_id, rv.review, rv.is_active, rv.created_at
		 FROM reviews rv
		 JOIN products p ON p.id = rv.product_id
		 WHERE p.slug = $1 AND rv.is_active
		 ORDER BY rv.created_at DESC`,
		productSlug,
	)
	if err != nil {
		return nil, fmt.Errorf("select reviews: %w", err)
	}
	defer rows.Close()

	var res []model.Review
	for rows.Next() {
		var rev model.Review
		err := rows.Scan(&rev.ID, &rev.ProductID, &rev.UserID, &rev.Text,
			&rev.IsActive, &rev.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		res = append(res, rev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CountReviews возвращает число активных отзывов о товаре.
func (r *PostgresRepository) CountReviews(ctx context.Context, productSlug string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*)
		 FROM reviews rv
		 JOIN products p ON p.id = rv.product_id
		 WHERE p.slug = $1 AND rv.is_active`,
		productSlug,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count reviews: %w", err)
	}
	return count, nil
}

// GetTags возвращает активные теги товара.
func (r *PostgresRepository) GetTags(ctx context.Context, productSlug string) ([]model.Tag, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT t.id, t.name, t.product_id, t.is_active
		 FROM tags t
		 JOIN products p ON p.id = t.product_id
		 WHERE p.slug = $1 AND t.is_active
		 ORDER BY t.id`,
		productSlug,
	)
	if err != nil {
		return nil, fmt.Errorf("select tags: %w", err)
	}
	defer rows.Close()

	var res []model.Tag
	for rows.Next() {
		var t model.Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.ProductID, &t.IsActive); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		res = append(res, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ListImportJobsByStatus возвращает задачи импорта в заданном статусе.
func (r *PostgresRepository) ListImportJobsByStatus(ctx context.Context, status model.ImportJobStatus) ([]model.ImportJob, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, status, payload, errors FROM import_jobs
		 WHERE status = $1 ORDER BY id`,
		string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("select import jobs: %w", err)
	}
	defer rows.Close()

	var res []model.ImportJob
	for rows.Next() {
		var (
			j      model.ImportJob
			status string
		)
		if err := rows.Scan(&j.ID, &status, &j.Payload, &j.Errors); err != nil {
			return nil, fmt.Errorf("scan import job: %w", err)
		}
		j.Status = model.ImportJobStatus(status)
		res = append(res, j)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// UpdateImportJob переводит задачу импорта в новый статус.
func (r *PostgresRepository) UpdateImportJob(ctx context.Context, jobID int64, status model.ImportJobStatus, jobErrors string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE import_jobs SET status = $2, errors = $3, updated_at = now()
		 WHERE id = $1`,
		jobID, string(status), jobErrors,
	)
	if err != nil {
		return fmt.Errorf("update import job: %w", err)
	}
	return nil
}
