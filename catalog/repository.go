// Package catalog resolves scanned barcodes to products.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"goflare.io/pos/models"
)

var ErrProductNotFound = errors.New("product not found")

// Querier is the part of driver.PostgresPool the repository needs.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Repository interface {
	GetByBarcode(ctx context.Context, barcode string) (*models.Product, error)
}

var _ Repository = (*repository)(nil)

type repository struct {
	conn   Querier
	logger *zap.Logger
}

func NewRepository(conn Querier, logger *zap.Logger) Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &repository{
		conn:   conn,
		logger: logger,
	}
}

const getByBarcodeSQL = `
SELECT id::text, name, barcode, COALESCE(image_url, ''), loyalty_points, weight,
       price::text, discount_price::text
FROM products
WHERE barcode = $1 AND active
LIMIT 1`

func (r *repository) GetByBarcode(ctx context.Context, barcode string) (*models.Product, error) {
	var (
		p             models.Product
		price         string
		discountPrice *string
	)

	err := r.conn.QueryRow(ctx, getByBarcodeSQL, barcode).Scan(
		&p.ID, &p.Name, &p.Barcode, &p.ImageURL, &p.LoyaltyPoints, &p.Weight,
		&price, &discountPrice,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("barcode %s: %w", barcode, ErrProductNotFound)
	}
	if err != nil {
		r.logger.Error("Failed to get product by barcode", zap.String("barcode", barcode), zap.Error(err))
		return nil, fmt.Errorf("failed to get product by barcode: %w", err)
	}

	if p.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("invalid price for product %s: %w", p.ID, err)
	}
	if discountPrice != nil {
		d, err := decimal.NewFromString(*discountPrice)
		if err != nil {
			return nil, fmt.Errorf("invalid discount price for product %s: %w", p.ID, err)
		}
		p.DiscountPrice = &d
	}

	return &p, nil
}
