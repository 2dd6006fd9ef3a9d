package models

import (
	"github.com/shopspring/decimal"
)

// Product 代表掃描後解析出的商品
type Product struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Barcode       string           `json:"barcode"`
	ImageURL      string           `json:"image_url"`
	LoyaltyPoints int64            `json:"loyalty_points"`
	Weight        float64          `json:"weight"`
	Price         decimal.Decimal  `json:"price"`
	DiscountPrice *decimal.Decimal `json:"discount_price,omitempty"`
}

// FinalPrice 回傳目前的售價，促銷價有效時優先使用
func (p *Product) FinalPrice() decimal.Decimal {
	if p.DiscountPrice != nil && p.DiscountPrice.IsPositive() && p.DiscountPrice.LessThan(p.Price) {
		return *p.DiscountPrice
	}
	return p.Price
}

// LineItem 代表購物車中的單個商品項目
type LineItem struct {
	ID            string          `json:"id"`
	CartItemID    string          `json:"cart_item_id,omitempty"`
	Name          string          `json:"name"`
	Barcode       string          `json:"barcode"`
	ImageURL      string          `json:"image_url"`
	LoyaltyPoints int64           `json:"loyalty_points"`
	Weight        float64         `json:"weight"`
	Price         decimal.Decimal `json:"price"`
	Quantity      int             `json:"quantity"`
}

func NewLineItem(product *Product) *LineItem {
	return &LineItem{
		ID:            product.ID,
		Name:          product.Name,
		Barcode:       product.Barcode,
		ImageURL:      product.ImageURL,
		LoyaltyPoints: product.LoyaltyPoints,
		Weight:        product.Weight,
		Price:         product.FinalPrice(),
		Quantity:      1,
	}
}

// AddItemPayload is the default body for POST /cart when a scan is resolved.
type AddItemPayload struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Barcode   string `json:"barcode,omitempty"`
}

// UpdateItemPayload is the body for PUT /cart/{cartItemId}.
type UpdateItemPayload struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// RemoteCart is the backend's view of the cart returned by GET /cart.
type RemoteCart struct {
	Items []RemoteCartItem `json:"items"`
}

type RemoteCartItem struct {
	ID        string          `json:"id"`
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}
