// Package pricing derives cart totals from line item prices and quantities.
package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v79"
)

var (
	DefaultVATRate         = decimal.RequireFromString("0.15")
	DefaultTotalMultiplier = decimal.RequireFromString("1.15")
)

// CartSummaryItem is the part of a line item that totals depend on.
type CartSummaryItem struct {
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// Totals 是結帳畫面顯示的金額
type Totals struct {
	Currency      stripe.Currency `json:"currency"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	VAT           decimal.Decimal `json:"vat"`
	GrandTotal    decimal.Decimal `json:"grand_total"`
	ItemCount     int             `json:"item_count"`
	LoyaltyPoints int64           `json:"loyalty_points"`
}

// MinorUnits returns the grand total in the currency's smallest unit, the
// amount format card terminals and stripe expect.
func (t Totals) MinorUnits() int64 {
	return t.GrandTotal.Shift(Exponent(t.Currency)).Round(0).IntPart()
}

// 小數位數不是 2 的幣別
var currencyExponents = map[stripe.Currency]int32{
	"bif": 0, "clp": 0, "djf": 0, "gnf": 0, "jpy": 0, "kmf": 0, "krw": 0, "mga": 0,
	"pyg": 0, "rwf": 0, "ugx": 0, "vnd": 0, "vuv": 0, "xaf": 0, "xof": 0, "xpf": 0,
	"bhd": 3, "jod": 3, "kwd": 3, "omr": 3, "tnd": 3,
}

// Exponent is the number of decimals of currency's minor unit.
func Exponent(currency stripe.Currency) int32 {
	if exp, ok := currencyExponents[stripe.Currency(strings.ToLower(string(currency)))]; ok {
		return exp
	}
	return 2
}

// Calculator holds the two configured rates. GrandTotal multiplies the
// subtotal by TotalMultiplier; config validation keeps it equal to
// 1 + VATRate so displayed VAT and total agree.
type Calculator struct {
	VATRate         decimal.Decimal
	TotalMultiplier decimal.Decimal
	Currency        stripe.Currency
}

func NewCalculator(vatRate, totalMultiplier decimal.Decimal, currency stripe.Currency) Calculator {
	return Calculator{
		VATRate:         vatRate,
		TotalMultiplier: totalMultiplier,
		Currency:        currency,
	}
}

// Consistent reports whether TotalMultiplier equals 1 + VATRate.
func (c Calculator) Consistent() bool {
	return c.TotalMultiplier.Equal(decimal.NewFromInt(1).Add(c.VATRate))
}

func (c Calculator) Subtotal(items []CartSummaryItem) decimal.Decimal {
	return CalculateSubtotal(items)
}

func (c Calculator) VAT(subtotal decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(c.VATRate)
}

func (c Calculator) GrandTotal(subtotal decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(c.TotalMultiplier)
}

func (c Calculator) Totals(items []CartSummaryItem) Totals {
	subtotal := c.Subtotal(items)
	count := 0
	for _, item := range items {
		count += item.Quantity
	}
	return Totals{
		Currency:   c.Currency,
		Subtotal:   subtotal,
		VAT:        c.VAT(subtotal),
		GrandTotal: c.GrandTotal(subtotal),
		ItemCount:  count,
	}
}

// CalculateSubtotal sums unit price times quantity.
func CalculateSubtotal(items []CartSummaryItem) decimal.Decimal {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return subtotal
}
