// Package core provides the receipt domain model and its pure helpers.
//
// This file contains the currency converter used to project receipt amounts
// into a display currency, and the locale-aware formatting of those amounts.
package core

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultCurrency is used whenever a receipt carries no usable currency code.
const DefaultCurrency = "USD"

// usdRates holds the value of one unit of each currency expressed in USD.
var usdRates = map[string]float64{
	"USD": 1,
	"EUR": 1.08,
	"GBP": 1.27,
	"CAD": 0.74,
	"AUD": 0.66,
	"SGD": 0.74,
	"CHF": 1.12,
	"JPY": 0.0067,
	"INR": 0.012,
	"VND": 0.00004,
}

var currencyLabels = map[string]string{
	"USD": "US Dollar",
	"EUR": "Euro",
	"GBP": "British Pound",
	"CAD": "Canadian Dollar",
	"AUD": "Australian Dollar",
	"SGD": "Singapore Dollar",
	"CHF": "Swiss Franc",
	"JPY": "Japanese Yen",
	"INR": "Indian Rupee",
	"VND": "Vietnamese Dong",
}

// Projector maps a receipt to the amount used for aggregation.
type Projector func(Receipt) float64

// RawAmount projects a receipt to its amount in its own currency.
func RawAmount(r Receipt) float64 {
	return r.Amount
}

// Converter converts and formats amounts using a fixed rate table.
// It never fails: unknown codes convert at rate 1.
type Converter struct {
	rates   map[string]float64
	printer *message.Printer
}

// NewConverter returns a converter over the built-in rate table.
func NewConverter() *Converter {
	return &Converter{
		rates:   usdRates,
		printer: message.NewPrinter(language.English),
	}
}

func (c *Converter) rate(code string) decimal.Decimal {
	if r, ok := c.rates[strings.ToUpper(code)]; ok && r > 0 {
		return decimal.NewFromFloat(r)
	}
	return decimal.NewFromInt(1)
}

// Convert converts amount from one currency to another via USD.
func (c *Converter) Convert(amount float64, from, to string) float64 {
	if strings.EqualFold(from, to) {
		return amount
	}
	// The quotient stays in float64: a fixed decimal scale would round away
	// the significant digits of tiny cross-rate results.
	usd, _ := decimal.NewFromFloat(amount).Mul(c.rate(from)).Float64()
	rate, _ := c.rate(to).Float64()
	return usd / rate
}

// Format renders amount with the currency symbol, e.g. "$ 1,234.50".
// Codes x/text does not know fall back to a plain "1234.50 XYZ" rendering.
func (c *Converter) Format(amount float64, code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	unit, err := currency.ParseISO(code)
	if err != nil {
		return fmt.Sprintf("%.2f %s", amount, code)
	}
	return c.printer.Sprint(currency.Symbol(unit.Amount(amount)))
}

// IsSupported reports whether code is in the rate table.
func (c *Converter) IsSupported(code string) bool {
	_, ok := c.rates[code]
	return ok
}

// Supported returns the codes of the rate table in alphabetical order.
func (c *Converter) Supported() []string {
	codes := make([]string, 0, len(c.rates))
	for code := range c.rates {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Describe returns "<symbol> <label>" for a supported code.
func (c *Converter) Describe(code string) string {
	label, ok := currencyLabels[code]
	if !ok {
		return code
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return label
	}
	return c.printer.Sprint(currency.Symbol(unit)) + " " + label
}

// ToCurrency returns a projector that converts each receipt into target.
func ToCurrency(c *Converter, target string) Projector {
	return func(r Receipt) float64 {
		return c.Convert(r.Amount, r.Currency, target)
	}
}

// IsSupportedCurrency reports whether code is in the built-in rate table.
func IsSupportedCurrency(code string) bool {
	_, ok := usdRates[code]
	return ok
}
