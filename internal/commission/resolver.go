package commission

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/weddify/backend/internal/models"
)

// RateTable maps every vendor tier to its commission rate, a fraction in
// [0, 1). The table is configuration: it is injected at construction and can
// be overridden via COMMISSION_RATES without a redeploy.
type RateTable map[models.VendorTier]decimal.Decimal

// DefaultRateTable returns the standard pricing: free 10%, premium 5%,
// featured 2%, elite 0%.
func DefaultRateTable() RateTable {
	return RateTable{
		models.TierFree:     decimal.RequireFromString("0.10"),
		models.TierPremium:  decimal.RequireFromString("0.05"),
		models.TierFeatured: decimal.RequireFromString("0.02"),
		models.TierElite:    decimal.RequireFromString("0.00"),
	}
}

// ParseRateTable parses a JSON object of tier -> decimal-string rates, e.g.
// {"free":"0.10","premium":"0.05","featured":"0.02","elite":"0.00"}.
// Every tier must be present and every rate must be in [0, 1).
func ParseRateTable(raw string) (RateTable, error) {
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("parse rate table: %w", err)
	}
	table := make(RateTable, len(m))
	for k, v := range m {
		tier := models.VendorTier(k)
		if !tier.Valid() {
			return nil, fmt.Errorf("parse rate table: unknown tier %q", k)
		}
		rate, err := decimal.NewFromString(v)
		if err != nil {
			return nil, fmt.Errorf("parse rate table: tier %q: %w", k, err)
		}
		table[tier] = rate
	}
	if err := validate(table); err != nil {
		return nil, err
	}
	return table, nil
}

// Resolver maps a vendor tier to a commission rate. RateFor is a total pure
// function over the tier enum.
type Resolver struct {
	table RateTable
}

// NewResolver validates the table is total over the tier enum with every rate
// in [0, 1), and returns a Resolver backed by a private copy of it.
func NewResolver(table RateTable) (*Resolver, error) {
	if err := validate(table); err != nil {
		return nil, err
	}
	cp := make(RateTable, len(table))
	for k, v := range table {
		cp[k] = v
	}
	return &Resolver{table: cp}, nil
}

func validate(table RateTable) error {
	for _, tier := range models.VendorTiers {
		rate, ok := table[tier]
		if !ok {
			return fmt.Errorf("rate table missing tier %q", tier)
		}
		if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return fmt.Errorf("rate for tier %q outside [0,1): %s", tier, rate)
		}
	}
	return nil
}

// RateFor returns the commission rate for the given tier. An unknown tier is
// a programming error, not a runtime condition: it panics.
func (r *Resolver) RateFor(tier models.VendorTier) decimal.Decimal {
	rate, ok := r.table[tier]
	if !ok {
		panic(fmt.Sprintf("commission: no rate for tier %q", tier))
	}
	return rate
}
