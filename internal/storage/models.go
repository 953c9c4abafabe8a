package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceSnapshot is one persisted quote from a refresh tick.
type PriceSnapshot struct {
	ID            int64
	Symbol        string
	PriceUSD      decimal.Decimal
	Change24hPct  decimal.Decimal
	UsingFallback bool
	CapturedAt    time.Time
}

// AlertRecord captures an emitted price-move alert for cooldown and auditing.
type AlertRecord struct {
	ID           int64
	Symbol       string
	Change24hPct decimal.Decimal
	ThresholdPct decimal.Decimal
	Direction    string
	Channels     []string
	CreatedAt    time.Time
}
