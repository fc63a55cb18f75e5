package booking

import (
	"github.com/shopspring/decimal"
)

// DevnetPriceDivisor converts a USD ticket price into the devnet amount
// charged for it. It is a fixed simulation constant, not an exchange rate.
const DevnetPriceDivisor = 10000

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL = 1_000_000_000

// DevnetAmount is the devnet charge for one ticket priced in USD.
func DevnetAmount(priceUSD float64) decimal.Decimal {
	return decimal.NewFromFloat(priceUSD).Div(decimal.NewFromInt(DevnetPriceDivisor))
}

// Lamports converts a SOL amount to whole lamports.
func Lamports(sol decimal.Decimal) uint64 {
	if !sol.IsPositive() {
		return 0
	}
	return uint64(sol.Mul(decimal.NewFromInt(LamportsPerSOL)).Round(0).IntPart())
}

func decimalInt(n int) decimal.Decimal {
	return decimal.NewFromInt(int64(n))
}

func decimalFloat(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}
