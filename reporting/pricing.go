package reporting

import (
	"math/big"
)

// weiPerGRT is 10^18, the attoGRT-per-GRT scale every receipt value is
// denominated in (spec §4.1: "fee is carried as u128 attoGRT").
var weiPerGRT = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

// FeesUSD converts a sum of receipt values, denominated in attoGRT, into
// USD at the given GRT/USD exchange rate. It and FeeGRT are the only
// places in the gateway core where receipt value touches floating point (spec §4.1:
// "conversion to GRT/USD happens only for reporting").
func FeesUSD(totalAttoGRT *big.Int, grtPerUSD float64) float64 {
	if totalAttoGRT == nil || grtPerUSD == 0 {
		return 0
	}
	grt := new(big.Float).Quo(new(big.Float).SetInt(totalAttoGRT), weiPerGRT)
	usd := new(big.Float).Quo(grt, big.NewFloat(grtPerUSD))
	f, _ := usd.Float64()
	return f
}

// FeeGRT converts a single receipt value, denominated in attoGRT, into
// GRT for the IndexerQueryProtobuf.fee_grt field (spec §4.6).
func FeeGRT(valueAttoGRT *big.Int) float64 {
	if valueAttoGRT == nil {
		return 0
	}
	grt := new(big.Float).Quo(new(big.Float).SetInt(valueAttoGRT), weiPerGRT)
	f, _ := grt.Float64()
	return f
}
