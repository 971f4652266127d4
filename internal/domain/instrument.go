package domain

// InstrumentCategory groups tradable instruments. All categories share the
// identical trade lifecycle; the category only matters for display and
// strategy context.
type InstrumentCategory string

const (
	CategoryForex      InstrumentCategory = "forex"
	CategoryCrypto     InstrumentCategory = "crypto"
	CategoryCommodity  InstrumentCategory = "commodity"
	CategoryVolatility InstrumentCategory = "volatility_index"
)

// Instrument describes a tradable symbol.
type Instrument struct {
	Symbol      string             `json:"symbol"`
	DisplayName string             `json:"display_name"`
	Category    InstrumentCategory `json:"category"`
}

// instruments is the static catalog of known symbols.
var instruments = map[string]Instrument{
	"frxEURUSD": {Symbol: "frxEURUSD", DisplayName: "EUR/USD", Category: CategoryForex},
	"frxGBPUSD": {Symbol: "frxGBPUSD", DisplayName: "GBP/USD", Category: CategoryForex},
	"frxUSDJPY": {Symbol: "frxUSDJPY", DisplayName: "USD/JPY", Category: CategoryForex},
	"frxAUDUSD": {Symbol: "frxAUDUSD", DisplayName: "AUD/USD", Category: CategoryForex},
	"cryBTCUSD": {Symbol: "cryBTCUSD", DisplayName: "BTC/USD", Category: CategoryCrypto},
	"cryETHUSD": {Symbol: "cryETHUSD", DisplayName: "ETH/USD", Category: CategoryCrypto},
	"frxXAUUSD": {Symbol: "frxXAUUSD", DisplayName: "Gold/USD", Category: CategoryCommodity},
	"frxXAGUSD": {Symbol: "frxXAGUSD", DisplayName: "Silver/USD", Category: CategoryCommodity},
	"R_10":      {Symbol: "R_10", DisplayName: "Volatility 10 Index", Category: CategoryVolatility},
	"R_25":      {Symbol: "R_25", DisplayName: "Volatility 25 Index", Category: CategoryVolatility},
	"R_50":      {Symbol: "R_50", DisplayName: "Volatility 50 Index", Category: CategoryVolatility},
	"R_75":      {Symbol: "R_75", DisplayName: "Volatility 75 Index", Category: CategoryVolatility},
	"R_100":     {Symbol: "R_100", DisplayName: "Volatility 100 Index", Category: CategoryVolatility},
}

// LookupInstrument returns the catalog entry for a symbol.
func LookupInstrument(symbol string) (Instrument, bool) {
	inst, ok := instruments[symbol]
	return inst, ok
}

// ValidInstrument reports whether the symbol is in the catalog.
func ValidInstrument(symbol string) bool {
	_, ok := instruments[symbol]
	return ok
}

// Instruments returns all catalog symbols. Order is not specified.
func Instruments() []Instrument {
	out := make([]Instrument, 0, len(instruments))
	for _, inst := range instruments {
		out = append(out, inst)
	}
	return out
}
