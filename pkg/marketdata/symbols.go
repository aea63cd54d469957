package marketdata

import (
	"fmt"
	"sort"
	"strings"
)

type coinInfo struct {
	Symbol    string
	BasePrice float64 // mock anchor in USD
	Supply    float64 // approximate circulating supply
}

var coinDirectory = map[string]coinInfo{
	"bitcoin":       {Symbol: "BTC", BasePrice: 65000, Supply: 19.7e6},
	"ethereum":      {Symbol: "ETH", BasePrice: 3200, Supply: 120e6},
	"solana":        {Symbol: "SOL", BasePrice: 150, Supply: 465e6},
	"ripple":        {Symbol: "XRP", BasePrice: 0.55, Supply: 56e9},
	"cardano":       {Symbol: "ADA", BasePrice: 0.45, Supply: 35.7e9},
	"dogecoin":      {Symbol: "DOGE", BasePrice: 0.14, Supply: 146e9},
	"binancecoin":   {Symbol: "BNB", BasePrice: 580, Supply: 146e6},
	"polkadot":      {Symbol: "DOT", BasePrice: 6.5, Supply: 1.5e9},
	"litecoin":      {Symbol: "LTC", BasePrice: 75, Supply: 75e6},
	"chainlink":     {Symbol: "LINK", BasePrice: 14, Supply: 608e6},
	"avalanche-2":   {Symbol: "AVAX", BasePrice: 28, Supply: 395e6},
	"tron":          {Symbol: "TRX", BasePrice: 0.16, Supply: 86e9},
	"matic-network": {Symbol: "MATIC", BasePrice: 0.55, Supply: 9.3e9},
	"shiba-inu":     {Symbol: "SHIB", BasePrice: 0.000018, Supply: 589e12},
	"uniswap":       {Symbol: "UNI", BasePrice: 8, Supply: 600e6},
	"stellar":       {Symbol: "XLM", BasePrice: 0.1, Supply: 29e9},
	"cosmos":        {Symbol: "ATOM", BasePrice: 6.8, Supply: 390e6},
	"toncoin":       {Symbol: "TON", BasePrice: 5.5, Supply: 2.5e9},
}

// SymbolFor maps a CoinGecko-style coin id to its ticker symbol.
func SymbolFor(coinID string) (string, error) {
	info, ok := coinDirectory[strings.ToLower(strings.TrimSpace(coinID))]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedCoin, coinID)
	}
	return info.Symbol, nil
}

// QuoteFor maps a quote currency onto the asset exchanges actually list;
// USD pairs trade against USDT.
func QuoteFor(currency string) string {
	quote := strings.ToUpper(strings.TrimSpace(currency))
	switch quote {
	case "", "USD":
		return "USDT"
	default:
		return quote
	}
}

// KnownCoins returns the coin ids with a symbol mapping, sorted.
func KnownCoins() []string {
	out := make([]string, 0, len(coinDirectory))
	for id := range coinDirectory {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
