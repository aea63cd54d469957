// Package all registers every built-in market data source.
package all

import (
	_ "cryptodash-api/pkg/marketdata/sources/binance"
	_ "cryptodash-api/pkg/marketdata/sources/coinapi"
	_ "cryptodash-api/pkg/marketdata/sources/coindesk"
	_ "cryptodash-api/pkg/marketdata/sources/coingecko"
	_ "cryptodash-api/pkg/marketdata/sources/cryptocompare"
	_ "cryptodash-api/pkg/marketdata/sources/livecoinwatch"
)
