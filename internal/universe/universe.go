// Package universe holds small trading-pair membership predicates shared
// by the schedulers. The exchange/market-cap/meme-coin eligibility filter
// itself lives in the storage layer's SQL (internal/store/postgres),
// parameterized by config.UniverseConfig; this package keeps only the
// predicate that has no natural home in a query.
package universe

import "strings"

// IsUSDTQuoted is a terse membership predicate: the watcher's futures
// counterpart for a symbol is found via the trading-pair table, restricted
// to USDT-quoted pairs only.
func IsUSDTQuoted(symbol string) bool {
	return strings.HasSuffix(strings.ToUpper(strings.TrimSpace(symbol)), "USDT")
}
