package symbols

import "strings"

var quotes = []string{"USDT", "USDC", "USD"}

// ToOKXSwap converts common spellings of a perpetual symbol to the OKX
// instrument id. It uppercases, accepts "/", "_" or no separator, maps XBT to
// BTC, drops a KuCoin style trailing M and appends -SWAP:
//
//	btcusdt    -> BTC-USDT-SWAP
//	XBT-USDTM  -> BTC-USDT-SWAP
//	eth/usdt   -> ETH-USDT-SWAP
//
// Symbols it cannot split are returned uppercased and otherwise unchanged.
func ToOKXSwap(sym string) string {
	sym = strings.ToUpper(strings.TrimSpace(sym))
	if sym == "" || strings.HasSuffix(sym, "-SWAP") {
		return sym
	}
	sym = strings.NewReplacer("/", "-", "_", "-").Replace(sym)

	base, quote, ok := strings.Cut(sym, "-")
	if !ok {
		base, quote, ok = splitQuote(sym)
		if !ok {
			return sym
		}
	}
	if strings.HasSuffix(quote, "M") && isQuote(strings.TrimSuffix(quote, "M")) {
		quote = strings.TrimSuffix(quote, "M")
	}
	if !isQuote(quote) || base == "" {
		return sym
	}
	if base == "XBT" {
		base = "BTC"
	}
	return base + "-" + quote + "-SWAP"
}

func splitQuote(sym string) (string, string, bool) {
	trimmed := strings.TrimSuffix(sym, "M")
	for _, q := range quotes {
		for _, s := range []string{sym, trimmed} {
			if strings.HasSuffix(s, q) && len(s) > len(q) {
				return strings.TrimSuffix(s, q), q, true
			}
		}
	}
	return "", "", false
}

func isQuote(s string) bool {
	for _, q := range quotes {
		if s == q {
			return true
		}
	}
	return false
}
