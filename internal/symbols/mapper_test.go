package symbols

import "testing"

func TestToOKXSwap(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"BTC-USDT-SWAP", "BTC-USDT-SWAP"},
		{"btc-usdt-swap", "BTC-USDT-SWAP"},
		{"BTC-USDT", "BTC-USDT-SWAP"},
		{"btcusdt", "BTC-USDT-SWAP"},
		{"eth/usdt", "ETH-USDT-SWAP"},
		{"SOL_USDC", "SOL-USDC-SWAP"},
		{"XBT-USDTM", "BTC-USDT-SWAP"},
		{"XBTUSDTM", "BTC-USDT-SWAP"},
		{"BTCUSD", "BTC-USD-SWAP"},
		{" xrp-usdt ", "XRP-USDT-SWAP"},
		{"USDT", "USDT"},
		{"FOO", "FOO"},
		{"BTC-EUR", "BTC-EUR"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ToOKXSwap(tt.in); got != tt.want {
			t.Errorf("ToOKXSwap(%q)=%q want %q", tt.in, got, tt.want)
		}
	}
}
