package okx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/basisalpha/basisbot/internal/domain"
	"github.com/basisalpha/basisbot/internal/exchange"
)

func TestFutureExpiryDays(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.Equal(t, 26, futureExpiryDays("BTC-USD-260328", now))
	require.Equal(t, 0, futureExpiryDays("BTC-USD-260228", now)) // already settled
	require.Equal(t, 0, futureExpiryDays("BTC-USDT", now))
	require.Equal(t, 0, futureExpiryDays("garbage", now))
	require.Equal(t, 0, futureExpiryDays("BTC-USD-", now))
}

func TestClOrdIDSqueeze(t *testing.T) {
	require.Equal(t, "spotabc", clOrdID("spot-abc"))

	long := clOrdID("spot-0d9c93a2-95a1-4f2c-8d7e-aabbccddeeff")
	require.Len(t, long, 32)
	require.NotContains(t, long, "-")
}

func TestTdMode(t *testing.T) {
	require.Equal(t, "cash", tdMode("BTC-USDT"))
	require.Equal(t, "cross", tdMode("BTC-USD-260328"))
}

func TestOrdType(t *testing.T) {
	require.Equal(t, "market", ordType(exchange.OrderRequest{Type: exchange.OrderTypeMarket}))
	require.Equal(t, "post_only", ordType(exchange.OrderRequest{Type: exchange.OrderTypeLimit, PostOnly: true}))
	require.Equal(t, "limit", ordType(exchange.OrderRequest{Type: exchange.OrderTypeLimit}))
}

func TestSign(t *testing.T) {
	// reference value computed with the documented HMAC-SHA256/base64 scheme
	require.Equal(t, "2zg2Ofih9g26VEx7Q1isEoW8PPpNoqTb71vebVdUTFw=",
		sign("secret", "2026-03-01T00:00:00.000ZGET/api/v5/account/balance"))
}

func TestLegStateMapping(t *testing.T) {
	require.Equal(t, domain.LegFilled, legState("filled"))
	require.Equal(t, domain.LegPartiallyFilled, legState("partially_filled"))
	require.Equal(t, domain.LegCancelled, legState("canceled"))
	require.Equal(t, domain.LegCancelled, legState("mmp_canceled"))
	require.Equal(t, domain.LegRejected, legState("rejected"))
	require.Equal(t, domain.LegPending, legState("live"))
}

func TestParseLevels(t *testing.T) {
	levels := parseLevels([][]string{
		{"100.5", "2", "0", "1"},
		{"100.4", "1.5", "0", "3"},
		{"bad"},
	})
	require.Len(t, levels, 2)
	require.Equal(t, "100.5", levels[0].Price.String())
	require.Equal(t, "1.5", levels[1].Size.String())
}
