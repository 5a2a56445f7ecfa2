package precision

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/basisalpha/basisbot/internal/domain"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestNormalizePriceBuyRoundsDown(t *testing.T) {
	got, err := NormalizePrice(dec("100.07"), dec("0.05"), domain.DirectionBuy)
	require.NoError(t, err)
	require.Equal(t, "100.05", got.String())
}

func TestNormalizePriceSellRoundsUp(t *testing.T) {
	got, err := NormalizePrice(dec("100.07"), dec("0.05"), domain.DirectionSell)
	require.NoError(t, err)
	require.Equal(t, "100.1", got.String())
}

func TestNormalizePriceIdempotent(t *testing.T) {
	once, err := NormalizePrice(dec("42.137"), dec("0.01"), domain.DirectionSell)
	require.NoError(t, err)

	twice, err := NormalizePrice(once, dec("0.01"), domain.DirectionSell)
	require.NoError(t, err)
	require.True(t, once.Equal(twice))
}

func TestNormalizePriceBadTick(t *testing.T) {
	_, err := NormalizePrice(dec("100"), decimal.Zero, domain.DirectionBuy)
	require.True(t, errors.Is(err, domain.ErrPrecision))

	_, err = NormalizePrice(dec("100"), dec("-0.01"), domain.DirectionBuy)
	require.True(t, errors.Is(err, domain.ErrPrecision))
}

func TestNormalizeSizeTruncates(t *testing.T) {
	got, err := NormalizeSize(dec("1.2345"), dec("0.001"))
	require.NoError(t, err)
	require.Equal(t, "1.234", got.String())
}

func TestNormalizeSizeNeverRoundsUp(t *testing.T) {
	got, err := NormalizeSize(dec("0.0999"), dec("0.01"))
	require.NoError(t, err)
	require.Equal(t, "0.09", got.String())
	require.True(t, got.LessThan(dec("0.0999")))
}

func TestNormalizeSizeNonPositive(t *testing.T) {
	got, err := NormalizeSize(decimal.Zero, dec("0.01"))
	require.NoError(t, err)
	require.True(t, got.IsZero())

	got, err = NormalizeSize(dec("-1"), dec("0.01"))
	require.NoError(t, err)
	require.True(t, got.IsZero())
}

func TestNormalizeSizeBadLot(t *testing.T) {
	_, err := NormalizeSize(dec("1"), decimal.Zero)
	require.True(t, errors.Is(err, domain.ErrPrecision))
}
