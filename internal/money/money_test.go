package money

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("major units", func(t *testing.T) {
		m, err := Parse("245.50", "ZAR")
		require.NoError(t, err)
		assert.Equal(t, int64(24550), m.Amount())
		assert.Equal(t, "ZAR", m.Currency())
	})

	t.Run("too many decimals", func(t *testing.T) {
		_, err := Parse("1.005", "ZAR")
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("unknown currency", func(t *testing.T) {
		_, err := Parse("1.00", "XYZQ")
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := Parse("R12", "ZAR")
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})
}

func TestArithmetic(t *testing.T) {
	a := MustParse("1000.00", "ZAR")
	b := MustParse("300.00", "ZAR")

	diff, err := a.Sub(b)
	require.NoError(t, err)
	assert.Equal(t, int64(70000), diff.Amount())

	sum, err := diff.Add(b)
	require.NoError(t, err)
	assert.True(t, sum.Equal(a))

	neg, err := b.Sub(a)
	require.NoError(t, err)
	assert.True(t, neg.IsNegative())
	assert.True(t, neg.Neg().Equal(diff))

	cmp, err := a.Cmp(b)
	require.NoError(t, err)
	assert.Equal(t, 1, cmp)

	_, err = a.Add(MustParse("1.00", "USD"))
	assert.ErrorIs(t, err, ErrCurrencyMismatch)
}

func TestMulQuantity(t *testing.T) {
	price := MustParse("245.50", "ZAR")
	assert.Equal(t, int64(245500), price.MulQuantity(decimal.NewFromInt(10)).Amount())

	// 0.333 * 1.00 = 0.333 rounds to 0.33
	assert.Equal(t, int64(33), MustParse("1.00", "ZAR").MulQuantity(decimal.RequireFromString("0.333")).Amount())
	// 0.005 rounds half away from zero
	assert.Equal(t, int64(1), MustParse("0.01", "ZAR").MulQuantity(decimal.RequireFromString("0.5")).Amount())
}

func TestFromDecimal(t *testing.T) {
	m := FromDecimal(decimal.RequireFromString("247.004"), "ZAR")
	assert.Equal(t, int64(24700), m.Amount())
	assert.Equal(t, "247", m.Decimal().String())
}

func TestString(t *testing.T) {
	assert.Contains(t, MustParse("700.00", "ZAR").String(), "700.00")
	assert.Equal(t, "12.30", New(1230, "").String())
}

func TestJSON(t *testing.T) {
	data, err := json.Marshal(MustParse("247.00", "ZAR"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":"247.00","currency":"ZAR"}`, string(data))

	var m Money
	require.NoError(t, json.Unmarshal([]byte(`{"amount":"12.5","currency":"ZAR"}`), &m))
	assert.Equal(t, int64(1250), m.Amount())

	assert.Error(t, json.Unmarshal([]byte(`{"amount":"12.555","currency":"ZAR"}`), &m))
}
