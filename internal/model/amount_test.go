package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianpay/tokenvault/internal/errors"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"100.00", 10000},
		{"100", 10000},
		{"60", 6000},
		{"0.01", 1},
		{"0.5", 50},
		{"12345.67", 1234567},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		require.NoError(t, err, "amount %q", tc.in)
		assert.Equal(t, tc.want, got, "amount %q", tc.in)
	}
}

func TestParseAmount_Rejects(t *testing.T) {
	for _, in := range []string{"0", "-1", "-0.01", "abc", "1.005", "1e3x", "0.001"} {
		_, err := ParseAmount(in)
		require.Error(t, err, "amount %q", in)
		assert.True(t, errors.IsValidation(err), "amount %q", in)
		assert.Equal(t, "Invalid amount", errors.Message(err), "amount %q", in)
	}
}

func TestParseAmount_MissingField(t *testing.T) {
	_, err := ParseAmount("")
	require.Error(t, err)
	assert.Equal(t, "Missing required fields: amount", errors.Message(err))
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "100.00", FormatAmount(10000))
	assert.Equal(t, "0.01", FormatAmount(1))
	assert.Equal(t, "60.00", FormatAmount(6000))
}

func TestAmountRoundTrip(t *testing.T) {
	minor, err := ParseAmount("250.75")
	require.NoError(t, err)
	assert.Equal(t, "250.75", FormatAmount(minor))
}

func TestIsValidTransactionType(t *testing.T) {
	assert.True(t, IsValidTransactionType(TxOffline))
	assert.True(t, IsValidTransactionType(TxRedemption))
	assert.False(t, IsValidTransactionType("wire_transfer"))
}
