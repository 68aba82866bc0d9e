package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalletAddress_EIP55Checksum(t *testing.T) {
	// Reference checksummed addresses from the EIP-55 spec.
	valid := []string{
		"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		"0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359",
		"0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB",
		"0xD1220A0cf47c7B9Be7A2E6BA89F429762e7b9aDb",
	}
	for _, addr := range valid {
		w, err := NewWalletAddress(addr)
		require.NoError(t, err, addr)
		assert.Equal(t, addr, w.String())
	}
}

func TestWalletAddress_LowercaseNormalizedToChecksum(t *testing.T) {
	w, err := NewWalletAddress("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")
	require.NoError(t, err)
	assert.Equal(t, "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", w.String())
}

func TestWalletAddress_Invalid(t *testing.T) {
	cases := []string{
		"",
		"5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",      // no 0x prefix
		"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAe",     // too short
		"0x5AAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",    // bad checksum casing
		"0xzzzeb6053f3e94c9b9a09f33669435e7ef1beaed",    // non-hex
	}
	for _, addr := range cases {
		_, err := NewWalletAddress(addr)
		assert.Error(t, err, addr)
	}
}

func TestWalletAddress_Short(t *testing.T) {
	w, err := NewWalletAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	require.NoError(t, err)
	assert.Equal(t, "0x5aAe...eAed", w.Short())
}

func TestPercentOf(t *testing.T) {
	assert.Equal(t, Percent(70), PercentOf(7, 10))
	assert.Equal(t, Percent(100), PercentOf(10, 10))
	assert.Equal(t, Percent(100), PercentOf(25, 10), "capped at 100")
	assert.Equal(t, Percent(0), PercentOf(0, 10))
	assert.Equal(t, Percent(100), PercentOf(0, 0), "zero requirement is trivially satisfied")
	assert.Equal(t, Percent(33), PercentOf(1, 3), "floor, not round")
}

func TestPercentOfMoney(t *testing.T) {
	current, err := NewMoneyFromString("49.99")
	require.NoError(t, err)
	required, err := NewMoneyFromString("100")
	require.NoError(t, err)

	assert.Equal(t, Percent(49), PercentOfMoney(current, required))
	assert.Equal(t, Percent(100), PercentOfMoney(required, current))
	assert.Equal(t, Percent(100), PercentOfMoney(ZeroMoney(), ZeroMoney()))
}

func TestAveragePercent(t *testing.T) {
	assert.Equal(t, Percent(38), AveragePercent(40, 25, 50), "floor of mean")
	assert.Equal(t, Percent(100), AveragePercent(100, 100, 100))
	assert.Equal(t, Percent(0), AveragePercent())
}

func TestMinOfPercents(t *testing.T) {
	assert.Equal(t, Percent(25), MinOfPercents(40, 25, 100))
	assert.Equal(t, Percent(0), MinOfPercents())
}

func TestMoney_Validation(t *testing.T) {
	_, err := NewMoneyFromString("-5")
	assert.Error(t, err)

	_, err = NewMoneyFromString("not-a-number")
	assert.Error(t, err)

	m, err := NewMoneyFromString("1234.5678")
	require.NoError(t, err)
	assert.Equal(t, "1234.5678", m.String())
}

func TestMoney_JSONRoundTrip(t *testing.T) {
	m, err := NewMoneyFromString("99.90")
	require.NoError(t, err)

	data, err := m.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"99.9"`, string(data))

	var back Money
	require.NoError(t, back.UnmarshalJSON(data))
	assert.True(t, back.GreaterOrEqual(m))
	assert.True(t, m.GreaterOrEqual(back))
}
