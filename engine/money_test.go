package engine_test

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/parking-engine/engine"
)

func TestMoney_CentsRoundTrip(t *testing.T) {
	cases := []struct {
		in    string
		cents int64
	}{
		{"0", 0},
		{"10", 1000},
		{"10.875", 1088},
		{"0.005", 1},
		{"-3.5", -350},
	}
	for _, tc := range cases {
		m, err := engine.ParseMoney(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.cents, m.Cents(), tc.in)
		assert.True(t, engine.MoneyFromCents(m.Cents()).Equal(m), tc.in)
	}
}

func TestMoney_CentsSaturatesInsteadOfWrapping(t *testing.T) {
	huge := engine.Money{Value: decimal.RequireFromString("184467440737095506.16")}
	assert.Equal(t, int64(math.MaxInt64), huge.Cents())
	assert.Equal(t, int64(math.MinInt64), huge.Neg().Cents())
}

func TestMoney_CheckAmount(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"0", true},
		{"12.50", true},
		{"1000000000", true},
		{"1000000000.01", false},
		{"-0.01", false},
		{"0.004", false},
		{"184467440737095506.16", false},
	}
	for _, tc := range cases {
		err := engine.Money{Value: decimal.RequireFromString(tc.in)}.CheckAmount("amount")
		if tc.ok {
			assert.NoError(t, err, tc.in)
		} else {
			assert.ErrorIs(t, err, engine.ErrInvalidAmount, tc.in)
		}
	}
}

func TestMoney_ParseRejectsGarbage(t *testing.T) {
	_, err := engine.ParseMoney("ten dollars")
	assert.Error(t, err)
}

func TestMoney_JSONIsNumeric(t *testing.T) {
	b, err := json.Marshal(struct {
		Amount engine.Money `json:"amount"`
	}{engine.NewMoney(12.5)})
	require.NoError(t, err)
	assert.Equal(t, `{"amount":12.50}`, string(b))

	var out struct {
		Amount engine.Money `json:"amount"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"amount": 7.25}`), &out))
	assert.Equal(t, "7.25", out.Amount.String())
}

func TestMoney_JSONRoundsToCents(t *testing.T) {
	cases := map[string]string{
		`0.004`:   "0.00",
		`1.005`:   "1.01",
		`"2.499"`: "2.50",
	}
	for in, want := range cases {
		var m engine.Money
		require.NoError(t, json.Unmarshal([]byte(in), &m), in)
		assert.Equal(t, want, m.String(), in)
		assert.NoError(t, m.CheckAmount("amount"), in)
	}
}

func TestMoney_ConvertUsesRate(t *testing.T) {
	usd := engine.NewMoney(20)
	inr := usd.Convert(decimal.NewFromInt(83))
	assert.Equal(t, "1660.00", inr.String())
}

func TestBucketFor_UsesUTC(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	at := time.Date(2025, time.March, 11, 2, 15, 0, 0, ist) // 2025-03-10 20:45 UTC

	key := engine.BucketFor("slot-1", at)
	assert.Equal(t, engine.StatKey{SlotID: "slot-1", Date: "2025-03-10", Hour: 20}, key)
}

func TestRange_Contains(t *testing.T) {
	from := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, time.March, 12, 0, 0, 0, 0, time.UTC)

	assert.True(t, engine.Range{}.Contains("1999-01-01"))
	assert.True(t, engine.Range{From: from, To: to}.Contains("2025-03-12"))
	assert.False(t, engine.Range{From: from, To: to}.Contains("2025-03-13"))
	assert.False(t, engine.Range{From: from}.Contains("2025-03-09"))
}

func TestReservation_DueAt(t *testing.T) {
	start := time.Date(2025, time.March, 10, 14, 30, 0, 0, time.UTC)
	r := engine.Reservation{StartTime: start, DurationHours: decimal.NewFromFloat(1.5)}
	assert.Equal(t, start.Add(90*time.Minute), r.DueAt())
}
