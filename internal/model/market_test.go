package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRecord = `{"meta":{"symbol":"aapl","currency":"USD"},
"timestamp":[1704205800,1704292200,1704378600],
"indicators":{"quote":[{
 "open":[187.15,null,182.15],
 "high":[188.44,null,183.09],
 "low":[183.89,null,180.88],
 "close":[185.64,null,181.91],
 "volume":[82488700,null,71983600]}]}}`

func TestRawPriceRecord_Symbol(t *testing.T) {
	sym, err := RawPriceRecord(sampleRecord).Symbol()
	require.NoError(t, err)
	assert.Equal(t, Symbol("AAPL"), sym)

	_, err = RawPriceRecord(`{"timestamp":[]}`).Symbol()
	assert.Error(t, err)

	_, err = RawPriceRecord(`not json`).Symbol()
	assert.Error(t, err)
}

func TestRawPriceRecord_RowsSkipsEmptyBars(t *testing.T) {
	rows, err := RawPriceRecord(sampleRecord).Rows()
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, int64(1704205800), rows[0].Timestamp)
	assert.Equal(t, "2024-01-02", rows[0].Date.Format("2006-01-02"))
	assert.InDelta(t, 185.64, *rows[0].Close, 1e-9)
	assert.Equal(t, int64(71983600), *rows[1].Volume)
}

func TestNormalizeSymbol(t *testing.T) {
	sym, err := NormalizeSymbol("  msft ")
	require.NoError(t, err)
	assert.Equal(t, Symbol("MSFT"), sym)

	for _, bad := range []string{"", "  ", "A/B", "BRK B"} {
		_, err := NormalizeSymbol(bad)
		assert.ErrorIs(t, err, ErrInvalidSymbol, bad)
	}
}

func TestStorageLocator(t *testing.T) {
	loc := StorageLocator{Bucket: "stock-market", Symbol: "AAPL"}
	assert.Equal(t, "stock-market/AAPL", loc.String())
	assert.Equal(t, "AAPL/prices.json", loc.RawKey())
	assert.Equal(t, "AAPL/formatted_prices/", loc.FormattedPrefix())

	parsed, err := ParseLocator("stock-market/AAPL")
	require.NoError(t, err)
	assert.Equal(t, loc, parsed)

	_, err = ParseLocator("stock-market")
	assert.Error(t, err)
	_, err = ParseLocator("/AAPL")
	assert.Error(t, err)
}
