package csvbank

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/fincoach/backend/src/logger"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	m.Run()
}

func TestParseMapsColumnsByHeader(t *testing.T) {
	p := NewParser()
	input := strings.Join([]string{
		"Posting Date,Description,Category,Value,Currency,Payment Method",
		"2024-03-02,Corner Cafe,Dining,-4.50,EUR,card",
		"2024-03-01,Supermarket,Groceries,-82.10,EUR,card",
	}, "\n")

	txs, err := p.Parse(strings.NewReader(input))

	require.NoError(t, err)
	require.Len(t, txs, 2)
	// Output is date ascending regardless of file order.
	assert.Equal(t, "2024-03-01", txs[0].Date)
	assert.Equal(t, "Supermarket", txs[0].Merchant)
	assert.Equal(t, 82.10, txs[0].Amount)
	assert.Equal(t, "EUR", txs[0].Currency)
	assert.Equal(t, "card", txs[0].PaymentMethod)
	assert.Equal(t, "Corner Cafe", txs[1].Merchant)
	assert.NotEmpty(t, txs[0].ID)
	assert.NotEqual(t, txs[0].ID, txs[1].ID)
}

func TestParseEuropeanFormats(t *testing.T) {
	p := NewParser()
	input := strings.Join([]string{
		"date,merchant,amount",
		`15-03-2024,Electronics Shop,"-1.234,56"`,
	}, "\n")

	txs, err := p.Parse(strings.NewReader(input))

	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "2024-03-15", txs[0].Date)
	assert.Equal(t, 1234.56, txs[0].Amount)
}

func TestParseSkipsBadRows(t *testing.T) {
	p := NewParser()
	input := strings.Join([]string{
		"date,merchant,amount",
		"not-a-date,Shop,10.00",
		"2024-03-01,Shop,not-a-number",
		"2024-03-02,Shop,0",
		"2024-03-03,Shop,12.00",
	}, "\n")

	txs, err := p.Parse(strings.NewReader(input))

	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "2024-03-03", txs[0].Date)
}

func TestParseStableIDs(t *testing.T) {
	p := NewParser()
	input := strings.Join([]string{
		"date,merchant,amount",
		"2024-03-01,Coffee,-3.00",
		"2024-03-01,Coffee,-3.00",
	}, "\n")

	first, err := p.Parse(strings.NewReader(input))
	require.NoError(t, err)
	second, err := p.Parse(strings.NewReader(input))
	require.NoError(t, err)

	require.Len(t, first, 2)
	assert.NotEqual(t, first[0].ID, first[1].ID, "identical rows in one file get distinct ids")
	assert.Equal(t, first[0].ID, second[0].ID, "re-parsing the same file reproduces the ids")
	assert.Equal(t, first[1].ID, second[1].ID)
}

func TestParseMissingRequiredColumn(t *testing.T) {
	p := NewParser()
	input := "date,category,amount\n2024-03-01,Dining,5.00\n"

	_, err := p.Parse(strings.NewReader(input))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "merchant")
}
