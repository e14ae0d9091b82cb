package reader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"optionsflow/models"
)

const longCSV = `quote_date,underlying_price,strike_price,option_type,expiry_date,bid,ask,last_price,implied_volatility,delta,gamma,vega,theta,rho,volume
2023-03-01,400,400,CALL,2023-03-11,5.0,5.2,5.1,0.18,0.50,0.02,0.30,-0.10,0.05,120
2023-03-01,400,450,C,2023-03-11,0.10,0.05,,0.25,0.05,,,,,
2023-03-01,400,380,put,2023-04-20,2.1,2.3,2.2,NaN,-0.30,0.01,0.2,-0.05,-0.02,
2023-03-01,abc,380,PUT,2023-04-20,2.1,2.3,2.2,0.2,-0.30,0.01,0.2,-0.05,-0.02,
2023-03-01,400,380,STRADDLE,2023-04-20,2.1,2.3,2.2,0.2,-0.30,0.01,0.2,-0.05,-0.02,
2023-03-01,400,380
`

const wideTXT = `[QUOTE_UNIXTIME], [QUOTE_READTIME], [QUOTE_DATE], [QUOTE_TIME_HOURS], [UNDERLYING_LAST], [EXPIRE_DATE], [EXPIRE_UNIX], [DTE], [C_DELTA], [C_GAMMA], [C_VEGA], [C_THETA], [C_RHO], [C_IV], [C_VOLUME], [C_LAST], [C_SIZE], [C_BID], [C_ASK], [STRIKE], [P_BID], [P_ASK], [P_SIZE], [P_LAST], [P_DELTA], [P_GAMMA], [P_VEGA], [P_THETA], [P_RHO], [P_IV], [P_VOLUME], [STRIKE_DISTANCE], [STRIKE_DISTANCE_PCT]
 1672779600, 2023-01-03 16:00, 2023-01-03, 16.000000, 380.82, 2023-01-20, 1674248400, 17.000000, 0.51, 0.03, 0.37, -0.14, 0.08, 0.20, 1200.0, 7.20,  10 x 10, 7.10, 7.30, 380.0, 5.90, 6.10,  10 x 10, 6.00, -0.49, 0.03, 0.37, -0.12, -0.09, 0.21, 800.0, 0.8, 0.002
 1672779600, 2023-01-03 16:00, 2023-01-03, 16.000000, 380.82, 2023-01-20, 1674248400, 17.000000, 0.20, 0.02, 0.25, -0.10, 0.03, 0.18, 300.0, 1.40,  10 x 10, 1.35, 1.45, 395.0, 14.8, x,  10 x 10, 15.0, -0.80, 0.02, 0.25, -0.06, -0.15, 0.19, 10.0, 14.2, 0.037
`

func mustDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func loadString(t *testing.T, name, content string) (*LoadResult, error) {
	t.Helper()
	return NewLoader(Options{}).Load(context.Background(), BytesSource{Label: name, Data: []byte(content)})
}

func TestLoadLongLayout(t *testing.T) {
	res, err := loadString(t, "chain.csv", longCSV)
	require.NoError(t, err)

	assert.Equal(t, 6, res.RowsRead)
	assert.Equal(t, 3, res.RowsRejected)
	require.Len(t, res.Records, 3)
	require.Len(t, res.Rejections, 3)

	first := res.Records[0]
	assert.Equal(t, models.Call, first.OptionType)
	assert.True(t, first.UnderlyingPrice.Equal(mustDecimal("400")))
	assert.Equal(t, 10, first.DaysToExpiry)
	assert.True(t, first.Bid.Valid)
	assert.Equal(t, "5.2", first.Ask.Decimal.String())
	require.NotNil(t, first.Volume)
	assert.Equal(t, int64(120), *first.Volume)
	assert.Equal(t, "chain.csv", first.Source)
	assert.Equal(t, 2, first.Line)

	// crossed quotes are a validation concern, not a parse failure
	assert.Equal(t, models.Call, res.Records[1].OptionType)
	assert.False(t, res.Records[1].Greeks.Gamma.Valid)

	// NaN means absent
	assert.False(t, res.Records[2].ImpliedVolatility.Valid)
	assert.Equal(t, models.Put, res.Records[2].OptionType)

	assert.Equal(t, 5, res.Rejections[0].Line)
	assert.Contains(t, res.Rejections[0].Reason, "underlying_price")
	assert.Contains(t, res.Rejections[1].Reason, "unknown option type")
	assert.Contains(t, res.Rejections[2].Reason, "columns")
}

func TestLoadWideLayoutSplitsCallAndPut(t *testing.T) {
	res, err := loadString(t, "spy_eod_202301.txt", wideTXT)
	require.NoError(t, err)

	assert.Equal(t, 2, res.RowsRead)
	// second row: call parses, put side has a non-numeric ask
	require.Len(t, res.Records, 3)
	require.Len(t, res.Rejections, 1)
	assert.Zero(t, res.RowsRejected)
	assert.Contains(t, res.Rejections[0].Reason, "put side")
	assert.Equal(t, 3, res.Rejections[0].Line)

	call, put := res.Records[0], res.Records[1]
	assert.Equal(t, models.Call, call.OptionType)
	assert.Equal(t, models.Put, put.OptionType)
	assert.True(t, call.StrikePrice.Equal(put.StrikePrice))
	assert.Equal(t, 17, call.DaysToExpiry)
	assert.Equal(t, time.Date(2023, 1, 3, 0, 0, 0, 0, time.UTC), call.QuoteDate)
	assert.Equal(t, "0.51", call.Greeks.Delta.Decimal.String())
	assert.Equal(t, "-0.49", put.Greeks.Delta.Decimal.String())
	assert.Equal(t, "5.9", put.Bid.Decimal.String())

	assert.Equal(t, models.Call, res.Records[2].OptionType)
}

func TestLoadEmptyInputIsInputError(t *testing.T) {
	_, err := loadString(t, "empty.csv", "")
	require.Error(t, err)

	var inputErr *models.InputError
	require.True(t, errors.As(err, &inputErr))
	assert.True(t, errors.Is(err, models.ErrEmptyInput))
}

func TestLoadHeaderOnlyIsInputError(t *testing.T) {
	_, err := loadString(t, "header.csv", strings.SplitN(longCSV, "\n", 2)[0]+"\n")
	assert.True(t, errors.Is(err, models.ErrEmptyInput))
}

func TestLoadUnrecognisedHeader(t *testing.T) {
	_, err := loadString(t, "prices.csv", "symbol,price\nSPY,400\n")
	var inputErr *models.InputError
	require.True(t, errors.As(err, &inputErr))
	assert.Equal(t, "prices.csv", inputErr.Source)
}

func TestLoadMissingFileIsInputError(t *testing.T) {
	_, err := NewLoader(Options{}).Load(context.Background(), FileSource{Path: filepath.Join(t.TempDir(), "missing.csv")})
	var inputErr *models.InputError
	require.True(t, errors.As(err, &inputErr))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoadConcatenatesSources(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.csv")
	b := filepath.Join(dir, "b.csv")
	header := "quote_date,underlying_price,strike_price,option_type,expiry_date,bid,ask,implied_volatility\n"
	require.NoError(t, os.WriteFile(a, []byte(header+"2023-03-01,400,400,C,2023-03-11,5,5.2,0.18\n"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte(header+"2023-03-02,401,400,P,2023-03-11,4,4.2,0.19\n2023-03-02,401,410,P,2023-03-11,9,9.2,0.2\n"), 0o644))

	res, err := NewLoader(Options{}).Load(context.Background(), FileSource{Path: a}, FileSource{Path: b})
	require.NoError(t, err)
	assert.Equal(t, 3, res.RowsRead)
	assert.Len(t, res.Records, 3)
	assert.Equal(t, []string{a, b}, res.Sources)
	assert.Equal(t, b, res.Records[2].Source)
}

func TestLoadSnapshotDateOption(t *testing.T) {
	content := "strike,type,dte,underlying,bid,ask\n100,C,30,101,1,1.1\n"
	opts := Options{SnapshotDate: time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)}
	res, err := NewLoader(opts).Load(context.Background(), BytesSource{Label: "chain.csv", Data: []byte(content)})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, time.Date(2023, 7, 1, 0, 0, 0, 0, time.UTC), res.Records[0].ExpiryDate)
	assert.Equal(t, 30, res.Records[0].DaysToExpiry)
}

func TestLoadSemicolonDelimiter(t *testing.T) {
	content := "quote_date;underlying_price;strike_price;option_type;expiry_date;bid;ask\n2023-03-01;400;400;C;2023-03-11;5;5.2\n"
	res, err := NewLoader(Options{Delimiter: ';'}).Load(context.Background(), BytesSource{Label: "chain.csv", Data: []byte(content)})
	require.NoError(t, err)
	assert.Len(t, res.Records, 1)
}

func TestLoadXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]interface{}{
		{"quote_date", "underlying_price", "strike_price", "option_type", "expiry_date", "bid", "ask", "implied_volatility"},
		{"2023-03-01", 400, 400, "CALL", "2023-03-11", 5.0, 5.2, 0.18},
		{"2023-03-01", 400, 410, "PUT", "2023-03-11", 11.0, 11.4},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	res, err := NewLoader(Options{}).Load(context.Background(), BytesSource{Label: "chain.xlsx", Data: buf.Bytes()})
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	assert.Equal(t, models.Put, res.Records[1].OptionType)
	// trailing empty cell padded back to the header width
	assert.False(t, res.Records[1].ImpliedVolatility.Valid)
	assert.Equal(t, 3, res.Records[1].Line)
}

func TestLoadCancelledContext(t *testing.T) {
	var b strings.Builder
	b.WriteString("quote_date,underlying_price,strike_price,option_type,expiry_date,bid,ask\n")
	for i := 0; i < 3000; i++ {
		b.WriteString("2023-03-01,400,400,C,2023-03-11,5,5.2\n")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLoader(Options{}).Load(ctx, BytesSource{Label: "big.csv", Data: []byte(b.String())})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNormalizeHeader(t *testing.T) {
	assert.Equal(t, "C_DELTA", normalizeHeader(" [C_DELTA]"))
	assert.Equal(t, "UNDERLYING_PRICE", normalizeHeader("underlying price"))
	assert.Equal(t, "QUOTE_DATE", normalizeHeader("\ufeffquote-date"))
}

func TestParseDaysRejectsOutOfRange(t *testing.T) {
	days, err := parseDays("17.000000")
	require.NoError(t, err)
	assert.Equal(t, 17, days)

	for _, s := range []string{"1e30", "-1e30", "36501"} {
		_, err := parseDays(s)
		assert.Error(t, err, s)
	}

	_, err = parseUnixDate("expire_unix", "1e30")
	assert.Error(t, err)
}

func TestLoadRejectsHugeDTE(t *testing.T) {
	content := "quote_date,underlying_price,strike_price,option_type,dte,bid,ask\n" +
		"2023-03-01,400,400,CALL,10,5.0,5.2\n" +
		"2023-03-01,400,400,CALL,1e30,5.0,5.2\n"
	res, err := loadString(t, "chain.csv", content)
	require.NoError(t, err)

	require.Len(t, res.Records, 1)
	assert.Equal(t, 10, res.Records[0].DaysToExpiry)
	assert.Equal(t, 1, res.RowsRejected)
	require.Len(t, res.Rejections, 1)
	assert.Contains(t, res.Rejections[0].Reason, "out of range")
}
