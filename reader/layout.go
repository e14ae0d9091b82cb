package reader

import (
	"fmt"
	"strings"
	"time"

	"optionsflow/models"
)

// normalizeHeader maps "[C_DELTA]", " c delta " and "c-delta" to C_DELTA.
func normalizeHeader(h string) string {
	h = strings.TrimPrefix(strings.TrimSpace(h), "\ufeff")
	h = strings.TrimSpace(strings.Trim(h, "[]"))
	h = strings.ToUpper(h)
	return strings.NewReplacer(" ", "_", "-", "_").Replace(h)
}

type columns map[string]int

func indexColumns(header []string) columns {
	cols := make(columns, len(header))
	for i, h := range header {
		name := normalizeHeader(h)
		if _, dup := cols[name]; !dup {
			cols[name] = i
		}
	}
	return cols
}

// find returns the index of the first present name, or -1.
func (c columns) find(names ...string) int {
	for _, n := range names {
		if i, ok := c[n]; ok {
			return i
		}
	}
	return -1
}

type sideColumns struct {
	bid, ask, last, iv             int
	delta, gamma, vega, theta, rho int
	volume                         int
}

func resolveSide(c columns, prefix string) sideColumns {
	names := func(base ...string) []string {
		out := make([]string, len(base))
		for i, b := range base {
			out[i] = prefix + b
		}
		return out
	}
	return sideColumns{
		bid:    c.find(names("BID")...),
		ask:    c.find(names("ASK")...),
		last:   c.find(names("LAST", "LAST_PRICE")...),
		iv:     c.find(names("IV", "IMPLIED_VOLATILITY")...),
		delta:  c.find(names("DELTA")...),
		gamma:  c.find(names("GAMMA")...),
		vega:   c.find(names("VEGA")...),
		theta:  c.find(names("THETA")...),
		rho:    c.find(names("RHO")...),
		volume: c.find(names("VOLUME")...),
	}
}

// rowParser turns one raw row into records. The wide layout carries call
// and put quotes for one strike on the same row.
type rowParser struct {
	opts  Options
	width int
	wide  bool

	quoteDate, quoteUnix int
	underlying, strike   int
	expiry, expiryUnix   int
	dte, optionType      int

	long sideColumns
	call sideColumns
	put  sideColumns
}

func newRowParser(header []string, opts Options) (*rowParser, error) {
	c := indexColumns(header)
	p := &rowParser{
		opts:       opts,
		width:      len(header),
		quoteDate:  c.find("QUOTE_DATE", "DATE", "SNAPSHOT_DATE", "QUOTEDATE"),
		quoteUnix:  c.find("QUOTE_UNIXTIME"),
		underlying: c.find("UNDERLYING_PRICE", "UNDERLYING_LAST", "UNDERLYING"),
		strike:     c.find("STRIKE_PRICE", "STRIKE"),
		expiry:     c.find("EXPIRY_DATE", "EXPIRE_DATE", "EXPIRATION_DATE", "EXPIRATION", "EXPIRY"),
		expiryUnix: c.find("EXPIRE_UNIX"),
		dte:        c.find("DAYS_TO_EXPIRY", "DTE"),
		optionType: c.find("OPTION_TYPE", "TYPE", "RIGHT", "CALL_PUT"),
	}

	callSide := resolveSide(c, "C_")
	putSide := resolveSide(c, "P_")
	switch {
	case p.optionType >= 0:
		p.long = resolveSide(c, "")
	case hasQuotes(callSide) && hasQuotes(putSide):
		p.wide = true
		p.call = callSide
		p.put = putSide
	default:
		return nil, fmt.Errorf("unrecognised header: no option type column and no C_/P_ quote columns")
	}

	if p.underlying < 0 {
		return nil, fmt.Errorf("missing required column underlying_price")
	}
	if p.strike < 0 {
		return nil, fmt.Errorf("missing required column strike_price")
	}
	if p.quoteDate < 0 && p.quoteUnix < 0 && opts.SnapshotDate.IsZero() {
		return nil, fmt.Errorf("missing required column quote_date")
	}
	if p.expiry < 0 && p.expiryUnix < 0 && p.dte < 0 {
		return nil, fmt.Errorf("missing required column expiry_date")
	}
	return p, nil
}

func hasQuotes(s sideColumns) bool {
	return s.bid >= 0 || s.ask >= 0 || s.iv >= 0
}

// parse returns the records of the row and one reason per rejected side.
func (p *rowParser) parse(fields []string) ([]models.OptionRecord, []string) {
	if len(fields) != p.width {
		return nil, []string{fmt.Sprintf("expected %d columns, got %d", p.width, len(fields))}
	}

	base, err := p.parseBase(fields)
	if err != nil {
		return nil, []string{err.Error()}
	}

	if !p.wide {
		rec := base
		typ, err := models.ParseOptionType(field(fields, p.optionType))
		if err != nil {
			return nil, []string{err.Error()}
		}
		rec.OptionType = typ
		if err := fillSide(&rec, fields, p.long); err != nil {
			return nil, []string{err.Error()}
		}
		return []models.OptionRecord{rec}, nil
	}

	var records []models.OptionRecord
	var reasons []string
	for _, side := range []struct {
		typ  models.OptionType
		cols sideColumns
	}{{models.Call, p.call}, {models.Put, p.put}} {
		rec := base
		rec.OptionType = side.typ
		if err := fillSide(&rec, fields, side.cols); err != nil {
			reasons = append(reasons, fmt.Sprintf("%s side: %v", strings.ToLower(string(side.typ)), err))
			continue
		}
		records = append(records, rec)
	}
	return records, reasons
}

func (p *rowParser) parseBase(fields []string) (models.OptionRecord, error) {
	var rec models.OptionRecord
	var err error

	switch {
	case p.quoteDate >= 0:
		rec.QuoteDate, err = parseDate("quote_date", field(fields, p.quoteDate), p.opts.DateFormat)
	case p.quoteUnix >= 0:
		rec.QuoteDate, err = parseUnixDate("quote_unixtime", field(fields, p.quoteUnix))
	default:
		rec.QuoteDate = models.CalendarDate(p.opts.SnapshotDate)
	}
	if err != nil {
		return rec, err
	}

	if rec.UnderlyingPrice, err = parseRequiredDecimal("underlying_price", field(fields, p.underlying)); err != nil {
		return rec, err
	}
	if rec.StrikePrice, err = parseRequiredDecimal("strike_price", field(fields, p.strike)); err != nil {
		return rec, err
	}

	if rec.ExpiryDate, err = p.parseExpiry(fields, rec.QuoteDate); err != nil {
		return rec, err
	}
	rec.DaysToExpiry = models.DaysBetween(rec.QuoteDate, rec.ExpiryDate)
	return rec, nil
}

func (p *rowParser) parseExpiry(fields []string, quote time.Time) (time.Time, error) {
	if p.expiry >= 0 && !isEmpty(field(fields, p.expiry)) {
		return parseDate("expiry_date", field(fields, p.expiry), p.opts.DateFormat)
	}
	if p.expiryUnix >= 0 && !isEmpty(field(fields, p.expiryUnix)) {
		return parseUnixDate("expire_unix", field(fields, p.expiryUnix))
	}
	if p.dte >= 0 && !isEmpty(field(fields, p.dte)) {
		days, err := parseDays(field(fields, p.dte))
		if err != nil {
			return time.Time{}, err
		}
		return quote.AddDate(0, 0, days), nil
	}
	return time.Time{}, fmt.Errorf("missing expiry_date")
}

func fillSide(rec *models.OptionRecord, fields []string, c sideColumns) error {
	var err error
	if rec.Bid, err = parseOptionalDecimal("bid", field(fields, c.bid)); err != nil {
		return err
	}
	if rec.Ask, err = parseOptionalDecimal("ask", field(fields, c.ask)); err != nil {
		return err
	}
	if rec.LastPrice, err = parseOptionalDecimal("last_price", field(fields, c.last)); err != nil {
		return err
	}
	if rec.ImpliedVolatility, err = parseOptionalDecimal("implied_volatility", field(fields, c.iv)); err != nil {
		return err
	}
	if rec.Greeks.Delta, err = parseOptionalDecimal("delta", field(fields, c.delta)); err != nil {
		return err
	}
	if rec.Greeks.Gamma, err = parseOptionalDecimal("gamma", field(fields, c.gamma)); err != nil {
		return err
	}
	if rec.Greeks.Vega, err = parseOptionalDecimal("vega", field(fields, c.vega)); err != nil {
		return err
	}
	if rec.Greeks.Theta, err = parseOptionalDecimal("theta", field(fields, c.theta)); err != nil {
		return err
	}
	if rec.Greeks.Rho, err = parseOptionalDecimal("rho", field(fields, c.rho)); err != nil {
		return err
	}
	if rec.Volume, err = parseVolume(field(fields, c.volume)); err != nil {
		return err
	}
	return nil
}
