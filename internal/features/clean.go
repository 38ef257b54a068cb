// Package features turns collected attributes into the engineered
// vectors the classifiers were trained on.
package features

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/opensource-finance/fraudlens/internal/domain"
	"github.com/opensource-finance/fraudlens/internal/encoder"
)

// Encoder maps a categorical value to its trained code.
type Encoder interface {
	Encode(category, value string) int
}

// Fixed card brand (card4) and usage (card6) codes.
var (
	CardBrandCodes = map[string]float64{
		"visa":             0,
		"mastercard":       1,
		"american express": 2,
		"discover":         3,
	}
	CardUsageCodes = map[string]float64{
		"credit":          0,
		"debit":           1,
		"debit or credit": 2,
		"charge card":     3,
	}
)

// Device type codes.
const (
	DeviceDesktop = 1
	DeviceMobile  = 2
)

// DeviceTypeCodes maps a device type answer to its code.
var DeviceTypeCodes = map[string]float64{"desktop": DeviceDesktop, "mobile": DeviceMobile}

// cleaner accumulates a record and notes which keys fell back to defaults.
type cleaner struct {
	rec domain.CleanedRecord
	enc Encoder
}

// Clean converts raw attributes into a fully populated CleanedRecord.
// Absent or unparseable values take the documented defaults and are
// recorded in Defaulted; Clean itself never fails.
func Clean(raw domain.RawAttributes, enc Encoder) domain.CleanedRecord {
	c := &cleaner{enc: enc}
	c.rec.Defaulted = make(map[string]bool)

	if id, ok := c.number(raw, domain.FieldTransactionID, domain.KeyTransactionID, 0); ok {
		c.rec.TransactionID = int64(id)
	}
	c.rec.TransactionDT, _ = c.number(raw, domain.FieldTransactionDate, domain.KeyTransactionDT, 0)
	c.rec.TransactionAmt, _ = c.number(raw, domain.FieldTransactionAmount, domain.KeyTransactionAmt, 0)

	c.rec.ProductType, c.rec.Encoded.ProductCD = c.category(raw[domain.FieldProductType],
		domain.KeyProductCD, encoder.CategoryProductType, strings.ToLower)

	card := asMap(raw[domain.FieldCardData])
	c.rec.Card.Card1, _ = c.number(card, domain.SubCard1, domain.KeyCard1, 0)
	c.rec.Card.Card2, _ = c.number(card, domain.SubCard2, domain.KeyCard2, 0)
	c.rec.Card.Card3, _ = c.number(card, domain.SubCard3, domain.KeyCard3, 0)
	c.rec.Card.Card4 = c.lookup(card[domain.SubCard4], domain.KeyCard4, CardBrandCodes)
	c.rec.Card.Card5, _ = c.number(card, domain.SubCard5, domain.KeyCard5, 0)
	c.rec.Card.Card6 = c.lookup(card[domain.SubCard6], domain.KeyCard6, CardUsageCodes)

	c.rec.Addr1, _ = c.number(raw, domain.FieldAddress1, domain.KeyAddr1, 0)
	c.rec.Addr2, _ = c.number(raw, domain.FieldAddress2, domain.KeyAddr2, 0)
	c.rec.Dist1, _ = c.number(raw, domain.FieldDistance, domain.KeyDist1, 0)

	c.rec.PEmailDomain, c.rec.Encoded.PEmailDomain = c.category(raw[domain.FieldPurchaserEmailDomain],
		domain.KeyPEmailDomain, encoder.CategoryEmailDomain, EmailDomain)
	c.rec.REmailDomain, c.rec.Encoded.REmailDomain = c.category(raw[domain.FieldRecipientEmailDomain],
		domain.KeyREmailDomain, encoder.CategoryEmailDomain, EmailDomain)

	device := asMap(raw[domain.FieldDeviceData])
	c.rec.DeviceInfo, c.rec.Encoded.DeviceInfo = c.category(device[domain.SubDeviceInfo],
		domain.KeyDeviceInfo, encoder.CategoryDeviceInfo, nil)
	c.rec.DeviceType = c.lookup(device[domain.SubDeviceType], domain.KeyDeviceType, DeviceTypeCodes)

	c.rec.Hours, _ = c.number(raw, domain.FieldHours, domain.KeyHours, 0)
	c.rec.Days, _ = c.number(raw, domain.FieldDays, domain.KeyDays, 0)
	c.rec.Weekdays, _ = c.number(raw, domain.FieldWeekdays, domain.KeyWeekdays, 0)

	c.rec.Amounts.Mean, _ = c.number(raw, domain.FieldMeanAmount, domain.KeyMeanAmount, 0)
	c.rec.Amounts.Min, _ = c.number(raw, domain.FieldMinAmount, domain.KeyMinAmount, 0)
	c.rec.Amounts.Max, _ = c.number(raw, domain.FieldMaxAmount, domain.KeyMaxAmount, 0)
	c.rec.Amounts.Std, _ = c.number(raw, domain.FieldStdAmount, domain.KeyStdAmount, 0)
	c.cardRange(raw[domain.FieldCardAmountRange])

	c.rec.MData = asMap(raw[domain.FieldBillingData])
	c.rec.VData = asMap(raw[domain.FieldBehavioralData])
	c.rec.CData = asMap(raw[domain.FieldUsageData])
	c.rec.DData = asMap(raw[domain.FieldTimeGapData])

	m := c.group(c.rec.MData, domain.BillingFields, domain.MissingSentinel)
	c.rec.Billing = domain.BillingFlags{M1: m[0], M2: m[1], M3: m[2], M4: m[3], M5: m[4], M6: m[5], M7: m[6]}

	v := c.group(c.rec.CData, domain.VelocityFields, 0)
	c.rec.Velocity = domain.VelocityCounters{C5: v[0], C9: v[1], C14: v[2], C7: v[3], C12: v[4], C6: v[5]}

	d := c.group(c.rec.DData, domain.TimeGapFields, 0)
	c.rec.TimeGap = domain.TimeGapCounters{D5: d[0], D4: d[1], D3: d[2], D11: d[3], D2: d[4]}

	b := c.group(c.rec.VData, domain.BehavioralFields, 0)
	c.rec.Behavioral = domain.BehavioralFlags{
		V88: b[0], V14: b[1], V1: b[2], V65: b[3], V41: b[4], V94: b[5],
		V35: b[6], V12: b[7], V241: b[8], V69: b[9], V75: b[10],
	}

	return c.rec
}

// number reads a numeric field, falling back to def.
func (c *cleaner) number(m map[string]any, field, key string, def float64) (float64, bool) {
	if f, ok := Coerce(m[field]); ok {
		return f, true
	}
	c.rec.Defaulted[key] = true
	return def, false
}

// category returns the cleaned string and its code. A numeric value is
// taken as an already-encoded code.
func (c *cleaner) category(v any, key, category string, normalize func(string) string) (string, int) {
	if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
		s = strings.TrimSpace(s)
		if normalize != nil {
			s = normalize(s)
		}
		return s, c.encode(category, s)
	}
	if f, ok := Coerce(v); ok {
		return strconv.Itoa(int(f)), int(f)
	}
	c.rec.Defaulted[key] = true
	return domain.UnknownCategory, c.encode(category, domain.UnknownCategory)
}

func (c *cleaner) encode(category, value string) int {
	if c.enc == nil {
		return encoder.Sentinel
	}
	return c.enc.Encode(category, value)
}

// lookup resolves a numeric code or a named value from table, defaulting
// to the missing sentinel.
func (c *cleaner) lookup(v any, key string, table map[string]float64) float64 {
	if s, ok := v.(string); ok {
		if code, ok := table[strings.ToLower(strings.TrimSpace(s))]; ok {
			return code
		}
	}
	if f, ok := Coerce(v); ok {
		return f
	}
	c.rec.Defaulted[key] = true
	return domain.MissingSentinel
}

// cardRange accepts {"Minimum": x, "Maximum": y} or [x, y].
func (c *cleaner) cardRange(v any) {
	var lo, hi any
	switch r := v.(type) {
	case map[string]any:
		lo, hi = r[domain.SubMinimum], r[domain.SubMaximum]
	case []any:
		if len(r) == 2 {
			lo, hi = r[0], r[1]
		}
	case []float64:
		if len(r) == 2 {
			lo, hi = r[0], r[1]
		}
	}

	var ok bool
	if c.rec.CardRange.Min, ok = Coerce(lo); !ok {
		c.rec.Defaulted[domain.KeyCardMin] = true
	}
	if c.rec.CardRange.Max, ok = Coerce(hi); !ok {
		c.rec.Defaulted[domain.KeyCardMax] = true
	}
}

// group reads fields from sub in order; each field name is also its
// canonical key.
func (c *cleaner) group(sub map[string]any, fields []string, def float64) []float64 {
	out := make([]float64, len(fields))
	for i, f := range fields {
		out[i], _ = c.number(sub, f, f, def)
	}
	return out
}

// EmailDomain reduces an address to its domain. Values without "@" are
// returned unchanged.
func EmailDomain(s string) string {
	if i := strings.LastIndex(s, "@"); i >= 0 {
		return s[i+1:]
	}
	return s
}

// Coerce converts v to a float64. It reports false for nil, non-numeric
// strings and unsupported types.
func Coerce(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// CoerceOrZero is Coerce with the lossy 0.0 fallback.
func CoerceOrZero(v any) float64 {
	f, ok := Coerce(v)
	if !ok {
		return 0
	}
	return f
}

func asMap(v any) map[string]any {
	switch m := v.(type) {
	case map[string]any:
		return m
	case domain.RawAttributes:
		return m
	case map[string]float64:
		out := make(map[string]any, len(m))
		for k, f := range m {
			out[k] = f
		}
		return out
	default:
		return map[string]any{}
	}
}

// SpreadRatio is ln(mean)/ln(std) of the range [lo, hi], or 1 when the
// logarithms are undefined or the denominator vanishes.
func SpreadRatio(lo, hi float64) float64 {
	mean := (lo + hi) / 2
	std := math.Abs(hi-lo) / 2
	if std == 0 || std == 1 || mean <= 0 {
		return 1
	}
	return math.Log(mean) / math.Log(std)
}

// AmountRatios relates amt to the card's usual range [lo, hi]: the
// difference to the mean, the ratio to the mean, and the absolute
// deviation of that ratio from SpreadRatio.
func AmountRatios(amt, lo, hi float64) (diff, ratio, deviation float64) {
	mean := (lo + hi) / 2

	diff = amt - mean
	if mean != 0 {
		ratio = amt / mean
	}
	deviation = math.Abs(ratio - SpreadRatio(lo, hi))
	return diff, ratio, deviation
}

// LeadingDigit returns the most significant decimal digit of |v|.
func LeadingDigit(v float64) float64 {
	v = math.Trunc(math.Abs(v))
	for v >= 10 {
		v = math.Trunc(v / 10)
	}
	return v
}
