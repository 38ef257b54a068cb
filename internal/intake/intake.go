// Package intake converts a submitted fraud questionnaire into the raw
// attributes the inference pipeline consumes.
package intake

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/fraudlens/internal/domain"
	"github.com/opensource-finance/fraudlens/internal/features"
)

// ReferenceDate is the origin of TransactionDT.
var ReferenceDate = time.Date(2017, time.December, 1, 0, 0, 0, 0, time.UTC)

// ErrInvalidAnswers is wrapped by every validation failure.
var ErrInvalidAnswers = errors.New("invalid questionnaire answers")

// Address is a postal address.
type Address struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	Country    string `json:"country"`
	PostalCode string `json:"postalCode"`
}

func (a Address) empty() bool {
	return a.Street == "" && a.City == "" && a.State == "" && a.Country == ""
}

// Card describes the payment card.
type Card struct {
	Card1 float64 `json:"card1"`
	Card2 float64 `json:"card2"`
	Card3 float64 `json:"card3"`
	Card5 float64 `json:"card5"`

	// PaidByCard is "yes" or "no"; brand and usage only count for "yes".
	PaidByCard string `json:"paidByCard"`
	Brand      string `json:"brand"`
	Usage      string `json:"usage"`

	HolderName string  `json:"holderName"`
	UsualMin   float64 `json:"usualMin"`
	UsualMax   float64 `json:"usualMax"`
}

// Counts are the per-period transaction counts from the sliders.
type Counts struct {
	SmallPerDay   float64 `json:"smallPerDay"`
	LargePerDay   float64 `json:"largePerDay"`
	SmallPerWeek  float64 `json:"smallPerWeek"`
	LargePerWeek  float64 `json:"largePerWeek"`
	SmallPerMonth float64 `json:"smallPerMonth"`
	LargePerMonth float64 `json:"largePerMonth"`
}

// Gaps are the usual days between transactions of each size.
type Gaps struct {
	Small       float64 `json:"small"`
	Medium      float64 `json:"medium"`
	Large       float64 `json:"large"`
	VeryLarge   float64 `json:"veryLarge"`
	Exceptional float64 `json:"exceptional"`
}

// Habits are the behavioral questions. Yes/no answers are "yes" or "no";
// anything else counts as unanswered.
type Habits struct {
	AccountInfoChanged string `json:"accountInfoChanged"`
	OtherFraud         string `json:"otherFraud"`
	OwnDevice          string `json:"ownDevice"`
	PurchaseHistory    string `json:"purchaseHistory"`
	AccountAge         string `json:"accountAge"`
	PasswordChange     string `json:"passwordChange"`
	OnlineFrequency    string `json:"onlineFrequency"`
}

// Answers is one completed questionnaire.
type Answers struct {
	Name  string  `json:"name"`
	Phone string  `json:"phone"`
	Home  Address `json:"home"`

	TransactionID      int64     `json:"transactionId"`
	TransactionTime    time.Time `json:"transactionTime"`
	Amount             float64   `json:"amount"`
	UsualMin           float64   `json:"usualMin"`
	UsualMax           float64   `json:"usualMax"`
	Distance           float64   `json:"distance"`
	ProductType        string    `json:"productType"`
	PurchaserEmail     string    `json:"purchaserEmail"`
	RecipientEmail     string    `json:"recipientEmail"`
	ReceiptEmail       string    `json:"receiptEmail"`
	TransactionPhone   string    `json:"transactionPhone"`
	TransactionAddress *Address  `json:"transactionAddress,omitempty"` // nil: same as home

	Card Card `json:"card"`

	BillingSameAsShipping string `json:"billingSameAsShipping"`
	SameDeviceAsLast      string `json:"sameDeviceAsLast"`
	NearHome              string `json:"nearHome"`

	Habits Habits `json:"habits"`
	Counts Counts `json:"counts"`
	Gaps   Gaps   `json:"gaps"`

	DeviceType string `json:"deviceType"`
	DeviceInfo string `json:"deviceInfo"`
}

// Slider normalizers.
const (
	normSmallPerDay   = 2256
	normLargePerDay   = 3188
	normSmallPerWeek  = 2252
	normLargePerWeek  = 1429
	normSmallPerMonth = 376
	normLargePerMonth = 572

	normGapSmall       = 641
	normGapMedium      = 936
	normGapLarge       = 1076
	normGapVeryLarge   = 1088
	normGapExceptional = 1213
)

// Ordinal answer scales; an answer not listed takes the last rank.
var (
	purchaseHistoryScale = []string{"mostly small transactions", "a mix of small and large transactions"}
	accountAgeScale      = []string{"more than a year", "6-12 months", "1-6 months"}
	passwordChangeScale  = []string{"less than once a year", "once a year", "every 6 months", "every 3 months"}
	onlineFrequencyScale = []string{"daily", "weekly", "bi-weekly", "monthly", "every few months"}
)

// Billing match values.
const (
	matchSame      = 1
	matchDifferent = 2
)

// Intake converts questionnaires into raw attributes.
type Intake struct {
	deriver *Deriver
}

// New creates an intake with the default derivation rules.
func New() (*Intake, error) {
	d, err := NewDeriver(DefaultRules)
	if err != nil {
		return nil, err
	}
	return &Intake{deriver: d}, nil
}

// Validate checks the answers that every conversion depends on.
func (a *Answers) Validate() error {
	if a.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidAnswers)
	}
	if a.UsualMin > a.UsualMax {
		return fmt.Errorf("%w: usual amount range is inverted", ErrInvalidAnswers)
	}
	if a.Card.UsualMin > a.Card.UsualMax {
		return fmt.Errorf("%w: card amount range is inverted", ErrInvalidAnswers)
	}
	if a.TransactionTime.IsZero() {
		return fmt.Errorf("%w: transaction time is required", ErrInvalidAnswers)
	}
	return nil
}

// Attributes builds the raw attribute set for a.
func (in *Intake) Attributes(a *Answers) (domain.RawAttributes, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}

	txAddr := a.Home
	if a.TransactionAddress != nil {
		txAddr = *a.TransactionAddress
	}
	addr1, addr2, err := splitPostalCode(txAddr.PostalCode)
	if err != nil {
		return nil, err
	}

	ts := a.TransactionTime
	flags, err := in.deriver.Derive(Window{
		Amount:   a.Amount,
		UsualMin: a.UsualMin,
		UsualMax: a.UsualMax,
		Hour:     float64(ts.Hour()),
	})
	if err != nil {
		return nil, err
	}

	behavioral := map[string]any{
		"V1":  yesNo(a.Habits.AccountInfoChanged, 0, 1, 0),
		"V14": yesNo(a.Habits.OtherFraud, 0, 1, 0),
		"V88": yesNo(a.Habits.OwnDevice, 1, 0, 0),
		"V94": ordinal(a.Habits.PurchaseHistory, purchaseHistoryScale),
		"V12": addressDistance(a.Home, txAddr),
		"V35": ordinal(a.Habits.AccountAge, accountAgeScale),
		"V75": ordinal(a.Habits.PasswordChange, passwordChangeScale),
		"V69": ordinal(a.Habits.OnlineFrequency, onlineFrequencyScale),
	}
	for flag, v := range flags {
		behavioral[flag] = v
	}

	brand, usage := float64(domain.MissingSentinel), float64(domain.MissingSentinel)
	if normalize(a.Card.PaidByCard) == "yes" {
		brand = code(a.Card.Brand, features.CardBrandCodes)
		usage = code(a.Card.Usage, features.CardUsageCodes)
	}

	return domain.RawAttributes{
		domain.FieldTransactionID:     float64(a.TransactionID),
		domain.FieldTransactionDate:   math.Trunc(ts.Sub(ReferenceDate).Seconds()),
		domain.FieldTransactionAmount: a.Amount,
		domain.FieldProductType:       a.ProductType,
		domain.FieldCardData: map[string]any{
			domain.SubCard1: a.Card.Card1,
			domain.SubCard2: a.Card.Card2,
			domain.SubCard3: a.Card.Card3,
			domain.SubCard4: brand,
			domain.SubCard5: a.Card.Card5,
			domain.SubCard6: usage,
		},
		domain.FieldAddress1:             addr1,
		domain.FieldAddress2:             addr2,
		domain.FieldDistance:             a.Distance,
		domain.FieldPurchaserEmailDomain: emailDomain(a.PurchaserEmail),
		domain.FieldRecipientEmailDomain: emailDomain(a.RecipientEmail),
		domain.FieldDeviceData: map[string]any{
			domain.SubDeviceInfo: a.DeviceInfo,
			domain.SubDeviceType: code(a.DeviceType, features.DeviceTypeCodes),
		},
		domain.FieldHours:      float64(ts.Hour()),
		domain.FieldDays:       float64(ts.Day()),
		domain.FieldWeekdays:   float64((int(ts.Weekday()) + 6) % 7),
		domain.FieldMeanAmount: logMean(a.UsualMin, a.UsualMax),
		domain.FieldMinAmount:  a.UsualMin,
		domain.FieldMaxAmount:  a.UsualMax,
		domain.FieldStdAmount:  features.SpreadRatio(a.UsualMin, a.UsualMax),
		domain.FieldCardAmountRange: map[string]any{
			domain.SubMinimum: a.Card.UsualMin,
			domain.SubMaximum: a.Card.UsualMax,
		},
		domain.FieldBillingData:    billing(a, txAddr),
		domain.FieldBehavioralData: behavioral,
		domain.FieldUsageData: map[string]any{
			"C7":  a.Counts.SmallPerDay / normSmallPerDay,
			"C12": a.Counts.LargePerDay / normLargePerDay,
			"C6":  a.Counts.SmallPerWeek / normSmallPerWeek,
			"C14": a.Counts.LargePerWeek / normLargePerWeek,
			"C5":  a.Counts.SmallPerMonth / normSmallPerMonth,
			"C9":  a.Counts.LargePerMonth / normLargePerMonth,
		},
		domain.FieldTimeGapData: map[string]any{
			"D2":  a.Gaps.Small / normGapSmall,
			"D11": a.Gaps.Medium / normGapMedium,
			"D3":  a.Gaps.Large / normGapLarge,
			"D5":  a.Gaps.VeryLarge / normGapVeryLarge,
			"D4":  a.Gaps.Exceptional / normGapExceptional,
		},
	}, nil
}

// logMean is ln of the midpoint of [lo, hi], or 0 for a non-positive
// midpoint.
func logMean(lo, hi float64) float64 {
	mean := (lo + hi) / 2
	if mean <= 0 {
		return 0
	}
	return math.Log(mean)
}

func billing(a *Answers, txAddr Address) map[string]any {
	m4 := float64(domain.MissingSentinel)
	switch normalize(a.SameDeviceAsLast) {
	case "yes":
		m4 = yesNo(a.NearHome, 4, 5, domain.MissingSentinel)
	case "no":
		m4 = 3
	}

	return map[string]any{
		"M1": yesNo(a.BillingSameAsShipping, matchSame, matchDifferent, domain.MissingSentinel),
		"M2": match(a.ReceiptEmail, a.PurchaserEmail),
		"M3": match(a.Card.HolderName, a.Name),
		"M4": m4,
		"M5": match(a.TransactionPhone, a.Phone),
		"M6": addressMatch(a.Home, txAddr),
		"M7": match(txAddr.Country, a.Home.Country),
	}
}

// match compares two answers: same, different, or unknown when either
// is blank.
func match(a, b string) float64 {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	switch {
	case a == "" || b == "":
		return domain.MissingSentinel
	case a == b:
		return matchSame
	default:
		return matchDifferent
	}
}

func addressMatch(home, tx Address) float64 {
	if home.empty() || tx.empty() {
		return domain.MissingSentinel
	}
	if home == tx {
		return matchSame
	}
	return matchDifferent
}

// addressDistance grades how far the transaction address is from home:
// 0 identical, 1 same city, 2 same state, 3 same country, scaled by 1/3.
// A different country is graded 1 as well.
func addressDistance(home, tx Address) float64 {
	var d float64
	switch {
	case home == tx:
		d = 0
	case home.City == tx.City:
		d = 1
	case home.State == tx.State:
		d = 2
	case home.Country == tx.Country:
		d = 3
	default:
		d = 1
	}
	return d / 3
}

func yesNo(answer string, yes, no, unanswered float64) float64 {
	switch normalize(answer) {
	case "yes":
		return yes
	case "no":
		return no
	default:
		return unanswered
	}
}

// ordinal ranks answer on scale and normalizes the rank to [0,1].
func ordinal(answer string, scale []string) float64 {
	a := normalize(answer)
	for i, s := range scale {
		if a == s {
			return float64(i) / float64(len(scale))
		}
	}
	return 1
}

func emailDomain(email string) string {
	if !strings.Contains(email, "@") {
		return domain.UnknownCategory
	}
	return features.EmailDomain(strings.TrimSpace(email))
}

// splitPostalCode splits a postal code into the area (addr1, digits after
// the third) and region prefix (addr2, first three digits).
func splitPostalCode(code string) (addr1, addr2 float64, err error) {
	code = strings.TrimSpace(code)
	if len(code) < 4 {
		return 0, 0, fmt.Errorf("%w: postal code %q is too short", ErrInvalidAnswers, code)
	}
	if addr1, err = strconv.ParseFloat(code[3:], 64); err != nil {
		return 0, 0, fmt.Errorf("%w: postal code %q is not numeric", ErrInvalidAnswers, code)
	}
	if addr2, err = strconv.ParseFloat(code[:3], 64); err != nil {
		return 0, 0, fmt.Errorf("%w: postal code %q is not numeric", ErrInvalidAnswers, code)
	}
	return addr1, addr2, nil
}

// code resolves a fixed-table answer; anything unanswered or unlisted is
// the missing sentinel.
func code(answer string, table map[string]float64) float64 {
	if c, ok := table[normalize(answer)]; ok {
		return c
	}
	return domain.MissingSentinel
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
