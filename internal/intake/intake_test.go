package intake

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/opensource-finance/fraudlens/internal/domain"
	"github.com/opensource-finance/fraudlens/internal/features"
)

func completeAnswers() *Answers {
	home := Address{Street: "1 Main St", City: "Springfield", State: "IL", Country: "US", PostalCode: "123456"}
	return &Answers{
		Name:             "Alex Doe",
		Phone:            "555-0100",
		Home:             home,
		TransactionID:    42,
		TransactionTime:  time.Date(2018, time.March, 15, 14, 30, 0, 0, time.UTC),
		Amount:           250,
		UsualMin:         100,
		UsualMax:         500,
		Distance:         12,
		ProductType:      "Retail",
		PurchaserEmail:   "alex@gmail.com",
		RecipientEmail:   "sam@yahoo.com",
		ReceiptEmail:     "alex@gmail.com",
		TransactionPhone: "555-0199",
		Card: Card{
			Card1:      1000,
			Card2:      555,
			Card3:      150,
			Card5:      226,
			PaidByCard: "yes",
			Brand:      "Visa",
			Usage:      "debit",
			HolderName: "Alex Doe",
			UsualMin:   100,
			UsualMax:   300,
		},
		BillingSameAsShipping: "yes",
		SameDeviceAsLast:      "yes",
		NearHome:              "no",
		Habits: Habits{
			AccountInfoChanged: "no",
			OtherFraud:         "yes",
			OwnDevice:          "yes",
			PurchaseHistory:    "mostly small transactions",
			AccountAge:         "6-12 months",
			PasswordChange:     "every 3 months",
			OnlineFrequency:    "weekly",
		},
		Counts:     Counts{SmallPerDay: 2256, LargePerWeek: 1429},
		Gaps:       Gaps{Small: 641, Exceptional: 0},
		DeviceType: "desktop",
		DeviceInfo: "Windows",
	}
}

func newIntake(t *testing.T) *Intake {
	t.Helper()
	in, err := New()
	if err != nil {
		t.Fatalf("failed to create intake: %v", err)
	}
	return in
}

func TestAttributesCleanWithoutDefaults(t *testing.T) {
	in := newIntake(t)

	raw, err := in.Attributes(completeAnswers())
	if err != nil {
		t.Fatalf("Attributes failed: %v", err)
	}

	rec := features.Clean(raw, nil)
	for key := range rec.Defaulted {
		t.Errorf("expected %s to be supplied, got default", key)
	}
}

func TestAttributesValues(t *testing.T) {
	in := newIntake(t)

	raw, err := in.Attributes(completeAnswers())
	if err != nil {
		t.Fatalf("Attributes failed: %v", err)
	}
	rec := features.Clean(raw, nil)

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"TransactionDT", rec.TransactionDT, 9037800},
		{"Hours", rec.Hours, 14},
		{"Days", rec.Days, 15},
		{"Weekdays", rec.Weekdays, 3},
		{"addr1", rec.Addr1, 456},
		{"addr2", rec.Addr2, 123},
		{"card4", rec.Card.Card4, 0},
		{"card6", rec.Card.Card6, 1},
		{"DeviceType", rec.DeviceType, features.DeviceDesktop},
		{"mean_last", rec.Amounts.Mean, math.Log(300)},
		{"std_last", rec.Amounts.Std, math.Log(300) / math.Log(200)},
		{"card_min_last", rec.CardRange.Min, 100},
		{"card_max_last", rec.CardRange.Max, 300},
		{"M1", rec.Billing.M1, 1},
		{"M2", rec.Billing.M2, 1},
		{"M3", rec.Billing.M3, 1},
		{"M4", rec.Billing.M4, 5},
		{"M5", rec.Billing.M5, 2},
		{"M6", rec.Billing.M6, 1},
		{"M7", rec.Billing.M7, 1},
		{"V1", rec.Behavioral.V1, 1},
		{"V14", rec.Behavioral.V14, 0},
		{"V88", rec.Behavioral.V88, 1},
		{"V94", rec.Behavioral.V94, 0},
		{"V12", rec.Behavioral.V12, 0},
		{"V35", rec.Behavioral.V35, 1.0 / 3},
		{"V75", rec.Behavioral.V75, 3.0 / 4},
		{"V69", rec.Behavioral.V69, 1.0 / 5},
		{"V41", rec.Behavioral.V41, 0},
		{"V65", rec.Behavioral.V65, 1},
		{"V241", rec.Behavioral.V241, 1},
		{"C7", rec.Velocity.C7, 1},
		{"C14", rec.Velocity.C14, 1},
		{"C12", rec.Velocity.C12, 0},
		{"D2", rec.TimeGap.D2, 1},
		{"D4", rec.TimeGap.D4, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if math.Abs(tt.got-tt.want) > 1e-9 {
				t.Errorf("expected %v, got %v", tt.want, tt.got)
			}
		})
	}

	if rec.PEmailDomain != "gmail.com" || rec.REmailDomain != "yahoo.com" {
		t.Errorf("unexpected email domains %q, %q", rec.PEmailDomain, rec.REmailDomain)
	}
	if rec.ProductType != "retail" {
		t.Errorf("expected product type retail, got %q", rec.ProductType)
	}
}

func TestAttributesTransactionAddress(t *testing.T) {
	in := newIntake(t)

	a := completeAnswers()
	a.TransactionAddress = &Address{Street: "9 Elm St", City: "Chicago", State: "IL", Country: "US", PostalCode: "606011"}

	raw, err := in.Attributes(a)
	if err != nil {
		t.Fatalf("Attributes failed: %v", err)
	}
	rec := features.Clean(raw, nil)

	if rec.Addr1 != 11 || rec.Addr2 != 606 {
		t.Errorf("expected postal split 11/606, got %v/%v", rec.Addr1, rec.Addr2)
	}
	if rec.Billing.M6 != 2 {
		t.Errorf("expected M6 different (2), got %v", rec.Billing.M6)
	}
	if rec.Billing.M7 != 1 {
		t.Errorf("expected M7 same country (1), got %v", rec.Billing.M7)
	}
	if math.Abs(rec.Behavioral.V12-2.0/3) > 1e-9 {
		t.Errorf("expected V12 same state (2/3), got %v", rec.Behavioral.V12)
	}
}

func TestAttributesAmountOutsideUsualRange(t *testing.T) {
	in := newIntake(t)

	a := completeAnswers()
	a.Amount = 900
	a.TransactionTime = time.Date(2018, time.March, 15, 23, 0, 0, 0, time.UTC)

	raw, err := in.Attributes(a)
	if err != nil {
		t.Fatalf("Attributes failed: %v", err)
	}
	rec := features.Clean(raw, nil)

	if rec.Behavioral.V41 != 1 {
		t.Errorf("expected V41 = 1 above usual max, got %v", rec.Behavioral.V41)
	}
	if rec.Behavioral.V241 != 0 {
		t.Errorf("expected V241 = 0 outside usual range, got %v", rec.Behavioral.V241)
	}
	if rec.Behavioral.V65 != 0 {
		t.Errorf("expected V65 = 0 outside business hours, got %v", rec.Behavioral.V65)
	}
}

func TestAttributesUnansweredQuestions(t *testing.T) {
	in := newIntake(t)

	a := completeAnswers()
	a.Card.PaidByCard = "no"
	a.BillingSameAsShipping = ""
	a.SameDeviceAsLast = "no"
	a.ReceiptEmail = ""
	a.Habits.AccountAge = "not sure"

	raw, err := in.Attributes(a)
	if err != nil {
		t.Fatalf("Attributes failed: %v", err)
	}
	rec := features.Clean(raw, nil)

	if rec.Card.Card4 != domain.MissingSentinel || rec.Card.Card6 != domain.MissingSentinel {
		t.Errorf("expected card brand and usage to be unknown, got %v/%v", rec.Card.Card4, rec.Card.Card6)
	}
	if rec.Billing.M1 != domain.MissingSentinel {
		t.Errorf("expected M1 unknown, got %v", rec.Billing.M1)
	}
	if rec.Billing.M2 != domain.MissingSentinel {
		t.Errorf("expected M2 unknown, got %v", rec.Billing.M2)
	}
	if rec.Billing.M4 != 3 {
		t.Errorf("expected M4 = 3 for a new device, got %v", rec.Billing.M4)
	}
	if rec.Behavioral.V35 != 1 {
		t.Errorf("expected unlisted answer to rank last, got %v", rec.Behavioral.V35)
	}
}

func TestAttributesUnknownCategoricals(t *testing.T) {
	in := newIntake(t)

	tests := []struct {
		name   string
		mutate func(*Answers)
		got    func(rec *domain.CleanedRecord) float64
		key    string
	}{
		{"DeviceTypeUnanswered", func(a *Answers) { a.DeviceType = "" },
			func(rec *domain.CleanedRecord) float64 { return rec.DeviceType }, domain.KeyDeviceType},
		{"DeviceTypeUnlisted", func(a *Answers) { a.DeviceType = "tablet" },
			func(rec *domain.CleanedRecord) float64 { return rec.DeviceType }, domain.KeyDeviceType},
		{"CardBrandUnlisted", func(a *Answers) { a.Card.Brand = "unionpay" },
			func(rec *domain.CleanedRecord) float64 { return rec.Card.Card4 }, domain.KeyCard4},
		{"CardUsageUnlisted", func(a *Answers) { a.Card.Usage = "" },
			func(rec *domain.CleanedRecord) float64 { return rec.Card.Card6 }, domain.KeyCard6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := completeAnswers()
			tt.mutate(a)

			raw, err := in.Attributes(a)
			if err != nil {
				t.Fatalf("Attributes failed: %v", err)
			}
			rec := features.Clean(raw, nil)

			if got := tt.got(&rec); got != domain.MissingSentinel {
				t.Errorf("expected %v, got %v", domain.MissingSentinel, got)
			}
			if rec.IsDefaulted(tt.key) {
				t.Errorf("expected %s to be supplied as the sentinel, got a default", tt.key)
			}
		})
	}
}

func TestAttributesValidation(t *testing.T) {
	in := newIntake(t)

	tests := []struct {
		name   string
		mutate func(*Answers)
	}{
		{"zero amount", func(a *Answers) { a.Amount = 0 }},
		{"inverted usual range", func(a *Answers) { a.UsualMin, a.UsualMax = 600, 100 }},
		{"inverted card range", func(a *Answers) { a.Card.UsualMin, a.Card.UsualMax = 300, 100 }},
		{"missing time", func(a *Answers) { a.TransactionTime = time.Time{} }},
		{"short postal code", func(a *Answers) { a.Home.PostalCode = "12" }},
		{"non-numeric postal code", func(a *Answers) { a.Home.PostalCode = "SW1A 1AA" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := completeAnswers()
			tt.mutate(a)

			_, err := in.Attributes(a)
			if !errors.Is(err, ErrInvalidAnswers) {
				t.Errorf("expected ErrInvalidAnswers, got %v", err)
			}
		})
	}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"x", "x", 1},
		{"x", " x ", 1},
		{"x", "y", 2},
		{"", "y", domain.MissingSentinel},
		{"x", "  ", domain.MissingSentinel},
	}

	for _, tt := range tests {
		if got := match(tt.a, tt.b); got != tt.want {
			t.Errorf("match(%q, %q) = %v, expected %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestOrdinal(t *testing.T) {
	if got := ordinal("Daily", onlineFrequencyScale); got != 0 {
		t.Errorf("expected 0 for first rank, got %v", got)
	}
	if got := ordinal("every few months", onlineFrequencyScale); got != 0.8 {
		t.Errorf("expected 0.8, got %v", got)
	}
	if got := ordinal("", onlineFrequencyScale); got != 1 {
		t.Errorf("expected 1 for unanswered, got %v", got)
	}
}

func TestDeriverDefaultRules(t *testing.T) {
	d, err := NewDeriver(DefaultRules)
	if err != nil {
		t.Fatalf("NewDeriver failed: %v", err)
	}

	flags := d.Flags()
	want := []string{"V241", "V41", "V65"}
	if len(flags) != len(want) {
		t.Fatalf("expected %d flags, got %v", len(want), flags)
	}
	for i := range want {
		if flags[i] != want[i] {
			t.Errorf("flag %d: expected %s, got %s", i, want[i], flags[i])
		}
	}

	tests := []struct {
		name string
		w    Window
		want map[string]float64
	}{
		{"inside range office hours", Window{Amount: 200, UsualMin: 100, UsualMax: 300, Hour: 8}, map[string]float64{"V41": 0, "V65": 1, "V241": 1}},
		{"above range late", Window{Amount: 301, UsualMin: 100, UsualMax: 300, Hour: 19}, map[string]float64{"V41": 1, "V65": 0, "V241": 0}},
		{"below range boundary hour", Window{Amount: 50, UsualMin: 100, UsualMax: 300, Hour: 18}, map[string]float64{"V41": 0, "V65": 1, "V241": 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := d.Derive(tt.w)
			if err != nil {
				t.Fatalf("Derive failed: %v", err)
			}
			for flag, v := range tt.want {
				if got[flag] != v {
					t.Errorf("%s: expected %v, got %v", flag, v, got[flag])
				}
			}
		})
	}
}

func TestNewDeriverRejectsBadRules(t *testing.T) {
	tests := []struct {
		name  string
		rules []Rule
	}{
		{"syntax error", []Rule{{Flag: "V41", Expression: "amount >"}}},
		{"unknown variable", []Rule{{Flag: "V41", Expression: "balance > 1.0"}}},
		{"non-boolean", []Rule{{Flag: "V41", Expression: "amount + 1.0"}}},
		{"duplicate flag", []Rule{{Flag: "V41", Expression: "amount > 1.0"}, {Flag: "V41", Expression: "amount < 1.0"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewDeriver(tt.rules); err == nil {
				t.Error("expected error")
			}
		})
	}
}
