package domain

// Defaults substituted by cleaning when a field is absent.
const (
	UnknownCategory = "unknown"
	MissingSentinel = -999
)

// Canonical CleanedRecord keys. These are also the column names used by
// the feature schemas.
const (
	KeyTransactionID  = "TransactionID"
	KeyTransactionDT  = "TransactionDT"
	KeyTransactionAmt = "TransactionAmt"
	KeyProductCD      = "ProductCD"
	KeyCard1          = "card1"
	KeyCard2          = "card2"
	KeyCard3          = "card3"
	KeyCard4          = "card4"
	KeyCard5          = "card5"
	KeyCard6          = "card6"
	KeyAddr1          = "addr1"
	KeyAddr2          = "addr2"
	KeyDist1          = "dist1"
	KeyPEmailDomain   = "P_emaildomain"
	KeyREmailDomain   = "R_emaildomain"
	KeyDeviceInfo     = "DeviceInfo"
	KeyDeviceType     = "DeviceType"
	KeyHours          = "Hours"
	KeyDays           = "Days"
	KeyWeekdays       = "Weekdays"
	KeyMeanAmount     = "mean_last"
	KeyMinAmount      = "min_last"
	KeyMaxAmount      = "max_last"
	KeyStdAmount      = "std_last"
	KeyCardMin        = "card_min_last"
	KeyCardMax        = "card_max_last"
)

// Raw input order of each behavioral group. Reducers are positional, so
// these orders must match the order the projections were fitted with.
var (
	VelocityFields   = []string{"C5", "C9", "C14", "C7", "C12", "C6"}
	TimeGapFields    = []string{"D5", "D4", "D3", "D11", "D2"}
	BehavioralFields = []string{"V88", "V14", "V1", "V65", "V41", "V94", "V35", "V12", "V241", "V69", "V75"}
	BillingFields    = []string{"M1", "M2", "M3", "M4", "M5", "M6", "M7"}
)

// CleanedRecord is the typed, fully defaulted form of RawAttributes.
// Every field is always set; Defaulted records which canonical keys were
// filled in because the source did not supply them.
type CleanedRecord struct {
	TransactionID  int64
	TransactionDT  float64
	TransactionAmt float64
	ProductType    string

	Card  CardData
	Addr1 float64
	Addr2 float64
	Dist1 float64

	PEmailDomain string
	REmailDomain string
	DeviceInfo   string
	DeviceType   float64

	Hours    float64
	Days     float64
	Weekdays float64

	Amounts   AmountStats
	CardRange AmountRange

	Billing    BillingFlags
	Velocity   VelocityCounters
	TimeGap    TimeGapCounters
	Behavioral BehavioralFlags

	// Sub-mappings exactly as supplied, keyed by schema column name.
	// The full-schema assembler copies any key the schema knows about.
	VData map[string]any
	CData map[string]any
	DData map[string]any
	MData map[string]any

	Encoded Encoded

	Defaulted map[string]bool
}

// IsDefaulted reports whether key was absent from the source attributes.
func (r *CleanedRecord) IsDefaulted(key string) bool {
	return r.Defaulted[key]
}

// CardData holds the card identifier fields.
type CardData struct {
	Card1 float64
	Card2 float64
	Card3 float64
	Card4 float64
	Card5 float64
	Card6 float64
}

// AmountStats summarizes the customer's usual transaction amounts.
type AmountStats struct {
	Mean float64
	Min  float64
	Max  float64
	Std  float64
}

// AmountRange is the usual amount range for the card in use.
type AmountRange struct {
	Min float64
	Max float64
}

// BillingFlags are the billing match indicators
// (1 = same, 2 = different, -999 = unknown).
type BillingFlags struct {
	M1, M2, M3, M4, M5, M6, M7 float64
}

// VelocityCounters are the normalized transaction-count ratios.
type VelocityCounters struct {
	C5, C9, C14, C7, C12, C6 float64
}

// Vector returns the counters in VelocityFields order.
func (v VelocityCounters) Vector() []float64 {
	return []float64{v.C5, v.C9, v.C14, v.C7, v.C12, v.C6}
}

// TimeGapCounters are the normalized day-gap ratios.
type TimeGapCounters struct {
	D5, D4, D3, D11, D2 float64
}

// Vector returns the counters in TimeGapFields order.
func (t TimeGapCounters) Vector() []float64 {
	return []float64{t.D5, t.D4, t.D3, t.D11, t.D2}
}

// BehavioralFlags are the proprietary behavioral indicators and ratios.
type BehavioralFlags struct {
	V88, V14, V1, V65, V41, V94, V35, V12, V241, V69, V75 float64
}

// Vector returns the flags in BehavioralFields order.
func (b BehavioralFlags) Vector() []float64 {
	return []float64{b.V88, b.V14, b.V1, b.V65, b.V41, b.V94, b.V35, b.V12, b.V241, b.V69, b.V75}
}

// Encoded holds the integer codes produced by the encoder registry.
type Encoded struct {
	ProductCD    int
	PEmailDomain int
	REmailDomain int
	DeviceInfo   int
}
