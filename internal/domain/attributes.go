// Package domain defines the core types and interfaces for FraudLens.
package domain

// RawAttributes is the attribute set handed over by the collection layer.
// Keys are human-readable field names; values are scalars or nested maps.
// No key is guaranteed to be present.
type RawAttributes map[string]any

// Top-level RawAttributes field names.
const (
	FieldTransactionID        = "Transaction ID"
	FieldTransactionDate      = "Transaction Date"
	FieldTransactionAmount    = "Transaction Amount"
	FieldProductType          = "Product Type"
	FieldCardData             = "Card Data"
	FieldAddress1             = "Address 1"
	FieldAddress2             = "Address 2"
	FieldDistance             = "Distance"
	FieldPurchaserEmailDomain = "Purchaser Email Domain"
	FieldRecipientEmailDomain = "Recipient Email Domain"
	FieldDeviceData           = "Device Data"
	FieldHours                = "Hours"
	FieldDays                 = "Days"
	FieldWeekdays             = "Weekdays"
	FieldMeanAmount           = "Mean Transaction Amount"
	FieldMinAmount            = "Minimum Transaction Amount"
	FieldMaxAmount            = "Maximum Transaction Amount"
	FieldStdAmount            = "Standard Deviation Transaction Amount"
	FieldCardAmountRange      = "Card Amount Range"
	FieldBillingData          = "Billing Data"
	FieldBehavioralData       = "Behavioral Data"
	FieldUsageData            = "Transactional Usage Data"
	FieldTimeGapData          = "Transaction Time Behavioral Data"
)

// Nested field names.
const (
	SubCard1      = "Card1"
	SubCard2      = "Card2"
	SubCard3      = "Card3"
	SubCard4      = "Card4"
	SubCard5      = "Card5"
	SubCard6      = "Card6"
	SubDeviceInfo = "DeviceInfo"
	SubDeviceType = "DeviceType"
	SubMinimum    = "Minimum"
	SubMaximum    = "Maximum"
)
