package domain

import "time"

// ServiceTier enumerates the configured shipping service levels.
type ServiceTier string

const (
	// TierStandard is the default parcel service.
	TierStandard ServiceTier = "standard"
	// TierExpress is an expedited service.
	TierExpress ServiceTier = "express"
	// TierOvernight delivers the next day.
	TierOvernight ServiceTier = "overnight"
	// TierEconomy is the cheapest, slowest service.
	TierEconomy ServiceTier = "economy"
	// TierPremium is a carrier specific premium service.
	TierPremium ServiceTier = "premium"
)

// DeliveryUnit is the unit a delivery window is expressed in.
type DeliveryUnit string

const (
	// UnitDays counts business days.
	UnitDays DeliveryUnit = "days"
	// UnitHours counts wall-clock hours.
	UnitHours DeliveryUnit = "hours"
)

// DeliveryWindow is the configured min/max transit time of a method.
type DeliveryWindow struct {
	Min  int
	Max  int
	Unit DeliveryUnit
}

// PricingRule defines how a shipping method prices a cart. BaseRate covers the
// first kilogram; WeightMultiplier (minor units per kg) applies to weight above
// the 1 kg allowance. FreeThreshold of zero means no free-shipping threshold.
type PricingRule struct {
	BaseRate         int64
	WeightMultiplier int64
	FreeThreshold    int64
}

// Restrictions limits when a method may be offered.
type Restrictions struct {
	MaxWeightGrams    int
	RequiresSignature bool
	TrackingIncluded  bool
}

// ShippingZone is a named partition of destination countries. A single zone
// may carry the wildcard country "*" to catch everything not explicitly
// mapped elsewhere.
type ShippingZone struct {
	ID        string
	Name      string
	Countries []string
	Enabled   bool
}

// ZoneWildcard marks the catch-all entry in a zone country list.
const ZoneWildcard = "*"

// ShippingMethod is a configured shipping product. Methods are static
// configuration, loaded once and immutable at runtime.
type ShippingMethod struct {
	ID           string
	Name         string
	Description  string
	Carrier      string
	Tier         ServiceTier
	Delivery     DeliveryWindow
	Price        PricingRule
	Restrictions *Restrictions
	Zones        []string
	Enabled      bool
}

// ShippingRate is one priced, time-estimated offer computed for a specific
// cart and destination. Rates are created fresh on every calculation.
type ShippingRate struct {
	MethodID          string
	Name              string
	Description       string
	Price             int64
	Currency          string
	DeliveryTime      string
	Carrier           string
	TrackingIncluded  bool
	EstimatedDelivery time.Time
}

// Carrier describes a shipping carrier and its tracking integration.
type Carrier struct {
	ID                string
	Name              string
	TrackingURL       string
	SupportedServices []ServiceTier
	APIEndpoint       string
}
