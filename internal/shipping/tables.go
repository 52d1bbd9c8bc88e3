package shipping

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gaaka/commerce/internal/domain"
)

// ErrInvalidTables signals malformed static shipping configuration. Tables are
// validated once at construction so that a bad deploy fails at startup rather
// than at request time.
var ErrInvalidTables = errors.New("shipping: invalid tables")

// Tables holds the immutable zone, method and carrier configuration the rate
// engine computes against. Construct via NewTables; the zero value is unusable.
type Tables struct {
	zones        []domain.ShippingZone
	methods      []domain.ShippingMethod
	carriers     []domain.Carrier
	countryZones map[string]string
	wildcardZone string
}

// NewTables validates the supplied configuration and builds the country-to-zone
// lookup. Exactly one enabled zone must carry the wildcard country entry so
// that zone resolution is total.
func NewTables(zones []domain.ShippingZone, methods []domain.ShippingMethod, carriers []domain.Carrier) (*Tables, error) {
	if len(zones) == 0 {
		return nil, fmt.Errorf("%w: at least one zone is required", ErrInvalidTables)
	}

	zoneIDs := make(map[string]struct{}, len(zones))
	countryZones := make(map[string]string)
	wildcard := ""
	for _, zone := range zones {
		id := strings.TrimSpace(zone.ID)
		if id == "" {
			return nil, fmt.Errorf("%w: zone id is required", ErrInvalidTables)
		}
		if _, ok := zoneIDs[id]; ok {
			return nil, fmt.Errorf("%w: duplicate zone %q", ErrInvalidTables, id)
		}
		zoneIDs[id] = struct{}{}
		for _, country := range zone.Countries {
			country = strings.ToUpper(strings.TrimSpace(country))
			if country == domain.ZoneWildcard {
				if zone.Enabled {
					if wildcard != "" {
						return nil, fmt.Errorf("%w: multiple wildcard zones (%q, %q)", ErrInvalidTables, wildcard, id)
					}
					wildcard = id
				}
				continue
			}
			if len(country) != 2 {
				return nil, fmt.Errorf("%w: zone %q has invalid country %q", ErrInvalidTables, id, country)
			}
			if existing, ok := countryZones[country]; ok && existing != id {
				return nil, fmt.Errorf("%w: country %s mapped to both %q and %q", ErrInvalidTables, country, existing, id)
			}
			if zone.Enabled {
				countryZones[country] = id
			}
		}
	}
	if wildcard == "" {
		return nil, fmt.Errorf("%w: an enabled wildcard zone is required", ErrInvalidTables)
	}

	for _, method := range methods {
		id := strings.TrimSpace(method.ID)
		if id == "" {
			return nil, fmt.Errorf("%w: method id is required", ErrInvalidTables)
		}
		if method.Price.BaseRate < 0 || method.Price.WeightMultiplier < 0 || method.Price.FreeThreshold < 0 {
			return nil, fmt.Errorf("%w: method %q has negative pricing", ErrInvalidTables, id)
		}
		if method.Delivery.Min < 0 || method.Delivery.Max < method.Delivery.Min {
			return nil, fmt.Errorf("%w: method %q has invalid delivery window", ErrInvalidTables, id)
		}
		if method.Delivery.Unit != domain.UnitDays && method.Delivery.Unit != domain.UnitHours {
			return nil, fmt.Errorf("%w: method %q has unknown delivery unit %q", ErrInvalidTables, id, method.Delivery.Unit)
		}
		if method.Restrictions != nil && method.Restrictions.MaxWeightGrams < 0 {
			return nil, fmt.Errorf("%w: method %q has negative max weight", ErrInvalidTables, id)
		}
		if len(method.Zones) == 0 {
			return nil, fmt.Errorf("%w: method %q serves no zones", ErrInvalidTables, id)
		}
		for _, zoneID := range method.Zones {
			if _, ok := zoneIDs[strings.TrimSpace(zoneID)]; !ok {
				return nil, fmt.Errorf("%w: method %q references unknown zone %q", ErrInvalidTables, id, zoneID)
			}
		}
	}

	return &Tables{
		zones:        append([]domain.ShippingZone(nil), zones...),
		methods:      append([]domain.ShippingMethod(nil), methods...),
		carriers:     append([]domain.Carrier(nil), carriers...),
		countryZones: countryZones,
		wildcardZone: wildcard,
	}, nil
}

// ZoneForCountry resolves a country code to its zone id. The lookup is total:
// unmapped countries fall back to the wildcard zone.
func (t *Tables) ZoneForCountry(country string) string {
	if zone, ok := t.countryZones[strings.ToUpper(strings.TrimSpace(country))]; ok {
		return zone
	}
	return t.wildcardZone
}

// MethodsForZone returns the enabled methods serving the given zone, in
// configuration order.
func (t *Tables) MethodsForZone(zoneID string) []domain.ShippingMethod {
	var out []domain.ShippingMethod
	for _, method := range t.methods {
		if !method.Enabled {
			continue
		}
		for _, z := range method.Zones {
			if z == zoneID {
				out = append(out, method)
				break
			}
		}
	}
	return out
}

// Carriers returns the configured carrier list.
func (t *Tables) Carriers() []domain.Carrier {
	return append([]domain.Carrier(nil), t.carriers...)
}

// CarrierByID returns the carrier with the given id, or false when unknown.
func (t *Tables) CarrierByID(id string) (domain.Carrier, bool) {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, carrier := range t.carriers {
		if strings.ToLower(carrier.ID) == id {
			return carrier, true
		}
	}
	return domain.Carrier{}, false
}

// DefaultTables builds the built-in zone and method configuration. Rates are
// minor units (euro cents), weights grams. The table stands in for a live
// carrier-rate API and is intended to be replaced wholesale, not patched.
func DefaultTables() *Tables {
	zones := []domain.ShippingZone{
		{ID: "de-domestic", Name: "Germany (Domestic)", Countries: []string{"DE"}, Enabled: true},
		{ID: "eu-standard", Name: "European Union", Countries: []string{"AT", "BE", "NL", "FR", "IT", "ES", "PT", "LU", "IE", "GR", "FI", "CY", "MT"}, Enabled: true},
		{ID: "eu-extended", Name: "Extended Europe", Countries: []string{"CH", "NO", "DK", "SE", "PL", "CZ", "HU", "SK", "SI", "HR", "BG", "RO", "LV", "LT", "EE"}, Enabled: true},
		{ID: "worldwide", Name: "Rest of World", Countries: []string{domain.ZoneWildcard}, Enabled: true},
	}

	methods := []domain.ShippingMethod{
		{
			ID: "dhl-standard-de", Name: "DHL Standard", Description: "Reliable delivery within Germany",
			Carrier: "DHL", Tier: domain.TierStandard,
			Delivery:     domain.DeliveryWindow{Min: 2, Max: 4, Unit: domain.UnitDays},
			Price:        domain.PricingRule{BaseRate: 499, FreeThreshold: 5000},
			Restrictions: &domain.Restrictions{MaxWeightGrams: 31500, TrackingIncluded: true},
			Zones:        []string{"de-domestic"}, Enabled: true,
		},
		{
			ID: "dhl-express-de", Name: "DHL Express", Description: "Next business day delivery",
			Carrier: "DHL", Tier: domain.TierExpress,
			Delivery:     domain.DeliveryWindow{Min: 1, Max: 2, Unit: domain.UnitDays},
			Price:        domain.PricingRule{BaseRate: 999},
			Restrictions: &domain.Restrictions{MaxWeightGrams: 31500, TrackingIncluded: true, RequiresSignature: true},
			Zones:        []string{"de-domestic"}, Enabled: true,
		},
		{
			ID: "hermes-standard-de", Name: "Hermes Standard", Description: "Affordable shipping with Hermes",
			Carrier: "Hermes", Tier: domain.TierStandard,
			Delivery:     domain.DeliveryWindow{Min: 3, Max: 5, Unit: domain.UnitDays},
			Price:        domain.PricingRule{BaseRate: 399, FreeThreshold: 4000},
			Restrictions: &domain.Restrictions{MaxWeightGrams: 25000, TrackingIncluded: true},
			Zones:        []string{"de-domestic"}, Enabled: true,
		},
		{
			ID: "dhl-eu-standard", Name: "DHL EU Standard", Description: "Standard delivery across EU",
			Carrier: "DHL", Tier: domain.TierStandard,
			Delivery:     domain.DeliveryWindow{Min: 3, Max: 7, Unit: domain.UnitDays},
			Price:        domain.PricingRule{BaseRate: 1299, WeightMultiplier: 250, FreeThreshold: 10000},
			Restrictions: &domain.Restrictions{MaxWeightGrams: 31500, TrackingIncluded: true},
			Zones:        []string{"eu-standard"}, Enabled: true,
		},
		{
			ID: "ups-eu-express", Name: "UPS Express", Description: "Fast delivery across Europe",
			Carrier: "UPS", Tier: domain.TierExpress,
			Delivery:     domain.DeliveryWindow{Min: 2, Max: 4, Unit: domain.UnitDays},
			Price:        domain.PricingRule{BaseRate: 1999, WeightMultiplier: 300},
			Restrictions: &domain.Restrictions{MaxWeightGrams: 70000, TrackingIncluded: true, RequiresSignature: true},
			Zones:        []string{"eu-standard", "eu-extended"}, Enabled: true,
		},
		{
			ID: "dhl-eu-extended", Name: "DHL Europe Plus", Description: "Delivery to Switzerland, Norway, etc.",
			Carrier: "DHL", Tier: domain.TierStandard,
			Delivery:     domain.DeliveryWindow{Min: 4, Max: 8, Unit: domain.UnitDays},
			Price:        domain.PricingRule{BaseRate: 1699, WeightMultiplier: 300, FreeThreshold: 12000},
			Restrictions: &domain.Restrictions{MaxWeightGrams: 31500, TrackingIncluded: true},
			Zones:        []string{"eu-extended"}, Enabled: true,
		},
		{
			ID: "dhl-worldwide", Name: "DHL Worldwide", Description: "International shipping worldwide",
			Carrier: "DHL", Tier: domain.TierStandard,
			Delivery:     domain.DeliveryWindow{Min: 7, Max: 15, Unit: domain.UnitDays},
			Price:        domain.PricingRule{BaseRate: 2599, WeightMultiplier: 450},
			Restrictions: &domain.Restrictions{MaxWeightGrams: 31500, TrackingIncluded: true, RequiresSignature: true},
			Zones:        []string{"worldwide"}, Enabled: true,
		},
		{
			ID: "ups-worldwide-express", Name: "UPS Worldwide Express", Description: "Fast international delivery",
			Carrier: "UPS", Tier: domain.TierExpress,
			Delivery:     domain.DeliveryWindow{Min: 3, Max: 7, Unit: domain.UnitDays},
			Price:        domain.PricingRule{BaseRate: 4599, WeightMultiplier: 600},
			Restrictions: &domain.Restrictions{MaxWeightGrams: 70000, TrackingIncluded: true, RequiresSignature: true},
			Zones:        []string{"worldwide"}, Enabled: true,
		},
		{
			ID: "deutsche-post-economy", Name: "Deutsche Post Economy", Description: "Budget-friendly shipping within Germany",
			Carrier: "Deutsche Post", Tier: domain.TierEconomy,
			Delivery:     domain.DeliveryWindow{Min: 4, Max: 7, Unit: domain.UnitDays},
			Price:        domain.PricingRule{BaseRate: 299, FreeThreshold: 3500},
			Restrictions: &domain.Restrictions{MaxWeightGrams: 10000},
			Zones:        []string{"de-domestic"}, Enabled: true,
		},
	}

	carriers := []domain.Carrier{
		{
			ID: "dhl", Name: "DHL",
			TrackingURL:       "https://www.dhl.de/de/privatkunden/pakete-empfangen/verfolgen.html?lang=de&idc=${trackingNumber}",
			SupportedServices: []domain.ServiceTier{domain.TierStandard, domain.TierExpress, domain.TierOvernight},
			APIEndpoint:       "https://api.dhl.com/track/shipments",
		},
		{
			ID: "ups", Name: "UPS",
			TrackingURL:       "https://www.ups.com/track?loc=en_DE&tracknum=${trackingNumber}",
			SupportedServices: []domain.ServiceTier{domain.TierStandard, domain.TierExpress, domain.TierOvernight},
			APIEndpoint:       "https://onlinetools.ups.com/track/v1/details",
		},
		{
			ID: "hermes", Name: "Hermes",
			TrackingURL:       "https://www.myhermes.de/empfangen/sendungsverfolgung/sendungsinformation/#${trackingNumber}",
			SupportedServices: []domain.ServiceTier{domain.TierStandard, domain.TierPremium},
		},
		{
			ID: "deutsche-post", Name: "Deutsche Post",
			TrackingURL:       "https://www.deutschepost.de/sendung/simpleQuery.html?form.sendungsnummer=${trackingNumber}",
			SupportedServices: []domain.ServiceTier{domain.TierEconomy, domain.TierStandard},
		},
		{
			ID: "fedex", Name: "FedEx",
			TrackingURL:       "https://www.fedex.com/fedextrack/?tracknumbers=${trackingNumber}",
			SupportedServices: []domain.ServiceTier{domain.TierExpress, domain.TierOvernight, domain.TierPremium},
			APIEndpoint:       "https://api.fedex.com/track/v1/trackingnumbers",
		},
	}

	tables, err := NewTables(zones, methods, carriers)
	if err != nil {
		// The built-in configuration is covered by tests; reaching this is a
		// programming error.
		panic(err)
	}
	return tables
}
