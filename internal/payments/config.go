package payments

import (
	"strings"
)

// MethodKind classifies a payment method for UI grouping.
type MethodKind string

const (
	KindCard   MethodKind = "card"
	KindWallet MethodKind = "wallet"
	KindBNPL   MethodKind = "bnpl"
	KindBank   MethodKind = "bank"
)

// Method is one configured payment option. Countries is an allow-list of
// destination countries; empty means available everywhere.
type Method struct {
	ID        string
	Name      string
	Kind      MethodKind
	Enabled   bool
	Countries []string
}

// Capabilities reports what the calling runtime supports. Wallet methods that
// need platform support are hidden when the capability is absent.
type Capabilities struct {
	ApplePay       bool
	PaymentRequest bool
}

// Catalog is the immutable set of configured payment methods. Built once at
// startup and injected wherever method availability is decided.
type Catalog struct {
	methods []Method
}

// NewCatalog copies the supplied methods into an immutable catalog.
func NewCatalog(methods []Method) *Catalog {
	return &Catalog{methods: append([]Method(nil), methods...)}
}

// DefaultCatalog returns the built-in payment method configuration. Klarna is
// restricted to the markets where the merchant account is registered.
func DefaultCatalog() *Catalog {
	return NewCatalog([]Method{
		{ID: "card", Name: "Credit / Debit Card", Kind: KindCard, Enabled: true},
		{ID: "paypal", Name: "PayPal", Kind: KindWallet, Enabled: true},
		{ID: "apple_pay", Name: "Apple Pay", Kind: KindWallet, Enabled: true},
		{ID: "google_pay", Name: "Google Pay", Kind: KindWallet, Enabled: true},
		{ID: "klarna", Name: "Klarna", Kind: KindBNPL, Enabled: true, Countries: []string{"DE", "AT", "NL", "BE"}},
	})
}

// Methods returns a copy of every configured method, in catalog order.
func (c *Catalog) Methods() []Method {
	return append([]Method(nil), c.methods...)
}

// AvailableForCountry returns the enabled methods offered for the given
// destination country, in catalog order.
func (c *Catalog) AvailableForCountry(country string) []Method {
	country = strings.ToUpper(strings.TrimSpace(country))
	var out []Method
	for _, method := range c.methods {
		if !method.Enabled {
			continue
		}
		if len(method.Countries) > 0 && !containsCountry(method.Countries, country) {
			continue
		}
		out = append(out, method)
	}
	return out
}

// MethodByID returns the method with the given id, enabled or not.
func (c *Catalog) MethodByID(id string) (Method, bool) {
	for _, method := range c.methods {
		if method.ID == id {
			return method, true
		}
	}
	return Method{}, false
}

// Supported reports whether the method can run under the given runtime
// capabilities. Unknown methods are assumed supported; their validity is
// checked separately against the catalog.
func (c *Catalog) Supported(methodID string, caps Capabilities) bool {
	switch methodID {
	case "apple_pay":
		return caps.ApplePay
	case "google_pay":
		return caps.PaymentRequest
	default:
		return true
	}
}

func containsCountry(countries []string, country string) bool {
	for _, c := range countries {
		if strings.EqualFold(c, country) {
			return true
		}
	}
	return false
}
