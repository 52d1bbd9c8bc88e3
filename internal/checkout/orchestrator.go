package checkout

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"

	"github.com/gaaka/commerce/internal/domain"
	"github.com/gaaka/commerce/internal/payments"
	"github.com/gaaka/commerce/internal/platform/textutil"
	"github.com/gaaka/commerce/internal/shipping"
)

// Step is a checkout state machine phase. The only way back to StepDetails
// from a terminal step is Reset.
type Step string

const (
	StepDetails    Step = "details"
	StepProcessing Step = "processing"
	StepSuccess    Step = "success"
	StepError      Step = "error"
)

// Field names the form fields the orchestrator validates.
type Field string

const (
	FieldEmail         Field = "email"
	FieldFirstName     Field = "firstName"
	FieldLastName      Field = "lastName"
	FieldAddress       Field = "address"
	FieldCity          Field = "city"
	FieldPostalCode    Field = "postalCode"
	FieldCountry       Field = "country"
	FieldPaymentMethod Field = "paymentMethod"
)

var requiredFields = []Field{
	FieldEmail, FieldFirstName, FieldLastName, FieldAddress,
	FieldCity, FieldPostalCode, FieldCountry, FieldPaymentMethod,
}

var (
	checkoutEmailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	// Deliberately country-agnostic so international postal codes are not
	// rejected. Per-country rules would need a dedicated rule table.
	postalCodePattern = regexp.MustCompile(`^[A-Za-z0-9\s-]{3,10}$`)
)

// FormData is the mutable form state the orchestrator owns.
type FormData struct {
	Email                string
	FirstName            string
	LastName             string
	Address              string
	City                 string
	PostalCode           string
	Country              string
	PaymentMethod        string
	SelectedShippingRate *domain.ShippingRate
	Newsletter           bool
	SameAsBilling        bool
}

func defaultFormData() FormData {
	return FormData{
		Country:       "DE",
		PaymentMethod: "card",
		SameAsBilling: true,
	}
}

// Cart is the read-only cart collaborator plus the single clear side effect,
// invoked exactly once on confirmed payment success.
type Cart interface {
	Items() []domain.CartLine
	Clear()
}

// PaymentProcessor submits an order and always answers with a normalised
// result, never an error.
type PaymentProcessor interface {
	Process(ctx context.Context, order payments.OrderPayload) payments.Result
}

// RateCalculator computes shipping offers for the current cart and address.
type RateCalculator interface {
	Calculate(ctx context.Context, input shipping.RateInput) shipping.RateResult
}

// Snapshot is a consistent copy of the orchestrator state for rendering.
type Snapshot struct {
	FormData     FormData
	Errors       map[string]string
	IsProcessing bool
	IsValid      bool
	Step         Step
	LastResult   *payments.Result
	Pricing      domain.PricingBreakdown
}

// Checkout drives the form validation, derived pricing and payment submission
// workflow. All methods are safe for concurrent use; a small mutex stands in
// for the single event loop the state machine assumes.
type Checkout struct {
	cart       Cart
	processor  PaymentProcessor
	catalog    *payments.Catalog
	caps       payments.Capabilities
	rates      RateCalculator
	calculator *Calculator
	logger     func(context.Context, string, map[string]any)

	mu         sync.Mutex
	form       FormData
	fieldErrs  map[string]string
	processing bool
	step       Step
	lastResult *payments.Result
	// generation increments on Reset so a submission finishing after a reset
	// is discarded instead of mutating fresh state.
	generation uint64
}

type CheckoutDeps struct {
	Cart       Cart
	Processor  PaymentProcessor
	Catalog    *payments.Catalog
	Caps       payments.Capabilities
	Rates      RateCalculator
	Calculator *Calculator
	Logger     func(context.Context, string, map[string]any)
}

func NewCheckout(deps CheckoutDeps) (*Checkout, error) {
	if deps.Cart == nil {
		return nil, errors.New("checkout: cart is required")
	}
	if deps.Processor == nil {
		return nil, errors.New("checkout: payment processor is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("checkout: payment catalog is required")
	}
	if deps.Rates == nil {
		return nil, errors.New("checkout: rate calculator is required")
	}
	if deps.Calculator == nil {
		return nil, errors.New("checkout: pricing calculator is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &Checkout{
		cart:       deps.Cart,
		processor:  deps.Processor,
		catalog:    deps.Catalog,
		caps:       deps.Caps,
		rates:      deps.Rates,
		calculator: deps.Calculator,
		logger:     logger,
		form:       defaultFormData(),
		fieldErrs:  map[string]string{},
		step:       StepDetails,
	}, nil
}

// UpdateField applies a new value to a text field, re-validates that field
// only and recomputes whole-form validity. Safe to call on every keystroke.
func (c *Checkout) UpdateField(field Field, value string) {
	switch field {
	case FieldFirstName, FieldLastName, FieldAddress, FieldCity:
		value = textutil.SanitizeText(value)
	case FieldEmail, FieldPostalCode, FieldCountry, FieldPaymentMethod:
		value = strings.TrimSpace(value)
	default:
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.setField(field, value)
	if msg := c.validateField(field, c.fieldValue(field)); msg != "" {
		c.fieldErrs[string(field)] = msg
	} else {
		delete(c.fieldErrs, string(field))
	}
}

// SelectShippingRate stores the chosen rate; nil clears the selection.
func (c *Checkout) SelectShippingRate(rate *domain.ShippingRate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rate == nil {
		c.form.SelectedShippingRate = nil
		return
	}
	copied := *rate
	c.form.SelectedShippingRate = &copied
}

// SetNewsletter records the newsletter consent.
func (c *Checkout) SetNewsletter(optIn bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.form.Newsletter = optIn
}

// SetSameAsBilling records whether the billing address matches shipping.
func (c *Checkout) SetSameAsBilling(same bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.form.SameAsBilling = same
}

// State returns a consistent snapshot including the derived pricing.
func (c *Checkout) State(ctx context.Context) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	errs := make(map[string]string, len(c.fieldErrs))
	for k, v := range c.fieldErrs {
		errs[k] = v
	}
	return Snapshot{
		FormData:     c.form,
		Errors:       errs,
		IsProcessing: c.processing,
		IsValid:      c.isValidLocked(),
		Step:         c.step,
		LastResult:   c.lastResult,
		Pricing:      c.calculator.Breakdown(ctx, c.cart.Items(), c.form.Country, c.form.SelectedShippingRate),
	}
}

// Pricing recomputes the breakdown for the current cart, country and selected
// rate. Pure query; never fails.
func (c *Checkout) Pricing(ctx context.Context) domain.PricingBreakdown {
	c.mu.Lock()
	country := c.form.Country
	selected := c.form.SelectedShippingRate
	c.mu.Unlock()
	return c.calculator.Breakdown(ctx, c.cart.Items(), country, selected)
}

// AvailablePaymentMethods returns the methods offered for the current country,
// filtered by runtime capability.
func (c *Checkout) AvailablePaymentMethods() []payments.Method {
	c.mu.Lock()
	country := c.form.Country
	c.mu.Unlock()

	var out []payments.Method
	for _, method := range c.catalog.AvailableForCountry(country) {
		if c.catalog.Supported(method.ID, c.caps) {
			out = append(out, method)
		}
	}
	return out
}

// IsMethodSupported reports whether the method is offered for the current
// country and passes the runtime capability check.
func (c *Checkout) IsMethodSupported(methodID string) bool {
	c.mu.Lock()
	country := c.form.Country
	c.mu.Unlock()

	for _, method := range c.catalog.AvailableForCountry(country) {
		if method.ID == methodID {
			return c.catalog.Supported(methodID, c.caps)
		}
	}
	return false
}

// CalculateShipping computes offers for the current cart and address. Returns
// nil when the cart is empty, the address is incomplete or the calculation
// fails; rate errors never block checkout.
func (c *Checkout) CalculateShipping(ctx context.Context) []domain.ShippingRate {
	c.mu.Lock()
	country := c.form.Country
	postal := c.form.PostalCode
	city := c.form.City
	c.mu.Unlock()

	items := c.cart.Items()
	if len(items) == 0 || country == "" || postal == "" {
		return nil
	}

	input := shipping.RateInput{
		Items:       make([]domain.CartLine, 0, len(items)),
		Destination: domain.Destination{Country: country, PostalCode: postal, City: city},
		Currency:    c.calculator.tables.Currency,
	}
	for _, item := range items {
		if item.WeightGrams <= 0 {
			// Catalog entries without weight data ship as a 500 g parcel.
			item.WeightGrams = 500
		}
		input.Items = append(input.Items, item)
	}

	result := c.rates.Calculate(ctx, input)
	if !result.Success {
		c.logger(ctx, "checkout.shipping.unavailable", map[string]any{
			"country": country,
			"errors":  result.Errors,
		})
		return nil
	}
	return result.Rates
}

// ProcessPayment runs the submission workflow. A failed pre-flight validation
// keeps the state machine in StepDetails; a submission already in flight is
// rejected without starting a second one.
func (c *Checkout) ProcessPayment(ctx context.Context) payments.Result {
	c.mu.Lock()
	if c.processing {
		c.mu.Unlock()
		return payments.Result{
			Error: &payments.Error{
				Code:    payments.CodeProcessingError,
				Message: "A payment is already being processed",
			},
		}
	}

	items := c.cart.Items()
	if !c.validateFormLocked(items) {
		c.mu.Unlock()
		return payments.Result{
			Error: &payments.Error{
				Code:    payments.CodeValidationError,
				Message: "Please fix the form errors before proceeding",
			},
		}
	}

	c.processing = true
	c.step = StepProcessing
	generation := c.generation
	order := payments.OrderPayload{
		Items: items,
		ShippingAddress: domain.Address{
			FirstName:  c.form.FirstName,
			LastName:   c.form.LastName,
			Email:      c.form.Email,
			Address:    c.form.Address,
			City:       c.form.City,
			PostalCode: c.form.PostalCode,
			Country:    c.form.Country,
		},
		PaymentMethod: c.form.PaymentMethod,
		Pricing:       c.calculator.Breakdown(ctx, items, c.form.Country, c.form.SelectedShippingRate),
	}
	c.mu.Unlock()

	result := c.processor.Process(ctx, order)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != generation {
		// Reset happened mid-flight; the cart must not be cleared on a stale
		// success and the fresh state stays untouched.
		c.logger(ctx, "checkout.payment.stale_result", map[string]any{
			"success": result.Success,
		})
		return result
	}

	c.processing = false
	c.lastResult = &result
	if result.Success {
		c.cart.Clear()
		c.step = StepSuccess
		c.form = defaultFormData()
		c.fieldErrs = map[string]string{}
	} else {
		c.step = StepError
	}

	c.logger(ctx, "checkout.payment.finished", map[string]any{
		"success": result.Success,
		"orderId": result.OrderID,
	})
	return result
}

// Reset restores the initial state. A submission still in flight when Reset is
// called has its result discarded on arrival.
func (c *Checkout) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.form = defaultFormData()
	c.fieldErrs = map[string]string{}
	c.processing = false
	c.step = StepDetails
	c.lastResult = nil
}

func (c *Checkout) setField(field Field, value string) {
	switch field {
	case FieldEmail:
		c.form.Email = value
	case FieldFirstName:
		c.form.FirstName = value
	case FieldLastName:
		c.form.LastName = value
	case FieldAddress:
		c.form.Address = value
	case FieldCity:
		c.form.City = value
	case FieldPostalCode:
		c.form.PostalCode = value
	case FieldCountry:
		c.form.Country = strings.ToUpper(value)
	case FieldPaymentMethod:
		c.form.PaymentMethod = value
	}
}

func (c *Checkout) fieldValue(field Field) string {
	switch field {
	case FieldEmail:
		return c.form.Email
	case FieldFirstName:
		return c.form.FirstName
	case FieldLastName:
		return c.form.LastName
	case FieldAddress:
		return c.form.Address
	case FieldCity:
		return c.form.City
	case FieldPostalCode:
		return c.form.PostalCode
	case FieldCountry:
		return c.form.Country
	case FieldPaymentMethod:
		return c.form.PaymentMethod
	}
	return ""
}

func (c *Checkout) validateField(field Field, value string) string {
	switch field {
	case FieldEmail:
		if value == "" {
			return "Email is required"
		}
		if !checkoutEmailPattern.MatchString(value) {
			return "Invalid email format"
		}
	case FieldFirstName, FieldLastName:
		if strings.TrimSpace(value) == "" {
			if field == FieldFirstName {
				return "First name is required"
			}
			return "Last name is required"
		}
		if len([]rune(strings.TrimSpace(value))) < 2 {
			return "Name must be at least 2 characters"
		}
	case FieldAddress:
		if strings.TrimSpace(value) == "" {
			return "Address is required"
		}
		if len([]rune(strings.TrimSpace(value))) < 5 {
			return "Please enter a complete address"
		}
	case FieldCity:
		if strings.TrimSpace(value) == "" {
			return "City is required"
		}
		if len([]rune(strings.TrimSpace(value))) < 2 {
			return "Invalid city name"
		}
	case FieldPostalCode:
		if strings.TrimSpace(value) == "" {
			return "Postal code is required"
		}
		if !postalCodePattern.MatchString(value) {
			return "Invalid postal code format"
		}
	case FieldCountry:
		if value == "" {
			return "Country is required"
		}
	case FieldPaymentMethod:
		if value == "" {
			return "Payment method is required"
		}
		for _, method := range c.catalog.AvailableForCountry(c.form.Country) {
			if method.ID == value {
				return ""
			}
		}
		return "Selected payment method is not available"
	}
	return ""
}

// isValidLocked reports whole-form validity: every required field validates
// and the error map is empty.
func (c *Checkout) isValidLocked() bool {
	if len(c.fieldErrs) > 0 {
		return false
	}
	for _, field := range requiredFields {
		if c.validateField(field, c.fieldValue(field)) != "" {
			return false
		}
	}
	return true
}

// validateFormLocked re-runs full validation including the cart check and
// stores the resulting error map.
func (c *Checkout) validateFormLocked(items []domain.CartLine) bool {
	errs := map[string]string{}
	for _, field := range requiredFields {
		if msg := c.validateField(field, c.fieldValue(field)); msg != "" {
			errs[string(field)] = msg
		}
	}
	if len(items) == 0 {
		errs["cart"] = "Your cart is empty"
	}
	c.fieldErrs = errs
	return len(errs) == 0
}
