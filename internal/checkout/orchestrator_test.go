package checkout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gaaka/commerce/internal/domain"
	"github.com/gaaka/commerce/internal/payments"
	"github.com/gaaka/commerce/internal/shipping"
)

type fakeCart struct {
	mu     sync.Mutex
	items  []domain.CartLine
	clears int
}

func (f *fakeCart) Items() []domain.CartLine {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.CartLine(nil), f.items...)
}

func (f *fakeCart) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = nil
	f.clears++
}

func (f *fakeCart) clearCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clears
}

type fakeProcessor struct {
	mu      sync.Mutex
	result  payments.Result
	calls   int
	last    payments.OrderPayload
	release chan struct{}
}

func (f *fakeProcessor) Process(ctx context.Context, order payments.OrderPayload) payments.Result {
	f.mu.Lock()
	f.calls++
	f.last = order
	release := f.release
	result := f.result
	f.mu.Unlock()
	if release != nil {
		<-release
	}
	return result
}

func (f *fakeProcessor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestCheckout(t *testing.T, cart *fakeCart, processor *fakeProcessor) *Checkout {
	t.Helper()
	engine, err := shipping.NewEngine(shipping.EngineDeps{
		Tables: shipping.DefaultTables(),
		Now:    func() time.Time { return time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("NewEngine error: %v", err)
	}
	co, err := NewCheckout(CheckoutDeps{
		Cart:       cart,
		Processor:  processor,
		Catalog:    payments.DefaultCatalog(),
		Caps:       payments.Capabilities{PaymentRequest: true},
		Rates:      engine,
		Calculator: testCalculator(t),
	})
	if err != nil {
		t.Fatalf("NewCheckout error: %v", err)
	}
	return co
}

func fillValidForm(co *Checkout) {
	co.UpdateField(FieldEmail, "anna@example.com")
	co.UpdateField(FieldFirstName, "Anna")
	co.UpdateField(FieldLastName, "Schmidt")
	co.UpdateField(FieldAddress, "Hauptstrasse 1")
	co.UpdateField(FieldCity, "Berlin")
	co.UpdateField(FieldPostalCode, "10115")
	co.UpdateField(FieldCountry, "DE")
	co.UpdateField(FieldPaymentMethod, "card")
}

func cartWithItems() *fakeCart {
	return &fakeCart{items: []domain.CartLine{
		{ID: "a", Name: "Vase", Quantity: 1, UnitPrice: 5000, WeightGrams: 2000},
	}}
}

func TestCheckout_Defaults(t *testing.T) {
	co := newTestCheckout(t, cartWithItems(), &fakeProcessor{})

	state := co.State(context.Background())
	if state.Step != StepDetails {
		t.Fatalf("expected details step, got %s", state.Step)
	}
	if state.FormData.Country != "DE" || state.FormData.PaymentMethod != "card" || !state.FormData.SameAsBilling {
		t.Fatalf("unexpected defaults: %+v", state.FormData)
	}
	if state.IsValid {
		t.Fatalf("empty form should not be valid")
	}
}

func TestCheckout_UpdateField_ValidationToggles(t *testing.T) {
	co := newTestCheckout(t, cartWithItems(), &fakeProcessor{})
	ctx := context.Background()

	fillValidForm(co)
	if state := co.State(ctx); !state.IsValid || len(state.Errors) != 0 {
		t.Fatalf("expected valid form, got %+v", state.Errors)
	}

	co.UpdateField(FieldEmail, "broken")
	state := co.State(ctx)
	if state.IsValid {
		t.Fatalf("invalid email should flip validity")
	}
	if state.Errors["email"] != "Invalid email format" {
		t.Fatalf("unexpected email error %q", state.Errors["email"])
	}

	co.UpdateField(FieldEmail, "anna@example.com")
	state = co.State(ctx)
	if !state.IsValid || len(state.Errors) != 0 {
		t.Fatalf("correcting the field should restore validity, got %+v", state.Errors)
	}
}

func TestCheckout_UpdateField_Rules(t *testing.T) {
	co := newTestCheckout(t, cartWithItems(), &fakeProcessor{})
	ctx := context.Background()

	cases := []struct {
		field Field
		value string
		want  string
	}{
		{FieldEmail, "", "Email is required"},
		{FieldFirstName, "A", "Name must be at least 2 characters"},
		{FieldLastName, " ", "Last name is required"},
		{FieldAddress, "Weg", "Please enter a complete address"},
		{FieldCity, "B", "Invalid city name"},
		{FieldPostalCode, "1!", "Invalid postal code format"},
		{FieldPaymentMethod, "bitcoin", "Selected payment method is not available"},
	}
	for _, tc := range cases {
		co.UpdateField(tc.field, tc.value)
		if got := co.State(ctx).Errors[string(tc.field)]; got != tc.want {
			t.Fatalf("%s: got %q, want %q", tc.field, got, tc.want)
		}
	}

	// Permissive international postal codes pass.
	for _, code := range []string{"10115", "SW1A 1AA", "K1A-0B1"} {
		co.UpdateField(FieldPostalCode, code)
		if got := co.State(ctx).Errors["postalCode"]; got != "" {
			t.Fatalf("postal code %q rejected: %q", code, got)
		}
	}
}

func TestCheckout_UpdateField_SanitizesFreeText(t *testing.T) {
	co := newTestCheckout(t, cartWithItems(), &fakeProcessor{})

	co.UpdateField(FieldFirstName, "  <script>alert(1)</script>Anna ")
	state := co.State(context.Background())
	if state.FormData.FirstName != "Anna" {
		t.Fatalf("expected sanitized name, got %q", state.FormData.FirstName)
	}
}

func TestCheckout_PaymentMethodAvailability(t *testing.T) {
	co := newTestCheckout(t, cartWithItems(), &fakeProcessor{})
	ctx := context.Background()

	co.UpdateField(FieldPaymentMethod, "klarna")
	if got := co.State(ctx).Errors["paymentMethod"]; got != "" {
		t.Fatalf("klarna should be valid in DE, got %q", got)
	}

	// Switching country to the US makes the earlier klarna choice invalid on
	// the next validation pass.
	co.UpdateField(FieldCountry, "US")
	co.UpdateField(FieldPaymentMethod, "klarna")
	if got := co.State(ctx).Errors["paymentMethod"]; got != "Selected payment method is not available" {
		t.Fatalf("klarna should be unavailable in US, got %q", got)
	}

	methods := co.AvailablePaymentMethods()
	for _, method := range methods {
		if method.ID == "klarna" {
			t.Fatalf("klarna offered in US")
		}
		if method.ID == "apple_pay" {
			t.Fatalf("apple_pay offered without capability")
		}
	}

	if co.IsMethodSupported("klarna") {
		t.Fatal("klarna reported supported in US")
	}
	if !co.IsMethodSupported("card") {
		t.Fatal("card should always be supported")
	}
}

func TestCheckout_Pricing_FreeShippingOverThreshold(t *testing.T) {
	cart := &fakeCart{items: []domain.CartLine{
		{ID: "a", Name: "Set", Quantity: 1, UnitPrice: 25000, WeightGrams: 3000},
	}}
	co := newTestCheckout(t, cart, &fakeProcessor{})

	pricing := co.Pricing(context.Background())
	if pricing.Shipping != 0 {
		t.Fatalf("expected free shipping at 250.00, got %d", pricing.Shipping)
	}
	if pricing.Subtotal != 25000 {
		t.Fatalf("unexpected subtotal %d", pricing.Subtotal)
	}
}

func TestCheckout_ProcessPayment_ValidationFailureStaysInDetails(t *testing.T) {
	processor := &fakeProcessor{result: payments.Result{Success: true}}
	co := newTestCheckout(t, cartWithItems(), processor)
	ctx := context.Background()

	result := co.ProcessPayment(ctx)
	if result.Success {
		t.Fatalf("expected validation failure")
	}
	if result.Error == nil || result.Error.Code != payments.CodeValidationError {
		t.Fatalf("expected VALIDATION_ERROR, got %+v", result.Error)
	}
	if processor.callCount() != 0 {
		t.Fatalf("processor must not be reached on invalid form")
	}
	state := co.State(ctx)
	if state.Step != StepDetails {
		t.Fatalf("state should remain details, got %s", state.Step)
	}
	if len(state.Errors) == 0 {
		t.Fatalf("expected field errors to be recorded")
	}
}

func TestCheckout_ProcessPayment_EmptyCart(t *testing.T) {
	processor := &fakeProcessor{result: payments.Result{Success: true}}
	co := newTestCheckout(t, &fakeCart{}, processor)
	ctx := context.Background()

	fillValidForm(co)
	result := co.ProcessPayment(ctx)
	if result.Success || result.Error == nil || result.Error.Code != payments.CodeValidationError {
		t.Fatalf("expected VALIDATION_ERROR for empty cart, got %+v", result)
	}
	if processor.callCount() != 0 {
		t.Fatalf("processor must not be reached with empty cart")
	}
	if got := co.State(ctx).Errors["cart"]; got != "Your cart is empty" {
		t.Fatalf("expected cart error, got %q", got)
	}
}

func TestCheckout_ProcessPayment_SuccessClearsCartOnce(t *testing.T) {
	cart := cartWithItems()
	processor := &fakeProcessor{result: payments.Result{
		Success: true,
		OrderID: "order_1",
		Intent:  &payments.PaymentIntent{ID: "pi_1", Status: payments.StatusSucceeded},
	}}
	co := newTestCheckout(t, cart, processor)
	ctx := context.Background()

	fillValidForm(co)
	result := co.ProcessPayment(ctx)
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if cart.clearCount() != 1 {
		t.Fatalf("cart should be cleared exactly once, got %d", cart.clearCount())
	}

	state := co.State(ctx)
	if state.Step != StepSuccess {
		t.Fatalf("expected success step, got %s", state.Step)
	}
	if state.IsProcessing {
		t.Fatalf("processing flag should be cleared")
	}
	if state.LastResult == nil || state.LastResult.OrderID != "order_1" {
		t.Fatalf("expected stored result, got %+v", state.LastResult)
	}
	// Form data returns to defaults after a successful submission.
	if state.FormData.Email != "" || state.FormData.Country != "DE" {
		t.Fatalf("expected form reset, got %+v", state.FormData)
	}

	// Payload carried the sanitized address and the computed pricing.
	processor.mu.Lock()
	payload := processor.last
	processor.mu.Unlock()
	if payload.ShippingAddress.FirstName != "Anna" || payload.PaymentMethod != "card" {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if payload.Pricing.Subtotal != 5000 {
		t.Fatalf("expected pricing in payload, got %+v", payload.Pricing)
	}
}

func TestCheckout_ProcessPayment_FailureKeepsCart(t *testing.T) {
	cart := cartWithItems()
	processor := &fakeProcessor{result: payments.Result{
		Error: &payments.Error{Code: "card_declined", Message: "Your card was declined."},
	}}
	co := newTestCheckout(t, cart, processor)
	ctx := context.Background()

	fillValidForm(co)
	result := co.ProcessPayment(ctx)
	if result.Success {
		t.Fatalf("expected failure")
	}
	if cart.clearCount() != 0 {
		t.Fatalf("cart must stay intact on failure")
	}
	state := co.State(ctx)
	if state.Step != StepError {
		t.Fatalf("expected error step, got %s", state.Step)
	}
	if state.LastResult == nil || state.LastResult.Error.Code != "card_declined" {
		t.Fatalf("expected provider code passed through, got %+v", state.LastResult)
	}
	// Form data survives a failed payment for retry.
	if state.FormData.Email != "anna@example.com" {
		t.Fatalf("form data should survive failure, got %+v", state.FormData)
	}
}

func TestCheckout_ProcessPayment_RejectsReentrantSubmission(t *testing.T) {
	cart := cartWithItems()
	processor := &fakeProcessor{
		result:  payments.Result{Success: true},
		release: make(chan struct{}),
	}
	co := newTestCheckout(t, cart, processor)
	ctx := context.Background()

	fillValidForm(co)
	done := make(chan payments.Result, 1)
	go func() {
		done <- co.ProcessPayment(ctx)
	}()

	// Wait for the first submission to be in flight.
	for i := 0; processor.callCount() == 0 && i < 100; i++ {
		time.Sleep(5 * time.Millisecond)
	}

	second := co.ProcessPayment(ctx)
	if second.Success || second.Error == nil || second.Error.Code != payments.CodeProcessingError {
		t.Fatalf("expected re-entrant rejection, got %+v", second)
	}

	close(processor.release)
	first := <-done
	if !first.Success {
		t.Fatalf("first submission should finish normally, got %+v", first)
	}
	if processor.callCount() != 1 {
		t.Fatalf("expected a single provider call, got %d", processor.callCount())
	}
}

func TestCheckout_Reset_DiscardsLateResult(t *testing.T) {
	cart := cartWithItems()
	processor := &fakeProcessor{
		result: payments.Result{
			Success: true,
			OrderID: "order_late",
		},
		release: make(chan struct{}),
	}
	co := newTestCheckout(t, cart, processor)
	ctx := context.Background()

	fillValidForm(co)
	done := make(chan payments.Result, 1)
	go func() {
		done <- co.ProcessPayment(ctx)
	}()
	for i := 0; processor.callCount() == 0 && i < 100; i++ {
		time.Sleep(5 * time.Millisecond)
	}

	co.Reset()
	close(processor.release)
	<-done

	state := co.State(ctx)
	if state.Step != StepDetails {
		t.Fatalf("reset state must not be touched by late result, got %s", state.Step)
	}
	if state.LastResult != nil {
		t.Fatalf("late result must be discarded, got %+v", state.LastResult)
	}
	if cart.clearCount() != 0 {
		t.Fatalf("cart must not be cleared by a stale success")
	}
}

func TestCheckout_Reset_RestoresDefaults(t *testing.T) {
	co := newTestCheckout(t, cartWithItems(), &fakeProcessor{})
	ctx := context.Background()

	fillValidForm(co)
	co.SelectShippingRate(&domain.ShippingRate{MethodID: "dhl-standard-de", Price: 499})
	co.SetNewsletter(true)
	co.Reset()

	state := co.State(ctx)
	if state.FormData != defaultFormData() {
		t.Fatalf("expected default form data, got %+v", state.FormData)
	}
	if len(state.Errors) != 0 || state.Step != StepDetails || state.IsProcessing {
		t.Fatalf("unexpected state after reset: %+v", state)
	}
}

func TestCheckout_CalculateShipping(t *testing.T) {
	cart := &fakeCart{items: []domain.CartLine{
		{ID: "a", Name: "Cup", Quantity: 1, UnitPrice: 2000}, // no weight on record
	}}
	co := newTestCheckout(t, cart, &fakeProcessor{})
	ctx := context.Background()

	// Incomplete address yields no rates.
	if rates := co.CalculateShipping(ctx); rates != nil {
		t.Fatalf("expected nil without postal code, got %+v", rates)
	}

	co.UpdateField(FieldPostalCode, "10115")
	rates := co.CalculateShipping(ctx)
	if len(rates) == 0 {
		t.Fatalf("expected rates with default weight applied")
	}

	co.SelectShippingRate(&rates[0])
	pricing := co.Pricing(ctx)
	if pricing.Shipping != rates[0].Price {
		t.Fatalf("expected selected rate in pricing, got %d vs %d", pricing.Shipping, rates[0].Price)
	}
}
