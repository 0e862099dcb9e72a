package checkout

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/safar/mute-store/internal/apiclient"
	"github.com/safar/mute-store/internal/apperr"
	"github.com/safar/mute-store/internal/cart"
	"github.com/safar/mute-store/internal/geocode"
	"github.com/safar/mute-store/internal/logger"
	"github.com/safar/mute-store/internal/models"
)

type State int

const (
	StateIdle State = iota
	StateProcessing
	StateSuccess
)

func (s State) String() string {
	switch s {
	case StateProcessing:
		return "processing"
	case StateSuccess:
		return "success"
	default:
		return "idle"
	}
}

var (
	ErrAlreadyProcessing = apperr.New(apperr.CodeState, "An order is already being processed.")
	ErrEmptyCart         = apperr.New(apperr.CodeValidation, "Your cart is empty.")
	ErrNoCustomerEmail   = apperr.New(apperr.CodeValidation, "Sign in or enter a valid email to place the order.")
	ErrNotCompleted      = apperr.New(apperr.CodeState, "There is no completed order to dismiss.")
)

type OrderPlacer interface {
	PlaceOrder(ctx context.Context, order models.Order) error
}

// EmailSource yields the signed-in customer's email, or "" when nobody is
// signed in.
type EmailSource interface {
	CurrentEmail() string
}

type Notifier interface {
	Notify(title, body string, data map[string]any)
}

// Flow walks one checkout from Idle through Processing to Success. A failed
// submission lands back in Idle with the cart untouched.
type Flow struct {
	cart     *cart.Store
	placer   OrderPlacer
	session  EmailSource
	geocoder geocode.Reverser
	notifier Notifier
	log      *logger.Logger
	delay    time.Duration

	mu        sync.Mutex
	state     State
	lastErr   error
	lastOrder *models.Order
}

type Option func(*Flow)

func WithSession(session EmailSource) Option {
	return func(f *Flow) { f.session = session }
}

func WithGeocoder(r geocode.Reverser) Option {
	return func(f *Flow) { f.geocoder = r }
}

func WithNotifier(n Notifier) Option {
	return func(f *Flow) { f.notifier = n }
}

func WithLogger(log *logger.Logger) Option {
	return func(f *Flow) {
		if log != nil {
			f.log = log
		}
	}
}

// WithProcessingDelay holds the flow in Processing for d before the order
// is sent, mirroring the payment sheet shown to the customer.
func WithProcessingDelay(d time.Duration) Option {
	return func(f *Flow) { f.delay = d }
}

func NewFlow(store *cart.Store, placer OrderPlacer, opts ...Option) *Flow {
	f := &Flow{
		cart:   store,
		placer: placer,
		log:    logger.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// LastError is the failure of the most recent submission, cleared when a
// new one starts.
func (f *Flow) LastError() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}

func (f *Flow) LastOrder() *models.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastOrder
}

// ResolveAddress turns a map coordinate into an address line. It never
// fails; an unresolvable point yields geocode.AddressNotFound.
func (f *Flow) ResolveAddress(ctx context.Context, loc models.Location) string {
	address, err := geocode.ResolveOrPlaceholder(ctx, f.geocoder, loc)
	if err != nil {
		f.log.Warn(f.log.WithField(ctx, "error", err.Error()), "reverse geocoding failed, using placeholder")
	}
	return address
}

// Submit validates form, snapshots the cart and places the order. The
// snapshot is taken before the first suspension point, so later cart edits
// never reach the payload in flight.
func (f *Flow) Submit(ctx context.Context, form Form) (*models.Order, error) {
	f.mu.Lock()
	if f.state == StateProcessing {
		f.mu.Unlock()
		return nil, ErrAlreadyProcessing
	}
	if err := Validate(form); err != nil {
		f.mu.Unlock()
		return nil, err
	}

	snap := f.cart.Snapshot()
	if snap.Empty() {
		f.mu.Unlock()
		return nil, ErrEmptyCart
	}

	email := f.customerEmail(form)
	if email == "" {
		f.mu.Unlock()
		return nil, ErrNoCustomerEmail
	}

	order := buildOrder(snap, form, email)
	f.state = StateProcessing
	f.lastErr = nil
	f.mu.Unlock()

	ctx = f.log.WithEmail(ctx, email)
	f.log.Info(ctx, "order processing started")

	err := f.wait(ctx)
	if err == nil {
		err = f.placer.PlaceOrder(ctx, order)
	}
	if err != nil {
		failure := apperr.Wrap(apperr.CodeDependency, err, apiclient.UserMessage(err))
		f.mu.Lock()
		f.state = StateIdle
		f.lastErr = failure
		f.mu.Unlock()
		f.log.Error(ctx, "order submission failed", err)
		return nil, failure
	}

	f.cart.ClearCart()

	f.mu.Lock()
	f.state = StateSuccess
	f.lastOrder = &order
	f.mu.Unlock()

	f.log.Info(f.log.WithField(ctx, "total", order.Total.StringFixed(2)), "order placed")
	if f.notifier != nil {
		f.notifier.Notify("Compra confirmada",
			"Tu pedido por $"+order.Total.StringFixed(2)+" fue registrado.",
			map[string]any{"total": order.Total.StringFixed(2)})
	}
	return &order, nil
}

// Reset dismisses the success state so the customer can start over.
func (f *Flow) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateSuccess {
		return ErrNotCompleted
	}
	f.state = StateIdle
	f.lastOrder = nil
	return nil
}

func (f *Flow) wait(ctx context.Context) error {
	if f.delay <= 0 {
		return nil
	}
	timer := time.NewTimer(f.delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Flow) customerEmail(form Form) string {
	if f.session != nil {
		if email := strings.TrimSpace(f.session.CurrentEmail()); email != "" {
			return email
		}
	}
	if IsValidEmail(form.Email) {
		return strings.TrimSpace(form.Email)
	}
	return ""
}

func buildOrder(snap cart.Snapshot, form Form, email string) models.Order {
	form = form.normalized()
	lines := make([]models.OrderLine, 0, len(snap.Lines))
	for _, line := range snap.Lines {
		lines = append(lines, models.OrderLine{
			ProductID: line.ProductID,
			Name:      line.DisplayName,
			ImageURL:  line.ImageRef,
			Price:     line.UnitPrice,
			Quantity:  line.Quantity,
			Size:      line.Variant,
		})
	}
	loc := *form.Location
	return models.Order{
		CustomerEmail: email,
		Total:         snap.Total,
		Products:      lines,
		Phone:         form.Phone,
		Address:       form.Address,
		Location:      &loc,
		PaymentMethod: MaskedCard(form.Card.Number),
	}
}
