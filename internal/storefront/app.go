// Package storefront drives the client core from a line-oriented shell:
// browsing the catalog, editing the cart, signing in and checking out.
package storefront

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/safar/mute-store/internal/apiclient"
	"github.com/safar/mute-store/internal/apperr"
	"github.com/safar/mute-store/internal/cart"
	"github.com/safar/mute-store/internal/checkout"
	"github.com/safar/mute-store/internal/logger"
	"github.com/safar/mute-store/internal/models"
	"github.com/safar/mute-store/internal/session"
)

// Backend is the part of the order backend the shell calls directly.
type Backend interface {
	session.Authenticator
	checkout.OrderPlacer
	Products(ctx context.Context) ([]models.Product, error)
	Purchases(ctx context.Context, email string) ([]models.Purchase, error)
	Profile(ctx context.Context, token string) (*models.Customer, error)
}

// SessionAdopter takes a provider session id handed over by the sign-in page.
type SessionAdopter interface {
	Adopt(sessionID string)
}

// DeviceRegistrar receives the device's push token.
type DeviceRegistrar interface {
	Register(deviceToken string)
}

type App struct {
	backend  Backend
	cart     *cart.Store
	flow     *checkout.Flow
	session  *session.Bridge
	devices  DeviceRegistrar
	provider SessionAdopter
	log      *logger.Logger
	out      io.Writer

	catalog map[string]models.Product
}

type Deps struct {
	Backend  Backend
	Cart     *cart.Store
	Flow     *checkout.Flow
	Session  *session.Bridge
	Devices  DeviceRegistrar
	Provider SessionAdopter
	Logger   *logger.Logger
	Out      io.Writer
}

func NewApp(d Deps) *App {
	log := d.Logger
	if log == nil {
		log = logger.Nop()
	}
	out := d.Out
	if out == nil {
		out = io.Discard
	}
	return &App{
		backend:  d.Backend,
		cart:     d.Cart,
		flow:     d.Flow,
		session:  d.Session,
		devices:  d.Devices,
		provider: d.Provider,
		log:      log,
		out:      out,
		catalog:  map[string]models.Product{},
	}
}

var errQuit = errors.New("quit")

// Run reads commands from in until EOF or "quit". Command failures are
// printed and do not stop the loop.
func (a *App) Run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	a.printf("> ")
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := a.Exec(ctx, scanner.Text())
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			a.printf("error: %s\n", userMessage(err))
		}
		a.printf("> ")
	}
	return scanner.Err()
}

// Exec runs one command line.
func (a *App) Exec(ctx context.Context, line string) error {
	args, err := splitArgs(line)
	if err != nil {
		return apperr.Wrap(apperr.CodeValidation, err, err.Error())
	}
	if len(args) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(args[0]), args[1:]

	switch cmd {
	case "help":
		a.printf("%s", helpText)
		return nil
	case "quit", "exit":
		return errQuit
	case "login":
		return a.login(ctx, args)
	case "register":
		return a.register(ctx, args)
	case "provider-login":
		if len(args) > 1 {
			return usage("provider-login [session-id]")
		}
		if len(args) == 1 {
			if a.provider == nil {
				return session.ErrProviderUnavailable
			}
			a.provider.Adopt(args[0])
		}
		if err := a.session.SignInWithProvider(ctx); err != nil {
			return err
		}
		a.printf("signed in as %s\n", a.session.CurrentEmail())
		return nil
	case "logout":
		a.session.SignOut(ctx)
		a.printf("signed out\n")
		return nil
	case "whoami":
		return a.whoami(ctx)
	case "products":
		return a.products(ctx)
	case "add":
		return a.add(ctx, args)
	case "inc", "dec":
		if len(args) != 1 {
			return usage("%s <line-id>", cmd)
		}
		dir := cart.Increase
		if cmd == "dec" {
			dir = cart.Decrease
		}
		a.cart.UpdateQuantity(args[0], dir)
		a.printCart()
		return nil
	case "rm":
		if len(args) != 1 {
			return usage("rm <line-id>")
		}
		a.cart.RemoveFromCart(args[0])
		a.printCart()
		return nil
	case "cart":
		a.printCart()
		return nil
	case "locate":
		return a.locate(ctx, args)
	case "checkout":
		return a.checkout(ctx, args)
	case "done":
		if err := a.flow.Reset(); err != nil {
			return err
		}
		a.printf("ready for a new order\n")
		return nil
	case "purchases":
		return a.purchases(ctx)
	case "device":
		if len(args) != 1 || a.devices == nil {
			return usage("device <push-token>")
		}
		a.devices.Register(args[0])
		a.printf("device registered\n")
		return nil
	}
	return usage("unknown command %q, try help", cmd)
}

func (a *App) login(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usage("login <email> <password>")
	}
	if err := a.session.SignIn(ctx, args[0], args[1]); err != nil {
		return err
	}
	a.printf("signed in as %s\n", a.session.CurrentEmail())
	return nil
}

func (a *App) register(ctx context.Context, args []string) error {
	kv := keyValues(args)
	r := session.Registration{
		Name:            kv["name"],
		Email:           kv["email"],
		Password:        kv["password"],
		ConfirmPassword: kv["confirm"],
		Phone:           kv["phone"],
		Address:         kv["address"],
	}
	if err := a.session.Register(ctx, r); err != nil {
		return err
	}
	a.printf("account created, signed in as %s\n", a.session.CurrentEmail())
	return nil
}

func (a *App) whoami(ctx context.Context) error {
	if !a.session.Authenticated() {
		a.printf("not signed in\n")
		return nil
	}
	if a.session.Source() != session.SourceLocal {
		a.printf("%s (%s)\n", a.session.CurrentEmail(), a.session.Source())
		return nil
	}
	profile, err := a.backend.Profile(ctx, a.session.Token())
	if err != nil {
		return err
	}
	a.printf("%s <%s> %s %s\n", profile.Name, profile.Email, profile.Phone, profile.Address)
	return nil
}

func (a *App) products(ctx context.Context) error {
	products, err := a.backend.Products(ctx)
	if err != nil {
		return err
	}
	a.catalog = make(map[string]models.Product, len(products))
	for _, p := range products {
		a.catalog[p.SKU] = p
		a.printf("%-10s %-30s %10s  tallas: %s\n", p.SKU, p.Name, p.Price.StringFixed(2), strings.Join(p.Sizes, ","))
	}
	return nil
}

func (a *App) add(ctx context.Context, args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return usage("add <product-id> <size> [quantity]")
	}
	if len(a.catalog) == 0 {
		if err := a.products(ctx); err != nil {
			return err
		}
	}
	product, ok := a.catalog[args[0]]
	if !ok {
		return apperr.New(apperr.CodeNotFound, fmt.Sprintf("unknown product %q", args[0]))
	}
	size := args[1]
	if len(product.Sizes) > 0 && !slices.Contains(product.Sizes, size) {
		return apperr.New(apperr.CodeValidation, fmt.Sprintf("size %q is not offered for %s", size, product.Name))
	}
	qty := 1
	if len(args) == 3 {
		n, err := strconv.Atoi(args[2])
		if err != nil {
			return usage("quantity must be a number")
		}
		qty = n
	}

	a.cart.AddToCart(cart.Line{
		ProductID:   product.SKU,
		DisplayName: product.Name,
		UnitPrice:   product.Price,
		Variant:     size,
		Quantity:    qty,
		ImageRef:    product.ImageURL,
	})
	a.printCart()
	return nil
}

func (a *App) locate(ctx context.Context, args []string) error {
	loc, err := parseLocation(args)
	if err != nil {
		return err
	}
	a.printf("%s\n", a.flow.ResolveAddress(ctx, loc))
	return nil
}

func (a *App) checkout(ctx context.Context, args []string) error {
	kv := keyValues(args)
	form := checkout.Form{
		FullName: kv["name"],
		Email:    kv["email"],
		Phone:    kv["phone"],
		Address:  kv["address"],
		Card: checkout.Card{
			Number: kv["card"],
			Expiry: kv["exp"],
			CVC:    kv["cvc"],
		},
	}
	if kv["lat"] != "" || kv["lng"] != "" {
		loc, err := parseLocation([]string{kv["lat"], kv["lng"]})
		if err != nil {
			return err
		}
		form.Location = &loc
		if form.Address == "" {
			form.Address = a.flow.ResolveAddress(ctx, loc)
		}
	}

	order, err := a.flow.Submit(ctx, form)
	if err != nil {
		return err
	}
	a.printf("order placed: %d line(s), total %s, paid with %s\n", len(order.Products), order.Total.StringFixed(2), order.PaymentMethod)
	return nil
}

func (a *App) purchases(ctx context.Context) error {
	email := a.session.CurrentEmail()
	if email == "" {
		return apperr.New(apperr.CodeUnauthorized, "sign in to see your purchases")
	}
	purchases, err := a.backend.Purchases(ctx, email)
	if err != nil {
		return err
	}
	if len(purchases) == 0 {
		a.printf("no purchases yet\n")
		return nil
	}
	for _, p := range purchases {
		a.printf("%s  %s  %s  %d item(s)\n", p.OrderNumber, p.CreatedAt.Format("2006-01-02 15:04"), p.Total.StringFixed(2), len(p.Items))
	}
	return nil
}

func (a *App) printCart() {
	lines := a.cart.Lines()
	if len(lines) == 0 {
		a.printf("cart is empty\n")
		return
	}
	for _, l := range lines {
		a.printf("%-16s %-24s x%-3d %10s\n", l.ID(), l.DisplayName, l.Quantity, l.Subtotal().StringFixed(2))
	}
	a.printf("%-16s %-24s %14s\n", "", "total", a.cart.Total().StringFixed(2))
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

func userMessage(err error) string {
	if typed := apperr.As(err); typed != nil {
		return apperr.PublicMessage(typed)
	}
	return apiclient.UserMessage(err)
}

func usage(format string, args ...any) error {
	return apperr.New(apperr.CodeValidation, "usage: "+fmt.Sprintf(format, args...))
}

func parseLocation(args []string) (models.Location, error) {
	if len(args) != 2 {
		return models.Location{}, usage("locate <lat> <lng>")
	}
	lat, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return models.Location{}, usage("latitude must be a number")
	}
	lng, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return models.Location{}, usage("longitude must be a number")
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return models.Location{}, apperr.New(apperr.CodeValidation, "coordinates out of range")
	}
	return models.Location{Latitude: lat, Longitude: lng}, nil
}

func keyValues(args []string) map[string]string {
	out := make(map[string]string, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if ok {
			out[strings.ToLower(k)] = v
		}
	}
	return out
}

// splitArgs splits on whitespace; double quotes group words and may appear
// anywhere in an argument, as in address="Av. Reforma 1".
func splitArgs(line string) ([]string, error) {
	var (
		args    []string
		current strings.Builder
		inQuote bool
		started bool
	)
	for _, r := range line {
		switch {
		case r == '"':
			inQuote = !inQuote
			started = true
		case !inQuote && (r == ' ' || r == '\t'):
			if started {
				args = append(args, current.String())
				current.Reset()
				started = false
			}
		default:
			current.WriteRune(r)
			started = true
		}
	}
	if inQuote {
		return nil, errors.New("unterminated quote")
	}
	if started {
		args = append(args, current.String())
	}
	return args, nil
}

const helpText = `commands:
  products                              list the catalog
  add <product-id> <size> [qty]         add to cart
  inc|dec|rm <line-id>                  change a cart line
  cart                                  show the cart
  login <email> <password>              sign in
  register name=.. email=.. password=.. confirm=.. [phone=..] [address=..]
  provider-login [session-id]           sign in with the identity provider
  logout | whoami
  locate <lat> <lng>                    reverse geocode a delivery point
  checkout name=.. phone=.. lat=.. lng=.. card=.. exp=.. cvc=.. [address=..] [email=..]
  done                                  dismiss the order confirmation
  purchases                             purchase history
  device <push-token>                   register this device for push
  quit
`
