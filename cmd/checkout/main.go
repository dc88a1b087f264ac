// checkout drives an order through the API from the terminal: it prices a
// cart, opens a hosted payment page, waits for the payment to settle and
// prints the placed order. It can also show the status of an existing order
// or cancel it inside the customer cancel window.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dejobratic/nooks/internal/checkout"
	"github.com/dejobratic/nooks/internal/orders/domain"
	"github.com/dejobratic/nooks/internal/telemetry"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
)

type options struct {
	api          string
	branch       string
	orderType    string
	items        []string
	customerID   string
	customerName string
	phone        string
	address      string
	city         string
	lat          float64
	lng          float64
	deliveryFee  string
	promo        string
	successURL   string
	cancelURL    string
	pollInterval time.Duration
	timeout      time.Duration
	status       string
	cancel       string
	logLevel     string
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var opts options

	flagSet := pflag.NewFlagSet("checkout", pflag.ContinueOnError)
	flagSet.StringVar(&opts.api, "api", "http://localhost:8080", "base URL of the order API")
	flagSet.StringVar(&opts.branch, "branch", "", "branch id to order from")
	flagSet.StringVar(&opts.orderType, "type", string(domain.OrderTypePickup), "pickup or delivery")
	flagSet.StringArrayVar(&opts.items, "item", nil, "cart line as productId:quantity:unitPrice (repeatable)")
	flagSet.StringVar(&opts.customerID, "customer-id", "", "customer id")
	flagSet.StringVar(&opts.customerName, "name", "", "customer name")
	flagSet.StringVar(&opts.phone, "phone", "", "customer phone")
	flagSet.StringVar(&opts.address, "address", "", "delivery street address")
	flagSet.StringVar(&opts.city, "city", "", "delivery city")
	flagSet.Float64Var(&opts.lat, "lat", 0, "delivery latitude")
	flagSet.Float64Var(&opts.lng, "lng", 0, "delivery longitude")
	flagSet.StringVar(&opts.deliveryFee, "delivery-fee", "0", "delivery fee in SAR")
	flagSet.StringVar(&opts.promo, "promo", "", "promo code to apply")
	flagSet.StringVar(&opts.successURL, "success-url", "nooks://payment/success", "where the payment page returns on success")
	flagSet.StringVar(&opts.cancelURL, "cancel-url", "", "where the payment page returns on cancel")
	flagSet.DurationVar(&opts.pollInterval, "poll-interval", checkout.DefaultPollInterval, "payment status poll interval")
	flagSet.DurationVar(&opts.timeout, "timeout", 10*time.Minute, "give up waiting for the payment after this long")
	flagSet.StringVar(&opts.status, "status", "", "print the status of ORDER_ID and exit")
	flagSet.StringVar(&opts.cancel, "cancel", "", "cancel ORDER_ID and exit")
	flagSet.StringVar(&opts.logLevel, "log-level", "warn", "log level")

	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}

	level, err := telemetry.ParseLevel(opts.logLevel)
	if err != nil {
		return err
	}
	logger := telemetry.NewLoggerWithWriter(os.Stderr, level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := checkout.NewClient(opts.api, nil)

	switch {
	case opts.status != "":
		status, err := client.OrderStatus(ctx, opts.status)
		if err != nil {
			return err
		}
		return printJSON(status)
	case opts.cancel != "":
		refund, err := client.CancelOrder(ctx, opts.cancel)
		if err != nil {
			return err
		}
		fmt.Printf("order %s cancelled, refund: %s\n", opts.cancel, refund)
		return nil
	}

	cart, err := opts.cart()
	if err != nil {
		return err
	}
	return placeOrder(ctx, logger, client, cart, opts)
}

func placeOrder(ctx context.Context, logger *slog.Logger, client *checkout.Client, cart checkout.Cart, opts options) error {
	session := checkout.NewSession(client, cart)
	logger = logger.With("order_id", session.OrderID())

	amounts := session.Amounts()
	if opts.promo != "" {
		applied, err := session.ApplyPromo(ctx, opts.promo)
		if err != nil {
			logger.Warn("promo rejected; continuing without it", "code", opts.promo, "error", err)
		} else {
			amounts = applied
		}
	}
	if err := printJSON(amounts); err != nil {
		return err
	}

	result, err := session.Pay(ctx, checkout.PayOptions{
		Method:     checkout.MethodRedirect,
		SuccessURL: opts.successURL,
		CancelURL:  opts.cancelURL,
	})
	if err != nil {
		return err
	}
	logger.Info("payment opened", "payment_id", result.PaymentID)
	fmt.Printf("open to pay: %s\n", result.RedirectURL)

	waitCtx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	placed, err := session.Poll(waitCtx, opts.pollInterval)
	if err != nil && !errors.Is(err, checkout.ErrAlreadyConfirmed) {
		return err
	}
	if placed == nil {
		return fmt.Errorf("payment %s confirmed elsewhere", result.PaymentID)
	}
	if placed.Duplicate {
		logger.Info("order was already placed")
	}
	return printJSON(placed.Order)
}

func (o options) cart() (checkout.Cart, error) {
	items := make([]domain.Item, 0, len(o.items))
	for _, raw := range o.items {
		item, err := parseItem(raw)
		if err != nil {
			return checkout.Cart{}, err
		}
		items = append(items, item)
	}

	fee, err := decimal.NewFromString(o.deliveryFee)
	if err != nil {
		return checkout.Cart{}, fmt.Errorf("invalid --delivery-fee %q: %w", o.deliveryFee, err)
	}

	orderType := domain.OrderType(strings.ToLower(o.orderType))
	if orderType != domain.OrderTypePickup && orderType != domain.OrderTypeDelivery {
		return checkout.Cart{}, fmt.Errorf("invalid --type %q", o.orderType)
	}

	cart := checkout.Cart{
		Customer:    domain.Customer{ID: o.customerID, Name: o.customerName, Phone: o.phone},
		BranchID:    o.branch,
		OrderType:   orderType,
		Items:       items,
		DeliveryFee: fee,
	}
	if orderType == domain.OrderTypeDelivery && o.address != "" {
		address := &domain.Address{Address: o.address, City: o.city}
		if o.lat != 0 || o.lng != 0 {
			lat, lng := o.lat, o.lng
			address.Lat, address.Lng = &lat, &lng
		}
		cart.DeliveryAddress = address
	}
	return cart, nil
}

// parseItem reads productId:quantity:unitPrice.
func parseItem(raw string) (domain.Item, error) {
	parts := strings.Split(raw, ":")
	if len(parts) != 3 || parts[0] == "" {
		return domain.Item{}, fmt.Errorf("invalid --item %q: want productId:quantity:unitPrice", raw)
	}
	quantity, err := strconv.Atoi(parts[1])
	if err != nil || quantity <= 0 {
		return domain.Item{}, fmt.Errorf("invalid --item %q: quantity must be a positive integer", raw)
	}
	price, err := decimal.NewFromString(parts[2])
	if err != nil || price.IsNegative() {
		return domain.Item{}, fmt.Errorf("invalid --item %q: bad unit price", raw)
	}
	return domain.Item{ProductID: parts[0], Name: parts[0], Quantity: quantity, UnitPrice: price}, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
