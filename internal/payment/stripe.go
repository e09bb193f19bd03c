package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"

	"hikenity/internal/model"
)

var (
	ErrNoCharge  = errors.New("no charge data found for this payment intent")
	ErrNoReceipt = errors.New("no receipt available")
)

type Config struct {
	SecretKey string
	Currency  string
}

type intentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type chargeAPI interface {
	Get(id string, params *stripe.ChargeParams) (*stripe.Charge, error)
}

type Gateway struct {
	intents  intentAPI
	charges  chargeAPI
	currency string
}

func NewGateway(cfg Config) *Gateway {
	sc := &client.API{}
	sc.Init(cfg.SecretKey, nil)
	return newGateway(sc.PaymentIntents, sc.Charges, cfg.Currency)
}

func newGateway(intents intentAPI, charges chargeAPI, currency string) *Gateway {
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}
	return &Gateway{intents: intents, charges: charges, currency: currency}
}

// CreateIntent creates a card-only intent; amount is in the smallest
// currency unit.
func (g *Gateway) CreateIntent(ctx context.Context, amount int64) (*model.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(amount),
		Currency:           stripe.String(g.currency),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
	}
	params.Context = ctx

	pi, err := g.intents.New(params)
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}
	return &model.PaymentIntent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func (g *Gateway) ReceiptURL(ctx context.Context, intentID string) (string, error) {
	piParams := &stripe.PaymentIntentParams{}
	piParams.Context = ctx

	pi, err := g.intents.Get(intentID, piParams)
	if err != nil {
		return "", fmt.Errorf("retrieve payment intent: %w", err)
	}
	if pi.LatestCharge == nil || pi.LatestCharge.ID == "" {
		return "", ErrNoCharge
	}

	chParams := &stripe.ChargeParams{}
	chParams.Context = ctx

	ch, err := g.charges.Get(pi.LatestCharge.ID, chParams)
	if err != nil {
		return "", fmt.Errorf("retrieve charge: %w", err)
	}
	if ch.ReceiptURL == "" {
		return "", ErrNoReceipt
	}
	return ch.ReceiptURL, nil
}
