package payment

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81"
)

type mockIntents struct {
	mock.Mock
}

func (m *mockIntents) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	args := m.Called(params)
	pi, _ := args.Get(0).(*stripe.PaymentIntent)
	return pi, args.Error(1)
}

func (m *mockIntents) Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	args := m.Called(id, params)
	pi, _ := args.Get(0).(*stripe.PaymentIntent)
	return pi, args.Error(1)
}

type mockCharges struct {
	mock.Mock
}

func (m *mockCharges) Get(id string, params *stripe.ChargeParams) (*stripe.Charge, error) {
	args := m.Called(id, params)
	ch, _ := args.Get(0).(*stripe.Charge)
	return ch, args.Error(1)
}

func TestCreateIntent(t *testing.T) {
	intents := &mockIntents{}
	intents.On("New", mock.MatchedBy(func(p *stripe.PaymentIntentParams) bool {
		return *p.Amount == 2500 && *p.Currency == "usd" &&
			len(p.PaymentMethodTypes) == 1 && *p.PaymentMethodTypes[0] == "card"
	})).Return(&stripe.PaymentIntent{ID: "pi_1", ClientSecret: "pi_1_secret"}, nil)

	g := newGateway(intents, &mockCharges{}, "")
	pi, err := g.CreateIntent(context.Background(), 2500)

	require.NoError(t, err)
	assert.Equal(t, "pi_1", pi.ID)
	assert.Equal(t, "pi_1_secret", pi.ClientSecret)
	intents.AssertExpectations(t)
}

func TestCreateIntent_ProcessorError(t *testing.T) {
	intents := &mockIntents{}
	intents.On("New", mock.Anything).Return(nil, errors.New("card_declined"))

	_, err := newGateway(intents, &mockCharges{}, "usd").CreateIntent(context.Background(), 100)
	assert.ErrorContains(t, err, "card_declined")
}

func TestReceiptURL(t *testing.T) {
	t.Run("follows latest charge", func(t *testing.T) {
		intents := &mockIntents{}
		charges := &mockCharges{}
		intents.On("Get", "pi_1", mock.Anything).
			Return(&stripe.PaymentIntent{ID: "pi_1", LatestCharge: &stripe.Charge{ID: "ch_1"}}, nil)
		charges.On("Get", "ch_1", mock.Anything).
			Return(&stripe.Charge{ID: "ch_1", ReceiptURL: "https://pay.stripe.com/receipts/r1"}, nil)

		url, err := newGateway(intents, charges, "usd").ReceiptURL(context.Background(), "pi_1")
		require.NoError(t, err)
		assert.Equal(t, "https://pay.stripe.com/receipts/r1", url)
	})

	t.Run("no charge yet", func(t *testing.T) {
		intents := &mockIntents{}
		charges := &mockCharges{}
		intents.On("Get", "pi_2", mock.Anything).Return(&stripe.PaymentIntent{ID: "pi_2"}, nil)

		_, err := newGateway(intents, charges, "usd").ReceiptURL(context.Background(), "pi_2")
		assert.ErrorIs(t, err, ErrNoCharge)
		charges.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
	})

	t.Run("charge without receipt", func(t *testing.T) {
		intents := &mockIntents{}
		charges := &mockCharges{}
		intents.On("Get", "pi_3", mock.Anything).
			Return(&stripe.PaymentIntent{ID: "pi_3", LatestCharge: &stripe.Charge{ID: "ch_3"}}, nil)
		charges.On("Get", "ch_3", mock.Anything).Return(&stripe.Charge{ID: "ch_3"}, nil)

		_, err := newGateway(intents, charges, "usd").ReceiptURL(context.Background(), "pi_3")
		assert.ErrorIs(t, err, ErrNoReceipt)
	})

	t.Run("processor error", func(t *testing.T) {
		intents := &mockIntents{}
		intents.On("Get", "pi_x", mock.Anything).Return(nil, errors.New("resource_missing"))

		_, err := newGateway(intents, &mockCharges{}, "usd").ReceiptURL(context.Background(), "pi_x")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrNoCharge)
	})
}
