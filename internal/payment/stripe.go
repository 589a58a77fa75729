package payment

import (
	"context"
	"errors"
	"fmt"

	"ms-boxoffice/internal/logger"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

var ErrStripeClientInitFailed = errors.New("failed to initialize Stripe client")

// StripeProvider implements Provider on top of Stripe PaymentIntents.
type StripeProvider struct {
	client *client.API
	log    *logger.Logger
}

func NewStripeProvider(secretKey string, log *logger.Logger) (*StripeProvider, error) {
	if secretKey == "" {
		log.Error("STRIPE", "STRIPE_SECRET_KEY is not set")
		return nil, ErrStripeClientInitFailed
	}
	sc := client.New(secretKey, nil)
	log.Info("STRIPE", "Stripe client initialized")
	return &StripeProvider{client: sc, log: log}, nil
}

func (s *StripeProvider) CreateIntent(ctx context.Context, p CreateIntentParams) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(p.AmountCents),
		Currency: stripe.String(p.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if p.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(p.IdempotencyKey)
	}
	for key, value := range p.Metadata {
		params.AddMetadata(key, value)
	}

	pi, err := s.client.PaymentIntents.New(params)
	if err != nil {
		s.log.Error("STRIPE", fmt.Sprintf("create payment intent: %v", err))
		return nil, fmt.Errorf("create payment intent: %w", err)
	}
	return fromStripeIntent(pi), nil
}

func (s *StripeProvider) GetIntent(ctx context.Context, id string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := s.client.PaymentIntents.Get(id, params)
	if err != nil {
		s.log.Error("STRIPE", fmt.Sprintf("retrieve payment intent %s: %v", id, err))
		return nil, fmt.Errorf("retrieve payment intent %s: %w", id, err)
	}
	return fromStripeIntent(pi), nil
}

func fromStripeIntent(pi *stripe.PaymentIntent) *Intent {
	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		AmountCents:  pi.Amount,
		Currency:     string(pi.Currency),
		Metadata:     pi.Metadata,
	}
}
