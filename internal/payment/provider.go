package payment

import "context"

// StatusSucceeded is the provider's terminal success status. Anything else
// means the charge is not (or not yet) complete.
const StatusSucceeded = "succeeded"

// Intent is the provider-neutral view of a payment authorization.
type Intent struct {
	ID           string
	ClientSecret string
	Status       string
	AmountCents  int64
	Currency     string
	Metadata     map[string]string
}

// Succeeded reports whether the authorization reached terminal success.
func (i *Intent) Succeeded() bool {
	return i != nil && i.Status == StatusSucceeded
}

type CreateIntentParams struct {
	AmountCents int64
	Currency    string
	Metadata    map[string]string
	// IdempotencyKey makes retried create requests return the same
	// authorization instead of opening a second one.
	IdempotencyKey string
}

// Provider is the external payment collaborator. GetIntent is the only
// source of payment truth: the core never trusts a client-supplied success
// flag.
type Provider interface {
	CreateIntent(ctx context.Context, params CreateIntentParams) (*Intent, error)
	GetIntent(ctx context.Context, id string) (*Intent, error)
}
