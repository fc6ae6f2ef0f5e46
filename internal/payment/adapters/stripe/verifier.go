package stripe

import (
	"strings"

	"github.com/gitwallet/market/internal/config"
	paymentdomain "github.com/gitwallet/market/internal/payment/domain"
	stripego "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// Verifier checks webhook signatures with the secret of the endpoint the
// event arrived on.
type Verifier struct {
	secrets map[string]string
}

func NewVerifier(cfg config.Config) *Verifier {
	return NewVerifierWithSecrets(map[string]string{
		paymentdomain.SourceConnect:  cfg.Stripe.ConnectWebhookSecret,
		paymentdomain.SourcePlatform: cfg.Stripe.PlatformWebhookSecret,
	})
}

func NewVerifierWithSecrets(secrets map[string]string) *Verifier {
	copied := make(map[string]string, len(secrets))
	for source, secret := range secrets {
		copied[source] = strings.TrimSpace(secret)
	}
	return &Verifier{secrets: copied}
}

func (v *Verifier) Verify(source string, payload []byte, signature string) (stripego.Event, error) {
	secret, ok := v.secrets[source]
	if !ok {
		return stripego.Event{}, paymentdomain.ErrInvalidSource
	}
	if secret == "" {
		return stripego.Event{}, paymentdomain.ErrSecretNotConfigured
	}
	if strings.TrimSpace(signature) == "" {
		return stripego.Event{}, paymentdomain.ErrInvalidSignature
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripego.Event{}, paymentdomain.ErrInvalidSignature
	}
	if strings.TrimSpace(event.ID) == "" {
		return stripego.Event{}, paymentdomain.ErrInvalidPayload
	}
	return event, nil
}
