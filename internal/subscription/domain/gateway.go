package domain

import "context"

// Gateway changes renewal on the vendor side; local state follows the
// returned snapshot.
type Gateway interface {
	CancelAtPeriodEnd(ctx context.Context, accountID, subscriptionID string) (VendorSnapshot, error)
	Resume(ctx context.Context, accountID, subscriptionID string) (VendorSnapshot, error)
}
