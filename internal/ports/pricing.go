package ports

import "context"

// PriceSource supplies the current trade/settlement price.
// Implementations return a positive price; consecutive calls need not be correlated.
type PriceSource interface {
	CurrentPrice(ctx context.Context) (float64, error)
}

// PriceSourceFunc adapts a plain function to PriceSource.
type PriceSourceFunc func(ctx context.Context) (float64, error)

// CurrentPrice calls f(ctx).
func (f PriceSourceFunc) CurrentPrice(ctx context.Context) (float64, error) {
	return f(ctx)
}
