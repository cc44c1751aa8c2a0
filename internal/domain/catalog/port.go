package catalog

import "context"

// Provider supplies the full supplement catalog.
type Provider interface {
	List(ctx context.Context) ([]Entry, error)
}
