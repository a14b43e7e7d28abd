package store

// Option configures Store behavior.
type Option func(*StoreOptions)

// StoreOptions carries optional configuration for Store.
type StoreOptions struct {
	Distance string
}

// WithDistance sets the metric used by collections created through the store.
func WithDistance(distance string) Option {
	return func(opts *StoreOptions) {
		opts.Distance = distance
	}
}
