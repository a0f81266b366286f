package store

// Option configures a Store backend.
type Option func(*options)

type options struct {
	clock Clock
}

// WithClock overrides the time source used for created/updated timestamps.
func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

func applyOptions(opts []Option) options {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
