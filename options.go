package theta

import "log/slog"

// Option configures how a sketch or union is constructed.
type Option func(*options)

type options struct {
	logger *slog.Logger
	memory *Memory
	server MemoryRequestServer
}

// WithLogger sets the logger used for diagnostics such as table resizes and
// memory growth.  By default nothing is logged.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMemory places the sketch in mem instead of on the Go heap.  The region
// is kept up to date as a serialized image.
func WithMemory(mem *Memory) Option {
	return func(o *options) {
		o.memory = mem
	}
}

// WithMemoryRequestServer sets the server asked for a larger region when a
// sketch placed in Memory outgrows it.  Without one, growth beyond the given
// Memory fails with ErrCapacityExceeded.
func WithMemoryRequestServer(server MemoryRequestServer) Option {
	return func(o *options) {
		o.server = server
	}
}

func buildOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	return o
}
