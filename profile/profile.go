package profile

// Stopper ends a profiling session and flushes its output.
type Stopper interface{ Stop() }

type settings struct {
	mode  string
	path  string
	quiet bool
}

// Option configures a profiling session.
type Option func(*settings)

// WithMode selects one of [Modes].
func WithMode(mode string) Option {
	return func(s *settings) { s.mode = mode }
}

// WithPath sets the output directory.
func WithPath(path string) Option {
	return func(s *settings) { s.path = path }
}

// WithQuiet suppresses the profiler's own log output.
func WithQuiet(quiet bool) Option {
	return func(s *settings) { s.quiet = quiet }
}

// Start begins profiling. The returned Stopper is always safe to call; it
// is a no-op if the mode is empty or unknown, or profiling is not compiled
// in.
func Start(opts ...Option) Stopper {
	var s settings

	for _, opt := range opts {
		opt(&s)
	}

	if s.mode == "" {
		return ignore{}
	}

	return start(s)
}

type ignore struct{}

func (ignore) Stop() {}
