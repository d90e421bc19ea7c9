package squarerpc

import "time"

type serverOptions struct {
	logResponse     bool
	name            string
	workerNum       int
	limiterDuration time.Duration
	limiterCount    int
	limiterReject   bool
	defaultTimeout  time.Duration
}

// ServerOption is a functional option for configuring the server.
type ServerOption func(o *serverOptions)

// WithServerName is a function that returns a ServerOption to set the name of the server.
// The name is attached to every metric the server emits.
func WithServerName(name string) ServerOption {
	return func(o *serverOptions) {
		o.name = name
	}
}

// WithLogResponse is a function that returns a ServerOption to enable or disable logging of response.
// It takes a boolean parameter logResponse, which determines whether to log the response or not.
func WithLogResponse(logResponse bool) ServerOption {
	return func(o *serverOptions) {
		o.logResponse = logResponse
	}
}

// WithLimiter is a function that returns a ServerOption which sets the limiter duration and count for the server.
// A token is added every d and at most count tokens can be held, so count is also the burst size.
// Default values are 1 millisecond and 1000 requests.
func WithLimiter(d time.Duration, count int) ServerOption {
	return func(o *serverOptions) {
		o.limiterDuration = d
		o.limiterCount = count
	}
}

// WithLimiterReject returns a ServerOption that makes the server reject calls when the limiter is empty. This is default behavior.
// If you want the server to wait for available resources instead of rejecting requests when the limiter is full, use WithLimiterWait.
func WithLimiterReject() ServerOption {
	return func(o *serverOptions) {
		o.limiterReject = true
	}
}

// WithLimiterWait returns a ServerOption that makes calls wait for a limiter token until their context is done.
// If you want the server to reject requests when the limiter is full, use WithLimiterReject.
func WithLimiterWait() ServerOption {
	return func(o *serverOptions) {
		o.limiterReject = false
	}
}

// WithWorkerNum is a function that returns a ServerOption which sets the number of workers for the server.
// The count parameter specifies the number of workers to be set.
func WithWorkerNum(count int) ServerOption {
	return func(o *serverOptions) {
		o.workerNum = count
	}
}

// WithDefaultTimeout sets the timeout used for handlers registered without one.
func WithDefaultTimeout(d time.Duration) ServerOption {
	return func(o *serverOptions) {
		o.defaultTimeout = d
	}
}
