package waypoint

import (
	"github.com/kzs0/waypoint/trace"
)

// InterceptorOption configures an Interceptor.
type InterceptorOption func(*interceptorConfig)

type interceptorConfig struct {
	serviceType   trace.ServiceType
	captureParams bool
}

// WithServiceType sets the service type recorded on spans. Defaults to the
// agent's Config.ServiceType.
func WithServiceType(t trace.ServiceType) InterceptorOption {
	return func(cfg *interceptorConfig) {
		cfg.serviceType = t
	}
}

// WithParamCapture enables or disables recording request parameters on the
// span. Default: enabled.
func WithParamCapture(enable bool) InterceptorOption {
	return func(cfg *interceptorConfig) {
		cfg.captureParams = enable
	}
}

func applyInterceptorOptions(def trace.ServiceType, opts []InterceptorOption) interceptorConfig {
	cfg := interceptorConfig{
		serviceType:   def,
		captureParams: true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// MiddlewareOption configures the HTTP middleware.
type MiddlewareOption func(*middlewareConfig)

type middlewareConfig struct {
	descriptor         trace.MethodDescriptor
	interceptorOptions []InterceptorOption
	successStatusCodes map[int]bool
}

// WithDescriptor sets the method descriptor registered for the wrapped
// handler (default: http.Handler.ServeHTTP).
func WithDescriptor(d trace.MethodDescriptor) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		cfg.descriptor = d
	}
}

// WithInterceptorOptions passes options through to the underlying Interceptor.
func WithInterceptorOptions(opts ...InterceptorOption) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		cfg.interceptorOptions = append(cfg.interceptorOptions, opts...)
	}
}

// WithSuccessCodes defines which HTTP status codes are considered successful.
// Default: 2xx and 3xx are success, 4xx and 5xx are failures.
func WithSuccessCodes(codes ...int) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		cfg.successStatusCodes = make(map[int]bool)
		for _, code := range codes {
			cfg.successStatusCodes[code] = true
		}
	}
}

func applyMiddlewareOptions(opts []MiddlewareOption) middlewareConfig {
	cfg := middlewareConfig{
		descriptor: trace.MethodDescriptor{
			Type:       "http.Handler",
			Method:     "ServeHTTP",
			Parameters: []string{"http.ResponseWriter", "*http.Request"},
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// failed reports whether status counts as a failure.
func (cfg middlewareConfig) failed(status int) bool {
	if cfg.successStatusCodes != nil {
		return !cfg.successStatusCodes[status]
	}
	return status >= 400
}
