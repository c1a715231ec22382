package middleware

import (
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/wudi/mdgate/internal/errors"
	"github.com/wudi/mdgate/internal/logging"
)

// RecoveryConfig configures the recovery middleware.
type RecoveryConfig struct {
	// PrintStack captures the stack trace when a panic occurs.
	PrintStack bool
	// LogFunc is called when a panic occurs.
	LogFunc func(err interface{}, stack []byte)
}

// DefaultRecoveryConfig provides default recovery settings.
var DefaultRecoveryConfig = RecoveryConfig{
	PrintStack: true,
	LogFunc:    defaultLogFunc,
}

func defaultLogFunc(err interface{}, stack []byte) {
	logging.Error("panic recovered",
		zap.Any("error", err),
		zap.ByteString("stack", stack),
	)
}

// Recovery creates a panic recovery middleware. Panic details are logged
// server-side; the client only sees the generic internal error body.
func Recovery() Middleware {
	return RecoveryWithConfig(DefaultRecoveryConfig)
}

// RecoveryWithConfig creates a recovery middleware with custom config.
func RecoveryWithConfig(cfg RecoveryConfig) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					var stack []byte
					if cfg.PrintStack {
						stack = debug.Stack()
					}
					if cfg.LogFunc != nil {
						cfg.LogFunc(err, stack)
					}

					rerr := errors.ErrInternalServer
					if id := GetRequestID(r); id != "" {
						rerr = rerr.WithRequestID(id)
					}
					rerr.WriteJSON(w)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
