package mw

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"
)

// panicWithStack captures a panic value along with its stack trace.
type panicWithStack struct {
	value interface{}
	stack []byte
}

// TimeoutConfig defines timeout behavior for different path patterns.
type TimeoutConfig struct {
	// Default timeout for most endpoints
	Default time.Duration
	// Extended timeout for LLM-heavy operations (claims insights, quotation)
	Extended time.Duration
	// Patterns that get the extended timeout (e.g. "/claims-insights")
	ExtendedPatterns []string
	// Patterns that skip timeout entirely (e.g. "/mcp" for streamable sessions)
	SkipPatterns []string
}

// Timeout returns a middleware that applies configurable timeouts to
// requests. Paths matching SkipPatterns get no timeout, paths matching
// ExtendedPatterns get the Extended timeout, everything else gets Default.
func Timeout(cfg TimeoutConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, pattern := range cfg.SkipPatterns {
				if strings.Contains(r.URL.Path, pattern) {
					next.ServeHTTP(w, r)
					return
				}
			}

			timeout := cfg.Default
			for _, pattern := range cfg.ExtendedPatterns {
				if strings.Contains(r.URL.Path, pattern) {
					timeout = cfg.Extended
					break
				}
			}

			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			done := make(chan struct{})
			panicChan := make(chan *panicWithStack, 1)

			go func() {
				defer func() {
					if p := recover(); p != nil {
						// Capture the stack at the point of panic; the
						// recovering goroutine's own stack is useless here.
						panicChan <- &panicWithStack{
							value: p,
							stack: debug.Stack(),
						}
					}
				}()
				next.ServeHTTP(w, r.WithContext(ctx))
				close(done)
			}()

			select {
			case <-done:
				return
			case p := <-panicChan:
				// Re-panic so Recoverer sees the original value and stack.
				panic(fmt.Sprintf("%v\n\nOriginal stack trace:\n%s", p.value, p.stack))
			case <-ctx.Done():
				if ctx.Err() == context.DeadlineExceeded {
					w.WriteHeader(http.StatusGatewayTimeout)
					return
				}
			}
		})
	}
}

// ExtendWriteDeadline is middleware that pushes out the HTTP write deadline
// for paths in the extended timeout class. Claims insights can legitimately
// run for minutes, past the server's default WriteTimeout.
func ExtendWriteDeadline(patterns []string, deadline time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, pattern := range patterns {
				if strings.Contains(r.URL.Path, pattern) {
					rc := http.NewResponseController(w)
					// Extra 30s covers serializing the response after the
					// handler finishes. Servers that don't support
					// per-request deadlines just time out early.
					_ = rc.SetWriteDeadline(time.Now().Add(deadline + 30*time.Second))
					break
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
