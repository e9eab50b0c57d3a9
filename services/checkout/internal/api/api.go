// Package api exposes the checkout session operations over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/accordsai/checkoutlane/pkg/authn"
	"github.com/accordsai/checkoutlane/pkg/webhooks"
	"github.com/accordsai/checkoutlane/services/checkout/internal/config"
	"github.com/accordsai/checkoutlane/services/checkout/internal/protocol"
	"github.com/accordsai/checkoutlane/services/checkout/internal/session"
)

const (
	RequestIDHeader      = "Request-Id"
	IdempotencyKeyHeader = "Idempotency-Key"
)

type Sessions interface {
	Create(ctx context.Context, ch *config.Channel, in session.CreateInput) (*session.Result, error)
	Update(ctx context.Context, ch *config.Channel, id string, in protocol.UpdateRequest) (*session.Result, error)
	Complete(ctx context.Context, ch *config.Channel, id string, in session.CompleteInput) (*session.Result, error)
	Cancel(ctx context.Context, ch *config.Channel, id string) (*session.Result, error)
	Retrieve(ctx context.Context, ch *config.Channel, id string) (*session.Result, error)
}

type ChannelResolver interface {
	ForHost(host string) *config.Channel
}

type Server struct {
	Sessions Sessions
	Channels ChannelResolver
	Log      logrus.FieldLogger

	RateLimitRPS   float64
	RateLimitBurst int

	// TrustProxy takes the client address from X-Forwarded-For and X-Real-IP.
	// Only enable it behind a proxy that overwrites those headers.
	TrustProxy bool

	// SignatureTolerance bounds the Timestamp skew of signed requests; zero
	// keeps the default window.
	SignatureTolerance time.Duration
}

func (s *Server) Router() http.Handler {
	auth := authn.New(protocol.APIVersion, credentials, s.Log)
	auth.Reject = s.rejectAuth
	if s.SignatureTolerance > 0 {
		auth.Verifier = webhooks.NewRequestVerifierWithTolerance(s.SignatureTolerance)
	}
	limiter := newIPLimiter(s.RateLimitRPS, s.RateLimitBurst)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if s.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	r.Route("/checkout_sessions", func(api chi.Router) {
		api.Use(echoHeaders)
		api.Use(limiter.Middleware)
		api.Use(s.withChannel)
		api.Use(auth.Middleware)

		api.Post("/", s.create)
		api.Get("/{id}", s.retrieve)
		api.Post("/{id}", s.update)
		api.Post("/{id}/complete", s.complete)
		api.Post("/{id}/cancel", s.cancel)
	})
	return r
}

type channelKey struct{}

func (s *Server) withChannel(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ch := s.Channels.ForHost(r.Host)
		if ch == nil {
			s.writeErr(w, r, protocol.NotFound("No channel serves this host"))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), channelKey{}, ch)))
	})
}

// rejectAuth renders authentication failures through the protocol error
// taxonomy.
func (s *Server) rejectAuth(w http.ResponseWriter, r *http.Request, f *authn.Failure) {
	var perr *protocol.Error
	switch f.Code {
	case authn.CodeUnauthorized:
		perr = protocol.Unauthorized(f.Message)
	case authn.CodeSignatureInvalid:
		perr = protocol.SignatureInvalid(f.Message)
	default:
		perr = &protocol.Error{Status: f.Status, Type: protocol.TypeInvalidRequest, Code: f.Code, Message: f.Message}
	}
	s.writeErr(w, r, perr)
}

func channelFrom(ctx context.Context) *config.Channel {
	ch, _ := ctx.Value(channelKey{}).(*config.Channel)
	return ch
}

func credentials(r *http.Request) authn.Credentials {
	ch := channelFrom(r.Context())
	if ch == nil {
		return authn.Credentials{}
	}
	return authn.Credentials{BearerToken: ch.Gateway.BearerToken, SignatureSecret: ch.Gateway.SignatureSecret}
}

// echoHeaders copies Request-Id and Idempotency-Key onto the response,
// error responses included.
func echoHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, h := range []string{RequestIDHeader, IdempotencyKeyHeader} {
			if v := r.Header.Get(h); v != "" {
				w.Header().Set(h, v)
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger().WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		}).Info("request")
	})
}

func (s *Server) logger() logrus.FieldLogger {
	if s.Log == nil {
		return logrus.StandardLogger()
	}
	return s.Log
}
