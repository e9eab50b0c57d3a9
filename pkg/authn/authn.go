// Package authn guards inbound protocol requests: API version, content type,
// bearer token and the optional request signature.
package authn

import (
	"bytes"
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/accordsai/checkoutlane/pkg/httpx"
	"github.com/accordsai/checkoutlane/pkg/webhooks"
)

const (
	APIVersionHeader    = "API-Version"
	AuthorizationHeader = "Authorization"

	CodeMissingAPIVersion     = "missing_api_version"
	CodeUnsupportedAPIVersion = "unsupported_api_version"
	CodeInvalidContentType    = "invalid_content_type"
	CodeRequestTooLarge       = "request_too_large"
	CodeUnauthorized          = "unauthorized"
	CodeSignatureInvalid      = "signature_validation_failed"
)

var ErrUnauthorized = errors.New("unauthorized")

// Failure is a rejected request. Message is safe to return to the caller;
// Reason is for logs only.
type Failure struct {
	Status  int
	Code    string
	Message string
	Reason  string
}

func (f *Failure) Error() string {
	if f.Reason != "" {
		return f.Code + ": " + f.Reason
	}
	return f.Code + ": " + f.Message
}

func (f *Failure) Unwrap() error {
	if f.Status == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// Credentials are what one caller must present. An empty BearerToken
// rejects every request; an empty SignatureSecret rejects signed ones.
type Credentials struct {
	BearerToken     string
	SignatureSecret string
}

// CredentialsFunc resolves the credentials that apply to r. The zero value
// means nothing is configured and every request is rejected.
type CredentialsFunc func(r *http.Request) Credentials

type Authenticator struct {
	APIVersion  string
	Credentials CredentialsFunc
	Verifier    webhooks.Verifier
	// Reject writes the failure response. Nil writes a plain
	// invalid_request error body.
	Reject func(w http.ResponseWriter, r *http.Request, f *Failure)
	Log    logrus.FieldLogger
	Now    func() time.Time
}

func New(apiVersion string, creds CredentialsFunc, log logrus.FieldLogger) *Authenticator {
	return &Authenticator{
		APIVersion:  apiVersion,
		Credentials: creds,
		Verifier:    webhooks.NewRequestVerifier(),
		Log:         log,
		Now:         time.Now,
	}
}

// Middleware buffers the body once, authenticates, and hands the handler a
// fresh reader over the same bytes.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := httpx.ReadBody(w, r)
		if err != nil {
			a.reject(w, r, &Failure{
				Status:  http.StatusRequestEntityTooLarge,
				Code:    CodeRequestTooLarge,
				Message: "Request body could not be read",
				Reason:  err.Error(),
			})
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		var creds Credentials
		if a.Credentials != nil {
			creds = a.Credentials(r)
		}
		if f := a.Authenticate(r, body, creds); f != nil {
			a.reject(w, r, f)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Authenticate runs the checks in order and stops at the first failure.
func (a *Authenticator) Authenticate(r *http.Request, body []byte, creds Credentials) *Failure {
	version := strings.TrimSpace(r.Header.Get(APIVersionHeader))
	switch {
	case version == "":
		return &Failure{Status: http.StatusBadRequest, Code: CodeMissingAPIVersion, Message: "API-Version header is required"}
	case version != a.APIVersion:
		return &Failure{
			Status:  http.StatusBadRequest,
			Code:    CodeUnsupportedAPIVersion,
			Message: "Unsupported API-Version " + version + ", expected " + a.APIVersion,
		}
	}

	if hasBodyMethod(r.Method) && len(body) > 0 {
		ct := strings.ToLower(strings.TrimSpace(r.Header.Get("Content-Type")))
		if !strings.HasPrefix(ct, "application/json") {
			return &Failure{Status: http.StatusBadRequest, Code: CodeInvalidContentType, Message: "Content-Type must be application/json"}
		}
	}

	token, ok := parseBearerToken(r.Header.Get(AuthorizationHeader))
	switch {
	case !ok:
		return unauthorized("missing_bearer_token")
	case creds.BearerToken == "":
		return unauthorized("bearer_token_not_configured")
	case subtle.ConstantTimeCompare([]byte(token), []byte(creds.BearerToken)) != 1:
		return unauthorized("bearer_token_mismatch")
	}

	if r.Method == http.MethodGet || strings.TrimSpace(r.Header.Get(webhooks.SignatureHeader)) == "" {
		return nil
	}
	res, err := a.verifier().Verify(r.Header, body, a.now(), creds.SignatureSecret)
	if err != nil {
		return signatureInvalid("signature_secret_not_configured")
	}
	if !res.Valid {
		return signatureInvalid(res.Reason)
	}
	return nil
}

func (a *Authenticator) reject(w http.ResponseWriter, r *http.Request, f *Failure) {
	a.logger().WithFields(logrus.Fields{
		"method":   r.Method,
		"endpoint": r.URL.Path,
		"code":     f.Code,
		"reason":   f.Reason,
	}).Warn("request rejected")
	if a.Reject != nil {
		a.Reject(w, r, f)
		return
	}
	httpx.WriteError(w, f.Status, "invalid_request", f.Code, f.Message, "")
}

func (a *Authenticator) verifier() webhooks.Verifier {
	if a.Verifier == nil {
		return webhooks.NewRequestVerifier()
	}
	return a.Verifier
}

func (a *Authenticator) now() time.Time {
	if a.Now == nil {
		return time.Now().UTC()
	}
	return a.Now().UTC()
}

func (a *Authenticator) logger() logrus.FieldLogger {
	if a.Log == nil {
		return logrus.StandardLogger()
	}
	return a.Log
}

func unauthorized(reason string) *Failure {
	return &Failure{Status: http.StatusUnauthorized, Code: CodeUnauthorized, Message: "Invalid or missing bearer token", Reason: reason}
}

func signatureInvalid(reason string) *Failure {
	return &Failure{Status: http.StatusUnauthorized, Code: CodeSignatureInvalid, Message: "Request signature is invalid", Reason: reason}
}

func hasBodyMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

func parseBearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", false
	}
	return token, true
}
