package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/accordsai/checkoutlane/pkg/httpx"
	"github.com/accordsai/checkoutlane/services/checkout/internal/protocol"
	"github.com/accordsai/checkoutlane/services/checkout/internal/session"
)

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeErr(w, r, errors.Wrap(err, "read body"))
		return
	}
	in := session.CreateInput{
		IdempotencyKey: r.Header.Get(IdempotencyKeyHeader),
		RawBody:        raw,
	}
	if err := decode(raw, &in.Request, true); err != nil {
		s.writeErr(w, r, err)
		return
	}
	res, err := s.Sessions.Create(r.Context(), channelFrom(r.Context()), in)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, res.Session)
}

func (s *Server) retrieve(w http.ResponseWriter, r *http.Request) {
	res, err := s.Sessions.Retrieve(r.Context(), channelFrom(r.Context()), chi.URLParam(r, "id"))
	s.respond(w, r, res, err)
}

func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	var in protocol.UpdateRequest
	if err := decodeBody(r, &in); err != nil {
		s.writeErr(w, r, err)
		return
	}
	res, err := s.Sessions.Update(r.Context(), channelFrom(r.Context()), chi.URLParam(r, "id"), in)
	s.respond(w, r, res, err)
}

func (s *Server) complete(w http.ResponseWriter, r *http.Request) {
	var in session.CompleteInput
	if err := decodeBody(r, &in); err != nil {
		s.writeErr(w, r, err)
		return
	}
	res, err := s.Sessions.Complete(r.Context(), channelFrom(r.Context()), chi.URLParam(r, "id"), in)
	s.respond(w, r, res, err)
}

func (s *Server) cancel(w http.ResponseWriter, r *http.Request) {
	res, err := s.Sessions.Cancel(r.Context(), channelFrom(r.Context()), chi.URLParam(r, "id"))
	s.respond(w, r, res, err)
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, res *session.Result, err error) {
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res.Session)
}

// writeErr renders protocol errors as they are. Anything else is logged and
// hidden behind internal_error.
func (s *Server) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	var perr *protocol.Error
	if !errors.As(err, &perr) {
		s.logger().WithError(err).WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"request_id": middleware.GetReqID(r.Context()),
		}).Error("request failed")
		perr = protocol.Internal()
	}
	httpx.WriteError(w, perr.Status, perr.Type, perr.Code, perr.Message, perr.Param)
}

func decodeBody(r *http.Request, v any) error {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return errors.Wrap(err, "read body")
	}
	return decode(raw, v, false)
}

// decode treats an empty body as {} unless required is set.
func decode(raw []byte, v any, required bool) error {
	if len(raw) == 0 {
		if required {
			return protocol.InvalidRequest("invalid_json", "Request body is required", "")
		}
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return protocol.InvalidRequest("invalid_json", "Request body is not valid JSON", "")
	}
	return nil
}
