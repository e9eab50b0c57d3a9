// Package session runs the checkout session operations: create, update,
// complete, cancel and retrieve.
package session

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/accordsai/checkoutlane/services/checkout/internal/config"
	"github.com/accordsai/checkoutlane/services/checkout/internal/idempotency"
	"github.com/accordsai/checkoutlane/services/checkout/internal/keylock"
	"github.com/accordsai/checkoutlane/services/checkout/internal/mapper"
	"github.com/accordsai/checkoutlane/services/checkout/internal/notify"
	"github.com/accordsai/checkoutlane/services/checkout/internal/order"
	"github.com/accordsai/checkoutlane/services/checkout/internal/payment"
	"github.com/accordsai/checkoutlane/services/checkout/internal/protocol"
	"github.com/accordsai/checkoutlane/services/checkout/internal/status"
	"github.com/accordsai/checkoutlane/services/checkout/internal/store"
)

type Capturer interface {
	Capture(ctx context.Context, creds payment.Credentials, p *order.Payment, req *order.PaymentRequest) error
}

type Events interface {
	OrderCompleted(ctx context.Context, ev notify.OrderCompleted)
}

type Service struct {
	Sessions   store.Repository
	Orders     order.Store
	Mutator    order.Mutator
	Workflow   order.StateMachine
	Addresses  mapper.AddressDecoder
	Serializer mapper.Serializer
	Capturer   Capturer
	Events     Events
	Guard      *idempotency.Guard
	Log        logrus.FieldLogger
	Now        func() time.Time

	locks keylock.Mutex
	reads singleflight.Group
}

const retrieveTimeout = 10 * time.Second

type Result struct {
	Session  protocol.CheckoutSession
	Replayed bool
}

type CreateInput struct {
	Request        protocol.CreateRequest
	IdempotencyKey string
	RawBody        []byte
}

func (s *Service) Create(ctx context.Context, ch *config.Channel, in CreateInput) (*Result, error) {
	if len(in.Request.Items) == 0 {
		return nil, protocol.MissingParameter("At least one item is required", "$.items")
	}

	var created *order.Order
	sess, replayed, err := s.Guard.Do(ctx, in.IdempotencyKey, in.RawBody, func(hash string) (*store.Session, error) {
		o, sess, err := s.createSession(ctx, ch, in, hash)
		created = o
		return sess, err
	})
	if err != nil {
		return nil, s.mapErr("create checkout session", err)
	}
	if replayed {
		s.Log.WithFields(logrus.Fields{"checkout_session_id": sess.ProtocolID, "idempotency_key": in.IdempotencyKey}).
			Info("replaying checkout session create")
		o, err := s.Orders.Find(ctx, sess.OrderRef)
		if err != nil {
			return nil, s.mapErr("load order", err)
		}
		return &Result{Session: s.render(ctx, sess, o), Replayed: true}, nil
	}
	s.Log.WithFields(logrus.Fields{"checkout_session_id": sess.ProtocolID, "status": sess.Status}).Info("checkout session created")
	return &Result{Session: s.render(ctx, sess, created)}, nil
}

func (s *Service) createSession(ctx context.Context, ch *config.Channel, in CreateInput, hash string) (*order.Order, *store.Session, error) {
	// The order is built in memory and only written together with its session.
	o, err := order.New(ch.Code, ch.Currency, ch.Locale)
	if err != nil {
		return nil, nil, errors.Wrap(err, "create order")
	}
	req := in.Request
	if err := s.applyItems(ctx, o, req.Items); err != nil {
		return nil, nil, err
	}
	if err := s.applyFulfillmentAddress(ctx, o, req.FulfillmentAddress); err != nil {
		return nil, nil, err
	}
	if err := s.applyBuyer(ctx, o, req.Buyer); err != nil {
		return nil, nil, err
	}
	if err := s.Mutator.Process(ctx, o); err != nil {
		return nil, nil, errors.Wrap(err, "process order")
	}
	s.advanceCheckout(o)

	sess := &store.Session{
		ProtocolID:  s.newProtocolID(),
		OrderRef:    o.ID,
		ChannelCode: ch.Code,
		Status:      status.Resolve(o),
	}
	if in.IdempotencyKey != "" {
		sess.IdempotencyKey = in.IdempotencyKey
		sess.LastRequestHash = hash
	}
	if err := s.Sessions.Insert(ctx, sess, o); err != nil {
		return nil, nil, err
	}
	return o, sess, nil
}

func (s *Service) Update(ctx context.Context, ch *config.Channel, id string, in protocol.UpdateRequest) (*Result, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	sess, o, err := s.load(ctx, ch, id)
	if err != nil {
		return nil, err
	}
	if st := status.Effective(sess.Status, o); st.Terminal() {
		return nil, protocol.MethodNotAllowed(fmt.Sprintf("Cannot update session with status %q", st))
	}

	if in.Items != nil {
		if err := s.applyItems(ctx, o, in.Items); err != nil {
			return nil, err
		}
	}
	if err := s.applyFulfillmentAddress(ctx, o, in.FulfillmentAddress); err != nil {
		return nil, err
	}
	if err := s.applyBuyer(ctx, o, in.Buyer); err != nil {
		return nil, err
	}
	if err := s.Mutator.Process(ctx, o); err != nil {
		return nil, s.mapErr("process order", err)
	}

	if in.FulfillmentOptionID.Set {
		m := s.Serializer.Fulfillment.Method(ctx, o, in.FulfillmentOptionID.Value)
		if m == nil {
			return nil, protocol.InvalidParameter(
				fmt.Sprintf("Invalid fulfillment option %q", in.FulfillmentOptionID.Value), "$.fulfillment_option_id")
		}
		if err := s.Mutator.AssignShippingMethod(ctx, o, m.Code); err != nil {
			return nil, s.mapErr("assign shipping method", err)
		}
		if err := s.Mutator.Process(ctx, o); err != nil {
			return nil, s.mapErr("process order", err)
		}
	}
	s.advanceCheckout(o)

	if err := s.Orders.Save(ctx, o); err != nil {
		return nil, s.mapErr("save order", err)
	}
	sess.Status = status.Resolve(o)
	if err := s.Sessions.Update(ctx, sess); err != nil {
		return nil, s.mapErr("save checkout session", err)
	}
	s.Log.WithFields(logrus.Fields{"checkout_session_id": id, "status": sess.Status}).Info("checkout session updated")
	return &Result{Session: s.render(ctx, sess, o)}, nil
}

func (s *Service) Cancel(ctx context.Context, ch *config.Channel, id string) (*Result, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	sess, o, err := s.load(ctx, ch, id)
	if err != nil {
		return nil, err
	}
	if st := status.Effective(sess.Status, o); st.Terminal() {
		return nil, protocol.MethodNotAllowed(fmt.Sprintf("Cannot cancel session with status %q", st))
	}
	// The order keeps its own cart state; cancellation only pins the session.
	sess.Status = protocol.StatusCanceled
	if err := s.Sessions.Update(ctx, sess); err != nil {
		return nil, s.mapErr("save checkout session", err)
	}
	s.Log.WithField("checkout_session_id", id).Info("checkout session canceled")
	return &Result{Session: s.render(ctx, sess, o)}, nil
}

// Retrieve is read only. Concurrent reads of one session share a lookup
// that outlives any single caller; each caller still stops waiting when its
// own context ends.
func (s *Service) Retrieve(ctx context.Context, ch *config.Channel, id string) (*Result, error) {
	shared := s.reads.DoChan(ch.Code+"/"+id, func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), retrieveTimeout)
		defer cancel()
		sess, o, err := s.load(lctx, ch, id)
		if err != nil {
			return nil, err
		}
		return s.render(lctx, sess, o), nil
	})
	select {
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "retrieve checkout session")
	case r := <-shared:
		if r.Err != nil {
			return nil, r.Err
		}
		return &Result{Session: r.Val.(protocol.CheckoutSession)}, nil
	}
}

func (s *Service) load(ctx context.Context, ch *config.Channel, id string) (*store.Session, *order.Order, error) {
	sess, err := s.Sessions.FindByProtocolID(ctx, id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && sess.ChannelCode != ch.Code) {
		return nil, nil, protocol.NotFound(fmt.Sprintf("Checkout session %q not found", id))
	}
	if err != nil {
		return nil, nil, s.mapErr("load checkout session", err)
	}
	o, err := s.Orders.Find(ctx, sess.OrderRef)
	if err != nil {
		return nil, nil, s.mapErr("load order", err)
	}
	return sess, o, nil
}

func (s *Service) render(ctx context.Context, sess *store.Session, o *order.Order) protocol.CheckoutSession {
	return s.Serializer.Session(ctx, sess.ProtocolID, status.Effective(sess.Status, o), o)
}

func (s *Service) newProtocolID() string {
	id := uuid.New()
	return fmt.Sprintf("acp_sess_%d_%s", s.now().Unix(), hex.EncodeToString(id[:8]))
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// mapErr turns persistence failures into protocol errors. Anything it does
// not recognise is wrapped and surfaces as an internal error.
func (s *Service) mapErr(op string, err error) error {
	var perr *protocol.Error
	switch {
	case errors.As(err, &perr):
		return perr
	case errors.Is(err, store.ErrConflict), errors.Is(err, order.ErrConflict), errors.Is(err, store.ErrDuplicateIdempotencyKey):
		return protocol.ConcurrentModification()
	case errors.Is(err, store.ErrNotFound), errors.Is(err, order.ErrNotFound):
		return protocol.NotFound("Checkout session not found")
	}
	return errors.Wrap(err, op)
}
