package order

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// New builds an empty cart order. It is not stored until inserted together
// with its checkout session.
func New(channelCode, currencyCode, localeCode string) (*Order, error) {
	token, err := randomToken()
	if err != nil {
		return nil, err
	}
	return &Order{
		ID:            uuid.NewString(),
		TokenValue:    token,
		ChannelCode:   channelCode,
		CurrencyCode:  currencyCode,
		LocaleCode:    localeCode,
		State:         StateCart,
		CheckoutState: CheckoutCart,
		PaymentState:  PaymentStateCart,
		Items:         []*Item{},
		Shipments:     []*Shipment{},
	}, nil
}

// randomToken is a 64 character URL safe token.
func randomToken() (string, error) {
	b := make([]byte, 48)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "generate order token")
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func clone(o *Order) (*Order, error) {
	b, err := json.Marshal(o)
	if err != nil {
		return nil, err
	}
	var out Order
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	out.Version = o.Version
	return &out, nil
}

// MemoryStore keeps orders in process. Callers get copies, so a Save is the
// only way to publish changes.
type MemoryStore struct {
	mu     sync.Mutex
	orders map[string]*Order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{orders: map[string]*Order{}}
}

func (s *MemoryStore) Insert(_ context.Context, o *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return ErrConflict
	}
	o.Version = 1
	stored, err := clone(o)
	if err != nil {
		o.Version = 0
		return err
	}
	s.orders[o.ID] = stored
	return nil
}

func (s *MemoryStore) Find(_ context.Context, id string) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(o)
}

func (s *MemoryStore) Save(_ context.Context, o *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.orders[o.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != o.Version {
		return ErrConflict
	}
	o.Version++
	stored, err := clone(o)
	if err != nil {
		o.Version--
		return err
	}
	s.orders[o.ID] = stored
	return nil
}
