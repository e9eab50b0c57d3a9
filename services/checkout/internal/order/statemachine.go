package order

import (
	"fmt"
)

type Graph string

const (
	GraphCheckout       Graph = "checkout"
	GraphPayment        Graph = "payment"
	GraphPaymentRequest Graph = "payment_request"
)

const (
	TransitionAddress        = "address"
	TransitionSelectShipping = "select_shipping"
	TransitionSelectPayment  = "select_payment"
	TransitionComplete       = "complete"

	TransitionCreate  = "create"
	TransitionProcess = "process"
	TransitionFail    = "fail"
)

// Stateful is anything a StateMachine graph can move.
type Stateful interface {
	StateIn(g Graph) string
	SetStateIn(g Graph, state string)
}

// StateMachine applies named transitions. Can reports whether Apply would
// succeed right now.
type StateMachine interface {
	Can(s Stateful, g Graph, transition string) bool
	Apply(s Stateful, g Graph, transition string) error
}

type edge struct {
	from []string
	to   string
}

// Workflow is a table driven StateMachine.
type Workflow struct {
	graphs map[Graph]map[string]edge
}

func NewWorkflow() *Workflow {
	return &Workflow{graphs: map[Graph]map[string]edge{
		GraphCheckout: {
			TransitionAddress:        {from: []string{CheckoutCart, CheckoutAddressed, CheckoutShippingSelected, CheckoutPaymentSelected}, to: CheckoutAddressed},
			TransitionSelectShipping: {from: []string{CheckoutAddressed, CheckoutShippingSelected, CheckoutPaymentSelected}, to: CheckoutShippingSelected},
			TransitionSelectPayment:  {from: []string{CheckoutShippingSelected, CheckoutPaymentSelected}, to: CheckoutPaymentSelected},
			TransitionComplete:       {from: []string{CheckoutPaymentSelected}, to: CheckoutCompleted},
		},
		GraphPayment: {
			TransitionCreate:   {from: []string{PaymentCart}, to: PaymentNew},
			TransitionProcess:  {from: []string{PaymentNew}, to: PaymentProcessing},
			TransitionComplete: {from: []string{PaymentNew, PaymentProcessing}, to: PaymentCompleted},
			TransitionFail:     {from: []string{PaymentNew, PaymentProcessing}, to: PaymentFailed},
		},
		GraphPaymentRequest: {
			TransitionProcess:  {from: []string{RequestNew}, to: RequestProcessing},
			TransitionComplete: {from: []string{RequestProcessing}, to: RequestCompleted},
			TransitionFail:     {from: []string{RequestNew, RequestProcessing}, to: RequestFailed},
		},
	}}
}

func (w *Workflow) Can(s Stateful, g Graph, transition string) bool {
	e, ok := w.graphs[g][transition]
	if !ok {
		return false
	}
	cur := s.StateIn(g)
	for _, f := range e.from {
		if f == cur {
			return true
		}
	}
	return false
}

func (w *Workflow) Apply(s Stateful, g Graph, transition string) error {
	if !w.Can(s, g, transition) {
		return fmt.Errorf("transition %q cannot be applied on %s graph from state %q", transition, g, s.StateIn(g))
	}
	s.SetStateIn(g, w.graphs[g][transition].to)
	if o, ok := s.(*Order); ok && g == GraphCheckout && transition == TransitionComplete {
		o.State = StateNew
		if o.PaymentState == PaymentStateCart {
			o.PaymentState = PaymentStateAwaitingPayment
		}
	}
	return nil
}

func (o *Order) StateIn(g Graph) string {
	if g == GraphCheckout {
		return o.CheckoutState
	}
	return ""
}

func (o *Order) SetStateIn(g Graph, state string) {
	if g == GraphCheckout {
		o.CheckoutState = state
	}
}

func (p *Payment) StateIn(g Graph) string {
	if g == GraphPayment {
		return p.State
	}
	return ""
}

func (p *Payment) SetStateIn(g Graph, state string) {
	if g == GraphPayment {
		p.State = state
	}
}

func (r *PaymentRequest) StateIn(g Graph) string {
	if g == GraphPaymentRequest {
		return r.State
	}
	return ""
}

func (r *PaymentRequest) SetStateIn(g Graph, state string) {
	if g == GraphPaymentRequest {
		r.State = state
	}
}
