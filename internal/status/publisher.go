package status

import (
	"github.com/dgnsrekt/capturewatch/internal/capture"
)

// Source is the read side of the capture registry.
type Source interface {
	State(id capture.ContextID) (*capture.CaptureState, error)
	Selected() (capture.ContextID, bool)
}

// Publisher turns registry notifications into broker events. It re-reads
// the registry on every notification rather than trusting a payload.
type Publisher struct {
	src    Source
	broker *Broker
}

func NewPublisher(src Source, broker *Broker) *Publisher {
	return &Publisher{src: src, broker: broker}
}

// NotifyStatusChanged implements capture.StatusNotifier.
func (p *Publisher) NotifyStatusChanged(id capture.ContextID) {
	st, err := p.src.State(id)
	if err != nil {
		v := BuildView(id, nil, false)
		v.Closed = capture.IsNoActiveContext(err)
		p.broker.Publish(Event{ContextID: id, View: v})
		return
	}
	sel, _ := p.src.Selected()
	p.broker.Publish(Event{ContextID: id, View: BuildView(id, st, sel == id)})
}
