package stream

import (
	"context"
	"time"

	json "github.com/goccy/go-json"

	"github.com/rickgao/dxtrade-go/model"
)

// parseEvent converts one typed frame into a model event. The platform
// sends PascalCase envelopes; the lowercase aliases cover the generic
// event spellings some gateways use. ok is false for types the stream
// does not dispatch.
func parseEvent(conn string, receivedAt time.Time, typ string, data []byte) (model.Event, bool) {
	ev := model.Event{Connection: conn, ReceivedAt: receivedAt}
	switch typ {
	case msgTypeMarketData, string(model.EventTypePrice), "quote":
		var body struct {
			Data quoteWire `json:"data"`
		}
		if err := json.Unmarshal(data, &body); err != nil {
			return ev, false
		}
		q := body.Data.toModel()
		ev.Type = model.EventTypePrice
		ev.Quote = &q
		return ev, true

	case msgTypeOrderUpdate:
		var body struct {
			Order orderWire `json:"order"`
		}
		if err := json.Unmarshal(data, &body); err != nil {
			return ev, false
		}
		o := body.Order.toModel()
		ev.Type = model.EventTypeOrder
		ev.Order = &o
		return ev, true

	case string(model.EventTypeOrder):
		var body struct {
			Data orderWire `json:"data"`
		}
		if err := json.Unmarshal(data, &body); err != nil {
			return ev, false
		}
		o := body.Data.toModel()
		ev.Type = model.EventTypeOrder
		ev.Order = &o
		return ev, true

	case msgTypePositionUpdate:
		var body struct {
			Position positionWire `json:"position"`
		}
		if err := json.Unmarshal(data, &body); err != nil {
			return ev, false
		}
		p := body.Position.toModel()
		ev.Type = model.EventTypePosition
		ev.Position = &p
		return ev, true

	case string(model.EventTypePosition):
		var body struct {
			Data positionWire `json:"data"`
		}
		if err := json.Unmarshal(data, &body); err != nil {
			return ev, false
		}
		p := body.Data.toModel()
		ev.Type = model.EventTypePosition
		ev.Position = &p
		return ev, true

	case msgTypeAccountPortfolios, string(model.EventTypeAccount):
		var body struct {
			Data portfolioWire `json:"data"`
		}
		if err := json.Unmarshal(data, &body); err != nil {
			return ev, false
		}
		snap := body.Data.toModel()
		ev.Type = model.EventTypeAccount
		ev.Portfolio = &snap
		return ev, true
	}
	return ev, false
}

// eventChanBuffer sizes the per-iterator channel. A consumer that falls
// this far behind starts losing events.
const eventChanBuffer = 256

// Events returns a channel carrying every dispatched event until ctx is
// canceled, as an alternative to per-type handlers. Both paths share the
// same dispatch, so an event seen by a handler is also seen by every open
// channel. The channel is closed on cancellation.
func (m *Manager) Events(ctx context.Context) <-chan model.Event {
	ch := make(chan model.Event, eventChanBuffer)
	m.handlersMu.Lock()
	m.nextID++
	id := m.nextID
	m.sinks[id] = ch
	m.handlersMu.Unlock()

	go func() {
		<-ctx.Done()
		m.handlersMu.Lock()
		delete(m.sinks, id)
		m.handlersMu.Unlock()
		close(ch)
	}()
	return ch
}
