package collab

import (
	"context"

	"github.com/cwrk-planet/collab-service/internal/session"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/cwrk-planet/collab-service/internal/collab"

// eventUnknown: метка для всего, что не входящее событие из списка. Тип приходит от клиента,
// поэтому в атрибуты попадает только конечный набор значений.
const eventUnknown = "unknown"

var inboundEvents = map[string]struct{}{
	EventJoinDocument:  {},
	EventLeaveDocument: {},
	EventContentChange: {},
	EventCursorMove:    {},
	EventTypingStatus:  {},
	EventHeartbeat:     {},
	EventSyncRequest:   {},
}

func eventLabel(eventType string) string {
	if _, ok := inboundEvents[eventType]; ok {
		return eventType
	}
	return eventUnknown
}

type metrics struct {
	events    metric.Int64Counter
	rejected  metric.Int64Counter
	commits   metric.Int64Counter
	evictions metric.Int64Counter
}

func newMetrics(meter metric.Meter) *metrics {
	return &metrics{
		events:    counter(meter, "collab.events.received", "Inbound events by type"),
		rejected:  counter(meter, "collab.events.rejected", "Inbound events dropped by validation"),
		commits:   counter(meter, "collab.content.commits", "Content commits by result"),
		evictions: counter(meter, "collab.participants.evicted", "Participants evicted for inactivity"),
	}
}

func defaultMeter() metric.Meter {
	return otel.Meter(meterName)
}

func counter(meter metric.Meter, name, desc string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		return noop.Int64Counter{}
	}
	return c
}

// observeState публикует размер сессий как gauge: комнаты и подключённые соединения.
func observeState(meter metric.Meter, state *session.State) error {
	rooms, err := meter.Int64ObservableGauge("collab.rooms.active",
		metric.WithDescription("Documents with at least one participant"))
	if err != nil {
		return err
	}
	conns, err := meter.Int64ObservableGauge("collab.connections.joined",
		metric.WithDescription("Connections attached to a document"))
	if err != nil {
		return err
	}
	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		st := state.Stats()
		o.ObserveInt64(rooms, int64(st.Rooms))
		o.ObserveInt64(conns, int64(st.Connections))
		return nil
	}, rooms, conns)
	return err
}

func (m *metrics) event(ctx context.Context, eventType string) {
	m.events.Add(ctx, 1, metric.WithAttributes(attribute.String("event", eventLabel(eventType))))
}

func (m *metrics) reject(ctx context.Context, eventType string) {
	m.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("event", eventLabel(eventType))))
}

func (m *metrics) commit(ctx context.Context, result string) {
	m.commits.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *metrics) evicted(ctx context.Context, n int) {
	if n > 0 {
		m.evictions.Add(ctx, int64(n))
	}
}
