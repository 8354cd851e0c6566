package event

import (
	"sync"

	"github.com/tss-calculator/firmware-tools/pkg/configurator/application/model"
	"github.com/tss-calculator/firmware-tools/pkg/configurator/application/service"
)

type Sink interface {
	Publish(event model.Event)
}

// Bus fans every emitted event out to its sinks in registration order.
type Bus interface {
	service.EventEmitter
	Register(sink Sink)
}

func NewBus(sinks ...Sink) Bus {
	return &bus{sinks: sinks}
}

type bus struct {
	mu    sync.Mutex
	sinks []Sink
}

func (b *bus) Register(sink Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, sink)
}

// Emit publishes under the bus lock, so every sink sees events in the same order.
func (b *bus) Emit(event model.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sink := range b.sinks {
		sink.Publish(event)
	}
}
