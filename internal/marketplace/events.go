package marketplace

import (
	"context"

	"github.com/nftbay/marketplace/internal/domain/market"
	"github.com/nftbay/marketplace/pkg/logger"
)

// Emitter receives the notifications the engine publishes after a successful
// operation. Emitters must not fail the operation; delivery is best effort.
type Emitter interface {
	Emit(ctx context.Context, event market.Event)
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(ctx context.Context, event market.Event)

func (f EmitterFunc) Emit(ctx context.Context, event market.Event) { f(ctx, event) }

// MultiEmitter fans one event out to several emitters in order.
type MultiEmitter []Emitter

func (m MultiEmitter) Emit(ctx context.Context, event market.Event) {
	for _, e := range m {
		e.Emit(ctx, event)
	}
}

// NewLogEmitter returns an emitter that writes each event to the log.
func NewLogEmitter(log *logger.Logger) Emitter {
	if log == nil {
		log = logger.NewDefault("market-events")
	}
	return EmitterFunc(func(_ context.Context, event market.Event) {
		log.WithField("event", event).Infof("%s %s", event.Type, event.Asset)
	})
}
