package chat

import "context"

// Consume hands every message on bus to r until ctx is cancelled. It is the
// only reader of the bus. Messages pushed after cancellation stay queued.
func Consume(ctx context.Context, bus *Bus, r Renderer) {
	for {
		m, err := bus.Take(ctx)
		if err != nil {
			return
		}
		r.Render(m)
	}
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(Message)

func (f RendererFunc) Render(m Message) { f(m) }
