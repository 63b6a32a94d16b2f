package telemetry

import (
	"context"
)

// EventEmitter emits auth events (e.g. to Kafka or OTel Logs). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *AuthEvent) error
}

// MultiEmitter fans one event out to several emitters. Every emitter sees the
// event even when an earlier one fails; the first error is returned.
type MultiEmitter []EventEmitter

func (m MultiEmitter) Emit(ctx context.Context, event *AuthEvent) error {
	var first error
	for _, e := range m {
		if e == nil {
			continue
		}
		if err := e.Emit(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Combine returns a single emitter over the non-nil emitters: nil when none
// remain, the emitter itself when exactly one does, a MultiEmitter otherwise.
func Combine(emitters ...EventEmitter) EventEmitter {
	live := make(MultiEmitter, 0, len(emitters))
	for _, e := range emitters {
		if e != nil {
			live = append(live, e)
		}
	}
	switch len(live) {
	case 0:
		return nil
	case 1:
		return live[0]
	default:
		return live
	}
}
