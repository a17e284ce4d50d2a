package queue

import (
	"context"
	"encoding/json"
	"reflect"
)

type (
	// Handler executes tasks submitted under its name. A non-nil result is stored
	// on the completed task record.
	Handler interface {
		Name() string
		Handle(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)
	}

	TaskHandlerFunc[T any]      func(ctx context.Context, payload T) error
	ResultHandlerFunc[T, R any] func(ctx context.Context, payload T) (R, error)
	PeriodicTaskHandlerFunc     func(ctx context.Context) error
)

// NewTaskHandler names the handler after its payload type.
func NewTaskHandler[T any](handler TaskHandlerFunc[T]) Handler {
	var payload T
	return &taskHandler[T]{
		name:    qualifiedStructName(payload),
		handler: handler,
	}
}

// NewNamedHandler registers a typed handler under an explicit name.
func NewNamedHandler[T any](name string, handler TaskHandlerFunc[T]) Handler {
	return &taskHandler[T]{
		name:    name,
		handler: handler,
	}
}

// NewResultHandler wraps a handler whose return value is kept on the task record.
func NewResultHandler[T, R any](name string, handler ResultHandlerFunc[T, R]) Handler {
	return &resultHandler[T, R]{
		name:    name,
		handler: handler,
	}
}

// NewPeriodicTaskHandler wraps a payload-less handler, typically driven by the Scheduler.
func NewPeriodicTaskHandler(name string, handler PeriodicTaskHandlerFunc) Handler {
	return &periodicTaskHandler{
		name:    name,
		handler: handler,
	}
}

type taskHandler[T any] struct {
	name    string
	handler TaskHandlerFunc[T]
}

func (h *taskHandler[T]) Name() string {
	return h.name
}

func (h *taskHandler[T]) Handle(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	t, err := decodePayload[T](payload)
	if err != nil {
		return nil, err
	}
	return nil, h.handler(ctx, t)
}

type resultHandler[T, R any] struct {
	name    string
	handler ResultHandlerFunc[T, R]
}

func (h *resultHandler[T, R]) Name() string {
	return h.name
}

func (h *resultHandler[T, R]) Handle(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	t, err := decodePayload[T](payload)
	if err != nil {
		return nil, err
	}
	res, err := h.handler(ctx, t)
	if err != nil {
		return nil, err
	}
	return json.Marshal(res)
}

type periodicTaskHandler struct {
	name    string
	handler PeriodicTaskHandlerFunc
}

func (h *periodicTaskHandler) Name() string {
	return h.name
}

func (h *periodicTaskHandler) Handle(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
	return nil, h.handler(ctx)
}

func decodePayload[T any](payload json.RawMessage) (T, error) {
	var t T
	if len(payload) == 0 {
		return t, nil
	}
	err := json.Unmarshal(payload, &t)
	return t, err
}

// qualifiedStructName returns "pkg.Type" for v, dereferencing pointer types.
func qualifiedStructName(v any) string {
	t := reflect.TypeOf(v)
	if t == nil {
		return "<nil>"
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.String()
}
