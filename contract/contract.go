package contract

import (
	"context"
	"reflect"

	"roomcast/domain"
	"roomcast/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Conn is the transport handle exclusively owned by the Session that wraps
// it. Send serializes the event for the peer behind the connection; a
// returned error means the transport is broken and the session must go.
type Conn interface {
	Send(e event.DomainEvent) error
	Close() error
}

// Recorder is the fire-and-forget boundary to message history. Record must
// never block and never surface failure to the broadcast path.
type Recorder interface {
	Record(m domain.Message)
}
