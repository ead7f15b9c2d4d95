package workers

import (
	"context"
	"fmt"
	"log/slog"

	"roomcast/domain"
	"roomcast/repositories"
)

// HistoryWorker decouples message persistence from the broadcast path.
// Record enqueues without blocking; the Run loop drains the buffer into
// the repository. Repository failures are logged here and never reach the
// room's serialization domain.
type HistoryWorker struct {
	repository repositories.IMessageRepository
	messages   chan domain.Message
	log        *slog.Logger
}

func NewHistoryWorker(repository repositories.IMessageRepository, bufferSize int, log *slog.Logger) *HistoryWorker {
	return &HistoryWorker{
		repository: repository,
		messages:   make(chan domain.Message, bufferSize),
		log:        log,
	}
}

// Record hands a message to the worker, fire-and-forget. When the buffer
// is full the message is dropped rather than stalling the caller; history
// has no delivery guarantee.
func (w *HistoryWorker) Record(m domain.Message) {
	select {
	case w.messages <- m:
	default:
		w.log.Warn("History buffer full, dropping message",
			"room", m.Room,
			"message_id", m.ID)
	}
}

func (w *HistoryWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping history worker")
			return nil
		case m, ok := <-w.messages:
			if !ok {
				return nil
			}
			if err := w.repository.StoreMessage(repositories.FromMessage(m)); err != nil {
				w.log.Error(fmt.Sprintf("Failed to persist message %s", m.ID),
					"room", m.Room,
					"error", err)
			}
		}
	}
}
