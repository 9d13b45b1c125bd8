package chat

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/placehive/placehive-backend/pkg/logger"
)

// Reconciler consumes the realtime push feed for one session and merges
// events into the store idempotently. The subscription is an explicitly
// owned resource: it is reacquired whenever the user id or the owned-place
// set changes, and the stale one is always released first so no event is
// delivered twice through overlapping subscriptions.
type Reconciler struct {
	backend Backend
	feed    Feed
	store   *Store
	log     zerolog.Logger

	// onChange fires after every store mutation so derived views can be
	// recomputed and pushed to the UI.
	onChange func()

	mu     sync.Mutex
	sub    Subscription
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewReconciler(backend Backend, feed Feed, store *Store, onChange func()) *Reconciler {
	if onChange == nil {
		onChange = func() {}
	}
	return &Reconciler{
		backend:  backend,
		feed:     feed,
		store:    store,
		log:      logger.With("chat.reconciler"),
		onChange: onChange,
	}
}

// Resubscribe releases any live subscription and acquires a fresh one for
// the given identity and owned places.
func (r *Reconciler) Resubscribe(ctx context.Context, userID string, ownedPlaces []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.releaseLocked()

	sub, err := r.feed.Subscribe(ctx, userID, ownedPlaces)
	if err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	r.sub = sub
	r.cancel = cancel

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case <-loopCtx.Done():
				return
			case ev, ok := <-sub.Events():
				if !ok {
					return
				}
				r.handle(loopCtx, ev)
			}
		}
	}()
	return nil
}

// Close releases the subscription and waits for the event loop to drain.
func (r *Reconciler) Close() {
	r.mu.Lock()
	r.releaseLocked()
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Reconciler) releaseLocked() {
	if r.sub != nil {
		_ = r.sub.Close()
		r.sub = nil
	}
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}

func (r *Reconciler) handle(ctx context.Context, ev PushEvent) {
	if err := ev.Validate(); err != nil {
		r.log.Warn().Err(err).Msg("Dropping invalid push event")
		return
	}

	switch ev.Type {
	case EventInsert:
		r.handleInsert(ctx, ev)
	case EventUpdate:
		// Whitelisted scalars only; relational fields already in the store
		// are preserved.
		if r.store.Patch(ev.Row.ID, PatchFields{
			IsRead:   ev.Row.IsRead,
			Content:  ev.Row.Content,
			ImageURL: ev.Row.ImageURL,
			AudioURL: ev.Row.AudioURL,
		}) {
			r.onChange()
		}
	case EventDelete:
		if r.store.Remove(ev.Row.ID) {
			r.onChange()
		}
	}
}

// handleInsert fetches the full relational record for a pushed insert. The
// push payload is partial, so the fetch guarantees the stored record carries
// sender profile, place summary and product joins no matter which of the
// three feeds delivered it.
func (r *Reconciler) handleInsert(ctx context.Context, ev PushEvent) {
	if _, exists := r.store.Get(ev.Row.ID); exists {
		// Realtime echo of an optimistic append. Nothing to do.
		return
	}

	full, err := r.backend.FetchMessage(ctx, ev.Row.ID)
	if err != nil {
		r.log.Error().Err(err).Str("message_id", ev.Row.ID).Msg("Full-record fetch for pushed insert failed")
		return
	}
	if err := ResolveReply(ctx, r.backend, full); err != nil {
		r.log.Warn().Err(err).Str("message_id", ev.Row.ID).Msg("Reply resolution failed for pushed insert")
	}

	if r.store.Append(*full) {
		r.onChange()
	}
}
