package chat

import (
	"context"
	"errors"
	"io"

	"github.com/placehive/placehive-backend/internal/models"
)

// Failure taxonomy for the messaging core. Upload, insert and permission
// failures are always surfaced to the user; read-mark failures are logged
// only (see Session.MarkConversationRead).
var (
	ErrNothingToSend  = errors.New("chat: message needs text, an image, audio or a product")
	ErrNoConversation = errors.New("chat: no conversation selected")
	ErrUploadFailed   = errors.New("chat: attachment upload failed")
	ErrInsertFailed   = errors.New("chat: message insert failed")
	ErrNotPermitted   = errors.New("chat: sending on behalf of this place is not permitted")
	ErrMicPermission  = errors.New("chat: microphone permission denied")
	ErrNotRecording   = errors.New("chat: no recording in progress")
)

// Backend is the relational collaborator (managed store) consumed by the
// messaging core. Implementations must return messages with their sender
// profile, place summary and product joins resolved.
type Backend interface {
	// ListMessages returns every message the user is entitled to see:
	// sender = user, recipient = user, or place within ownedPlaces.
	// Ordered by created_at ascending.
	ListMessages(ctx context.Context, userID string, ownedPlaces []string) ([]models.Message, error)

	// FetchMessage returns the full relational shape for a single id.
	FetchMessage(ctx context.Context, id string) (*models.Message, error)

	// FetchMessages is the batch form used by the reply linker.
	FetchMessages(ctx context.Context, ids []string) ([]models.Message, error)

	// InsertMessage persists m and returns the inserted row with joins.
	InsertMessage(ctx context.Context, m *models.Message) (*models.Message, error)

	// MarkRead flips is_read on the given ids in one batched update.
	MarkRead(ctx context.Context, ids []string) error

	// OwnedPlaceIDs returns the ids of places the user owns.
	OwnedPlaceIDs(ctx context.Context, userID string) ([]string, error)

	// Roles resolves the user's role for every place they own, staff or
	// follow, keyed by place id.
	Roles(ctx context.Context, userID string) (map[string]models.PlaceRole, error)
}

// Uploader is the attachment upload collaborator. A failed upload aborts the
// send before any message row is created.
type Uploader interface {
	UploadImage(ctx context.Context, filename, contentType string, r io.Reader) (string, error)
	UploadAudio(ctx context.Context, blob []byte, mimeType string) (string, error)
}

// Feed delivers the realtime push channel. A subscription covers the three
// logical predicates (sender = user, recipient = user, place owned) for one
// user and must be closed before a replacement is acquired.
type Feed interface {
	Subscribe(ctx context.Context, userID string, ownedPlaces []string) (Subscription, error)
}

// Subscription is an owned resource; Events is closed after Close returns.
type Subscription interface {
	Events() <-chan PushEvent
	Close() error
}

// Microphone is the platform media collaborator for voice messages.
type Microphone interface {
	// Request acquires a recording stream, or fails with a permission error.
	Request(ctx context.Context) (MediaStream, error)
}

// MediaStream is a live microphone capture. ReleaseTracks must be called on
// every exit path; a leaked microphone handle is a user-visible privacy bug.
type MediaStream interface {
	// Chunks yields encoded audio chunks. The channel is closed after Stop.
	Chunks() <-chan []byte

	// Stop ends the capture and flushes remaining chunks.
	Stop() error

	// ReleaseTracks stops the underlying media tracks. Idempotent.
	ReleaseTracks()
}
