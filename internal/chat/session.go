package chat

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/placehive/placehive-backend/internal/models"
	"github.com/placehive/placehive-backend/pkg/logger"
	"github.com/placehive/placehive-backend/pkg/utils"
)

// ImageAttachment is a staged image selected for the next send.
type ImageAttachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// AudioAttachment is a captured voice blob staged for the next send.
type AudioAttachment struct {
	MimeType string
	Data     []byte
}

// compose is the mutable draft state of the session. It survives failed
// sends untouched so the user can retry.
type compose struct {
	text      string
	image     *ImageAttachment
	audio     *AudioAttachment
	productID *string
	replyTo   *models.Message
}

func (c *compose) empty() bool {
	return strings.TrimSpace(c.text) == "" && c.image == nil && c.audio == nil && c.productID == nil
}

func (c *compose) clear() {
	*c = compose{}
}

// Session is the per-user messaging core: it owns the message store, the
// realtime reconciliation lifecycle, compose state, the current conversation
// selection and the voice recorder.
type Session struct {
	userID   string
	backend  Backend
	uploader Uploader
	log      zerolog.Logger

	store      *Store
	reconciler *Reconciler
	recorder   *Recorder

	// onChange fires after every store mutation; the transport layer uses it
	// to push freshly derived summaries to the UI.
	onChange func(userID string)

	mu          sync.Mutex
	roles       map[string]models.PlaceRole
	ownedPlaces []string
	compose     compose
	selPartner  string
	selPlace    string
}

// SessionDeps bundles the collaborators a session consumes.
type SessionDeps struct {
	Backend  Backend
	Feed     Feed
	Uploader Uploader
	Mic      Microphone

	// OnChange is invoked (with the session's user id) whenever derived
	// views may have changed. Optional.
	OnChange func(userID string)
}

func NewSession(userID string, deps SessionDeps) *Session {
	onChange := deps.OnChange
	if onChange == nil {
		onChange = func(string) {}
	}
	s := &Session{
		userID:   userID,
		backend:  deps.Backend,
		uploader: deps.Uploader,
		store:    NewStore(),
		recorder: NewRecorder(deps.Mic),
		onChange: onChange,
		log:      logger.With("chat.session").With().Str("user_id", userID).Logger(),
	}
	s.reconciler = NewReconciler(deps.Backend, deps.Feed, s.store, func() { onChange(userID) })
	return s
}

// Open loads the initial message page, resolves reply previews in batch and
// subscribes to the realtime feed.
func (s *Session) Open(ctx context.Context) error {
	roles, err := s.backend.Roles(ctx, s.userID)
	if err != nil {
		return fmt.Errorf("chat: resolving place roles: %w", err)
	}
	owned, err := s.backend.OwnedPlaceIDs(ctx, s.userID)
	if err != nil {
		return fmt.Errorf("chat: resolving owned places: %w", err)
	}

	messages, err := s.backend.ListMessages(ctx, s.userID, owned)
	if err != nil {
		return fmt.Errorf("chat: loading messages: %w", err)
	}
	if err := ResolveReplies(ctx, s.backend, messages); err != nil {
		s.log.Warn().Err(err).Msg("Batch reply resolution failed on initial load")
	}

	s.mu.Lock()
	s.roles = roles
	s.ownedPlaces = owned
	s.mu.Unlock()

	s.store.Merge(messages)

	if err := s.reconciler.Resubscribe(ctx, s.userID, owned); err != nil {
		return fmt.Errorf("chat: subscribing to realtime feed: %w", err)
	}
	s.onChange(s.userID)
	return nil
}

// RefreshIdentity reloads roles and owned places and reacquires the realtime
// subscription when the owned-place set changed.
func (s *Session) RefreshIdentity(ctx context.Context) error {
	roles, err := s.backend.Roles(ctx, s.userID)
	if err != nil {
		return err
	}
	owned, err := s.backend.OwnedPlaceIDs(ctx, s.userID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	changed := !sameStringSet(owned, s.ownedPlaces)
	s.roles = roles
	s.ownedPlaces = owned
	s.mu.Unlock()

	if changed {
		return s.reconciler.Resubscribe(ctx, s.userID, owned)
	}
	return nil
}

// Close releases the realtime subscription and any live recording.
func (s *Session) Close() {
	s.recorder.Cancel()
	s.reconciler.Close()
}

func (s *Session) UserID() string { return s.userID }

// Conversations derives the summary list from the current message set.
func (s *Session) Conversations() []ConversationSummary {
	s.mu.Lock()
	roles := s.roles
	s.mu.Unlock()
	return DeriveConversations(s.store.All(), s.userID, roles)
}

// ConversationMessages returns the currently selected conversation's
// messages sorted ascending by creation time.
func (s *Session) ConversationMessages() []models.Message {
	s.mu.Lock()
	partnerID, placeID := s.selPartner, s.selPlace
	role := s.roles[placeID]
	s.mu.Unlock()
	if partnerID == "" || placeID == "" {
		return nil
	}

	all := s.store.All()
	out := make([]models.Message, 0)
	for i := range all {
		if InConversation(&all[i], s.userID, partnerID, placeID, role) {
			out = append(out, all[i])
		}
	}
	return out
}

// SelectConversation opens the (place, partner) bucket and marks its unread
// messages as read.
func (s *Session) SelectConversation(ctx context.Context, partnerID, placeID string) {
	s.mu.Lock()
	s.selPartner = partnerID
	s.selPlace = placeID
	s.compose.replyTo = nil
	s.mu.Unlock()

	s.MarkConversationRead(ctx, partnerID, placeID)
}

// --- Compose state ---

func (s *Session) SetDraft(text string) {
	s.mu.Lock()
	s.compose.text = text
	s.mu.Unlock()
}

func (s *Session) Draft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.compose.text
}

func (s *Session) AttachImage(a *ImageAttachment) {
	s.mu.Lock()
	s.compose.image = a
	s.mu.Unlock()
}

func (s *Session) AttachProduct(productID string) {
	s.mu.Lock()
	if productID == "" {
		s.compose.productID = nil
	} else {
		s.compose.productID = &productID
	}
	s.mu.Unlock()
}

// SetReplyTarget stages a quoted reply. The target must live in the
// currently selected place.
func (s *Session) SetReplyTarget(messageID string) error {
	target, ok := s.store.Get(messageID)
	if !ok {
		return fmt.Errorf("chat: reply target %s not found", messageID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if target.PlaceID != s.selPlace {
		return fmt.Errorf("chat: reply target belongs to another place")
	}
	s.compose.replyTo = &target
	return nil
}

func (s *Session) ClearReplyTarget() {
	s.mu.Lock()
	s.compose.replyTo = nil
	s.mu.Unlock()
}

func (s *Session) ReplyTarget() *models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.compose.replyTo
}

// --- Send pipeline ---

// SendMessage runs the pipeline: validate → upload attachment (if any) →
// insert → optimistic append → clear compose. On any failure the compose
// state is preserved so the user can retry, and no partial message exists.
func (s *Session) SendMessage(ctx context.Context) (*models.Message, error) {
	s.mu.Lock()
	if s.selPlace == "" || s.selPartner == "" {
		s.mu.Unlock()
		return nil, ErrNoConversation
	}
	if s.compose.empty() {
		s.mu.Unlock()
		return nil, ErrNothingToSend
	}
	draft := s.compose
	partnerID, placeID := s.selPartner, s.selPlace
	role := s.roles[placeID]
	s.mu.Unlock()

	// The id is assigned on insert; ClientID is the correlation tag clients
	// use to recognize their own send in the realtime echo.
	msg := models.Message{
		SenderID: s.userID,
		PlaceID:  placeID,
	}
	clientID := utils.GenerateID()
	msg.ClientID = &clientID

	if text := strings.TrimSpace(draft.text); text != "" {
		msg.Content = &text
	}
	msg.ProductID = draft.productID
	if draft.replyTo != nil {
		msg.ReplyToID = &draft.replyTo.ID
	}
	// Owner-side sends address a concrete user; client sends address the
	// place and leave the recipient to be resolved from place ownership.
	if role.ActsForPlace() {
		partner := partnerID
		msg.RecipientID = &partner
	}
	if role.Kind == models.PlaceRoleEmployee {
		if !role.CanMessage {
			return nil, ErrNotPermitted
		}
		employeeID := role.EmployeeID
		msg.EmployeeID = &employeeID
	}

	// Attachment upload happens before any row exists, so a failed upload
	// can never leave a partial message behind.
	if draft.image != nil {
		url, err := s.uploader.UploadImage(ctx, draft.image.Filename, draft.image.ContentType, bytes.NewReader(draft.image.Data))
		if err != nil {
			s.log.Error().Err(err).Msg("Image upload failed; send aborted")
			return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
		}
		msg.ImageURL = &url
	}
	if draft.audio != nil {
		url, err := s.uploader.UploadAudio(ctx, draft.audio.Data, draft.audio.MimeType)
		if err != nil {
			s.log.Error().Err(err).Msg("Audio upload failed; send aborted")
			return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
		}
		msg.AudioURL = &url
	}

	inserted, err := s.backend.InsertMessage(ctx, &msg)
	if err != nil {
		s.log.Error().Err(err).Msg("Message insert failed; compose state preserved")
		return nil, fmt.Errorf("%w: %v", ErrInsertFailed, err)
	}
	if inserted.ReplyToID != nil {
		if err := ResolveReply(ctx, s.backend, inserted); err != nil {
			s.log.Warn().Err(err).Msg("Reply resolution failed for sent message")
		}
	}

	// Optimistic append: the realtime echo of this insert dedupes by id.
	s.store.Append(*inserted)

	s.mu.Lock()
	s.compose.clear()
	s.mu.Unlock()

	s.onChange(s.userID)
	return inserted, nil
}

// --- Read tracker ---

// MarkConversationRead flips the unread messages of a bucket optimistically
// in the store, then issues one batched remote update. The remote write is
// best effort: failures are logged, never retried and never rolled back.
func (s *Session) MarkConversationRead(ctx context.Context, partnerID, placeID string) {
	s.mu.Lock()
	role := s.roles[placeID]
	s.mu.Unlock()

	all := s.store.All()
	ids := make([]string, 0)
	for i := range all {
		m := &all[i]
		if m.IsRead || m.SenderID == s.userID {
			continue
		}
		if !InConversation(m, s.userID, partnerID, placeID, role) {
			continue
		}
		ids = append(ids, m.ID)
	}
	if len(ids) == 0 {
		return
	}

	read := true
	for _, id := range ids {
		s.store.Patch(id, PatchFields{IsRead: &read})
	}
	s.onChange(s.userID)

	if err := s.backend.MarkRead(ctx, ids); err != nil {
		s.log.Warn().Err(err).Int("count", len(ids)).Msg("Remote read-mark failed; keeping optimistic state")
	}
}

// --- Audio capture ---

func (s *Session) Recorder() *Recorder { return s.recorder }

// StartRecording acquires the microphone and begins a voice capture.
func (s *Session) StartRecording(ctx context.Context) error {
	return s.recorder.Start(ctx)
}

// StopRecordingAndSend finalizes the capture and pushes the blob through the
// send pipeline as an audio-only message.
func (s *Session) StopRecordingAndSend(ctx context.Context, mimeType string) (*models.Message, error) {
	blob, err := s.recorder.Stop()
	if err != nil {
		return nil, err
	}
	if len(blob) == 0 {
		s.recorder.markFailed()
		return nil, fmt.Errorf("chat: empty recording")
	}

	s.recorder.markUploading()
	// A voice message is audio-only: the typed draft is parked for the send
	// and put back afterwards, whether the send lands or not.
	s.mu.Lock()
	draftText := s.compose.text
	s.compose.audio = &AudioAttachment{MimeType: mimeType, Data: blob}
	s.compose.text = ""
	s.mu.Unlock()

	msg, err := s.SendMessage(ctx)
	s.mu.Lock()
	if err != nil {
		s.compose.audio = nil
	}
	s.compose.text = draftText
	s.mu.Unlock()
	if err != nil {
		s.recorder.markFailed()
		return nil, err
	}
	s.recorder.markSent()
	return msg, nil
}

func (s *Session) CancelRecording() {
	s.recorder.Cancel()
}

func sameStringSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, v := range a {
		set[v] = true
	}
	for _, v := range b {
		if !set[v] {
			return false
		}
	}
	return true
}
