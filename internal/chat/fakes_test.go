package chat

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/placehive/placehive-backend/internal/models"
	"github.com/placehive/placehive-backend/pkg/utils"
)

// --- fake backend ---

type fakeBackend struct {
	mu       sync.Mutex
	users    map[string]models.User
	places   map[string]models.Place
	products map[string]models.Product
	messages map[string]*models.Message
	seats    map[string]map[string]models.PlaceRole

	insertErr   error
	markReadErr error

	markReadCalls  [][]string
	fetchCalls     int
	batchCalls     int
	blankIDInserts int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		users:    make(map[string]models.User),
		places:   make(map[string]models.Place),
		products: make(map[string]models.Product),
		messages: make(map[string]*models.Message),
		seats:    make(map[string]map[string]models.PlaceRole),
	}
}

func (b *fakeBackend) addEmployee(userID, placeID, employeeID string, canMessage bool) {
	if b.seats[userID] == nil {
		b.seats[userID] = make(map[string]models.PlaceRole)
	}
	b.seats[userID][placeID] = models.PlaceRole{
		Kind:       models.PlaceRoleEmployee,
		EmployeeID: employeeID,
		CanMessage: canMessage,
	}
}

func (b *fakeBackend) addUser(id, name string) {
	b.users[id] = models.User{ID: id, Name: name, Username: id, Image: "https://cdn.test/avatar/" + id}
}

func (b *fakeBackend) addPlace(id, name, ownerID string) {
	b.places[id] = models.Place{ID: id, Name: name, OwnerID: ownerID, Logo: "https://cdn.test/logo/" + id}
}

func (b *fakeBackend) addMessage(m models.Message) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	cp := m
	b.messages[m.ID] = &cp
}

// decorate fills the relational joins the way the production backend's
// Preloads would.
func (b *fakeBackend) decorate(m models.Message) models.Message {
	m.Sender = b.users[m.SenderID]
	if m.RecipientID != nil {
		if u, ok := b.users[*m.RecipientID]; ok {
			cp := u
			m.Recipient = &cp
		}
	}
	m.Place = b.places[m.PlaceID]
	if m.ProductID != nil {
		if p, ok := b.products[*m.ProductID]; ok {
			cp := p
			m.Product = &cp
		}
	}
	return m
}

func (b *fakeBackend) ListMessages(ctx context.Context, userID string, ownedPlaces []string) ([]models.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	owned := make(map[string]bool)
	for _, id := range ownedPlaces {
		owned[id] = true
	}
	var out []models.Message
	for _, m := range b.messages {
		visible := m.SenderID == userID || owned[m.PlaceID] ||
			(m.RecipientID != nil && *m.RecipientID == userID)
		if visible {
			out = append(out, b.decorate(*m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (b *fakeBackend) FetchMessage(ctx context.Context, id string) (*models.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fetchCalls++
	m, ok := b.messages[id]
	if !ok {
		return nil, fmt.Errorf("message %s not found", id)
	}
	full := b.decorate(*m)
	return &full, nil
}

func (b *fakeBackend) FetchMessages(ctx context.Context, ids []string) ([]models.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.batchCalls++
	var out []models.Message
	for _, id := range ids {
		if m, ok := b.messages[id]; ok {
			out = append(out, b.decorate(*m))
		}
	}
	return out, nil
}

func (b *fakeBackend) InsertMessage(ctx context.Context, m *models.Message) (*models.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.insertErr != nil {
		return nil, b.insertErr
	}
	cp := *m
	if cp.ID == "" {
		// Mirrors the BeforeCreate hook on the real table.
		b.blankIDInserts++
		cp.ID = utils.GenerateID()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	b.messages[cp.ID] = &cp
	full := b.decorate(cp)
	return &full, nil
}

func (b *fakeBackend) MarkRead(ctx context.Context, ids []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.markReadCalls = append(b.markReadCalls, ids)
	if b.markReadErr != nil {
		return b.markReadErr
	}
	for _, id := range ids {
		if m, ok := b.messages[id]; ok {
			m.IsRead = true
		}
	}
	return nil
}

func (b *fakeBackend) OwnedPlaceIDs(ctx context.Context, userID string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var ids []string
	for _, p := range b.places {
		if p.OwnerID == userID {
			ids = append(ids, p.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (b *fakeBackend) Roles(ctx context.Context, userID string) (map[string]models.PlaceRole, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	roles := make(map[string]models.PlaceRole)
	for _, p := range b.places {
		if p.OwnerID == userID {
			roles[p.ID] = models.PlaceRole{Kind: models.PlaceRoleOwner}
		} else if seat, ok := b.seats[userID][p.ID]; ok {
			roles[p.ID] = seat
		} else {
			roles[p.ID] = models.PlaceRole{Kind: models.PlaceRoleFollower}
		}
	}
	return roles, nil
}

// --- fake feed ---

type fakeFeed struct {
	mu   sync.Mutex
	subs []*fakeSubscription
}

func (f *fakeFeed) Subscribe(ctx context.Context, userID string, ownedPlaces []string) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub := &fakeSubscription{ch: make(chan PushEvent, 16)}
	f.subs = append(f.subs, sub)
	return sub, nil
}

func (f *fakeFeed) current() *fakeSubscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.subs) == 0 {
		return nil
	}
	return f.subs[len(f.subs)-1]
}

func (f *fakeFeed) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.subs {
		if !s.isClosed() {
			n++
		}
	}
	return n
}

type fakeSubscription struct {
	mu     sync.Mutex
	ch     chan PushEvent
	closed bool
}

func (s *fakeSubscription) Events() <-chan PushEvent { return s.ch }

func (s *fakeSubscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	return nil
}

func (s *fakeSubscription) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSubscription) push(ev PushEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.ch <- ev
	}
}

// --- fake uploader ---

type fakeUploader struct {
	mu          sync.Mutex
	failImages  bool
	failAudio   bool
	imageCalls  int
	audioCalls  int
	lastAudioIn []byte
}

func (u *fakeUploader) UploadImage(ctx context.Context, filename, contentType string, r io.Reader) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.imageCalls++
	if u.failImages {
		return "", fmt.Errorf("storage rejected upload")
	}
	return "https://cdn.test/chat/" + filename, nil
}

func (u *fakeUploader) UploadAudio(ctx context.Context, blob []byte, mimeType string) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.audioCalls++
	u.lastAudioIn = blob
	if u.failAudio {
		return "", fmt.Errorf("storage rejected upload")
	}
	return "https://cdn.test/chat/voice.webm", nil
}

// --- fake microphone ---

type fakeStream struct {
	mu       sync.Mutex
	chunks   chan []byte
	stopped  bool
	released bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{chunks: make(chan []byte, 16)}
}

func (s *fakeStream) feed(chunk []byte) { s.chunks <- chunk }

func (s *fakeStream) Chunks() <-chan []byte { return s.chunks }

func (s *fakeStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped {
		s.stopped = true
		close(s.chunks)
	}
	return nil
}

func (s *fakeStream) ReleaseTracks() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = true
}

func (s *fakeStream) isReleased() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

type fakeMic struct {
	mu      sync.Mutex
	denied  bool
	streams []*fakeStream
}

func (m *fakeMic) Request(ctx context.Context) (MediaStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.denied {
		return nil, fmt.Errorf("permission denied by user")
	}
	stream := newFakeStream()
	m.streams = append(m.streams, stream)
	return stream, nil
}

func strPtr(s string) *string { return &s }
