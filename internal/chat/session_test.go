package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/placehive/placehive-backend/internal/models"
)

// ownerSession builds an open session for the cafe owner with one client
// conversation already on record.
func ownerSession(t *testing.T) (*Session, *fakeBackend, *fakeFeed, *fakeUploader) {
	t.Helper()
	backend := newFakeBackend()
	backend.addUser("owner", "Olive")
	backend.addUser("client", "Cleo")
	backend.addPlace("p1", "Corner Cafe", "owner")
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	backend.addMessage(models.Message{ID: "m1", SenderID: "client", PlaceID: "p1", Content: strPtr("do you have oat milk?"), CreatedAt: base})
	backend.addMessage(models.Message{ID: "m2", SenderID: "client", PlaceID: "p1", Content: strPtr("also, are you open sunday?"), CreatedAt: base.Add(time.Minute)})

	feed := &fakeFeed{}
	uploader := &fakeUploader{}
	sess := NewSession("owner", SessionDeps{Backend: backend, Feed: feed, Uploader: uploader, Mic: &fakeMic{}})
	require.NoError(t, sess.Open(context.Background()))
	t.Cleanup(sess.Close)
	return sess, backend, feed, uploader
}

func TestSendMessageAppendsAndClearsCompose(t *testing.T) {
	sess, backend, _, _ := ownerSession(t)
	sess.SelectConversation(context.Background(), "client", "p1")

	sess.SetDraft("  we do!  ")
	msg, err := sess.SendMessage(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "we do!", *msg.Content)
	assert.Equal(t, "owner", msg.SenderID)
	require.NotNil(t, msg.RecipientID)
	assert.Equal(t, "client", *msg.RecipientID)
	assert.NotNil(t, msg.ClientID)

	// Optimistically in the store, compose cleared.
	_, ok := sess.store.Get(msg.ID)
	assert.True(t, ok)
	assert.Equal(t, "", sess.Draft())

	// Persisted remotely too.
	_, err = backend.FetchMessage(context.Background(), msg.ID)
	assert.NoError(t, err)
}

func TestSendMessageRequiresBodyAndSelection(t *testing.T) {
	sess, _, _, _ := ownerSession(t)

	sess.SetDraft("hello")
	_, err := sess.SendMessage(context.Background())
	assert.ErrorIs(t, err, ErrNoConversation)

	sess.SelectConversation(context.Background(), "client", "p1")
	sess.SetDraft("   ")
	_, err = sess.SendMessage(context.Background())
	assert.ErrorIs(t, err, ErrNothingToSend)
}

func TestUploadFailureLeavesNoOrphanMessage(t *testing.T) {
	sess, _, _, uploader := ownerSession(t)
	uploader.failImages = true
	sess.SelectConversation(context.Background(), "client", "p1")

	sess.SetDraft("here's our menu")
	sess.AttachImage(&ImageAttachment{Filename: "menu.jpg", ContentType: "image/jpeg", Data: []byte("jpeg")})

	countBefore := sess.store.Len()
	_, err := sess.SendMessage(context.Background())
	assert.ErrorIs(t, err, ErrUploadFailed)

	// No partial message anywhere, compose untouched for retry.
	assert.Equal(t, countBefore, sess.store.Len())
	assert.Equal(t, "here's our menu", sess.Draft())
	sess.mu.Lock()
	assert.NotNil(t, sess.compose.image)
	sess.mu.Unlock()
}

func TestInsertFailurePreservesCompose(t *testing.T) {
	sess, backend, _, _ := ownerSession(t)
	backend.insertErr = assert.AnError
	sess.SelectConversation(context.Background(), "client", "p1")

	sess.SetDraft("this will bounce")
	countBefore := sess.store.Len()
	_, err := sess.SendMessage(context.Background())
	assert.ErrorIs(t, err, ErrInsertFailed)
	assert.Equal(t, countBefore, sess.store.Len())
	assert.Equal(t, "this will bounce", sess.Draft())
}

func TestSelectConversationMarksUnreadAsRead(t *testing.T) {
	sess, backend, _, _ := ownerSession(t)

	convs := sess.Conversations()
	require.Len(t, convs, 1)
	assert.Equal(t, 2, convs[0].UnreadCount)

	sess.SelectConversation(context.Background(), "client", "p1")

	// Optimistic: unread badge clears immediately.
	convs = sess.Conversations()
	require.Len(t, convs, 1)
	assert.Equal(t, 0, convs[0].UnreadCount)
	for _, m := range sess.ConversationMessages() {
		if m.SenderID == "client" {
			assert.True(t, m.IsRead)
		}
	}

	// One batched remote update for exactly the partner's unread ids.
	require.Len(t, backend.markReadCalls, 1)
	assert.ElementsMatch(t, []string{"m1", "m2"}, backend.markReadCalls[0])
}

func TestReadMarkFailureIsSwallowed(t *testing.T) {
	sess, backend, _, _ := ownerSession(t)
	backend.markReadErr = assert.AnError

	sess.SelectConversation(context.Background(), "client", "p1")

	// Best effort: the local state still flips and nothing is rolled back.
	convs := sess.Conversations()
	require.Len(t, convs, 1)
	assert.Equal(t, 0, convs[0].UnreadCount)
}

func TestConversationMessagesSortedAscending(t *testing.T) {
	sess, _, _, _ := ownerSession(t)
	sess.SelectConversation(context.Background(), "client", "p1")

	sess.SetDraft("reply")
	_, err := sess.SendMessage(context.Background())
	require.NoError(t, err)

	msgs := sess.ConversationMessages()
	require.Len(t, msgs, 3)
	for i := 1; i < len(msgs); i++ {
		assert.False(t, msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt))
	}
}

func TestReplyTargetResolvedOnSend(t *testing.T) {
	sess, _, _, _ := ownerSession(t)
	sess.SelectConversation(context.Background(), "client", "p1")

	require.NoError(t, sess.SetReplyTarget("m1"))
	sess.SetDraft("yes, oat and almond")
	msg, err := sess.SendMessage(context.Background())
	require.NoError(t, err)

	require.NotNil(t, msg.ReplyToID)
	assert.Equal(t, "m1", *msg.ReplyToID)
	require.NotNil(t, msg.ReplyTo)
	assert.Equal(t, "m1", msg.ReplyTo.ID)
	assert.Equal(t, "do you have oat milk?", *msg.ReplyTo.Content)

	// Reply target cleared with the rest of the compose state.
	assert.Nil(t, sess.ReplyTarget())
}

func TestBatchReplyResolutionOnOpen(t *testing.T) {
	backend := newFakeBackend()
	backend.addUser("client", "Cleo")
	backend.addPlace("p1", "Corner Cafe", "owner")
	backend.addMessage(models.Message{ID: "m1", SenderID: "client", PlaceID: "p1", Content: strPtr("first")})
	backend.addMessage(models.Message{ID: "m2", SenderID: "owner", RecipientID: strPtr("client"), PlaceID: "p1", ReplyToID: strPtr("m1"), Content: strPtr("re: first")})
	backend.addMessage(models.Message{ID: "m3", SenderID: "client", PlaceID: "p1", ReplyToID: strPtr("m1"), Content: strPtr("also re: first")})

	sess := NewSession("owner", SessionDeps{Backend: backend, Feed: &fakeFeed{}, Uploader: &fakeUploader{}, Mic: &fakeMic{}})
	require.NoError(t, sess.Open(context.Background()))
	defer sess.Close()

	// One batch fetch covers both replies to the same target.
	assert.Equal(t, 1, backend.batchCalls)

	m2, ok := sess.store.Get("m2")
	require.True(t, ok)
	require.NotNil(t, m2.ReplyTo)
	assert.Equal(t, "m1", m2.ReplyTo.ID)
}

func TestRealtimeEchoAfterOptimisticSendIsDeduped(t *testing.T) {
	sess, _, feed, _ := ownerSession(t)
	sess.SelectConversation(context.Background(), "client", "p1")

	sess.SetDraft("echo me")
	msg, err := sess.SendMessage(context.Background())
	require.NoError(t, err)
	countAfterSend := sess.store.Len()

	// The push channel now delivers the echo of our own insert.
	feed.current().push(PushEvent{Type: EventInsert, Table: "messages", Row: PushRow{ID: msg.ID, SenderID: "owner", PlaceID: "p1", ClientID: msg.ClientID}})

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, countAfterSend, sess.store.Len())
}

func TestVoiceMessageFlow(t *testing.T) {
	sess, _, _, uploader := ownerSession(t)
	sess.SelectConversation(context.Background(), "client", "p1")

	mic := &fakeMic{}
	sess.recorder = NewRecorder(mic)
	require.NoError(t, sess.StartRecording(context.Background()))

	stream := mic.streams[0]
	stream.feed([]byte("chunk1-"))
	stream.feed([]byte("chunk2"))

	msg, err := sess.StopRecordingAndSend(context.Background(), "audio/webm")
	require.NoError(t, err)

	require.NotNil(t, msg.AudioURL)
	assert.Nil(t, msg.Content)
	assert.Equal(t, []byte("chunk1-chunk2"), uploader.lastAudioIn)
	assert.Equal(t, RecSent, sess.recorder.State())
	assert.True(t, stream.isReleased())
}

func TestVoiceUploadFailureReleasesTracks(t *testing.T) {
	sess, _, _, uploader := ownerSession(t)
	uploader.failAudio = true
	sess.SelectConversation(context.Background(), "client", "p1")

	mic := &fakeMic{}
	sess.recorder = NewRecorder(mic)
	require.NoError(t, sess.StartRecording(context.Background()))
	mic.streams[0].feed([]byte("blob"))

	countBefore := sess.store.Len()
	_, err := sess.StopRecordingAndSend(context.Background(), "audio/webm")
	assert.ErrorIs(t, err, ErrUploadFailed)

	assert.Equal(t, RecFailed, sess.recorder.State())
	assert.True(t, mic.streams[0].isReleased())
	// No orphan message for the failed voice send.
	assert.Equal(t, countBefore, sess.store.Len())
}

func employeeSession(t *testing.T, canMessage bool) *Session {
	t.Helper()
	backend := newFakeBackend()
	backend.addUser("owner", "Olive")
	backend.addUser("client", "Cleo")
	backend.addUser("emp", "Enzo")
	backend.addPlace("p1", "Corner Cafe", "owner")
	backend.addEmployee("emp", "p1", "seat1", canMessage)

	sess := NewSession("emp", SessionDeps{Backend: backend, Feed: &fakeFeed{}, Uploader: &fakeUploader{}, Mic: &fakeMic{}})
	require.NoError(t, sess.Open(context.Background()))
	t.Cleanup(sess.Close)
	return sess
}

func TestEmployeeSendCarriesSeatID(t *testing.T) {
	sess := employeeSession(t, true)
	sess.SelectConversation(context.Background(), "client", "p1")

	sess.SetDraft("we restock friday")
	msg, err := sess.SendMessage(context.Background())
	require.NoError(t, err)

	require.NotNil(t, msg.EmployeeID)
	assert.Equal(t, "seat1", *msg.EmployeeID)
	require.NotNil(t, msg.RecipientID)
	assert.Equal(t, "client", *msg.RecipientID)
}

func TestEmployeeWithoutMessagingPermissionCannotSend(t *testing.T) {
	sess := employeeSession(t, false)
	sess.SelectConversation(context.Background(), "client", "p1")

	sess.SetDraft("should bounce")
	_, err := sess.SendMessage(context.Background())
	assert.ErrorIs(t, err, ErrNotPermitted)
	// Compose survives for when the seat regains the permission.
	assert.Equal(t, "should bounce", sess.Draft())
}

func TestVoiceSendFailurePreservesTypedDraft(t *testing.T) {
	sess, _, _, uploader := ownerSession(t)
	uploader.failAudio = true
	sess.SelectConversation(context.Background(), "client", "p1")
	sess.SetDraft("half-written reply I want to keep")

	mic := &fakeMic{}
	sess.recorder = NewRecorder(mic)
	require.NoError(t, sess.StartRecording(context.Background()))
	mic.streams[0].feed([]byte("blob"))

	_, err := sess.StopRecordingAndSend(context.Background(), "audio/webm")
	assert.ErrorIs(t, err, ErrUploadFailed)
	assert.Equal(t, "half-written reply I want to keep", sess.Draft())
}

func TestVoiceSendLeavesTypedDraftIntact(t *testing.T) {
	sess, _, _, _ := ownerSession(t)
	sess.SelectConversation(context.Background(), "client", "p1")
	sess.SetDraft("still composing this")

	mic := &fakeMic{}
	sess.recorder = NewRecorder(mic)
	require.NoError(t, sess.StartRecording(context.Background()))
	mic.streams[0].feed([]byte("blob"))

	msg, err := sess.StopRecordingAndSend(context.Background(), "audio/webm")
	require.NoError(t, err)
	assert.Nil(t, msg.Content)
	assert.Equal(t, "still composing this", sess.Draft())
}

func TestMessageIDAssignedOnInsert(t *testing.T) {
	sess, backend, _, _ := ownerSession(t)
	sess.SelectConversation(context.Background(), "client", "p1")

	sess.SetDraft("hello there")
	msg, err := sess.SendMessage(context.Background())
	require.NoError(t, err)

	// The row id comes from the insert, not from the sender.
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, 1, backend.blankIDInserts)
	require.NotNil(t, msg.ClientID)
	assert.NotEqual(t, msg.ID, *msg.ClientID)

	_, ok := sess.store.Get(msg.ID)
	assert.True(t, ok)
}
