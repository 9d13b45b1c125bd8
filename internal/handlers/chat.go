package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/placehive/placehive-backend/internal/chat"
	"github.com/placehive/placehive-backend/internal/database"
	"github.com/placehive/placehive-backend/pkg/logger"
)

// ChatManager is the process-wide session manager, set during startup.
var ChatManager *chat.Manager

func session(c *gin.Context) (*chat.Session, bool) {
	userID := c.MustGet("userId").(string)
	sess, err := ChatManager.Acquire(c.Request.Context(), userID)
	if err != nil {
		logger.Error().Err(err).Str("user_id", userID).Msg("Failed to open chat session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load messages"})
		return nil, false
	}
	return sess, true
}

// GetConversations returns the derived conversation summaries for the
// authenticated user, most recent first.
func GetConversations(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": sess.Conversations()})
}

// OpenConversation selects a (place, partner) bucket, marks its unread
// messages as read and returns the thread.
func OpenConversation(c *gin.Context) {
	placeID := c.Param("placeId")
	partnerID := c.Param("partnerId")
	if placeID == "" || partnerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "placeId and partnerId are required"})
		return
	}

	sess, ok := session(c)
	if !ok {
		return
	}
	sess.SelectConversation(c.Request.Context(), partnerID, placeID)
	c.JSON(http.StatusOK, gin.H{"messages": sess.ConversationMessages()})
}

type sendMessageRequest struct {
	Content   string  `json:"content"`
	ProductID *string `json:"productId"`
	ReplyToID *string `json:"replyToId"`
}

// SendMessage stages the request body as compose state and runs the send
// pipeline. Multipart requests may carry an "image" file part.
func SendMessage(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}

	// Per-user ceiling on top of the per-IP limiter
	if database.Redis != nil {
		allowed, err := database.CheckRateLimit("chat:"+sess.UserID(), 30, time.Minute)
		if err == nil && !allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many messages, slow down"})
			return
		}
	}

	var req sendMessageRequest
	var image *chat.ImageAttachment
	contentType := c.ContentType()
	if contentType == "multipart/form-data" {
		req.Content = c.PostForm("content")
		if v := c.PostForm("productId"); v != "" {
			req.ProductID = &v
		}
		if v := c.PostForm("replyToId"); v != "" {
			req.ReplyToID = &v
		}
		if file, header, err := c.Request.FormFile("image"); err == nil {
			data, readErr := io.ReadAll(file)
			file.Close()
			if readErr != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Could not read image"})
				return
			}
			image = &chat.ImageAttachment{
				Filename:    header.Filename,
				ContentType: header.Header.Get("Content-Type"),
				Data:        data,
			}
		}
	} else {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
	}

	// Validate before anything lands in compose, so a rejected request
	// cannot leave stale state riding along with the next send.
	if req.ReplyToID != nil {
		if err := sess.SetReplyTarget(*req.ReplyToID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid reply target"})
			return
		}
	}
	sess.SetDraft(req.Content)
	if req.ProductID != nil {
		sess.AttachProduct(*req.ProductID)
	}
	if image != nil {
		sess.AttachImage(image)
	}

	msg, err := sess.SendMessage(c.Request.Context())
	if err != nil {
		respondSendError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// MarkConversationRead flips the bucket's unread messages without returning
// the thread; clients call it when a visible conversation updates.
func MarkConversationRead(c *gin.Context) {
	placeID := c.Param("placeId")
	partnerID := c.Param("partnerId")
	if placeID == "" || partnerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "placeId and partnerId are required"})
		return
	}

	sess, ok := session(c)
	if !ok {
		return
	}
	sess.MarkConversationRead(c.Request.Context(), partnerID, placeID)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ClearReplyTarget drops a staged quoted reply.
func ClearReplyTarget(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	sess.ClearReplyTarget()
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// StartRecording begins a voice capture for the authenticated user.
func StartRecording(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	ctx := WithMicUser(c.Request.Context(), sess.UserID())
	if err := sess.StartRecording(ctx); err != nil {
		if errors.Is(err, chat.ErrMicPermission) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Microphone access denied"})
			return
		}
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": sess.Recorder().State()})
}

type stopRecordingRequest struct {
	MimeType string `json:"mimeType"`
}

// StopRecording finalizes the capture and sends the voice message into the
// currently selected conversation.
func StopRecording(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}

	var req stopRecordingRequest
	_ = c.ShouldBindJSON(&req)
	if req.MimeType == "" {
		req.MimeType = "audio/webm"
	}

	msg, err := sess.StopRecordingAndSend(c.Request.Context(), req.MimeType)
	if err != nil {
		if errors.Is(err, chat.ErrNotRecording) {
			c.JSON(http.StatusConflict, gin.H{"error": "No recording in progress"})
			return
		}
		respondSendError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// CancelRecording discards an in-progress capture.
func CancelRecording(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	sess.CancelRecording()
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func respondSendError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chat.ErrNothingToSend):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message has no content"})
	case errors.Is(err, chat.ErrNoConversation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "No conversation selected"})
	case errors.Is(err, chat.ErrNotPermitted):
		c.JSON(http.StatusForbidden, gin.H{"error": "You cannot message for this place"})
	case errors.Is(err, chat.ErrUploadFailed):
		c.JSON(http.StatusBadGateway, gin.H{"error": "Attachment upload failed"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send message"})
	}
}
