package chat

import (
	"context"

	"github.com/placehive/placehive-backend/internal/models"
	"github.com/placehive/placehive-backend/pkg/utils"
)

const replyPreviewLen = 80

// ResolveReplies resolves reply targets for an initial page load: one batch
// fetch for all distinct replyTo ids, then each message gets a denormalized
// preview attached. The referenced messages are never mutated.
func ResolveReplies(ctx context.Context, backend Backend, messages []models.Message) error {
	ids := make([]string, 0)
	seen := make(map[string]bool)
	for i := range messages {
		if messages[i].ReplyToID != nil && !seen[*messages[i].ReplyToID] {
			seen[*messages[i].ReplyToID] = true
			ids = append(ids, *messages[i].ReplyToID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	targets, err := backend.FetchMessages(ctx, ids)
	if err != nil {
		return err
	}
	byID := make(map[string]*models.Message, len(targets))
	for i := range targets {
		byID[targets[i].ID] = &targets[i]
	}

	for i := range messages {
		if messages[i].ReplyToID == nil {
			continue
		}
		if target, ok := byID[*messages[i].ReplyToID]; ok {
			messages[i].ReplyTo = replyPreview(target)
		}
	}
	return nil
}

// ResolveReply resolves a single message's reply target, used for messages
// arriving individually through the realtime reconciler.
func ResolveReply(ctx context.Context, backend Backend, m *models.Message) error {
	if m.ReplyToID == nil {
		return nil
	}
	target, err := backend.FetchMessage(ctx, *m.ReplyToID)
	if err != nil {
		return err
	}
	m.ReplyTo = replyPreview(target)
	return nil
}

// replyPreview builds the read-only quoted view of a reply target: sender
// identity plus a truncated body. Single-level: the preview never carries a
// nested reply of its own.
func replyPreview(target *models.Message) *models.Message {
	preview := *target
	preview.ReplyTo = nil
	preview.ReplyToID = nil
	if preview.Content != nil {
		truncated := utils.TruncateString(*preview.Content, replyPreviewLen)
		preview.Content = &truncated
	}
	return &preview
}

// PreviewLabel is the one-line display label for a message: its truncated
// text, or an attachment-type placeholder.
func PreviewLabel(m *models.Message) string {
	switch {
	case m.Content != nil && *m.Content != "":
		return utils.TruncateString(*m.Content, replyPreviewLen)
	case m.ImageURL != nil && *m.ImageURL != "":
		return "image"
	case m.AudioURL != nil && *m.AudioURL != "":
		return "voice message"
	case m.ProductID != nil && *m.ProductID != "":
		return "product"
	}
	return ""
}
