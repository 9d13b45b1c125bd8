package chat

import (
	"sort"
	"time"

	"github.com/placehive/placehive-backend/internal/models"
)

// ConversationSummary is a derived view over the message set. It has no
// independent lifecycle; it is recomputed from scratch on every store
// mutation.
type ConversationSummary struct {
	PlaceID       string         `json:"placeId"`
	PartnerID     string         `json:"partnerId"`
	PartnerName   string         `json:"partnerName"`
	PartnerAvatar string         `json:"partnerAvatar"`
	LastMessage   models.Message `json:"lastMessage"`
	LastMessageAt time.Time      `json:"lastMessageTime"`
	UnreadCount   int            `json:"unreadCount"`
}

// PartnerFor resolves the conversation partner of a message as seen by
// userID. When the user acts for the place (owner or messaging employee) the
// partner is the client participant; otherwise the place itself is the
// partner, so every employee reply lands in the same per-place bucket. The
// place-view bucket uses the place id as partner id.
func PartnerFor(m *models.Message, userID string, role models.PlaceRole) string {
	if role.ActsForPlace() {
		if sentForPlace(m) {
			if m.RecipientID != nil {
				return *m.RecipientID
			}
			return ""
		}
		return m.SenderID
	}
	return m.PlaceID
}

// sentForPlace reports whether the message was written on behalf of the
// place (by its owner or one of its employees).
func sentForPlace(m *models.Message) bool {
	if m.EmployeeID != nil {
		return true
	}
	return m.SenderID == m.Place.OwnerID
}

// DeriveConversations projects the flat message set into per-(place,
// partner) summaries ordered by recency. Pure: no caching, no mutation of
// the input.
func DeriveConversations(messages []models.Message, userID string, roles map[string]models.PlaceRole) []ConversationSummary {
	type key struct{ placeID, partnerID string }
	buckets := make(map[key]*ConversationSummary)

	for i := range messages {
		m := &messages[i]
		role := roles[m.PlaceID]
		partnerID := PartnerFor(m, userID, role)
		if partnerID == "" {
			continue
		}

		k := key{m.PlaceID, partnerID}
		summary, ok := buckets[k]
		if !ok {
			summary = &ConversationSummary{PlaceID: m.PlaceID, PartnerID: partnerID}
			buckets[k] = summary
		}

		if m.CreatedAt.After(summary.LastMessageAt) {
			summary.LastMessage = *m
			summary.LastMessageAt = m.CreatedAt
		}
		if !m.IsRead && m.SenderID != userID {
			summary.UnreadCount++
		}

		fillPartnerIdentity(summary, m, role)
	}

	out := make([]ConversationSummary, 0, len(buckets))
	for _, s := range buckets {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessageAt.After(out[j].LastMessageAt)
	})
	return out
}

func fillPartnerIdentity(summary *ConversationSummary, m *models.Message, role models.PlaceRole) {
	if summary.PartnerName != "" {
		return
	}
	if !role.ActsForPlace() {
		// Client view: the place is the partner.
		summary.PartnerName = m.Place.Name
		summary.PartnerAvatar = m.Place.Logo
		return
	}
	// Owner view: the partner is a user; their profile rides on whichever
	// side of the message they occupy.
	if m.SenderID == summary.PartnerID {
		summary.PartnerName = m.Sender.DisplayName()
		summary.PartnerAvatar = m.Sender.Image
	} else if m.Recipient != nil && m.RecipientID != nil && *m.RecipientID == summary.PartnerID {
		summary.PartnerName = m.Recipient.DisplayName()
		summary.PartnerAvatar = m.Recipient.Image
	}
}

// InConversation reports whether the message belongs to the (place, partner)
// bucket as seen by userID.
func InConversation(m *models.Message, userID, partnerID, placeID string, role models.PlaceRole) bool {
	if m.PlaceID != placeID {
		return false
	}
	return PartnerFor(m, userID, role) == partnerID
}
