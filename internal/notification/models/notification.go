package models

import (
	"slices"
	"strings"
	"time"

	id "flock/pkg/domain"
	dErrors "flock/pkg/domain-errors"
)

// Channel is the delivery medium a notification is meant for.
type Channel string

const (
	ChannelInApp    Channel = "in_app"
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
)

// AllChannels lists every supported channel in a stable order.
var AllChannels = []Channel{ChannelInApp, ChannelEmail, ChannelSMS, ChannelWhatsApp}

func (c Channel) IsValid() bool {
	switch c {
	case ChannelInApp, ChannelEmail, ChannelSMS, ChannelWhatsApp:
		return true
	}
	return false
}

// IsExternal reports whether the channel is delivered outside the app.
func (c Channel) IsExternal() bool {
	return c.IsValid() && c != ChannelInApp
}

func (c Channel) String() string {
	return string(c)
}

// Real-time event names emitted by the dispatcher.
const (
	EventNotification         = "notification"
	EventNotificationRead     = "notification_read"
	EventNotificationsAllRead = "notifications_mark_all_read"
)

// Notification is an addressed message. Targeting is exclusive: a user id
// wins over a member id, and neither means a church-wide broadcast.
type Notification struct {
	ID        id.NotificationID `json:"id"`
	ChurchID  id.ChurchID       `json:"church_id"`
	UserID    *id.UserID        `json:"user_id,omitempty"`
	MemberID  *id.MemberID      `json:"member_id,omitempty"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Channel   Channel           `json:"channel"`
	Metadata  map[string]any    `json:"metadata,omitempty"`
	Read      bool              `json:"read"`
	ReadAt    *time.Time        `json:"read_at,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// TargetKind names which room a notification is delivered to.
type TargetKind int

const (
	TargetChurch TargetKind = iota
	TargetUser
	TargetMember
)

func (n *Notification) Target() TargetKind {
	switch {
	case n.UserID != nil:
		return TargetUser
	case n.MemberID != nil:
		return TargetMember
	default:
		return TargetChurch
	}
}

// VisibleTo reports whether userID may see the notification: rows addressed
// to the user and church broadcasts.
func (n *Notification) VisibleTo(userID id.UserID) bool {
	if n.UserID != nil {
		return *n.UserID == userID
	}
	return n.MemberID == nil
}

// MarkRead flips the read flag. It reports false when already read.
func (n *Notification) MarkRead(now time.Time) bool {
	if n.Read {
		return false
	}
	n.Read = true
	n.ReadAt = &now
	return true
}

const (
	maxTitleLength   = 200
	maxMessageLength = 4000
)

// CreateRequest carries the inputs of a dispatcher create.
type CreateRequest struct {
	ChurchID id.ChurchID    `json:"-"`
	UserID   *id.UserID     `json:"user_id,omitempty"`
	MemberID *id.MemberID   `json:"member_id,omitempty"`
	Title    string         `json:"title"`
	Message  string         `json:"message"`
	Channel  Channel        `json:"channel"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (r *CreateRequest) Normalize() {
	r.Title = strings.TrimSpace(r.Title)
	r.Message = strings.TrimSpace(r.Message)
	r.Channel = Channel(strings.ToLower(strings.TrimSpace(string(r.Channel))))
	if r.Channel == "" {
		r.Channel = ChannelInApp
	}
	if r.UserID != nil && r.UserID.IsNil() {
		r.UserID = nil
	}
	if r.MemberID != nil && r.MemberID.IsNil() {
		r.MemberID = nil
	}
}

func (r *CreateRequest) Validate() error {
	if r.ChurchID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidPayload, "church_id is required")
	}
	if r.Title == "" {
		return dErrors.New(dErrors.CodeInvalidPayload, "title is required")
	}
	if r.Message == "" {
		return dErrors.New(dErrors.CodeInvalidPayload, "message is required")
	}
	if len(r.Title) > maxTitleLength {
		return dErrors.New(dErrors.CodeInvalidPayload, "title is too long")
	}
	if len(r.Message) > maxMessageLength {
		return dErrors.New(dErrors.CodeInvalidPayload, "message is too long")
	}
	if !r.Channel.IsValid() {
		return dErrors.New(dErrors.CodeInvalidPayload, "channel is invalid")
	}
	return nil
}

// NewNotification builds an unread notification from a validated request.
func NewNotification(req *CreateRequest, now time.Time) *Notification {
	metadata := req.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return &Notification{
		ChurchID:  req.ChurchID,
		UserID:    req.UserID,
		MemberID:  req.MemberID,
		Title:     req.Title,
		Message:   req.Message,
		Channel:   req.Channel,
		Metadata:  metadata,
		CreatedAt: now,
	}
}

// CreateOptions tune a single create call.
type CreateOptions struct {
	// Force skips rate limiting. Used for system-generated notifications.
	Force bool
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// ListFilter narrows a listing for one caller.
type ListFilter struct {
	Read     *bool
	Search   string
	Page     int
	Limit    int
	Channels []Channel
}

func (f *ListFilter) Normalize() {
	f.Search = strings.TrimSpace(f.Search)
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = DefaultPageLimit
	}
	if f.Limit > MaxPageLimit {
		f.Limit = MaxPageLimit
	}
}

func (f *ListFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// Matches applies read, search and channel filters; visibility is checked
// separately.
func (f *ListFilter) Matches(n *Notification) bool {
	if f.Read != nil && n.Read != *f.Read {
		return false
	}
	if len(f.Channels) > 0 && !slices.Contains(f.Channels, n.Channel) {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(n.Title), q) && !strings.Contains(strings.ToLower(n.Message), q) {
			return false
		}
	}
	return true
}

type ListResult struct {
	Total         int             `json:"total"`
	Notifications []*Notification `json:"notifications"`
}

// ReadEvent is the payload of EventNotificationRead.
type ReadEvent struct {
	ID id.NotificationID `json:"id"`
}

// AllReadEvent is the payload of EventNotificationsAllRead.
type AllReadEvent struct {
	IDs []id.NotificationID `json:"ids"`
}
