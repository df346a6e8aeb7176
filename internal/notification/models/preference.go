package models

import (
	"time"

	id "flock/pkg/domain"
	dErrors "flock/pkg/domain-errors"
)

// Preference is a user's per-channel opt-in within one church.
type Preference struct {
	ChurchID  id.ChurchID      `json:"church_id"`
	UserID    id.UserID        `json:"user_id"`
	Channels  map[Channel]bool `json:"channels"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// DefaultPreference applies when a user never saved one: in-app and email on.
func DefaultPreference(churchID id.ChurchID, userID id.UserID) *Preference {
	return &Preference{
		ChurchID: churchID,
		UserID:   userID,
		Channels: map[Channel]bool{
			ChannelInApp:    true,
			ChannelEmail:    true,
			ChannelSMS:      false,
			ChannelWhatsApp: false,
		},
	}
}

// AllowedChannels returns the enabled channels in AllChannels order.
func (p *Preference) AllowedChannels() []Channel {
	var out []Channel
	for _, c := range AllChannels {
		if p.Channels[c] {
			out = append(out, c)
		}
	}
	return out
}

// Merge overlays updates on the preference. Unknown channels are rejected.
func (p *Preference) Merge(updates map[Channel]bool, now time.Time) error {
	for c := range updates {
		if !c.IsValid() {
			return dErrors.New(dErrors.CodeInvalidPayload, "unknown channel "+string(c))
		}
	}
	if p.Channels == nil {
		p.Channels = make(map[Channel]bool, len(AllChannels))
	}
	for c, enabled := range updates {
		p.Channels[c] = enabled
	}
	p.UpdatedAt = now
	return nil
}
