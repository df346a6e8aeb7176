package models

import (
	"strings"

	id "flock/pkg/domain"
)

// KeyPrefix names a family of rate limit buckets.
type KeyPrefix string

const (
	KeyPrefixNotifyUser   KeyPrefix = "notify:user"
	KeyPrefixNotifyChurch KeyPrefix = "notify:church"
)

// SanitizeKeySegment escapes the ':' delimiter so an identifier cannot
// spill into an adjacent key segment.
func SanitizeKeySegment(s string) string {
	return strings.ReplaceAll(s, ":", "_")
}

// NotificationUserKey returns notify:user:<church>:<user>.
func NotificationUserKey(churchID id.ChurchID, userID id.UserID) string {
	return string(KeyPrefixNotifyUser) + ":" + SanitizeKeySegment(churchID.String()) + ":" + SanitizeKeySegment(userID.String())
}

// NotificationChurchKey returns notify:church:<church>.
func NotificationChurchKey(churchID id.ChurchID) string {
	return string(KeyPrefixNotifyChurch) + ":" + SanitizeKeySegment(churchID.String())
}
