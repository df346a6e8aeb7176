package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotificationKeys(t *testing.T) {
	assert.Equal(t, "notify:user:7:3", NotificationUserKey(7, 3))
	assert.Equal(t, "notify:church:7", NotificationChurchKey(7))
}

func TestSanitizeKeySegment(t *testing.T) {
	assert.Equal(t, "user_admin", SanitizeKeySegment("user:admin"))
	assert.Equal(t, "plain", SanitizeKeySegment("plain"))
}

func TestDefaultNotificationLimits(t *testing.T) {
	limits := DefaultNotificationLimits()
	assert.Equal(t, 30, limits.User.RequestsPerWindow)
	assert.Equal(t, 300, limits.Church.RequestsPerWindow)
}
