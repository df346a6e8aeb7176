package realtime

import (
	id "flock/pkg/domain"
)

// Room names. A participant is in its user and church rooms once
// authenticated and may subscribe to member rooms.
func ChurchRoom(churchID id.ChurchID) string {
	return "church:" + churchID.String()
}

func UserRoom(userID id.UserID) string {
	return "user:" + userID.String()
}

func MemberRoom(memberID id.MemberID) string {
	return "member:" + memberID.String()
}
