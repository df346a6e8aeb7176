package domain

import (
	"strconv"

	dErrors "flock/pkg/domain-errors"
)

// Typed identifiers. All persisted ids are positive BIGSERIAL values; the zero
// value means "unset". Distinct types keep a MemberID from being passed where
// a ChurchID is expected.
type (
	ChurchID       int64
	MemberID       int64
	UserID         int64
	ExitID         int64
	NotificationID int64
)

func (i ChurchID) IsNil() bool       { return i <= 0 }
func (i MemberID) IsNil() bool       { return i <= 0 }
func (i UserID) IsNil() bool         { return i <= 0 }
func (i ExitID) IsNil() bool         { return i <= 0 }
func (i NotificationID) IsNil() bool { return i <= 0 }

func (i ChurchID) String() string       { return strconv.FormatInt(int64(i), 10) }
func (i MemberID) String() string       { return strconv.FormatInt(int64(i), 10) }
func (i UserID) String() string         { return strconv.FormatInt(int64(i), 10) }
func (i ExitID) String() string         { return strconv.FormatInt(int64(i), 10) }
func (i NotificationID) String() string { return strconv.FormatInt(int64(i), 10) }

// maxIDLength bounds input before strconv sees it; int64 has at most 19 digits.
const maxIDLength = 19

func parseID(s, kind string) (int64, error) {
	if s == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, kind+" is required")
	}
	if len(s) > maxIDLength {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
		}
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	return v, nil
}

// ParseChurchID validates a church id from an untrusted string.
func ParseChurchID(s string) (ChurchID, error) {
	v, err := parseID(s, "church id")
	return ChurchID(v), err
}

// ParseMemberID validates a member id from an untrusted string.
func ParseMemberID(s string) (MemberID, error) {
	v, err := parseID(s, "member id")
	return MemberID(v), err
}

// ParseUserID validates a user id from an untrusted string.
func ParseUserID(s string) (UserID, error) {
	v, err := parseID(s, "user id")
	return UserID(v), err
}

// ParseExitID validates an exit record id from an untrusted string.
func ParseExitID(s string) (ExitID, error) {
	v, err := parseID(s, "exit id")
	return ExitID(v), err
}

// ParseNotificationID validates a notification id from an untrusted string.
func ParseNotificationID(s string) (NotificationID, error) {
	v, err := parseID(s, "notification id")
	return NotificationID(v), err
}
