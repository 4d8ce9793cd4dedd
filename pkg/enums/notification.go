package enums

import "fmt"

// NotificationType maps to the notification_type check constraint.
type NotificationType string

const (
	NotificationTypeStock    NotificationType = "stock"
	NotificationTypeIssuance NotificationType = "issuance"
	NotificationTypeExpiry   NotificationType = "expiry"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeStock,
	NotificationTypeIssuance,
	NotificationTypeExpiry,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
