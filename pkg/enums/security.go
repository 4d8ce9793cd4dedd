package enums

import "fmt"

// SecurityEvent names an authentication or authorization outcome worth auditing.
type SecurityEvent string

const (
	SecurityLoginSuccess      SecurityEvent = "login_success"
	SecurityLoginFailed       SecurityEvent = "login_failed"
	SecurityLogout            SecurityEvent = "logout"
	SecurityUserBlocked       SecurityEvent = "user_blocked"
	SecurityUserUnblocked     SecurityEvent = "user_unblocked"
	SecurityTokenInvalid      SecurityEvent = "token_invalid"
	SecurityAccessDenied      SecurityEvent = "access_denied"
	SecuritySessionTerminated SecurityEvent = "session_terminated"
)

var validSecurityEvents = []SecurityEvent{
	SecurityLoginSuccess,
	SecurityLoginFailed,
	SecurityLogout,
	SecurityUserBlocked,
	SecurityUserUnblocked,
	SecurityTokenInvalid,
	SecurityAccessDenied,
	SecuritySessionTerminated,
}

func (e SecurityEvent) IsValid() bool {
	for _, candidate := range validSecurityEvents {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseSecurityEvent converts raw strings into SecurityEvent.
func ParseSecurityEvent(value string) (SecurityEvent, error) {
	for _, candidate := range validSecurityEvents {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid security event %q", value)
}
