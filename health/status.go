package health

import (
	"regexp"
	"strings"
	"time"
)

// State is a module's health level
type State string

// Health levels, ordered from best to worst
const (
	StateHealthy   State = "healthy"
	StateDegraded  State = "degraded"
	StateUnhealthy State = "unhealthy"
)

func (s State) rank() int {
	switch s {
	case StateHealthy:
		return 0
	case StateDegraded:
		return 1
	default:
		return 2
	}
}

var (
	urlRegex        = regexp.MustCompile(`(?:https?|nats|wss?)://[^\s]+`)
	unixPathRegex   = regexp.MustCompile(`(^|\s)/[a-zA-Z0-9/_.-]+`)
	ipAddrRegex     = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}(:\d{1,5})?\b`)
	credentialRegex = regexp.MustCompile(`(?i)(password|token|secret|credential)[^a-zA-Z]*[:=]\s*[^,\s}]+`)
)

// Status is the last known health of one module
type Status struct {
	Module   string    `json:"module"`
	State    State     `json:"state"`
	Message  string    `json:"message,omitempty"`
	Failures int       `json:"failures,omitempty"`
	Since    time.Time `json:"since"`
}

// Healthy reports whether the module is fully working
func (s Status) Healthy() bool { return s.State == StateHealthy }

// sanitizeMessage strips URLs, paths, addresses and credentials from an
// error message before it leaves the process. Module errors routinely quote
// endpoints from the user's config.
func sanitizeMessage(msg string) string {
	if msg == "" {
		return ""
	}
	out := urlRegex.ReplaceAllString(msg, "[URL]")
	out = unixPathRegex.ReplaceAllString(out, "$1[PATH]")
	out = ipAddrRegex.ReplaceAllString(out, "[IP]")

	lower := strings.ToLower(out)
	for _, word := range []string{"password", "token", "secret", "credential"} {
		if strings.Contains(lower, word) {
			out = credentialRegex.ReplaceAllString(out, "[REDACTED]")
			break
		}
	}
	return out
}
