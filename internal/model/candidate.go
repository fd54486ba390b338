package model

// Candidate is the typed view of a service_state(type=candidate) row's
// payload: a relay URL awaiting validation.
type Candidate struct {
	URL            string
	Network        Network
	FailedAttempts int
	DiscoveredAt   int64
	UpdatedAt      int64
}

// Payload renders the candidate as the generic map ServiceState stores.
func (c Candidate) Payload() map[string]any {
	return map[string]any{
		"network":         string(c.Network),
		"failed_attempts": c.FailedAttempts,
		"discovered_at":   c.DiscoveredAt,
	}
}

// CandidateFromPayload reconstructs a Candidate from a decoded
// service_state payload plus its envelope key/timestamp.
func CandidateFromPayload(url string, updatedAt int64, payload map[string]any) Candidate {
	c := Candidate{URL: url, UpdatedAt: updatedAt}
	if n, ok := payload["network"].(string); ok {
		c.Network = Network(n)
	}
	switch v := payload["failed_attempts"].(type) {
	case int:
		c.FailedAttempts = v
	case int64:
		c.FailedAttempts = int(v)
	case float64:
		c.FailedAttempts = int(v)
	}
	switch v := payload["discovered_at"].(type) {
	case int:
		c.DiscoveredAt = int64(v)
	case int64:
		c.DiscoveredAt = v
	case float64:
		c.DiscoveredAt = int64(v)
	}
	return c
}
