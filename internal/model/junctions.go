package model

import "fmt"

// EventRelay is the (event_id, relay_url, seen_at) junction row.
type EventRelay struct {
	eventID  string
	relayURL string
	seenAt   int64
	dbParams [3]any
}

// NewEventRelay freezes an event-relay sighting record.
func NewEventRelay(eventID, relayURL string, seenAt int64) (*EventRelay, error) {
	if eventID == "" || relayURL == "" {
		return nil, fmt.Errorf("event_relay: eventID and relayURL are required")
	}
	er := &EventRelay{eventID: eventID, relayURL: relayURL, seenAt: seenAt}
	er.dbParams = [3]any{er.eventID, er.relayURL, er.seenAt}
	return er, nil
}

func (e *EventRelay) EventID() string  { return e.eventID }
func (e *EventRelay) RelayURL() string { return e.relayURL }
func (e *EventRelay) SeenAt() int64    { return e.seenAt }
func (e *EventRelay) DBParams() [3]any { return e.dbParams }

// RelayMetadata is the (relay_url, generated_at, metadata_type,
// metadata_id) junction row — one health-check snapshot in time.
type RelayMetadata struct {
	relayURL    string
	generatedAt int64
	mdType      MetadataType
	mdID        string
	dbParams    [4]any
}

// NewRelayMetadata freezes a relay-metadata snapshot record.
func NewRelayMetadata(relayURL string, generatedAt int64, mdType MetadataType, mdID string) (*RelayMetadata, error) {
	if relayURL == "" || mdID == "" {
		return nil, fmt.Errorf("relay_metadata: relayURL and metadata id are required")
	}
	if !validMetadataType(mdType) {
		return nil, fmt.Errorf("relay_metadata: unknown type %q", mdType)
	}
	rm := &RelayMetadata{relayURL: relayURL, generatedAt: generatedAt, mdType: mdType, mdID: mdID}
	rm.dbParams = [4]any{rm.relayURL, rm.generatedAt, string(rm.mdType), rm.mdID}
	return rm, nil
}

func (r *RelayMetadata) RelayURL() string       { return r.relayURL }
func (r *RelayMetadata) GeneratedAt() int64     { return r.generatedAt }
func (r *RelayMetadata) Type() MetadataType     { return r.mdType }
func (r *RelayMetadata) MetadataID() string     { return r.mdID }
func (r *RelayMetadata) DBParams() [4]any       { return r.dbParams }

// StateType enumerates the ServiceState table's state_type column.
type StateType string

const (
	StateCandidate   StateType = "candidate"
	StateCursor      StateType = "cursor"
	StateMonitoring  StateType = "monitoring"
	StatePublication StateType = "publication"
)

// ServiceState is a generic per-service key/value row.
type ServiceState struct {
	serviceName string
	stateType   StateType
	stateKey    string
	payload     map[string]any
	updatedAt   int64
	dbParams    [5]any
}

// NewServiceState freezes a ServiceState row, defensively copying payload.
func NewServiceState(serviceName string, stateType StateType, stateKey string, payload map[string]any, updatedAt int64) (*ServiceState, error) {
	if serviceName == "" || stateKey == "" {
		return nil, fmt.Errorf("service_state: serviceName and stateKey are required")
	}
	s := &ServiceState{
		serviceName: serviceName,
		stateType:   stateType,
		stateKey:    stateKey,
		payload:     deepCopyMap(payload),
		updatedAt:   updatedAt,
	}
	s.dbParams = [5]any{s.serviceName, string(s.stateType), s.stateKey, s.payload, s.updatedAt}
	return s, nil
}

func (s *ServiceState) ServiceName() string       { return s.serviceName }
func (s *ServiceState) StateType() StateType      { return s.stateType }
func (s *ServiceState) StateKey() string          { return s.stateKey }
func (s *ServiceState) Payload() map[string]any   { return deepCopyMap(s.payload) }
func (s *ServiceState) UpdatedAt() int64          { return s.updatedAt }
func (s *ServiceState) DBParams() [5]any          { return s.dbParams }
