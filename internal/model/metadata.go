package model

import "fmt"

// MetadataType enumerates the seven health-check payload variants.
type MetadataType string

const (
	MetadataNip11Info MetadataType = "nip11_info"
	MetadataNip66Rtt  MetadataType = "nip66_rtt"
	MetadataNip66Ssl  MetadataType = "nip66_ssl"
	MetadataNip66Geo  MetadataType = "nip66_geo"
	MetadataNip66Net  MetadataType = "nip66_net"
	MetadataNip66Dns  MetadataType = "nip66_dns"
	MetadataNip66Http MetadataType = "nip66_http"
)

// Metadata is a content-addressed health-check payload: its id is the
// SHA-256 of the canonical JSON encoding of Data. Composite primary key
// is (id, type) — identical bytes under different types coexist as
// distinct rows.
type Metadata struct {
	id       string
	mdType   MetadataType
	data     map[string]any
	dbParams [3]any
}

// NewMetadata computes the content address of data and freezes it
// alongside mdType. data is copied defensively so later caller mutation
// of the source map cannot affect the frozen instance.
func NewMetadata(mdType MetadataType, data map[string]any) (*Metadata, error) {
	if !validMetadataType(mdType) {
		return nil, fmt.Errorf("metadata: unknown type %q", mdType)
	}
	frozen := deepCopyMap(data)
	id, err := ContentHash(frozen)
	if err != nil {
		return nil, fmt.Errorf("metadata: hashing data: %w", err)
	}
	m := &Metadata{id: id, mdType: mdType, data: frozen}
	m.dbParams = [3]any{m.id, string(m.mdType), m.data}
	return m, nil
}

// MetadataFromDBParams reconstructs a Metadata from stored column values and
// re-derives id as an integrity check, per spec.md §4.9.
func MetadataFromDBParams(id string, mdType MetadataType, data map[string]any) (*Metadata, error) {
	m, err := NewMetadata(mdType, data)
	if err != nil {
		return nil, err
	}
	if m.id != id {
		return nil, fmt.Errorf("metadata: integrity check failed: stored id %q, recomputed %q", id, m.id)
	}
	return m, nil
}

func validMetadataType(t MetadataType) bool {
	switch t {
	case MetadataNip11Info, MetadataNip66Rtt, MetadataNip66Ssl, MetadataNip66Geo, MetadataNip66Net, MetadataNip66Dns, MetadataNip66Http:
		return true
	default:
		return false
	}
}

func (m *Metadata) ID() string          { return m.id }
func (m *Metadata) Type() MetadataType   { return m.mdType }
func (m *Metadata) Data() map[string]any { return deepCopyMap(m.data) }
func (m *Metadata) DBParams() [3]any     { return m.dbParams }

func deepCopyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return val
	}
}
