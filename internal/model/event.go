package model

import (
	"fmt"
	"strings"

	"github.com/nbd-wtf/go-nostr"
)

// Event is a validated, immutable Nostr signed event as archived by the
// synchronizer. TagValues caches the flattened single-character-keyed
// tag values used for containment indexing.
type Event struct {
	id        string
	pubkey    string
	sig       string
	createdAt int64
	kind      int
	tags      nostr.Tags
	content   string
	tagValues []string
	dbParams  [8]any
}

// NewEvent validates a nostr.Event against a sync window and the NUL-byte
// invariant, verifies its signature, and freezes it into an Event.
func NewEvent(evt *nostr.Event, windowStart, windowEnd int64) (*Event, error) {
	if evt == nil {
		return nil, fmt.Errorf("event: nil")
	}
	ts := int64(evt.CreatedAt)
	if ts < windowStart || ts > windowEnd {
		return nil, fmt.Errorf("event %s: created_at %d outside window [%d,%d]", evt.ID, ts, windowStart, windowEnd)
	}
	if strings.ContainsRune(evt.Content, 0) {
		return nil, fmt.Errorf("event %s: content contains NUL byte", evt.ID)
	}
	for _, tag := range evt.Tags {
		for _, v := range tag {
			if strings.ContainsRune(v, 0) {
				return nil, fmt.Errorf("event %s: tag contains NUL byte", evt.ID)
			}
		}
	}
	ok, err := evt.CheckSignature()
	if err != nil {
		return nil, fmt.Errorf("event %s: signature check failed: %w", evt.ID, err)
	}
	if !ok {
		return nil, fmt.Errorf("event %s: signature does not verify", evt.ID)
	}

	e := &Event{
		id:        evt.ID,
		pubkey:    evt.PubKey,
		sig:       evt.Sig,
		createdAt: ts,
		kind:      evt.Kind,
		tags:      evt.Tags,
		content:   evt.Content,
	}
	e.tagValues = extractTagValues(evt.Tags)
	e.dbParams = [8]any{e.id, e.pubkey, e.sig, e.createdAt, e.kind, tagsToJSON(e.tags), e.content, e.tagValues}
	return e, nil
}

func extractTagValues(tags nostr.Tags) []string {
	var values []string
	for _, tag := range tags {
		if len(tag) < 2 || len(tag[0]) != 1 {
			continue
		}
		values = append(values, tag[1:]...)
	}
	return values
}

func tagsToJSON(tags nostr.Tags) [][]string {
	out := make([][]string, len(tags))
	for i, t := range tags {
		out[i] = []string(t)
	}
	return out
}

// EventFromDBParams reconstructs an Event from stored column values
// without re-running signature verification, mirroring Relay's
// FromDBParams — the row is assumed already validated at insert time.
func EventFromDBParams(id, pubkey, sig string, createdAt int64, kind int, tags nostr.Tags, content string, tagValues []string) *Event {
	e := &Event{
		id: id, pubkey: pubkey, sig: sig, createdAt: createdAt,
		kind: kind, tags: tags, content: content, tagValues: tagValues,
	}
	e.dbParams = [8]any{e.id, e.pubkey, e.sig, e.createdAt, e.kind, tagsToJSON(e.tags), e.content, e.tagValues}
	return e
}

func (e *Event) ID() string          { return e.id }
func (e *Event) PubKey() string      { return e.pubkey }
func (e *Event) Sig() string         { return e.sig }
func (e *Event) CreatedAt() int64    { return e.createdAt }
func (e *Event) Kind() int           { return e.kind }
func (e *Event) Tags() nostr.Tags    { return e.tags }
func (e *Event) Content() string     { return e.content }
func (e *Event) TagValues() []string { return e.tagValues }

// DBParams returns the cached (id, pubkey, sig, created_at, kind, tags,
// content, tagvalues) tuple for parallel-array cascade inserts.
func (e *Event) DBParams() [8]any { return e.dbParams }
