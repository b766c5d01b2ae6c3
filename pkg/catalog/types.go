// Package catalog models the provider's JSON:API style payloads and flattens
// them into self contained track records.
//
// A batched provider response carries the requested tracks in "data" and
// every entity they reference (artists, albums, other tracks) once in
// "included". Tracks point at those entities through typed references.
// Normalize resolves the references so callers never see the graph.
package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Wire type names used by the provider.
const (
	TypeTracks  = "tracks"
	TypeArtists = "artists"
	TypeAlbums  = "albums"
)

// Relationship names read from a track.
const (
	RelArtists       = "artists"
	RelAlbums        = "albums"
	RelSimilarTracks = "similarTracks"
)

// ResourceRef points at another entity by type and id.
type ResourceRef struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// Relationship holds the references of one named relation. The provider may
// send a single object, an array or null as "data"; all three decode into
// Data.
type Relationship struct {
	Data []ResourceRef
}

// UnmarshalJSON accepts to-one and to-many relationship shapes.
func (r *Relationship) UnmarshalJSON(b []byte) error {
	var wire struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	refs, err := decodeOneOrMany[ResourceRef](wire.Data)
	if err != nil {
		return fmt.Errorf("relationship data: %w", err)
	}
	r.Data = refs
	return nil
}

// MarshalJSON writes the to-many form.
func (r Relationship) MarshalJSON() ([]byte, error) {
	data := r.Data
	if data == nil {
		data = []ResourceRef{}
	}
	return json.Marshal(struct {
		Data []ResourceRef `json:"data"`
	}{data})
}

// RawEntity is one provider entity exactly as received. Attributes are kept
// undecoded because their shape depends on the entity type.
type RawEntity struct {
	ID            string                     `json:"id"`
	Type          string                     `json:"type"`
	Attributes    map[string]json.RawMessage `json:"attributes,omitempty"`
	Relationships map[string]Relationship    `json:"relationships,omitempty"`
}

// BatchResponse is a full provider response: primary entities plus the
// side-loaded entities they reference.
type BatchResponse struct {
	Data     []RawEntity `json:"data"`
	Included []RawEntity `json:"included,omitempty"`
}

// UnmarshalJSON tolerates a single primary object as well as an array.
func (b *BatchResponse) UnmarshalJSON(p []byte) error {
	var wire struct {
		Data     json.RawMessage `json:"data"`
		Included []RawEntity     `json:"included"`
	}
	if err := json.Unmarshal(p, &wire); err != nil {
		return err
	}
	data, err := decodeOneOrMany[RawEntity](wire.Data)
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	b.Data = data
	b.Included = wire.Included
	return nil
}

func decodeOneOrMany[T any](raw json.RawMessage) ([]T, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '[' {
		var many []T
		if err := json.Unmarshal(raw, &many); err != nil {
			return nil, err
		}
		return many, nil
	}
	var one T
	if err := json.Unmarshal(raw, &one); err != nil {
		return nil, err
	}
	return []T{one}, nil
}

// NormalizedTrack is the flat, UI ready track record. It shares no memory
// with the RawEntity it was built from.
type NormalizedTrack struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Artist string `json:"artist"`
	// AlbumImageURL is nil when the album is unknown or has no artwork.
	AlbumImageURL   *string  `json:"albumImageUrl,omitempty"`
	RelatedTrackIDs []string `json:"relatedTrackIds"`
}

// MalformedEntityError reports a primary entity that lacks a required field.
// Index is the entity's position in BatchResponse.Data.
type MalformedEntityError struct {
	EntityID string
	Index    int
	Field    string
}

func (e *MalformedEntityError) Error() string {
	if e.EntityID == "" {
		return fmt.Sprintf("catalog: malformed entity at index %d: missing %s", e.Index, e.Field)
	}
	return fmt.Sprintf("catalog: malformed entity %q at index %d: missing %s", e.EntityID, e.Index, e.Field)
}
