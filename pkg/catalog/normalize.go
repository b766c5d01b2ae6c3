package catalog

import (
	"encoding/json"
)

// UnknownArtist is used when a track's artist cannot be resolved.
const UnknownArtist = "Unknown Artist"

// MaxRelatedTracks caps RelatedTrackIDs.
const MaxRelatedTracks = 5

// Observer is notified about references that could not be resolved against
// the included entities. relation is RelArtists or RelAlbums.
type Observer interface {
	DanglingReference(relation string)
}

// Normalizer flattens batch responses. The zero value is ready to use.
type Normalizer struct {
	Observer Observer
}

// Normalize flattens resp with a zero Normalizer.
func Normalize(resp BatchResponse) ([]NormalizedTrack, error) {
	return Normalizer{}.Normalize(resp)
}

type entityKey struct {
	typ string
	id  string
}

// Normalize returns one record per primary entity, in order. A primary entity
// without an id or title fails the whole batch with *MalformedEntityError.
// Unresolvable artists, albums and images never fail the batch.
func (n Normalizer) Normalize(resp BatchResponse) ([]NormalizedTrack, error) {
	index := make(map[entityKey]*RawEntity, len(resp.Included))
	for i := range resp.Included {
		e := &resp.Included[i]
		index[entityKey{e.Type, e.ID}] = e
	}

	out := make([]NormalizedTrack, 0, len(resp.Data))
	for i := range resp.Data {
		t := &resp.Data[i]
		if t.ID == "" {
			return nil, &MalformedEntityError{Index: i, Field: "id"}
		}
		title, ok := stringAttr(t, "title")
		if !ok || title == "" {
			return nil, &MalformedEntityError{EntityID: t.ID, Index: i, Field: "title"}
		}
		out = append(out, NormalizedTrack{
			ID:              t.ID,
			Title:           title,
			Artist:          n.artistName(t, index),
			AlbumImageURL:   n.albumImage(t, index),
			RelatedTrackIDs: relatedIDs(t),
		})
	}
	return out, nil
}

func (n Normalizer) artistName(t *RawEntity, index map[entityKey]*RawEntity) string {
	artist, ok := n.resolve(t, RelArtists, TypeArtists, index)
	if !ok {
		return UnknownArtist
	}
	if name, ok := stringAttr(artist, "name"); ok && name != "" {
		return name
	}
	return UnknownArtist
}

func (n Normalizer) albumImage(t *RawEntity, index map[entityKey]*RawEntity) *string {
	album, ok := n.resolve(t, RelAlbums, TypeAlbums, index)
	if !ok {
		return nil
	}
	raw, ok := album.Attributes["imageLinks"]
	if !ok {
		return nil
	}
	var links []struct {
		Href string `json:"href"`
	}
	if err := json.Unmarshal(raw, &links); err != nil || len(links) == 0 || links[0].Href == "" {
		return nil
	}
	href := links[0].Href
	return &href
}

// resolve looks up the first reference of relation. A track that simply has
// no such relation is not a dangling reference.
func (n Normalizer) resolve(t *RawEntity, relation, defaultType string, index map[entityKey]*RawEntity) (*RawEntity, bool) {
	refs := t.Relationships[relation].Data
	if len(refs) == 0 {
		return nil, false
	}
	ref := refs[0]
	typ := ref.Type
	if typ == "" {
		typ = defaultType
	}
	e, ok := index[entityKey{typ, ref.ID}]
	if !ok {
		if n.Observer != nil {
			n.Observer.DanglingReference(relation)
		}
		return nil, false
	}
	return e, true
}

func relatedIDs(t *RawEntity) []string {
	refs := t.Relationships[RelSimilarTracks].Data
	if len(refs) > MaxRelatedTracks {
		refs = refs[:MaxRelatedTracks]
	}
	ids := make([]string, len(refs))
	for i, r := range refs {
		ids[i] = r.ID
	}
	return ids
}

func stringAttr(e *RawEntity, name string) (string, bool) {
	raw, ok := e.Attributes[name]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}
