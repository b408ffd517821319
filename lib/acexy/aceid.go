// Package acexy implements the content-key dedup, subscriber fan-out,
// and upstream lifecycle that make up the stream multiplexer.
package acexy

import (
	"errors"
	"fmt"
	"net/url"
)

// AceID is the content key the Registry dedups on: two requests that
// resolve to the same AceID share the same Ongoing Stream. Exactly one
// of id/infohash is ever set — never both, never neither.
type AceID struct {
	id       string
	infohash string
}

// AceIDType names which of id/infohash an AceID carries.
type AceIDType string

// NewAceID builds a content key, rejecting the two shapes that would
// make dedup ambiguous: neither id nor infohash set, or both set.
func NewAceID(id, infohash string) (AceID, error) {
	if id == "" && infohash == "" {
		return AceID{}, errors.New("one of `id` or `infohash` must have a value")
	}
	if id != "" && infohash != "" {
		return AceID{}, errors.New("only one of `id` or `infohash` can have a value")
	}
	return AceID{id: id, infohash: infohash}, nil
}

// AceIDFromParams builds a content key straight from request query
// parameters, the common case at the Request Handler boundary.
func AceIDFromParams(params url.Values) (AceID, error) {
	return NewAceID(params.Get("id"), params.Get("infohash"))
}

// ID reports which field is set and its value: infohash takes
// precedence when both would otherwise be readable.
func (a AceID) ID() (AceIDType, string) {
	if a.infohash != "" {
		return "infohash", a.infohash
	}
	return "id", a.id
}

// String renders the key for log correlation, e.g. "{id: ABC123}".
func (a AceID) String() string {
	idType, id := a.ID()
	return fmt.Sprintf("{%s: %s}", idType, id)
}
