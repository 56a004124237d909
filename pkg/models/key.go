package models

import "fmt"

// Tag is one element of a key's metadata: either the type tag that decides
// how a thread is reduced to a value, or a modifier tag carrying policy.
type Tag string

const (
	TagVoting      Tag = "voting"
	TagMultiple    Tag = "multiple"
	TagSingleFront Tag = "singleFront"
	TagSingleBack  Tag = "singleBack"

	TagConstant    Tag = "constant"
	TagUndeletable Tag = "undeletable"
	// TagUnknown stands in for any marker that is not a known modifier.
	TagUnknown Tag = "unknown"
)

// IsType reports whether t is one of the four type tags.
func (t Tag) IsType() bool {
	switch t {
	case TagVoting, TagMultiple, TagSingleFront, TagSingleBack:
		return true
	}
	return false
}

// IsModifier reports whether t can appear after the type tag.
func (t Tag) IsModifier() bool {
	switch t {
	case TagConstant, TagUndeletable, TagUnknown:
		return true
	}
	return false
}

// ParseTag maps the external spelling of a tag back to a Tag.
func ParseTag(s string) (Tag, error) {
	t := Tag(s)
	if t.IsType() || t.IsModifier() {
		return t, nil
	}
	return "", fmt.Errorf("unknown tag %q", s)
}

// Metadata is the decoded schema of a key message. Type is always set and
// always conceptually first; Modifiers keep the order they appeared in.
type Metadata struct {
	Type      Tag   `json:"type"`
	Modifiers []Tag `json:"modifiers,omitempty"`
}

// Has reports whether the modifier tag is present.
func (m Metadata) Has(t Tag) bool {
	for _, mt := range m.Modifiers {
		if mt == t {
			return true
		}
	}
	return false
}

// Tags returns the metadata as a flat sequence with the type tag first.
func (m Metadata) Tags() []Tag {
	out := make([]Tag, 0, 1+len(m.Modifiers))
	out = append(out, m.Type)
	return append(out, m.Modifiers...)
}

// Scope is the (server, channel) pair a key or a search lives in.
type Scope struct {
	Server      string `json:"server"`
	ChannelID   string `json:"channel_id"`
	ChannelName string `json:"channel_name"`
}

// Key identifies one logical database entry: the key message and its thread.
type Key struct {
	Server      string   `json:"server"`
	ChannelID   string   `json:"channel_id"`
	ChannelName string   `json:"channel_name"`
	Phrase      string   `json:"phrase"`
	TS          string   `json:"ts"`
	Metadata    Metadata `json:"metadata"`
}

// Scope returns the scope the key was resolved in.
func (k Key) Scope() Scope {
	return Scope{Server: k.Server, ChannelID: k.ChannelID, ChannelName: k.ChannelName}
}
