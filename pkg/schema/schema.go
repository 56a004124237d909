// Package schema reads and writes the marker fragment that turns a chat
// message into a key. A key message looks like
//
//	<phrase> <type-marker><modifier-marker>*
//
// where every marker is an emoji shortcode (":name:") and the markers follow
// each other with no separator. Decoding is case and whitespace sensitive.
package schema

import (
	"strings"

	"slackdb/pkg/kverr"
	"slackdb/pkg/models"
)

var typeMarkers = map[models.Tag]string{
	models.TagVoting:      ":ballot_box_with_check:",
	models.TagMultiple:    ":family:",
	models.TagSingleFront: ":hear_no_evil:",
	models.TagSingleBack:  ":monkey:",
}

var modifierMarkers = map[models.Tag]string{
	models.TagConstant:    ":do_not_litter:",
	models.TagUndeletable: ":anchor:",
}

var (
	markerTypes     = invert(typeMarkers)
	markerModifiers = invert(modifierMarkers)
)

func invert(m map[models.Tag]string) map[string]models.Tag {
	out := make(map[string]models.Tag, len(m))
	for t, s := range m {
		out[s] = t
	}
	return out
}

// Decoded is a successfully parsed key message.
type Decoded struct {
	Phrase   string
	Metadata models.Metadata
}

// Marker returns the reserved token for a type or known modifier tag.
func Marker(t models.Tag) (string, bool) {
	if s, ok := typeMarkers[t]; ok {
		return s, true
	}
	s, ok := modifierMarkers[t]
	return s, ok
}

// Decode parses text as a key message. ok is false when the text does not
// end in a marker run led by a type marker, or when the phrase is empty.
// Markers after the type marker that are not known modifiers decode as
// models.TagUnknown in place.
func Decode(text string) (Decoded, bool) {
	markers, start := trailingMarkers(text)
	if len(markers) == 0 || start < 2 || text[start-1] != ' ' {
		return Decoded{}, false
	}
	typ, ok := markerTypes[markers[0]]
	if !ok {
		return Decoded{}, false
	}
	var mods []models.Tag
	for _, mk := range markers[1:] {
		if t, ok := markerModifiers[mk]; ok {
			mods = append(mods, t)
		} else {
			mods = append(mods, models.TagUnknown)
		}
	}
	return Decoded{
		Phrase:   text[:start-1],
		Metadata: models.Metadata{Type: typ, Modifiers: mods},
	}, true
}

// Encode renders the marker fragment of m. The phrase and the separating
// space are the caller's business. Unknown tags have no token and fail.
func Encode(m models.Metadata) (string, error) {
	tm, ok := typeMarkers[m.Type]
	if !ok {
		return "", kverr.Errorf(kverr.Schema, "schema.encode", "%q is not a type tag", m.Type)
	}
	var b strings.Builder
	b.WriteString(tm)
	for _, t := range m.Modifiers {
		mm, ok := modifierMarkers[t]
		if !ok {
			return "", kverr.Errorf(kverr.Schema, "schema.encode", "%q cannot be encoded as a modifier", t)
		}
		b.WriteString(mm)
	}
	return b.String(), nil
}

// KeyText is the full text of a key message for phrase and m.
func KeyText(phrase string, m models.Metadata) (string, error) {
	frag, err := Encode(m)
	if err != nil {
		return "", err
	}
	return phrase + " " + frag, nil
}

// MatchesSchema reports whether text would be read back as a key message.
func MatchesSchema(text string) bool {
	_, ok := Decode(text)
	return ok
}

// trailingMarkers walks backward over the run of adjacent ":name:" tokens
// that ends text. It returns the tokens in reading order and the offset at
// which the run starts.
func trailingMarkers(text string) ([]string, int) {
	end := len(text)
	var rev []string
	for end > 0 && text[end-1] == ':' {
		i := end - 2
		for i >= 0 && text[i] != ':' && !isSpace(text[i]) {
			i--
		}
		if i < 0 || text[i] != ':' || i == end-2 {
			break
		}
		rev = append(rev, text[i:end])
		end = i
	}
	out := make([]string, len(rev))
	for i, tok := range rev {
		out[len(rev)-1-i] = tok
	}
	return out, end
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f'
}
