// Package jsonapi decodes JSON:API style resource documents into typed,
// immutable resources. Relationship ids are normalized to integers at parse
// time; ids that are not numeric become UnassignedID.
package jsonapi

import (
	"bytes"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/ajitpratap0/shepherd/pkg/errors"
	gojson "github.com/goccy/go-json"
)

// UnassignedID marks a resource or reference whose wire id is not numeric
// (for example a placeholder such as "unassigned"). Real ids are never negative.
const UnassignedID int64 = -1

// Key is the composite (type, id) reference to a resource.
type Key struct {
	Type string
	ID   int64
}

// String formats the key as type:id.
func (k Key) String() string {
	return k.Type + ":" + strconv.FormatInt(k.ID, 10)
}

// Assigned reports whether the key carries a real id.
func (k Key) Assigned() bool {
	return k.ID != UnassignedID
}

// Resource is one decoded record. It is never mutated after Decode returns.
type Resource struct {
	Type string
	ID   int64
	// RawID is the id exactly as sent
	RawID string

	CreatedAt *time.Time
	UpdatedAt *time.Time

	attributes    gojson.RawMessage
	relationships map[string][]Key
}

// Key returns the resource's composite key.
func (r Resource) Key() Key {
	return Key{Type: r.Type, ID: r.ID}
}

// ChangeTime is updated_at when present, else created_at.
func (r Resource) ChangeTime() (time.Time, bool) {
	if r.UpdatedAt != nil {
		return *r.UpdatedAt, true
	}
	if r.CreatedAt != nil {
		return *r.CreatedAt, true
	}
	return time.Time{}, false
}

// DecodeAttributes unmarshals the attributes object into v. Typed shapes
// with pointer fields make absent attributes explicit.
func (r Resource) DecodeAttributes(v interface{}) error {
	if len(r.attributes) == 0 {
		return nil
	}
	if err := gojson.Unmarshal(r.attributes, v); err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "invalid attributes").
			WithDetail("resource", r.Key().String())
	}
	return nil
}

// Related returns the references of a relationship in wire order.
func (r Resource) Related(name string) []Key {
	refs := r.relationships[name]
	out := make([]Key, len(refs))
	copy(out, refs)
	return out
}

// RelatedOne returns the first reference of a relationship.
func (r Resource) RelatedOne(name string) (Key, bool) {
	refs := r.relationships[name]
	if len(refs) == 0 {
		return Key{}, false
	}
	return refs[0], true
}

// Document is a decoded response.
type Document struct {
	Data     []Resource
	Included []Resource
	Next     string
	Meta     Meta
}

// Meta holds the document meta object.
type Meta map[string]gojson.RawMessage

// TotalCount returns meta.total_count when the server sends it.
func (m Meta) TotalCount() (int, bool) {
	raw, ok := m["total_count"]
	if !ok {
		return 0, false
	}
	var n int
	if err := gojson.Unmarshal(raw, &n); err != nil {
		return 0, false
	}
	return n, true
}

// Page is one unit of a paginated traversal after watermark filtering.
type Page struct {
	// Number is the 1-based position of the page in its traversal
	Number   int
	Items    []Resource
	Included []Resource
	Next     string
	// Boundary is set when the watermark was reached on this page
	Boundary bool
}

type wireDocument struct {
	Data     gojson.RawMessage `json:"data"`
	Included []wireResource    `json:"included"`
	Links    struct {
		Next *string `json:"next"`
	} `json:"links"`
	Meta map[string]gojson.RawMessage `json:"meta"`
}

type wireResource struct {
	Type          string                      `json:"type"`
	ID            gojson.RawMessage           `json:"id"`
	Attributes    gojson.RawMessage           `json:"attributes"`
	Relationships map[string]wireRelationship `json:"relationships"`
}

type wireRelationship struct {
	Data gojson.RawMessage `json:"data"`
}

type wireRef struct {
	Type string            `json:"type"`
	ID   gojson.RawMessage `json:"id"`
}

type wireTimestamps struct {
	CreatedAt *string `json:"created_at"`
	UpdatedAt *string `json:"updated_at"`
}

// Decode reads one document from r. Any structural problem is reported as
// an ErrorTypeData error.
func Decode(r io.Reader) (*Document, error) {
	var wire wireDocument
	if err := gojson.NewDecoder(r).Decode(&wire); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "invalid document")
	}

	doc := &Document{Meta: Meta(wire.Meta)}
	if wire.Links.Next != nil {
		doc.Next = strings.TrimSpace(*wire.Links.Next)
	}

	primary, err := decodeData(wire.Data)
	if err != nil {
		return nil, err
	}
	for _, w := range primary {
		res, err := w.resource()
		if err != nil {
			return nil, err
		}
		doc.Data = append(doc.Data, res)
	}
	for _, w := range wire.Included {
		res, err := w.resource()
		if err != nil {
			return nil, err
		}
		doc.Included = append(doc.Included, res)
	}
	return doc, nil
}

// DecodeBytes decodes a document held in memory.
func DecodeBytes(b []byte) (*Document, error) {
	return Decode(bytes.NewReader(b))
}

func decodeData(raw gojson.RawMessage) ([]wireResource, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var many []wireResource
		if err := gojson.Unmarshal(trimmed, &many); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "invalid data array")
		}
		return many, nil
	}
	var one wireResource
	if err := gojson.Unmarshal(trimmed, &one); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "invalid data object")
	}
	return []wireResource{one}, nil
}

func (w wireResource) resource() (Resource, error) {
	if w.Type == "" {
		return Resource{}, errors.New(errors.ErrorTypeData, "resource without type")
	}
	id, raw := normalizeID(w.ID)
	res := Resource{
		Type:       w.Type,
		ID:         id,
		RawID:      raw,
		attributes: w.Attributes,
	}

	if len(w.Attributes) > 0 && !bytes.Equal(bytes.TrimSpace(w.Attributes), []byte("null")) {
		var ts wireTimestamps
		if err := gojson.Unmarshal(w.Attributes, &ts); err != nil {
			return Resource{}, errors.Wrap(err, errors.ErrorTypeData, "invalid attributes").
				WithDetail("resource", res.Key().String())
		}
		var err error
		if res.CreatedAt, err = parseTimestamp(ts.CreatedAt); err != nil {
			return Resource{}, errors.Wrap(err, errors.ErrorTypeData, "invalid created_at").
				WithDetail("resource", res.Key().String())
		}
		if res.UpdatedAt, err = parseTimestamp(ts.UpdatedAt); err != nil {
			return Resource{}, errors.Wrap(err, errors.ErrorTypeData, "invalid updated_at").
				WithDetail("resource", res.Key().String())
		}
	} else {
		res.attributes = nil
	}

	if len(w.Relationships) > 0 {
		res.relationships = make(map[string][]Key, len(w.Relationships))
		for name, rel := range w.Relationships {
			refs, err := decodeRefs(rel.Data)
			if err != nil {
				return Resource{}, errors.Wrap(err, errors.ErrorTypeData, "invalid relationship").
					WithDetail("resource", res.Key().String()).
					WithDetail("relationship", name)
			}
			res.relationships[name] = refs
		}
	}
	return res, nil
}

func decodeRefs(raw gojson.RawMessage) ([]Key, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var refs []wireRef
	if trimmed[0] == '[' {
		if err := gojson.Unmarshal(trimmed, &refs); err != nil {
			return nil, err
		}
	} else {
		var one wireRef
		if err := gojson.Unmarshal(trimmed, &one); err != nil {
			return nil, err
		}
		refs = []wireRef{one}
	}
	keys := make([]Key, 0, len(refs))
	for _, ref := range refs {
		id, _ := normalizeID(ref.ID)
		keys = append(keys, Key{Type: ref.Type, ID: id})
	}
	return keys, nil
}

// normalizeID maps a wire id (string, number or null) to an integer.
func normalizeID(raw gojson.RawMessage) (int64, string) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return UnassignedID, ""
	}
	s := string(trimmed)
	if trimmed[0] == '"' {
		if err := gojson.Unmarshal(trimmed, &s); err != nil {
			return UnassignedID, string(trimmed)
		}
	}
	s = strings.TrimSpace(s)
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 0 {
		return UnassignedID, s
	}
	return id, s
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTimestamp(s *string) (*time.Time, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	v := strings.TrimSpace(*s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, errors.Newf(errors.ErrorTypeData, "unrecognized timestamp %q", v)
}

// ParseTimestamp parses the timestamp formats accepted in attributes.
func ParseTimestamp(s string) (time.Time, bool) {
	t, err := parseTimestamp(&s)
	if err != nil || t == nil {
		return time.Time{}, false
	}
	return *t, true
}

// NewResource builds a resource from Go values, applying the same
// timestamp parsing as Decode. attributes may be any JSON-encodable value.
func NewResource(typ string, id int64, attributes interface{}, relationships map[string][]Key) (Resource, error) {
	w := wireResource{Type: typ, ID: gojson.RawMessage(strconv.FormatInt(id, 10))}
	if id == UnassignedID {
		w.ID = gojson.RawMessage(`"unassigned"`)
	}
	if attributes != nil {
		raw, err := gojson.Marshal(attributes)
		if err != nil {
			return Resource{}, errors.Wrap(err, errors.ErrorTypeData, "invalid attributes")
		}
		w.Attributes = raw
	}
	res, err := w.resource()
	if err != nil {
		return Resource{}, err
	}
	if len(relationships) > 0 {
		res.relationships = make(map[string][]Key, len(relationships))
		for name, refs := range relationships {
			res.relationships[name] = append([]Key(nil), refs...)
		}
	}
	return res, nil
}
