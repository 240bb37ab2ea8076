package nsi

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Document is a SOAP message parsed into nested maps. Element and attribute
// names are stripped of their namespace prefix; repeated siblings collapse
// into a []any. Leaf elements become their text content, except that a few
// well-known keys are coerced to uuid.UUID or time.Time (see coerce).
type Document map[string]any

// ParseDocument parses a SOAP or plain XML payload into a Document.
func ParseDocument(data []byte) (Document, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			return nil, fmt.Errorf("empty XML document")
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse XML: %w", err)
		}
		if start, ok := token.(xml.StartElement); ok {
			value, err := parseElement(decoder, start)
			if err != nil {
				return nil, err
			}
			root := Document{}
			addChild(root, start.Name.Local, value)
			return root, nil
		}
	}
}

// parseElement consumes everything up to the matching end tag and returns the
// element's value. Non-whitespace text content wins over attributes and
// children: <LabelGroup labeltype="...">1330-1429</LabelGroup> parses to the
// string "1330-1429". Elements without text become a map of their attributes
// and children.
func parseElement(decoder *xml.Decoder, start xml.StartElement) (any, error) {
	children := map[string]any{}
	for _, attr := range start.Attr {
		if attr.Name.Space == "xmlns" || attr.Name.Local == "xmlns" {
			continue
		}
		children[attr.Name.Local] = attr.Value
	}

	var text strings.Builder
	for {
		token, err := decoder.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to parse XML: %w", err)
		}
		switch t := token.(type) {
		case xml.StartElement:
			value, err := parseElement(decoder, t)
			if err != nil {
				return nil, err
			}
			addChild(children, t.Name.Local, value)
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			if content := strings.TrimSpace(text.String()); content != "" {
				return coerce(start.Name.Local, content), nil
			}
			return children, nil
		}
	}
}

// addChild inserts a value under key, turning repeated siblings into a list.
func addChild(parent map[string]any, key string, value any) {
	existing, ok := parent[key]
	if !ok {
		parent[key] = value
		return
	}
	if list, ok := existing.([]any); ok {
		parent[key] = append(list, value)
		return
	}
	parent[key] = []any{existing, value}
}

// coerce converts the text of well-known leaf elements to a typed value.
// Correlation ids arrive with an urn:uuid: prefix which is stripped first.
func coerce(name, text string) any {
	switch name {
	case "connectionId", "correlationId", "globalReservationId":
		raw := strings.TrimPrefix(text, "urn:uuid:")
		if id, err := uuid.Parse(raw); err == nil {
			return id
		}
	case "timeStamp", "startTime", "endTime":
		if ts, err := time.Parse(time.RFC3339, text); err == nil {
			return ts
		}
	}
	return text
}

// Dig walks a Document along a sequence of keys. A nil/false return means
// some key along the path was missing or the intermediate value was not a map.
func (d Document) Dig(keys ...string) (any, bool) {
	var current any = map[string]any(d)
	for _, key := range keys {
		m, ok := current.(map[string]any)
		if !ok {
			if doc, isDoc := current.(Document); isDoc {
				m = map[string]any(doc)
			} else {
				return nil, false
			}
		}
		current, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// DigString returns the string value at the path, or "" when absent or not a
// string.
func (d Document) DigString(keys ...string) string {
	value, ok := d.Dig(keys...)
	if !ok {
		return ""
	}
	s, _ := value.(string)
	return s
}

// DigUUID returns the UUID value at the path.
func (d Document) DigUUID(keys ...string) (uuid.UUID, bool) {
	value, ok := d.Dig(keys...)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := value.(uuid.UUID)
	return id, ok
}

// List normalizes a value that may be a single element or a list of elements
// into a slice. XML has no way to distinguish a one-element list from a
// scalar, so every repeated-element site goes through this.
func List(value any) []any {
	switch v := value.(type) {
	case nil:
		return nil
	case []any:
		return v
	default:
		return []any{v}
	}
}

// Header returns the parsed nsiHeader from the SOAP header block.
func (d Document) Header() (map[string]any, bool) {
	value, ok := d.Dig("Envelope", "Header", "nsiHeader")
	if !ok {
		return nil, false
	}
	m, ok := value.(map[string]any)
	return m, ok
}

// CorrelationID extracts the correlationId from the SOAP header.
func (d Document) CorrelationID() (uuid.UUID, bool) {
	return d.DigUUID("Envelope", "Header", "nsiHeader", "correlationId")
}

// Body returns the single element inside the SOAP body along with its local
// name.
func (d Document) Body() (string, map[string]any, bool) {
	value, ok := d.Dig("Envelope", "Body")
	if !ok {
		return "", nil, false
	}
	body, ok := value.(map[string]any)
	if !ok {
		return "", nil, false
	}
	for name, child := range body {
		m, ok := child.(map[string]any)
		if !ok {
			m = map[string]any{}
		}
		return name, m, true
	}
	return "", nil, false
}

// ServiceError is a serviceException returned by a provider, either inside a
// SOAP fault on a synchronous reply or inside an errorEvent callback.
type ServiceError struct {
	NsaID   string
	ErrorID string
	Text    string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("provider %s reported error %s: %s", e.NsaID, e.ErrorID, e.Text)
}

// Fault extracts a ServiceError from a SOAP fault reply. It returns nil when
// the document is not a fault.
func (d Document) Fault() *ServiceError {
	value, ok := d.Dig("Envelope", "Body", "Fault")
	if !ok {
		return nil
	}
	fault, ok := value.(map[string]any)
	if !ok {
		return nil
	}
	serr := &ServiceError{}
	if detail, ok := fault["detail"].(map[string]any); ok {
		if exc, ok := detail["serviceException"].(map[string]any); ok {
			serr.NsaID, _ = exc["nsaId"].(string)
			serr.ErrorID, _ = exc["errorId"].(string)
			serr.Text, _ = exc["text"].(string)
		}
	}
	if serr.Text == "" {
		serr.Text, _ = fault["faultstring"].(string)
	}
	return serr
}

// ServiceException extracts a ServiceError from an element that carries a
// serviceException child, such as an errorEvent or reserveFailed body.
func ServiceException(body map[string]any) *ServiceError {
	exc, ok := body["serviceException"].(map[string]any)
	if !ok {
		return nil
	}
	serr := &ServiceError{}
	serr.NsaID, _ = exc["nsaId"].(string)
	serr.ErrorID, _ = exc["errorId"].(string)
	serr.Text, _ = exc["text"].(string)
	return serr
}
