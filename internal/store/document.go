package store

import (
	"encoding/json"
	"fmt"
	"maps"
)

// Field names of a raw event record.
const (
	FieldID          = "id"
	FieldTitle       = "title"
	FieldDate        = "date"
	FieldDescription = "description"
	FieldCategory    = "category"
	FieldCountry     = "country"
	FieldIsPersonal  = "isPersonal"
	FieldUserID      = "userId"
	FieldColor       = "color"
	FieldCreatedAt   = "createdAt"
	FieldUpdatedAt   = "updatedAt"
	FieldImportedBy  = "importedBy"
)

// Document is a raw, loosely typed event record as stored.
type Document map[string]any

// ID returns the record's identifier, or "".
func (d Document) ID() string {
	return d.String(FieldID)
}

// String returns the field as a string when it is one.
func (d Document) String(key string) string {
	if s, ok := d[key].(string); ok {
		return s
	}
	return ""
}

// Clone returns a shallow copy. Nil clones to an empty document.
func (d Document) Clone() Document {
	out := make(Document, len(d)+4)
	maps.Copy(out, d)
	return out
}

// EncodeDocument serializes a document as JSON.
func EncodeDocument(d Document) ([]byte, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	return data, nil
}

// DecodeDocument is the inverse of EncodeDocument.
func DecodeDocument(data []byte) (Document, error) {
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	return d, nil
}
