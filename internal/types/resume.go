// Package types provides type definitions for structured data used throughout the flash-resume service.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ResumeData is the structured resume record accepted by the compile-json endpoint.
type ResumeData struct {
	PersonalInfo PersonalInfo `json:"personalInfo"`
	Sections     []Section    `json:"sections" validate:"dive"`
	Theme        string       `json:"theme,omitempty"`
}

// PersonalInfo holds the author's identity and contact details.
// Optional fields are nil when absent so they can be omitted from generated markup.
type PersonalInfo struct {
	Firstname string   `json:"firstname" validate:"required"`
	Lastname  string   `json:"lastname" validate:"required"`
	Email     string   `json:"email" validate:"required"`
	Homepage  *string  `json:"homepage,omitempty"`
	Phone     *string  `json:"phone,omitempty"`
	GitHub    *string  `json:"github,omitempty"`
	Twitter   *string  `json:"twitter,omitempty"`
	Scholar   *string  `json:"scholar,omitempty"`
	ORCID     *string  `json:"orcid,omitempty"`
	Birth     *string  `json:"birth,omitempty"`
	LinkedIn  *string  `json:"linkedin,omitempty"`
	Address   *string  `json:"address,omitempty"`
	Positions []string `json:"positions,omitempty"`
}

// Section is a titled group of items. Order of sections is layout order.
type Section struct {
	Type  string `json:"type,omitempty"`
	Title string `json:"title" validate:"required"`
	Items []Item `json:"items" validate:"dive"`
}

// Item is a single content-function invocation within a section.
type Item struct {
	Type string `json:"type" validate:"required"`
	Data Fields `json:"data"`
}

// Field is one named argument of an item, in the order it appeared in the request.
type Field struct {
	Key   string
	Value any
}

// Fields is an ordered key/value list decoded from a JSON object.
// encoding/json maps do not keep key order, and argument order is visible in generated markup.
type Fields []Field

// UnmarshalJSON decodes a JSON object keeping key order.
func (f *Fields) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*f = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("item data must be a JSON object")
	}

	fields := Fields{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("item data key must be a string")
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("item data %q: %w", key, err)
		}
		fields = append(fields, Field{Key: key, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*f = fields
	return nil
}

// MarshalJSON encodes the fields as a JSON object in their stored order.
func (f Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, field := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(field.Key)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(field.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Get returns the value stored under key.
func (f Fields) Get(key string) (any, bool) {
	for _, field := range f {
		if field.Key == key {
			return field.Value, true
		}
	}
	return nil, false
}

// Validate validates the ResumeData using the validator.
func (r *ResumeData) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}
