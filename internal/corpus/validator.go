package corpus

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/pkg/errors"
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// MalformedDocumentError reports a collection record that could not be
// decoded or validated. It matches apperrors.ErrMalformedDocument.
type MalformedDocumentError struct {
	Collection string
	Position   int
	Err        error
}

func (e *MalformedDocumentError) Error() string {
	return fmt.Sprintf("%s[%d]: %v", e.Collection, e.Position, e.Err)
}

func (e *MalformedDocumentError) Unwrap() []error {
	return []error{apperrors.ErrMalformedDocument, e.Err}
}

// requiredFields mirrors the keys a record must carry. Pointers tell a
// missing or null key apart from an empty string, which is accepted.
type requiredFields struct {
	ID     *string `json:"id"`
	Source *struct {
		Name *string `json:"name"`
		URL  *string `json:"url"`
	} `json:"source"`
	Metadata *struct {
		Title  *string `json:"title"`
		Author *string `json:"author"`
		Text   *string `json:"text"`
	} `json:"metadata"`
}

// Decode parses one collection record. Required keys must be present with
// string values; empty strings are valid and an empty text simply indexes
// as a zero-length document.
func Decode(raw []byte) (Document, error) {
	var req requiredFields
	if err := json.Unmarshal(raw, &req); err != nil {
		return Document{}, err
	}
	errs := make(map[string]string)
	if req.ID == nil {
		errs["id"] = "id is required"
	}
	if req.Source == nil || req.Source.Name == nil {
		errs["source.name"] = "source name is required"
	}
	if req.Source == nil || req.Source.URL == nil {
		errs["source.url"] = "url is required"
	}
	if req.Metadata == nil || req.Metadata.Title == nil {
		errs["metadata.title"] = "title is required"
	}
	if req.Metadata == nil || req.Metadata.Author == nil {
		errs["metadata.author"] = "author is required"
	}
	if req.Metadata == nil || req.Metadata.Text == nil {
		errs["metadata.text"] = "text is required"
	}
	if len(errs) > 0 {
		return Document{}, &ValidationError{Fields: errs}
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Document{}, err
	}
	if err := Validate(&doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// Validate checks field values: the source URL must be an absolute http or
// https URL.
func Validate(doc *Document) error {
	if msg := checkURL(doc.Source.URL); msg != "" {
		return &ValidationError{Fields: map[string]string{"source.url": msg}}
	}
	return nil
}

func checkURL(raw string) string {
	if raw == "" {
		return "url is required"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "url is not parseable"
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "url must use http or https"
	}
	if u.Host == "" {
		return "url must be absolute"
	}
	return ""
}
