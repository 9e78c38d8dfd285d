// Package corpus reads the document collections the index is built from.
// A collection is a JSON array of scraped documents stored as
// <dir>/<name>.json; collections are enumerated in name order and documents
// keep their position in the file.
package corpus

import "encoding/json"

// Origin identifies where a document was scraped from.
type Origin struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Metadata is the normalized content of a document. Only Text is indexed;
// the remaining fields are carried through to callers untouched.
type Metadata struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Videos      []string        `json:"videos"`
	Images      []string        `json:"images"`
	Price       json.RawMessage `json:"price"`
	Author      string          `json:"author"`
	Status      *string         `json:"status"`
	Category    *string         `json:"category"`
	Genre       []string        `json:"genre"`
	Rating      json.RawMessage `json:"rating"`
	Tags        []string        `json:"tags"`
	Platforms   []string        `json:"platforms"`
	Published   *string         `json:"published"`
	ExtraData   map[string]any  `json:"extra_data"`
	Text        string          `json:"text"`
}

// Document is one record of a collection.
type Document struct {
	ID       string   `json:"id"`
	Source   Origin   `json:"source"`
	Metadata Metadata `json:"metadata"`
}

// Collection is a named, ordered list of documents.
type Collection struct {
	Name      string
	Documents []Document
}
