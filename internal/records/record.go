// Package records defines the bibliographic record shelfscan builds from a
// lookup and uploads to the remote library.
package records

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"shelfscan/internal/language"
	"shelfscan/internal/services"
)

// ItemTypeBook is the item type assigned to every looked-up volume.
const ItemTypeBook = "book"

// Creator is one contributor to a record.
type Creator struct {
	CreatorType string `json:"creatorType"`
	Name        string `json:"name"`
}

// Record is the subset of a remote library item that shelfscan fills in.
// Field names follow the remote item schema.
type Record struct {
	ItemType  string    `json:"itemType"`
	Title     string    `json:"title"`
	Creators  []Creator `json:"creators,omitempty"`
	ISBN      string    `json:"ISBN,omitempty"`
	ISSN      string    `json:"ISSN,omitempty"`
	Publisher string    `json:"publisher,omitempty"`
	Date      string    `json:"date,omitempty"`
	NumPages  string    `json:"numPages,omitempty"`
	Language  string    `json:"language,omitempty"`
}

// Normalized returns a copy with whitespace trimmed, text in Unicode NFC and
// the language reduced to a short tag. Creators with empty names are dropped.
func (r Record) Normalized() Record {
	out := Record{
		ItemType:  strings.TrimSpace(r.ItemType),
		Title:     clean(r.Title),
		ISBN:      strings.TrimSpace(r.ISBN),
		ISSN:      strings.TrimSpace(r.ISSN),
		Publisher: clean(r.Publisher),
		Date:      strings.TrimSpace(r.Date),
		NumPages:  strings.TrimSpace(r.NumPages),
		Language:  language.Normalize(r.Language),
	}
	if out.ItemType == "" {
		out.ItemType = ItemTypeBook
	}
	for _, c := range r.Creators {
		name := clean(c.Name)
		if name == "" {
			continue
		}
		kind := strings.TrimSpace(c.CreatorType)
		if kind == "" {
			kind = "author"
		}
		out.Creators = append(out.Creators, Creator{CreatorType: kind, Name: name})
	}
	return out
}

func clean(s string) string {
	return norm.NFC.String(strings.Join(strings.Fields(s), " "))
}

// Validate reports records that cannot be uploaded.
func (r Record) Validate() error {
	if strings.TrimSpace(r.ItemType) == "" {
		return services.Wrap(services.ErrValidation, "records", "validate", "item type required", nil)
	}
	if strings.TrimSpace(r.Title) == "" {
		return services.Wrap(services.ErrValidation, "records", "validate", "title required", nil)
	}
	return nil
}

// Decode parses a stored record payload.
func Decode(payload []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return Record{}, services.Wrap(services.ErrParse, "records", "decode", "invalid record payload", err)
	}
	return rec, nil
}

type uploadBody struct {
	Items []Record `json:"items"`
}

// UploadPayload builds the {"items":[...]} document accepted by the remote
// library's item creation endpoint.
func UploadPayload(recs []Record) ([]byte, error) {
	if len(recs) == 0 {
		return nil, services.Wrap(services.ErrValidation, "records", "upload payload", "no records", nil)
	}
	items := make([]Record, 0, len(recs))
	for i, rec := range recs {
		rec = rec.Normalized()
		if err := rec.Validate(); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		items = append(items, rec)
	}
	data, err := json.Marshal(uploadBody{Items: items})
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "records", "upload payload", "encode", err)
	}
	return data, nil
}
