package googlebooks

import (
	"bytes"
	"encoding/json"
	"strings"

	"shelfscan/internal/isbn"
	"shelfscan/internal/records"
	"shelfscan/internal/services"
)

const volumesKind = "books#volumes"

type volumesResponse struct {
	Kind       string          `json:"kind"`
	TotalItems int             `json:"totalItems"`
	Items      json.RawMessage `json:"items"`
}

type volume struct {
	VolumeInfo *volumeInfo `json:"volumeInfo"`
}

type volumeInfo struct {
	Title               string       `json:"title"`
	Subtitle            string       `json:"subtitle"`
	Authors             []string     `json:"authors"`
	Publisher           string       `json:"publisher"`
	PublishedDate       string       `json:"publishedDate"`
	PageCount           json.Number  `json:"pageCount"`
	Language            string       `json:"language"`
	IndustryIdentifiers []identifier `json:"industryIdentifiers"`
}

type identifier struct {
	Type       string `json:"type"`
	Identifier string `json:"identifier"`
}

// Translate maps a volumes search response for code onto records, one per
// volume that carries volume info. A well-formed response without volumes
// yields services.ErrNotFound.
func Translate(code string, body []byte) ([]records.Record, error) {
	var resp volumesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, services.Wrap(services.ErrParse, "googlebooks", "translate", "invalid json", err)
	}
	if resp.Kind != volumesKind {
		return nil, services.Wrap(services.ErrParse, "googlebooks", "translate", "unexpected kind "+resp.Kind, nil)
	}

	raw := bytes.TrimSpace(resp.Items)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		if resp.TotalItems == 0 {
			return nil, services.Wrap(services.ErrNotFound, "googlebooks", "translate", "no volumes for "+code, nil)
		}
		return nil, services.Wrap(services.ErrParse, "googlebooks", "translate", "missing items", nil)
	}
	var volumes []volume
	if err := json.Unmarshal(raw, &volumes); err != nil {
		return nil, services.Wrap(services.ErrParse, "googlebooks", "translate", "items is not an array", err)
	}

	out := make([]records.Record, 0, len(volumes))
	for _, v := range volumes {
		if v.VolumeInfo == nil {
			continue
		}
		out = append(out, translateVolume(code, v.VolumeInfo))
	}
	if len(out) == 0 {
		return nil, services.Wrap(services.ErrNotFound, "googlebooks", "translate", "no volumes for "+code, nil)
	}
	return out, nil
}

func translateVolume(code string, info *volumeInfo) records.Record {
	rec := records.Record{
		ItemType:  records.ItemTypeBook,
		Title:     info.Title,
		Publisher: info.Publisher,
		Date:      info.PublishedDate,
		NumPages:  info.PageCount.String(),
		Language:  info.Language,
	}
	if strings.TrimSpace(info.Subtitle) != "" {
		rec.Title = info.Title + ": " + info.Subtitle
	}
	for _, name := range info.Authors {
		rec.Creators = append(rec.Creators, records.Creator{CreatorType: "author", Name: name})
	}

	id, issn := bestIdentifier(code, info.IndustryIdentifiers)
	if issn {
		rec.ISSN = id
	} else {
		rec.ISBN = id
	}
	return rec.Normalized()
}

// bestIdentifier starts from the searched code and prefers the longer form of
// the first listed identifier that matches it. The second result reports
// whether that identifier is an ISSN.
func bestIdentifier(code string, ids []identifier) (string, bool) {
	best, issn := code, false
	for _, id := range ids {
		value := strings.TrimSpace(id.Identifier)
		if best == "" {
			best, issn = value, id.Type == "ISSN"
		}
		if isbn.Match(value, code) {
			if value != best && len(best) < len(value) {
				best, issn = value, id.Type == "ISSN"
			}
			break
		}
	}
	return best, issn
}
