package zotero

import (
	"encoding/json"
	"strconv"

	"shelfscan/internal/services"
)

type groupEntry struct {
	ID   int `json:"id"`
	Data struct {
		Name string `json:"name"`
	} `json:"data"`
}

// ParseGroups decodes a group listing into titles keyed by group id.
func ParseGroups(body []byte) (map[int]string, error) {
	var entries []groupEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, services.Wrap(services.ErrParse, "zotero", "parse groups", "invalid group list", err)
	}
	titles := make(map[int]string, len(entries))
	for _, e := range entries {
		if e.ID <= 0 {
			continue
		}
		titles[e.ID] = e.Data.Name
	}
	return titles, nil
}

type writeFailure struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// writeResponse is the per-index result document returned for writes.
type writeResponse struct {
	Success   map[string]string       `json:"success"`
	Unchanged map[string]string       `json:"unchanged"`
	Failed    map[string]writeFailure `json:"failed"`
}

func parseWriteResponse(body []byte) (writeResponse, error) {
	var resp writeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return writeResponse{}, services.Wrap(services.ErrParse, "zotero", "parse write response", "invalid json", err)
	}
	if resp.Success == nil && resp.Unchanged == nil && resp.Failed == nil {
		return writeResponse{}, services.Wrap(services.ErrParse, "zotero", "parse write response", "no result sections", nil)
	}
	return resp, nil
}

func (w writeResponse) failed(index int) (string, bool) {
	f, ok := w.Failed[strconv.Itoa(index)]
	if !ok {
		return "", false
	}
	if f.Message != "" {
		return f.Message, true
	}
	return (&services.StatusError{Code: f.Code}).Error(), true
}
