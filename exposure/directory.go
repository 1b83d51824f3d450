// Package exposure provides exposure directories: the published list of
// contact ids reported by users who declared themselves sick.
package exposure

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("exposure")

// exposureList is the wire and file format shared by both directories.
type exposureList struct {
	IDs []string `json:"ids"`
}

func decodeList(raw []byte) ([]string, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return []string{}, nil
	}
	var list exposureList
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("parse exposure list: %w", err)
	}
	return normalizeIDs(list.IDs), nil
}

// normalizeIDs trims, drops empties and duplicates, and sorts.
func normalizeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
