package apiclient

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
)

const (
	DefaultSortBy = "dateEdited"
	DefaultSort   = "desc"
)

// ListParams are the named request options shared by every list endpoint.
// AuthToken is carried for the transport only and never becomes part of a
// cache key.
type ListParams struct {
	Offset   *int              `json:"offset,omitempty"`
	Limit    *int              `json:"limit,omitempty"`
	Search   string            `json:"search,omitempty"`
	SortBy   string            `json:"sortBy,omitempty"`
	Sort     string            `json:"sort,omitempty"`
	Filters  map[string]string `json:"filters,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`

	AuthToken string `json:"-"`
}

// Int returns a pointer to v, for ListParams.Offset and ListParams.Limit.
func Int(v int) *int { return &v }

// Paged reports whether both offset and limit are set.
func (p ListParams) Paged() bool { return p.Offset != nil && p.Limit != nil }

// Values renders the params as a query string. Sorting falls back to
// dateEdited/desc and metadata uses the bracketed metadata[key]=value form.
func (p ListParams) Values() url.Values {
	v := url.Values{}
	if p.Offset != nil {
		v.Set("offset", strconv.Itoa(*p.Offset))
	}
	if p.Limit != nil {
		v.Set("limit", strconv.Itoa(*p.Limit))
	}
	if p.Search != "" {
		v.Set("search", p.Search)
	}
	sortBy := p.SortBy
	if sortBy == "" {
		sortBy = DefaultSortBy
	}
	order := p.Sort
	if order == "" {
		order = DefaultSort
	}
	v.Set("sortBy", sortBy)
	v.Set("sort", order)

	for _, k := range sortedKeys(p.Filters) {
		if p.Filters[k] != "" {
			v.Set(k, p.Filters[k])
		}
	}
	for _, k := range sortedKeys(p.Metadata) {
		v.Set(fmt.Sprintf("metadata[%s]", k), p.Metadata[k])
	}
	return v
}

// CacheKey is the stable form of the params used inside a query key.
func (p ListParams) CacheKey() string {
	b, _ := json.Marshal(p)
	return string(b)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
