package apiclient

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Page is the paginated list envelope. List endpoints answer either with
// this envelope or with a bare array; both decode into a Page and Enveloped
// records which one arrived.
type Page[T any] struct {
	TotalCount int  `json:"totalCount"`
	TotalPages int  `json:"totalPages"`
	Data       []T  `json:"data"`
	Enveloped  bool `json:"enveloped,omitempty"`
}

// DecodePage decodes a list body in either wire form.
func DecodePage[T any](body []byte) (*Page[T], error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return &Page[T]{TotalPages: 1, Data: []T{}}, nil
	}

	if trimmed[0] == '[' {
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("decode list: %w", err)
		}
		return &Page[T]{TotalCount: len(items), TotalPages: 1, Data: items}, nil
	}

	var env struct {
		TotalCount int  `json:"totalCount"`
		TotalPages *int `json:"totalPages"`
		Data       []T  `json:"data"`
	}
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	p := &Page[T]{TotalCount: env.TotalCount, TotalPages: 1, Data: env.Data, Enveloped: true}
	if env.TotalPages != nil {
		p.TotalPages = *env.TotalPages
	}
	if p.Data == nil {
		p.Data = []T{}
	}
	return p, nil
}

// TotalPages computes ceil(total/limit), or 1 without a positive limit.
func TotalPages(total, limit int) int {
	if limit <= 0 {
		return 1
	}
	return (total + limit - 1) / limit
}
