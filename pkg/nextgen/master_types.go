package nextgen

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// MasterCodes is the list of master code categories.
type MasterCodes struct {
	Codes      []string `json:"codes"`
	TotalCount int      `json:"total_count"`
}

func newMasterCodes(codes []string) *MasterCodes {
	if codes == nil {
		codes = []string{}
	}
	return &MasterCodes{Codes: codes, TotalCount: len(codes)}
}

// ByPattern returns the categories containing pattern, case-insensitively.
func (m *MasterCodes) ByPattern(pattern string) []string {
	p := strings.ToLower(pattern)
	out := []string{}
	for _, c := range m.Codes {
		if strings.Contains(strings.ToLower(c), p) {
			out = append(out, c)
		}
	}
	return out
}

// Has reports whether category is present (exact match).
func (m *MasterCodes) Has(category string) bool {
	for _, c := range m.Codes {
		if c == category {
			return true
		}
	}
	return false
}

// CodeCategory describes a master code category.
type CodeCategory struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Active      bool       `json:"active"`
	CreatedDate *time.Time `json:"created_date,omitempty"`
	LastUpdated *time.Time `json:"last_updated,omitempty"`
}

func (c *CodeCategory) UnmarshalJSON(b []byte) error {
	var raw struct {
		Name        string  `json:"name"`
		Description string  `json:"description"`
		Active      *bool   `json:"active"`
		CreatedDate *string `json:"created_date"`
		LastUpdated *string `json:"last_updated"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*c = CodeCategory{
		Name:        raw.Name,
		Description: raw.Description,
		Active:      raw.Active == nil || *raw.Active,
		CreatedDate: parseLenientTime(raw.CreatedDate),
		LastUpdated: parseLenientTime(raw.LastUpdated),
	}
	return nil
}

var lenientLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// parseLenientTime accepts RFC 3339 (with or without zone) or a bare date.
// Anything else yields nil.
func parseLenientTime(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	for _, layout := range lenientLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return &t
		}
	}
	return nil
}

// CodeDetail is one code within a category.
type CodeDetail struct {
	Code           string         `json:"code"`
	Description    string         `json:"description"`
	Category       string         `json:"category,omitempty"`
	Active         bool           `json:"active"`
	DisplayOrder   *int           `json:"display_order,omitempty"`
	AdditionalData map[string]any `json:"additional_data,omitempty"`
}

// UnmarshalJSON accepts either an object or a bare scalar. A scalar becomes
// both code and description. Active defaults to true.
func (d *CodeDetail) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '{' {
		s := string(b)
		var str string
		if err := json.Unmarshal(b, &str); err == nil {
			s = str
		}
		*d = CodeDetail{Code: s, Description: s, Active: true}
		return nil
	}

	var raw struct {
		Code           json.RawMessage `json:"code"`
		Description    string          `json:"description"`
		Category       string          `json:"category"`
		Active         *bool           `json:"active"`
		DisplayOrder   *int            `json:"display_order"`
		AdditionalData map[string]any  `json:"additional_data"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*d = CodeDetail{
		Code:           scalarString(raw.Code),
		Description:    raw.Description,
		Category:       raw.Category,
		Active:         raw.Active == nil || *raw.Active,
		DisplayOrder:   raw.DisplayOrder,
		AdditionalData: raw.AdditionalData,
	}
	return nil
}

// scalarString renders a JSON scalar without quotes; numeric codes are common.
func scalarString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
