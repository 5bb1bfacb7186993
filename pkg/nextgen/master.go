package nextgen

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

const masterBasePath = "/master"

// MasterService wraps the /master endpoints.
type MasterService struct {
	d      *Dispatcher
	logger *zap.Logger
}

// SearchOptions narrows a category search. Zero values are omitted.
type SearchOptions struct {
	Term  string
	Limit int
}

// Codes returns all master code categories.
func (s *MasterService) Codes(ctx context.Context) (*MasterCodes, error) {
	resp, err := s.d.Execute(ctx, Request{
		Name:     "master.codes",
		Method:   http.MethodGet,
		Endpoint: masterBasePath + "/codes",
	})
	if err != nil {
		return nil, err
	}

	var codes []string
	if err := resp.Decode(&codes); err != nil {
		return nil, err
	}
	if !isJSONArray(resp.Body) {
		return nil, &Error{Kind: KindAPI, Message: "expected a list of master codes", StatusCode: resp.StatusCode, Body: resp.Body}
	}
	return newMasterCodes(codes), nil
}

// CodeDetails returns the codes in category.
func (s *MasterService) CodeDetails(ctx context.Context, category string) ([]CodeDetail, error) {
	return s.SearchCodes(ctx, category, SearchOptions{})
}

// SearchCodes queries category with an optional search term and limit.
// The limit is also applied locally since the server may ignore it.
func (s *MasterService) SearchCodes(ctx context.Context, category string, opts SearchOptions) ([]CodeDetail, error) {
	if strings.TrimSpace(category) == "" {
		return nil, validationError("category is required")
	}
	if opts.Limit < 0 {
		return nil, validationError("limit must not be negative, got %d", opts.Limit)
	}

	query := url.Values{}
	if opts.Term != "" {
		query.Set("search", opts.Term)
	}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}

	name := "master.code_details"
	if len(query) > 0 {
		name = "master.search_codes"
	}
	resp, err := s.d.Execute(ctx, Request{
		Name:     name,
		Method:   http.MethodGet,
		Endpoint: masterBasePath + "/codes/" + url.PathEscape(category),
		Query:    query,
	})
	if err != nil {
		return nil, err
	}

	if !resp.JSON || !isJSONArray(resp.Body) {
		s.logger.Warn("nextgen.master.unexpected_payload",
			zap.String("category", category),
			zap.Int("status", resp.StatusCode))
		return []CodeDetail{}, nil
	}

	var details []CodeDetail
	if err := resp.Decode(&details); err != nil {
		return nil, err
	}
	for i := range details {
		details[i].Category = category
	}
	if details == nil {
		details = []CodeDetail{}
	}
	if opts.Limit > 0 && len(details) > opts.Limit {
		details = details[:opts.Limit]
	}
	return details, nil
}

// Category returns the metadata of category. Deployments that answer
// /master/codes/{category} with a list carry no metadata; the result then
// holds only the name and Active.
func (s *MasterService) Category(ctx context.Context, category string) (*CodeCategory, error) {
	if strings.TrimSpace(category) == "" {
		return nil, validationError("category is required")
	}
	resp, err := s.d.Execute(ctx, Request{
		Name:     "master.category",
		Method:   http.MethodGet,
		Endpoint: masterBasePath + "/codes/" + url.PathEscape(category),
	})
	if err != nil {
		return nil, err
	}

	out := &CodeCategory{Name: category, Active: true}
	if !resp.JSON || !isJSONObject(resp.Body) {
		return out, nil
	}
	if err := resp.Decode(out); err != nil {
		return nil, err
	}
	if out.Name == "" {
		out.Name = category
	}
	return out, nil
}

// CodesByPattern returns the categories containing pattern, case-insensitively.
func (s *MasterService) CodesByPattern(ctx context.Context, pattern string) (*MasterCodes, error) {
	all, err := s.Codes(ctx)
	if err != nil {
		return nil, err
	}
	return newMasterCodes(all.ByPattern(pattern)), nil
}

// CodeExists reports whether category is a known master code category.
func (s *MasterService) CodeExists(ctx context.Context, category string) (bool, error) {
	all, err := s.Codes(ctx)
	if err != nil {
		return false, err
	}
	return all.Has(category), nil
}

func isJSONArray(b []byte) bool {
	var shape []json.RawMessage
	return json.Unmarshal(b, &shape) == nil && shape != nil
}

func isJSONObject(b []byte) bool {
	var shape map[string]json.RawMessage
	return json.Unmarshal(b, &shape) == nil && shape != nil
}
