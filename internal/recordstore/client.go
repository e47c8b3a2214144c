// Package recordstore is the client side of the generic record API the remote
// repositories persist through.
package recordstore

import (
	"context"
	"encoding/json"
	"fmt"
)

// Client performs record operations against one project of the store.
type Client interface {
	FetchRecords(ctx context.Context, table string, params FetchParams) (*FetchResponse, error)
	GetRecordByID(ctx context.Context, table string, id int64, params FetchParams) (*RecordResponse, error)
	CreateRecords(ctx context.Context, table string, records []Fields) (*MutationResponse, error)
	UpdateRecords(ctx context.Context, table string, records []Fields) (*MutationResponse, error)
	DeleteRecords(ctx context.Context, table string, ids []int64) (*MutationResponse, error)
}

// Fields is a record body as sent to the store. A nil value clears the field.
type Fields map[string]any

// Sort directions.
const (
	SortAsc  = "ASC"
	SortDesc = "DESC"
)

// OperatorExactMatch is the equality operator of a where condition.
const OperatorExactMatch = "ExactMatch"

// FetchParams selects, filters, orders and pages records.
type FetchParams struct {
	Fields     []string    `json:"fields,omitempty"`
	Where      []Condition `json:"where,omitempty"`
	OrderBy    []OrderBy   `json:"orderBy,omitempty"`
	PagingInfo *Paging     `json:"pagingInfo,omitempty"`
}

// Condition filters a fetch on one field.
type Condition struct {
	FieldName string `json:"fieldName"`
	Operator  string `json:"operator"`
	Values    []any  `json:"values"`
}

// OrderBy sorts a fetch on one field.
type OrderBy struct {
	FieldName string `json:"fieldName"`
	SortType  string `json:"SortType"`
}

// Paging limits a fetch.
type Paging struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// FetchResponse is the result of FetchRecords.
type FetchResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message,omitempty"`
	Data    []json.RawMessage `json:"data"`
}

// RecordResponse is the result of GetRecordByID. Data is empty when the record does not exist.
type RecordResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data"`
}

// Found reports whether the response carries a record.
func (r *RecordResponse) Found() bool {
	if r == nil || !r.Success || len(r.Data) == 0 {
		return false
	}
	return string(r.Data) != "null"
}

// MutationResponse is the result of a create, update or delete call.
type MutationResponse struct {
	Success bool     `json:"success"`
	Message string   `json:"message,omitempty"`
	Results []Result `json:"results"`
}

// Result is the per-record outcome of a mutation.
type Result struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// First returns the first per-record result when the call and that record succeeded.
func (r *MutationResponse) First() (Result, error) {
	if r == nil {
		return Result{}, fmt.Errorf("empty response")
	}
	if !r.Success {
		return Result{}, fmt.Errorf("request failed: %s", r.Message)
	}
	if len(r.Results) == 0 {
		return Result{}, fmt.Errorf("no results")
	}
	first := r.Results[0]
	if !first.Success {
		return Result{}, fmt.Errorf("record rejected: %s", first.Message)
	}
	return first, nil
}

// Succeeded returns the successful per-record results in input order.
func (r *MutationResponse) Succeeded() []Result {
	if r == nil {
		return nil
	}
	out := make([]Result, 0, len(r.Results))
	for _, res := range r.Results {
		if res.Success {
			out = append(out, res)
		}
	}
	return out
}
