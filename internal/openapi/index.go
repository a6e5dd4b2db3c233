// Package openapi indexes the forms API's OpenAPI document so resource
// definitions and outgoing request bodies can be checked against it.
package openapi

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// Operation is one indexed API operation.
type Operation struct {
	OperationID  string
	Method       string
	PathTemplate string
	// QueryParams lists the names of declared query parameters, sorted.
	QueryParams []string
	RequestBody *openapi3.RequestBody
}

// AcceptsQuery reports whether the operation declares the query parameter.
func (op Operation) AcceptsQuery(name string) bool {
	i := sort.SearchStrings(op.QueryParams, name)
	return i < len(op.QueryParams) && op.QueryParams[i] == name
}

// ValidationError describes a schema validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Index is an in-memory index of operations keyed by operationId and by
// method plus path template.
type Index struct {
	operations map[string]Operation
	byRoute    map[string]string // routeKey → operationID
	baseURL    string
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{
		operations: make(map[string]Operation),
		byRoute:    make(map[string]string),
	}
}

// routeKey normalizes "/forms/{form_id}/submissions/" and
// "/forms/{id}/submissions" to the same key.
func routeKey(method, path string) string {
	segs := strings.Split(strings.Trim(path, "/"), "/")
	for i, s := range segs {
		if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
			segs[i] = "{}"
		}
	}
	return strings.ToUpper(method) + " /" + strings.Join(segs, "/")
}

// Load parses the document at specPath and indexes every operation that
// carries an operationId.
func (idx *Index) Load(specPath string) error {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = false

	doc, err := loader.LoadFromFile(specPath)
	if err != nil {
		return fmt.Errorf("openapi: loading %s: %w", specPath, err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return fmt.Errorf("openapi: validating %s: %w", specPath, err)
	}
	if len(doc.Servers) > 0 {
		idx.baseURL = doc.Servers[0].URL
	}

	for path, pathItem := range doc.Paths.Map() {
		for method, op := range pathItem.Operations() {
			if op.OperationID == "" {
				continue
			}

			var query []string
			for _, refs := range []openapi3.Parameters{pathItem.Parameters, op.Parameters} {
				for _, ref := range refs {
					if ref.Value != nil && ref.Value.In == openapi3.ParameterInQuery {
						query = append(query, ref.Value.Name)
					}
				}
			}
			sort.Strings(query)

			var reqBody *openapi3.RequestBody
			if op.RequestBody != nil && op.RequestBody.Value != nil {
				reqBody = op.RequestBody.Value
			}

			idx.operations[op.OperationID] = Operation{
				OperationID:  op.OperationID,
				Method:       method,
				PathTemplate: path,
				QueryParams:  query,
				RequestBody:  reqBody,
			}
			idx.byRoute[routeKey(method, path)] = op.OperationID
		}
	}

	return nil
}

// BaseURL returns the first server URL of the document.
func (idx *Index) BaseURL() string { return idx.baseURL }

// Count returns the number of indexed operations.
func (idx *Index) Count() int { return len(idx.operations) }

// GetOperation returns the operation with the given operationId.
func (idx *Index) GetOperation(operationID string) (Operation, bool) {
	op, ok := idx.operations[operationID]
	return op, ok
}

// FindOperation returns the operation serving method on path. Path
// parameters match regardless of their names; trailing slashes are ignored.
// A concrete path such as "/forms/12/" matches the "/forms/{id}/" template;
// among several matching templates the one with fewest parameters wins.
func (idx *Index) FindOperation(method, path string) (Operation, bool) {
	key := routeKey(method, path)
	if id, ok := idx.byRoute[key]; ok {
		return idx.operations[id], true
	}

	want := strings.Split(key, "/")
	best, bestParams := "", -1
	for route, id := range idx.byRoute {
		n, ok := matchRoute(strings.Split(route, "/"), want)
		if !ok {
			continue
		}
		if bestParams < 0 || n < bestParams || (n == bestParams && id < best) {
			best, bestParams = id, n
		}
	}
	if bestParams < 0 {
		return Operation{}, false
	}
	return idx.operations[best], true
}

// matchRoute compares route key segments, letting "{}" match any segment,
// and returns how many parameters were used.
func matchRoute(template, path []string) (int, bool) {
	if len(template) != len(path) {
		return 0, false
	}
	params := 0
	for i := range template {
		switch {
		case template[i] == path[i]:
		case template[i] == "{}":
			params++
		default:
			return 0, false
		}
	}
	return params, true
}

// AllOperationIDs returns every indexed operationId, sorted.
func (idx *Index) AllOperationIDs() []string {
	ids := make([]string, 0, len(idx.operations))
	for id := range idx.operations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ValidateRequest checks body against the required properties of the JSON
// request schema of the operation serving method on path. Unknown routes
// and operations without a JSON body schema pass.
func (idx *Index) ValidateRequest(method, path string, body map[string]any) []ValidationError {
	op, ok := idx.FindOperation(method, path)
	if !ok || op.RequestBody == nil {
		return nil
	}

	ct := op.RequestBody.Content.Get("application/json")
	if ct == nil || ct.Schema == nil || ct.Schema.Value == nil {
		return nil
	}

	var errs []ValidationError
	for _, req := range ct.Schema.Value.Required {
		if _, exists := body[req]; !exists {
			errs = append(errs, ValidationError{
				Field:   req,
				Message: fmt.Sprintf("%s is required", req),
			})
		}
	}
	return errs
}
