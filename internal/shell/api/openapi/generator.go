// Package openapi provides reflective OpenAPI 3.0 specification generation
// for the planner API.
package openapi

import (
	"encoding/json"
	"net/http"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
)

// =============================================================================
// Generator
// =============================================================================

// Generator produces OpenAPI 3.0 specifications by reflecting on the request
// and response types of registered operations.
type Generator struct {
	title       string
	version     string
	description string
	servers     []string
	operations  []Operation
	mu          sync.RWMutex
	cachedSpec  *openapi3.T
}

// Operation describes one route for spec generation.
type Operation struct {
	Method      string // e.g. http.MethodPut
	Path        string // chi-style path, e.g. "/api/v1/sessions/{id}/plan"
	OperationID string
	Summary     string
	Tag         string

	// Request is a zero value of the JSON request body type, or nil.
	Request any

	// Responses maps status codes to a zero value of the body type.
	// A nil body documents a response without content.
	Responses map[int]any
}

// Option configures the generator.
type Option func(*Generator)

// WithTitle sets the API title.
func WithTitle(title string) Option {
	return func(g *Generator) {
		g.title = title
	}
}

// WithVersion sets the API version.
func WithVersion(version string) Option {
	return func(g *Generator) {
		g.version = version
	}
}

// WithDescription sets the API description.
func WithDescription(description string) Option {
	return func(g *Generator) {
		g.description = description
	}
}

// WithServer adds a server URL.
func WithServer(url string) Option {
	return func(g *Generator) {
		g.servers = append(g.servers, url)
	}
}

// NewGenerator creates a new OpenAPI generator.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		title:       "Rollout Planner API",
		version:     "1.0.0",
		description: "Plan and submit phased deployments to device fleets",
		servers:     []string{"http://localhost:8080"},
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Register adds operations to the generator.
func (g *Generator) Register(ops ...Operation) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.operations = append(g.operations, ops...)
	g.cachedSpec = nil
}

// Generate produces the complete OpenAPI 3.0 specification.
func (g *Generator) Generate() *openapi3.T {
	g.mu.RLock()
	if g.cachedSpec != nil {
		spec := g.cachedSpec
		g.mu.RUnlock()
		return spec
	}
	g.mu.RUnlock()

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cachedSpec != nil {
		return g.cachedSpec
	}

	spec := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       g.title,
			Version:     g.version,
			Description: g.description,
		},
		Servers: make(openapi3.Servers, 0, len(g.servers)),
		Paths:   &openapi3.Paths{},
		Components: &openapi3.Components{
			Schemas: make(openapi3.Schemas),
		},
	}

	for _, url := range g.servers {
		spec.Servers = append(spec.Servers, &openapi3.Server{URL: url})
	}

	for _, op := range g.operations {
		g.addOperation(spec, op)
	}

	g.cachedSpec = spec
	return spec
}

// Handler returns an HTTP handler that serves the OpenAPI specification.
func (g *Generator) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		spec := g.Generate()

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")

		if err := json.NewEncoder(w).Encode(spec); err != nil {
			http.Error(w, "Failed to encode OpenAPI spec", http.StatusInternalServerError)
		}
	}
}

// =============================================================================
// Operation Generation
// =============================================================================

func (g *Generator) addOperation(spec *openapi3.T, op Operation) {
	item := spec.Paths.Value(op.Path)
	if item == nil {
		item = &openapi3.PathItem{Parameters: pathParameters(op.Path)}
		spec.Paths.Set(op.Path, item)
	}

	operation := &openapi3.Operation{
		OperationID: op.OperationID,
		Summary:     op.Summary,
		Responses:   &openapi3.Responses{},
	}
	if op.Tag != "" {
		operation.Tags = []string{op.Tag}
	}

	if op.Request != nil {
		operation.RequestBody = &openapi3.RequestBodyRef{
			Value: openapi3.NewRequestBody().
				WithJSONSchemaRef(g.componentRef(spec, op.Request)),
		}
	}

	codes := make([]int, 0, len(op.Responses))
	for code := range op.Responses {
		codes = append(codes, code)
	}
	sort.Ints(codes)

	for _, code := range codes {
		resp := openapi3.NewResponse().WithDescription(http.StatusText(code))
		if body := op.Responses[code]; body != nil {
			resp = resp.WithJSONSchemaRef(g.componentRef(spec, body))
		}
		operation.Responses.Set(strconv.Itoa(code), &openapi3.ResponseRef{Value: resp})
	}

	item.SetOperation(op.Method, operation)
}

// componentRef registers model's schema under its type name and returns a
// reference to it.
func (g *Generator) componentRef(spec *openapi3.T, model any) *openapi3.SchemaRef {
	t := reflect.TypeOf(model)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	name := t.Name()
	if _, ok := spec.Components.Schemas[name]; !ok {
		spec.Components.Schemas[name] = g.extractSchema(model)
	}
	return openapi3.NewSchemaRef("#/components/schemas/"+name, nil)
}

// pathParameters declares every {name} segment of path as a required string.
func pathParameters(path string) openapi3.Parameters {
	var params openapi3.Parameters
	for _, seg := range strings.Split(path, "/") {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			p := openapi3.NewPathParameter(strings.Trim(seg, "{}")).
				WithSchema(openapi3.NewStringSchema())
			params = append(params, &openapi3.ParameterRef{Value: p})
		}
	}
	return params
}

// =============================================================================
// Schema Generation
// =============================================================================

// extractSchema extracts an OpenAPI schema from a Go struct.
func (g *Generator) extractSchema(model any) *openapi3.SchemaRef {
	t := reflect.TypeOf(model)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	schema := &openapi3.Schema{
		Type:       &openapi3.Types{"object"},
		Properties: make(openapi3.Schemas),
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		if !field.IsExported() {
			continue
		}

		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}

		name := field.Name
		if jsonTag != "" {
			parts := strings.Split(jsonTag, ",")
			if parts[0] != "" {
				name = parts[0]
			}
		}

		if propSchema := g.goTypeToSchema(field.Type); propSchema != nil {
			schema.Properties[name] = propSchema
		}
	}

	return &openapi3.SchemaRef{Value: schema}
}

// goTypeToSchema converts a Go type to an OpenAPI schema.
func (g *Generator) goTypeToSchema(t reflect.Type) *openapi3.SchemaRef {
	switch t.Kind() {
	case reflect.String:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}}

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}}

	case reflect.Int64:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int64"}}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}}}

	case reflect.Float32, reflect.Float64:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"number"}}}

	case reflect.Bool:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}}

	case reflect.Slice, reflect.Array:
		return &openapi3.SchemaRef{
			Value: &openapi3.Schema{
				Type:  &openapi3.Types{"array"},
				Items: g.goTypeToSchema(t.Elem()),
			},
		}

	case reflect.Map:
		return &openapi3.SchemaRef{
			Value: &openapi3.Schema{
				Type:                 &openapi3.Types{"object"},
				AdditionalProperties: openapi3.AdditionalProperties{Schema: g.goTypeToSchema(t.Elem())},
			},
		}

	case reflect.Ptr:
		schema := g.goTypeToSchema(t.Elem())
		if schema != nil && schema.Value != nil {
			schema.Value.Nullable = true
		}
		return schema

	case reflect.Struct:
		if t == reflect.TypeOf(time.Time{}) {
			return &openapi3.SchemaRef{
				Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "date-time"},
			}
		}
		return g.extractSchema(reflect.New(t).Interface())

	default:
		// interface{} values such as update_control_map entries
		return &openapi3.SchemaRef{Value: &openapi3.Schema{}}
	}
}
