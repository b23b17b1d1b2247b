package api

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/dpshade/pocket-capsules/internal/validation"
)

const swaggerHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Pocket Capsules API</title>
    <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@4.15.5/swagger-ui.css" />
    <style>
        html { box-sizing: border-box; overflow-y: scroll; }
        *, *:before, *:after { box-sizing: inherit; }
        body { margin:0; background: #fafafa; }
    </style>
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4.15.5/swagger-ui-bundle.js"></script>
    <script>
        window.onload = function() {
            window.ui = SwaggerUIBundle({
                url: '/api/openapi.json',
                dom_id: '#swagger-ui',
                deepLinking: true,
                presets: [SwaggerUIBundle.presets.apis],
            });
        };
    </script>
</body>
</html>`

// handleOpenAPI serves the Swagger UI page
func (s *APIServer) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, methodNotAllowed(r.Method))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(swaggerHTML))
}

// handleOpenAPISpec serves the OpenAPI JSON document
func (s *APIServer) handleOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, methodNotAllowed(r.Method))
		return
	}

	data, err := json.MarshalIndent(OpenAPIDocument(s.service.Validator()), "", "  ")
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// OpenAPIDocument describes the API. Request bodies of the form and capsule
// endpoints are generated from the validator's schemas, so the document
// cannot drift from what the server enforces.
func OpenAPIDocument(v *validation.Validator) *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       "Pocket Capsules API",
			Description: "Browse, search and validate the capsule catalog",
			Version:     "1.0.0",
		},
		Servers: openapi3.Servers{
			{URL: "http://localhost:8080", Description: "Local development server"},
		},
		Components: &openapi3.Components{
			Schemas: openapi3.Schemas{},
		},
		Paths: openapi3.NewPaths(),
	}

	schemas := doc.Components.Schemas
	schemas["Port"] = openapi3.NewSchemaRef("", portSchema())
	schemas["Capsule"] = openapi3.NewSchemaRef("", capsuleSchema())
	schemas["APIResponse"] = openapi3.NewSchemaRef("", envelopeSchema())
	schemas["ErrorResponse"] = openapi3.NewSchemaRef("", errorSchema())

	for _, name := range v.SchemaNames() {
		schema, _ := v.Schema(name)
		obj := objectSchema(schema.Fields)
		obj.Description = schema.Description
		schemas[name] = openapi3.NewSchemaRef("", obj)
	}

	envelope := schemaRef("APIResponse")
	failure := schemaRef("ErrorResponse")

	get := func(path, id, summary string, params ...*openapi3.Parameter) {
		op := operation(id, summary, envelope, failure)
		for _, p := range params {
			op.Parameters = append(op.Parameters, &openapi3.ParameterRef{Value: p})
		}
		item := doc.Paths.Value(path)
		if item == nil {
			item = &openapi3.PathItem{}
			doc.Paths.Set(path, item)
		}
		item.Get = op
	}

	get("/api/v1/capsules", "listCapsules", "List capsules",
		query("category", "Only capsules in this category"),
		query("tag", "Only capsules carrying this tag"),
		enumQuery("platform", "Only capsules for this platform", validation.Platforms),
		enumQuery("format", "Return full records or ids", []string{"json", "ids"}))
	get("/api/v1/capsules/{id}", "getCapsule", "Get a capsule",
		openapi3.NewPathParameter("id").WithSchema(openapi3.NewStringSchema()),
		query("code", "Set to false to omit the source code"))
	get("/api/v1/search", "searchCapsules", "Fuzzy search",
		query("q", "Search text"), query("category", "Restrict to a category"), query("limit", "Maximum results"))
	get("/api/v1/boolean-search", "booleanSearch", "Tag expression search",
		query("expr", "Expression such as 'forms AND NOT legacy'"))
	get("/api/v1/tags", "listTags", "List tags")
	get("/api/v1/categories", "listCategories", "List categories with counts")
	get("/api/v1/stats", "stats", "Catalog statistics")
	get("/api/v1/verify", "verify", "Verify catalog consistency")
	get("/api/v1/health", "health", "Health check")
	get("/api/v1/compat", "compat", "Check data type compatibility",
		query("from", "Output data type"), query("to", "Input data type"))
	get("/api/v1/connect", "connect", "Check a port-to-port connection",
		query("from", "Source as capsule.port; the port defaults to the first output"),
		query("to", "Target as capsule.port; the port defaults to the first input"),
		query("output", "Source output port, overriding the one in from"),
		query("input", "Target input port, overriding the one in to"))
	get("/api/v1/suggest", "suggest", "Capsules that can consume a data type",
		query("type", "Data type"))
	get("/api/v1/export", "export", "Catalog snapshot",
		query("metadata_only", "Omit capsule source code"))
	get("/api/v1/saved-searches", "listSavedSearches", "List saved searches")
	get("/api/v1/saved-search/{name}", "executeSavedSearch", "Run a saved search",
		openapi3.NewPathParameter("name").WithSchema(openapi3.NewStringSchema()),
		query("q", "Narrow the results with a fuzzy text query"))

	create := operation("createCapsule", "Add a capsule to the library", envelope, failure)
	create.RequestBody = jsonBody(schemaRef("capsule_submission"))
	doc.Paths.Value("/api/v1/capsules").Post = create

	remove := operation("deleteCapsule", "Remove a library capsule", envelope, failure)
	doc.Paths.Value("/api/v1/capsules/{id}").Delete = remove

	for _, name := range validation.FormSchemas {
		op := operation("submit_"+name, "Validate a "+name+" submission", envelope, failure)
		op.Tags = []string{"forms"}
		op.RequestBody = jsonBody(schemaRef(name))
		doc.Paths.Set("/api/v1/forms/"+name, &openapi3.PathItem{Post: op})
	}

	return doc
}

func operation(id, summary string, ok, failure *openapi3.SchemaRef) *openapi3.Operation {
	return &openapi3.Operation{
		OperationID: id,
		Summary:     summary,
		Responses: openapi3.NewResponses(
			openapi3.WithStatus(http.StatusOK, &openapi3.ResponseRef{
				Value: openapi3.NewResponse().WithDescription("Success").WithJSONSchemaRef(ok),
			}),
			openapi3.WithStatus(http.StatusBadRequest, &openapi3.ResponseRef{
				Value: openapi3.NewResponse().WithDescription("Invalid input").WithJSONSchemaRef(failure),
			}),
		),
	}
}

func jsonBody(ref *openapi3.SchemaRef) *openapi3.RequestBodyRef {
	return &openapi3.RequestBodyRef{
		Value: openapi3.NewRequestBody().WithRequired(true).WithJSONSchemaRef(ref),
	}
}

func schemaRef(name string) *openapi3.SchemaRef {
	return openapi3.NewSchemaRef("#/components/schemas/"+name, nil)
}

func query(name, description string) *openapi3.Parameter {
	return openapi3.NewQueryParameter(name).
		WithDescription(description).
		WithSchema(openapi3.NewStringSchema())
}

func enumQuery(name, description string, options []string) *openapi3.Parameter {
	schema := openapi3.NewStringSchema()
	for _, o := range options {
		schema.Enum = append(schema.Enum, o)
	}
	return openapi3.NewQueryParameter(name).WithDescription(description).WithSchema(schema)
}

// objectSchema converts validator fields to an object schema. Required lists
// only fields without a default, matching how defaults satisfy Required.
func objectSchema(fields map[string]validation.FieldValidator) *openapi3.Schema {
	obj := openapi3.NewObjectSchema()

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		field := fields[name]
		obj.Properties[name] = openapi3.NewSchemaRef("", fieldSchema(field))
		if field.Required && field.Default == nil {
			obj.Required = append(obj.Required, name)
		}
	}
	return obj
}

func fieldSchema(f validation.FieldValidator) *openapi3.Schema {
	var s *openapi3.Schema

	switch f.Type {
	case validation.TypeInt:
		s = openapi3.NewIntegerSchema()
	case validation.TypeNumber:
		s = openapi3.NewFloat64Schema()
	case validation.TypeBool:
		s = openapi3.NewBoolSchema()
	case validation.TypeObject:
		s = objectSchema(f.Fields)
	case validation.TypeArray:
		s = openapi3.NewArraySchema()
		if f.Items != nil {
			s.Items = openapi3.NewSchemaRef("", fieldSchema(*f.Items))
		}
		s.MinItems = uint64(f.MinItems)
		if f.MaxItems > 0 {
			n := uint64(f.MaxItems)
			s.MaxItems = &n
		}
	default:
		s = openapi3.NewStringSchema()
		s.Format = f.Format
		s.MinLength = uint64(f.MinLength)
		if f.MaxLength > 0 {
			n := uint64(f.MaxLength)
			s.MaxLength = &n
		}
		if f.Pattern != nil {
			s.Pattern = f.Pattern.String()
		}
		for _, o := range f.Options {
			s.Enum = append(s.Enum, o)
		}
	}

	s.Description = f.Description
	s.Default = f.Default
	s.Min = f.Min
	s.Max = f.Max
	return s
}

func portSchema() *openapi3.Schema {
	s := openapi3.NewObjectSchema().
		WithProperty("id", openapi3.NewStringSchema()).
		WithProperty("name", openapi3.NewStringSchema()).
		WithProperty("type", openapi3.NewStringSchema()).
		WithProperty("description", openapi3.NewStringSchema())
	s.Required = []string{"id", "type"}
	return s
}

func capsuleSchema() *openapi3.Schema {
	s := openapi3.NewObjectSchema()
	for _, name := range []string{
		"id", "name", "category", "description", "version", "author",
		"platform", "npmPackage", "documentation", "code",
	} {
		s.Properties[name] = openapi3.NewSchemaRef("", openapi3.NewStringSchema())
	}
	s.Properties["tags"] = openapi3.NewSchemaRef("", openapi3.NewArraySchema().WithItems(openapi3.NewStringSchema()))
	s.Properties["inputs"] = openapi3.NewSchemaRef("", openapi3.NewArraySchema().WithItems(portSchema()))
	s.Properties["outputs"] = openapi3.NewSchemaRef("", openapi3.NewArraySchema().WithItems(portSchema()))
	s.Required = []string{"id", "name", "category"}
	return s
}

func envelopeSchema() *openapi3.Schema {
	s := openapi3.NewObjectSchema().
		WithProperty("success", openapi3.NewBoolSchema()).
		WithProperty("data", openapi3.NewSchema()).
		WithProperty("message", openapi3.NewStringSchema()).
		WithProperty("timestamp", openapi3.NewDateTimeSchema())
	s.Required = []string{"success", "timestamp"}
	return s
}

func errorSchema() *openapi3.Schema {
	detail := openapi3.NewObjectSchema().
		WithProperty("code", openapi3.NewStringSchema()).
		WithProperty("message", openapi3.NewStringSchema()).
		WithProperty("details", openapi3.NewStringSchema()).
		WithProperty("errors", openapi3.NewArraySchema().WithItems(openapi3.NewStringSchema())).
		WithProperty("timestamp", openapi3.NewDateTimeSchema())
	detail.Required = []string{"code", "message"}

	s := openapi3.NewObjectSchema().
		WithProperty("success", openapi3.NewBoolSchema()).
		WithPropertyRef("error", openapi3.NewSchemaRef("", detail))
	s.Required = []string{"success", "error"}
	return s
}
