package discovery

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/apilens/apilens/internal/core"
)

func mustDoc(t *testing.T, raw string) map[string]any {
	t.Helper()
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))
	return doc
}

func TestParseOpenAPIv3(t *testing.T) {
	doc := mustDoc(t, `{
	  "openapi": "3.0.1",
	  "security": [{"bearerAuth": []}],
	  "paths": {
	    "/pets/{id}": {
	      "parameters": [
	        {"name": "id", "in": "path", "required": true, "schema": {"type": "string"}},
	        {"name": "trace", "in": "header", "schema": {"type": "boolean"}}
	      ],
	      "get": {
	        "summary": "Get pet",
	        "parameters": [{"name": "trace", "in": "header", "description": " override ", "schema": {"type": "string"}}]
	      },
	      "delete": {"security": []},
	      "options": {"summary": "ignored"},
	      "head": {}
	    },
	    "/health": {
	      "get": {"description": "Liveness", "security": []}
	    }
	  }
	}`)

	endpoints := ParseOpenAPI(doc)
	require.Equal(t, []core.DiscoveredEndpoint{
		{Path: "/health", Method: "GET", Description: "Liveness"},
		{
			Path:        "/pets/{id}",
			Method:      "GET",
			Description: "Get pet",
			Parameters: []core.Parameter{
				{Name: "id", In: "path", Type: "string", Required: true},
				{Name: "trace", In: "header", Type: "string", Description: "override"},
			},
			Authentication: true,
		},
		{
			Path:   "/pets/{id}",
			Method: "DELETE",
			Parameters: []core.Parameter{
				{Name: "id", In: "path", Type: "string", Required: true},
				{Name: "trace", In: "header", Type: "boolean"},
			},
		},
	}, endpoints)
}

func TestParseOpenAPIDegradesGracefully(t *testing.T) {
	doc := mustDoc(t, `{
	  "swagger": "2.0",
	  "paths": {
	    "/broken": "not an object",
	    "/partial": {
	      "get": "not an operation",
	      "post": {
	        "summary": 42,
	        "parameters": ["bad", {"in": "query"}, {"name": "q", "in": "query", "required": "yes"}]
	      }
	    }
	  }
	}`)

	endpoints := ParseOpenAPI(doc)
	require.Len(t, endpoints, 1)
	require.Equal(t, "POST", endpoints[0].Method)
	require.Empty(t, endpoints[0].Description)
	require.Equal(t, []core.Parameter{{Name: "q", In: "query"}}, endpoints[0].Parameters)
}

func TestParseOpenAPIWithoutPaths(t *testing.T) {
	require.Nil(t, ParseOpenAPI(map[string]any{"swagger": "2.0"}))
	require.Nil(t, ParseOpenAPI(nil))
}

func TestIsOpenAPIDocument(t *testing.T) {
	require.True(t, IsOpenAPIDocument(map[string]any{"swagger": "2.0"}))
	require.True(t, IsOpenAPIDocument(map[string]any{"openapi": "3.1.0"}))
	require.True(t, IsOpenAPIDocument(map[string]any{"paths": map[string]any{}}))
	require.False(t, IsOpenAPIDocument(map[string]any{"data": 1}))
	require.False(t, IsOpenAPIDocument(nil))
}

func TestDocumentTitle(t *testing.T) {
	require.Equal(t, "Billing", DocumentTitle(map[string]any{"info": map[string]any{"title": " Billing "}}))
	require.Empty(t, DocumentTitle(map[string]any{}))
}
