package discovery

import (
	"strings"

	"github.com/apilens/apilens/internal/core"
)

// introspectionQuery asks only for the root query type; the response is
// not inspected beyond confirming a schema exists.
const introspectionQuery = `{"query":"query IntrospectionQuery { __schema { queryType { name } } }"}`

func isGraphQLPath(path string) bool {
	return strings.HasSuffix(path, "/graphql")
}

// isIntrospectionResult reports whether body is a GraphQL response carrying
// a schema.
func isIntrospectionResult(body map[string]any) bool {
	data, ok := body["data"].(map[string]any)
	if !ok {
		return false
	}
	_, ok = data["__schema"].(map[string]any)
	return ok
}

func graphQLEndpoint(path string) core.DiscoveredEndpoint {
	return core.DiscoveredEndpoint{
		Path:        path,
		Method:      "POST",
		Description: "GraphQL endpoint",
		Parameters: []core.Parameter{
			{Name: "query", In: "body", Type: "string", Required: true, Description: "GraphQL query document"},
			{Name: "variables", In: "body", Type: "object"},
		},
	}
}
