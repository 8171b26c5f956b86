package discovery

import (
	"sort"
	"strings"

	"github.com/apilens/apilens/internal/core"
)

// supportedMethods lists the operations read from a path item, in output order.
var supportedMethods = []string{"get", "post", "put", "patch", "delete"}

// IsOpenAPIDocument reports whether doc looks like a Swagger 2.x or
// OpenAPI 3.x document.
func IsOpenAPIDocument(doc map[string]any) bool {
	if doc == nil {
		return false
	}
	if _, ok := doc["swagger"]; ok {
		return true
	}
	if _, ok := doc["openapi"]; ok {
		return true
	}
	_, ok := doc["paths"].(map[string]any)
	return ok
}

// DocumentTitle returns info.title, or "" when absent.
func DocumentTitle(doc map[string]any) string {
	info, _ := doc["info"].(map[string]any)
	title, _ := info["title"].(string)
	return strings.TrimSpace(title)
}

// ParseOpenAPI lists the operations of a Swagger/OpenAPI document. Paths
// are sorted; methods follow supportedMethods. Fields that are missing or
// of the wrong type are skipped rather than failing the parse.
func ParseOpenAPI(doc map[string]any) []core.DiscoveredEndpoint {
	paths, ok := doc["paths"].(map[string]any)
	if !ok {
		return nil
	}

	globalAuth := hasSecurity(doc["security"])

	keys := make([]string, 0, len(paths))
	for path := range paths {
		keys = append(keys, path)
	}
	sort.Strings(keys)

	endpoints := make([]core.DiscoveredEndpoint, 0, len(keys))
	for _, path := range keys {
		item, ok := paths[path].(map[string]any)
		if !ok {
			continue
		}
		shared := parseParameters(item["parameters"])

		for _, method := range supportedMethods {
			op, ok := item[method].(map[string]any)
			if !ok {
				continue
			}

			auth := globalAuth
			if security, declared := op["security"]; declared {
				auth = hasSecurity(security)
			}

			endpoints = append(endpoints, core.DiscoveredEndpoint{
				Path:           path,
				Method:         strings.ToUpper(method),
				Description:    operationDescription(op),
				Parameters:     mergeParameters(shared, parseParameters(op["parameters"])),
				Authentication: auth,
			})
		}
	}

	return endpoints
}

func operationDescription(op map[string]any) string {
	if summary, ok := op["summary"].(string); ok && strings.TrimSpace(summary) != "" {
		return strings.TrimSpace(summary)
	}
	if description, ok := op["description"].(string); ok {
		return strings.TrimSpace(description)
	}
	return ""
}

func parseParameters(raw any) []core.Parameter {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}

	params := make([]core.Parameter, 0, len(list))
	for _, entry := range list {
		p, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		name, _ := p["name"].(string)
		if name == "" {
			continue
		}
		in, _ := p["in"].(string)
		required, _ := p["required"].(bool)
		description, _ := p["description"].(string)

		params = append(params, core.Parameter{
			Name:        name,
			In:          in,
			Type:        parameterType(p),
			Required:    required,
			Description: strings.TrimSpace(description),
		})
	}
	return params
}

// parameterType reads the Swagger 2 "type" or the OpenAPI 3 "schema.type".
func parameterType(p map[string]any) string {
	if t, ok := p["type"].(string); ok {
		return t
	}
	if schema, ok := p["schema"].(map[string]any); ok {
		if t, ok := schema["type"].(string); ok {
			return t
		}
		if _, ok := schema["$ref"]; ok {
			return "object"
		}
	}
	return ""
}

// mergeParameters overlays operation parameters on path-level ones, keyed
// by name and location.
func mergeParameters(shared, own []core.Parameter) []core.Parameter {
	if len(shared) == 0 {
		return own
	}

	merged := make([]core.Parameter, 0, len(shared)+len(own))
	overridden := make(map[string]bool, len(own))
	for _, p := range own {
		overridden[p.In+"/"+p.Name] = true
	}
	for _, p := range shared {
		if !overridden[p.In+"/"+p.Name] {
			merged = append(merged, p)
		}
	}
	return append(merged, own...)
}

func hasSecurity(raw any) bool {
	list, ok := raw.([]any)
	if !ok {
		return false
	}
	for _, entry := range list {
		if requirement, ok := entry.(map[string]any); ok && len(requirement) > 0 {
			return true
		}
	}
	return false
}
