package providers

// CleanSchemaForProvider strips JSON-schema keywords a provider's
// validator rejects. Anthropic's input_schema accepts the standard
// object/properties/required trio but not draft-specific annotations
// some tool authors attach; OpenAI-compatible gateways vary, so the
// cleaning is conservative: drop $schema/$id/definitions and recurse.
func CleanSchemaForProvider(provider string, schema map[string]interface{}) map[string]interface{} {
	if schema == nil {
		return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
	}
	return cleanSchema(schema)
}

// CleanToolSchemas applies CleanSchemaForProvider across a tool list,
// returning the provider wire shape.
func CleanToolSchemas(provider string, tools []ToolDefinition) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(tools))
	for _, t := range tools {
		out = append(out, map[string]interface{}{
			"type": "function",
			"function": map[string]interface{}{
				"name":        t.Function.Name,
				"description": t.Function.Description,
				"parameters":  CleanSchemaForProvider(provider, t.Function.Parameters),
			},
		})
	}
	return out
}

var droppedSchemaKeys = map[string]bool{
	"$schema":     true,
	"$id":         true,
	"definitions": true,
	"$defs":       true,
}

func cleanSchema(schema map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(schema))
	for k, v := range schema {
		if droppedSchemaKeys[k] {
			continue
		}
		switch vv := v.(type) {
		case map[string]interface{}:
			out[k] = cleanSchema(vv)
		case []interface{}:
			cleaned := make([]interface{}, 0, len(vv))
			for _, item := range vv {
				if m, ok := item.(map[string]interface{}); ok {
					cleaned = append(cleaned, cleanSchema(m))
				} else {
					cleaned = append(cleaned, item)
				}
			}
			out[k] = cleaned
		default:
			out[k] = v
		}
	}
	return out
}
