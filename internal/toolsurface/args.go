package toolsurface

import "github.com/browseragent/control-plane/internal/errs"

func argString(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", errs.New(errs.InvalidParameter, "missing required argument: "+key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", errs.New(errs.InvalidParameter, key+" must be a non-empty string")
	}
	return s, nil
}

func argStringOpt(args map[string]any, key, def string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return def
}

func argInt(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

func argBool(args map[string]any, key string, def bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return def
}

func argMap(args map[string]any, key string) map[string]any {
	if v, ok := args[key].(map[string]any); ok {
		return v
	}
	return nil
}

func argStringSlice(args map[string]any, key string) ([]string, error) {
	v, ok := args[key]
	if !ok {
		return nil, errs.New(errs.InvalidParameter, "missing required argument: "+key)
	}
	list, ok := v.([]any)
	if !ok {
		return nil, errs.New(errs.InvalidParameter, key+" must be an array")
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, errs.New(errs.InvalidParameter, key+" must be an array of strings")
		}
		out = append(out, s)
	}
	return out, nil
}
