package ctxstore

// ResolveConfig deep-walks a node's config tree, replacing every string
// leaf containing a {{...}} template with its interpolated value. Maps
// and slices are copied; other leaf types pass through unchanged.
func (s *Snapshot) ResolveConfig(config map[string]any) (map[string]any, error) {
	resolved, err := s.resolveValue(config)
	if err != nil {
		return nil, err
	}
	return resolved.(map[string]any), nil
}

func (s *Snapshot) resolveValue(v any) (any, error) {
	switch val := v.(type) {
	case string:
		return s.Interpolate(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, vv := range val {
			r, err := s.resolveValue(vv)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, vv := range val {
			r, err := s.resolveValue(vv)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return v, nil
	}
}
