package documents

// MergePatch aplica patch sobre dst (semántica JSON merge patch):
// - objetos se mezclan recursivamente
// - null elimina el campo
// - cualquier otro valor reemplaza
// Los campos de sistema del patch se ignoran.
func MergePatch(dst, patch Document) Document {
	out := dst.Clone()
	if out == nil {
		out = Document{}
	}
	for k, v := range patch {
		if k == FieldKey || k == FieldID || k == FieldRev {
			continue
		}
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = mergeValue(out[k], v)
	}
	return out
}

func mergeValue(cur, patch any) any {
	pm, ok := asMap(patch)
	if !ok {
		return cloneValue(patch)
	}
	cm, ok := asMap(cur)
	if !ok {
		cm = map[string]any{}
	}
	merged := map[string]any(Document(cm).Clone())
	for k, v := range pm {
		if v == nil {
			delete(merged, k)
			continue
		}
		merged[k] = mergeValue(merged[k], v)
	}
	return merged
}

func asMap(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case Document:
		return map[string]any(t), true
	default:
		return nil, false
	}
}
