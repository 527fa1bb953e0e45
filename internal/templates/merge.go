package templates

// DeepMerge applies patch onto base key by key and returns base.
// Nested objects present on both sides merge field by field; any other patch value overwrites.
func DeepMerge(base, patch map[string]any) map[string]any {
	if base == nil {
		base = make(map[string]any, len(patch))
	}
	for key, value := range patch {
		patchObj, patchIsObj := value.(map[string]any)
		baseObj, baseIsObj := base[key].(map[string]any)
		if patchIsObj && baseIsObj {
			base[key] = DeepMerge(baseObj, patchObj)
			continue
		}
		base[key] = value
	}
	return base
}
