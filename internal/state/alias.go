package state

// resolveAlias follows name through aliases. A cycle stops at the last name
// reached before revisiting.
func resolveAlias(aliases map[string]string, name string) string {
	current := name
	visited := make(map[string]bool, len(aliases))
	for {
		next, ok := aliases[current]
		if !ok || next == "" {
			return current
		}
		if visited[current] {
			return current
		}
		visited[current] = true
		current = next
	}
}

// flattenAliases points every alias straight at its canonical name and drops
// entries that resolve to themselves. It reports whether anything changed.
func flattenAliases(aliases map[string]string) bool {
	// Resolve against a snapshot so the result does not depend on map order.
	snapshot := make(map[string]string, len(aliases))
	for k, v := range aliases {
		snapshot[k] = v
	}

	changed := false
	for key, current := range snapshot {
		if current == "" {
			delete(aliases, key)
			changed = true
			continue
		}
		resolved := resolveAlias(snapshot, key)
		switch {
		case resolved == key:
			delete(aliases, key)
			changed = true
		case resolved != current:
			aliases[key] = resolved
			changed = true
		}
	}
	return changed
}
