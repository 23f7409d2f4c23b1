package honcho

// MetadataEq matches a metadata key equal to value.
func MetadataEq(value any) MetadataFilter {
	return MetadataFilter{Op: "eq", Value: value}
}

// MetadataIn matches a metadata key equal to any of values.
func MetadataIn(values ...any) MetadataFilter {
	return MetadataFilter{Op: "in", Value: values}
}

// FilterParams is the friendly form of SearchFilters.
type FilterParams struct {
	SessionIDs []string
	PeerIDs    []string
	Metadata   map[string]MetadataFilter
	Since      string
	Until      string
}

// BuildSearchFilters renders p. A single session id is sent as a scalar,
// several as an array.
func BuildSearchFilters(p FilterParams) *SearchFilters {
	f := &SearchFilters{
		PeerIDs:  p.PeerIDs,
		Metadata: p.Metadata,
		Since:    p.Since,
		Until:    p.Until,
	}
	switch len(p.SessionIDs) {
	case 0:
	case 1:
		f.SessionID = p.SessionIDs[0]
	default:
		f.SessionID = p.SessionIDs
	}
	return f
}

// FiltersForSession restricts a search to one session.
func FiltersForSession(sessionID string) *SearchFilters {
	return &SearchFilters{SessionID: sessionID}
}
