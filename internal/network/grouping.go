package network

// ResultItem is one element returned by a trace, tagged with the key of the
// network source it belongs to. Ref is opaque to everything but the provider
// that produced it.
type ResultItem struct {
	GroupKey string
	Ref      any
}

// ResolvedItem is one feature fetched for a traced element during the
// per-group fan-out.
type ResolvedItem struct {
	ID         string
	Attributes map[string]any
}

// GroupedRequest is one fan-out unit: the subset of trace results that share
// a group key and have a local target to fetch into.
type GroupedRequest struct {
	Key   string
	Items []ResultItem
}

// GroupItems partitions trace results by group key, preserving both the
// first-seen order of keys and the order of items within each key. Keys
// without a matching target are not an error; they are returned separately so
// the caller can report them as skipped. The returned slice fixes the fan-out
// count before any sub-request is dispatched.
func GroupItems(items []ResultItem, hasTarget func(key string) bool) (matched []GroupedRequest, skipped []string) {
	index := make(map[string]int)
	skippedSeen := make(map[string]bool)

	for _, item := range items {
		if !hasTarget(item.GroupKey) {
			if !skippedSeen[item.GroupKey] {
				skippedSeen[item.GroupKey] = true
				skipped = append(skipped, item.GroupKey)
			}
			continue
		}
		i, ok := index[item.GroupKey]
		if !ok {
			i = len(matched)
			index[item.GroupKey] = i
			matched = append(matched, GroupedRequest{Key: item.GroupKey})
		}
		matched[i].Items = append(matched[i].Items, item)
	}
	return matched, skipped
}
