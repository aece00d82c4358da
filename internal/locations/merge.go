package locations

import (
	"github.com/i474232898/tripcast/internal/weather"
)

// Every function in this file is pure: it never mutates its input slices and
// always returns a freshly allocated result.

// withoutColliding returns list minus every entry colliding with keys.
func withoutColliding(list []weather.Entry, keys weather.Keys) []weather.Entry {
	out := make([]weather.Entry, 0, len(list))
	for _, e := range list {
		if weather.KeysOf(e).Matches(keys) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// place inserts e at the requested end and truncates from the opposite end.
func place(list []weather.Entry, e weather.Entry, at InsertAt, limit int) []weather.Entry {
	if at == Top {
		return truncate(prepend(list, e), Top, limit)
	}
	return truncate(append(clone(list), e), Bottom, limit)
}

// truncate keeps at most limit entries, dropping from the end opposite to at.
func truncate(list []weather.Entry, at InsertAt, limit int) []weather.Entry {
	if limit < 0 {
		limit = 0
	}
	if len(list) <= limit {
		return list
	}
	if at == Top {
		return list[:limit]
	}
	return list[len(list)-limit:]
}

// mergeOne places a single new entry according to mode.
func mergeOne(prev []weather.Entry, e weather.Entry, at InsertAt, opts Options) []weather.Entry {
	if opts.Limit <= 0 {
		return []weather.Entry{}
	}
	if opts.Limit == 1 {
		return []weather.Entry{e}
	}

	keys := weather.KeysOf(e)

	switch opts.Mode {
	case ModeNewestTop:
		pinned := weather.NameKey(opts.PinnedName)
		without := withoutColliding(prev, keys)
		if keys.Name == pinned {
			return place(without, e, Top, opts.Limit)
		}
		if len(without) > 0 && weather.NameKey(without[0].Name) == pinned {
			return truncate(insertAt(without, 1, e), Top, opts.Limit)
		}
		return place(without, e, Top, opts.Limit)

	case ModePinFirst:
		if len(prev) == 0 {
			return []weather.Entry{e}
		}
		if weather.KeysOf(prev[0]).Matches(keys) {
			rest := withoutColliding(prev[1:], keys)
			return truncate(prepend(rest, e), Top, opts.Limit)
		}
		rest := withoutColliding(prev[1:], keys)
		return truncate(insertAt(prepend(rest, prev[0]), 1, e), Top, opts.Limit)

	default:
		return place(withoutColliding(prev, keys), e, at, opts.Limit)
	}
}

// dedupe keeps the first occurrence of every colliding group, at most limit
// of them. A negative limit keeps all.
func dedupe(list []weather.Entry, limit int) []weather.Entry {
	seen := weather.NewKeySet()
	out := make([]weather.Entry, 0, len(list))
	for _, e := range list {
		if limit >= 0 && len(out) >= limit {
			break
		}
		k := weather.KeysOf(e)
		if seen.Has(k) {
			continue
		}
		seen.Add(k)
		out = append(out, e)
	}
	return out
}

// mergeBatch merges already de-duplicated incoming entries into prev.
func mergeBatch(prev, incoming []weather.Entry, at InsertAt, limit int) []weather.Entry {
	if limit <= 0 {
		return []weather.Entry{}
	}

	seen := weather.NewKeySet()
	for _, e := range incoming {
		seen.Add(weather.KeysOf(e))
	}

	base := make([]weather.Entry, 0, len(prev))
	for _, e := range prev {
		if seen.Has(weather.KeysOf(e)) {
			continue
		}
		base = append(base, e)
	}

	var merged []weather.Entry
	if at == Top {
		merged = append(clone(incoming), base...)
		return dedupe(merged, limit)
	}
	merged = append(base, incoming...)
	return truncate(dedupe(merged, -1), Bottom, limit)
}

// move relocates the element at from to index to, shifting the others.
func move(list []weather.Entry, from, to int) ([]weather.Entry, bool) {
	if from < 0 || from >= len(list) || to < 0 || to >= len(list) || from == to {
		return list, false
	}
	out := clone(list)
	moved := out[from]
	out = append(out[:from], out[from+1:]...)
	return insertAt(out, to, moved), true
}

// remove drops the element at index.
func remove(list []weather.Entry, index int) ([]weather.Entry, bool) {
	if index < 0 || index >= len(list) {
		return list, false
	}
	out := make([]weather.Entry, 0, len(list)-1)
	out = append(out, list[:index]...)
	return append(out, list[index+1:]...), true
}

// replaceMatching swaps every entry of list that has a fresh counterpart.
func replaceMatching(list []weather.Entry, fresh []weather.Entry) ([]weather.Entry, int) {
	out := clone(list)
	replaced := 0
	for i, e := range out {
		keys := weather.KeysOf(e)
		for _, f := range fresh {
			if keys.Matches(weather.KeysOf(f)) {
				f.Provenance = e.Provenance
				f.Name = e.Name
				if f.ID == "" {
					f.ID = e.ID
				}
				out[i] = f
				replaced++
				break
			}
		}
	}
	return out, replaced
}

func prepend(list []weather.Entry, e weather.Entry) []weather.Entry {
	out := make([]weather.Entry, 0, len(list)+1)
	out = append(out, e)
	return append(out, list...)
}

func insertAt(list []weather.Entry, i int, e weather.Entry) []weather.Entry {
	if i > len(list) {
		i = len(list)
	}
	out := make([]weather.Entry, 0, len(list)+1)
	out = append(out, list[:i]...)
	out = append(out, e)
	return append(out, list[i:]...)
}

func clone(list []weather.Entry) []weather.Entry {
	return append(make([]weather.Entry, 0, len(list)), list...)
}
