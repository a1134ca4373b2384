// Package codegen implements the optional typed-wrapper generator: given
// a loaded catalog.Catalog and a whitelist/blacklist/minimal selection,
// it emits one Go type per selected message, each a thin wrapper around
// *wire.Message with typed field accessors. A generated type never
// duplicates field storage — it always reads/writes through the same
// Message/Catalog pair the uniform runtime representation uses, so
// generated code can never drift out of sync with hand-built
// wire.Message use.
package codegen

import (
	"sort"
	"strings"
	"unicode"

	"lsts.pt/imc/catalog"
)

// Selection narrows a catalog to the message types a generation run
// should emit.
type Selection struct {
	Whitelist []string // abbrevs to include; empty means "all"
	Blacklist []string // abbrevs to exclude
	Minimal   bool     // restrict to catalog.MinimalAbbrevs regardless of white/blacklist
}

// Select resolves sel against cat, returning the chosen descriptors in
// ascending id order.
func Select(cat *catalog.Catalog, sel Selection) []*catalog.MessageDescriptor {
	if sel.Minimal {
		out := make([]*catalog.MessageDescriptor, 0, len(catalog.MinimalAbbrevs))
		for _, abbrev := range catalog.MinimalAbbrevs {
			if md, ok := cat.ByAbbrev(abbrev); ok {
				out = append(out, md)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		return out
	}

	minimal := toSet(catalog.MinimalAbbrevs)
	blacklisted := toSet(sel.Blacklist)
	var whitelisted map[string]bool
	if len(sel.Whitelist) > 0 {
		whitelisted = toSet(sel.Whitelist)
	}

	var out []*catalog.MessageDescriptor
	for _, md := range cat.Messages() {
		if !minimal[md.Abbrev] {
			if whitelisted != nil && !whitelisted[md.Abbrev] {
				continue
			}
			if blacklisted[md.Abbrev] {
				continue
			}
		}
		out = append(out, md)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

// GroupByCategory partitions descs by their schema category, each group
// retaining ascending-id order; the generator writes one file per group.
// Messages with no category land under "Uncategorized".
func GroupByCategory(descs []*catalog.MessageDescriptor) map[string][]*catalog.MessageDescriptor {
	groups := map[string][]*catalog.MessageDescriptor{}
	for _, md := range descs {
		cat := md.Category
		if cat == "" {
			cat = "Uncategorized"
		}
		groups[cat] = append(groups[cat], md)
	}
	return groups
}

// CategoryFileName renders a schema category name ("Vehicle Formation",
// "CPU") as a lowercase, underscore-separated file stem suitable for
// <stem>.go.
func CategoryFileName(category string) string {
	var b strings.Builder
	prevUnderscore := false
	for _, r := range category {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
			prevUnderscore = false
		default:
			if !prevUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				prevUnderscore = true
			}
		}
	}
	name := strings.Trim(b.String(), "_")
	if name == "" {
		return "messages"
	}
	return name
}
