package changes

import (
	"context"
	"log/slog"
	"sort"

	"github.com/hazyhaar/restyle/dom"
	"github.com/hazyhaar/restyle/selector"
)

// Report summarises one ApplyAll run.
type Report struct {
	Keys     int      `json:"keys"`
	Elements int      `json:"elements"` // matched elements, summed over keys
	Applied  int      `json:"applied"`  // property writes that succeeded
	Skipped  []string `json:"skipped,omitempty"`
}

// ApplyAll writes every recorded property of cs onto every element of doc
// matching the key's selector. A key whose selector does not parse or
// whose query fails is logged and skipped; the remaining keys still run.
// Applying the same set twice yields the same document state.
func ApplyAll(ctx context.Context, cs ChangeSet, doc dom.Document, logger *slog.Logger) Report {
	if logger == nil {
		logger = slog.Default()
	}

	keys := make([]string, 0, len(cs))
	for k := range cs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var rep Report
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			logger.Warn("changes: replay interrupted", "error", err)
			return rep
		}
		rep.Keys++

		sel := selector.ToSelector(key)
		logger.Debug("changes: applying", "key", key, "selector", sel)

		els, err := doc.QuerySelectorAll(ctx, sel)
		if err != nil {
			logger.Warn("changes: skipping key", "key", key, "selector", sel, "error", err)
			rep.Skipped = append(rep.Skipped, key)
			continue
		}
		rep.Elements += len(els)

		for _, el := range els {
			for name, value := range cs[key] {
				prop, err := Lookup(name)
				if err != nil {
					logger.Warn("changes: skipping property", "key", key, "property", name)
					continue
				}
				if err := prop.Apply(ctx, el, value); err != nil {
					logger.Warn("changes: apply failed", "key", key, "property", name, "error", err)
					continue
				}
				rep.Applied++
			}
		}
	}
	return rep
}
