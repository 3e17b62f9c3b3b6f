package ledger

import (
	"context"
	"sort"
	"strings"

	"finbot/internal/core"
)

func (l *Ledger) cached(key string, load func() ([]string, error)) ([]string, error) {
	if l.opts.Cache != nil {
		if v, ok := l.opts.Cache.Get(l.spreadsheetID + "/" + key); ok {
			return append([]string(nil), v...), nil
		}
	}
	v, err := load()
	if err != nil {
		return nil, err
	}
	if l.opts.Cache != nil {
		l.opts.Cache.Set(l.spreadsheetID+"/"+key, append([]string(nil), v...))
	}
	return v, nil
}

// Counterparties lists the distinct counterparties of the Finance sheet,
// sorted case-insensitively.
func (l *Ledger) Counterparties(ctx context.Context) ([]string, error) {
	return l.cached("counterparties", func() ([]string, error) {
		rows, err := l.Rows(ctx)
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(rows))
		for _, r := range rows {
			names = append(names, r.Counterparty)
		}
		return dedupeSorted(names), nil
	})
}

// Classifications lists up to limit distinct classifications, most recently
// used first. Transfer legs are skipped.
func (l *Ledger) Classifications(ctx context.Context, limit int) ([]string, error) {
	all, err := l.cached("classifications", func() ([]string, error) {
		rows, err := l.Rows(ctx)
		if err != nil {
			return nil, err
		}
		sortNewestFirst(rows)
		seen := map[string]struct{}{}
		var out []string
		for _, r := range rows {
			c := strings.TrimSpace(r.Classification)
			if c == "" || r.Kind == core.KindTransfer || c == core.TransferClassification {
				continue
			}
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// Balances sums every Finance row per counterparty.
func (l *Ledger) Balances(ctx context.Context) (core.Overview, error) {
	rows, err := l.Rows(ctx)
	if err != nil {
		return core.Overview{}, err
	}
	return core.Balances(rows), nil
}

// Classify sums the Finance rows of a period per classification.
func (l *Ledger) Classify(ctx context.Context, p core.Period) (core.Overview, error) {
	rows, err := l.Rows(ctx)
	if err != nil {
		return core.Overview{}, err
	}
	return core.ByClassification(rows, p, l.opts.Now()), nil
}

func dedupeSorted(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i]) < strings.ToLower(out[j])
	})
	return out
}
