package query

import (
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/lazytail-go/lazytail/internal/metrics"
)

// Group is one distinct combination of group-by field values, with the
// origin line indices that produced it.
type Group struct {
	Key   []string
	Count int
	Lines []int
}

// GetLineFunc fetches a source line's text by line number.
type GetLineFunc func(n int) (string, bool)

// Aggregate implements spec §4.5's aggregation stage: for each matching
// line, extract the group-by field values, accumulate counts and origin
// indices per distinct key tuple, sort by count descending (ties broken
// by key ascending for determinism), and truncate to top N if set.
//
// Key tuples are deduplicated by an xxhash digest of their fields, used as
// the map key in place of the tuple itself; two distinct tuples with the
// same digest share one group.
func Aggregate(agg *Aggregation, extractor Extractor, lines []int, getLine GetLineFunc) []Group {
	groups := make(map[uint64]*Group)
	var order []uint64

	for _, ln := range lines {
		text, ok := getLine(ln)
		if !ok {
			continue
		}
		key := make([]string, len(agg.GroupBy))
		for i, fp := range agg.GroupBy {
			if v, present := extractor.Get(text, fp); present {
				key[i] = v.AsString()
			}
		}

		h := hashKey(key)
		g, exists := groups[h]
		if !exists {
			g = &Group{Key: key}
			groups[h] = g
			order = append(order, h)
		}
		g.Count++
		g.Lines = append(g.Lines, ln)
	}

	result := make([]Group, 0, len(order))
	for _, h := range order {
		result = append(result, *groups[h])
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return strings.Join(result[i].Key, "\x1f") < strings.Join(result[j].Key, "\x1f")
	})
	if agg.Top > 0 && len(result) > agg.Top {
		result = result[:agg.Top]
	}

	metrics.AggregationGroups.Observe(float64(len(result)))
	return result
}

// hashKey digests a group-by key tuple with xxhash, separating fields by a
// byte that cannot appear in a field's own text (0x00) so that
// ["a", "bc"] and ["ab", "c"] never collide.
func hashKey(parts []string) uint64 {
	h := xxhash.New()
	for _, p := range parts {
		h.WriteString(p)
		h.Write([]byte{0})
	}
	return h.Sum64()
}
