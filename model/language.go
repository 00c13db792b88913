package model

import "sort"

// LanguageTotals accumulates byte counts per language name across repositories.
// Language names are case sensitive, exactly as reported by Github.
type LanguageTotals map[string]int

// Merge adds the byte counts of a single repository to the totals.
// Merging is additive, so the order in which repositories are merged
// does not change the final totals.
func (t LanguageTotals) Merge(languages map[string]int) {
	for name, bytes := range languages {
		t[name] += bytes
	}
}

// TotalBytes returns the sum of all accumulated byte counts
func (t LanguageTotals) TotalBytes() int {
	total := 0

	for _, bytes := range t {
		total += bytes
	}

	return total
}

// LanguageShare is the renderable view of a single language:
// its share of the total byte count plus the display color
type LanguageShare struct {
	Name       string  `json:"name"`
	Bytes      int     `json:"bytes"`
	Percentage float64 `json:"percentage"`
	Color      string  `json:"color"`
}

// ComputeShares converts totals into a sorted list of shares
// sorted by descending byte count, ties broken by name ascending so the
// output is deterministic. An empty totals map yields an empty slice
func ComputeShares(totals LanguageTotals, palette map[string]string) []LanguageShare {
	total := totals.TotalBytes()

	if total == 0 {
		return []LanguageShare{}
	}

	shares := make([]LanguageShare, 0, len(totals))

	for name, bytes := range totals {
		shares = append(shares, LanguageShare{
			Name:       name,
			Bytes:      bytes,
			Percentage: float64(bytes) / float64(total) * 100,
			Color:      ColorFor(palette, name),
		})
	}

	sort.Slice(shares, func(i, j int) bool {
		if shares[i].Bytes != shares[j].Bytes {
			return shares[i].Bytes > shares[j].Bytes
		}

		return shares[i].Name < shares[j].Name
	})

	return shares
}
