package catalog

import (
	"sort"
	"strings"
)

// Group is a set of values selected for one keyword bucket.
type Group struct {
	Key    string
	Values []string
}

func bucketHit(goal string, b bucket) bool {
	for _, kw := range b.Keywords {
		if strings.Contains(goal, kw) {
			return true
		}
	}
	return false
}

// RelevantMunicipalities returns up to five municipality names per
// geographic bucket mentioned in the goal.
func (c *Catalog) RelevantMunicipalities(goal string) []Group {
	goal = strings.ToLower(goal)
	munis := c.Municipalities()
	var out []Group
	for _, b := range data.MunicipalityKeywords {
		if !bucketHit(goal, b) {
			continue
		}
		var names []string
		for _, m := range munis {
			if len(names) == 5 {
				break
			}
			if strings.Contains(strings.ToLower(m.Region), b.Key) || nameHasKeyword(m.Name, b.Keywords) {
				names = append(names, m.Name)
			}
		}
		if len(names) > 0 {
			out = append(out, Group{Key: b.Key, Values: names})
		}
	}
	return out
}

func nameHasKeyword(name string, keywords []string) bool {
	name = strings.ToLower(name)
	for _, kw := range keywords {
		if strings.Contains(name, kw) {
			return true
		}
	}
	return false
}

// RelevantBranchCodes returns, per industry bucket in the goal, the three
// most specific codes of each category whose description matches the bucket.
func (c *Catalog) RelevantBranchCodes(goal string) []Group {
	goal = strings.ToLower(goal)
	codes := c.BranchCodes()
	var out []Group
	for _, b := range data.IndustryKeywords {
		if !bucketHit(goal, b) {
			continue
		}
		var categories []string
		byCategory := map[string][]int{}
		for i, bc := range codes {
			if !nameHasKeyword(bc.Description, b.Keywords) {
				continue
			}
			if _, seen := byCategory[bc.Category]; !seen {
				categories = append(categories, bc.Category)
			}
			byCategory[bc.Category] = append(byCategory[bc.Category], i)
		}
		for _, cat := range categories {
			idx := byCategory[cat]
			sort.SliceStable(idx, func(i, j int) bool { return codes[idx[i]].Level > codes[idx[j]].Level })
			var values []string
			for _, i := range idx {
				if len(values) == 3 {
					break
				}
				values = append(values, codes[i].Code)
			}
			out = append(out, Group{Key: cat, Values: values})
		}
	}
	return out
}

// RelevantRegions returns the region names whose keywords occur in the goal.
func RelevantRegions(goal string) []string {
	goal = strings.ToLower(goal)
	var out []string
	for _, b := range data.RegionKeywords {
		if bucketHit(goal, b) {
			out = append(out, b.Key)
		}
	}
	return out
}

// LocalMedia returns concrete local media for places named in the goal.
func LocalMedia(goal string) []string {
	goal = strings.ToLower(goal)
	var out []string
	for _, b := range data.LocalMedia {
		if bucketHit(goal, b) {
			out = append(out, b.Media...)
		}
	}
	return out
}
