package mapping

import "sort"

// mostUsedLimit is how many entries Stats lists as most used.
const mostUsedLimit = 5

// Usage is the usage count of one mapping.
type Usage struct {
	GestureID  string `json:"gesture_id"`
	ActionType string `json:"action_type"`
	UseCount   int    `json:"use_count"`
}

// Stats summarises a profile's mappings.
type Stats struct {
	ProfileID   string         `json:"profile_id"`
	ProfileName string         `json:"profile_name"`
	Total       int            `json:"total_mappings"`
	Enabled     int            `json:"enabled_mappings"`
	TotalUses   int            `json:"total_uses"`
	MostUsed    []Usage        `json:"most_used"`
	ActionTypes map[string]int `json:"action_types"`
}

// ActionType names what an entry does: the step kind of a single-step
// definition, or "macro".
func (e Entry) ActionType() string {
	if !e.Action.IsMacro() && len(e.Action.Steps) == 1 {
		return string(e.Action.Steps[0].Type)
	}
	return "macro"
}

// Stats counts mappings and uses. MostUsed holds at most five entries
// that have been used, by descending use count.
func (p *Profile) Stats() Stats {
	st := Stats{ActionTypes: map[string]int{}, MostUsed: []Usage{}}
	if p == nil {
		return st
	}
	st.ProfileID = p.ID
	st.ProfileName = p.Name

	var used []Usage
	for _, e := range p.entries {
		st.Total++
		if e.Enabled {
			st.Enabled++
		}
		st.TotalUses += e.UseCount
		st.ActionTypes[e.ActionType()]++
		if e.UseCount > 0 {
			used = append(used, Usage{GestureID: e.GestureID, ActionType: e.ActionType(), UseCount: e.UseCount})
		}
	}

	sort.Slice(used, func(i, j int) bool {
		if used[i].UseCount != used[j].UseCount {
			return used[i].UseCount > used[j].UseCount
		}
		return used[i].GestureID < used[j].GestureID
	})
	if len(used) > mostUsedLimit {
		used = used[:mostUsedLimit]
	}
	st.MostUsed = append(st.MostUsed, used...)
	return st
}
