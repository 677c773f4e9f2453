package core

import "sort"

// ActionInfo describes a subject action surfaced by the CLI and the web UI.
// Category groups actions under a heading and Order positions them within
// the group, so lab extensions control how their actions are presented.
type ActionInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Order       int    `json:"order"`
}

// SortActions orders actions by category, then order, then name.
func SortActions(actions []ActionInfo) {
	sort.Slice(actions, func(i, j int) bool {
		a, b := actions[i], actions[j]
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		return a.Name < b.Name
	})
}
