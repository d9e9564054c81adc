package acled

import "sort"

// EventTypeOrder is the codebook hierarchy of event types and their sub-event
// types. When several tactics occur together the higher-ranked type subsumes
// the lower ones, so listings follow this order.
var EventTypeOrder = []TypeGroup{
	{Type: "Battles", SubTypes: []string{"Government regains territory", "Non-state actor overtakes territory", "Armed clash"}},
	{Type: "Protests", SubTypes: []string{"Excessive force against protesters", "Protest with intervention", "Peaceful protest"}},
	{Type: "Riots", SubTypes: []string{"Violent demonstration", "Mob violence"}},
	{Type: "Explosions/Remote violence", SubTypes: []string{"Chemical weapon", "Air/drone strike", "Suicide bomb", "Shelling/artillery/missile attack", "Remote explosive/landmine/IED", "Grenade"}},
	{Type: "Violence against civilians", SubTypes: []string{"Sexual violence", "Attack", "Abduction/forced disappearance"}},
	{Type: "Strategic developments", SubTypes: []string{"Agreement", "Arrests", "Change to group/activity", "Disrupted weapons use", "Headquarters or base established", "Looting/property destruction", "Non-violent transfer of territory", "Other"}},
}

// TypeGroup is an event type with its sub-event types.
type TypeGroup struct {
	Type     string   `json:"type"`
	SubTypes []string `json:"sub_types"`
}

// OrderTypes groups (type, sub_type) pairs and sorts them by the codebook
// hierarchy. Types and sub-types missing from the codebook sort last, in
// lexical order.
func OrderTypes(pairs [][2]string) []TypeGroup {
	typeRank := make(map[string]int, len(EventTypeOrder))
	subRank := make(map[string]map[string]int, len(EventTypeOrder))
	for i, g := range EventTypeOrder {
		typeRank[g.Type] = i
		subRank[g.Type] = make(map[string]int, len(g.SubTypes))
		for j, s := range g.SubTypes {
			subRank[g.Type][s] = j
		}
	}

	grouped := make(map[string][]string)
	seen := make(map[[2]string]bool)
	var order []string
	for _, p := range pairs {
		if seen[p] {
			continue
		}
		seen[p] = true
		if _, ok := grouped[p[0]]; !ok {
			order = append(order, p[0])
		}
		grouped[p[0]] = append(grouped[p[0]], p[1])
	}

	rank := func(m map[string]int, k string) int {
		if r, ok := m[k]; ok {
			return r
		}
		return len(m) + 1
	}

	sort.SliceStable(order, func(i, j int) bool {
		ri, rj := rank(typeRank, order[i]), rank(typeRank, order[j])
		if ri != rj {
			return ri < rj
		}
		return order[i] < order[j]
	})

	out := make([]TypeGroup, 0, len(order))
	for _, t := range order {
		subs := grouped[t]
		ranks := subRank[t]
		sort.SliceStable(subs, func(i, j int) bool {
			ri, rj := rank(ranks, subs[i]), rank(ranks, subs[j])
			if ri != rj {
				return ri < rj
			}
			return subs[i] < subs[j]
		})
		out = append(out, TypeGroup{Type: t, SubTypes: subs})
	}
	return out
}
