package group

import (
	"math"

	"github.com/nerrad567/gray-logic-groups/internal/state"
)

// AttrMembers is the attribute key carrying the resolved member list on
// every published composite state.
const AttrMembers = "entity_id"

// AttrAssumedState marks composites derived by approximation.
const AttrAssumedState = "assumed_state"

// attrSupportedFeatures is the member attribute carrying feature bits.
const attrSupportedFeatures = "supported_features"

// attrColourMode is the member attribute carrying the active colour mode.
const attrColourMode = "color_mode"

// MemberState is one resolved member's state as seen at aggregation time.
//
// Found is false when the member has no record in the state store at all;
// the aggregator treats that identically to an unavailable member.
type MemberState struct {
	EntityID string
	Found    bool
	State    state.State
}

// Result is the aggregated composite.
type Result struct {
	// State is the composite state value.
	State string

	// Attributes carries the resolved member list plus merged
	// domain-specific attributes.
	Attributes map[string]any

	// AssumedState is true when merged values differed across members
	// (approximation occurred) or any member itself reports
	// assumed_state true.
	AssumedState bool
}

// concreteMember is a member holding a real domain value.
type concreteMember struct {
	entityID string
	domain   string
	value    string
	attrs    map[string]any
}

// Aggregate computes a group's composite state from its members' states.
//
// It is a pure function of its inputs: no hidden state, safe to invoke
// re-entrantly from nested recomputation.
//
// Parameters:
//   - members: Resolved membership with each member's current state
//   - mode: ModeAny (OR over active values) or ModeAll (AND)
//   - policies: Per-domain merge policy table
//
// Returns:
//   - Result: Composite state, merged attributes, assumed flag
func Aggregate(members []MemberState, mode Mode, policies *PolicySet) Result {
	attrs := map[string]any{
		AttrMembers: memberIDs(members),
	}

	var unavailable, unknown int
	var concrete []concreteMember

	for _, m := range members {
		switch {
		case !m.Found || m.State.Value == state.StateUnavailable:
			unavailable++
		case m.State.Value == state.StateUnknown || m.State.Value == "":
			unknown++
		default:
			concrete = append(concrete, concreteMember{
				entityID: m.EntityID,
				domain:   state.Domain(m.EntityID),
				value:    m.State.Value,
				attrs:    m.State.Attributes,
			})
		}
	}

	// Availability rule: an empty or entirely unavailable membership is
	// unavailable regardless of mode.
	if len(members) == 0 || unavailable == len(members) {
		return Result{State: state.StateUnavailable, Attributes: attrs}
	}

	// Unknown rule: nothing concrete to aggregate yet.
	if len(concrete) == 0 {
		return Result{State: state.StateUnknown, Attributes: attrs}
	}

	domain, single := singleDomain(concrete)
	assumed := anyMemberAssumed(concrete)

	if single {
		policy := policies.ForDomain(domain)

		// Priority chain: first chain state present among concrete
		// members wins (jammed beats everything for locks).
		for _, p := range policy.Priority {
			for _, m := range concrete {
				if m.value == p {
					mergeAttributes(attrs, concrete, policy, &assumed)
					return Result{State: p, Attributes: attrs, AssumedState: assumed}
				}
			}
		}

		value := combine(concrete, mode, policy, unknown+unavailable)
		mergeAttributes(attrs, concrete, policy, &assumed)
		return Result{State: value, Attributes: attrs, AssumedState: assumed}
	}

	// Mixed-domain group: bucket each member against its own domain's
	// active-state set and report plain on/off.
	value := combineMixed(concrete, mode, policies, unknown+unavailable)
	return Result{State: value, Attributes: attrs, AssumedState: assumed}
}

// combine applies ANY/ALL semantics for a single-domain group.
func combine(concrete []concreteMember, mode Mode, policy *DomainPolicy, sentinels int) string {
	active, inactive := 0, 0
	for _, m := range concrete {
		if policy.ForState(m.value) {
			active++
		} else {
			inactive++
		}
	}

	if mode == ModeAll {
		switch {
		case inactive > 0:
			return policy.InactiveState
		case sentinels > 0:
			// No member votes against, but some are silent: the AND
			// cannot be confirmed.
			return state.StateUnknown
		default:
			return policy.ActiveState
		}
	}

	if active > 0 {
		return policy.ActiveState
	}
	return policy.InactiveState
}

// combineMixed applies ANY/ALL semantics across domains.
func combineMixed(concrete []concreteMember, mode Mode, policies *PolicySet, sentinels int) string {
	active, inactive := 0, 0
	for _, m := range concrete {
		if policies.ForDomain(m.domain).ForState(m.value) {
			active++
		} else {
			inactive++
		}
	}

	if mode == ModeAll {
		switch {
		case inactive > 0:
			return state.StateOff
		case sentinels > 0:
			return state.StateUnknown
		default:
			return state.StateOn
		}
	}

	if active > 0 {
		return state.StateOn
	}
	return state.StateOff
}

// mergeAttributes folds the policy's attribute merges into attrs.
// Sets *assumed when any merged value differed across members.
func mergeAttributes(attrs map[string]any, concrete []concreteMember, policy *DomainPolicy, assumed *bool) {
	for _, key := range policy.NumericAttrs {
		if mean, differed, ok := numericMean(concrete, key); ok {
			attrs[key] = int(math.Round(mean))
			if differed {
				*assumed = true
			}
		}
	}

	for _, key := range policy.FloatAttrs {
		if mean, differed, ok := numericMean(concrete, key); ok {
			attrs[key] = mean
			if differed {
				*assumed = true
			}
		}
	}

	for _, key := range policy.VectorAttrs {
		if mean, differed, ok := vectorMean(concrete, key); ok {
			attrs[key] = mean
			if differed {
				*assumed = true
			}
		}
	}

	if policy.FeatureMask != 0 {
		if features, ok := featureUnion(concrete, policy.FeatureMask); ok {
			attrs[attrSupportedFeatures] = features
		}
	}

	if len(policy.ColourModePrecedence) > 0 {
		if mode, ok := richestColourMode(concrete, policy.ColourModePrecedence); ok {
			attrs[attrColourMode] = mode
		}
	}
}

// numericMean averages a numeric attribute over the members that expose
// it. Members lacking the attribute are excluded, not treated as zero.
//
// Returns:
//   - float64: Arithmetic mean
//   - bool: differed — members disagreed, the mean is an approximation
//   - bool: ok — at least one member exposed the attribute
func numericMean(concrete []concreteMember, key string) (mean float64, differed, ok bool) {
	var sum float64
	var count int
	var first float64

	for _, m := range concrete {
		v, found := toFloat(m.attrs[key])
		if !found {
			continue
		}
		if count == 0 {
			first = v
		} else if v != first {
			differed = true
		}
		sum += v
		count++
	}

	if count == 0 {
		return 0, false, false
	}
	return sum / float64(count), differed, true
}

// vectorMean averages a fixed-length numeric list attribute
// component-wise. Members whose value has a different length than the
// first exposing member are excluded from the mean.
func vectorMean(concrete []concreteMember, key string) (mean []float64, differed, ok bool) {
	var sums []float64
	var count int
	var first []float64

	for _, m := range concrete {
		vec, found := toFloatSlice(m.attrs[key])
		if !found {
			continue
		}
		if sums == nil {
			sums = make([]float64, len(vec))
			first = vec
		} else if len(vec) != len(sums) {
			continue
		}
		for i, v := range vec {
			sums[i] += v
			if count > 0 && v != first[i] {
				differed = true
			}
		}
		count++
	}

	if count == 0 {
		return nil, false, false
	}
	for i := range sums {
		sums[i] /= float64(count)
	}
	return sums, differed, true
}

// featureUnion ORs member supported_features under the recognised mask.
func featureUnion(concrete []concreteMember, mask uint32) (uint32, bool) {
	var union uint32
	var found bool
	for _, m := range concrete {
		v, ok := toFloat(m.attrs[attrSupportedFeatures])
		if !ok {
			continue
		}
		union |= uint32(v) & mask
		found = true
	}
	return union, found
}

// richestColourMode returns the highest-precedence colour mode any
// member reports.
func richestColourMode(concrete []concreteMember, precedence []string) (string, bool) {
	present := make(map[string]struct{})
	for _, m := range concrete {
		if mode, ok := m.attrs[attrColourMode].(string); ok {
			present[mode] = struct{}{}
		}
	}
	for _, mode := range precedence {
		if _, ok := present[mode]; ok {
			return mode, true
		}
	}
	return "", false
}

// anyMemberAssumed reports whether any member sets assumed_state.
func anyMemberAssumed(concrete []concreteMember) bool {
	for _, m := range concrete {
		if v, ok := m.attrs[AttrAssumedState].(bool); ok && v {
			return true
		}
	}
	return false
}

// singleDomain reports whether every concrete member shares one domain.
func singleDomain(concrete []concreteMember) (string, bool) {
	domain := concrete[0].domain
	for _, m := range concrete[1:] {
		if m.domain != domain {
			return "", false
		}
	}
	return domain, true
}

// memberIDs extracts the ordered member ID list.
func memberIDs(members []MemberState) []string {
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.EntityID
	}
	return ids
}

// toFloat converts a JSON-decoded numeric value.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// toFloatSlice converts a JSON-decoded numeric list.
func toFloatSlice(v any) ([]float64, bool) {
	switch list := v.(type) {
	case []float64:
		out := make([]float64, len(list))
		copy(out, list)
		return out, true
	case []any:
		out := make([]float64, len(list))
		for i, item := range list {
			f, ok := toFloat(item)
			if !ok {
				return nil, false
			}
			out[i] = f
		}
		return out, true
	default:
		return nil, false
	}
}
