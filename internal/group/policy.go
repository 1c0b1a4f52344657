package group

import "github.com/nerrad567/gray-logic-groups/internal/state"

// Supported-feature bits recognised per domain.
//
// Raw supported_features values from members are masked against the
// domain's recognised bits before being OR'd into the composite, so
// unknown or future bits never leak through.
const (
	// Fan features
	FeatureFanSetSpeed  uint32 = 1 << 0
	FeatureFanOscillate uint32 = 1 << 1
	FeatureFanDirection uint32 = 1 << 2

	// Light features
	FeatureLightBrightness uint32 = 1 << 0
	FeatureLightColourTemp uint32 = 1 << 1
	FeatureLightColour     uint32 = 1 << 2
	FeatureLightTransition uint32 = 1 << 3

	// Cover features
	FeatureCoverOpen        uint32 = 1 << 0
	FeatureCoverClose       uint32 = 1 << 1
	FeatureCoverSetPosition uint32 = 1 << 2
	FeatureCoverStop        uint32 = 1 << 3

	// Lock features
	FeatureLockOpen uint32 = 1 << 0
)

// DomainPolicy is the per-domain merge policy consumed by Aggregate.
//
// Policies are data, not code: a single generic aggregation function
// interprets them, selected once per member domain. Zero-value fields
// disable the corresponding merge step.
type DomainPolicy struct {
	// Domain this policy applies to, e.g. "light".
	Domain string

	// ActiveStates are the concrete values counted as "active" for the
	// ANY/ALL bucketing, e.g. {"on"} or {"home"} or {"open", "opening"}.
	ActiveStates map[string]struct{}

	// ActiveState and InactiveState are the canonical composite values
	// published for the active/inactive outcomes, e.g. "on"/"off".
	ActiveState   string
	InactiveState string

	// Priority is a fixed precedence chain checked before ANY/ALL
	// bucketing: the composite equals the first chain state present
	// among concrete members. Locks: jammed > locking > unlocking >
	// unlocked (falling through to locked). Empty for most domains.
	Priority []string

	// NumericAttrs are attributes merged by arithmetic mean over the
	// concrete members that expose them, rounded to the nearest integer.
	NumericAttrs []string

	// FloatAttrs are attributes merged by arithmetic mean without
	// rounding (native resolution is fractional, e.g. hs colour).
	FloatAttrs []string

	// VectorAttrs are fixed-length numeric list attributes merged by
	// component-wise mean (e.g. hs_color, rgb_color).
	VectorAttrs []string

	// ColourModePrecedence orders competing colour modes richest-first;
	// when members disagree the richest mode wins.
	ColourModePrecedence []string

	// FeatureMask is the set of supported_features bits recognised by
	// this domain. Member features are masked before the union.
	FeatureMask uint32

	// Services maps forwardable service names to the feature bit a
	// member must advertise to receive the call. A zero bit means every
	// member of the domain supports the service.
	Services map[string]uint32
}

// ForState reports whether a concrete value counts as active.
func (p *DomainPolicy) ForState(value string) bool {
	_, ok := p.ActiveStates[value]
	return ok
}

// PolicySet is a lookup table of domain policies.
type PolicySet struct {
	policies map[string]*DomainPolicy
	fallback *DomainPolicy
}

// NewPolicySet builds a set from the given policies.
// Lookups for unlisted domains return the generic on/off policy.
func NewPolicySet(policies ...*DomainPolicy) *PolicySet {
	set := &PolicySet{
		policies: make(map[string]*DomainPolicy, len(policies)),
		fallback: onOffPolicy("", nil, 0),
	}
	for _, p := range policies {
		set.policies[p.Domain] = p
	}
	return set
}

// ForDomain returns the policy for a domain, falling back to generic
// on/off semantics for domains without a specific policy.
func (s *PolicySet) ForDomain(domain string) *DomainPolicy {
	if p, ok := s.policies[domain]; ok {
		return p
	}
	return s.fallback
}

// DefaultPolicies returns the shipped domain policy table.
func DefaultPolicies() *PolicySet {
	return NewPolicySet(
		onOffPolicy("switch", map[string]uint32{
			"turn_on":  0,
			"turn_off": 0,
			"toggle":   0,
		}, 0),
		onOffPolicy("siren", map[string]uint32{
			"turn_on":  0,
			"turn_off": 0,
			"toggle":   0,
		}, 0),
		onOffPolicy("binary_sensor", nil, 0),
		&DomainPolicy{
			Domain:        "light",
			ActiveStates:  setOf(state.StateOn),
			ActiveState:   state.StateOn,
			InactiveState: state.StateOff,
			NumericAttrs:  []string{"brightness", "color_temp"},
			VectorAttrs:   []string{"hs_color", "rgb_color"},
			ColourModePrecedence: []string{
				"hs", "rgb", "color_temp", "brightness", "onoff",
			},
			FeatureMask: FeatureLightBrightness | FeatureLightColourTemp |
				FeatureLightColour | FeatureLightTransition,
			Services: map[string]uint32{
				"turn_on":  0,
				"turn_off": 0,
				"toggle":   0,
			},
		},
		&DomainPolicy{
			Domain:        "fan",
			ActiveStates:  setOf(state.StateOn),
			ActiveState:   state.StateOn,
			InactiveState: state.StateOff,
			NumericAttrs:  []string{"percentage"},
			FeatureMask:   FeatureFanSetSpeed | FeatureFanOscillate | FeatureFanDirection,
			Services: map[string]uint32{
				"turn_on":        0,
				"turn_off":       0,
				"toggle":         0,
				"set_percentage": FeatureFanSetSpeed,
				"oscillate":      FeatureFanOscillate,
				"set_direction":  FeatureFanDirection,
			},
		},
		&DomainPolicy{
			Domain:        "cover",
			ActiveStates:  setOf("open", "opening"),
			ActiveState:   "open",
			InactiveState: "closed",
			Priority:      []string{"opening", "closing"},
			NumericAttrs:  []string{"current_position"},
			FeatureMask: FeatureCoverOpen | FeatureCoverClose |
				FeatureCoverSetPosition | FeatureCoverStop,
			Services: map[string]uint32{
				"open_cover":         FeatureCoverOpen,
				"close_cover":        FeatureCoverClose,
				"set_cover_position": FeatureCoverSetPosition,
				"stop_cover":         FeatureCoverStop,
			},
		},
		&DomainPolicy{
			Domain: "lock",
			// Locks invert the usual union: "unlocked" is the active
			// (attention-demanding) state for ANY groups.
			ActiveStates:  setOf("unlocked"),
			ActiveState:   "unlocked",
			InactiveState: "locked",
			Priority:      []string{"jammed", "locking", "unlocking"},
			FeatureMask:   FeatureLockOpen,
			Services: map[string]uint32{
				"lock":   0,
				"unlock": 0,
				"open":   FeatureLockOpen,
			},
		},
		&DomainPolicy{
			Domain:        "device_tracker",
			ActiveStates:  setOf("home"),
			ActiveState:   "home",
			InactiveState: "not_home",
		},
		&DomainPolicy{
			Domain:        "person",
			ActiveStates:  setOf("home"),
			ActiveState:   "home",
			InactiveState: "not_home",
		},
	)
}

// onOffPolicy builds a plain on/off policy for a domain.
func onOffPolicy(domain string, services map[string]uint32, mask uint32) *DomainPolicy {
	return &DomainPolicy{
		Domain:        domain,
		ActiveStates:  setOf(state.StateOn),
		ActiveState:   state.StateOn,
		InactiveState: state.StateOff,
		FeatureMask:   mask,
		Services:      services,
	}
}

// setOf builds a string set.
func setOf(values ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
