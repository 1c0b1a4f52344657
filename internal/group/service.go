package group

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-groups/internal/state"
)

// Invoker delivers a service call to a single member entity.
// The MQTT bridge provides the production implementation.
type Invoker interface {
	Invoke(ctx context.Context, entityID, service string, payload map[string]any) error
}

// ServiceCall is a forwardable command addressed to a group.
type ServiceCall struct {
	// Service is the domain service name, e.g. "turn_on".
	Service string

	// Payload carries service parameters, forwarded verbatim to each
	// eligible member.
	Payload map[string]any

	// Blocking waits for every member call to complete and reports the
	// first error. Non-blocking calls return after dispatch.
	Blocking bool
}

// Forward fans a service call out to the eligible member subset.
//
// A member is eligible when its domain's policy lists the service and,
// for feature-gated services, the member advertises the required feature
// bit. Forwarding to zero eligible members is an error, not a no-op:
// the caller asked for something this group cannot do.
//
// Returns:
//   - error: ErrServiceNotSupported when no member is eligible; for
//     blocking calls, the first member invocation error
func (e *Entity) Forward(ctx context.Context, invoker Invoker, call ServiceCall) error {
	targets := e.serviceTargets(call.Service)
	if len(targets) == 0 {
		return fmt.Errorf("%w: %s on %s", ErrServiceNotSupported, call.Service, e.def.EntityID())
	}

	e.logger.Debug("forwarding service call",
		"group", e.def.EntityID(),
		"service", call.Service,
		"targets", len(targets),
		"blocking", call.Blocking,
	)

	if !call.Blocking {
		for _, id := range targets {
			go func(entityID string) {
				if err := invoker.Invoke(ctx, entityID, call.Service, call.Payload); err != nil {
					e.logger.Warn("service call failed",
						"group", e.def.EntityID(),
						"entity_id", entityID,
						"service", call.Service,
						"error", err,
					)
				}
			}(id)
		}
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, id := range targets {
		entityID := id
		g.Go(func() error {
			if err := invoker.Invoke(ctx, entityID, call.Service, call.Payload); err != nil {
				return fmt.Errorf("member %s: %w", entityID, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// serviceTargets returns the resolved members eligible for a service.
func (e *Entity) serviceTargets(service string) []string {
	e.mu.RLock()
	resolved := make([]string, len(e.resolved))
	copy(resolved, e.resolved)
	e.mu.RUnlock()

	var targets []string
	for _, id := range resolved {
		policy := e.policies.ForDomain(state.Domain(id))
		required, ok := policy.Services[service]
		if !ok {
			continue
		}
		if required != 0 && !e.memberHasFeature(id, required) {
			continue
		}
		targets = append(targets, id)
	}
	return targets
}

// memberHasFeature checks a member's advertised supported_features bits.
// Members without a state record or without the attribute are treated as
// not supporting the feature.
func (e *Entity) memberHasFeature(entityID string, bit uint32) bool {
	st, ok := e.store.Get(entityID)
	if !ok {
		return false
	}
	v, ok := toFloat(st.Attributes[attrSupportedFeatures])
	if !ok {
		return false
	}
	return uint32(v)&bit == bit
}
