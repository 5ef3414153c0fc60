package validator

import (
	"time"
)

// Registry is the static directory mapping (domain, verb) to the ordered
// validator list that governs it. Built once at startup; the binding order
// is the tie-break order the aggregator uses when several validators
// object, so it is part of the certifiable contract.
type Registry struct {
	entries map[string][]Validator
}

// NewRegistry builds the registry with the built-in domain bindings, each
// validator declaring the given per-validator timeout.
func NewRegistry(perValidatorTimeout time.Duration) *Registry {
	r := &Registry{entries: make(map[string][]Validator)}

	r.Register("aviation", "reroute_flight",
		NewFuelReserve(perValidatorTimeout),
		NewCrewRest(perValidatorTimeout),
	)
	r.Register("aviation", "adjust_altitude",
		NewAirspace(perValidatorTimeout),
	)
	r.Register("fintech", "initiate_payment",
		NewStrongCustomerAuth(perValidatorTimeout),
		NewPaymentLimit(perValidatorTimeout),
		NewAMLThreshold(perValidatorTimeout),
	)
	r.Register("fintech", "transfer_funds",
		NewStrongCustomerAuth(perValidatorTimeout),
		NewPaymentLimit(perValidatorTimeout),
		NewAMLThreshold(perValidatorTimeout),
	)

	return r
}

// EmptyRegistry builds a registry with no bindings. Used by tests and by
// embedders that register their own validator set.
func EmptyRegistry() *Registry {
	return &Registry{entries: make(map[string][]Validator)}
}

// Register appends validators to the ordered list for (domain, verb).
func (r *Registry) Register(domain, verb string, vs ...Validator) {
	key := registryKey(domain, verb)
	r.entries[key] = append(r.entries[key], vs...)
}

// Lookup returns the ordered validator list for (domain, verb), or nil if
// no validators are bound. The returned slice must not be mutated.
func (r *Registry) Lookup(domain, verb string) []Validator {
	return r.entries[registryKey(domain, verb)]
}

func registryKey(domain, verb string) string {
	return domain + "/" + verb
}
