package dockerhost

import "strings"

// Resolved is the outcome of resolving a profile key: the host to use plus
// the effective per-host overrides for that key.
type Resolved struct {
	HostID      string
	Volumes     []string
	Env         map[string]string
	GPU         *GPUSpec
	ExtraHosts  []string
	NetworkMode string
}

// Resolver maps profile keys to host assignments and overrides.
//
// A profile key has the form "<appIdentifier>:<profileIdentifier>" where the
// app identifier carries a "_<suffix>" discriminator. Operators may configure
// either the exact key or the app-slug key ("<slug>:<profileIdentifier>",
// slug = app identifier up to its first underscore); the exact key wins.
// Every override field falls back independently.
type Resolver struct {
	fleet *Fleet
}

// NewResolver creates a resolver over a static fleet configuration.
func NewResolver(fleet *Fleet) *Resolver {
	return &Resolver{fleet: fleet}
}

// AppSlugKey derives the secondary lookup key for a profile key.
// "myapp_a1b2:gpu" becomes "myapp:gpu". Returns the input unchanged when the
// app segment has no suffix separator.
func AppSlugKey(profileKey string) string {
	app, prof, ok := strings.Cut(profileKey, ":")
	if !ok {
		return profileKey
	}
	slug, _, found := strings.Cut(app, "_")
	if !found {
		return profileKey
	}
	return slug + ":" + prof
}

// HostID resolves the assigned host id for a profile key: exact key first,
// app-slug key second, DefaultHostID last.
func (r *Resolver) HostID(profileKey string) string {
	if id, ok := r.fleet.Assignments[profileKey]; ok {
		return id
	}
	if id, ok := r.fleet.Assignments[AppSlugKey(profileKey)]; ok {
		return id
	}
	return DefaultHostID
}

// Host returns the configuration for a host id, and whether it exists.
func (r *Resolver) Host(hostID string) (Host, bool) {
	h, ok := r.fleet.Hosts[hostID]
	return h, ok
}

// Resolve resolves the host id and all overrides for a profile key. Each
// override follows the same two-key fallback pattern, independently, so an
// operator can pin volumes per-exact-profile while leaving env at the
// app-level default.
func (r *Resolver) Resolve(profileKey string) Resolved {
	hostID := r.HostID(profileKey)
	res := Resolved{HostID: hostID}

	host, ok := r.fleet.Hosts[hostID]
	if !ok {
		return res
	}

	exact, hasExact := host.Overrides[profileKey]
	slug, hasSlug := host.Overrides[AppSlugKey(profileKey)]

	pick := func(exactSet, slugSet bool, apply func(HostOverrides)) {
		if exactSet {
			apply(exact)
		} else if slugSet {
			apply(slug)
		}
	}

	pick(hasExact && exact.Volumes != nil, hasSlug && slug.Volumes != nil,
		func(o HostOverrides) { res.Volumes = o.Volumes })
	pick(hasExact && exact.Env != nil, hasSlug && slug.Env != nil,
		func(o HostOverrides) { res.Env = o.Env })
	pick(hasExact && exact.GPU != nil, hasSlug && slug.GPU != nil,
		func(o HostOverrides) { res.GPU = o.GPU })
	pick(hasExact && exact.ExtraHosts != nil, hasSlug && slug.ExtraHosts != nil,
		func(o HostOverrides) { res.ExtraHosts = o.ExtraHosts })
	pick(hasExact && exact.NetworkMode != "", hasSlug && slug.NetworkMode != "",
		func(o HostOverrides) { res.NetworkMode = o.NetworkMode })

	return res
}
