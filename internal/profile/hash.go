package profile

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
)

// Label keys forming the container discovery triple.
const (
	LabelPlatform    = "stevedore.platform"
	LabelProfileHash = "stevedore.profile_hash"
	LabelProfileID   = "stevedore.profile_id"
)

// PlatformTag marks every container managed by this platform.
const PlatformTag = "stevedore"

// Hash computes the deterministic profile digest used for drift detection in
// container labels. FNV-1a over the canonical JSON encoding; the spec
// contains only structs and slices, so the encoding is stable across
// processes. Not a security boundary, only a discovery key.
func Hash(spec *Spec) string {
	data, err := json.Marshal(spec)
	if err != nil {
		// Spec types contain no unmarshalable values; treat as unreachable
		// but keep the hash deterministic if it ever happens.
		data = []byte(err.Error())
	}
	h := fnv.New64a()
	h.Write(data)
	return fmt.Sprintf("%016x", h.Sum64())
}

// DiscoveryLabels builds the fixed label triple used to find an existing
// container for a profile.
func DiscoveryLabels(hash string) map[string]string {
	return map[string]string{
		LabelPlatform:    PlatformTag,
		LabelProfileHash: hash,
		LabelProfileID:   fmt.Sprintf("%s:profile_hash_%s", PlatformTag, hash),
	}
}
