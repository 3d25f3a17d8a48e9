package registry

import (
	"context"
	"fmt"

	"github.com/occulog/occulog-core/internal/hub"
)

// Zone resolution constants.
const (
	// NoZoneName is the sentinel used for devices without a zone.
	NoZoneName = "Sin zona"

	// pathSeparator joins zone names from root to leaf.
	pathSeparator = " / "
)

// ZoneContext is the resolved zone information attached to occupancy events.
//
// For devices without a zone, ID is empty and both Name and Path hold the
// "Sin zona" sentinel. Name falls back to "Zona <id>" when the hub reports
// a zone without a name.
type ZoneContext struct {
	ID   string
	Name string
	Path string
}

// noZoneContext is the sentinel for devices without a zone assignment.
func noZoneContext() ZoneContext {
	return ZoneContext{ID: "", Name: NoZoneName, Path: NoZoneName}
}

// zoneFallbackName names a zone the hub left unnamed.
func zoneFallbackName(id string) string {
	return fmt.Sprintf("Zona %s", id)
}

// zoneName applies the unnamed-zone fallback.
func zoneName(z hub.Zone) string {
	if z.Name == "" {
		return zoneFallbackName(z.ID)
	}
	return z.Name
}

// ResolveZone builds the zone context for a device's zone reference.
//
// A nil or empty reference resolves to the "Sin zona" sentinel. Otherwise
// the parent chain is walked to build the root-to-leaf path. Lookups are
// cache-first: a zone missing from the snapshot (created after the last
// refresh) is fetched from the hub and folded into the snapshot. A zone
// that cannot be resolved at all yields the sentinel; an unresolvable
// parent mid-walk truncates the path to the names collected so far. A
// cycle in the parent chain likewise stops the walk at the repeated zone.
//
// Results are cached until the next Refresh.
func (r *Registry) ResolveZone(ctx context.Context, zoneRef *string) ZoneContext {
	if zoneRef == nil || *zoneRef == "" {
		return noZoneContext()
	}
	zoneID := *zoneRef

	r.mu.RLock()
	cached, ok := r.zonePaths[zoneID]
	r.mu.RUnlock()
	if ok {
		return cached
	}

	zc := r.resolveZone(ctx, zoneID)

	r.mu.Lock()
	r.zonePaths[zoneID] = zc
	r.mu.Unlock()
	return zc
}

// resolveZone walks the parent chain leaf to root.
func (r *Registry) resolveZone(ctx context.Context, zoneID string) ZoneContext {
	zone, ok := r.lookupZone(ctx, zoneID)
	if !ok {
		r.logger.Warn("zone unresolvable, recording without zone", "zone_id", zoneID)
		return noZoneContext()
	}

	name := zoneName(zone)
	names := []string{name}
	visited := map[string]bool{zoneID: true}

	current := zone
	for current.Parent != nil && *current.Parent != "" {
		parentID := *current.Parent
		if visited[parentID] {
			r.logger.Warn("cycle detected in zone hierarchy", "zone_id", zoneID, "repeated", parentID)
			break
		}
		visited[parentID] = true

		parent, ok := r.lookupZone(ctx, parentID)
		if !ok {
			// Truncate: the path keeps the names resolved so far.
			r.logger.Warn("parent zone unresolvable, truncating path", "zone_id", zoneID, "parent_id", parentID)
			break
		}

		names = append(names, zoneName(parent))
		current = parent
	}

	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}

	path := names[0]
	for _, n := range names[1:] {
		path += pathSeparator + n
	}

	return ZoneContext{ID: zoneID, Name: name, Path: path}
}

// lookupZone reads a zone from the snapshot, fetching from the hub on a
// miss. Fetched zones join the snapshot so parent walks and later lookups
// see them without re-fetching.
func (r *Registry) lookupZone(ctx context.Context, id string) (hub.Zone, bool) {
	r.mu.RLock()
	z, ok := r.zones[id]
	r.mu.RUnlock()
	if ok {
		return z, true
	}

	fetched, err := r.directory.GetZone(ctx, id)
	if err != nil {
		r.logger.Warn("zone fetch failed", "zone_id", id, "error", err)
		return hub.Zone{}, false
	}

	r.mu.Lock()
	r.zones[fetched.ID] = *fetched
	r.mu.Unlock()
	return *fetched, true
}
