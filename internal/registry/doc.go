// Package registry caches the hub's device and zone inventory in memory.
//
// The registry is refreshed from the hub directory API on startup and
// whenever the listener manager reconciles. A failed refresh keeps the
// previous snapshot so the pipeline can keep resolving names and zones
// while the hub is unreachable; callers see the failure as a RefreshError.
//
// Zone resolution walks the parent chain to build a human-readable path
// ("Planta Alta / Dormitorio / Cama"). Devices without a zone resolve to
// the "Sin zona" sentinel so recorded events never carry empty fields.
package registry
