// Package registry tracks the beacons that are currently in range.
//
// A [Registry] holds exactly one [Device] per Bluetooth address. Devices are created on the first
// advertisement from an unseen address and updated in place by every later one: the signal
// strength and last-seen time always, the decoded frame and [Status] only for the kind of frame
// that was received. A decode failure is recorded in the Status slot for its category and never
// clears the slots of other categories.
//
// Devices that have not been heard from within a timeout are dropped by [Registry.Evict]. Each
// created device receives a new generation number, so a beacon that is evicted and later seen
// again can be told apart from the instance that was evicted.
//
// The registry lives only as long as the process. [Registry.Export] writes a JSON snapshot for
// diagnostics; there is deliberately no way to import one.
package registry
