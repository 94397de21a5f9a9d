// Package scan defines the canonical scan request shape and the
// normalization applied to inbound payloads before worker invocation.
package scan

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// DefaultRadiusMeters is applied when a payload carries no radius field.
const DefaultRadiusMeters = 300

// Item is one normalized unit of work: a substation location plus the
// radius to scan around it. Fields that arrived under aliased names are
// resolved onto the canonical ones; everything else from the original
// payload is preserved on the wire via extra.
type Item struct {
	ID           string
	Lat          float64
	Lon          float64
	RadiusMeters float64

	latOK bool
	lonOK bool
	extra map[string]any
}

// Batch is an ordered sequence of items served by a single worker
// invocation. A bare item submission becomes a batch of one.
type Batch []Item

// CoordinatesValid reports whether both coordinates resolved to finite
// numbers during normalization.
func (it Item) CoordinatesValid() bool {
	return it.latOK && it.lonOK
}

// MarshalJSON emits the original payload fields with the canonical fields
// layered on top, so the worker sees both its legacy vocabulary and the
// canonical one. Canonical values always win on key collisions.
func (it Item) MarshalJSON() ([]byte, error) {
	doc := make(map[string]any, len(it.extra)+4)
	for k, v := range it.extra {
		doc[k] = v
	}
	doc["id"] = it.ID
	doc["lat"] = it.Lat
	doc["lon"] = it.Lon
	doc["radius_meters"] = it.RadiusMeters
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal item %q: %w", it.ID, err)
	}
	return out, nil
}

// Validate enforces the all-or-nothing batch contract: the batch must be
// non-empty and every item must carry finite coordinates. The first
// offending item aborts the whole batch.
func (b Batch) Validate() error {
	if len(b) == 0 {
		return errors.New("empty batch: at least one item is required")
	}
	for _, it := range b {
		if !it.CoordinatesValid() {
			return fmt.Errorf("item %q: lat and lon must be finite numbers", it.ID)
		}
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
