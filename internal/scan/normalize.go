package scan

import (
	"fmt"
	"strconv"
	"time"
)

// Accepted source fields per canonical field, in priority order. The first
// present field wins even if its value fails coercion; later aliases are
// not consulted as fallbacks for a malformed earlier one.
var (
	idAliases     = []string{"id", "id_subestacao", "name"}
	latAliases    = []string{"lat", "latitude"}
	lonAliases    = []string{"lon", "lng", "longitude"}
	radiusAliases = []string{"radius_meters", "radius_m", "radius", "raio_m", "raio"}
)

// Normalize canonicalizes a decoded JSON payload into a Batch. A single
// object becomes a batch of one; an array is normalized element-wise in
// order. Any other payload shape yields a nil batch, which validation
// rejects as empty. Normalize never fails: items with uncoercible
// coordinates are marked invalid and caught by Batch.Validate.
func Normalize(v any) Batch {
	switch payload := v.(type) {
	case map[string]any:
		return Batch{normalizeItem(payload)}
	case []any:
		batch := make(Batch, 0, len(payload))
		for _, elem := range payload {
			raw, _ := elem.(map[string]any)
			batch = append(batch, normalizeItem(raw))
		}
		return batch
	default:
		return nil
	}
}

func normalizeItem(raw map[string]any) Item {
	it := Item{RadiusMeters: DefaultRadiusMeters}
	if len(raw) > 0 {
		it.extra = make(map[string]any, len(raw))
		for k, v := range raw {
			it.extra[k] = v
		}
	}

	it.ID = resolveID(raw)
	it.Lat, it.latOK = resolveFloat(raw, latAliases)
	it.Lon, it.lonOK = resolveFloat(raw, lonAliases)
	if r, ok := resolveFloat(raw, radiusAliases); ok {
		it.RadiusMeters = r
	}
	return it
}

func resolveID(raw map[string]any) string {
	for _, key := range idAliases {
		switch v := raw[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return fmt.Sprintf("item-%d", time.Now().UnixMilli())
}

func resolveFloat(raw map[string]any, aliases []string) (float64, bool) {
	for _, key := range aliases {
		v, present := raw[key]
		if !present {
			continue
		}
		return coerceFloat(v)
	}
	return 0, false
}

func coerceFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, finite(t)
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		return f, finite(f)
	default:
		return 0, false
	}
}
