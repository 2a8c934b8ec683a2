// README: Grid-bucketed in-memory spatial index over responder positions.
package geo

import (
	"math"
	"sync"

	"aegis/internal/types"
)

// cellSizeDeg is the side of a grid cell in degrees. 0.01° is roughly 1.1 km
// of latitude, so a 5 km query touches a handful of cells instead of the
// whole index.
const cellSizeDeg = 0.01

type cellKey struct {
	latCell int
	lngCell int
}

// Neighbor is one query result: an indexed ID and its distance from the
// query point.
type Neighbor struct {
	ID        types.ID
	DistanceM float64
}

// Index answers "which IDs are within radius R of point P, ordered by
// distance" without a full linear scan. Reads run concurrently; mutations
// take brief exclusive access.
type Index struct {
	mu        sync.RWMutex
	cells     map[cellKey]map[types.ID]types.Point
	positions map[types.ID]types.Point
}

func NewIndex() *Index {
	return &Index{
		cells:     make(map[cellKey]map[types.ID]types.Point),
		positions: make(map[types.ID]types.Point),
	}
}

// Insert adds or replaces the indexed position for an ID. Idempotent.
func (x *Index) Insert(id types.ID, pos types.Point) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if old, ok := x.positions[id]; ok {
		x.removeFromCell(id, old)
	}
	x.positions[id] = pos
	key := keyFor(pos)
	cell, ok := x.cells[key]
	if !ok {
		cell = make(map[types.ID]types.Point)
		x.cells[key] = cell
	}
	cell[id] = pos
}

// Remove drops an ID from the index. No-op if absent.
func (x *Index) Remove(id types.ID) {
	x.mu.Lock()
	defer x.mu.Unlock()

	pos, ok := x.positions[id]
	if !ok {
		return
	}
	delete(x.positions, id)
	x.removeFromCell(id, pos)
}

// Len reports how many IDs are currently indexed.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.positions)
}

// QueryNearest returns up to limit IDs within maxRadiusMeters of point,
// ascending by great-circle distance, ties broken by ID ascending. An empty
// result is not an error.
func (x *Index) QueryNearest(point types.Point, maxRadiusMeters float64, limit int) []Neighbor {
	if limit <= 0 || maxRadiusMeters < 0 {
		return nil
	}

	x.mu.RLock()
	candidates := x.collect(point, maxRadiusMeters)
	x.mu.RUnlock()

	sortNeighbors(candidates)
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates
}

// collect scans the cells overlapping the query circle. Caller holds the
// read lock.
func (x *Index) collect(point types.Point, maxRadiusMeters float64) []Neighbor {
	// Cell span of the radius. Longitude degrees shrink with latitude, so
	// widen the lng span by 1/cos(lat); clamp near the poles.
	latSpan := int(math.Ceil(maxRadiusMeters/metersPerDegreeLat/cellSizeDeg)) + 1
	cosLat := math.Cos(degreesToRadians(point.Lat))
	if cosLat < 0.01 {
		cosLat = 0.01
	}
	lngSpan := int(math.Ceil(maxRadiusMeters/(metersPerDegreeLat*cosLat)/cellSizeDeg)) + 1

	center := keyFor(point)
	var out []Neighbor
	for dLat := -latSpan; dLat <= latSpan; dLat++ {
		for dLng := -lngSpan; dLng <= lngSpan; dLng++ {
			cell, ok := x.cells[cellKey{center.latCell + dLat, center.lngCell + dLng}]
			if !ok {
				continue
			}
			for id, pos := range cell {
				d := DistanceMeters(point, pos)
				if d <= maxRadiusMeters {
					out = append(out, Neighbor{ID: id, DistanceM: d})
				}
			}
		}
	}
	return out
}

// metersPerDegreeLat is the mean meridional degree length.
const metersPerDegreeLat = 111_195.0

func (x *Index) removeFromCell(id types.ID, pos types.Point) {
	key := keyFor(pos)
	if cell, ok := x.cells[key]; ok {
		delete(cell, id)
		if len(cell) == 0 {
			delete(x.cells, key)
		}
	}
}

func keyFor(pos types.Point) cellKey {
	return cellKey{
		latCell: int(math.Floor(pos.Lat / cellSizeDeg)),
		lngCell: int(math.Floor(pos.Lng / cellSizeDeg)),
	}
}
