// Package geometry repairs surface winding defects that make the simulation
// engine mis-orient heat-transfer surfaces: reversed fenestration loops and
// clockwise floors.
package geometry

import (
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"enerloop/internal/idf"
)

// Vec3 is a 3-component vector.
type Vec3 struct {
	X, Y, Z float64
}

func (v Vec3) sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

func (v Vec3) cross(o Vec3) Vec3 {
	return Vec3{
		v.Y*o.Z - v.Z*o.Y,
		v.Z*o.X - v.X*o.Z,
		v.X*o.Y - v.Y*o.X,
	}
}

// Dot returns the dot product.
func (v Vec3) Dot(o Vec3) float64 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }

func (v Vec3) norm() float64 { return math.Sqrt(v.Dot(v)) }

const degenerate = 1e-9

// Normal derives the outward unit normal from a vertex loop's winding. It
// scans consecutive vertex triples and returns the normalized cross product
// of the first pair of edge vectors that is not degenerate (collinear or
// zero-length edges). Later triples are never averaged in.
func Normal(verts []Vec3) (Vec3, bool) {
	if len(verts) < 3 {
		return Vec3{}, false
	}
	for i := 0; i+2 < len(verts); i++ {
		e1 := verts[i+1].sub(verts[i])
		e2 := verts[i+2].sub(verts[i+1])
		c := e1.cross(e2)
		n := c.norm()
		if n < degenerate {
			continue
		}
		return Vec3{c.X / n, c.Y / n, c.Z / n}, true
	}
	return Vec3{}, false
}

// Field layout of the surface classes this corrector touches. Fields before
// the vertex block are positional; everything after vertexCountIdx is the
// vertex loop.
const (
	surfaceType = "BuildingSurface:Detailed"
	subSurfType = "FenestrationSurface:Detailed"

	surfTypeIdx     = 1 // Floor / Wall / Roof / Ceiling
	surfBoundary    = 4 // Outside Boundary Condition
	surfSunExposure = 6
	surfWindExpose  = 7
	surfVertexCount = 9

	subSurfParentIdx   = 3
	subSurfVertexCount = 8
)

// Vertices reads the vertex loop that follows the count field at countIdx.
// A blank or non-numeric count falls back to whatever triples remain.
func Vertices(r *idf.Record, countIdx int) []Vec3 {
	start := countIdx + 1
	avail := (len(r.Fields) - start) / 3
	n := avail
	if c, ok := r.Float(countIdx); ok && int(c) >= 0 && int(c) <= avail {
		n = int(c)
	}
	verts := make([]Vec3, 0, n)
	for i := 0; i < n; i++ {
		x, okx := r.Float(start + i*3)
		y, oky := r.Float(start + i*3 + 1)
		z, okz := r.Float(start + i*3 + 2)
		if !okx || !oky || !okz {
			break
		}
		verts = append(verts, Vec3{x, y, z})
	}
	return verts
}

func setVertices(r *idf.Record, countIdx int, verts []Vec3) {
	start := countIdx + 1
	for i, v := range verts {
		r.SetValue(start+i*3, formatCoord(v.X))
		r.SetValue(start+i*3+1, formatCoord(v.Y))
		r.SetValue(start+i*3+2, formatCoord(v.Z))
	}
}

func formatCoord(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func reverse(verts []Vec3) []Vec3 {
	out := make([]Vec3, len(verts))
	for i, v := range verts {
		out[len(verts)-1-i] = v
	}
	return out
}

// FixFenestrationOrientation reverses the vertex loop of any sub-surface
// whose normal opposes its parent surface's normal (dot < -1e-6). Parent
// surfaces are never modified. Sub-surfaces with an unresolved parent or
// fewer than three vertices are skipped with a warning. Returns the number
// of loops reversed.
func FixFenestrationOrientation(m *idf.Model, log *zap.Logger) int {
	if log == nil {
		log = zap.NewNop()
	}
	fixed := 0
	for sub := range m.RecordsByType(subSurfType) {
		parent := m.Find(surfaceType, sub.Value(subSurfParentIdx))
		if parent == nil {
			log.Warn("fenestration parent not found, skipping",
				zap.String("subsurface", sub.Name()),
				zap.String("parent", sub.Value(subSurfParentIdx)))
			continue
		}
		subVerts := Vertices(sub, subSurfVertexCount)
		subN, ok := Normal(subVerts)
		if !ok {
			log.Warn("fenestration loop degenerate, skipping",
				zap.String("subsurface", sub.Name()),
				zap.Int("vertices", len(subVerts)))
			continue
		}
		parentN, ok := Normal(Vertices(parent, surfVertexCount))
		if !ok {
			log.Warn("parent surface loop degenerate, skipping",
				zap.String("surface", parent.Name()))
			continue
		}
		if subN.Dot(parentN) < -1e-6 {
			setVertices(sub, subSurfVertexCount, reverse(subVerts))
			fixed++
			log.Debug("reversed fenestration loop",
				zap.String("subsurface", sub.Name()))
		}
	}
	return fixed
}

// FixFloorWinding rewinds every floor surface so its normal points down and
// forces ground-coupled exposure (Ground boundary, NoSun, NoWind). This is a
// blanket heuristic treating all floors as ground-coupled interior surfaces;
// it does not derive contact from geometry. A floor whose normal already
// points down is left alone, so the pass is idempotent.
func FixFloorWinding(m *idf.Model) int {
	fixed := 0
	for surf := range m.RecordsByType(surfaceType) {
		if !strings.EqualFold(surf.Value(surfTypeIdx), "Floor") {
			continue
		}
		verts := Vertices(surf, surfVertexCount)
		changed := false
		if n, ok := Normal(verts); ok && n.Z > 1e-6 {
			setVertices(surf, surfVertexCount, reverse(verts))
			changed = true
		}
		changed = setIfDiffers(surf, surfBoundary, "Ground") || changed
		changed = setIfDiffers(surf, surfSunExposure, "NoSun") || changed
		changed = setIfDiffers(surf, surfWindExpose, "NoWind") || changed
		if changed {
			fixed++
		}
	}
	return fixed
}

func setIfDiffers(r *idf.Record, i int, v string) bool {
	if r.Value(i) == v {
		return false
	}
	r.SetValue(i, v)
	return true
}

