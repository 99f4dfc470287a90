package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enerloop/internal/idf"
)

func TestNormal_UnitSquare(t *testing.T) {
	ccw := []Vec3{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0}}
	n, ok := Normal(ccw)
	require.True(t, ok)
	assert.InDelta(t, 0, n.X, 1e-12)
	assert.InDelta(t, 0, n.Y, 1e-12)
	assert.InDelta(t, 1, n.Z, 1e-12)

	n, ok = Normal(reverse(ccw))
	require.True(t, ok)
	assert.InDelta(t, -1, n.Z, 1e-12)
}

func TestNormal_SkipsDegenerateTriple(t *testing.T) {
	// First three vertices are collinear; the first valid triple further
	// along must win.
	verts := []Vec3{{0, 0, 0}, {1, 0, 0}, {2, 0, 0}, {2, 1, 0}}
	n, ok := Normal(verts)
	require.True(t, ok)
	assert.InDelta(t, 1, n.Z, 1e-12)
}

func TestNormal_TooFewOrFlat(t *testing.T) {
	_, ok := Normal([]Vec3{{0, 0, 0}, {1, 0, 0}})
	assert.False(t, ok)

	_, ok = Normal([]Vec3{{0, 0, 0}, {1, 0, 0}, {2, 0, 0}})
	assert.False(t, ok)
}

const wallWithWindow = `BuildingSurface:Detailed,
  South Wall,              !- Name
  Wall,                    !- Surface Type
  Ext Wall,                !- Construction Name
  Core Zone,               !- Zone Name
  Outdoors,                !- Outside Boundary Condition
  ,                        !- Outside Boundary Condition Object
  SunExposed,              !- Sun Exposure
  WindExposed,             !- Wind Exposure
  autocalculate,           !- View Factor to Ground
  4,                       !- Number of Vertices
  0, 0, 3,
  0, 0, 0,
  10, 0, 0,
  10, 0, 3;

FenestrationSurface:Detailed,
  South Window,            !- Name
  Window,                  !- Surface Type
  Glazing,                 !- Construction Name
  South Wall,              !- Building Surface Name
  ,                        !- Outside Boundary Condition Object
  autocalculate,           !- View Factor to Ground
  ,                        !- Frame and Divider Name
  1,                       !- Multiplier
  4,                       !- Number of Vertices
  8, 0, 2,
  8, 0, 1,
  2, 0, 1,
  2, 0, 2;
`

func TestFixFenestrationOrientation(t *testing.T) {
	t.Run("reversed window is flipped exactly once", func(t *testing.T) {
		m, err := idf.Parse(wallWithWindow)
		require.NoError(t, err)

		wall := m.Find("BuildingSurface:Detailed", "South Wall")
		win := m.Find("FenestrationSurface:Detailed", "South Window")
		wallN, _ := Normal(Vertices(wall, surfVertexCount))
		winN, _ := Normal(Vertices(win, subSurfVertexCount))
		require.Less(t, winN.Dot(wallN), -1e-6, "fixture must start misaligned")

		assert.Equal(t, 1, FixFenestrationOrientation(m, nil))

		winN, _ = Normal(Vertices(win, subSurfVertexCount))
		assert.Greater(t, winN.Dot(wallN), 1e-6)

		// Idempotence: already aligned, second pass touches nothing.
		assert.Equal(t, 0, FixFenestrationOrientation(m, nil))

		// Parent untouched: still byte-identical in the output.
		assert.Contains(t, m.Serialize(), "  South Wall,              !- Name")
	})

	t.Run("unresolved parent is skipped", func(t *testing.T) {
		m, err := idf.Parse(wallWithWindow)
		require.NoError(t, err)
		win := m.Find("FenestrationSurface:Detailed", "South Window")
		win.SetValue(subSurfParentIdx, "No Such Wall")
		before := Vertices(win, subSurfVertexCount)

		assert.Equal(t, 0, FixFenestrationOrientation(m, nil))
		assert.Equal(t, before, Vertices(win, subSurfVertexCount))
	})

	t.Run("degenerate window loop is skipped", func(t *testing.T) {
		m, err := idf.Parse(wallWithWindow)
		require.NoError(t, err)
		win := m.Find("FenestrationSurface:Detailed", "South Window")
		win.SetValue(subSurfVertexCount, "2")

		assert.Equal(t, 0, FixFenestrationOrientation(m, nil))
	})
}

const clockwiseFloor = `BuildingSurface:Detailed,
  Core Floor,              !- Name
  Floor,                   !- Surface Type
  Slab,                    !- Construction Name
  Core Zone,               !- Zone Name
  Surface,                 !- Outside Boundary Condition
  ,                        !- Outside Boundary Condition Object
  SunExposed,              !- Sun Exposure
  WindExposed,             !- Wind Exposure
  autocalculate,           !- View Factor to Ground
  4,                       !- Number of Vertices
  0, 0, 0,
  1, 0, 0,
  1, 1, 0,
  0, 1, 0;
`

func TestFixFloorWinding(t *testing.T) {
	m, err := idf.Parse(clockwiseFloor)
	require.NoError(t, err)
	floor := m.Find("BuildingSurface:Detailed", "Core Floor")

	n, ok := Normal(Vertices(floor, surfVertexCount))
	require.True(t, ok)
	require.Greater(t, n.Z, 0.0, "fixture floor must start wound upward")

	assert.Equal(t, 1, FixFloorWinding(m))

	n, _ = Normal(Vertices(floor, surfVertexCount))
	assert.Less(t, n.Z, 0.0)
	assert.Equal(t, "Ground", floor.Value(surfBoundary))
	assert.Equal(t, "NoSun", floor.Value(surfSunExposure))
	assert.Equal(t, "NoWind", floor.Value(surfWindExpose))

	// Idempotence: no double reversal, no field churn.
	assert.Equal(t, 0, FixFloorWinding(m))
	n, _ = Normal(Vertices(floor, surfVertexCount))
	assert.Less(t, n.Z, 0.0)
}

func TestFixFloorWinding_IgnoresWalls(t *testing.T) {
	m, err := idf.Parse(wallWithWindow)
	require.NoError(t, err)
	assert.Equal(t, 0, FixFloorWinding(m))
}
