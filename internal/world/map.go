package world

import "math"

// Terrain is the map contract consumed by the pathfinder and the movement
// system. Any implementation satisfying it is interchangeable.
type Terrain interface {
	Dimensions() (cols, rows int)
	TileInfo(c Cell) Tile
	WorldToGrid(x, y float64) Cell
	GridToWorld(c Cell) Vec2
}

// Map is a grid of tiles. It is immutable while queries are in flight; tile
// mutation and map swaps happen only between simulation ticks.
type Map struct {
	Width    int
	Height   int
	TileSize float64
	Tiles    [][]TileType
}

// NewMap creates an all-grass map with the given dimensions.
func NewMap(width, height int, tileSize float64) *Map {
	m := &Map{
		Width:    width,
		Height:   height,
		TileSize: tileSize,
		Tiles:    make([][]TileType, height),
	}
	for i := range m.Tiles {
		m.Tiles[i] = make([]TileType, width)
	}
	return m
}

// InBounds reports whether the cell lies inside the grid.
func (m *Map) InBounds(c Cell) bool {
	return c.GX >= 0 && c.GX < m.Width && c.GY >= 0 && c.GY < m.Height
}

// GetTile returns the tile type at the given grid coordinates. Out of bounds
// is water.
func (m *Map) GetTile(gx, gy int) TileType {
	if gx < 0 || gx >= m.Width || gy < 0 || gy >= m.Height {
		return TileWater
	}
	return m.Tiles[gy][gx]
}

// SetTile sets the tile type at the given grid coordinates.
func (m *Map) SetTile(gx, gy int, tileType TileType) {
	if gx >= 0 && gx < m.Width && gy >= 0 && gy < m.Height {
		m.Tiles[gy][gx] = tileType
	}
}

// Dimensions reports the grid size in cells.
func (m *Map) Dimensions() (int, int) {
	return m.Width, m.Height
}

// TileInfo returns the terrain properties at the given cell.
func (m *Map) TileInfo(c Cell) Tile {
	tileType := m.GetTile(c.GX, c.GY)
	def, ok := TileDefinitions[tileType]
	if !ok {
		def = TileDefinitions[TileGrass]
	}
	return def
}

// WorldToGrid converts world coordinates to grid coordinates.
func (m *Map) WorldToGrid(x, y float64) Cell {
	return Cell{
		GX: int(math.Floor(x / m.TileSize)),
		GY: int(math.Floor(y / m.TileSize)),
	}
}

// GridToWorld converts grid coordinates to the world-space tile center.
func (m *Map) GridToWorld(c Cell) Vec2 {
	return Vec2{
		X: float64(c.GX)*m.TileSize + m.TileSize/2,
		Y: float64(c.GY)*m.TileSize + m.TileSize/2,
	}
}

// WorldWidth reports the map extent in world units.
func (m *Map) WorldWidth() float64 {
	return float64(m.Width) * m.TileSize
}

// WorldHeight reports the map extent in world units.
func (m *Map) WorldHeight() float64 {
	return float64(m.Height) * m.TileSize
}

// ClampWorld pulls a world coordinate into the map so a later WorldToGrid
// always lands in bounds.
func (m *Map) ClampWorld(x, y float64) (float64, float64) {
	maxX := m.WorldWidth() - 1
	if maxX < 0 {
		maxX = 0
	}
	maxY := m.WorldHeight() - 1
	if maxY < 0 {
		maxY = 0
	}
	return Clamp(x, 0, maxX), Clamp(y, 0, maxY)
}

var _ Terrain = (*Map)(nil)
