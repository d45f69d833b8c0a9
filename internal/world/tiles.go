package world

// TileType identifies a terrain tile kind.
type TileType int

const (
	TileGrass TileType = iota
	TileWater
	TileDirtPath
	TileMud
)

// Tile carries the terrain properties attached to a cell.
type Tile struct {
	Walkable  bool
	WalkSpeed float64
	Color     string
}

// TileDefinitions maps every tile type to its properties. Pathfinding costs
// divide by WalkSpeed, so faster terrain is cheaper to route through.
var TileDefinitions = map[TileType]Tile{
	TileGrass: {
		Walkable:  true,
		WalkSpeed: 1.0,
		Color:     "#90EE90",
	},
	TileWater: {
		Walkable:  false,
		WalkSpeed: 0.0,
		Color:     "#4169E1",
	},
	TileDirtPath: {
		Walkable:  true,
		WalkSpeed: 1.5,
		Color:     "#8B4513",
	},
	TileMud: {
		Walkable:  true,
		WalkSpeed: 0.5,
		Color:     "#6B5838",
	},
}

var tileTypeNames = map[TileType]string{
	TileGrass:    "grass",
	TileWater:    "water",
	TileDirtPath: "path",
	TileMud:      "mud",
}

func (t TileType) String() string {
	if name, ok := tileTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// TileTypeByName resolves the designer-facing tile name used in map legends.
func TileTypeByName(name string) (TileType, bool) {
	for tileType, candidate := range tileTypeNames {
		if candidate == name {
			return tileType, true
		}
	}
	return TileGrass, false
}
