package world

import "testing"

func TestGridWorldRoundTrip(t *testing.T) {
	m := NewMap(9, 9, 32)
	for gy := 0; gy < m.Height; gy++ {
		for gx := 0; gx < m.Width; gx++ {
			cell := Cell{GX: gx, GY: gy}
			center := m.GridToWorld(cell)
			if back := m.WorldToGrid(center.X, center.Y); back != cell {
				t.Fatalf("round trip for %+v via %+v gave %+v", cell, center, back)
			}
		}
	}
}

func TestGridToWorldReturnsTileCenter(t *testing.T) {
	m := NewMap(4, 4, 32)
	center := m.GridToWorld(Cell{GX: 1, GY: 2})
	if center.X != 48 || center.Y != 80 {
		t.Fatalf("expected tile center (48, 80), got %+v", center)
	}
}

func TestGetTileOutOfBoundsIsWater(t *testing.T) {
	m := NewMap(4, 4, 32)
	cases := []Cell{
		{GX: -1, GY: 0},
		{GX: 0, GY: -1},
		{GX: 4, GY: 0},
		{GX: 0, GY: 4},
	}
	for _, c := range cases {
		if got := m.GetTile(c.GX, c.GY); got != TileWater {
			t.Fatalf("GetTile(%d, %d) = %v, want water", c.GX, c.GY, got)
		}
		if info := m.TileInfo(c); info.Walkable {
			t.Fatalf("out-of-bounds tile %+v should not be walkable", c)
		}
	}
}

func TestClampWorldKeepsGridInBounds(t *testing.T) {
	m := NewMap(4, 4, 32)
	cases := []struct{ x, y float64 }{
		{-50, -50},
		{0, 0},
		{127.9, 127.9},
		{128, 128},
		{1000, 1000},
	}
	for _, tc := range cases {
		x, y := m.ClampWorld(tc.x, tc.y)
		if cell := m.WorldToGrid(x, y); !m.InBounds(cell) {
			t.Fatalf("clamped (%v, %v) -> (%v, %v) maps to out-of-bounds cell %+v", tc.x, tc.y, x, y, cell)
		}
	}
}
