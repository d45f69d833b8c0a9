package world

import (
	"strings"
	"testing"
)

const sampleYAML = `
name: pond
width: 4
height: 3
tileSize: 16
legend:
  ".": grass
  "~": water
spawn:
  gx: 0
  gy: 0
rows:
  - "...."
  - ".~~."
  - "...."
`

func TestParseDefinitionYAML(t *testing.T) {
	def, err := ParseDefinition([]byte(sampleYAML), "yaml")
	if err != nil {
		t.Fatalf("ParseDefinition returned error: %v", err)
	}
	m, err := def.BuildMap()
	if err != nil {
		t.Fatalf("BuildMap returned error: %v", err)
	}
	if m.Width != 4 || m.Height != 3 || m.TileSize != 16 {
		t.Fatalf("unexpected map shape %dx%d tile=%v", m.Width, m.Height, m.TileSize)
	}
	if m.GetTile(1, 1) != TileWater || m.GetTile(0, 0) != TileGrass {
		t.Fatalf("legend not applied: %v", m.Tiles)
	}
	if spawn := def.SpawnCell(m); spawn != (Cell{GX: 0, GY: 0}) {
		t.Fatalf("unexpected spawn %+v", spawn)
	}
}

func TestParseDefinitionJSON(t *testing.T) {
	doc := `{
		"name": "strip",
		"width": 3,
		"height": 1,
		"tileSize": 32,
		"legend": {".": "grass"},
		"rows": ["..."]
	}`
	def, err := ParseDefinition([]byte(doc), "json")
	if err != nil {
		t.Fatalf("ParseDefinition returned error: %v", err)
	}
	if def.Name != "strip" || def.Width != 3 {
		t.Fatalf("unexpected definition %+v", def)
	}
}

func TestParseDefinitionRejectsBadDocuments(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(string) string
		wantErr string
	}{
		{
			name:    "short-row",
			mutate:  func(doc string) string { return strings.Replace(doc, `".~~."`, `".~."`, 1) },
			wantErr: "cells",
		},
		{
			name:    "unknown-tile",
			mutate:  func(doc string) string { return strings.Replace(doc, `"~": water`, `"~": lava`, 1) },
			wantErr: "unknown tile type",
		},
		{
			name:    "missing-symbol",
			mutate:  func(doc string) string { return strings.Replace(doc, `".~~."`, `".XX."`, 1) },
			wantErr: "missing from legend",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseDefinition([]byte(tc.mutate(sampleYAML)), "yaml")
			if err == nil {
				t.Fatalf("expected an error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestDefaultDefinition(t *testing.T) {
	def, err := DefaultDefinition()
	if err != nil {
		t.Fatalf("DefaultDefinition returned error: %v", err)
	}
	m, err := def.BuildMap()
	if err != nil {
		t.Fatalf("BuildMap returned error: %v", err)
	}
	spawn := def.SpawnCell(m)
	if !m.TileInfo(spawn).Walkable {
		t.Fatalf("embedded map spawn %+v is not walkable", spawn)
	}

	// The embedded demo map must have a route from spawn around its lake.
	finder := NewPathfinder(m, 0)
	goal := Cell{GX: m.Width - 3, GY: m.Height - 5}
	if !m.TileInfo(goal).Walkable {
		t.Fatalf("expected goal %+v to be walkable", goal)
	}
	if path := finder.FindPath(spawn, goal); path == nil {
		t.Fatalf("no route across the embedded map")
	}
}
