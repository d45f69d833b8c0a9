package world

import (
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed maps/meadow.yaml
var embeddedMaps embed.FS

// Definition is the designer-authored map document. Maps are authored as YAML
// or JSON; cmd/mapschema publishes the JSON schema for editor validation.
type Definition struct {
	Name     string            `json:"name" yaml:"name" jsonschema:"title=Map name,description=Display name for the map"`
	Width    int               `json:"width" yaml:"width" jsonschema:"minimum=1,description=Grid width in cells"`
	Height   int               `json:"height" yaml:"height" jsonschema:"minimum=1,description=Grid height in cells"`
	TileSize float64           `json:"tileSize" yaml:"tileSize" jsonschema:"minimum=1,description=Tile edge length in world units"`
	Legend   map[string]string `json:"legend" yaml:"legend" jsonschema:"description=Single-character symbols mapped to tile type names"`
	Rows     []string          `json:"rows" yaml:"rows" jsonschema:"description=Height rows of Width legend symbols each"`
	Spawn    *SpawnDef         `json:"spawn,omitempty" yaml:"spawn,omitempty" jsonschema:"description=Cell where new walkers appear"`
}

// SpawnDef names the cell where joining walkers are placed.
type SpawnDef struct {
	GX int `json:"gx" yaml:"gx"`
	GY int `json:"gy" yaml:"gy"`
}

// ParseDefinition decodes a map document. Format is "yaml" or "json".
func ParseDefinition(data []byte, format string) (*Definition, error) {
	var def Definition
	switch format {
	case "yaml":
		if err := yaml.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("world: unmarshal map definition: %w", err)
		}
	case "json":
		if err := json.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("world: unmarshal map definition: %w", err)
		}
	default:
		return nil, fmt.Errorf("world: unsupported map format %q", format)
	}
	if err := def.validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// LoadDefinitionFile reads a map document from disk, choosing the format by
// file extension.
func LoadDefinitionFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("world: read map definition %s: %w", path, err)
	}
	format := "yaml"
	if strings.EqualFold(filepath.Ext(path), ".json") {
		format = "json"
	}
	return ParseDefinition(data, format)
}

// DefaultDefinition returns the map compiled into the binary.
func DefaultDefinition() (*Definition, error) {
	data, err := embeddedMaps.ReadFile("maps/meadow.yaml")
	if err != nil {
		return nil, fmt.Errorf("world: read embedded map: %w", err)
	}
	return ParseDefinition(data, "yaml")
}

func (d *Definition) validate() error {
	if d.Width <= 0 || d.Height <= 0 {
		return fmt.Errorf("world: map %q has invalid dimensions %dx%d", d.Name, d.Width, d.Height)
	}
	if d.TileSize <= 0 {
		return fmt.Errorf("world: map %q has invalid tile size %v", d.Name, d.TileSize)
	}
	if len(d.Rows) != d.Height {
		return fmt.Errorf("world: map %q has %d rows, want %d", d.Name, len(d.Rows), d.Height)
	}
	if len(d.Legend) == 0 {
		return fmt.Errorf("world: map %q has an empty legend", d.Name)
	}
	for symbol, name := range d.Legend {
		if len([]rune(symbol)) != 1 {
			return fmt.Errorf("world: map %q legend symbol %q is not a single character", d.Name, symbol)
		}
		if _, ok := TileTypeByName(name); !ok {
			return fmt.Errorf("world: map %q legend references unknown tile type %q", d.Name, name)
		}
	}
	for i, row := range d.Rows {
		runes := []rune(row)
		if len(runes) != d.Width {
			return fmt.Errorf("world: map %q row %d has %d cells, want %d", d.Name, i, len(runes), d.Width)
		}
		for _, symbol := range runes {
			if _, ok := d.Legend[string(symbol)]; !ok {
				return fmt.Errorf("world: map %q row %d uses symbol %q missing from legend", d.Name, i, string(symbol))
			}
		}
	}
	if d.Spawn != nil {
		if d.Spawn.GX < 0 || d.Spawn.GX >= d.Width || d.Spawn.GY < 0 || d.Spawn.GY >= d.Height {
			return fmt.Errorf("world: map %q spawn %+v out of bounds", d.Name, *d.Spawn)
		}
	}
	return nil
}

// BuildMap materializes the definition into a Map.
func (d *Definition) BuildMap() (*Map, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}
	m := NewMap(d.Width, d.Height, d.TileSize)
	for gy, row := range d.Rows {
		for gx, symbol := range []rune(row) {
			name := d.Legend[string(symbol)]
			tileType, _ := TileTypeByName(name)
			m.SetTile(gx, gy, tileType)
		}
	}
	return m, nil
}

// SpawnCell picks where a joining walker should appear: the declared spawn if
// walkable, otherwise the first walkable cell in row order.
func (d *Definition) SpawnCell(m *Map) Cell {
	if d.Spawn != nil {
		cell := Cell{GX: d.Spawn.GX, GY: d.Spawn.GY}
		if m.TileInfo(cell).Walkable {
			return cell
		}
	}
	for gy := 0; gy < m.Height; gy++ {
		for gx := 0; gx < m.Width; gx++ {
			cell := Cell{GX: gx, GY: gy}
			if m.TileInfo(cell).Walkable {
				return cell
			}
		}
	}
	return Cell{}
}
