package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

type Catalogs struct {
	Crops  CropCatalog
	Layout LayoutCatalog
}

type CropCatalog struct {
	Palette       []string
	Index         map[string]uint16
	Defs          map[string]CropDef
	PaletteDigest string
	DefsDigest    string
}

// CropDef is the immutable descriptor for one crop type. StageSprites is the
// per-stage visual key sequence; its length is the stage count.
type CropDef struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	StageSprites  []string   `json:"stage_sprites"`
	SickSprite    string     `json:"sick_sprite"`
	GrowthSeconds float64    `json:"growth_seconds"`
	SeedItem      string     `json:"seed_item"`
	CropItem      string     `json:"crop_item"`
	SeedYield     YieldRange `json:"seed_yield"`
	CropYield     YieldRange `json:"crop_yield"`
}

type YieldRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

func (c CropDef) StageCount() int { return len(c.StageSprites) }

type LayoutCatalog struct {
	Plots   []PlotRegion
	Regions map[string]Rect
	Digest  string
}

// Rect is an inclusive cell rectangle: [x0, y0, x1, y1].
type Rect [4]int

type PlotRegion struct {
	Rect  Rect   `json:"rect"`
	State string `json:"state"` // "LOCKED", "EMPTY", "TILLED"
}

type layoutFile struct {
	Plots   []PlotRegion `json:"plots"`
	Regions []namedRect  `json:"regions"`
}

type namedRect struct {
	ID   string `json:"id"`
	Rect Rect   `json:"rect"`
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs

	if err := loadCrops(filepath.Join(configDir, "crops.json"), &c.Crops); err != nil {
		return nil, err
	}
	if err := loadLayout(filepath.Join(configDir, "layout.json"), &c.Layout); err != nil {
		return nil, err
	}

	return &c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadCrops(path string, out *CropCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.DefsDigest = sha256Hex(raw)

	var defs []CropDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("crops.json: %w", err)
	}
	out.Defs = map[string]CropDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("crops.json: empty id")
		}
		if len(d.StageSprites) < 2 {
			return fmt.Errorf("crops.json: %s: needs at least 2 stages", d.ID)
		}
		if d.GrowthSeconds <= 0 {
			return fmt.Errorf("crops.json: %s: growth_seconds must be > 0", d.ID)
		}
		if err := checkYield(d.ID, "seed_yield", d.SeedYield); err != nil {
			return err
		}
		if err := checkYield(d.ID, "crop_yield", d.CropYield); err != nil {
			return err
		}
		if d.SeedItem == "" || d.CropItem == "" {
			return fmt.Errorf("crops.json: %s: missing seed_item/crop_item", d.ID)
		}
		out.Defs[d.ID] = d
	}

	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out.Palette = ids
	out.Index = make(map[string]uint16, len(ids))
	for i, id := range ids {
		out.Index[id] = uint16(i)
	}
	palJSON, _ := json.Marshal(ids)
	out.PaletteDigest = sha256Hex(palJSON)
	return nil
}

func checkYield(cropID, field string, y YieldRange) error {
	if y.Min < 0 || y.Max < y.Min {
		return fmt.Errorf("crops.json: %s: bad %s [%d,%d]", cropID, field, y.Min, y.Max)
	}
	return nil
}

var validPlotStates = map[string]struct{}{
	"LOCKED": {},
	"EMPTY":  {},
	"TILLED": {},
}

func loadLayout(path string, out *LayoutCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var f layoutFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("layout.json: %w", err)
	}
	if len(f.Plots) == 0 {
		return fmt.Errorf("layout.json: no plots")
	}
	for i, p := range f.Plots {
		if _, ok := validPlotStates[p.State]; !ok {
			return fmt.Errorf("layout.json: plots[%d]: invalid state %q", i, p.State)
		}
		if err := checkRect(fmt.Sprintf("plots[%d]", i), p.Rect); err != nil {
			return err
		}
	}
	out.Plots = f.Plots

	out.Regions = map[string]Rect{}
	for i, r := range f.Regions {
		if r.ID == "" {
			return fmt.Errorf("layout.json: regions[%d]: empty id", i)
		}
		if err := checkRect(fmt.Sprintf("regions[%d]", i), r.Rect); err != nil {
			return err
		}
		if _, dup := out.Regions[r.ID]; dup {
			return fmt.Errorf("layout.json: duplicate region %q", r.ID)
		}
		out.Regions[r.ID] = r.Rect
	}
	return nil
}

func checkRect(what string, r Rect) error {
	if r[2] < r[0] || r[3] < r[1] {
		return fmt.Errorf("layout.json: %s: inverted rect %v", what, r)
	}
	return nil
}
