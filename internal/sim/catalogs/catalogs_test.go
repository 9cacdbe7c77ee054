package catalogs

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

func TestLoad_ShippedConfigs(t *testing.T) {
	c, err := Load("../../../configs")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if len(c.Crops.Defs) == 0 {
		t.Fatalf("no crop defs loaded")
	}
	if !sort.StringsAreSorted(c.Crops.Palette) {
		t.Fatalf("palette not sorted: %v", c.Crops.Palette)
	}
	if len(c.Crops.Palette) != len(c.Crops.Defs) {
		t.Fatalf("palette/defs size mismatch: %d vs %d", len(c.Crops.Palette), len(c.Crops.Defs))
	}
	for i, id := range c.Crops.Palette {
		if c.Crops.Index[id] != uint16(i) {
			t.Fatalf("index[%s]=%d want %d", id, c.Crops.Index[id], i)
		}
	}
	if c.Crops.PaletteDigest == "" || c.Crops.DefsDigest == "" || c.Layout.Digest == "" {
		t.Fatalf("missing digests")
	}

	turnip, ok := c.Crops.Defs["TURNIP"]
	if !ok {
		t.Fatalf("TURNIP missing from catalog")
	}
	if turnip.StageCount() < 2 {
		t.Fatalf("TURNIP stage count %d", turnip.StageCount())
	}
	if turnip.SeedItem != "turnip_seed" || turnip.CropItem != "turnip" {
		t.Fatalf("TURNIP items: %s/%s", turnip.SeedItem, turnip.CropItem)
	}

	if len(c.Layout.Plots) == 0 {
		t.Fatalf("no plot regions")
	}
	if _, ok := c.Layout.Regions["NORTH_FIELD"]; !ok {
		t.Fatalf("NORTH_FIELD region missing")
	}
}

func writeConfigs(t *testing.T, crops, layout string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "crops.json"), []byte(crops), 0o644); err != nil {
		t.Fatalf("write crops: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "layout.json"), []byte(layout), 0o644); err != nil {
		t.Fatalf("write layout: %v", err)
	}
	return dir
}

const validLayout = `{"plots":[{"rect":[0,0,1,1],"state":"EMPTY"}],"regions":[]}`

const validCrops = `[{"id":"TURNIP","name":"Turnip","stage_sprites":["a","b"],"sick_sprite":"s",
	"growth_seconds":60,"seed_item":"turnip_seed","crop_item":"turnip",
	"seed_yield":{"min":1,"max":1},"crop_yield":{"min":1,"max":1}}]`

func TestLoad_RejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name    string
		crops   string
		layout  string
		wantErr string
	}{
		{
			name: "single stage crop",
			crops: `[{"id":"X","stage_sprites":["only"],"growth_seconds":60,
				"seed_item":"s","crop_item":"c","seed_yield":{"min":1,"max":1},"crop_yield":{"min":1,"max":1}}]`,
			layout:  validLayout,
			wantErr: "at least 2 stages",
		},
		{
			name: "inverted yield range",
			crops: `[{"id":"X","stage_sprites":["a","b"],"growth_seconds":60,
				"seed_item":"s","crop_item":"c","seed_yield":{"min":3,"max":1},"crop_yield":{"min":1,"max":1}}]`,
			layout:  validLayout,
			wantErr: "bad seed_yield",
		},
		{
			name:    "invalid plot state",
			crops:   validCrops,
			layout:  `{"plots":[{"rect":[0,0,1,1],"state":"PLANTED"}],"regions":[]}`,
			wantErr: "invalid state",
		},
		{
			name:    "duplicate region id",
			crops:   validCrops,
			layout:  `{"plots":[{"rect":[0,0,1,1],"state":"EMPTY"}],"regions":[{"id":"A","rect":[0,0,1,1]},{"id":"A","rect":[2,2,3,3]}]}`,
			wantErr: "duplicate region",
		},
		{
			name:    "inverted rect",
			crops:   validCrops,
			layout:  `{"plots":[{"rect":[5,5,1,1],"state":"EMPTY"}],"regions":[]}`,
			wantErr: "inverted rect",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := writeConfigs(t, tc.crops, tc.layout)
			_, err := Load(dir)
			if err == nil {
				t.Fatalf("expected error containing %q", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err=%v want substring %q", err, tc.wantErr)
			}
		})
	}
}
