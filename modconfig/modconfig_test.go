package modconfig

import "testing"

const sampleTOML = `
game_name = "Metroid Prime"
mod_name = "Randomizer"
version = "1.0.0"
expected_iso_hash = "deadbeef"
output_name_iso = "rando.iso"
output_name_dol = "default_mod.dol"
entry_point_symbol = "mod_entry"

[[branch_patches]]
branch_from_symbol = "hook_site"
to_symbol = "mod_entry"
link = true
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sampleTOML))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.GameName != "Metroid Prime" {
		t.Fatalf("GameName = %q", cfg.GameName)
	}
	if len(cfg.BranchPatches) != 1 {
		t.Fatalf("BranchPatches = %d; want 1", len(cfg.BranchPatches))
	}
	bp := cfg.BranchPatches[0]
	if bp.BranchFromSymbol != "hook_site" || bp.ToSymbol != "mod_entry" || !bp.Link {
		t.Fatalf("BranchPatches[0] = %+v", bp)
	}
}

func TestParseWithoutOptionalFields(t *testing.T) {
	cfg, err := Parse([]byte(`
game_name = "Test"
mod_name = "T"
version = "0.1"
output_name_iso = "out.iso"
output_name_dol = "out.dol"
entry_point_symbol = "entry"
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ExpectedISOHash != "" || cfg.BNRFile != "" {
		t.Fatalf("expected optional fields empty, got %+v", cfg)
	}
}

func TestParseInvalidTOML(t *testing.T) {
	if _, err := Parse([]byte("not valid = = toml")); err == nil {
		t.Fatal("expected error")
	}
}
