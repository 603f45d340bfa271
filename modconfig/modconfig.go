// Package modconfig loads the mod object's .patcher_config section: a
// TOML document describing the target game, the optional hashes to
// verify, output file names, and the list of branch patches to apply.
package modconfig

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// BranchPatch describes one additional branch rewrite: the instruction at
// BranchFromSymbol's address is replaced with a b/bl to ToSymbol.
type BranchPatch struct {
	BranchFromSymbol string `toml:"branch_from_symbol"`
	ToSymbol         string `toml:"to_symbol"`
	Link             bool   `toml:"link"`
}

// Config is the parsed .patcher_config document.
type Config struct {
	GameName string `toml:"game_name"`
	ModName  string `toml:"mod_name"`
	Version  string `toml:"version"`

	ExpectedISOHash string `toml:"expected_iso_hash"`
	ExpectedDOLHash string `toml:"expected_dol_hash"`

	BNRFile string `toml:"bnr_file"`

	OutputNameISO string `toml:"output_name_iso"`
	OutputNameDOL string `toml:"output_name_dol"`

	EntryPointSymbol string `toml:"entry_point_symbol"`

	BranchPatches []BranchPatch `toml:"branch_patches"`
}

// Parse decodes a Config from the raw .patcher_config section bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, fmt.Errorf("modconfig: decode: %w", err)
	}
	return &cfg, nil
}
