// Package conf loads the ambient configuration for the linear hash
// index module: page-cache sizing and the on-disk layout knobs that
// are not part of a single map's persistent metadata (spec.md §6).
package conf

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/ini.v1"
)

// Cfg holds module-wide settings, independent of any one map handle.
type Cfg struct {
	Raw *ini.File

	// OverflowDir is the directory overflow chain files (<id>_<bucket>.ovf)
	// and the main data file are created under. Defaults to the process
	// working directory, but is configurable per design note §9.
	OverflowDir string

	// CacheSlots is the number of explicitly-addressed page cache slots
	// (spec §4.3); must be >= 2 to support splits.
	CacheSlots int

	// RecordsPerBucket is the default bucket capacity used by demos and
	// tests when a map doesn't specify one explicitly.
	RecordsPerBucket int
}

// NewCfg returns a Cfg populated with the module's defaults.
func NewCfg() *Cfg {
	return &Cfg{
		Raw:              ini.Empty(),
		OverflowDir:      ".",
		CacheSlots:       2,
		RecordsPerBucket: 4,
	}
}

// Load reads an INI file at path and overlays it onto the defaults.
// A missing file is not an error; NewCfg's defaults are kept.
func (cfg *Cfg) Load(path string) (*Cfg, error) {
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("stat config %s: %w", path, err)
	}

	iniFile, err := ini.Load(path)
	if err != nil {
		return cfg, fmt.Errorf("load config %s: %w", path, err)
	}
	cfg.Raw = iniFile

	section := iniFile.Section("linearhash")
	if key, err := section.GetKey("overflow_dir"); err == nil {
		cfg.OverflowDir = key.String()
	}
	if key, err := section.GetKey("cache_slots"); err == nil {
		if v, err := key.Int(); err == nil && v >= 2 {
			cfg.CacheSlots = v
		}
	}
	if key, err := section.GetKey("records_per_bucket"); err == nil {
		if v, err := key.Int(); err == nil && v >= 1 {
			cfg.RecordsPerBucket = v
		}
	}

	return cfg, nil
}

// OverflowPath returns the path of the overflow file for (id, bucket),
// canonicalised onto the host separator (design note §9).
func (cfg *Cfg) OverflowPath(id int, bucket uint32) string {
	return filepath.Join(cfg.OverflowDir, fmt.Sprintf("%d_%d.ovf", id, bucket))
}

// MainPath returns the path of the main data file for id.
func (cfg *Cfg) MainPath(id int) string {
	return filepath.Join(cfg.OverflowDir, fmt.Sprintf("%d_lh_main.bin", id))
}
