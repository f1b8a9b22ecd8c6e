package region

import (
	"encoding/json"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/minjaeyoo/wardrobe-weather-service/internal/models"
)

// DefaultZoneID is the fallback forecast zone (Seoul metropolitan area) used
// when the directory resource is missing or a location matches nothing.
const DefaultZoneID = "11B00000"

// Directory is the loaded region directory. Built once at startup, read-only
// afterwards, and passed explicitly to consumers rather than held in a
// package-level singleton.
type Directory struct {
	meta *models.RegionMeta
}

// Load reads the region directory JSON at path. It never fails: a missing or
// malformed resource degrades to an empty directory with DefaultZoneID, which
// is logged and otherwise indistinguishable from a directory with no entries.
func Load(path string, logger *zap.Logger) *Directory {
	data, err := os.ReadFile(path)
	if err != nil {
		if logger != nil {
			logger.Warn("region directory unavailable, using defaults", zap.String("path", path), zap.Error(err))
		}
		return Empty()
	}

	var meta models.RegionMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		if logger != nil {
			logger.Warn("region directory malformed, using defaults", zap.String("path", path), zap.Error(err))
		}
		return Empty()
	}
	if meta.DefaultZoneID == "" {
		meta.DefaultZoneID = DefaultZoneID
	}
	if meta.CityToZone == nil {
		meta.CityToZone = map[string]string{}
	}
	if meta.RegionToZone == nil {
		meta.RegionToZone = map[string]string{}
	}
	if logger != nil {
		logger.Info("region directory loaded",
			zap.Int("regions", len(meta.Regions)),
			zap.Int("cities", len(meta.CityToZone)),
			zap.String("default_zone", meta.DefaultZoneID))
	}
	return &Directory{meta: &meta}
}

// Empty returns a directory with no entries and the hard-coded default zone.
func Empty() *Directory {
	return &Directory{meta: &models.RegionMeta{
		DefaultZoneID: DefaultZoneID,
		CityToZone:    map[string]string{},
		RegionToZone:  map[string]string{},
	}}
}

// NewDirectory wraps pre-built metadata. Used by tests and callers that load
// region data from somewhere other than a file.
func NewDirectory(meta *models.RegionMeta) *Directory {
	if meta == nil {
		return Empty()
	}
	if meta.DefaultZoneID == "" {
		meta.DefaultZoneID = DefaultZoneID
	}
	if meta.CityToZone == nil {
		meta.CityToZone = map[string]string{}
	}
	if meta.RegionToZone == nil {
		meta.RegionToZone = map[string]string{}
	}
	return &Directory{meta: meta}
}

// Meta returns the underlying directory metadata. Read-only by convention.
func (d *Directory) Meta() *models.RegionMeta {
	return d.meta
}

// DefaultZone returns the directory's default zone identifier.
func (d *Directory) DefaultZone() string {
	return d.meta.DefaultZoneID
}

// FindByZoneID returns the first region with the given zone id, or nil.
// Linear scan; the directory is small and loaded once.
func (d *Directory) FindByZoneID(id string) *models.Region {
	want := normalize(id)
	if want == "" {
		return nil
	}
	for i := range d.meta.Regions {
		if normalize(d.meta.Regions[i].ZoneID) == want {
			return &d.meta.Regions[i]
		}
	}
	return nil
}

// ZoneName returns the human-readable name for a zone id, or the id itself
// when the zone is not in the directory.
func (d *Directory) ZoneName(id string) string {
	if r := d.FindByZoneID(id); r != nil {
		return r.Name
	}
	return id
}

// ResolveZoneID maps a location to a forecast zone using a specificity
// cascade. More specific keys win; the order is load-bearing:
//  1. exact city key
//  2. "region city" combined key
//  3. region key
//  4. linear scan of region names against city, then region
//  5. directory default
func (d *Directory) ResolveZoneID(loc models.Location) string {
	city := normalize(loc.City)
	reg := normalize(loc.Region)

	if city != "" {
		if z, ok := d.meta.CityToZone[city]; ok {
			return z
		}
	}
	if reg != "" && city != "" {
		if z, ok := d.meta.CityToZone[reg+" "+city]; ok {
			return z
		}
	}
	if reg != "" {
		if z, ok := d.meta.RegionToZone[reg]; ok {
			return z
		}
	}
	for _, name := range []string{city, reg} {
		if name == "" {
			continue
		}
		for i := range d.meta.Regions {
			if normalize(d.meta.Regions[i].Name) == name {
				return d.meta.Regions[i].ZoneID
			}
		}
	}
	return d.meta.DefaultZoneID
}

func normalize(s string) string {
	return strings.TrimSpace(s)
}
