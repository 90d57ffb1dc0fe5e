package overlay

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
)

type SourceKind string

const (
	SourceRemote SourceKind = "remote"
	SourceLocal  SourceKind = "local"
)

// LayerSpec describes one overlay layer. Style, color and impact only
// feed reports.
type LayerSpec struct {
	Name        string     `json:"name" validate:"required"`
	Description string     `json:"description"`
	Category    string     `json:"category,omitempty"`
	Impact      string     `json:"impact,omitempty"`
	Color       string     `json:"color,omitempty" validate:"omitempty,hexcolor"`
	Style       string     `json:"style,omitempty"`
	Source      SourceKind `json:"source" validate:"required,oneof=remote local"`
	URL         string     `json:"url,omitempty" validate:"required_if=Source remote,omitempty,url"`
	TypeName    string     `json:"type_name,omitempty" validate:"required_if=Source remote"`
	Path        string     `json:"path,omitempty" validate:"required_if=Source local"`
	// CRS overrides the CRS read from the layer data.
	CRS string `json:"crs,omitempty"`
}

// DefaultRemoteLayers are the environmental feature services queried for
// every parcel.
func DefaultRemoteLayers() []LayerSpec {
	return []LayerSpec{
		{
			Name:        "espacios_naturales",
			Description: "Espacios Naturales Protegidos",
			Category:    "ambiental",
			Impact:      "MEDIO-ALTO",
			Source:      SourceRemote,
			URL:         "https://www.miteco.gob.es/wfs/espacios_protegidos",
			TypeName:    "espacios_protegidos",
		},
		{
			Name:        "zonas_inundables",
			Description: "Zonas de Riesgo de Inundación SNCZI",
			Category:    "riesgos",
			Impact:      "ALTO",
			Source:      SourceRemote,
			URL:         "https://www.miteco.gob.es/wfs/snczi",
			TypeName:    "zonas_inundables",
		},
		{
			Name:        "dph",
			Description: "Dominio Público Hidráulico",
			Category:    "ambiental",
			Impact:      "MEDIO",
			Source:      SourceRemote,
			URL:         "https://www.miteco.gob.es/wfs/ide_hidrografia",
			TypeName:    "dph",
		},
		{
			Name:        "carreteras",
			Description: "Red de Carreteras",
			Category:    "infraestructuras",
			Impact:      "BAJO",
			Source:      SourceRemote,
			URL:         "https://www.ine.es/wfs/transporte",
			TypeName:    "carreteras",
		},
	}
}

type folderInfo struct {
	Description string
	Category    string
	Color       string
	Style       string
}

// knownFolders maps the conventional local layer folders to their display
// metadata.
// Drawing styles of local layer folders.
const (
	StyleLine    = "línea"
	StylePolygon = "polígono"
)

var knownFolders = map[string]folderInfo{
	"dph":                 {"Dominio Público Hidráulico", "hidráulico", "#0066CC", StyleLine},
	"espacios_protegidos": {"Espacios Naturales Protegidos", "ambiental", "#228B22", StylePolygon},
	"zonas_inundables":    {"Zonas de Riesgo de Inundación", "riesgos", "#FF6B35", StylePolygon},
	"montes_publicos":     {"Montes Públicos", "forestal", "#228B22", StylePolygon},
	"capas_ambientales":   {"Capas Ambientales", "ambiental", "#32CD32", StylePolygon},
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadCatalogFile reads a JSON array of LayerSpec. Entries are validated
// and names must be unique.
func LoadCatalogFile(path string) ([]LayerSpec, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read layer catalog: %w", err)
	}
	var specs []LayerSpec
	if err := json.Unmarshal(b, &specs); err != nil {
		return nil, fmt.Errorf("decode layer catalog %s: %w", path, err)
	}
	seen := make(map[string]struct{}, len(specs))
	var errs []error
	for i := range specs {
		specs[i].Name = strings.TrimSpace(specs[i].Name)
		if err := validate.Struct(specs[i]); err != nil {
			errs = append(errs, fmt.Errorf("layer %d (%q): %w", i, specs[i].Name, err))
			continue
		}
		if _, dup := seen[specs[i].Name]; dup {
			errs = append(errs, fmt.Errorf("layer %d: duplicate name %q", i, specs[i].Name))
		}
		seen[specs[i].Name] = struct{}{}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return specs, nil
}

// BuildCatalog returns the remote layers (from catalogFile when set, the
// defaults otherwise) followed by every layer discovered by local.
func BuildCatalog(catalogFile string, local *LocalSource) ([]LayerSpec, error) {
	specs := DefaultRemoteLayers()
	if catalogFile != "" {
		loaded, err := LoadCatalogFile(catalogFile)
		if err != nil {
			return nil, err
		}
		specs = loaded
	}
	if local == nil {
		return specs, nil
	}
	found, err := local.Discover()
	if err != nil {
		return nil, err
	}
	return append(specs, found...), nil
}
