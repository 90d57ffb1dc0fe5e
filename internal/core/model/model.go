// Package model defines core domain types shared across the service.
package model

import (
	"fmt"
	"time"
)

type BBox struct {
	X1, Y1 float64
	X2, Y2 float64
	SRID   string
}

// String representation matching wfs bbox format
func (b BBox) String() string {
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f,%s", b.X1, b.Y1, b.X2, b.Y2, b.SRID)
}

// WMS 1.1.1 BBOX parameter, no SRID suffix
func (b BBox) WMS() string {
	return fmt.Sprintf("%.8f,%.8f,%.8f,%.8f", b.X1, b.Y1, b.X2, b.Y2)
}

type Provenance string

const (
	ProvenanceReferencePoint Provenance = "reference_point"
	ProvenanceCentroid       Provenance = "centroid"
	ProvenanceJSONService    Provenance = "json_service"
	ProvenanceXMLService     Provenance = "xml_service"
)

// Coordinates is a WGS84 point plus the source that produced it.
type Coordinates struct {
	Lon        float64    `json:"lon"`
	Lat        float64    `json:"lat"`
	SRS        string     `json:"srs"`
	Provenance Provenance `json:"provenance"`
}

type AffectationResult struct {
	Layer           string   `json:"layer"`
	Description     string   `json:"description"`
	Category        string   `json:"category,omitempty"`
	Impact          string   `json:"impact,omitempty"`
	Source          string   `json:"source"`
	Detected        bool     `json:"detected"`
	AffectedAreaM2  float64  `json:"affected_area_m2"`
	PercentOfParcel float64  `json:"percent_of_parcel"`
	ElementCount    int      `json:"element_count"`
	Names           []string `json:"names,omitempty"`
	MapURL          string   `json:"mapa_url,omitempty"`
	Error           string   `json:"error,omitempty"`
}

type RasterArtifact struct {
	Reference string `json:"reference"`
	Layer     string `json:"layer"`
	Zoom      int    `json:"zoom"`
	ZoomName  string `json:"zoom_name"`
	BBox      BBox   `json:"bbox"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Path      string `json:"path"`
	Composite bool   `json:"composite,omitempty"`
}

type StepName string

const (
	StepDescriptive      StepName = "descriptive"
	StepParcelGeometry   StepName = "parcel_geometry"
	StepCoordinates      StepName = "coordinates"
	StepRasterTiles      StepName = "raster_tiles"
	StepBuildingGeometry StepName = "building_geometry"
	StepFiche            StepName = "fiche"
	StepOverlay          StepName = "overlay_analysis"
	StepSigpac           StepName = "sigpac_pdf"
	StepBundle           StepName = "bundle"
)

// Steps lists the pipeline steps in execution order.
var Steps = []StepName{
	StepDescriptive,
	StepParcelGeometry,
	StepCoordinates,
	StepRasterTiles,
	StepBuildingGeometry,
	StepFiche,
	StepOverlay,
	StepSigpac,
	StepBundle,
}

type StepOutcome struct {
	Name     StepName      `json:"name"`
	OK       bool          `json:"ok"`
	Skipped  bool          `json:"skipped,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

type RunStatus string

const (
	StatusSuccess RunStatus = "success"
	StatusPartial RunStatus = "partial"
	StatusFailed  RunStatus = "failed"
)

type RunResult struct {
	RunID        string              `json:"run_id"`
	Input        string              `json:"input"`
	Reference    string              `json:"reference,omitempty"`
	Status       RunStatus           `json:"status"`
	Error        string              `json:"error,omitempty"`
	Steps        []StepOutcome       `json:"steps"`
	Coordinates  *Coordinates        `json:"coordinates,omitempty"`
	Affectations []AffectationResult `json:"affectations,omitempty"`
	Rasters      []RasterArtifact    `json:"rasters,omitempty"`
	OutputDir    string              `json:"output_dir,omitempty"`
	ZipPath      string              `json:"zip_path,omitempty"`
	StartedAt    time.Time           `json:"started_at"`
	FinishedAt   time.Time           `json:"finished_at"`
}

func (r RunResult) Succeeded() bool { return r.Status == StatusSuccess }

// Step returns the outcome recorded for name.
func (r RunResult) Step(name StepName) (StepOutcome, bool) {
	for _, s := range r.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return StepOutcome{}, false
}

// Tally counts succeeded and total steps; skipped steps count as failures.
func (r RunResult) Tally() (ok, total int) {
	for _, s := range r.Steps {
		if s.OK {
			ok++
		}
	}
	return ok, len(r.Steps)
}
