package overlay

import (
	"path/filepath"
	"testing"
)

func TestDefaultRemoteLayersValid(t *testing.T) {
	specs := DefaultRemoteLayers()
	if len(specs) != 4 {
		t.Fatalf("want 4 default layers, got %d", len(specs))
	}
	for _, s := range specs {
		if err := validate.Struct(s); err != nil {
			t.Fatalf("default layer %s invalid: %v", s.Name, err)
		}
	}
}

func TestLoadCatalogFile(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.json")
	writeFile(t, good, `[
	  {"name":"zepa","description":"ZEPA","source":"remote","url":"https://example.org/wfs","type_name":"ps:zepa","color":"#00AA00"},
	  {"name":"montes","source":"local","path":"capas/montes.shp"}
	]`)
	specs, err := LoadCatalogFile(good)
	if err != nil {
		t.Fatalf("LoadCatalogFile: %v", err)
	}
	if len(specs) != 2 || specs[0].TypeName != "ps:zepa" || specs[1].Source != SourceLocal {
		t.Fatalf("specs %+v", specs)
	}

	bad := filepath.Join(dir, "bad.json")
	writeFile(t, bad, `[
	  {"name":"a","source":"remote","url":"https://example.org/wfs"},
	  {"name":"b","source":"ftp"},
	  {"name":"c","source":"local","path":"x.shp"},
	  {"name":"c","source":"local","path":"y.shp"}
	]`)
	if _, err := LoadCatalogFile(bad); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestBuildCatalog(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "dph", "cauces.geojson"), `{"type":"FeatureCollection","features":[]}`)
	src, err := NewLocalSource(root, 2, nil)
	if err != nil {
		t.Fatalf("NewLocalSource: %v", err)
	}
	specs, err := BuildCatalog("", src)
	if err != nil {
		t.Fatalf("BuildCatalog: %v", err)
	}
	if len(specs) != 5 || specs[4].Name != "cauces" {
		t.Fatalf("specs %+v", specs)
	}
}
