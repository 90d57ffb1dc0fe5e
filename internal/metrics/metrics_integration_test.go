package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mohammed-shakir/catastro-tool/internal/core/observability"
)

func assertHasMetricLine(t *testing.T, body, metric string, wantLabels ...string) {
	t.Helper()
	for ln := range strings.SplitSeq(body, "\n") {
		if !strings.HasPrefix(ln, metric+"{") {
			continue
		}
		ok := true
		for _, s := range wantLabels {
			if !strings.Contains(ln, s) {
				ok = false
				break
			}
		}
		if ok && (len(ln) > 0 && ln[len(ln)-1] >= '0' && ln[len(ln)-1] <= '9') {
			return
		}
	}
	t.Fatalf("expected a %s line with labels %v; got:\n%s", metric, wantLabels, body)
}

func Test_AppMetrics_CustomRegistry_Smoke(t *testing.T) {
	p := Init(Config{Enabled: true, Build: BuildInfo{Version: "test"}})

	observability.ObserveStep("raster_tiles", "skipped")
	observability.ObserveOverlayLayer("dph", "detected")
	observability.ObserveLayerCache(true)
	observability.ObserveCacheOp("get", nil, 0.002)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	p.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	body := rr.Body.String()
	for _, s := range []string{
		`redis_operation_duration_seconds_count{op="get"}`,
		`layer_cache_results_total{outcome="hit"}`,
	} {
		if !strings.Contains(body, s) {
			t.Fatalf("expected metrics to contain %q;\n---\n%s", s, body)
		}
	}

	assertHasMetricLine(t, body, "pipeline_steps_total", `step="raster_tiles"`, `outcome="skipped"`)
	assertHasMetricLine(t, body, "overlay_layers_total", `layer="dph"`, `outcome="detected"`)
	assertHasMetricLine(t, body, "app_build_info", `version="test"`)
	assertHasMetricLine(t, body, "catastro_build_info", `version="test"`)
}
