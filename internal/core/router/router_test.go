package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mohammed-shakir/catastro-tool/internal/core/model"
	"github.com/mohammed-shakir/catastro-tool/internal/logger"
	"github.com/mohammed-shakir/catastro-tool/internal/ortho"
	"github.com/mohammed-shakir/catastro-tool/internal/overlay"
	"github.com/mohammed-shakir/catastro-tool/internal/refcat"
)

type fakeRunner struct {
	processed []string
	batched   []string
}

func (f *fakeRunner) Process(_ context.Context, raw string) model.RunResult {
	f.processed = append(f.processed, raw)
	return model.RunResult{Input: raw, Reference: raw, Status: model.StatusSuccess}
}

func (f *fakeRunner) Batch(_ context.Context, inputs []string) map[string]model.RunResult {
	f.batched = inputs
	out := make(map[string]model.RunResult, len(inputs))
	for i, in := range inputs {
		st := model.StatusSuccess
		if i%2 == 1 {
			st = model.StatusPartial
		}
		out[in] = model.RunResult{Input: in, Status: st}
	}
	return out
}

type refs []string

func (r refs) References() ([]string, error) { return r, nil }

type brokenRefs struct{}

func (brokenRefs) References() ([]string, error) { return nil, errors.New("disk gone") }

type catalog struct{}

func (catalog) Info() (overlay.CatalogInfo, error) {
	return overlay.CatalogInfo{Total: 1, Layers: map[string]overlay.FolderInfo{
		"dph": {Name: "Dominio Público Hidráulico", Category: "hidrologia", Files: []string{"dph.shp"}},
	}}, nil
}

func post(h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h(rr, req)
	return rr
}

func TestHandleProcess(t *testing.T) {
	run := &fakeRunner{}
	rr := post(HandleProcess(logger.Discard(), run), `{"reference":"9872023VH5797S0001WI"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	var res model.RunResult
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Status != model.StatusSuccess || len(run.processed) != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestHandleProcess_BadRequests(t *testing.T) {
	for name, body := range map[string]string{
		"empty body":    ``,
		"bad json":      `{"reference":`,
		"missing field": `{}`,
		"too long":      `{"reference":"` + strings.Repeat("A", 65) + `"}`,
	} {
		run := &fakeRunner{}
		rr := post(HandleProcess(logger.Discard(), run), body)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: status=%d", name, rr.Code)
		}
		var eb errorBody
		if err := json.Unmarshal(rr.Body.Bytes(), &eb); err != nil || eb.Status != "error" || eb.Message == "" {
			t.Fatalf("%s: body=%s", name, rr.Body.String())
		}
		if len(run.processed) != 0 {
			t.Fatalf("%s: runner must not be called", name)
		}
	}
}

func TestHandleBatch(t *testing.T) {
	run := &fakeRunner{}
	rr := post(HandleBatch(logger.Discard(), run, 3), `{"references":["A1","B2","C3"]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	var out BatchResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Total != 3 || out.Success != 2 || len(out.Results) != 3 {
		t.Fatalf("unexpected response %+v", out)
	}

	rr = post(HandleBatch(logger.Discard(), run, 2), `{"references":["A1","B2","C3"]}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("over limit: status=%d", rr.Code)
	}
	rr = post(HandleBatch(logger.Discard(), run, 2), `{"references":["A1",""]}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("empty entry: status=%d", rr.Code)
	}
	rr = post(HandleBatch(logger.Discard(), run, 2), `{"references":[]}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("empty list: status=%d", rr.Code)
	}
}

func TestHandleReferences(t *testing.T) {
	rr := httptest.NewRecorder()
	HandleReferences(refs{"A", "B"})(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"references":["A","B"]`) {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	HandleReferences(refs(nil))(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if !strings.Contains(rr.Body.String(), `"references":[]`) {
		t.Fatalf("nil list must encode as []: %s", rr.Body.String())
	}

	rr = httptest.NewRecorder()
	HandleReferences(brokenRefs{})(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestHandleLayers(t *testing.T) {
	rr := httptest.NewRecorder()
	HandleLayers(catalog{})(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"total_capas":1`) {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	HandleLayers(nil)(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if !strings.Contains(rr.Body.String(), `"total_capas":0`) {
		t.Fatalf("nil catalog body=%s", rr.Body.String())
	}
}

type fakeOrtho struct {
	err  error
	seen []string
}

func (f *fakeOrtho) Generate(_ context.Context, raw string) ([]ortho.Ortophoto, error) {
	f.seen = append(f.seen, raw)
	if f.err != nil {
		return nil, f.err
	}
	return []ortho.Ortophoto{{Title: "Vista Local", URL: "/outputs/X/ortophotos/ortofoto_local_5000m.png", Buffer: 5000}}, nil
}

func TestHandleOrtophotos(t *testing.T) {
	gen := &fakeOrtho{}
	rr := post(HandleOrtophotos(logger.Discard(), gen), `{"reference":"9872023VH5797S0001WI"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("code=%d body=%s", rr.Code, rr.Body)
	}
	var out OrtophotoResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Status != "success" || len(out.Ortophotos) != 1 || out.Ortophotos[0].Buffer != 5000 {
		t.Fatalf("unexpected body %+v", out)
	}
	if len(gen.seen) != 1 || gen.seen[0] != "9872023VH5797S0001WI" {
		t.Fatalf("generator got %v", gen.seen)
	}

	for _, tc := range []struct {
		body string
		err  error
		code int
	}{
		{body: `{}`, code: http.StatusBadRequest},
		{body: `{"reference":"x"}`, err: refcat.ErrEmptyReference, code: http.StatusBadRequest},
		{body: `{"reference":"x"}`, err: ortho.ErrNoCoordinates, code: http.StatusBadGateway},
		{body: `{"reference":"x"}`, err: errors.New("disk full"), code: http.StatusInternalServerError},
	} {
		rr := post(HandleOrtophotos(logger.Discard(), &fakeOrtho{err: tc.err}), tc.body)
		if rr.Code != tc.code {
			t.Fatalf("%s (%v): code=%d want %d", tc.body, tc.err, rr.Code, tc.code)
		}
	}
}
