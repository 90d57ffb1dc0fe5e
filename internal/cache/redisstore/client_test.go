package redisstore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/mohammed-shakir/catastro-tool/internal/metrics"
)

// creates new client connected to miniredis for testing
func newMini(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	rc, err := New(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

func TestSetGetDel_HappyPath(t *testing.T) {
	rc, _ := newMini(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := rc.Set(ctx, "k1", []byte("v1"), 5*time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := rc.Get(ctx, "k1")
	if err != nil || !ok || string(got) != "v1" {
		t.Fatalf("Get got=%q ok=%v err=%v", got, ok, err)
	}
	if _, ok, err := rc.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("missing key: ok=%v err=%v", ok, err)
	}
	if err := rc.Del(ctx, "k1"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if _, ok, _ := rc.Get(ctx, "k1"); ok {
		t.Fatalf("key still present after Del")
	}
}

func TestTTLExpiry(t *testing.T) {
	rc, mr := newMini(t)
	ctx := context.Background()

	if err := rc.Set(ctx, "ttl-key", []byte("v"), 2*time.Second); err != nil {
		t.Fatalf("Set: %v", err)
	}
	mr.FastForward(3 * time.Second)
	if _, ok, err := rc.Get(ctx, "ttl-key"); err != nil || ok {
		t.Fatalf("expected expiry, ok=%v err=%v", ok, err)
	}
}

func TestContextDeadline_IsRespected(t *testing.T) {
	rc, _ := newMini(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := rc.Set(ctx, "k", []byte("v"), time.Second); err == nil {
		t.Fatalf("expected error on Set with canceled context")
	}
	if _, _, err := rc.Get(ctx, "k"); err == nil {
		t.Fatalf("expected error on Get with canceled context")
	}
	if err := rc.Del(ctx, "k"); err == nil {
		t.Fatalf("expected error on Del with canceled context")
	}
}

func TestNew_RequiresAddr(t *testing.T) {
	if _, err := New(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty address")
	}
}

func TestMetrics_Incremented(t *testing.T) {
	p := metrics.Init(metrics.Config{Enabled: true})

	rc, _ := newMini(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_ = rc.Set(ctx, "m1", []byte("x"), time.Minute)
	_, _, _ = rc.Get(ctx, "m1")
	_ = rc.Del(ctx, "m1")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	p.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status=%d", rr.Code)
	}
	body := rr.Body.String()
	for _, op := range []string{"set", "get", "del"} {
		if !strings.Contains(body, `cache_op_total{op="`+op+`"`) {
			t.Fatalf("missing cache_op_total for %s; got:\n%s", op, body)
		}
	}
	if !strings.Contains(body, `redis_operation_duration_seconds_bucket{op="set"`) {
		t.Fatalf("missing redis_operation_duration_seconds histogram; got:\n%s", body)
	}
}

func TestDelPattern(t *testing.T) {
	rc, mr := newMini(t)
	ctx := context.Background()

	for _, k := range []string{"layer:dph:9:a", "layer:dph:9:b", "layer:dph-x:9:a", "layer:carreteras:9:a"} {
		if err := rc.Set(ctx, k, []byte("v"), time.Minute); err != nil {
			t.Fatalf("Set %s: %v", k, err)
		}
	}
	n, err := rc.DelPattern(ctx, "layer:dph:*")
	if err != nil || n != 2 {
		t.Fatalf("DelPattern n=%d err=%v", n, err)
	}
	if mr.Exists("layer:dph:9:a") || !mr.Exists("layer:dph-x:9:a") || !mr.Exists("layer:carreteras:9:a") {
		t.Fatalf("unexpected keys left: %v", mr.Keys())
	}
}
