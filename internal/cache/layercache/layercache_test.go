package layercache

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/mohammed-shakir/catastro-tool/internal/cache/redisstore"
	"github.com/mohammed-shakir/catastro-tool/internal/core/model"
)

func newMini(t *testing.T) (*redisstore.Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	cli, err := redisstore.New(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("redisstore.New: %v", err)
	}
	t.Cleanup(func() { _ = cli.Close() })

	return cli, mr
}

var bb = model.BBox{X1: -3.70, Y1: 40.41, X2: -3.69, Y2: 40.42, SRID: "EPSG:4326"}

const cell = "89390cb1b5bffff"

func TestStore_RoundTripAndTTL(t *testing.T) {
	cli, mr := newMini(t)
	s := New(cli, 9, time.Minute, time.Second, nil)
	ctx := context.Background()

	if _, ok := s.Get(ctx, "dph", cell, bb); ok {
		t.Fatalf("unexpected hit on empty cache")
	}
	s.Put(ctx, "dph", cell, bb, []byte("<gml/>"))

	got, ok := s.Get(ctx, "dph", cell, bb)
	if !ok || string(got) != "<gml/>" {
		t.Fatalf("Get got=%q ok=%v", got, ok)
	}
	if _, ok := s.Get(ctx, "carreteras", cell, bb); ok {
		t.Fatalf("layers must not share entries")
	}

	mr.FastForward(2 * time.Minute)
	if _, ok := s.Get(ctx, "dph", cell, bb); ok {
		t.Fatalf("entry must expire after ttl")
	}
}

func TestStore_Invalidate(t *testing.T) {
	cli, _ := newMini(t)
	s := New(cli, 9, time.Minute, time.Second, nil)
	ctx := context.Background()

	s.Put(ctx, "dph", cell, bb, []byte("x"))
	if err := s.Invalidate(ctx, "dph", cell, bb); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, ok := s.Get(ctx, "dph", cell, bb); ok {
		t.Fatalf("entry still present")
	}
}

type failing struct{}

func (failing) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("down")
}
func (failing) Set(context.Context, string, []byte, time.Duration) error { return errors.New("down") }
func (failing) Del(context.Context, ...string) error                      { return errors.New("down") }

func TestStore_BackendErrorsAreMisses(t *testing.T) {
	s := New(failing{}, 9, time.Minute, time.Second, nil)
	s.Put(context.Background(), "dph", cell, bb, []byte("x"))
	if _, ok := s.Get(context.Background(), "dph", cell, bb); ok {
		t.Fatalf("backend error must read as miss")
	}

	var nilStore *Store
	if _, ok := nilStore.Get(context.Background(), "dph", cell, bb); ok {
		t.Fatalf("nil store must miss")
	}
	nilStore.Put(context.Background(), "dph", cell, bb, []byte("x"))
}

func TestStore_InvalidateLayer(t *testing.T) {
	cli, _ := newMini(t)
	s := New(cli, 9, time.Minute, time.Second, nil)
	ctx := context.Background()

	other := bb
	other.X2 = -3.68
	s.Put(ctx, "dph", cell, bb, []byte("a"))
	s.Put(ctx, "dph", cell, other, []byte("b"))
	s.Put(ctx, "carreteras", cell, bb, []byte("c"))

	n, err := s.InvalidateLayer(ctx, "dph")
	if err != nil || n != 2 {
		t.Fatalf("InvalidateLayer n=%d err=%v", n, err)
	}
	if _, ok := s.Get(ctx, "dph", cell, other); ok {
		t.Fatalf("dph entry survived")
	}
	if _, ok := s.Get(ctx, "carreteras", cell, bb); !ok {
		t.Fatalf("other layers must be kept")
	}

	if _, err := New(failing{}, 9, time.Minute, time.Second, nil).InvalidateLayer(ctx, "dph"); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("want ErrUnsupported, got %v", err)
	}
}
