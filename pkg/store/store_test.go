package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func exerciseKV(t *testing.T, kv KV) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := kv.Get(ctx, "token"); err != nil || ok {
		t.Fatalf("expected absent key, got ok=%v err=%v", ok, err)
	}
	if err := kv.Set(ctx, "token", "abc"); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, ok, err := kv.Get(ctx, "token")
	if err != nil || !ok || v != "abc" {
		t.Fatalf("expected abc, got %q ok=%v err=%v", v, ok, err)
	}
	if err := kv.Delete(ctx, "token"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := kv.Get(ctx, "token"); ok {
		t.Fatal("expected key to be gone after delete")
	}
	if err := kv.Delete(ctx, "never-set"); err != nil {
		t.Fatalf("deleting an absent key should not fail: %v", err)
	}
}

func TestMemory(t *testing.T) {
	exerciseKV(t, NewMemory())
}

func TestRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	kv := NewRedis(rdb, "medifusion")
	exerciseKV(t, kv)

	if err := kv.Set(context.Background(), "diagnosisResult", "{}"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if !mr.Exists("medifusion:diagnosisResult") {
		t.Errorf("expected prefixed key in redis, keys: %v", mr.Keys())
	}
	if ttl := mr.TTL("medifusion:diagnosisResult"); ttl != 0 {
		t.Errorf("expected no expiry, got %s", ttl)
	}
}

func TestScoped_IsolatesClients(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	a := Scoped(mem, "a")
	b := Scoped(mem, "b")

	exerciseKV(t, a)

	if err := a.Set(ctx, "token", "token-a"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := b.Get(ctx, "token"); ok {
		t.Error("client b must not see client a's token")
	}
	if v, ok, _ := mem.Get(ctx, "client:a:token"); !ok || v != "token-a" {
		t.Errorf("expected namespaced key, got %q ok=%v", v, ok)
	}
}
