// Copyright 2026 The Seam Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func testClient(t *testing.T) *Client {
	t.Helper()
	srv := miniredis.RunT(t)
	c, err := New(Config{Addr: srv.Addr()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestNewRequiresAddr(t *testing.T) {
	_, err := New(Config{})
	if err == nil {
		t.Fatal("New with empty Addr succeeded, want error")
	}
}

func TestPing(t *testing.T) {
	c := testClient(t)
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestListOps(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	if err := c.RPush(ctx, "q", "a", "b", "c"); err != nil {
		t.Fatalf("RPush: %v", err)
	}

	n, err := c.LLen(ctx, "q")
	if err != nil {
		t.Fatalf("LLen: %v", err)
	}
	if n != 3 {
		t.Errorf("LLen = %d, want 3", n)
	}

	vs, err := c.LRange(ctx, "q", 0, -1)
	if err != nil {
		t.Fatalf("LRange: %v", err)
	}
	if len(vs) != 3 || vs[0] != "a" || vs[2] != "c" {
		t.Errorf("LRange = %v, want [a b c]", vs)
	}

	// LPop drains in FIFO order.
	v, ok, err := c.LPop(ctx, "q")
	if err != nil || !ok || v != "a" {
		t.Errorf("LPop = (%q, %v, %v), want (a, true, nil)", v, ok, err)
	}

	// LTrim keeps only the tail window.
	if err := c.LTrim(ctx, "q", -1, -1); err != nil {
		t.Fatalf("LTrim: %v", err)
	}
	vs, err = c.LRange(ctx, "q", 0, -1)
	if err != nil {
		t.Fatalf("LRange after LTrim: %v", err)
	}
	if len(vs) != 1 || vs[0] != "c" {
		t.Errorf("LRange after LTrim = %v, want [c]", vs)
	}

	// Drain the rest; then an empty pop reports found=false.
	if _, ok, _ := c.LPop(ctx, "q"); !ok {
		t.Error("LPop on remaining element reported found=false")
	}
	v, ok, err = c.LPop(ctx, "q")
	if err != nil {
		t.Fatalf("LPop empty: %v", err)
	}
	if ok {
		t.Errorf("LPop on empty list = (%q, true), want found=false", v)
	}
}

func TestSortedSetOps(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	for member, score := range map[string]float64{
		"low": 1, "mid": 5, "high": 9,
	} {
		if err := c.ZAdd(ctx, "z", score, member); err != nil {
			t.Fatalf("ZAdd %s: %v", member, err)
		}
	}

	n, err := c.ZCard(ctx, "z")
	if err != nil || n != 3 {
		t.Errorf("ZCard = (%d, %v), want (3, nil)", n, err)
	}

	// Score window query, lowest first.
	vs, err := c.ZRangeByScoreLimit(ctx, "z", 0, 6, 10)
	if err != nil {
		t.Fatalf("ZRangeByScoreLimit: %v", err)
	}
	if len(vs) != 2 || vs[0] != "low" || vs[1] != "mid" {
		t.Errorf("ZRangeByScoreLimit = %v, want [low mid]", vs)
	}

	// Count bounds the result.
	vs, err = c.ZRangeByScoreLimit(ctx, "z", 0, 100, 1)
	if err != nil {
		t.Fatalf("ZRangeByScoreLimit count=1: %v", err)
	}
	if len(vs) != 1 || vs[0] != "low" {
		t.Errorf("ZRangeByScoreLimit count=1 = %v, want [low]", vs)
	}

	ms, err := c.ZRange(ctx, "z", 0, -1)
	if err != nil {
		t.Fatalf("ZRange: %v", err)
	}
	if len(ms) != 3 || ms[0] != "low" || ms[2] != "high" {
		t.Errorf("ZRange = %v, want [low mid high]", ms)
	}

	// ZRem count doubles as the claim guard.
	removed, err := c.ZRem(ctx, "z", "mid")
	if err != nil || removed != 1 {
		t.Errorf("ZRem mid = (%d, %v), want (1, nil)", removed, err)
	}
	removed, err = c.ZRem(ctx, "z", "mid")
	if err != nil || removed != 0 {
		t.Errorf("ZRem mid again = (%d, %v), want (0, nil)", removed, err)
	}

	member, score, ok, err := c.ZPopMax(ctx, "z")
	if err != nil {
		t.Fatalf("ZPopMax: %v", err)
	}
	if !ok || member != "high" || score != 9 {
		t.Errorf("ZPopMax = (%q, %v, %v), want (high, 9, true)", member, score, ok)
	}

	c.ZPopMax(ctx, "z") // drain "low"
	_, _, ok, err = c.ZPopMax(ctx, "z")
	if err != nil {
		t.Fatalf("ZPopMax empty: %v", err)
	}
	if ok {
		t.Error("ZPopMax on empty set reported found=true")
	}
}

func TestHashOps(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	err := c.HSet(ctx, "h", map[string]string{"status": "SYNCED", "type": "CREATE"})
	if err != nil {
		t.Fatalf("HSet: %v", err)
	}

	m, err := c.HGetAll(ctx, "h")
	if err != nil {
		t.Fatalf("HGetAll: %v", err)
	}
	if len(m) != 2 || m["status"] != "SYNCED" || m["type"] != "CREATE" {
		t.Errorf("HGetAll = %v, want status+type", m)
	}

	m, err = c.HGetAll(ctx, "nope")
	if err != nil {
		t.Fatalf("HGetAll missing key: %v", err)
	}
	if len(m) != 0 {
		t.Errorf("HGetAll on missing key = %v, want empty", m)
	}

	n, err := c.HIncrBy(ctx, "counters", "total", 1)
	if err != nil || n != 1 {
		t.Errorf("HIncrBy fresh = (%d, %v), want (1, nil)", n, err)
	}
	n, err = c.HIncrBy(ctx, "counters", "total", 4)
	if err != nil || n != 5 {
		t.Errorf("HIncrBy again = (%d, %v), want (5, nil)", n, err)
	}
}

func TestSetOps(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	if err := c.SAdd(ctx, "s", "op-1", "op-2"); err != nil {
		t.Fatalf("SAdd: %v", err)
	}

	n, err := c.SCard(ctx, "s")
	if err != nil || n != 2 {
		t.Errorf("SCard = (%d, %v), want (2, nil)", n, err)
	}

	members, err := c.SMembers(ctx, "s")
	if err != nil {
		t.Fatalf("SMembers: %v", err)
	}
	if len(members) != 2 {
		t.Errorf("SMembers = %v, want 2 members", members)
	}

	removed, err := c.SRem(ctx, "s", "op-1")
	if err != nil || removed != 1 {
		t.Errorf("SRem = (%d, %v), want (1, nil)", removed, err)
	}
	removed, err = c.SRem(ctx, "s", "op-1")
	if err != nil || removed != 0 {
		t.Errorf("SRem repeat = (%d, %v), want (0, nil)", removed, err)
	}
}

func TestStringOps(t *testing.T) {
	srv := miniredis.RunT(t)
	c, err := New(Config{Addr: srv.Addr()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()
	ctx := context.Background()

	payload := []byte{0x01, 0x02, 0xff}
	if err := c.SetWithTTL(ctx, "rec", payload, time.Hour); err != nil {
		t.Fatalf("SetWithTTL: %v", err)
	}

	b, ok, err := c.Get(ctx, "rec")
	if err != nil || !ok {
		t.Fatalf("Get = (found=%v, %v), want (true, nil)", ok, err)
	}
	if string(b) != string(payload) {
		t.Errorf("Get = %x, want %x", b, payload)
	}

	// TTL actually expires the key.
	srv.FastForward(2 * time.Hour)
	_, ok, err = c.Get(ctx, "rec")
	if err != nil {
		t.Fatalf("Get after expiry: %v", err)
	}
	if ok {
		t.Error("Get after TTL expiry reported found=true")
	}

	if err := c.SetWithTTL(ctx, "rec2", payload, 0); err != nil {
		t.Fatalf("SetWithTTL no expiry: %v", err)
	}
	if err := c.Expire(ctx, "rec2", time.Minute); err != nil {
		t.Errorf("Expire: %v", err)
	}
	srv.FastForward(2 * time.Minute)
	if _, ok, _ := c.Get(ctx, "rec2"); ok {
		t.Error("Get after Expire elapsed reported found=true")
	}

	n, err := c.Del(ctx, "rec", "rec2", "never-existed")
	if err != nil {
		t.Fatalf("Del: %v", err)
	}
	if n != 0 {
		t.Errorf("Del of expired keys = %d, want 0", n)
	}
}
