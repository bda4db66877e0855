package badger

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/kailas-cloud/toxfilter/internal/db"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(Config{InMemory: true})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func push(t *testing.T, s *Store, key string, n int) {
	t.Helper()
	for i := range n {
		if _, err := s.RPush(context.Background(), key, []byte(fmt.Sprintf("e%d", i))); err != nil {
			t.Fatalf("RPush: %v", err)
		}
	}
}

func strs(b [][]byte) []string {
	out := make([]string, len(b))
	for i, v := range b {
		out[i] = string(v)
	}
	return out
}

func TestRPushLRange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n, err := s.RPush(ctx, "log", []byte("a"), []byte("b"))
	if err != nil || n != 2 {
		t.Fatalf("RPush = %d, %v", n, err)
	}
	n, err = s.RPush(ctx, "log", []byte("c"))
	if err != nil || n != 3 {
		t.Fatalf("RPush = %d, %v", n, err)
	}

	got, err := s.LRange(ctx, "log", 0, -1)
	if err != nil {
		t.Fatalf("LRange: %v", err)
	}
	if fmt.Sprint(strs(got)) != "[a b c]" {
		t.Errorf("LRange = %v", strs(got))
	}

	got, _ = s.LRange(ctx, "log", -2, -1)
	if fmt.Sprint(strs(got)) != "[b c]" {
		t.Errorf("LRange tail = %v", strs(got))
	}
}

func TestLRange_MissingKey(t *testing.T) {
	s := newTestStore(t)

	got, err := s.LRange(context.Background(), "nope", 0, -1)
	if err != nil || len(got) != 0 {
		t.Fatalf("LRange = %v, %v", got, err)
	}
}

func TestLTrim_KeepsNewest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	push(t, s, "log", 5)

	if err := s.LTrim(ctx, "log", -3, -1); err != nil {
		t.Fatalf("LTrim: %v", err)
	}
	n, _ := s.LLen(ctx, "log")
	if n != 3 {
		t.Fatalf("LLen = %d, want 3", n)
	}
	got, _ := s.LRange(ctx, "log", 0, -1)
	if fmt.Sprint(strs(got)) != "[e2 e3 e4]" {
		t.Errorf("LRange = %v", strs(got))
	}

	// Appends after a trim continue the sequence.
	if _, err := s.RPush(ctx, "log", []byte("e5")); err != nil {
		t.Fatalf("RPush: %v", err)
	}
	got, _ = s.LRange(ctx, "log", 0, 0)
	if fmt.Sprint(strs(got)) != "[e2]" {
		t.Errorf("head = %v", strs(got))
	}
}

func TestLTrim_EmptyRangeDeletes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	push(t, s, "log", 3)

	if err := s.LTrim(ctx, "log", 5, 10); err != nil {
		t.Fatalf("LTrim: %v", err)
	}
	if n, _ := s.LLen(ctx, "log"); n != 0 {
		t.Errorf("LLen = %d, want 0", n)
	}
}

func TestDel(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	push(t, s, "a", 2)
	push(t, s, "b", 2)

	if err := s.Del(ctx, "a"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if n, _ := s.LLen(ctx, "a"); n != 0 {
		t.Errorf("LLen(a) = %d", n)
	}
	if n, _ := s.LLen(ctx, "b"); n != 2 {
		t.Errorf("LLen(b) = %d, want 2", n)
	}
}

func TestPing_Closed(t *testing.T) {
	s, err := NewStore(Config{InMemory: true})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	s.Close()
	if err := s.Ping(context.Background()); !errors.Is(err, db.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestNewStore_PersistentRequiresPath(t *testing.T) {
	if _, err := NewStore(Config{}); err == nil {
		t.Fatal("expected error without path")
	}
}

func TestPersistentReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(Config{Path: dir, SyncWrites: true})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	push(t, s, "log", 2)
	s.Close()

	s, err = NewStore(Config{Path: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if n, _ := s.LLen(context.Background(), "log"); n != 2 {
		t.Errorf("LLen after reopen = %d, want 2", n)
	}
}

func TestKV_SetGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Get(ctx, "k"); !errors.Is(err, db.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
	if err := s.SetWithTTL(ctx, "k", []byte("v1"), time.Hour); err != nil {
		t.Fatalf("SetWithTTL: %v", err)
	}
	if err := s.SetWithTTL(ctx, "k", []byte("v2"), 0); err != nil {
		t.Fatalf("SetWithTTL: %v", err)
	}
	got, err := s.Get(ctx, "k")
	if err != nil || string(got) != "v2" {
		t.Fatalf("Get = %q, %v", got, err)
	}

	// Values and lists live in separate key spaces.
	push(t, s, "k", 1)
	if got, _ := s.Get(ctx, "k"); string(got) != "v2" {
		t.Errorf("Get after RPush = %q", got)
	}
}
