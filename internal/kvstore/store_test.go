package kvstore

import "testing"

func TestInMemoryStoreBasicOps(t *testing.T) {
	s := NewInMemoryStore()

	if s.Contains("missing") {
		t.Fatal("expected missing key to be absent")
	}
	if got := s.GetOrDefault("missing", 42); got != 42 {
		t.Fatalf("GetOrDefault = %v, want 42", got)
	}

	s.Set("k", "v1")
	v, ok := s.Get("k")
	if !ok || v != "v1" {
		t.Fatalf("Get after Set = (%v, %v), want (v1, true)", v, ok)
	}

	s.Set("k", "v2")
	v, _ = s.Get("k")
	if v != "v2" {
		t.Fatalf("Set must overwrite: got %v, want v2", v)
	}

	s.Delete("k")
	if s.Contains("k") {
		t.Fatal("expected key to be gone after Delete")
	}
}

func TestInMemoryStoreValuesAreNotDeepCopied(t *testing.T) {
	s := NewInMemoryStore()
	m := map[string]int{"a": 1}
	s.Set("m", m)

	got, _ := s.Get("m")
	got.(map[string]int)["a"] = 2

	again, _ := s.Get("m")
	if again.(map[string]int)["a"] != 2 {
		t.Fatal("Store must share the underlying composite value, not deep-copy it")
	}
}
