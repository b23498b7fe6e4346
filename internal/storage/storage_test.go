package storage

import (
	"errors"
	"reflect"
	"sort"
	"testing"
)

// stores returns one of each implementation for shared behavior tests.
func stores(t *testing.T) map[string]Store {
	t.Helper()
	fs, err := OpenFS(t.TempDir(), "cdn")
	if err != nil {
		t.Fatalf("OpenFS: %v", err)
	}
	return map[string]Store{
		"mem": NewMem(),
		"fs":  fs,
	}
}

func TestStore_RoundTrip(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Upload("u/owner/repo/build_log.json", []byte(`{"ok":true}`)); err != nil {
				t.Fatalf("Upload: %v", err)
			}
			data, err := s.Download("u/owner/repo/build_log.json")
			if err != nil {
				t.Fatalf("Download: %v", err)
			}
			if string(data) != `{"ok":true}` {
				t.Errorf("data = %q", data)
			}
		})
	}
}

func TestStore_DownloadMissing(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Download("nope")
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStore_ListAndDeletePrefix(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for _, key := range []string{
				"u/alice/repo/build_log.json",
				"u/alice/repo/0_build_log.json",
				"u/bob/other/build_log.json",
			} {
				if err := s.Upload(key, []byte("x")); err != nil {
					t.Fatalf("Upload %s: %v", key, err)
				}
			}

			keys, err := s.List("u/alice/repo")
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			sort.Strings(keys)
			want := []string{"u/alice/repo/0_build_log.json", "u/alice/repo/build_log.json"}
			if !reflect.DeepEqual(keys, want) {
				t.Errorf("List = %v, want %v", keys, want)
			}

			if err := DeletePrefix(s, "u/alice/repo"); err != nil {
				t.Fatalf("DeletePrefix: %v", err)
			}
			keys, _ = s.List("u/")
			if len(keys) != 1 || keys[0] != "u/bob/other/build_log.json" {
				t.Errorf("after delete: %v", keys)
			}
		})
	}
}

func TestStore_DeleteMissing(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Delete("never-existed"); err != nil {
				t.Errorf("Delete missing key: %v", err)
			}
		})
	}
}

func TestGetJSON_MissingLeavesValue(t *testing.T) {
	s := NewMem()
	v := map[string]string{"seed": "kept"}
	if err := GetJSON(s, "absent", &v); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if v["seed"] != "kept" {
		t.Errorf("v = %v, want untouched", v)
	}
}

func TestPutGetJSON(t *testing.T) {
	s := NewMem()
	type entry struct {
		ID      string `json:"id"`
		Created string `json:"created_at"`
	}
	in := entry{ID: "abc", Created: "2026-01-02"}
	if err := PutJSON(s, "project.json", in); err != nil {
		t.Fatalf("PutJSON: %v", err)
	}
	var out entry
	if err := GetJSON(s, "project.json", &out); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if out != in {
		t.Errorf("out = %+v, want %+v", out, in)
	}
}
