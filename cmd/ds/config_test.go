package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/bobg/ds"
	"github.com/bobg/ds/store/compress"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	const text = `
owner: alice
cache_size: 16
log_level: debug
store:
  type: compress
  compressor: zstd
  nested:
    type: file
    root: ` + "%s\n"

	root := filepath.Join(dir, "store")
	filename := filepath.Join(dir, "dsconf.yaml")
	if err := os.WriteFile(filename, []byte(fmt.Sprintf(text, root)), 0644); err != nil {
		t.Fatal(err)
	}

	conf, err := loadConfig(filename)
	if err != nil {
		t.Fatal(err)
	}
	if conf.Owner != "alice" || conf.CacheSize != 16 || conf.LogLevel != "debug" {
		t.Errorf("got %+v", conf)
	}
	if got := conf.path(); got != root {
		t.Errorf("got path %s, want %s", got, root)
	}

	ctx := context.Background()
	b, err := conf.backend(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := b.(*compress.Store); !ok {
		t.Fatalf("got a %T, want *compress.Store", b)
	}

	a, _, err := b.Put(ctx, []byte("hello"))
	if err != nil {
		t.Fatal(err)
	}
	if a != ds.AddressOf([]byte("hello")) {
		t.Errorf("got address %s", a)
	}
}

func TestLoadConfigJSON(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "dsconf.json")
	if err := os.WriteFile(filename, []byte(`{"owner": "bob", "store": {"type": "mem"}}`), 0644); err != nil {
		t.Fatal(err)
	}

	conf, err := loadConfig(filename)
	if err != nil {
		t.Fatal(err)
	}
	if conf.Owner != "bob" {
		t.Errorf("got owner %s, want bob", conf.Owner)
	}
	if got := conf.path(); got != "" {
		t.Errorf("got path %q, want none", got)
	}
	if _, err = conf.backend(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestLoadConfigMissingStore(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "dsconf.yaml")
	if err := os.WriteFile(filename, []byte("owner: carol\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadConfig(filename); err == nil {
		t.Error("loaded a config with no store")
	}
}
