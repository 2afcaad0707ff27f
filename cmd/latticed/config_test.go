// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package main

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/creachadair/flax"
	"github.com/google/go-cmp/cmp"
	"github.com/lni/dragonboat/v4/logger"
)

func TestSplitList(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"", nil},
		{" , ,", nil},
		{"a", []string{"a"}},
		{"a:1, b:2 ,,c:3", []string{"a:1", "b:2", "c:3"}},
	}
	for _, tc := range tests {
		if diff := cmp.Diff(tc.want, splitList(tc.input)); diff != "" {
			t.Errorf("splitList(%q) (-want, +got):\n%s", tc.input, diff)
		}
	}
}

func TestParseObjects(t *testing.T) {
	got, err := parseObjects("hits=gcounter, doc = sequence")
	if err != nil {
		t.Fatalf("parseObjects: unexpected error: %v", err)
	}
	want := []objectSpec{{Name: "hits", Type: "gcounter"}, {Name: "doc", Type: "sequence"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("parseObjects (-want, +got):\n%s", diff)
	}

	for _, bad := range []string{"hits", "=gset", "x=", "a=gset,a=gcounter"} {
		if got, err := parseObjects(bad); err == nil {
			t.Errorf("parseObjects(%q): got %+v, want error", bad, got)
		}
	}
}

// newServeFlags returns a fresh flag set bound like the serve command's, and
// parses args into it.
func newServeFlags(t *testing.T, args ...string) *flag.FlagSet {
	t.Helper()
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	flax.MustBind(fs, &serveFlags)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse %q: %v", args, err)
	}
	return fs
}

func TestLoadConfig(t *testing.T) {
	t.Chdir(t.TempDir()) // no stray .env files

	t.Run("Flags", func(t *testing.T) {
		fs := newServeFlags(t, "--peers", "a:1,b:2,c:3", "--self", "1", "--objects", "n=gcounter", "--fanout", "2")
		cfg, err := loadConfig(fs)
		if err != nil {
			t.Fatalf("loadConfig: unexpected error: %v", err)
		}
		want := &config{
			Self:      1,
			Peers:     []string{"a:1", "b:2", "c:3"},
			Objects:   []objectSpec{{Name: "n", Type: "gcounter"}},
			Interval:  5 * time.Second,
			Fanout:    2,
			Propagate: true,
			LogLevel:  "info",
		}
		if diff := cmp.Diff(want, cfg); diff != "" {
			t.Errorf("Config (-want, +got):\n%s", diff)
		}
	})

	t.Run("Environment", func(t *testing.T) {
		t.Setenv("LATTICE_PEERS", "x:1,y:2")
		t.Setenv("LATTICE_SELF", "0")
		t.Setenv("LATTICE_LOG_LEVEL", "debug")
		t.Setenv("LATTICE_INTERVAL", "250ms")

		// An explicit flag beats the environment.
		fs := newServeFlags(t, "--self", "1")
		cfg, err := loadConfig(fs)
		if err != nil {
			t.Fatalf("loadConfig: unexpected error: %v", err)
		}
		if cfg.Self != 1 || cfg.LogLevel != "debug" || cfg.Interval != 250*time.Millisecond {
			t.Errorf("Config: got %+v", cfg)
		}
		if diff := cmp.Diff([]string{"x:1", "y:2"}, cfg.Peers); diff != "" {
			t.Errorf("Peers (-want, +got):\n%s", diff)
		}
	})

	t.Run("File", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "node.yaml")
		if err := os.WriteFile(path, []byte("peers: p:1,q:2\nself: 0\nobjects: doc=sequence\n"), 0600); err != nil {
			t.Fatalf("Write config: %v", err)
		}
		fs := newServeFlags(t, "--config", path, "--self", "1")
		cfg, err := loadConfig(fs)
		if err != nil {
			t.Fatalf("loadConfig: unexpected error: %v", err)
		}
		if cfg.Self != 1 || len(cfg.Peers) != 2 || len(cfg.Objects) != 1 {
			t.Errorf("Config: got %+v", cfg)
		}
	})

	t.Run("MissingFile", func(t *testing.T) {
		fs := newServeFlags(t, "--config", filepath.Join(t.TempDir(), "nonesuch.yaml"))
		if cfg, err := loadConfig(fs); err == nil {
			t.Errorf("loadConfig: got %+v, want error", cfg)
		}
	})
}

func TestConfigCheck(t *testing.T) {
	good := config{Self: 0, Peers: []string{"a:1"}, Interval: time.Second, LogLevel: "info"}
	if err := good.check(); err != nil {
		t.Errorf("check: unexpected error: %v", err)
	}
	for name, edit := range map[string]func(*config){
		"no peers":  func(c *config) { c.Peers = nil },
		"self low":  func(c *config) { c.Self = -1 },
		"self high": func(c *config) { c.Self = 1 },
		"interval":  func(c *config) { c.Interval = -time.Second },
		"fanout":    func(c *config) { c.Fanout = -2 },
		"log level": func(c *config) { c.LogLevel = "loud" },
	} {
		cfg := good
		edit(&cfg)
		if err := cfg.check(); err == nil {
			t.Errorf("check %s: got nil, want error", name)
		}
	}
}

func TestParseLogLevel(t *testing.T) {
	for input, want := range map[string]logger.LogLevel{
		"debug": logger.DEBUG, "INFO": logger.INFO, "": logger.INFO,
		"warn": logger.WARNING, "warning": logger.WARNING, "error": logger.ERROR,
	} {
		got, err := parseLogLevel(input)
		if err != nil {
			t.Errorf("parseLogLevel(%q): unexpected error: %v", input, err)
		} else if got != want {
			t.Errorf("parseLogLevel(%q): got %v, want %v", input, got, want)
		}
	}
	if _, err := parseLogLevel("loud"); err == nil {
		t.Error("parseLogLevel(loud): got nil, want error")
	}
}
