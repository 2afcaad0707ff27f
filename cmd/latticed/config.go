// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package main

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// serveFlags are the command-line flags of the serve command. Each flag may
// also be set from the environment as LATTICE_<NAME> with dashes replaced by
// underscores, or from a configuration file. Flags given on the command line
// take precedence, then the environment, then the file.
var serveFlags struct {
	Config    string        `flag:"config,Configuration file (YAML, TOML, or JSON)"`
	Self      int           `flag:"self,default=-1,Position of this node among the peers"`
	Peers     string        `flag:"peers,Comma-separated host:port addresses of all members"`
	Objects   string        `flag:"objects,Comma-separated name=type objects to bind"`
	Interval  time.Duration `flag:"interval,default=5s,Anti-entropy publication interval (0 disables)"`
	Fanout    int           `flag:"fanout,Members per anti-entropy round (0 broadcasts)"`
	Propagate bool          `flag:"propagate,default=true,Publish after each local update"`
	Auto      bool          `flag:"auto-create,Create objects announced by other members"`
	Metrics   string        `flag:"metrics,Serve Prometheus metrics at this address"`
	LogLevel  string        `flag:"log-level,default=info,Log level (debug, info, warn, error)"`
}

// serveFS is the flag set of the serve command, retained so that explicitly
// set flags can be distinguished from defaults.
var serveFS *flag.FlagSet

// config is the resolved configuration of a node.
type config struct {
	Self      int
	Peers     []string
	Objects   []objectSpec
	Interval  time.Duration
	Fanout    int
	Propagate bool
	Auto      bool
	Metrics   string
	LogLevel  string
}

// objectSpec names an object to bind at startup.
type objectSpec struct {
	Name string // the object ID is derived from this name
	Type string // a registered type name
}

// loadConfig resolves the node configuration from the flags in fs, the
// environment (including .env files), and the configuration file if one is
// named.
func loadConfig(fs *flag.FlagSet) (*config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	v := viper.New()
	v.SetEnvPrefix("lattice")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	fs.VisitAll(func(f *flag.Flag) { v.SetDefault(f.Name, f.DefValue) })
	fs.Visit(func(f *flag.Flag) { v.Set(f.Name, f.Value.String()) })

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg := &config{
		Self:      v.GetInt("self"),
		Peers:     splitList(v.GetString("peers")),
		Interval:  v.GetDuration("interval"),
		Fanout:    v.GetInt("fanout"),
		Propagate: v.GetBool("propagate"),
		Auto:      v.GetBool("auto-create"),
		Metrics:   v.GetString("metrics"),
		LogLevel:  v.GetString("log-level"),
	}
	objs, err := parseObjects(v.GetString("objects"))
	if err != nil {
		return nil, err
	}
	cfg.Objects = objs
	return cfg, cfg.check()
}

func (c *config) check() error {
	if len(c.Peers) == 0 {
		return errors.New("no peers are configured")
	} else if c.Self < 0 || c.Self >= len(c.Peers) {
		return fmt.Errorf("self position %d is not in [0, %d)", c.Self, len(c.Peers))
	} else if c.Interval < 0 {
		return fmt.Errorf("invalid interval %v", c.Interval)
	} else if c.Fanout < 0 {
		return fmt.Errorf("invalid fanout %d", c.Fanout)
	}
	if _, err := parseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// parseObjects parses a comma-separated list of name=type pairs.
func parseObjects(s string) ([]objectSpec, error) {
	var out []objectSpec
	seen := make(map[string]bool)
	for _, elt := range splitList(s) {
		name, tname, ok := strings.Cut(elt, "=")
		name, tname = strings.TrimSpace(name), strings.TrimSpace(tname)
		if !ok || name == "" || tname == "" {
			return nil, fmt.Errorf("invalid object %q (want name=type)", elt)
		} else if seen[name] {
			return nil, fmt.Errorf("duplicate object name %q", name)
		}
		seen[name] = true
		out = append(out, objectSpec{Name: name, Type: tname})
	}
	return out, nil
}

// splitList splits a comma-separated list, discarding empty elements.
func splitList(s string) []string {
	var out []string
	for _, elt := range strings.Split(s, ",") {
		if elt = strings.TrimSpace(elt); elt != "" {
			out = append(out, elt)
		}
	}
	return out
}
