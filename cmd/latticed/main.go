// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

// Program latticed runs a replica node that exchanges convergent objects with
// its peers over UDP.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/VictoriaMetrics/metrics"
	"github.com/creachadair/command"
	"github.com/creachadair/flax"
	"github.com/creachadair/lattice"
	"github.com/creachadair/lattice/channel"
	"github.com/creachadair/lattice/exchange"
	"github.com/creachadair/lattice/peers"
	"github.com/creachadair/taskgroup"
	"github.com/lni/dragonboat/v4/logger"

	_ "github.com/creachadair/lattice/crdt" // register the type catalog
)

var nodeLog = logger.GetLogger("latticed")

var typesFlags struct {
	Binary bool `flag:"binary,Write the listing in binary format"`
}

func main() {
	root := &command.C{
		Name: filepath.Base(os.Args[0]),
		Help: "Run and inspect replica nodes for convergent objects.",
		Commands: []*command.C{
			{
				Name:  "serve",
				Usage: "--peers host:port,... --self n [flags]",
				Help: `Run a replica node.

The node binds the objects named by --objects, and exchanges their state with
the other members listed in --peers. Flags may also be set in the environment
as LATTICE_<FLAG>, for example LATTICE_LOG_LEVEL=debug, or in the file named
by --config. Environment files .env and .env.local are loaded if present.

While running, the node reads commands from stdin, one per line:

  apply <name> <op> <arg>...   apply an update operation to an object
  show [<name>]                print the value of one or all objects
  publish                      send the state of all objects to all members
  request <name> <member>      ask a member for its state of an object
`,
				SetFlags: func(_ *command.Env, fs *flag.FlagSet) {
					flax.MustBind(fs, &serveFlags)
					serveFS = fs
				},
				Run: runServe,
			},
			{
				Name: "types",
				Help: "List the registered object types and their update operations.",
				SetFlags: func(_ *command.Env, fs *flag.FlagSet) {
					flax.MustBind(fs, &typesFlags)
				},
				Run: runTypes,
			},
			{
				Name: "decode",
				Help: `Decode envelopes read from stdin and print their contents.

Snapshot payloads of registered types are decoded and printed as values.`,
				Run: runDecode,
			},
			command.VersionCommand(),
			command.HelpCommand(nil),
		},
	}
	command.RunOrFail(root.NewEnv(nil).MergeFlags(true), os.Args[1:])
}

func runServe(env *command.Env) error {
	if len(env.Args) != 0 {
		return env.Usagef("extra arguments: %q", env.Args)
	}
	cfg, err := loadConfig(serveFS)
	if err != nil {
		return err
	}
	if err := initLoggers(cfg.LogLevel); err != nil {
		return err
	}

	conn, err := channel.NewUDP(cfg.Self, cfg.Peers)
	if err != nil {
		return err
	}
	x := exchange.New(conn, &exchange.Options{
		Interval:          cfg.Interval,
		Fanout:            cfg.Fanout,
		PropagateOnUpdate: cfg.Propagate,
		AutoCreate:        cfg.Auto,
	})
	n := newNode(x)
	for _, spec := range cfg.Objects {
		if err := n.bind(spec); err != nil {
			return err
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	g := taskgroup.New(nil)

	if cfg.Metrics != "" {
		lst, err := net.Listen("tcp", cfg.Metrics)
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		srv := &http.Server{Handler: metricsHandler(x)}
		g.Go(func() error {
			if err := srv.Serve(lst); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error { <-ctx.Done(); return srv.Close() })
		nodeLog.Infof("serving metrics at %v", lst.Addr())
	}
	go func() {
		if err := n.commands(os.Stdin, os.Stdout); err != nil {
			nodeLog.Errorf("reading commands: %v", err)
		}
	}()
	g.Go(func() error { return peers.Run(ctx, x) })
	return g.Wait()
}

func metricsHandler(x *exchange.Exchange) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		x.Metrics().WritePrometheus(w)
		metrics.WriteProcessMetrics(w)
	})
	return mux
}

func runTypes(env *command.Env) error {
	l := lattice.Default.Listing()
	if typesFlags.Binary {
		_, err := os.Stdout.Write(l.Encode())
		return err
	}
	for _, name := range lattice.Default.Names() {
		fmt.Printf("%-24s %v\n", name, l[name])
	}
	return nil
}

func runDecode(env *command.Env) error {
	return decodeEnvelopes(bufio.NewReader(os.Stdin), os.Stdout)
}

// decodeEnvelopes reads envelopes from r until end of input, and writes a
// description of each to w.
func decodeEnvelopes(r io.Reader, w io.Writer) error {
	for {
		var e lattice.Envelope
		if _, err := e.ReadFrom(r); errors.Is(err, io.EOF) {
			return nil
		} else if err != nil {
			return err
		}
		fmt.Fprintln(w, e.String())
		if e.Kind != lattice.KindSnapshot {
			continue
		}
		obj, err := lattice.Default.New(e.Type)
		if err != nil {
			fmt.Fprintf(w, "  (%v)\n", err)
			continue
		}
		msg, err := obj.DecodeMessage(e.Payload)
		if err == nil {
			err = obj.Merge(msg)
		}
		if err != nil {
			fmt.Fprintf(w, "  (%v)\n", err)
			continue
		}
		fmt.Fprintf(w, "  %v\n", obj)
	}
}
