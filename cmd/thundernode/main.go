// Command thundernode is the sidechain full node's bootstrap: parse
// configuration, wire up logging, and open the state and archive
// environments. Wiring a mainchain validator stub, a wallet, and any RPC
// surface is left to the operator — those are explicitly out of scope
// (spec.md §1).
package main

import (
	"fmt"
	"os"
	"path/filepath"

	flags "github.com/jessevdk/go-flags"

	"github.com/thunder-project/thunder/internal/archive"
	"github.com/thunder-project/thunder/internal/auth"
	"github.com/thunder-project/thunder/internal/buildlog"
	"github.com/thunder-project/thunder/internal/mainchain"
	"github.com/thunder-project/thunder/internal/mempool"
	"github.com/thunder-project/thunder/internal/state"
	"github.com/thunder-project/thunder/internal/walletsync"
)

// Config holds the node's command-line/config-file options. Only the
// options the core subsystem (state, mempool, archive) needs are defined
// here; RPC, P2P, and miner configuration are out of scope.
type Config struct {
	DataDir string `long:"datadir" description:"Directory to store state and archive databases"`
	LogDir  string `long:"logdir" description:"Directory to store log output"`

	MainchainAddr        string `long:"mainchainaddr" description:"Address of the mainchain validator gRPC service"`
	MainchainConcurrency int    `long:"mainchainconcurrency" default:"256" description:"Maximum in-flight requests to the mainchain validator"`
}

func defaultConfig() Config {
	return Config{
		DataDir:              filepath.Join(".", "thunder-data"),
		LogDir:               filepath.Join(".", "thunder-data", "logs"),
		MainchainConcurrency: mainchain.DefaultConcurrencyLimit,
	}
}

// Node owns the subsystems loaded at startup.
type Node struct {
	Config Config

	State   *state.State
	Archive *archive.Archive

	Mempool *mempool.Mempool

	Mainchain *mainchain.Handle
	Wallet    *walletsync.Syncer

	logWriter *buildlog.RotatingLogWriter
}

func loadConfig() (Config, error) {
	cfg := defaultConfig()
	parser := flags.NewParser(&cfg, flags.Default)
	if _, err := parser.Parse(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func setupLogging(cfg Config) (*buildlog.RotatingLogWriter, error) {
	root := buildlog.NewRotatingLogWriter()
	if err := root.InitLogRotator(filepath.Join(cfg.LogDir, "thunder.log")); err != nil {
		return nil, err
	}

	state.UseLogger(root.NewSubLogger("STAT"))
	mempool.UseLogger(root.NewSubLogger("MEMP"))
	auth.UseLogger(root.NewSubLogger("AUTH"))
	archive.UseLogger(root.NewSubLogger("ARCH"))
	mainchain.UseLogger(root.NewSubLogger("MAIN"))
	walletsync.UseLogger(root.NewSubLogger("WLSY"))

	return root, nil
}

func newNode(cfg Config) (*Node, error) {
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, err
	}

	logWriter, err := setupLogging(cfg)
	if err != nil {
		return nil, err
	}

	st, err := state.Open(filepath.Join(cfg.DataDir, "state.db"))
	if err != nil {
		return nil, err
	}

	ar, err := archive.Open(filepath.Join(cfg.DataDir, "archive.db"))
	if err != nil {
		st.Close()
		return nil, err
	}

	mp, err := mempool.Open(filepath.Join(cfg.DataDir, "mempool.db"))
	if err != nil {
		st.Close()
		ar.Close()
		return nil, err
	}

	return &Node{
		Config:    cfg,
		State:     st,
		Archive:   ar,
		Mempool:   mp,
		logWriter: logWriter,
	}, nil
}

// Close shuts down every opened subsystem.
func (n *Node) Close() {
	if n.Mainchain != nil {
		n.Mainchain.Release()
	}
	if n.Mempool != nil {
		n.Mempool.Close()
	}
	if n.Archive != nil {
		n.Archive.Close()
	}
	if n.State != nil {
		n.State.Close()
	}
	if n.logWriter != nil {
		n.logWriter.Close()
	}
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	node, err := newNode(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer node.Close()

	height, err := nodeHeight(node)
	if err != nil {
		fmt.Printf("thundernode: starting at genesis\n")
	} else {
		fmt.Printf("thundernode: starting at height %d\n", height)
	}
}

func nodeHeight(n *Node) (uint32, error) {
	var height uint32
	err := n.State.View(func(tx *state.Tx) error {
		var err error
		height, err = n.State.Height(tx)
		return err
	})
	return height, err
}
