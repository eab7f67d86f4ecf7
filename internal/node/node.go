// Package node manages the ephemeral blockchain instance a backtest runs
// against. A Launcher starts a node and hands back a Node owning the process
// (or in-process backend) together with a Provider connected to it.
package node

import (
	"context"
	"sync"
)

// Launcher starts a fresh, disposable node. Every call yields an independent
// instance; callers must Close the returned Node.
type Launcher interface {
	Launch(ctx context.Context) (*Node, error)
}

// LauncherFunc adapts a function to the Launcher interface.
type LauncherFunc func(ctx context.Context) (*Node, error)

// Launch calls f(ctx).
func (f LauncherFunc) Launch(ctx context.Context) (*Node, error) { return f(ctx) }

// Node is a running ephemeral node. Close releases it and is safe to call
// more than once; only the first call does any work.
type Node struct {
	provider *Provider
	release  func() error

	once sync.Once
	err  error
}

// New wraps an already-connected provider and the function that tears the
// node down.
func New(p *Provider, release func() error) *Node {
	return &Node{provider: p, release: release}
}

// Provider returns the RPC handle connected to the node.
func (n *Node) Provider() *Provider {
	return n.provider
}

// Close tears the node down.
func (n *Node) Close() error {
	n.once.Do(func() {
		if n.release != nil {
			n.err = n.release()
		}
	})
	return n.err
}
