// Package slconfig resolves the container's tunable parameters (max
// height H, branching factor B) from defaults, environment variables, and
// explicit overrides, the way a small command-line tool in front of a
// library normally layers configuration.
package slconfig

import (
	"fmt"
	"os"
	"strconv"

	"github.com/owlkv/pskiplist/skiplist"
)

// Params holds the container's two compile-time-shaped parameters once
// resolved into runtime values.
type Params struct {
	Height int
	Branch int
}

const (
	envHeight = "PSKIPLIST_HEIGHT"
	envBranch = "PSKIPLIST_BRANCH"
)

// Default returns Params seeded from skiplist.DefaultHeight/DefaultBranch.
func Default() Params {
	return Params{Height: skiplist.DefaultHeight, Branch: skiplist.DefaultBranch}
}

// FromEnv starts from Default and applies PSKIPLIST_HEIGHT /
// PSKIPLIST_BRANCH overrides when present, validating as it goes.
func FromEnv() (Params, error) {
	p := Default()
	if v, ok := os.LookupEnv(envHeight); ok {
		h, err := strconv.Atoi(v)
		if err != nil {
			return Params{}, fmt.Errorf("slconfig: %s=%q: %w", envHeight, v, err)
		}
		p.Height = h
	}
	if v, ok := os.LookupEnv(envBranch); ok {
		b, err := strconv.Atoi(v)
		if err != nil {
			return Params{}, fmt.Errorf("slconfig: %s=%q: %w", envBranch, v, err)
		}
		p.Branch = b
	}
	return p, p.Validate()
}

// Validate checks the invariants the spec places on H and B: H >= 1, B > 1.
func (p Params) Validate() error {
	if p.Height < 1 {
		return fmt.Errorf("slconfig: height must be >= 1, got %d", p.Height)
	}
	if p.Branch <= 1 {
		return fmt.Errorf("slconfig: branch must be > 1, got %d", p.Branch)
	}
	return nil
}
