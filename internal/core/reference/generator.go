// Package reference builds gateway transaction references.
//
// A reference looks like "{prefix}_{unix_millis}_{nonce}" or, for direct
// mobile-money charges, "{prefix}_mobile_{unix_millis}_{nonce}". The nonce is
// a snowflake id, so two references minted by the same node in the same
// millisecond still differ. Distinct processes must use distinct node ids.
package reference

import (
	"fmt"
	"regexp"

	"github.com/bwmarrin/snowflake"
)

var prefixPattern = regexp.MustCompile(`^[a-z0-9-]{1,32}$`)

// Generator is safe for concurrent use.
type Generator struct {
	prefix string
	node   *snowflake.Node
}

// NewGenerator creates a generator for the given tenant prefix and node id
// (0..1023).
func NewGenerator(prefix string, nodeID int64) (*Generator, error) {
	if !prefixPattern.MatchString(prefix) {
		return nil, fmt.Errorf("invalid reference prefix %q", prefix)
	}
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("create snowflake node: %w", err)
	}
	return &Generator{prefix: prefix, node: node}, nil
}

// Prefix returns the tenant prefix.
func (g *Generator) Prefix() string {
	return g.prefix
}

// Charge returns a reference for a generic checkout charge.
func (g *Generator) Charge() string {
	id := g.node.Generate()
	return fmt.Sprintf("%s_%d_%s", g.prefix, id.Time(), id.Base36())
}

// Mobile returns a reference for a mobile-money charge.
func (g *Generator) Mobile() string {
	id := g.node.Generate()
	return fmt.Sprintf("%s_mobile_%d_%s", g.prefix, id.Time(), id.Base36())
}
