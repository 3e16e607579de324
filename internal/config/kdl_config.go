package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"
)

// LoadKDL loads tunables from a "dupview.kdl" file under dir,
// layered over Default(). A missing file is not an error — it
// simply means the defaults apply.
func LoadKDL(dir string) (*Config, error) {
	path := filepath.Join(dir, "dupview.kdl")
	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("dupview: reading %s: %w", path, err)
	}
	return parseKDL(content)
}

func parseKDL(content []byte) (*Config, error) {
	cfg := Default()

	doc, err := kdl.Parse(strings.NewReader(string(content)))
	if err != nil {
		return nil, fmt.Errorf("dupview: parsing config: %w", err)
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "block_size":
			if v, ok := firstIntArg(n); ok {
				cfg.BlockSize = v
			}
		case "cache_budget_bytes":
			if v, ok := firstIntArg(n); ok {
				cfg.CacheBudgetBytes = int64(v)
			}
		case "read_ahead_snapshot":
			if v, ok := firstIntArg(n); ok {
				cfg.ReadAheadSnapshot = v
			}
		case "read_ahead_signature_diff":
			if v, ok := firstIntArg(n); ok {
				cfg.ReadAheadSignatureDiff = v
			}
		}
	}

	return cfg, nil
}

func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
