package config

import (
	"bytes"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Limits bounds the size and shape of pipeline files accepted by Parser.
type Limits struct {
	MaxFileSize  int64 // Maximum file size in bytes (default: 1MB)
	MaxDepth     int   // Maximum nesting depth (default: 20)
	MaxNodes     int   // Maximum number of nodes (default: 10000)
	MaxKeyLength int   // Maximum key length in bytes (default: 256)
	MaxValueSize int64 // Maximum scalar size in bytes (default: 64KB)
}

// DefaultLimits returns the limits used by Load.
func DefaultLimits() Limits {
	return Limits{
		MaxFileSize:  1024 * 1024,
		MaxDepth:     20,
		MaxNodes:     10000,
		MaxKeyLength: 256,
		MaxValueSize: 64 * 1024,
	}
}

// Parser decodes YAML after checking it against Limits. Alias expansion is
// counted against MaxNodes, so anchor bombs are rejected before decoding.
type Parser struct {
	limits Limits
}

// NewParser creates a parser with the given limits.
func NewParser(limits Limits) *Parser {
	return &Parser{limits: limits}
}

// Unmarshal validates data and decodes it into v.
func (p *Parser) Unmarshal(data []byte, v any) error {
	if int64(len(data)) > p.limits.MaxFileSize {
		return fmt.Errorf("file too large: %d bytes exceeds maximum %d bytes", len(data), p.limits.MaxFileSize)
	}

	var root yaml.Node
	if err := yaml.NewDecoder(bytes.NewReader(data)).Decode(&root); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("yaml parse error: %w", err)
	}

	w := &nodeWalker{limits: p.limits}
	if err := w.walk(&root, 0); err != nil {
		return err
	}

	return root.Decode(v)
}

// Decode reads at most MaxFileSize bytes from r and unmarshals them.
func (p *Parser) Decode(r io.Reader, v any) error {
	data, err := io.ReadAll(io.LimitReader(r, p.limits.MaxFileSize+1))
	if err != nil {
		return fmt.Errorf("read yaml: %w", err)
	}
	return p.Unmarshal(data, v)
}

type nodeWalker struct {
	limits Limits
	nodes  int
}

func (w *nodeWalker) walk(node *yaml.Node, depth int) error {
	if depth > w.limits.MaxDepth {
		return fmt.Errorf("yaml nesting depth %d exceeds maximum %d", depth, w.limits.MaxDepth)
	}
	w.nodes++
	if w.nodes > w.limits.MaxNodes {
		return fmt.Errorf("yaml node count exceeds maximum %d", w.limits.MaxNodes)
	}

	switch node.Kind {
	case yaml.DocumentNode:
		for _, child := range node.Content {
			if err := w.walk(child, depth); err != nil {
				return err
			}
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			key := node.Content[i]
			if len(key.Value) > w.limits.MaxKeyLength {
				return fmt.Errorf("yaml key length %d exceeds maximum %d", len(key.Value), w.limits.MaxKeyLength)
			}
			if err := w.walk(key, depth+1); err != nil {
				return err
			}
			if err := w.walk(node.Content[i+1], depth+1); err != nil {
				return err
			}
		}
	case yaml.SequenceNode:
		for _, child := range node.Content {
			if err := w.walk(child, depth+1); err != nil {
				return err
			}
		}
	case yaml.ScalarNode:
		if int64(len(node.Value)) > w.limits.MaxValueSize {
			return fmt.Errorf("yaml value size %d bytes exceeds maximum %d bytes", len(node.Value), w.limits.MaxValueSize)
		}
	case yaml.AliasNode:
		if node.Alias != nil {
			return w.walk(node.Alias, depth+1)
		}
	}
	return nil
}
