// Package blocks holds the editable document: an ordered forest of typed
// blocks plus the current selection.
package blocks

import (
	"errors"
	"fmt"
	"maps"
)

// Type names a block variant.
type Type string

const (
	TypeSection Type = "section"
	TypeText    Type = "text"
	TypeImage   Type = "image"
	TypeButton  Type = "button"
)

// Types lists every supported block type.
var Types = []Type{TypeSection, TypeText, TypeImage, TypeButton}

// Valid reports whether t is a supported block type.
func (t Type) Valid() bool {
	switch t {
	case TypeSection, TypeText, TypeImage, TypeButton:
		return true
	}
	return false
}

// Container reports whether blocks of type t may have children.
func (t Type) Container() bool {
	return t == TypeSection
}

// Block is one node of the document forest.
type Block struct {
	ID       string         `json:"id"`
	Type     Type           `json:"type"`
	Props    map[string]any `json:"props,omitempty"`
	Children []Block        `json:"children,omitempty"`
}

// Prop returns the first non-empty string value among keys.
func (b Block) Prop(keys ...string) string {
	for _, k := range keys {
		if v, ok := b.Props[k]; ok && v != nil {
			if s := fmt.Sprint(v); s != "" {
				return s
			}
		}
	}
	return ""
}

var (
	ErrBlockNotFound    = errors.New("block not found")
	ErrDuplicateID      = errors.New("duplicate block id")
	ErrUnknownBlockType = errors.New("unknown block type")
	ErrNotContainer     = errors.New("block type cannot have children")
)

// Clone returns a deep copy of b.
func (b Block) Clone() Block {
	out := b
	out.Props = maps.Clone(b.Props)
	out.Children = cloneForest(b.Children)
	return out
}

func cloneForest(forest []Block) []Block {
	if forest == nil {
		return nil
	}
	out := make([]Block, len(forest))
	for i, b := range forest {
		out[i] = b.Clone()
	}
	return out
}

// Walk calls fn for every block in depth-first pre-order. Returning false
// stops the walk.
func Walk(forest []Block, fn func(b Block) bool) bool {
	for _, b := range forest {
		if !fn(b) {
			return false
		}
		if !Walk(b.Children, fn) {
			return false
		}
	}
	return true
}
