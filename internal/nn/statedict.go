package nn

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/born-ml/captionvit/internal/tensor"
)

// Child names a submodule inside a composite module's state dict.
// Its entries appear as "<Name>.<key>".
type Child struct {
	Name   string
	Module Stateful
}

// StateDictOf merges the state dicts of children under their prefixes.
//
// Example:
//
//	nn.StateDictOf(
//	    nn.Child{Name: "self_attn", Module: block.SelfAttn},
//	    nn.Child{Name: "ffn", Module: block.FeedForward},
//	) // {"self_attn.attn.proj.weight": ..., "ffn.mlp.0.weight": ...}
func StateDictOf(children ...Child) map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	for _, c := range children {
		for key, raw := range c.Module.StateDict() {
			stateDict[c.Name+"."+key] = raw
		}
	}
	return stateDict
}

// LoadStateDictOf routes the entries of stateDict to children by prefix.
// Keys that match no child are ignored. Every child is checked with
// CheckStateDict before any parameter is written, so a failed load leaves
// the module unchanged.
func LoadStateDictOf(stateDict map[string]*tensor.RawTensor, children ...Child) error {
	for _, c := range children {
		if err := CheckStateDict(c.Module, Subtree(stateDict, c.Name)); err != nil {
			return fmt.Errorf("%s.%w", c.Name, err)
		}
	}
	for _, c := range children {
		if err := c.Module.LoadStateDict(Subtree(stateDict, c.Name)); err != nil {
			return fmt.Errorf("%s.%w", c.Name, err)
		}
	}
	return nil
}

// CheckStateDict reports the first entry of m's own state dict, in key
// order, that is missing from stateDict or differs in shape or dtype.
func CheckStateDict(m Stateful, stateDict map[string]*tensor.RawTensor) error {
	current := m.StateDict()
	for _, key := range slices.Sorted(maps.Keys(current)) {
		raw, ok := stateDict[key]
		if !ok {
			return fmt.Errorf("%s: missing in state dict", key)
		}
		if err := checkEntry(key, current[key], raw); err != nil {
			return err
		}
	}
	return nil
}

func checkEntry(name string, want, got *tensor.RawTensor) error {
	if !got.Shape().Equal(want.Shape()) {
		return fmt.Errorf("%s: %w", name,
			tensor.NewShapeError("load", "expected %v, got %v", want.Shape(), got.Shape()))
	}
	if got.DType() != want.DType() {
		return fmt.Errorf("%s: dtype mismatch: expected %v, got %v", name, want.DType(), got.DType())
	}
	return nil
}

// Subtree returns the entries of stateDict under prefix, with the prefix
// and its trailing dot removed.
func Subtree(stateDict map[string]*tensor.RawTensor, prefix string) map[string]*tensor.RawTensor {
	prefix += "."
	sub := make(map[string]*tensor.RawTensor)
	for key, raw := range stateDict {
		if rest, ok := strings.CutPrefix(key, prefix); ok && rest != "" {
			sub[rest] = raw
		}
	}
	return sub
}

func parameterState[B tensor.Backend](params []*Parameter[B]) map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor, len(params))
	for _, p := range params {
		stateDict[p.Name()] = p.Tensor().Raw()
	}
	return stateDict
}

func loadParameters[B tensor.Backend](stateDict map[string]*tensor.RawTensor, params []*Parameter[B]) error {
	for _, p := range params {
		raw, ok := stateDict[p.Name()]
		if !ok {
			return fmt.Errorf("%s: missing in state dict", p.Name())
		}
		if err := checkEntry(p.Name(), p.Tensor().Raw(), raw); err != nil {
			return err
		}
	}
	for _, p := range params {
		if err := p.Load(stateDict[p.Name()]); err != nil {
			return err
		}
	}
	return nil
}
