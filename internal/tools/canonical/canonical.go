// Package canonical wires the gateway's canonical multi-operation
// tools (file, terminal, web, code) directly against the legacy
// per-operation tools.Tool bodies in core/shell/research/codedom,
// bypassing the legacy tools.Registry dispatch framework entirely. It
// cannot live in the root tools package: core/shell/research/codedom
// all import tools for the Tool type, so a package importing both
// tools and those four would be an import cycle if it were tools
// itself.
package canonical

import (
	"context"
	"fmt"
	"time"

	"mimogate/internal/gwtypes"
	legacy "mimogate/internal/tools"
	"mimogate/internal/registry"
)

const defaultOpTimeout = 60 * time.Second

// buildSchema merges the per-operation legacy schemas into one
// gwtypes.ToolSchema, keyed by an added "operation" enum property -
// the same schema.operation convention the memory tool already uses.
func buildSchema(ops []*legacy.Tool) gwtypes.ToolSchema {
	names := make([]any, 0, len(ops))
	props := map[string]gwtypes.SchemaProperty{}
	for _, t := range ops {
		names = append(names, t.Name)
		for k, p := range t.Schema.Properties {
			if _, exists := props[k]; exists {
				continue
			}
			props[k] = gwtypes.SchemaProperty{Type: p.Type, Description: p.Description, Enum: p.Enum}
		}
	}
	props["operation"] = gwtypes.SchemaProperty{Type: "string", Description: "which operation to run", Enum: names}
	operations := make([]string, 0, len(ops))
	for _, t := range ops {
		operations = append(operations, t.Name)
	}
	return gwtypes.ToolSchema{
		Required:   []string{"operation"},
		Operations: operations,
		Properties: props,
	}
}

// dispatchTable builds a registry.Handler that reads the "operation"
// argument, looks up the matching legacy tool by its Name, and runs
// its Execute body directly under a bounded timeout - the same
// validate-then-execute shape the legacy registry used, minus the
// registry itself.
func dispatchTable(toolName string, ops []*legacy.Tool) registry.Handler {
	byName := make(map[string]*legacy.Tool, len(ops))
	for _, t := range ops {
		byName[t.Name] = t
	}
	return func(ctx registry.Context, args map[string]any) (any, error) {
		op, _ := args["operation"].(string)
		t, ok := byName[op]
		if !ok {
			return nil, fmt.Errorf("%s: unknown operation %q", toolName, op)
		}
		callArgs := make(map[string]any, len(args))
		for k, v := range args {
			if k == "operation" {
				continue
			}
			callArgs[k] = v
		}
		normalizeIntArgs(callArgs)

		execCtx, cancel := context.WithTimeout(context.Background(), defaultOpTimeout)
		defer cancel()
		out, err := t.Execute(execCtx, callArgs)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", toolName, op, err)
		}
		return map[string]any{"output": out}, nil
	}
}

// normalizeIntArgs rewrites JSON-decoded float64 values that hold
// integral numbers into int in place, since every legacy tool body
// type-asserts numeric args as plain int and a float64 assertion would
// silently fail and fall back to that tool's zero-value default.
func normalizeIntArgs(args map[string]any) {
	for k, v := range args {
		f, ok := v.(float64)
		if !ok {
			continue
		}
		if f == float64(int(f)) {
			args[k] = int(f)
		}
	}
}

func register(reg *registry.Registry, name string, ops []*legacy.Tool) error {
	return reg.RegisterInternal(name, buildSchema(ops), dispatchTable(name, ops))
}
