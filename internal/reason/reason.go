// Package reason provides sandboxed Go code evaluation for the
// "reason" canonical tool, adapted from the teacher's Yaegi-based tool
// executor (internal/autopoiesis/yaegi_executor.go): interpret instead
// of compile, so a bad snippet can never hang a `go build` or crash a
// dynamically-linked binary, and only a stdlib whitelist is reachable
// from evaluated code.
package reason

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// Evaluator runs whitelisted Go snippets through the Yaegi interpreter.
type Evaluator struct {
	allowed map[string]bool
}

// NewEvaluator builds an Evaluator with the teacher's stdlib
// whitelist: no os, os/exec, net, net/http, syscall, or unsafe.
func NewEvaluator() *Evaluator {
	return &Evaluator{
		allowed: map[string]bool{
			"strings": true, "strconv": true, "fmt": true, "math": true,
			"regexp": true, "encoding/json": true, "encoding/base64": true,
			"time": true, "sort": true, "bytes": true, "path": true,
			"path/filepath": true, "errors": true, "unicode": true,
		},
	}
}

// Eval evaluates code, which must define `func RunTool(input string)
// (string, error)`, and invokes it with input under ctx's deadline.
func (e *Evaluator) Eval(ctx context.Context, code, input string) (string, error) {
	if err := e.validateImports(code); err != nil {
		return "", fmt.Errorf("reason: invalid imports: %w", err)
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return "", fmt.Errorf("reason: load stdlib: %w", err)
	}

	fullCode := code
	if !strings.Contains(fullCode, "package main") {
		fullCode = "package main\n\n" + fullCode
	}
	if _, err := i.Eval(fullCode); err != nil {
		return "", fmt.Errorf("reason: evaluation failed: %w", err)
	}

	runTool, err := i.Eval("main.RunTool")
	if err != nil {
		return "", fmt.Errorf("reason: RunTool not found: %w", err)
	}
	fn, ok := runTool.Interface().(func(string) (string, error))
	if !ok {
		return "", fmt.Errorf("reason: RunTool must have signature func(string) (string, error)")
	}

	type outcome struct {
		result string
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := fn(input)
		done <- outcome{result, err}
	}()

	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		deadline = time.Now().Add(5 * time.Second)
	}
	select {
	case o := <-done:
		return o.result, o.err
	case <-time.After(time.Until(deadline)):
		return "", fmt.Errorf("reason: evaluation timed out")
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (e *Evaluator) validateImports(code string) error {
	var forbidden []string
	inBlock := false
	for _, line := range strings.Split(code, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "import ("):
			inBlock = true
		case inBlock && strings.HasPrefix(trimmed, ")"):
			inBlock = false
		case inBlock:
			pkg := strings.Trim(trimmed, `"`)
			if pkg != "" && !e.allowed[pkg] {
				forbidden = append(forbidden, pkg)
			}
		case strings.HasPrefix(trimmed, "import "):
			pkg := strings.Trim(strings.TrimPrefix(trimmed, "import "), `"`)
			if pkg != "" && !e.allowed[pkg] {
				forbidden = append(forbidden, pkg)
			}
		}
	}
	if len(forbidden) > 0 {
		return fmt.Errorf("forbidden imports: %v", forbidden)
	}
	return nil
}
