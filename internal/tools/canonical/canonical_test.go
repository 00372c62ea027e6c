package canonical

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mimogate/internal/gwtypes"
	legacy "mimogate/internal/tools"
	"mimogate/internal/registry"
)

func fixtureTool(name string) *legacy.Tool {
	return &legacy.Tool{
		Name: name,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			if v, ok := args["fail"].(bool); ok && v {
				return "", assertError
			}
			n, _ := args["n"].(int)
			return name + ":" + itoa(n), nil
		},
		Schema: legacy.ToolSchema{
			Properties: map[string]legacy.Property{
				"n": {Type: "integer", Description: "a number"},
			},
		},
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf []byte
	for n > 0 {
		buf = append([]byte{byte('0' + n%10)}, buf...)
		n /= 10
	}
	if neg {
		buf = append([]byte{'-'}, buf...)
	}
	return string(buf)
}

var assertError = &toolError{"boom"}

type toolError struct{ msg string }

func (e *toolError) Error() string { return e.msg }

func TestBuildSchema_MergesOperationsAndProperties(t *testing.T) {
	ops := []*legacy.Tool{fixtureTool("opA"), fixtureTool("opB")}
	schema := buildSchema(ops)
	assert.ElementsMatch(t, []string{"opA", "opB"}, schema.Operations)
	assert.Contains(t, schema.Required, "operation")
	require.Contains(t, schema.Properties, "operation")
	assert.ElementsMatch(t, []any{"opA", "opB"}, schema.Properties["operation"].Enum)
	assert.Contains(t, schema.Properties, "n")
}

func TestNormalizeIntArgs_RewritesIntegralFloats(t *testing.T) {
	args := map[string]any{"n": float64(3), "f": 2.5, "s": "x"}
	normalizeIntArgs(args)
	assert.Equal(t, 3, args["n"])
	assert.Equal(t, 2.5, args["f"])
	assert.Equal(t, "x", args["s"])
}

func TestDispatchTable_RoutesByOperationAndNormalizesArgs(t *testing.T) {
	handler := dispatchTable("thing", []*legacy.Tool{fixtureTool("opA")})

	out, err := handler(registry.Context{}, map[string]any{"operation": "opA", "n": float64(5)})
	require.NoError(t, err)
	assert.Equal(t, "opA:5", out.(map[string]any)["output"])
}

func TestDispatchTable_UnknownOperation(t *testing.T) {
	handler := dispatchTable("thing", []*legacy.Tool{fixtureTool("opA")})
	_, err := handler(registry.Context{}, map[string]any{"operation": "nope"})
	assert.Error(t, err)
}

func TestDispatchTable_PropagatesExecuteError(t *testing.T) {
	handler := dispatchTable("thing", []*legacy.Tool{fixtureTool("opA")})
	_, err := handler(registry.Context{}, map[string]any{"operation": "opA", "fail": true})
	assert.Error(t, err)
}

func TestRegister_ExposesToolUnderGivenName(t *testing.T) {
	reg := registry.New(nil)
	require.NoError(t, register(reg, "thing", []*legacy.Tool{fixtureTool("opA")}))

	lookup := reg.Lookup("thing")
	require.True(t, lookup.Found)
	out, err := lookup.Handler(registry.Context{}, map[string]any{"operation": "opA", "n": float64(1)})
	require.NoError(t, err)
	assert.Equal(t, "opA:1", out.(map[string]any)["output"])
}

func TestRegisterFileTools_ReadWriteRoundTrip(t *testing.T) {
	reg := registry.New(nil)
	require.NoError(t, RegisterFileTools(reg))

	path := filepath.Join(t.TempDir(), "f.txt")
	_, err := callTool(t, reg, "file", map[string]any{"operation": "write_file", "path": path, "content": "hello"})
	require.NoError(t, err)

	out, err := callTool(t, reg, "file", map[string]any{"operation": "read_file", "path": path})
	require.NoError(t, err)
	assert.Contains(t, out.(map[string]any)["output"], "hello")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestRegisterFileTools_UnknownOperation(t *testing.T) {
	reg := registry.New(nil)
	require.NoError(t, RegisterFileTools(reg))
	_, err := callTool(t, reg, "file", map[string]any{"operation": "bogus"})
	assert.Error(t, err)
}

func descriptorFor(t *testing.T, reg *registry.Registry, name string) gwtypes.ToolDescriptor {
	t.Helper()
	for _, d := range reg.ListAll() {
		if d.Name == name {
			return d
		}
	}
	t.Fatalf("no descriptor registered for %s", name)
	return gwtypes.ToolDescriptor{}
}

func TestRegisterTerminalTools_Registers(t *testing.T) {
	reg := registry.New(nil)
	require.NoError(t, RegisterTerminalTools(reg))
	d := descriptorFor(t, reg, "terminal")
	assert.Contains(t, d.Schema.Operations, "run_command")
}

func TestRegisterCodeTools_Registers(t *testing.T) {
	reg := registry.New(nil)
	require.NoError(t, RegisterCodeTools(reg))
	d := descriptorFor(t, reg, "code")
	assert.Contains(t, d.Schema.Operations, "get_elements")
}

func TestRegisterWebTools_Registers(t *testing.T) {
	reg := registry.New(nil)
	require.NoError(t, RegisterWebTools(reg))
	d := descriptorFor(t, reg, "web")
	assert.Contains(t, d.Schema.Operations, "web_fetch")
}

func callTool(t *testing.T, reg *registry.Registry, name string, args map[string]any) (any, error) {
	t.Helper()
	lookup := reg.Lookup(name)
	require.True(t, lookup.Found, "tool %s must be registered", name)
	return lookup.Handler(registry.Context{SessionTag: "s1"}, args)
}
