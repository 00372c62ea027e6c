package stdio

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mimogate/internal/dispatch"
	"mimogate/internal/gwtypes"
	"mimogate/internal/registry"
)

func newTestServer(t *testing.T) (*Server, *registry.Registry) {
	t.Helper()
	reg := registry.New(nil)
	d := dispatch.New(reg, nil, nil, nil, nil, false)
	return New(d, reg), reg
}

func readResponses(t *testing.T, out *bytes.Buffer) []map[string]any {
	t.Helper()
	var responses []map[string]any
	for _, line := range strings.Split(strings.TrimRight(out.String(), "\n"), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		responses = append(responses, m)
	}
	return responses
}

func TestServe_Initialize(t *testing.T) {
	s, _ := newTestServer(t)
	in := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"initialize"}` + "\n")
	var out bytes.Buffer

	require.NoError(t, s.Serve(context.Background(), in, &out))

	resps := readResponses(t, &out)
	require.Len(t, resps, 1)
	assert.Nil(t, resps[0]["error"])
	result := resps[0]["result"].(map[string]any)
	assert.Equal(t, "2024-11-05", result["protocolVersion"])
}

func TestServe_ToolsList(t *testing.T) {
	s, reg := newTestServer(t)
	require.NoError(t, reg.RegisterInternal("memory", gwtypes.ToolSchema{}, nil))

	in := strings.NewReader(`{"jsonrpc":"2.0","id":"a","method":"tools/list"}` + "\n")
	var out bytes.Buffer
	require.NoError(t, s.Serve(context.Background(), in, &out))

	resps := readResponses(t, &out)
	require.Len(t, resps, 1)
	result := resps[0]["result"].(map[string]any)
	tools := result["tools"].([]any)
	assert.Len(t, tools, 1)
}

func TestServe_ToolsCall_SandboxedParamReachesDispatcher(t *testing.T) {
	reg := registry.New(nil)
	require.NoError(t, reg.RegisterInternal("memory", gwtypes.ToolSchema{}, func(ctx registry.Context, args map[string]any) (any, error) {
		return ctx.Sandboxed, nil
	}))
	d := dispatch.New(reg, nil, nil, nil, nil, false)
	s := New(d, reg)

	in := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"memory","arguments":{"operation":"search"},"sandboxed":true}}` + "\n")
	var out bytes.Buffer
	require.NoError(t, s.Serve(context.Background(), in, &out))

	resps := readResponses(t, &out)
	require.Len(t, resps, 1)
	require.Nil(t, resps[0]["error"])
	result := resps[0]["result"].(map[string]any)
	assert.Equal(t, true, result["Value"])
}

func TestServe_ToolsCall_SandboxForbidsWrite(t *testing.T) {
	reg := registry.New(nil)
	require.NoError(t, reg.RegisterInternal("memory", gwtypes.ToolSchema{}, func(ctx registry.Context, args map[string]any) (any, error) {
		return "stored", nil
	}))
	d := dispatch.New(reg, nil, nil, nil, nil, false)
	s := New(d, reg)

	in := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"memory","arguments":{"operation":"store"},"sandboxed":true}}` + "\n")
	var out bytes.Buffer
	require.NoError(t, s.Serve(context.Background(), in, &out))

	resps := readResponses(t, &out)
	require.Len(t, resps, 1)
	require.NotNil(t, resps[0]["error"])
	errObj := resps[0]["error"].(map[string]any)
	assert.EqualValues(t, -32002, errObj["code"])
}

func TestServe_UnknownMethod(t *testing.T) {
	s, _ := newTestServer(t)
	in := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"bogus"}` + "\n")
	var out bytes.Buffer
	require.NoError(t, s.Serve(context.Background(), in, &out))

	resps := readResponses(t, &out)
	require.Len(t, resps, 1)
	errObj := resps[0]["error"].(map[string]any)
	assert.EqualValues(t, -32001, errObj["code"])
}

func TestServe_MalformedJSON(t *testing.T) {
	s, _ := newTestServer(t)
	in := strings.NewReader(`not json` + "\n")
	var out bytes.Buffer
	require.NoError(t, s.Serve(context.Background(), in, &out))

	resps := readResponses(t, &out)
	require.Len(t, resps, 1)
	errObj := resps[0]["error"].(map[string]any)
	assert.EqualValues(t, -32700, errObj["code"])
}

func TestServe_NotificationGetsNoResponse(t *testing.T) {
	s, _ := newTestServer(t)
	in := strings.NewReader(`{"jsonrpc":"2.0","method":"initialize"}` + "\n")
	var out bytes.Buffer
	require.NoError(t, s.Serve(context.Background(), in, &out))

	assert.Empty(t, out.String())
}

func TestServe_MultipleLinesEachGetAResponse(t *testing.T) {
	s, _ := newTestServer(t)
	in := strings.NewReader(
		`{"jsonrpc":"2.0","id":1,"method":"initialize"}` + "\n" +
			`{"jsonrpc":"2.0","id":2,"method":"tools/list"}` + "\n",
	)
	var out bytes.Buffer
	require.NoError(t, s.Serve(context.Background(), in, &out))

	resps := readResponses(t, &out)
	require.Len(t, resps, 2)
}

func TestServe_BlankLinesAreSkipped(t *testing.T) {
	s, _ := newTestServer(t)
	in := strings.NewReader("\n\n" + `{"jsonrpc":"2.0","id":1,"method":"initialize"}` + "\n")
	var out bytes.Buffer
	require.NoError(t, s.Serve(context.Background(), in, &out))

	resps := readResponses(t, &out)
	require.Len(t, resps, 1)
}
