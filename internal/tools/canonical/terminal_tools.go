package canonical

import (
	legacy "mimogate/internal/tools"
	"mimogate/internal/registry"
	"mimogate/internal/tools/shell"
)

// RegisterTerminalTools registers the "terminal" canonical tool:
// subprocess command execution, adapted from the teacher's
// internal/tools/shell bodies verbatim. The sandbox forbids this tool
// outright (dispatch.sandboxForbids) rather than trying to reason
// about which shell invocations are "safe".
func RegisterTerminalTools(reg *registry.Registry) error {
	ops := []*legacy.Tool{
		shell.RunCommandTool(),
		shell.BashTool(),
		shell.RunBuildTool(),
		shell.RunTestsTool(),
	}
	return register(reg, "terminal", ops)
}
