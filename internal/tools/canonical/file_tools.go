package canonical

import (
	"mimogate/internal/registry"
	"mimogate/internal/tools/core"
	legacy "mimogate/internal/tools"
)

// RegisterFileTools registers the "file" canonical tool: read, write,
// edit, delete, list, and search over the local filesystem, adapted
// from the teacher's internal/tools/core bodies verbatim.
func RegisterFileTools(reg *registry.Registry) error {
	ops := []*legacy.Tool{
		core.ReadFileTool(),
		core.WriteFileTool(),
		core.EditFileTool(),
		core.DeleteFileTool(),
		core.ListFilesTool(),
		core.GlobTool(),
		core.GrepTool(),
		core.SearchCodeTool(),
	}
	return register(reg, "file", ops)
}
