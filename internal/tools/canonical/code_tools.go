package canonical

import (
	legacy "mimogate/internal/tools"
	"mimogate/internal/registry"
	"mimogate/internal/tools/codedom"
)

// RegisterCodeTools registers the "code" canonical tool: code-element
// listing, line-range editing, and impacted-test discovery, adapted
// from the teacher's internal/tools/codedom bodies verbatim.
// run_impacted_tests/get_impacted_tests run in degraded mode (a "no
// provider configured" error) until a TestImpactProvider is registered
// via codedom.RegisterTestImpactProvider - the same graceful-absence
// pattern the embedder-nil paths use elsewhere in this gateway.
func RegisterCodeTools(reg *registry.Registry) error {
	ops := []*legacy.Tool{
		codedom.GetElementsTool(),
		codedom.GetElementTool(),
		codedom.EditLinesTool(),
		codedom.InsertLinesTool(),
		codedom.DeleteLinesTool(),
		codedom.RunImpactedTestsTool(),
		codedom.GetImpactedTestsTool(),
	}
	return register(reg, "code", ops)
}
