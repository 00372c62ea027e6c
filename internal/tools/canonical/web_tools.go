package canonical

import (
	legacy "mimogate/internal/tools"
	"mimogate/internal/registry"
	"mimogate/internal/tools/research"
)

// RegisterWebTools registers the "web" canonical tool: HTTP fetch,
// DuckDuckGo search, llms.txt documentation fetch, and go-rod browser
// automation, adapted from the teacher's internal/tools/research
// bodies verbatim.
func RegisterWebTools(reg *registry.Registry) error {
	ops := []*legacy.Tool{
		research.WebFetchTool(),
		research.WebSearchTool(),
		research.Context7Tool(),
		research.BrowserNavigateTool(),
		research.BrowserExtractTool(),
		research.BrowserScreenshotTool(),
		research.BrowserClickTool(),
		research.BrowserTypeTool(),
		research.BrowserCloseTool(),
		research.CacheGetTool(),
		research.CacheSetTool(),
		research.CacheClearTool(),
		research.CacheStatsTool(),
	}
	return register(reg, "web", ops)
}
