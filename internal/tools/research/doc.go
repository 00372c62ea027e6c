// Package research provides modular research tools for the JIT Clean Loop.
//
// These tools were extracted from the deleted ResearcherShard and made
// available to any agent based on intent-driven JIT selection.
//
// Tools:
//   - context7: Fetch LLM-optimized documentation via llms.txt pattern
//   - web_fetch: Fetch arbitrary URLs and convert to markdown
//   - web_search: Web search via configured provider
//   - browser: CDP browser automation via Rod
//   - cache: Research result caching
package research
