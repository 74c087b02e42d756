// Package generation defines the boundary between the report pipeline and a
// text-generating LLM. The Generator interface takes a persona role and a
// composed research request and returns the generated Markdown; adapters such
// as the Gemini implementation live under internal/platform.
package generation
