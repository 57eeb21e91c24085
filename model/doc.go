// Package model defines the provider-agnostic Model Provider capability the
// execution engine calls through, together with the closed taxonomy of
// provider errors that failover classification consumes.
//
// Core goals:
//   - One synchronous Complete call per attempt so the failover loop sees a
//     single terminal outcome (completion or typed ProviderError)
//   - Normalize tool / function call representation (ToolDefinition, core.FunctionCall)
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate lightweight scripting for tests (MockProvider)
//
// Vendor adapters live in sub-packages (anthropic, openai) and translate SDK
// errors into the ProviderError variants defined here.
package model
