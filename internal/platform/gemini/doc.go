// Package gemini adapts Google's Gemini APIs to the research and generation
// boundaries used by the report pipeline.
//
// Three adapters live here:
//
//   - GeminiGenerator implements generation.Generator over the genai SDK's
//     GenerateContent call, with exponential backoff for rate limits, server
//     errors and network failures. Safety blocks and empty answers are
//     permanent and returned immediately.
//
//   - InteractionsClient implements research.Client against the Interactions
//     REST API, submitting the deep-research agent with background=true and
//     reading the job state on each poll.
//
//   - GenerateClient implements research.Client on top of any
//     generation.Generator by running the blocking call in a goroutine and
//     exposing it through the same submit/poll handle contract.
//
// API keys are sent as headers and scrubbed from every error message that
// leaves the package.
package gemini
