// Package research drives long-running research jobs at an external
// provider. It defines the provider-neutral Client contract, the error
// taxonomy for job outcomes, markdown normalization of provider output, and
// the Coordinator that submits a job and polls it to a terminal outcome
// under a fixed attempt budget.
package research
