// Package config handles configuration loading, parsing, and validation
// from a YAML file and SCRY_-prefixed environment variables. It provides
// type-safe access to the settings needed by the server, the research
// provider adapters, the task runner and the storage backends.
package config
