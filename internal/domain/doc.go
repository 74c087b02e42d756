// Package domain contains the core entities of the research service: report
// tasks with their status machine, report results, and stored documents.
// It has no knowledge of storage, transport or the research provider.
package domain
