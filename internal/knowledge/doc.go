// Package knowledge stores report artifacts and user uploads on local disk,
// grouped by subject, with their metadata kept in a store.DocumentStore.
// It also extracts plain text from stored documents so they can be fed back
// into research prompts.
package knowledge
