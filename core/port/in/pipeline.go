// Package in defines inbound ports (driving ports): the use cases the
// application exposes to its adapters (HTTP, worker pool, scheduler).
package in

import "context"

// PipelineService runs the email processing pipeline (§4.L).
type PipelineService interface {
	// ProcessInbox fetches up to maxResults unread messages for userID and
	// runs each through fetch→dedupe→parse→classify→summarize→suggest→
	// persist→autonomous-evaluate, returning the count actually processed.
	ProcessInbox(ctx context.Context, userID string, maxResults int) (processed int, err error)
}
