package out

import "context"

// Collection names map 1:1 onto §6's document-store collection list.
const (
	CollectionMessages         = "messages"
	CollectionFeedback         = "feedback"
	CollectionActionRequests   = "action_requests"
	CollectionUserProfile      = "user_profile"
	CollectionActivities       = "activities"
	CollectionUserTasks        = "user_tasks"
	CollectionAgentState       = "agent_state"
	CollectionConversationTurns = "conversation_turns"
	CollectionSenderProfiles   = "sender_profiles"
)

// Filter is an opaque, store-agnostic predicate. Concrete adapters translate
// it to their native query language (e.g. a bson.M for MongoDB).
type Filter map[string]interface{}

// OrderBy names a sort field and direction.
type OrderBy struct {
	Field      string
	Descending bool
}

// DocumentStore is the abstract document-store contract (§6, §4.B): get-by-
// id, set (upsert), partial-update/merge, where-filter streaming, and
// order-by+limit. No multi-document transactions are required.
//
// Every method is scoped to a single collection so callers can't
// accidentally cross collection boundaries; `into`/`out` parameters are
// pointers the adapter unmarshals into, mirroring encoding/json's shape.
type DocumentStore interface {
	// GetByID fetches a single document by its natural ID. Returns
	// ErrNotFound (see pkg/apperr) when absent.
	GetByID(ctx context.Context, collection, id string, into interface{}) error

	// Set upserts a document by its natural ID. Implementations MUST treat
	// this as create-if-absent / replace-if-present, never a blind insert,
	// so that re-processing the same message_id is a no-op (§4.B, §8).
	Set(ctx context.Context, collection, id string, doc interface{}) error

	// PartialUpdate merges fields into an existing document (never a
	// full-document overwrite — required for UserProfile and Message
	// mutation per §5's shared-resource policy).
	PartialUpdate(ctx context.Context, collection, id string, fields map[string]interface{}) error

	// Where streams documents matching filter, optionally ordered and
	// capped, invoking fn for each decoded document. fn returning an error
	// stops the stream and the error propagates to the caller.
	Where(ctx context.Context, collection string, filter Filter, order []OrderBy, limit int, fn func(raw []byte) error) error

	// Count returns the number of documents matching filter.
	Count(ctx context.Context, collection string, filter Filter) (int64, error)
}
