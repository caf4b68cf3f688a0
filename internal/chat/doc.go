// Package chat is the conversation session manager: it runs chat turns end to
// end and owns the administrative operations on conversations.
//
// A turn always produces a reply. Persistence is best effort: every write is
// recorded as an Effect, logged when it fails, and never changes the reply.
//
// Turns on the same conversation are not serialized here. Two concurrent
// turns interleave their messages in arrival order and the last one to
// finish sets updated_at and thread_id; callers that need strict ordering
// must serialize their own requests.
package chat
