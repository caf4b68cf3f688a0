// Package assistant drives the stateful assistant protocol for one chat turn:
// resolve a thread, append the user message, start a run, poll it until it
// finishes and extract the reply.
//
// Steps run strictly in order and are never retried; only the poll loop
// repeats, bounded by a PollPolicy. Failures are reported through Result
// rather than returned as errors so the caller can choose a fallback.
package assistant
