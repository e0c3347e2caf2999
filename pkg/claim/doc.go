/*
Package claim implements the outbound half of the two-phase pairing
handshake with an on-premise edge server.

The flow has a strict ordering so that a network failure can never leave
the cloud pointing at a server that rejected the pairing:

	1. Consume: redeem {claimId, claimCode} against the edge's public
	   consume endpoint. Hard 10s deadline. Any failure (timeout,
	   non-2xx, malformed body, missing serverUid) aborts the pairing
	   with an *UpstreamError, which the API surfaces as 502.
	2. Commit: the caller links the store and node durably. This
	   package is never invoked inside that transaction.
	3. Finalize: deliver the node credential and store identity back to
	   the edge. Failure here is non-fatal: the link is already
	   committed, so the error rides back to the operator as
	   onsite.finalizeError and the operator retries manually.

Consume latency is observed into the claim histogram; every attempt
increments the claim request counter with an ok or upstream_error
result.
*/
package claim
