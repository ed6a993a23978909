// Package bridge implements the omprog side of the bridge: the session loop reading
// rsyslog's line protocol, the transaction controller, and the reconciler turning
// asynchronous send results into one acknowledgement per submission.
//
// Protocol, as seen on the session's input and output:
//
//	<- OK                      (startup, confirm mode only)
//	-> BEGIN TRANSACTION
//	<- OK
//	-> {"host":"web-1"} msg1
//	<- DEFER_COMMIT
//	-> COMMIT TRANSACTION
//	<- OK | Publisher error: <code> | Publisher send_async: got N results, expecting M
//
// Outside a transaction every record is forwarded on its own and acknowledged with the
// verdict of that submission. A malformed line is logged and dropped; the host still
// receives the acknowledgement the current state calls for. With confirm_messages off
// nothing is written to the output and submissions are not reconciled.
//
// A Session owns its batch and is not safe for concurrent use. Each submission gets its
// own producer.Collector, sealed when reconciliation ends, so results that arrive after a
// timeout cannot be counted toward a later batch.
package bridge
