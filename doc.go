// Package omprogbridge forwards rsyslog output to a message queue.
//
// rsyslog's omprog module starts the bridge as a child process, writes one log line
// per message to its stdin and, with confirmMessages enabled, reads one status line
// per input line from its stdout. The bridge turns each line into a record (a JSON
// metadata object followed by the message payload), publishes it asynchronously and
// answers once the queue has acknowledged it.
//
// # Layout
//
//   - record: line parsing and the optional event time
//   - producer: the asynchronous Producer contract, result collection and the backend
//     registry; producer/jetstream, producer/kafkago, producer/sarama and
//     producer/franz implement it
//   - bridge: the omprog session state machine and batch reconciliation
//   - config, errors, metric, natsclient: ambient infrastructure
//   - cmd/omprog-bridge: the binary
//
// # Transactions
//
// With useTransactions enabled rsyslog brackets batches in BEGIN TRANSACTION and
// COMMIT TRANSACTION marks. Records inside a transaction are acknowledged with
// DEFER_COMMIT and published together at commit; the commit line carries the batch
// verdict. Outside a transaction each record is published and confirmed on its own.
//
// Stdout is reserved for the protocol. All logs go to stderr.
package omprogbridge
