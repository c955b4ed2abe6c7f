// Package recordlog turns a pair of byte streams into an append-only sequence
// of typed, timestamped records.
//
// A Log is backed by two independent ByteLogs:
//   - the index: UTF-8 text, one line per record
//   - the data: raw concatenation of record payloads in append order
//
// # Index Line Format
//
//	<offset> <size> <timestampMs> <kind>[ <meta>]\n
//
// offset, size and timestampMs are decimal integers. kind never contains
// whitespace. meta is the remainder of the line and never contains a newline.
// A record with an empty payload is a marker: it is written with offset 0 and
// size 0 and no data write happens.
//
// # Ordering
//
// Append order is the only order. Records() returns records in the order
// they were appended; timestampMs is advisory wall-clock time.
//
// # Crash Safety
//
// Append writes the payload to the data stream first and the index line
// second, with no transaction spanning the two streams:
//   - a crash after the data write leaves orphaned bytes at the end of the
//     data stream. No index line addresses them, and the next Append
//     computes its offset from the current data length, skipping past them.
//   - a crash during the index write leaves an unterminated final line.
//     Open truncates the index back to the last complete line.
//   - an index line that reached disk while its payload did not addresses
//     bytes past the end of the data stream. When no later line is
//     addressable, Open truncates the index at the first such line.
//
// Malformed lines, and out-of-range lines followed by valid ones, are
// skipped and left on disk, never fatal.
//
// # Concurrency
//
// A Log serializes appends with a mutex so the offset recorded in the index
// always matches where the payload was written. File-backed logs additionally
// hold an exclusive lock on both streams, keeping a second process out.
package recordlog
