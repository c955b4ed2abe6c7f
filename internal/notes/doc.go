// Package notes derives notes from a record log.
//
// Each mutation is one record:
//
//	note-create    meta "<noteId>:<name>", no payload
//	note-delete    meta "<noteId>", no payload
//	note-meta      meta JSON Metadata, no payload
//	put            meta "<noteId>:<verId>", payload is the content
//	put-encrypted  as put, payload is ciphertext
//	write-file     meta {"name":...}, payload is the file
//
// Current state is never stored. Derive replays the records in append order;
// a deleted note leaves its create, meta and put records in the log.
package notes
