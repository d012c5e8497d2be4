// Package audit records the writes boxlink makes to the box on behalf of
// its clients: state changes, channel sets, box selection, tag edits and
// session changes, each with the surface that asked for it (api or mqtt).
//
// Reads are never logged. Entries live in the audit_logs table of the
// local database and can be listed newest first with filters.
package audit
