// Package core provides the business logic for bulk loading organizations,
// sponsors and drivers into the Truck Rewards application.
//
// The package holds all domain logic independent of any transport. It is
// used by the web handlers, the bulkload CLI and tests without modification.
//
// # Architecture
//
//   - Records: [LineScanner] splits a document into tagged [Record] values.
//   - Handlers: one handler set per [Mode] interprets O, S and D records.
//   - Ingestor: [Ingestor.Run] drives a session and returns a [Summary].
//   - Store: the persistence contract, implemented on Postgres in
//     internal/database.
//   - Audit: [AuditService] records every outcome and serves the audit views.
//
// # Document Format
//
// One record per line, fields separated by '|':
//
//	O|Acme Logistics
//	S|Acme Logistics|Jane|Doe|jane@acme.test
//	D|Acme Logistics|John|Smith|john@acme.test
//
// Sponsor documents omit the organization, optionally keeping an empty field:
//
//	D|John|Smith|john@acme.test
//	D||John|Smith|john@acme.test
//
// # Sessions
//
// Each record commits on its own. A failed record is reported in the summary
// and the session continues; only an unreadable document or a cancelled
// context aborts it. Concurrent sessions are bounded by [SessionLimiter].
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - DB001-DB007: Database errors (duplicates, constraints, connections)
//   - FILE001-FILE005: File errors (size, type, encoding)
//   - BLK001-BLK003: Bulk load errors (unreadable, busy, cancelled)
//   - AUTH001-AUTH002: Missing or insufficient session role
//
// # Audit Logging
//
// Every outcome, entity creation and session completion is appended to the
// audit log. Old entries are archived to audit_log_archive by
// [StartArchiveScheduler] and purged after the archive retention period.
package core
