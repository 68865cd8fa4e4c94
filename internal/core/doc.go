// Package core provides the business logic for contact CSV imports.
//
// It holds the domain logic independent of any transport or database. The
// web handlers, the contactctl CLI and the tests all drive the same
// [Service] over a [Store] implementation from internal/storage.
//
// # Import Pipeline
//
// [Service.Import] streams a file through these stages:
//
//  1. The reader is wrapped to skip a UTF-8 BOM and replace invalid bytes
//  2. [ValidateHeaders] rejects files missing a required column
//  3. Rows are grouped into chunks of [BatchConfig.ChunkSize]
//  4. Each chunk runs in one [Tx]: rows are validated with [ValidateRow],
//     checked by the [DuplicateDetector] and inserted
//  5. The chunk's counters are merged into the run state on commit only
//
// A chunk that fails to commit is rolled back and reported once as a
// batch_error; later chunks still run. Once the error budget
// ([BatchConfig.MaxErrors]) is spent the run stops and the result says so.
//
// # Duplicate Groups
//
// A row whose company, email and phone match stored records joins the
// smallest existing group id among them. When the matches carry no group,
// a fresh id is minted and the earlier record is left ungrouped.
//
// # Error Handling
//
// Technical errors are mapped to user-facing messages with [MapError].
// Each category has a code for support reference:
//
//   - DB001-DB007: Database errors (constraints, connections, locks)
//   - VAL001-VAL005: Validation errors (headers, fields, formats)
//   - FILE001-FILE005: File errors (size, encoding, format)
//   - IMP001-IMP004: Import errors (busy, cancelled, timeout, progress)
//   - REC001-REC002: Lookup errors (record, duplicate group)
package core
