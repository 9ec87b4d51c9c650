// Package core moves tabular data between databases and delimited files.
//
// It is independent of HTTP: web handlers, tests, and any future CLI call the
// same [Service] methods.
//
// # Operations
//
//   - Schema: [Service.TestConnection], [Service.ListTables], [Service.ListColumns]
//   - Preview: [Service.PreviewTable], [Service.FileColumns], [Service.PreviewFile]
//   - Transfers: [Service.ExportToFile], [Service.ImportFromFile]
//
// Every operation opens its own connection through the engine registry and
// closes it before returning. Metadata and preview calls are bounded by
// [Options.QueryTimeout]; transfers by [Options.TransferTimeout] and a slot
// from the [TransferLimiter].
//
// # Import
//
// Imports stream the upload: the header is read and every selected column
// resolved before the target table is created, then data lines are parsed
// into typed values and inserted in batches of [Options.BatchSize]. Memory
// use is O(batch size) regardless of file size. Batches already sent stay in
// the table when a later line fails.
//
// # Export
//
// Exports stream query results into a sink object named
// <prefix>_<unix-millis>_<transfer-id>.csv with a header line. A failed
// export aborts the object, so no partial file is ever published.
package core
