// Package storage provides the SQLite run journal.
//
// Every Match call can be recorded as a Run together with the files that
// could not be retrieved. The journal feeds status reporting only; cached
// match results are never written here.
//
// # Database Schema
//
// Tables:
//   - schema_version: applied migrations, compared with semver
//   - runs: one row per Match call (status, counts, duration, cache key)
//   - retrieval_failures: failed file retrievals, deleted with their run
//
// # Basic Usage
//
//	journal, err := storage.NewSQLiteStorage("issuematch.db")
//	if err != nil {
//	    return err
//	}
//	defer journal.Close()
//
//	run := &storage.Run{Status: storage.StatusSuccess, FilesRequested: 2, FilesFetched: 1}
//	err = journal.RecordRun(ctx, run, []storage.RetrievalFailure{
//	    {Path: "gone.py", Reason: "http status", StatusCode: 404},
//	})
//
//	recent, err := journal.ListRecentRuns(ctx, 10)
//
// Pass ":memory:" for a journal that lives only as long as the process.
//
// # Build Modes
//
// The default build uses modernc.org/sqlite and needs no C toolchain.
// Building with the sqlite_cgo tag switches to github.com/mattn/go-sqlite3.
package storage
