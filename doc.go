/*
Package kv provides a single-node, append-mostly key/value store built
as a log-structured merge (LSM) engine: an in-memory memtable, a
write-ahead log for crash recovery, sorted-string table (SST) files
produced by memtable flushes, a manifest enumerating the live SSTs, and
a k-way merge compactor that collapses history.

Keys are non-empty UTF-8 strings; values are uint32. The store supports
three operations — Put, Get, Delete — each durable across process
crashes: a Put or Delete only returns once its mutation has been
fsynced to the write-ahead log, and flush/compaction only return once
their new SST and manifest are fsynced and the rename that publishes
them is itself durable.

# Usage

	db, err := kv.Open(kv.DefaultOptions("data"))
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	if err := db.Put("x", 1); err != nil {
		log.Fatal(err)
	}
	v, ok, err := db.Get("x")

# Concurrency

A DB is safe for concurrent use by multiple goroutines: Get calls run
concurrently with each other; Put and Delete calls are serialized
against every other operation, matching the single-writer/many-readers
discipline of the underlying engine.

# Non-goals

Range scans, multi-key transactions, secondary indexes, replication,
compression, snapshots, concurrent compaction with writes,
variable-length values, bloom filters, and leveled compaction tiers are
out of scope.
*/
package kv
