// Package crawler defines the core types shared by the prayer-schedule pipeline:
// crawl units and periods, snapshot payloads, canonical schedule records, run
// results, and the per-unit error taxonomy.
package crawler
