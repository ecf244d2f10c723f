// Package store persists the raw event log and everything derived from it.
// PostgresStore is the production implementation; MemoryStore has the same
// semantics for local runs and tests.
package store

import (
	"github.com/movinesta/swipe-ingest/internal/config"
	"github.com/movinesta/swipe-ingest/internal/fanout"
	"github.com/movinesta/swipe-ingest/internal/ingest"
)

var (
	_ ingest.EventWriter    = (*PostgresStore)(nil)
	_ fanout.DiaryStore     = (*PostgresStore)(nil)
	_ fanout.TasteSink      = (*PostgresStore)(nil)
	_ fanout.LabelSink      = (*PostgresStore)(nil)
	_ fanout.RollupStore    = (*PostgresStore)(nil)
	_ config.SettingsReader = (*PostgresStore)(nil)

	_ ingest.EventWriter    = (*MemoryStore)(nil)
	_ fanout.DiaryStore     = (*MemoryStore)(nil)
	_ fanout.TasteSink      = (*MemoryStore)(nil)
	_ fanout.LabelSink      = (*MemoryStore)(nil)
	_ fanout.RollupStore    = (*MemoryStore)(nil)
	_ config.SettingsReader = (*MemoryStore)(nil)
)
