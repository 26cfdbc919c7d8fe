// Package sink writes diagnostic round records. Sinks never influence scoring:
// a failing sink is logged and the round result stands.
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ppiankov/scrapenet/internal/model"
)

// Sink stores one scored round together with the raw peer responses
type Sink interface {
	Store(ctx context.Context, report *model.RoundReport, responses []json.RawMessage) error
	Close() error
}

// Record is the serialized form shared by the file, object and topic sinks
type Record struct {
	Report    *model.RoundReport `json:"report"`
	Responses []json.RawMessage  `json:"responses,omitempty"`
}

// ObjectKey names a round as {platform}/{block:09}_{suffix}.json
func ObjectKey(report *model.RoundReport) string {
	return fmt.Sprintf("%s/%09d_%s.json", report.Platform, report.Block, report.RoundID)
}

func marshalRecord(report *model.RoundReport, responses []json.RawMessage, withResponses bool) ([]byte, error) {
	rec := Record{Report: report}
	if withResponses {
		rec.Responses = make([]json.RawMessage, len(responses))
		for i, r := range responses {
			if len(r) == 0 || !json.Valid(r) {
				rec.Responses[i] = json.RawMessage("null")
				continue
			}
			rec.Responses[i] = r
		}
	}
	return json.Marshal(rec)
}

// Multi fans a record out to several sinks
type Multi struct {
	sinks   []namedSink
	archive *SQLite
}

type namedSink struct {
	name string
	sink Sink
}

// NewMulti creates an empty fan-out sink
func NewMulti() *Multi {
	return &Multi{}
}

// Add registers a sink under name
func (m *Multi) Add(name string, s Sink) {
	m.sinks = append(m.sinks, namedSink{name: name, sink: s})
}

// Len returns the number of registered sinks
func (m *Multi) Len() int {
	return len(m.sinks)
}

// Store writes to every sink, logging failures, and returns them joined
func (m *Multi) Store(ctx context.Context, report *model.RoundReport, responses []json.RawMessage) error {
	var errs []error
	for _, ns := range m.sinks {
		if err := ns.sink.Store(ctx, report, responses); err != nil {
			slog.Warn("sink: store failed", "sink", ns.name, "round", report.RoundID, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", ns.name, err))
		}
	}
	return errors.Join(errs...)
}

// Archive returns the sqlite sink, nil when it is not enabled
func (m *Multi) Archive() *SQLite {
	return m.archive
}

// Close closes every sink
func (m *Multi) Close() error {
	var errs []error
	for _, ns := range m.sinks {
		if err := ns.sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ns.name, err))
		}
	}
	return errors.Join(errs...)
}

// New opens every sink enabled in cfg. A sink that fails to open closes the
// ones already opened.
func New(ctx context.Context, cfg model.SinksConfig) (*Multi, error) {
	m := NewMulti()
	fail := func(name string, err error) (*Multi, error) {
		_ = m.Close()
		return nil, fmt.Errorf("open %s sink: %w", name, err)
	}

	if cfg.JSONDir.Enabled {
		m.Add("json_dir", NewJSONDir(cfg.JSONDir.Dir))
	}
	if cfg.S3.Enabled {
		s, err := NewS3(ctx, cfg.S3)
		if err != nil {
			return fail("s3", err)
		}
		m.Add("s3", s)
	}
	if cfg.Kafka.Enabled {
		k, err := NewKafka(cfg.Kafka)
		if err != nil {
			return fail("kafka", err)
		}
		m.Add("kafka", k)
	}
	if cfg.SQLite.Enabled {
		db, err := OpenSQLite(cfg.SQLite.Path)
		if err != nil {
			return fail("sqlite", err)
		}
		m.Add("sqlite", db)
		m.archive = db
	}
	return m, nil
}
