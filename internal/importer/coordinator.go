// Package importer orchestrates a municipality import run: field
// mapping, insert/update partitioning, bounded batch upserts, and the
// coverage report. Re-running with the same inputs is idempotent:
// existing parcels are updated in place, never duplicated.
package importer

import (
	"context"
	"database/sql"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/cama-import/internal/debug"
	"github.com/cama-import/internal/linker"
	"github.com/cama-import/internal/mapper"
)

// Options controls one import run.
type Options struct {
	DryRun    bool
	BatchSize int
	Limit     int // 0 = no limit
	Parallel  bool
	Workers   int // 0 = NumCPU
}

// Coordinator owns the write side of the pipeline.
type Coordinator struct {
	store   parcelStore
	verbose bool
}

// New builds a coordinator over a Postgres connection. A nil connection
// is valid for dry runs: every parcel counts as an insert and nothing is
// written.
func New(conn *sql.DB, verbose bool) *Coordinator {
	c := &Coordinator{verbose: verbose}
	if conn != nil {
		c.store = &sqlStore{db: conn}
	}
	return c
}

// ImportMunicipality maps and persists one municipality's matched
// parcels. Each batch commits in its own transaction: a failure mid-run
// never rolls back already-committed batches, and a failed batch is
// retried once then reported while the run continues. Partial success is
// a valid terminal outcome.
func (c *Coordinator) ImportMunicipality(ctx context.Context, municipality string, parcels []*linker.MatchedParcel, opts Options) (*Report, error) {
	defer debug.Timing(c.verbose, "import "+municipality)()

	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	if opts.Limit > 0 && len(parcels) > opts.Limit {
		parcels = parcels[:opts.Limit]
	}

	report := &Report{Municipality: municipality, DryRun: opts.DryRun, Total: len(parcels)}
	tally(parcels, report)

	rows, mapStats := c.mapParcels(ctx, parcels, opts)
	report.BadNumeric = mapStats.BadNumeric
	report.BadDate = mapStats.BadDate
	report.DegenerateGeometry += mapStats.BadGeometry

	for _, row := range rows {
		if row.OwnerName == nil {
			report.MissingOwner++
		}
		if row.Address == nil {
			report.MissingAddress++
		}
	}

	existing := map[string]bool{}
	if c.store != nil {
		var err error
		existing, err = c.store.ExistingParcelIDs(ctx, municipality)
		if err != nil {
			return nil, fmt.Errorf("failed to load existing parcel keys: %w", err)
		}
	}

	var inserts, updates []mapper.ParcelRow
	for _, row := range rows {
		if existing[row.ParcelID] {
			updates = append(updates, row)
		} else {
			inserts = append(inserts, row)
		}
	}
	report.Inserted = len(inserts)
	report.Updated = len(updates)

	if opts.DryRun {
		return report, nil
	}

	// Insert and update sets go through the same upsert; the partition
	// exists so the report distinguishes first-run inserts from re-run
	// updates.
	all := append(inserts, updates...)
	for start := 0; start < len(all); start += opts.BatchSize {
		end := start + opts.BatchSize
		if end > len(all) {
			end = len(all)
		}
		batch := all[start:end]

		if err := c.store.WriteBatch(ctx, batch); err != nil {
			debug.Output(c.verbose, "batch %d-%d failed, retrying once: %v", start, end, err)
			if err := c.store.WriteBatch(ctx, batch); err != nil {
				fmt.Printf("batch %d-%d failed after retry: %v\n", start, end, err)
				report.FailedBatches++
				report.FailedRows += len(batch)
				continue
			}
		}
		debug.Output(c.verbose, "committed batch %d-%d of %d", start, end, len(all))
	}

	return report, nil
}

// mapParcels runs the field mapper over contiguous record ranges, in
// parallel when enabled. Workers share nothing mutable: each writes its
// own index range and keeps private stats, merged afterwards.
func (c *Coordinator) mapParcels(ctx context.Context, parcels []*linker.MatchedParcel, opts Options) ([]mapper.ParcelRow, mapper.Stats) {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if !opts.Parallel || workers > len(parcels) {
		workers = 1
	}

	rows := make([]*mapper.ParcelRow, len(parcels))
	workerStats := make([]mapper.Stats, workers)

	g, _ := errgroup.WithContext(ctx)
	chunk := (len(parcels) + workers - 1) / workers
	for w := 0; w < workers; w++ {
		w := w
		start := w * chunk
		end := start + chunk
		if end > len(parcels) {
			end = len(parcels)
		}
		if start >= end {
			continue
		}
		g.Go(func() error {
			for i := start; i < end; i++ {
				row, ok := mapper.MapToSchema(parcels[i], &workerStats[w])
				if ok {
					rows[i] = &row
				}
			}
			return nil
		})
	}
	_ = g.Wait() // workers only write their own ranges and never error

	var merged mapper.Stats
	for _, s := range workerStats {
		merged.BadNumeric += s.BadNumeric
		merged.BadDate += s.BadDate
		merged.BadGeometry += s.BadGeometry
	}

	out := make([]mapper.ParcelRow, 0, len(rows))
	for _, row := range rows {
		if row != nil {
			out = append(out, *row)
		}
	}
	return out, merged
}

// tally fills the confidence breakdown and audit samples.
func tally(parcels []*linker.MatchedParcel, report *Report) {
	for _, p := range parcels {
		switch p.Confidence {
		case linker.ExactKey:
			report.ExactKey++
		case linker.LinkDerived:
			report.LinkDerived++
		case linker.AddressMatch:
			report.AddressMatch++
		case linker.PositionalFallback:
			report.PositionalFallback++
			if len(report.SampleFallback) < sampleLimit {
				report.SampleFallback = append(report.SampleFallback, p.ParcelID)
			}
		default:
			report.Unmatched++
			if len(report.SampleUnmatched) < sampleLimit {
				report.SampleUnmatched = append(report.SampleUnmatched, p.ParcelID)
			}
		}
	}
}
