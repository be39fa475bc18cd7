package importer

import (
	"errors"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/vbehar/ffckmembers/internal/metrics"
	"github.com/vbehar/ffckmembers/internal/model"
	"github.com/vbehar/ffckmembers/internal/store"
)

// Summary is the outcome of one import run. Every source row is accounted
// for in exactly one of the outcome counters.
type Summary struct {
	RunID          uuid.UUID `json:"run_id"`
	Rows           int       `json:"rows"`
	Inserted       int       `json:"inserted"`
	Updated        int       `json:"updated"`
	SkippedStale   int       `json:"skipped_stale"`
	SkippedEmpty   int       `json:"skipped_empty"`
	SkippedInvalid int       `json:"skipped_invalid"`
}

// Importer reconciles a members CSV source against the store: new members
// are inserted, known ones are updated only if the incoming data is at least
// as recent as the stored one (based on the last license year).
type Importer struct {
	store   *store.Store
	mapping map[string]string
	metrics *metrics.Metrics
}

// New builds an Importer on top of the given store, with the default header
// mapping. The metrics may be nil.
func New(st *store.Store, m *metrics.Metrics) *Importer {
	return &Importer{
		store:   st,
		mapping: DefaultHeaderMapping,
		metrics: m,
	}
}

// Run processes the whole source, in order, best effort: empty or invalid
// rows are skipped and counted, never abort the run. A source failing
// mid-read ends the run with an error; the mutations applied until then stay
// in place, there is no rollback.
func (imp *Importer) Run(runID uuid.UUID, src io.Reader) (Summary, error) {
	start := time.Now()
	summary := Summary{RunID: runID}
	reader := NewReader(src, NewParser(imp.mapping))
	for {
		row, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return summary, err
		}
		summary.Rows++

		if row.Empty {
			summary.SkippedEmpty++
			imp.metrics.CountImportRow("skipped_empty")
			continue
		}

		if err := imp.reconcile(row.Member, &summary); err != nil {
			// constraint violations are local to the row, everything else
			// means the store is gone
			if errors.Is(err, store.ErrInvalidRecord) || errors.Is(err, store.ErrDuplicateCode) {
				summary.SkippedInvalid++
				imp.metrics.CountImportRow("skipped_invalid")
				continue
			}
			return summary, err
		}
	}
	imp.metrics.ObserveImportDuration(time.Since(start))
	return summary, nil
}

// reconcile applies one member record to the store: insert if unknown,
// update if the incoming record supersedes the stored one, skip otherwise.
// Each record yields at most one mutation.
func (imp *Importer) reconcile(member model.Member, summary *Summary) error {
	existing, err := imp.store.Get(member.Code)
	if err != nil {
		return err
	}

	if existing == nil {
		if _, err := imp.store.Insert(member); err != nil {
			return err
		}
		summary.Inserted++
		imp.metrics.CountImportRow("inserted")
		return nil
	}

	if supersedes(member.LastLicense, existing.LastLicense) {
		if _, err := imp.store.Update(member.Code, member); err != nil {
			return err
		}
		summary.Updated++
		imp.metrics.CountImportRow("updated")
		return nil
	}

	summary.SkippedStale++
	imp.metrics.CountImportRow("skipped_stale")
	return nil
}

// supersedes decides whether an incoming record replaces the stored one,
// comparing the last license years numerically. A stored year that cannot be
// read is always superseded; an incoming year that cannot be read never
// supersedes a readable one.
func supersedes(incoming, stored *string) bool {
	storedYear, err := strconv.Atoi(deref(stored))
	if err != nil {
		return true
	}
	incomingYear, err := strconv.Atoi(deref(incoming))
	if err != nil {
		return false
	}
	return incomingYear >= storedYear
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
