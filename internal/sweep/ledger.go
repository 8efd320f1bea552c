package sweep

import (
	"context"

	"github.com/banshee-data/sarsweep/internal/store"
)

// LedgerObserver records sweep progress in a store.Ledger.
type LedgerObserver struct {
	Ledger *store.Ledger

	// Sweep describes the sweep; SweepID is filled in by SweepStarted when
	// left empty.
	Sweep store.SweepRecord
}

// Compile-time check.
var _ Observer = (*LedgerObserver)(nil)

func (o *LedgerObserver) SweepStarted(ctx context.Context, total int) error {
	id, err := o.Ledger.StartSweep(ctx, o.Sweep)
	if err != nil {
		return err
	}
	o.Sweep.SweepID = id
	logf("ledger sweep %s started (%d configurations)", id, total)
	return nil
}

func (o *LedgerObserver) RunChanged(ctx context.Context, rec RunRecord) error {
	return o.Ledger.RecordRun(ctx, store.RunRow{
		SweepID:      o.Sweep.SweepID,
		RunName:      rec.Name,
		Theta:        rec.Configuration.Theta,
		Phi:          rec.Configuration.Phi,
		Psi:          rec.Configuration.Psi,
		Polarization: rec.Configuration.Polarization,
		Status:       string(rec.Status),
		Kernel:       rec.Kernel,
		Metric:       rec.Metric,
		Error:        rec.Err,
	})
}

func (o *LedgerObserver) SweepFinished(ctx context.Context, status SweepStatus, errMsg string, s Summary) error {
	_, failed, _ := s.Counts()
	return o.Ledger.FinishSweep(ctx, o.Sweep.SweepID, string(status), errMsg, store.SweepTotals{
		Runs:    len(s.Runs),
		Failed:  failed,
		Records: len(s.Records),
	})
}
