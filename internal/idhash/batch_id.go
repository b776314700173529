package idhash

import (
	"errors"
	"fmt"
	"time"

	"cowswap-improvement/internal/blocktime"
	"cowswap-improvement/internal/domain"
	"cowswap-improvement/internal/storage"
)

// ErrMixedBatchDates is returned when the records of one batch span more than
// one calendar date. It wraps storage.ErrInvalidInput.
var ErrMixedBatchDates = fmt.Errorf("%w: records span multiple dates", storage.ErrInvalidInput)

// BatchIDFromDate formats t as the integer YYYYMMDD (UTC).
func BatchIDFromDate(t time.Time) int64 {
	t = t.UTC()
	return int64(t.Year())*10000 + int64(t.Month())*100 + int64(t.Day())
}

// DeriveBatchID derives the batch identifier from the first record's
// block_time and stamps it onto every record.
// Every record must fall on the same calendar date as the first one.
func DeriveBatchID(records []*domain.MatchedRecord) (int64, error) {
	if len(records) == 0 {
		return 0, fmt.Errorf("%w: empty trade list", storage.ErrInvalidInput)
	}
	first := records[0]
	if first == nil || first.TradeRecord == nil || first.BlockTime == "" {
		return 0, fmt.Errorf("%w: missing block_time on first record", storage.ErrInvalidInput)
	}

	date, err := blocktime.Date(first.BlockTime)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	batchID := BatchIDFromDate(date)

	for i, r := range records[1:] {
		if r == nil || r.TradeRecord == nil {
			return 0, fmt.Errorf("%w: nil record at index %d", storage.ErrInvalidInput, i+1)
		}
		d, err := blocktime.Date(r.BlockTime)
		if err != nil {
			return 0, fmt.Errorf("%w: record %d: %v", storage.ErrInvalidInput, i+1, err)
		}
		if !d.Equal(date) {
			return 0, fmt.Errorf("%w: block %d on %s, batch on %s",
				ErrMixedBatchDates, r.BlockNumber, d.Format("2006-01-02"), date.Format("2006-01-02"))
		}
	}

	StampBatchID(records, batchID)
	return batchID, nil
}

// StampBatchID assigns batchID to every record.
func StampBatchID(records []*domain.MatchedRecord, batchID int64) {
	for _, r := range records {
		if r != nil && r.TradeRecord != nil {
			r.BatchID = batchID
		}
	}
}

// IsMixedBatch reports whether err came from a multi-date batch.
func IsMixedBatch(err error) bool {
	return errors.Is(err, ErrMixedBatchDates)
}
