package streams

import (
	"github.com/gmbyapa/kfactory/kafka"
	"github.com/gmbyapa/kfactory/pkg/errors"
	"time"
)

const (
	TimestampExtractorRecord            = `record`
	TimestampExtractorWallclock         = `wallclock`
	TimestampExtractorRecordOrWallclock = `record-or-wallclock`
)

var ErrUnknownTimestampExtractor = errors.Sentinel(`unknown timestamp extractor`)

// TimestampExtractor resolves the event time of a record.
type TimestampExtractor func(record kafka.Record) time.Time

func RecordTimestamp(record kafka.Record) time.Time {
	return record.Timestamp()
}

func WallclockTimestamp(_ kafka.Record) time.Time {
	return time.Now()
}

// RecordOrWallclockTimestamp falls back to the wall clock for records without a valid timestamp.
func RecordOrWallclockTimestamp(record kafka.Record) time.Time {
	ts := record.Timestamp()
	if ts.IsZero() || ts.Unix() <= 0 {
		return time.Now()
	}

	return ts
}

var extractors = map[string]TimestampExtractor{
	TimestampExtractorRecord:            RecordTimestamp,
	TimestampExtractorWallclock:         WallclockTimestamp,
	TimestampExtractorRecordOrWallclock: RecordOrWallclockTimestamp,
}

func TimestampExtractorByName(name string) (TimestampExtractor, error) {
	ext, ok := extractors[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownTimestampExtractor, `[%s]`, name)
	}

	return ext, nil
}
