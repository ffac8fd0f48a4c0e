package broker

import "encoding/json"

// DLQRecord is the independent envelope written to the dead-letter topic
// (Tier 2) or, failing that, to a backup file (Tier 3) when main-topic
// delivery fails definitively. Field names follow spec.md §3's "DLQ
// record" exactly; JSON tags use the camelCase the teacher's DLQ handler
// already writes into AMQP headers (x-failure-reason, x-failed-at),
// carried here as first-class fields instead of transport headers so the
// backup file is self-describing without the original AMQP envelope.
type DLQRecord struct {
	EventID          uint64 `json:"eventId"`
	OriginalTopic    string `json:"originalTopic"`
	OriginalPayload  []byte `json:"originalPayload"`
	ExceptionType    string `json:"exceptionType"`
	ExceptionMessage string `json:"exceptionMessage"`
	FailedAtMillis   int64  `json:"failedAtMillis"`
}

func (r DLQRecord) marshal() ([]byte, error) {
	return json.Marshal(r)
}

// unmarshalDLQRecord parses a backup file's content back into a DLQRecord.
// Used by ReadBackupFile; not exercised on the publish path.
func unmarshalDLQRecord(data []byte) (DLQRecord, error) {
	var r DLQRecord
	err := json.Unmarshal(data, &r)
	return r, err
}
