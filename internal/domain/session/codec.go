package session

import (
	"github.com/bytedance/sonic"

	"voice-quiz-server/internal/domain/summary"
)

func encodeRecordings(recs map[int]RecordingPayload) ([]byte, error) {
	if len(recs) == 0 {
		return nil, nil
	}
	return sonic.Marshal(recs)
}

func decodeRecordings(raw []byte) (map[int]RecordingPayload, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var recs map[int]RecordingPayload
	if err := sonic.Unmarshal(raw, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

func encodeSummary(s *summary.Summary) ([]byte, error) {
	if s == nil {
		return nil, nil
	}
	return sonic.Marshal(s)
}

func decodeSummary(raw []byte) (*summary.Summary, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var s summary.Summary
	if err := sonic.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
