// Package snapshot provides the snapshot row data structure and serialization.
package snapshot

import "encoding/json"

// Supply is the decoded read value for one token at a snapshot block.
// An unavailable entry has Available false and empty magnitudes; it means the
// batch round-trip ran out of retries for this entry, not that the supply is
// zero.
type Supply struct {
	Raw       string `json:"raw"`       // Raw integer magnitude as a decimal string
	Scaled    string `json:"scaled"`    // Magnitude scaled down by the token's decimals
	Available bool   `json:"available"` // Whether the value could be decoded
}

// Row is one date's snapshot: the resolved block and every configured token's
// supply at that block.
type Row struct {
	Date      string            `json:"date"`           // Calendar date (YYYY-MM-DD, UTC)
	Block     uint64            `json:"block"`          // Resolved block number
	BlockTime uint64            `json:"blockTimestamp"` // Resolved block's unix timestamp
	Supplies  map[string]Supply `json:"supplies"`       // Keyed by token name
}

// Serialize converts the row to JSON bytes.
func (r Row) Serialize() ([]byte, error) {
	return json.Marshal(r)
}

// Deserialize parses JSON bytes into a Row.
func Deserialize(jsonData []byte) (Row, error) {
	var row Row
	if err := json.Unmarshal(jsonData, &row); err != nil {
		return row, err
	}
	return row, nil
}
