package marketdata

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// ContentHash returns a stable digest of the chart contents.
func ContentHash(chart *Chart) (string, error) {
	if chart == nil {
		return "", nil
	}
	payload, err := EncodeChart(chart)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// EncodeChart serialises a chart into its compact wire form.
func EncodeChart(chart *Chart) ([]byte, error) {
	data, err := msgpack.Marshal(chart)
	if err != nil {
		return nil, fmt.Errorf("marketdata: encode chart: %w", err)
	}
	return data, nil
}

// DecodeChart is the inverse of EncodeChart.
func DecodeChart(data []byte) (*Chart, error) {
	var chart Chart
	if err := msgpack.Unmarshal(data, &chart); err != nil {
		return nil, fmt.Errorf("marketdata: decode chart: %w", err)
	}
	return &chart, nil
}
