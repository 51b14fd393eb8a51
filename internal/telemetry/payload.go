package telemetry

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/nerrad567/gray-logic-floorplan/internal/floorplan"
)

// measurementPayload is the wire format published on a device's
// measurement topic:
//
//	{
//	  "time": "2026-10-18T09:00:00Z",
//	  "fragments": {
//	    "c8y_Temperature": {"T": {"value": 21.5, "unit": "C"}}
//	  }
//	}
type measurementPayload struct {
	Time      *time.Time                           `json:"time"`
	Fragments map[string]map[string]seriesPayload `json:"fragments"`
}

type seriesPayload struct {
	Value *float64 `json:"value"`
	Unit  string   `json:"unit"`
}

// DecodeMeasurements parses a measurement message into one Measurement per
// series, ordered by datapoint key. Series without a value are skipped.
// A message without a timestamp is stamped with now.
func DecodeMeasurements(payload []byte, now time.Time) ([]Measurement, error) {
	var p measurementPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if p.Fragments == nil {
		return nil, fmt.Errorf("%w: no fragments", ErrInvalidPayload)
	}

	ts := now
	if p.Time != nil && !p.Time.IsZero() {
		ts = *p.Time
	}

	var out []Measurement
	for fragment, series := range p.Fragments {
		for name, s := range series {
			if s.Value == nil {
				continue
			}
			out = append(out, Measurement{
				Datapoint: floorplan.Datapoint{Fragment: fragment, Series: name},
				Value:     *s.Value,
				Unit:      s.Unit,
				Time:      ts,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Datapoint.Key() < out[j].Datapoint.Key()
	})
	return out, nil
}

// EncodeMeasurements is the inverse of DecodeMeasurements for one timestamp.
// It is used by simulators and tests that publish telemetry.
func EncodeMeasurements(ts time.Time, measurements []Measurement) ([]byte, error) {
	p := measurementPayload{
		Time:      &ts,
		Fragments: make(map[string]map[string]seriesPayload),
	}
	for _, m := range measurements {
		series, ok := p.Fragments[m.Datapoint.Fragment]
		if !ok {
			series = make(map[string]seriesPayload)
			p.Fragments[m.Datapoint.Fragment] = series
		}
		v := m.Value
		series[m.Datapoint.Series] = seriesPayload{Value: &v, Unit: m.Unit}
	}
	return json.Marshal(p)
}
