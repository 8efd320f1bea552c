package results

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrShapeMismatch is returned when a statistics payload does not have
	// the nested data-collection shape.
	ErrShapeMismatch = errors.New("statistics payload shape mismatch")

	// ErrNoStatistic is returned when the payload parses but the requested
	// statistic is absent or empty.
	ErrNoStatistic = errors.New("statistic not present")
)

// DefaultStatistic is the data-collection entry read by default.
const DefaultStatistic = "Average"

// Data elements are pointers so a JSON null stays distinguishable from 0.
type series struct {
	Data []*float64 `json:"data"`
}

// statisticsDoc is the only accepted payload layout:
//
//	{"simple_data_collection":{"data_collection":{"<name>":{"data":[...]}}}}
type statisticsDoc struct {
	SimpleDataCollection *struct {
		DataCollection map[string]series `json:"data_collection"`
	} `json:"simple_data_collection"`
}

// ParseStatistics decodes a statistics payload into name -> values. Any
// structural deviation is reported as ErrShapeMismatch. Null data
// elements are kept as nil.
func ParseStatistics(raw string) (map[string][]*float64, error) {
	var doc statisticsDoc
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrShapeMismatch, err)
	}
	if doc.SimpleDataCollection == nil || doc.SimpleDataCollection.DataCollection == nil {
		return map[string][]*float64{}, nil
	}
	out := make(map[string][]*float64, len(doc.SimpleDataCollection.DataCollection))
	for k, v := range doc.SimpleDataCollection.DataCollection {
		out[k] = v.Data
	}
	return out, nil
}

// StatisticValue returns the first value of the named statistic.
func StatisticValue(raw, name string) (float64, error) {
	stats, err := ParseStatistics(raw)
	if err != nil {
		return 0, err
	}
	data, ok := stats[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrNoStatistic, name)
	}
	if len(data) == 0 {
		return 0, fmt.Errorf("%w: %q has no values", ErrNoStatistic, name)
	}
	if data[0] == nil {
		return 0, fmt.Errorf("%w: %q is null", ErrNoStatistic, name)
	}
	return *data[0], nil
}
