package datastore

import (
	"github.com/tphakala/seisnet-go/internal/detection"
	"github.com/tphakala/seisnet-go/internal/subspace"
)

func basisToRecord(b *subspace.Basis) BasisRecord {
	return BasisRecord{
		SourceID:       b.ClusterID,
		Station:        b.Station,
		Kind:           string(detection.KindSubspace),
		Members:        b.Members,
		Excluded:       b.Excluded,
		Vectors:        b.Vectors,
		SingularValues: b.SingularValues,
		Rank:           b.Rank,
		SampleRate:     b.SampleRate,
		Normalized:     b.Normalized,
		ReferencePeak:  b.ReferencePeak,
		PickOffset:     b.PickOffset,
		Threshold:      b.Calibration.Threshold,
		Calibration:    b.Calibration,
	}
}

func singletonToRecord(s *subspace.Singleton) BasisRecord {
	return BasisRecord{
		SourceID:      s.TemplateID,
		Station:       s.Station,
		Kind:          string(detection.KindSingleton),
		Members:       []string{s.TemplateID},
		Vectors:       [][]float64{s.Waveform},
		Rank:          1,
		SampleRate:    s.SampleRate,
		Normalized:    true,
		ReferencePeak: s.ReferencePeak,
		PickOffset:    s.PickOffset,
		Threshold:     s.Calibration.Threshold,
		Calibration:   s.Calibration,
	}
}

func (r *BasisRecord) toBasis() *subspace.Basis {
	return &subspace.Basis{
		ClusterID:      r.SourceID,
		Station:        r.Station,
		Members:        r.Members,
		Excluded:       r.Excluded,
		Vectors:        r.Vectors,
		SingularValues: r.SingularValues,
		Rank:           r.Rank,
		Normalized:     r.Normalized,
		SampleRate:     r.SampleRate,
		ReferencePeak:  r.ReferencePeak,
		PickOffset:     r.PickOffset,
		Calibration:    r.Calibration,
	}
}

func (r *BasisRecord) toSingleton() *subspace.Singleton {
	var w []float64
	if len(r.Vectors) > 0 {
		w = r.Vectors[0]
	}
	return &subspace.Singleton{
		TemplateID:    r.SourceID,
		Station:       r.Station,
		Waveform:      w,
		SampleRate:    r.SampleRate,
		ReferencePeak: r.ReferencePeak,
		PickOffset:    r.PickOffset,
		Calibration:   r.Calibration,
	}
}

func detectionToRecord(runID string, d *detection.Detection) DetectionRecord {
	rec := DetectionRecord{
		RunID:        runID,
		DetectionID:  d.ID,
		Time:         d.Time,
		Stations:     d.Stations,
		StationCount: d.StationCount,
		Confidence:   d.Confidence,
		Verified:     d.Verified,
		Magnitude:    d.Magnitude,
		Triggers:     make([]TriggerRecord, len(d.Triggers)),
	}
	for i, t := range d.Triggers {
		rec.Triggers[i] = TriggerRecord{
			Station:   t.Station,
			SourceID:  t.SourceID,
			Kind:      string(t.Kind),
			Time:      t.Time,
			Statistic: t.Statistic,
			Magnitude: t.Magnitude,
		}
	}
	return rec
}

// ToDetection converts a record back to the domain type.
func (r *DetectionRecord) ToDetection() detection.Detection {
	d := detection.Detection{
		ID:           r.DetectionID,
		Time:         r.Time,
		Stations:     r.Stations,
		StationCount: r.StationCount,
		Confidence:   r.Confidence,
		Verified:     r.Verified,
		Magnitude:    r.Magnitude,
		Triggers:     make([]detection.Trigger, len(r.Triggers)),
	}
	for i, t := range r.Triggers {
		d.Triggers[i] = detection.Trigger{
			Station:   t.Station,
			SourceID:  t.SourceID,
			Kind:      detection.SourceKind(t.Kind),
			Time:      t.Time,
			Statistic: t.Statistic,
			Magnitude: t.Magnitude,
		}
	}
	detection.SortTriggers(d.Triggers)
	return d
}

func (r *RunRecord) stats() detection.Stats {
	return detection.Stats{
		Triggers:      r.Triggers,
		Groups:        r.Groups,
		Discarded:     r.Discarded,
		FalsePositive: r.FalsePositive,
		Verified:      r.Verified,
	}
}
