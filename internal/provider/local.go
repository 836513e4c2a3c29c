package provider

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/tphakala/seisnet-go/internal/errors"
	"github.com/tphakala/seisnet-go/internal/logger"
	"github.com/tphakala/seisnet-go/internal/waveform"
)

// LocalDirectory serves waveforms from segment files laid out as
// <root>/<station>.<channel>/<YYYYMMDDTHHMMSSZ>.wav|flac. Segments of one
// channel are assumed not to overlap.
type LocalDirectory struct {
	root  string
	cache *cache.Cache // decoded segments by path, nil when disabled
	log   logger.Logger
}

type segment struct {
	path  string
	start time.Time
}

type decoded struct {
	samples []float64
	rate    float64
}

// NewLocalDirectory returns a provider reading below root. Decoded files are
// kept for cacheTTL; zero disables caching.
func NewLocalDirectory(root string, cacheTTL time.Duration, log logger.Logger) (*LocalDirectory, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.New(err).
			Component(componentName).
			Category(errors.CategoryConfiguration).
			Context("root", root).
			Build()
	}
	if !info.IsDir() {
		return nil, errors.NewConfigError(componentName, "waveform root %s is not a directory", root)
	}

	l := &LocalDirectory{root: root, log: logger.OrDiscard(log).Module(componentName)}
	if cacheTTL > 0 {
		l.cache = cache.New(cacheTTL, 2*cacheTTL)
	}
	return l, nil
}

// Fetch stitches the segments covering [start, end) into one waveform.
// Samples no segment covers are NaN.
func (l *LocalDirectory) Fetch(ctx context.Context, station, channel string, start, end time.Time) (*waveform.Waveform, error) {
	if !end.After(start) {
		return nil, errors.NewDataError(componentName, "empty time span %s - %s", start, end)
	}

	dir := filepath.Join(l.root, station+"."+channel)
	segments, err := listSegments(dir)
	if err != nil {
		return nil, err
	}

	// the last segment starting at or before start may still cover it
	first, found := slices.BinarySearchFunc(segments, start, func(s segment, t time.Time) int {
		return s.start.Compare(t)
	})
	if !found && first > 0 {
		first--
	}

	var out *waveform.Waveform
	for _, seg := range segments[first:] {
		if !seg.start.Before(end) {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, errors.New(err).Component(componentName).Build()
		}

		data, err := l.load(seg.path)
		if err != nil {
			return nil, err
		}

		if out == nil {
			n := waveform.Samples(end.Sub(start), data.rate)
			out = &waveform.Waveform{
				Station:    station,
				Channel:    channel,
				Start:      start,
				SampleRate: data.rate,
				Samples:    make([]float64, n),
			}
			for i := range out.Samples {
				out.Samples[i] = math.NaN()
			}
		} else if data.rate != out.SampleRate {
			return nil, errors.Newf("segment %s has sample rate %v, expected %v", seg.path, data.rate, out.SampleRate).
				Component(componentName).
				Category(errors.CategoryData).
				Build()
		}

		offset := int(math.Round(seg.start.Sub(start).Seconds() * data.rate))
		for i, v := range data.samples {
			if j := offset + i; j >= 0 && j < len(out.Samples) {
				out.Samples[j] = v
			}
		}
	}

	if out == nil {
		return nil, errors.Newf("no data for %s.%s between %s and %s", station, channel,
			start.Format(time.RFC3339), end.Format(time.RFC3339)).
			Component(componentName).
			Category(errors.CategoryNotFound).
			Build()
	}

	if gaps := waveform.GapFraction(out.Samples); gaps > 0 {
		l.log.Debug("fetched waveform has gaps",
			logger.String("station", station),
			logger.String("channel", channel),
			logger.Float64("gap_fraction", gaps))
	}
	return out, nil
}

// listSegments returns the segment files in dir ordered by start time.
func listSegments(dir string) ([]segment, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		category := errors.CategoryFileIO
		if os.IsNotExist(err) {
			category = errors.CategoryNotFound
		}
		return nil, errors.New(err).Component(componentName).Category(category).Context("dir", dir).Build()
	}

	var segments []segment
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".wav" && ext != ".flac" {
			continue
		}
		start, err := time.Parse(segmentTimeLayout, strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))
		if err != nil {
			continue
		}
		segments = append(segments, segment{path: filepath.Join(dir, e.Name()), start: start})
	}

	slices.SortFunc(segments, func(a, b segment) int { return a.start.Compare(b.start) })
	return segments, nil
}

func (l *LocalDirectory) load(path string) (*decoded, error) {
	if l.cache != nil {
		if cached, ok := l.cache.Get(path); ok {
			if d, ok := cached.(*decoded); ok {
				return d, nil
			}
		}
	}

	file, err := os.Open(path) //nolint:gosec // G304: path comes from listing the configured root
	if err != nil {
		return nil, errors.FileError(err, path, 0)
	}
	defer file.Close()

	var samples []float64
	var rate float64
	if strings.EqualFold(filepath.Ext(path), ".flac") {
		samples, rate, err = decodeFLAC(file)
	} else {
		samples, rate, err = decodeWAV(file)
	}
	if err != nil {
		return nil, err
	}
	if rate <= 0 {
		return nil, errors.NewDataError(componentName, "segment %s has no sample rate", path)
	}

	d := &decoded{samples: samples, rate: rate}
	if l.cache != nil {
		l.cache.SetDefault(path, d)
	}
	return d, nil
}

// WriteSegment writes w as a WAV segment below root using the layout read by
// LocalDirectory. The sample rate is rounded to whole Hz.
func WriteSegment(root string, w *waveform.Waveform) (string, error) {
	dir := filepath.Join(root, w.Station+"."+w.Channel)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.FileError(err, dir, 0)
	}

	path := filepath.Join(dir, SegmentName(w.Start, ".wav"))
	file, err := os.Create(path) //nolint:gosec // G304: path is built from the root and station
	if err != nil {
		return "", errors.FileError(err, path, 0)
	}
	defer file.Close()

	if err := WriteWAV(file, w.Samples, int(math.Round(w.SampleRate))); err != nil {
		return "", err
	}
	return path, nil
}
