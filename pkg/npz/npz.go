// Package npz implements the .npz archive codec used by the Artifact Layout
// Writer: one .npy-encoded named series per counter, bundled
// into a zip container, exactly as NumPy's own np.savez defines the .npz
// format. The .npy encode/decode itself is delegated to the sbinet/npyio
// ecosystem library (no in-pack .npy writer was found); the zip framing is
// stdlib archive/zip because that framing *is* the file format, not a
// library choice.
package npz

import (
	"archive/zip"
	"fmt"
	"io"
	"sort"

	"github.com/sbinet/npyio"

	"github.com/spyroot/benchctl/pkg/api"
)

// RequiredTXSeries and RequiredRXSeries are the required named series per
// side; a Pair missing any of these suppresses its archive.
var (
	RequiredTXSeries = []string{"pkts_tx", "port_opackets", "port_obytes"}
	RequiredRXSeries = []string{"rx_pps", "rx_packets", "rx_bytes"}
)

// Validate checks that every series in required is present in series, has
// length >= 1, and that lengths agree across required series.
func Validate(series []api.SampleSeries, required []string) error {
	byName := make(map[string]api.SampleSeries, len(series))
	for _, s := range series {
		byName[s.Name] = s
	}

	length := -1
	for _, name := range required {
		s, ok := byName[name]
		if !ok {
			return fmt.Errorf("%w: missing series %q", api.ErrMissingSeries, name)
		}
		if len(s.Values) == 0 {
			return fmt.Errorf("%w: series %q is empty", api.ErrMissingSeries, name)
		}
		if length == -1 {
			length = len(s.Values)
		} else if len(s.Values) != length {
			return fmt.Errorf("series %q has length %d, expected %d", name, len(s.Values), length)
		}
	}
	return nil
}

// Pad zero-pads every series in the set to the length of the longest one,
// normalizing them to equal length by zero-padding shorter series at the
// tail.
func Pad(series []api.SampleSeries) []api.SampleSeries {
	max := 0
	for _, s := range series {
		if len(s.Values) > max {
			max = len(s.Values)
		}
	}
	out := make([]api.SampleSeries, len(series))
	for i, s := range series {
		if len(s.Values) == max {
			out[i] = s
			continue
		}
		padded := make([]int64, max)
		copy(padded, s.Values)
		out[i] = api.SampleSeries{Name: s.Name, Family: s.Family, Values: padded}
	}
	return out
}

// Write encodes series as a .npz archive: one .npy entry per series, named
// "<series>.npy", bundled into a zip container written to w. Series are
// written in sorted-name order for deterministic archives.
func Write(w io.Writer, series []api.SampleSeries) error {
	sorted := append([]api.SampleSeries{}, series...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	zw := zip.NewWriter(w)
	for _, s := range sorted {
		entry, err := zw.Create(s.Name + ".npy")
		if err != nil {
			return fmt.Errorf("failed to create npz entry %s: %w", s.Name, err)
		}
		if err := npyio.Write(entry, s.Values); err != nil {
			return fmt.Errorf("failed to encode series %s: %w", s.Name, err)
		}
	}
	return zw.Close()
}

// Read decodes a .npz archive back into its named series, inferring Family
// from the series names used by the rest of the module (rate/packet/port).
func Read(r io.ReaderAt, size int64) ([]api.SampleSeries, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to open npz archive: %w", err)
	}

	var out []api.SampleSeries
	for _, f := range zr.File {
		name := f.Name
		if len(name) > 4 && name[len(name)-4:] == ".npy" {
			name = name[:len(name)-4]
		}

		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open npz entry %s: %w", f.Name, err)
		}

		var values []int64
		if err := npyio.Read(rc, &values); err != nil {
			rc.Close()
			return nil, fmt.Errorf("failed to decode npy entry %s: %w", f.Name, err)
		}
		rc.Close()

		out = append(out, api.SampleSeries{Name: name, Family: familyFor(name), Values: values})
	}
	return out, nil
}

func familyFor(name string) api.SeriesFamily {
	switch name {
	case "pkts_tx", "rx_pps":
		return api.FamilyRateCounter
	case "rx_packets", "rx_bytes":
		return api.FamilyPacketCounter
	default:
		return api.FamilyPortCounter
	}
}
