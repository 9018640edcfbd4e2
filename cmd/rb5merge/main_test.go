package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/couchcryptid/radar-merge-service/internal/adapter/bridge"
	"github.com/couchcryptid/radar-merge-service/internal/domain"
)

const fakeBridgeEnv = "RB5MERGE_FAKE_BRIDGE"

// TestMain lets the test binary stand in for the bridge executable when
// fakeBridgeEnv is set.
func TestMain(m *testing.M) {
	if os.Getenv(fakeBridgeEnv) == "1" && len(os.Args) == 3 {
		if err := fakeBridge(os.Args[1], os.Args[2], os.Stdin, os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}

// savedSummary is what the fake bridge writes in place of an ODIM_H5 file.
type savedSummary struct {
	Kind   string         `json:"kind"`
	Source string         `json:"source"`
	Date   string         `json:"date"`
	Time   string         `json:"time"`
	Sweeps []sweepSummary `json:"sweeps"`
}

type sweepSummary struct {
	Elevation  float64  `json:"elevation"`
	Quantities []string `json:"quantities"`
}

var fakeQuantities = map[string]string{"dBZ": "DBZH", "V": "VRADH", "W": "WRADH"}

func fakeBridge(command, arg string, stdin io.Reader, stdout io.Writer) error {
	in, err := io.ReadAll(stdin)
	if err != nil {
		return err
	}

	switch command {
	case "decode":
		meta, err := domain.ParseMemberName(arg, true)
		if err != nil {
			return err
		}
		name, ok := fakeQuantities[meta.QuantitySuffix]
		if !ok {
			name = strings.ToUpper(meta.QuantitySuffix)
		}
		date := meta.Timestamp.Format("20060102")
		clock := meta.Timestamp.Format("150405")

		var obj domain.Object
		if meta.ScanType == "vol" {
			v := &domain.Volume{Date: date, Time: clock, Source: "NOD:caxxx", Attributes: domain.Attributes{}}
			for _, e := range []float64{1.5, 0.5} {
				s, err := fakeSweep(date, clock, e, name)
				if err != nil {
					return err
				}
				v.AddScan(s)
			}
			obj = domain.VolumeObject(v)
		} else {
			s, err := fakeSweep(date, clock, elevationFromBody(in), name)
			if err != nil {
				return err
			}
			obj = domain.ScanObject(s)
		}
		data, err := bridge.EncodeObject(obj)
		if err != nil {
			return err
		}
		_, err = stdout.Write(data)
		return err

	case "save":
		obj, err := bridge.DecodeObject(in)
		if err != nil {
			return err
		}
		data, err := json.Marshal(summarize(obj))
		if err != nil {
			return err
		}
		return os.WriteFile(arg, data, 0o644)
	}
	return fmt.Errorf("unknown command %q", command)
}

func fakeSweep(date, clock string, elevation float64, quantity string) (*domain.Scan, error) {
	s := &domain.Scan{
		Date:       date,
		Time:       clock,
		Source:     "NOD:caxxx",
		Longitude:  -81.38,
		Latitude:   43.37,
		Height:     317,
		Beamwidth:  1,
		Elevation:  elevation,
		Attributes: domain.Attributes{domain.AttrWavelength: 5.3},
	}
	err := s.AddQuantity(&domain.Quantity{Name: quantity, Gain: 0.5, Nodata: 255, Rays: 360, Bins: 1, Data: []byte{1}})
	return s, err
}

// elevationFromBody reads an "elev=N" token from a fixture body.
func elevationFromBody(body []byte) float64 {
	_, rest, ok := bytes.Cut(body, []byte("elev="))
	if !ok {
		return 0.5
	}
	field, _, _ := strings.Cut(string(rest), " ")
	e, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
	if err != nil {
		return 0.5
	}
	return e
}

func summarize(obj domain.Object) savedSummary {
	var scans []*domain.Scan
	out := savedSummary{Kind: string(obj.Kind)}
	switch obj.Kind {
	case domain.KindScan:
		out.Source, out.Date, out.Time = obj.Scan.Source, obj.Scan.Date, obj.Scan.Time
		scans = []*domain.Scan{obj.Scan}
	case domain.KindVolume:
		out.Source, out.Date, out.Time = obj.Volume.Source, obj.Volume.Date, obj.Volume.Time
		scans = obj.Volume.Scans
	}
	for _, s := range scans {
		out.Sweeps = append(out.Sweeps, sweepSummary{Elevation: s.Elevation, Quantities: s.QuantityNames()})
	}
	return out
}

// execute runs the root command against the fake bridge and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv(fakeBridgeEnv, "1")
	t.Setenv("LOG_LEVEL", "error")

	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--bridge", os.Args[0]}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}
