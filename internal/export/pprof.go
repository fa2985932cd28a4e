package export

import (
	"fmt"
	"io"

	"github.com/google/pprof/profile"

	"github.com/macprof-analysis/pkg/model"
)

// BuildProfile converts usable stacks into a pprof profile. Each distinct
// global address becomes one location; frames sharing a symbol share a
// function.
func BuildProfile(agg *model.AggregateResult, mainFile string) *profile.Profile {
	prof := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "samples", Unit: "count"}},
		PeriodType: &profile.ValueType{Type: "samples", Unit: "count"},
		Period:     1,
	}

	mapping := &profile.Mapping{
		ID:             1,
		File:           mainFile,
		HasFunctions:   true,
		HasFilenames:   true,
		HasLineNumbers: true,
	}
	prof.Mapping = []*profile.Mapping{mapping}

	locations := make(map[uint32]*profile.Location)
	functions := make(map[string]*profile.Function)

	function := func(info *model.AddrInfo) *profile.Function {
		file := ""
		if info.HasLocation() {
			file = info.Location.File
		}
		key := info.Symbol + "\x00" + file
		fn, ok := functions[key]
		if !ok {
			fn = &profile.Function{
				ID:         uint64(len(prof.Function)) + 1,
				Name:       info.Symbol,
				SystemName: info.Symbol,
				Filename:   file,
			}
			functions[key] = fn
			prof.Function = append(prof.Function, fn)
		}
		return fn
	}

	location := func(addr uint32, info *model.AddrInfo) *profile.Location {
		loc, ok := locations[addr]
		if ok {
			return loc
		}
		line := profile.Line{Function: function(info)}
		if info.HasLocation() {
			line.Line = int64(info.Location.Line)
		}
		loc = &profile.Location{
			ID:      uint64(len(prof.Location)) + 1,
			Mapping: mapping,
			Address: uint64(addr),
			Line:    []profile.Line{line},
		}
		locations[addr] = loc
		prof.Location = append(prof.Location, loc)
		return loc
	}

	for _, stack := range agg.Stacks {
		locs := make([]*profile.Location, 0, len(stack.Addrs))
		for i, addr := range stack.Addrs {
			locs = append(locs, location(addr, stack.Frames[i]))
		}
		prof.Sample = append(prof.Sample, &profile.Sample{
			Value:    []int64{1},
			Location: locs,
		})
	}

	return prof.Compact()
}

// WritePprof writes the profile gzip-compressed to w.
func WritePprof(agg *model.AggregateResult, mainFile string, w io.Writer) error {
	prof := BuildProfile(agg, mainFile)
	if err := prof.CheckValid(); err != nil {
		return fmt.Errorf("invalid profile: %w", err)
	}
	return prof.Write(w)
}

// WritePprofFile writes the profile to path.
func WritePprofFile(agg *model.AggregateResult, mainFile, path string) error {
	return createFile(path, func(w io.Writer) error { return WritePprof(agg, mainFile, w) })
}
