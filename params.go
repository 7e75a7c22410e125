// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package locifilter

import (
	"errors"
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Edge trimming modes, one per edge of each read side.
const (
	trimNone     = 0 // keep everything, including the restriction overhang
	trimOverhang = 1 // trim the restriction overhang only
	trimMin4     = 2 // trim until >= 4 samples have data
	trimMinSamp  = 3 // trim until >= min_samples_locus samples have data
	trimAll      = 4 // trim until all samples have data
)

var datatypes = map[string]bool{
	"rad":       false,
	"ddrad":     false,
	"gbs":       false,
	"2brad":     false,
	"pairddrad": true,
	"pairgbs":   true,
	"pair3rad":  true,
}

// Params is the dataset configuration for one run. It is read from a
// TOML file and may be overridden by command line flags; it is not
// modified after validation.
type Params struct {
	Name                string     `toml:"assembly_name"`
	Datatype            string     `toml:"datatype"`
	RestrictionOverhang stringPair `toml:"restriction_overhang"`
	MinSamplesLocus     int        `toml:"min_samples_locus"`
	MaxSharedHs         floatPair  `toml:"max_shared_Hs_locus"`
	MaxSNPsLocus        intPair    `toml:"max_SNPs_locus"`
	EdgeTrimming        [4]int     `toml:"edge_trimming"`
	Excludes            []string   `toml:"excludes"`
	Outgroups           []string   `toml:"outgroups"`
	OutputFormats       []string   `toml:"output_formats"`
}

func defaultParams() Params {
	return Params{
		Name:            "assembly",
		Datatype:        "rad",
		MinSamplesLocus: 4,
		MaxSharedHs:     floatPair{0.5, 0.5},
		MaxSNPsLocus:    intPair{20, 20},
		OutputFormats:   []string{"*"},
	}
}

// Paired reports whether the datatype is paired-end.
func (p *Params) Paired() bool {
	return datatypes[p.Datatype]
}

// Flags registers command line overrides for p.
func (p *Params) Flags(flags *flag.FlagSet) {
	flags.StringVar(&p.Name, "name", p.Name, "assembly `name` (output file prefix)")
	flags.StringVar(&p.Datatype, "datatype", p.Datatype, "data `type` (rad, ddrad, gbs, 2brad, pairddrad, pairgbs, pair3rad)")
	flags.IntVar(&p.MinSamplesLocus, "min-samples-locus", p.MinSamplesLocus, "drop loci with data for fewer than `N` samples")
	flags.Var(&p.RestrictionOverhang, "restriction-overhang", "restriction overhang `seq1,seq2`")
	flags.Var(&p.MaxSharedHs, "max-shared-hs", "drop loci with a site shared heterozygous by more than `N1,N2` samples (values < 1 are proportions)")
	flags.Var(&p.MaxSNPsLocus, "max-snps", "drop loci with more than `N1,N2` variable sites per read side")
	flags.Var((*edgeTuple)(&p.EdgeTrimming), "edge-trimming", "edge trimming modes `r1left,r1right,r2left,r2right` (0-4 each)")
	flags.Var((*nameList)(&p.Excludes), "excludes", "comma-separated sample `names` to exclude")
	flags.Var((*nameList)(&p.Outgroups), "outgroups", "comma-separated outgroup sample `names` (excluded from output)")
	flags.Var((*nameList)(&p.OutputFormats), "output-formats", "comma-separated output `formats`, or * for all")
}

// loadParams returns the default configuration, updated from the
// TOML file fnm (if not empty) and then from any flags that were set
// explicitly on the given (already parsed) flagset.
func loadParams(fnm string, parsed *flag.FlagSet) (Params, error) {
	p := defaultParams()
	if fnm != "" {
		md, err := toml.DecodeFile(fnm, &p)
		if err != nil {
			return p, fmt.Errorf("%s: %w", fnm, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return p, fmt.Errorf("%s: unknown parameter %q", fnm, undecoded[0].String())
		}
	}
	if parsed != nil {
		replay := flag.NewFlagSet("", flag.ContinueOnError)
		p.Flags(replay)
		var err error
		parsed.Visit(func(f *flag.Flag) {
			if err == nil && replay.Lookup(f.Name) != nil {
				err = replay.Set(f.Name, f.Value.String())
			}
		})
		if err != nil {
			return p, err
		}
	}
	return p, p.Validate()
}

// Validate returns an error describing the first invalid parameter,
// if any.
func (p *Params) Validate() error {
	if p.Name == "" {
		return errors.New("assembly_name must not be empty")
	}
	if _, ok := datatypes[p.Datatype]; !ok {
		return fmt.Errorf("datatype %q not recognized", p.Datatype)
	}
	if p.MinSamplesLocus < 1 {
		return fmt.Errorf("min_samples_locus must be >= 1, got %d", p.MinSamplesLocus)
	}
	for i, v := range p.MaxSharedHs {
		if v < 0 {
			return fmt.Errorf("max_shared_Hs_locus[%d] must be >= 0, got %v", i, v)
		}
	}
	for i, v := range p.MaxSNPsLocus {
		if v < 0 {
			return fmt.Errorf("max_SNPs_locus[%d] must be >= 0, got %d", i, v)
		}
	}
	for i, v := range p.EdgeTrimming {
		if v < trimNone || v > trimAll {
			return fmt.Errorf("edge_trimming[%d] must be in 0..4, got %d", i, v)
		}
	}
	for i, seq := range p.RestrictionOverhang {
		for _, b := range []byte(seq) {
			if !strings.ContainsRune("ACGTRYSWKMNacgtryswkmn", rune(b)) {
				return fmt.Errorf("restriction_overhang[%d]: invalid base %q", i, b)
			}
		}
	}
	if len(p.OutputFormats) == 0 {
		return errors.New("output_formats must not be empty (use \"*\" for all formats)")
	}
	for _, format := range p.OutputFormats {
		if format == "*" {
			continue
		}
		if _, ok := converters[format]; !ok {
			return fmt.Errorf("output format %q not supported (supported: %s)", format, strings.Join(outputFormats, ", "))
		}
	}
	return nil
}

// excluded returns the set of sample names to drop from the output.
func (p *Params) excluded() map[string]bool {
	ex := make(map[string]bool, len(p.Excludes)+len(p.Outgroups))
	for _, name := range p.Excludes {
		ex[name] = true
	}
	for _, name := range p.Outgroups {
		ex[name] = true
	}
	return ex
}

// maxSharedHs returns the shared heterozygosity threshold for the
// given read side as a sample count. Thresholds below 1 are
// proportions of nsamples.
func (p *Params) maxSharedHs(side, nsamples int) float64 {
	v := p.MaxSharedHs[side]
	if v > 0 && v < 1 {
		return v * float64(nsamples)
	}
	return v
}

// tomlPair returns the elements of a per-read-side TOML value, which
// may be written as a scalar or as an array of one or two elements.
func tomlPair(data interface{}) ([]interface{}, error) {
	vals, ok := data.([]interface{})
	if !ok {
		return []interface{}{data}, nil
	}
	if len(vals) < 1 || len(vals) > 2 {
		return nil, fmt.Errorf("expected 1 or 2 values, got %d", len(vals))
	}
	return vals, nil
}

// stringPair holds one value per read side. A single value applies
// to read 1 only.
type stringPair [2]string

func (sp *stringPair) UnmarshalTOML(data interface{}) error {
	vals, err := tomlPair(data)
	if err != nil {
		return err
	}
	*sp = stringPair{}
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("expected a string, got %T", v)
		}
		sp[i] = s
	}
	return nil
}

func (sp *stringPair) String() string { return strings.Join(sp[:], ",") }

func (sp *stringPair) Set(s string) error {
	fields := strings.Split(s, ",")
	if len(fields) > 2 {
		return fmt.Errorf("expected at most 2 comma-separated values, got %q", s)
	}
	*sp = stringPair{}
	for i, f := range fields {
		sp[i] = strings.TrimSpace(f)
	}
	return nil
}

// floatPair holds one threshold per read side. A single value
// applies to both sides; integers are accepted.
type floatPair [2]float64

func (fp *floatPair) UnmarshalTOML(data interface{}) error {
	vals, err := tomlPair(data)
	if err != nil {
		return err
	}
	for i, v := range vals {
		switch v := v.(type) {
		case int64:
			fp[i] = float64(v)
		case float64:
			fp[i] = v
		default:
			return fmt.Errorf("expected a number, got %T", v)
		}
	}
	if len(vals) == 1 {
		fp[1] = fp[0]
	}
	return nil
}

func (fp *floatPair) String() string {
	return strconv.FormatFloat(fp[0], 'g', -1, 64) + "," + strconv.FormatFloat(fp[1], 'g', -1, 64)
}

func (fp *floatPair) Set(s string) error {
	fields := strings.Split(s, ",")
	if len(fields) > 2 {
		return fmt.Errorf("expected 1 or 2 comma-separated numbers, got %q", s)
	}
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return err
		}
		fp[i] = v
	}
	if len(fields) == 1 {
		fp[1] = fp[0]
	}
	return nil
}

// intPair holds one limit per read side. A single value applies to
// both sides.
type intPair [2]int

func (ip *intPair) UnmarshalTOML(data interface{}) error {
	vals, err := tomlPair(data)
	if err != nil {
		return err
	}
	for i, v := range vals {
		n, ok := v.(int64)
		if !ok {
			return fmt.Errorf("expected an integer, got %T", v)
		}
		ip[i] = int(n)
	}
	if len(vals) == 1 {
		ip[1] = ip[0]
	}
	return nil
}

func (ip *intPair) String() string { return fmt.Sprintf("%d,%d", ip[0], ip[1]) }

func (ip *intPair) Set(s string) error {
	fields := strings.Split(s, ",")
	if len(fields) > 2 {
		return fmt.Errorf("expected 1 or 2 comma-separated integers, got %q", s)
	}
	for i, f := range fields {
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return err
		}
		ip[i] = v
	}
	if len(fields) == 1 {
		ip[1] = ip[0]
	}
	return nil
}

type edgeTuple [4]int

func (et *edgeTuple) String() string { return fmt.Sprintf("%d,%d,%d,%d", et[0], et[1], et[2], et[3]) }

func (et *edgeTuple) Set(s string) error {
	fields := strings.Split(s, ",")
	if len(fields) != 4 {
		return fmt.Errorf("expected 4 comma-separated integers, got %q", s)
	}
	for i, f := range fields {
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return err
		}
		et[i] = v
	}
	return nil
}

type nameList []string

func (nl *nameList) String() string { return strings.Join(*nl, ",") }

func (nl *nameList) Set(s string) error {
	*nl = nil
	for _, name := range strings.Split(s, ",") {
		if name = strings.TrimSpace(name); name != "" {
			*nl = append(*nl, name)
		}
	}
	return nil
}
