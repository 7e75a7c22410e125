// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package locifilter

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"

	"git.arvados.org/arvados.git/sdk/go/arvados"
	"github.com/raulk/go-watchdog"
	log "github.com/sirupsen/logrus"
)

// filtercmd trims and filters every locus in an array store, writes
// the canonical .loci file with its filter/edge arrays and stats, and
// then runs the requested output converters.
type filtercmd struct{}

func (cmd *filtercmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	pprof := flags.String("pprof", "", "serve Go profile data at http://`[addr]:port`")
	pprofdir := flags.String("pprof-dir", "", "write Go profile data to `directory` periodically")
	runlocal := flags.Bool("local", false, "run on local host (default: run in an arvados container)")
	projectUUID := flags.String("project", "", "project `UUID` for output data")
	priority := flags.Int("priority", 500, "container request priority")
	preemptible := flags.Bool("preemptible", true, "request preemptible instance")
	paramsFilename := flags.String("params", "", "dataset parameters `file` (TOML)")
	storeDir := flags.String("i", "", "input array store `directory`")
	outputDir := flags.String("o", "-", "output `directory`")
	threads := flags.Int("threads", 0, "number of chunks to filter concurrently (default GOMAXPROCS)")
	chunkSize := flags.Int("chunk-size", 0, "loci per chunk task (default: store chunk size)")
	memoryLimit := flags.Uint64("memory-limit", 0, "run GC more aggressively as heap approaches `bytes` (0 = no limit)")
	p := defaultParams()
	p.Flags(flags)
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	} else if flags.NArg() > 0 {
		err = fmt.Errorf("errant command line arguments after parsed flags: %v", flags.Args())
		return 2
	}
	p, err = loadParams(*paramsFilename, flags)
	if err != nil {
		return 2
	}
	if *storeDir == "" {
		err = errors.New("no input store specified (-i)")
		return 2
	}

	if *pprof != "" {
		go func() {
			log.Println(http.ListenAndServe(*pprof, nil))
		}()
	}
	if *pprofdir != "" {
		go writeProfilesPeriodically(*pprofdir)
	}

	if !*runlocal {
		if *outputDir != "-" {
			err = errors.New("cannot specify output directory in container mode: not implemented")
			return 1
		}
		runner := containerRunner{
			Name:        "locifilter filter",
			Client:      arvados.NewClientFromEnv(),
			ProjectUUID: *projectUUID,
			RAM:         64000000000,
			VCPUs:       16,
			Priority:    *priority,
			Preemptible: *preemptible,
		}
		err = runner.TranslatePaths(storeDir, paramsFilename)
		if err != nil {
			return 1
		}
		runner.Args = []string{"filter", "-local=true",
			"-i", *storeDir,
			"-o", containerOutput,
			"-threads", fmt.Sprintf("%d", runner.VCPUs),
			"-chunk-size", fmt.Sprintf("%d", *chunkSize),
			"-memory-limit", fmt.Sprintf("%d", runner.RAM*3/4),
		}
		if *paramsFilename != "" {
			runner.Args = append(runner.Args, "-params", *paramsFilename)
		}
		// Pass through parameters given on the command line.
		paramFlags := flag.NewFlagSet("", flag.ContinueOnError)
		(&Params{}).Flags(paramFlags)
		flags.Visit(func(f *flag.Flag) {
			if paramFlags.Lookup(f.Name) != nil {
				runner.Args = append(runner.Args, "-"+f.Name+"="+f.Value.String())
			}
		})
		var output string
		output, err = runner.RunContext(context.Background())
		if err != nil {
			return 1
		}
		fmt.Fprintln(stdout, output+"/"+p.Name+".loci")
		return 0
	}

	if *outputDir == "-" {
		*outputDir = "."
	}
	if *memoryLimit > 0 {
		var stopWatchdog func()
		err, stopWatchdog = watchdog.HeapDriven(*memoryLimit, 40, watchdog.NewAdaptivePolicy(0.5))
		if err != nil {
			return 1
		}
		defer stopWatchdog()
	}
	err = runFilter(context.Background(), &p, *storeDir, *outputDir, *threads, *chunkSize)
	if err != nil {
		return 1
	}
	fmt.Fprintln(stdout, filepath.Join(*outputDir, p.Name+".loci"))
	return 0
}

// runFilter is the whole local filter step: filter and merge, write
// the per-locus arrays and stats, then run the converters.
func runFilter(ctx context.Context, p *Params, storeDir, outdir string, threads, chunkSize int) error {
	store, err := openStore(storeDir)
	if err != nil {
		return err
	}
	pl := &planner{
		store:     store,
		params:    p,
		threads:   threads,
		chunkSize: chunkSize,
		outdir:    outdir,
	}
	run, err := pl.run(ctx)
	if err != nil {
		return err
	}
	err = run.writeArrays(outdir)
	if err != nil {
		return err
	}
	err = run.writeStats(outdir, p.Name)
	if err != nil {
		return err
	}
	log.Printf("wrote %s", run.Loci)
	return dispatchOutputs(p, run.Names, run.Loci, outdir)
}

// convertcmd runs the output converters against an existing canonical
// .loci file.
type convertcmd struct{}

func (cmd *convertcmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	paramsFilename := flags.String("params", "", "dataset parameters `file` (TOML)")
	lociFilename := flags.String("i", "", "canonical .loci `file` (default: <name>.loci in output directory)")
	outputDir := flags.String("o", ".", "output `directory`")
	p := defaultParams()
	p.Flags(flags)
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	}
	p, err = loadParams(*paramsFilename, flags)
	if err != nil {
		return 2
	}
	if *lociFilename == "" {
		*lociFilename = filepath.Join(*outputDir, p.Name+".loci")
	}
	names, err := lociSampleNames(*lociFilename)
	if err != nil {
		return 1
	}
	err = os.MkdirAll(*outputDir, 0777)
	if err != nil {
		return 1
	}
	err = dispatchOutputs(&p, names, *lociFilename, *outputDir)
	if err != nil {
		return 1
	}
	return 0
}

// lociSampleNames returns the sample names found in a .loci file, in
// order of first appearance.
func lociSampleNames(fnm string) ([]string, error) {
	f, err := zopen(fnm)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	seen := map[string]bool{}
	var names []string
	err = readLoci(f, func(loc *locus) error {
		for _, name := range loc.Names {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fnm, err)
	}
	return names, nil
}
