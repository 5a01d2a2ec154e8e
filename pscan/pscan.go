package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime/pprof"
	"sort"
	"syscall"

	"github.com/RafaelMarinheiro/patternscan"
	"github.com/mgutz/ansi"
	"github.com/pborman/getopt"
	"golang.org/x/sync/errgroup"
)

var (
	highlightCode = ansi.ColorCode("green+hu:black")
	resetCode     = ansi.ColorCode("reset")
)

const (
	defaultContext = 8
	stdinPath      = "-"
)

type config struct {
	window  int
	jobs    int
	context int
	first   bool
	verbose bool
}

var cpuprofile string
var memprofile string

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	os.Exit(run())
}

func run() int {
	var patternFile string
	var help bool
	var simpleoutput bool
	cfg := config{window: patternscan.DefaultWindowSize, jobs: 4, context: defaultContext}

	getopt.StringVarLong(&patternFile, "pattern", 'p', "Use line-break separated patterns from a file", "filepath")
	getopt.BoolVarLong(&cfg.first, "first", 'f', "Stop at the first match of each pattern in each file")
	getopt.IntVarLong(&cfg.window, "window", 'w', "Read window size in bytes", "bytes")
	getopt.IntVarLong(&cfg.jobs, "jobs", 'j', "Number of files scanned concurrently", "n")
	getopt.IntVarLong(&cfg.context, "context", 'c', "Bytes of context shown around a match", "bytes")
	getopt.StringVarLong(&cpuprofile, "cpuprofile", 0, "Write cpuprofile file", "path")
	getopt.StringVarLong(&memprofile, "memprofile", 0, "Write memprofile file", "path")
	getopt.BoolVarLong(&help, "help", 'h', "Shows this message")
	getopt.BoolVarLong(&cfg.verbose, "verbose", 'v', "Show log messages")
	getopt.BoolVarLong(&simpleoutput, "simple", 's', "Show simple output")
	getopt.SetProgram("pscan")
	getopt.SetParameters("pattern [file ...]")
	getopt.SetUsage(func() {
		getopt.PrintUsage(os.Stderr)
		fmt.Fprintf(os.Stderr, "pattern - hex bytes and ? wildcards, e.g. \"8d 11 ? ? 8f\" (only if -p was not used)\n")
		fmt.Fprint(os.Stderr, "file    - files or globs to scan, stdin when omitted\n")
	})
	getopt.Parse()

	if help {
		getopt.Usage()
		return 0
	}

	if cpuprofile != "" {
		f, err := os.Create(cpuprofile)
		if err != nil {
			log.Fatal(err)
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	var patterns []string
	var files []string

	if patternFile == "" {
		if getopt.NArgs() < 1 {
			fmt.Fprintf(os.Stderr, "Pattern is missing!\n")
			getopt.Usage()
			return 2
		}
		patterns = getopt.Args()[:1]
		files = getopt.Args()[1:]
	} else {
		var err error
		patterns, err = readLinesFromFile(patternFile)
		if err != nil {
			log.Print(err)
			return 2
		}
		files = getopt.Args()
	}

	compiled, err := compilePatterns(patterns, cfg.window)
	if err != nil {
		log.Print(err)
		return 2
	}

	files = findFilesMatch(files)
	if len(files) == 0 {
		files = []string{stdinPath}
	}
	if cfg.jobs <= 0 {
		cfg.jobs = 1
	}

	if cfg.verbose {
		log.Printf("%v %v window=%d jobs=%d\n", compiled, files, cfg.window, cfg.jobs)
	}

	results, err := scanFiles(context.Background(), files, compiled, cfg)
	if err != nil {
		log.Print(err)
		return 2
	}

	out := bufio.NewWriter(os.Stdout)
	status := 1
	for _, res := range results {
		if res.err != nil {
			log.Printf("%s: %v", res.path, res.err)
			status = 2
			continue
		}
		if cfg.verbose {
			log.Printf("%s: %d bytes read, %d matches\n", res.path, res.bytesRead, len(res.matches))
		}
		if len(res.matches) > 0 && status == 1 {
			status = 0
		}

		if simpleoutput || res.path == stdinPath {
			err = printSimpleMatches(out, res, compiled)
		} else {
			err = printFileMatches(out, res, compiled, cfg.context)
		}
		if err != nil {
			if isBrokenPipe(err) {
				return status
			}
			log.Print(err)
			return 2
		}
	}
	if err := out.Flush(); err != nil && !isBrokenPipe(err) {
		log.Print(err)
		return 2
	}

	if memprofile != "" {
		f, err := os.Create(memprofile)
		if err != nil {
			log.Fatal(err)
		}
		pprof.WriteHeapProfile(f)
		f.Close()
	}
	return status
}

// compilePatterns parses every pattern and checks that it fits the window,
// before any file is opened.
func compilePatterns(patterns []string, window int) ([]*patternscan.Pattern, error) {
	compiled := make([]*patternscan.Pattern, 0, len(patterns))
	for _, s := range patterns {
		p, err := patternscan.Compile(s)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", s, err)
		}
		if _, err := patternscan.NewScanner(nil, p, patternscan.WithWindowSize(window)); err != nil {
			return nil, fmt.Errorf("pattern %q: %w", s, err)
		}
		compiled = append(compiled, p)
	}
	if len(compiled) == 0 {
		return nil, patternscan.ErrEmptyPattern
	}
	return compiled, nil
}

// findFilesMatch expands globs, dropping duplicates and keeping the order
// in which files were named. Names that match no file are kept so that
// opening them reports the error.
func findFilesMatch(filenamepattern []string) []string {
	fileset := make(map[string]bool)
	files := make([]string, 0, len(filenamepattern))
	for _, filepattern := range filenamepattern {
		filepaths, err := filepath.Glob(filepattern)
		if err != nil || len(filepaths) == 0 {
			filepaths = []string{filepattern}
		}

		for _, fp := range filepaths {
			if !fileset[fp] {
				fileset[fp] = true
				files = append(files, fp)
			}
		}
	}
	return files
}

type matchRecord struct {
	patternindex int
	offset       int64
}

type matchRecordList []matchRecord

// Len is part of sort.Interface.
func (mr matchRecordList) Len() int { return len(mr) }

// Swap is part of sort.Interface.
func (mr matchRecordList) Swap(i, j int) { mr[i], mr[j] = mr[j], mr[i] }

// Less is part of sort.Interface.
func (mr matchRecordList) Less(i, j int) bool { return mr[i].offset < mr[j].offset }

type fileResult struct {
	path      string
	matches   []matchRecord
	bytesRead int64
	err       error
}

// scanFiles scans files on cfg.jobs workers. Each worker keeps one Scanner
// per pattern and resets it for every file, so memory stays at
// jobs × patterns windows. Results come back in the order of files;
// per-file failures are reported in fileResult.err.
func scanFiles(ctx context.Context, files []string, patterns []*patternscan.Pattern, cfg config) ([]fileResult, error) {
	results := make([]fileResult, len(files))
	next := make(chan int)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(next)
		for i := range files {
			select {
			case next <- i:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	for w := 0; w < cfg.jobs; w++ {
		g.Go(func() error {
			scanners := make([]*patternscan.Scanner, len(patterns))
			for i := range next {
				results[i] = scanFile(files[i], patterns, scanners, cfg)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func scanFile(path string, patterns []*patternscan.Pattern, scanners []*patternscan.Scanner, cfg config) fileResult {
	res := fileResult{path: path}

	var src io.Reader
	var seeker io.Seeker
	if path == stdinPath {
		if len(patterns) > 1 {
			res.err = errors.New("several patterns need a seekable file, not stdin")
			return res
		}
		src = os.Stdin
	} else {
		file, err := os.Open(path)
		if err != nil {
			res.err = err
			return res
		}
		defer file.Close()
		src, seeker = file, file
	}

	matches := make(matchRecordList, 0, 2)
	for i, pattern := range patterns {
		if i > 0 {
			if _, err := seeker.Seek(0, io.SeekStart); err != nil {
				res.err = err
				return res
			}
		}
		reader := patternscan.NewCountingReader(src)
		if scanners[i] == nil {
			s, err := patternscan.NewScanner(reader, pattern, patternscan.WithWindowSize(cfg.window))
			if err != nil {
				res.err = err
				return res
			}
			scanners[i] = s
		} else {
			scanners[i].Reset(reader)
		}

		offsets, err := collect(scanners[i], cfg.first)
		res.bytesRead += reader.BytesRead()
		if err != nil {
			res.err = err
			return res
		}
		for _, off := range offsets {
			matches = append(matches, matchRecord{patternindex: i, offset: off})
		}
	}

	sort.Stable(matches)
	res.matches = matches
	return res
}

func collect(s *patternscan.Scanner, first bool) ([]int64, error) {
	if !first {
		return s.All()
	}
	off, found, err := s.First()
	if err != nil || !found {
		return nil, err
	}
	return []int64{off}, nil
}

func printSimpleMatches(w io.Writer, res fileResult, patterns []*patternscan.Pattern) error {
	for _, match := range res.matches {
		if _, err := fmt.Fprintf(w, "%v %v %d\n", res.path, patterns[match.patternindex], match.offset); err != nil {
			return err
		}
	}
	return nil
}

func printFileMatches(w io.Writer, res fileResult, patterns []*patternscan.Pattern, around int) error {
	if len(res.matches) == 0 {
		return nil
	}
	file, err := os.Open(res.path)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := printMatches(w, res.path, file, patterns, res.matches, around); err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, "###")
	return err
}

// printMatches writes one hex dump line per match: context bytes before and
// after the match, the matched bytes highlighted.
func printMatches(w io.Writer, title string, reader io.ReaderAt, patterns []*patternscan.Pattern, matches []matchRecord, around int) error {
	if around < 0 {
		around = 0
	}
	var buf []byte
	for _, match := range matches {
		plen := int64(patterns[match.patternindex].Len())
		start := match.offset - int64(around)
		if start < 0 {
			start = 0
		}
		end := match.offset + plen + int64(around)

		if need := int(end - start); cap(buf) < need {
			buf = make([]byte, need)
		}
		line := buf[:end-start]
		n, err := reader.ReadAt(line, start)
		if err != nil && err != io.EOF {
			return err
		}
		line = line[:n]

		hitStart := int(match.offset - start)
		if hitStart > len(line) {
			hitStart = len(line)
		}
		hitEnd := hitStart + int(plen)
		if hitEnd > len(line) {
			hitEnd = len(line)
		}

		if _, err := fmt.Fprintf(w, "(%v:0x%08x) - ", title, match.offset); err != nil {
			return err
		}
		writeHex(w, line[:hitStart], "", "")
		if hitStart > 0 {
			io.WriteString(w, " ")
		}
		writeHex(w, line[hitStart:hitEnd], highlightCode, resetCode)
		if hitEnd < len(line) {
			io.WriteString(w, " ")
		}
		writeHex(w, line[hitEnd:], "", "")
		if _, err := io.WriteString(w, "\n"); err != nil {
			return err
		}
	}
	return nil
}

func writeHex(w io.Writer, b []byte, prefix, suffix string) {
	if len(b) == 0 {
		return
	}
	io.WriteString(w, prefix)
	for i, c := range b {
		if i > 0 {
			io.WriteString(w, " ")
		}
		fmt.Fprintf(w, "%02x", c)
	}
	io.WriteString(w, suffix)
}

// isBrokenPipe reports whether a downstream consumer (like `head`) closed stdout early.
func isBrokenPipe(err error) bool {
	return err != nil && (errors.Is(err, syscall.EPIPE) || errors.Is(err, io.ErrClosedPipe))
}

func readLinesFromFile(filename string) ([]string, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	lines := make([]string, 0, 2)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			lines = append(lines, line)
		}
	}
	err = scanner.Err()
	return lines, err
}
