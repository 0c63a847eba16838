// gtest compiles every test program in-process, runs the resulting images on
// the VM and compares the outcome against golden .json files.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/xplshn/g65/pkg/codegen"
	"github.com/xplshn/g65/pkg/config"
	"github.com/xplshn/g65/pkg/driver"
	"github.com/xplshn/g65/pkg/util"
	"github.com/xplshn/g65/pkg/vm"
)

type Execution struct {
	Stdout   string        `json:"stdout"`
	Error    string        `json:"error,omitempty"`
	Steps    int           `json:"steps"`
	Duration time.Duration `json:"duration"`
	TimedOut bool          `json:"timed_out"`
}

type Compilation struct {
	Diagnostics []string      `json:"diagnostics,omitempty"`
	Errors      int           `json:"errors"`
	Duration    time.Duration `json:"duration"`
}

type ProgramRun struct {
	Index  int       `json:"index"`
	Image  string    `json:"image"`
	Result Execution `json:"result"`
}

type TargetResult struct {
	SourceHash string       `json:"source_hash"`
	Compile    Compilation  `json:"compile"`
	Runs       []ProgramRun `json:"runs"`
}

type FileTestResult struct {
	File    string        `json:"file"`
	Status  string        `json:"status"` // PASS, FAIL, SKIP, ERROR
	Message string        `json:"message,omitempty"`
	Diff    string        `json:"diff,omitempty"`
	Golden  *TargetResult `json:"golden,omitempty"`
	Target  *TargetResult `json:"target,omitempty"`
}

type TestSuiteResults map[string]*FileTestResult

var (
	generateGolden = flag.String("generate-golden", "", "Generate golden .json files for the given source files (space-separated globs).")
	testFiles      = flag.String("test-files", "tests/*.g65", "Glob pattern(s) for files to test (space-separated).")
	skipFiles      = flag.String("skip-files", "", "Files to skip (space-separated).")
	outputJSON     = flag.String("output", ".test_results.json", "Output file for the JSON test report.")
	timeout        = flag.Duration("timeout", 5*time.Second, "Timeout for each program execution.")
	maxSteps       = flag.Int("max-steps", config.DefaultMaxSteps, "Instruction limit for each program execution.")
	jobs           = flag.Int("j", 4, "Number of parallel test jobs.")
	runs           = flag.Int("runs", 3, "Number of times to run each program to find the minimum duration.")
	verbose        = flag.Bool("v", false, "Enable verbose logging.")
	jsonDir        = flag.String("dir", "", "Directory to store/read golden JSON files (defaults to source file dir).")
)

const (
	cRed     = "\x1b[91m"
	cYellow  = "\x1b[93m"
	cGreen   = "\x1b[92m"
	cCyan    = "\x1b[96m"
	cMagenta = "\x1b[95m"
	cBold    = "\x1b[1m"
	cNone    = "\x1b[0m"
)

// Durations vary between runs and the source hash only flags stale goldens.
var compareOpts = []cmp.Option{
	cmpopts.IgnoreFields(Execution{}, "Duration"),
	cmpopts.IgnoreFields(Compilation{}, "Duration"),
	cmpopts.IgnoreFields(TargetResult{}, "SourceHash"),
	cmpopts.EquateEmpty(),
}

func main() {
	flag.Parse()
	log.SetFlags(0)

	if *runs < 1 {
		*runs = 1
	}
	ctx := setupInterruptHandler()

	if *generateGolden != "" {
		files, err := expandGlobPatterns(*generateGolden)
		if err != nil {
			log.Fatalf("%s[ERROR]%s Invalid glob pattern(s): %v\n", cRed, cNone, err)
		}
		for _, f := range files {
			handleGenerateGolden(ctx, f)
		}
		return
	}

	handleRunTestSuite(ctx)
}

// setupInterruptHandler cancels running programs on CTRL+C
func setupInterruptHandler() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go func() {
		<-c
		fmt.Printf("\n%s[INTERRUPT]%s Test run cancelled.\n", cYellow, cNone)
		cancel()
		os.Exit(1)
	}()
	return ctx
}

func getJSONPath(sourceFile string) string {
	jsonFileName := "." + filepath.Base(sourceFile) + ".json"
	if *jsonDir != "" {
		return filepath.Join(*jsonDir, jsonFileName)
	}
	return filepath.Join(filepath.Dir(sourceFile), jsonFileName)
}

// hashFile computes the xxhash of a file's content
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum64()), nil
}

func handleGenerateGolden(ctx context.Context, sourceFile string) {
	log.Printf("Generating golden file for %s...\n", sourceFile)

	fileHash, err := hashFile(sourceFile)
	if err != nil {
		log.Fatalf("%s[ERROR]%s Could not hash source file %s: %v\n", cRed, cNone, sourceFile, err)
	}

	targetResult, err := compileAndRun(ctx, sourceFile, fileHash)
	if err != nil {
		log.Fatalf("%s[ERROR]%s Could not generate golden file for %s: %v\n", cRed, cNone, sourceFile, err)
	}

	jsonData, err := json.MarshalIndent(targetResult, "", "  ")
	if err != nil {
		log.Fatalf("%s[ERROR]%s Failed to marshal golden data to JSON: %v\n", cRed, cNone, err)
	}

	goldenFileName := getJSONPath(sourceFile)
	if *jsonDir != "" {
		if err := os.MkdirAll(*jsonDir, 0755); err != nil {
			log.Fatalf("%s[ERROR]%s Failed to create directory %s: %v\n", cRed, cNone, *jsonDir, err)
		}
	}

	if err := os.WriteFile(goldenFileName, jsonData, 0644); err != nil {
		log.Fatalf("%s[ERROR]%s Failed to write golden file %s: %v\n", cRed, cNone, goldenFileName, err)
	}

	log.Printf("%s[SUCCESS]%s Golden file created at %s\n", cGreen, cNone, goldenFileName)
}

func handleRunTestSuite(ctx context.Context) {
	files, err := expandGlobPatterns(*testFiles)
	if err != nil {
		log.Fatalf("%s[ERROR]%s Invalid glob pattern(s): %v\n", cRed, cNone, err)
	}
	if len(files) == 0 {
		log.Println("No test files found matching the pattern(s).")
		return
	}

	skipList := make(map[string]bool)
	for _, f := range strings.Fields(*skipFiles) {
		if abs, err := filepath.Abs(f); err == nil {
			skipList[abs] = true
		}
	}

	type task struct{ file, hash string }
	tasks := make(chan task, len(files))
	resultsChan := make(chan *FileTestResult, len(files))
	var wg sync.WaitGroup

	for i := 0; i < *jobs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range tasks {
				resultsChan <- testFile(ctx, t.file, t.hash)
			}
		}()
	}

	// Feed the tasks channel, skipping files with identical content
	seenHashes := make(map[string]string)
	for _, file := range files {
		if skipList[file] {
			resultsChan <- &FileTestResult{File: file, Status: "SKIP", Message: "Explicitly skipped"}
			continue
		}
		fileHash, err := hashFile(file)
		if err != nil {
			resultsChan <- &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Failed to read file for hashing: %v", err)}
			continue
		}
		if originalFile, seen := seenHashes[fileHash]; seen {
			resultsChan <- &FileTestResult{File: file, Status: "SKIP", Message: fmt.Sprintf("Content is identical to %s", originalFile)}
			continue
		}
		seenHashes[fileHash] = file
		tasks <- task{file, fileHash}
	}
	close(tasks)

	wg.Wait()
	close(resultsChan)

	var allResults []*FileTestResult
	for result := range resultsChan {
		allResults = append(allResults, result)
	}

	sort.Slice(allResults, func(i, j int) bool {
		return allResults[i].File < allResults[j].File
	})

	printSummary(allResults)
	resultsMap := writeJSONReport(allResults)

	if hasFailures(resultsMap) {
		os.Exit(1)
	}
}

func testFile(ctx context.Context, file, fileHash string) *FileTestResult {
	goldenFile := getJSONPath(file)
	goldenData, err := os.ReadFile(goldenFile)
	if errors.Is(err, os.ErrNotExist) {
		return &FileTestResult{File: file, Status: "SKIP", Message: "Cannot test without a corresponding .json golden file"}
	}
	if err != nil {
		return &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Failed to read golden file: %v", err)}
	}

	var golden TargetResult
	if err := json.Unmarshal(goldenData, &golden); err != nil {
		return &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Failed to parse golden file %s: %v", goldenFile, err)}
	}

	target, err := compileAndRun(ctx, file, fileHash)
	if err != nil {
		return &FileTestResult{File: file, Status: "ERROR", Message: err.Error(), Golden: &golden}
	}

	result := compareResults(file, &golden, target)
	if golden.SourceHash != "" && golden.SourceHash != fileHash {
		result.Message += " (golden file is older than the source)"
	}
	return result
}

func compareResults(file string, golden, target *TargetResult) *FileTestResult {
	if diff := cmp.Diff(golden, target, compareOpts...); diff != "" {
		return &FileTestResult{
			File:    file,
			Status:  "FAIL",
			Message: "Compilation or runtime output mismatch",
			Diff:    diff,
			Golden:  golden,
			Target:  target,
		}
	}
	return &FileTestResult{
		File:    file,
		Status:  "PASS",
		Message: fmt.Sprintf("%d program(s) matched", len(target.Runs)),
		Golden:  golden,
		Target:  target,
	}
}

// compileAndRun compiles sourceFile in-process and runs every program that
// compiled. Compilation errors are part of the result, not a failure.
func compileAndRun(ctx context.Context, sourceFile, fileHash string) (*TargetResult, error) {
	files, err := driver.ReadFiles([]string{sourceFile})
	if err != nil {
		return nil, err
	}

	cfg := config.NewConfig()
	cfg.MaxSteps = *maxSteps
	var stderr bytes.Buffer
	rep := util.NewReporter(cfg, &stderr)

	start := time.Now()
	results := driver.Compile(files, cfg, rep)
	compile := Compilation{Errors: rep.ErrorCount(), Duration: time.Since(start)}
	for _, d := range rep.Diagnostics() {
		if d.Level == util.LevelInfo {
			continue
		}
		compile.Diagnostics = append(compile.Diagnostics, fmt.Sprintf("program %d: %s", d.Tok.Program, d))
	}
	if *verbose && stderr.Len() > 0 {
		log.Printf("[%s] compiler output:\n%s", sourceFile, stderr.String())
	}

	target := &TargetResult{SourceHash: fileHash, Compile: compile}
	for _, r := range results {
		target.Runs = append(target.Runs, runProgram(ctx, r, cfg.MaxSteps))
	}
	return target, nil
}

// runProgram executes r several times and keeps the fastest run.
func runProgram(ctx context.Context, r *codegen.Result, steps int) ProgramRun {
	run := ProgramRun{Index: r.Index, Image: r.Image.Hex()}
	for i := 0; i < *runs; i++ {
		exec := executeImage(ctx, r, steps)
		if i == 0 || exec.Duration < run.Result.Duration {
			run.Result = exec
		}
	}
	return run
}

// executeImage runs one image with a timeout and captures its output
func executeImage(ctx context.Context, r *codegen.Result, steps int) Execution {
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	var stdout bytes.Buffer
	startTime := time.Now()
	cpu, err := vm.Run(ctx, r.Image, &stdout, vm.Options{MaxSteps: steps})
	execResult := Execution{Stdout: stdout.String(), Duration: time.Since(startTime)}
	if cpu != nil {
		execResult.Steps = cpu.Steps
	}
	if errors.Is(err, context.DeadlineExceeded) {
		execResult.TimedOut = true
	} else if err != nil {
		execResult.Error = err.Error()
	}
	return execResult
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%.2fms", float64(d)/float64(time.Millisecond))
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}

func printSummary(results []*FileTestResult) {
	var passed, failed, skipped, errored int
	var totalCompile, totalRuntime time.Duration
	var programs int

	for _, result := range results {
		fmt.Println("----------------------------------------------------------------------")
		fmt.Printf("Testing %s%s%s...\n", cCyan, result.File, cNone)

		switch result.Status {
		case "PASS":
			passed++
			fmt.Printf("  [%sPASS%s] %s\n", cGreen, cNone, result.Message)
		case "FAIL":
			failed++
			fmt.Printf("  [%sFAIL%s] %s\n", cRed, cNone, result.Message)
			fmt.Println(formatDiff(result.Diff))
		case "SKIP":
			skipped++
			fmt.Printf("  [%sSKIP%s] %s\n", cYellow, cNone, result.Message)
		case "ERROR":
			errored++
			fmt.Printf("  [%sERROR%s] %s\n", cRed, cNone, result.Message)
		}

		if result.Target == nil {
			continue
		}
		totalCompile += result.Target.Compile.Duration
		var fileRuntime time.Duration
		for _, run := range result.Target.Runs {
			fileRuntime += run.Result.Duration
			programs++
			if *verbose {
				fmt.Printf("    program %-3d %s%s%s in %d steps\n", run.Index, cMagenta, formatDuration(run.Result.Duration), cNone, run.Result.Steps)
			}
		}
		totalRuntime += fileRuntime
		fmt.Printf("  [comp: %s | runt: %s]\n", formatDuration(result.Target.Compile.Duration), formatDuration(fileRuntime))
	}

	fmt.Println("----------------------------------------------------------------------")
	fmt.Printf("%sTest Summary:%s %s%d Passed%s, %s%d Failed%s, %s%d Skipped%s, %s%d Errored%s, %d Total\n",
		cBold, cNone, cGreen, passed, cNone, cRed, failed, cNone, cYellow, skipped, cNone, cRed, errored, cNone, len(results))
	if programs > 0 {
		fmt.Println("---")
		fmt.Printf("Compiled in %s, ran %d program(s) in %s (%s on average).\n",
			formatDuration(totalCompile), programs, formatDuration(totalRuntime), formatDuration(totalRuntime/time.Duration(programs)))
	}
}

func formatDiff(diff string) string {
	if diff == "" {
		return ""
	}
	var builder strings.Builder
	builder.WriteString("    --- Diff ---\n")
	for _, line := range strings.Split(diff, "\n") {
		lineWithIndent := "    " + line
		trimmedLine := strings.TrimSpace(line)
		if strings.HasPrefix(trimmedLine, "-") {
			builder.WriteString(cRed)
		} else if strings.HasPrefix(trimmedLine, "+") {
			builder.WriteString(cGreen)
		}
		builder.WriteString(lineWithIndent)
		builder.WriteString(cNone)
		builder.WriteString("\n")
	}
	return builder.String()
}

func writeJSONReport(results []*FileTestResult) TestSuiteResults {
	resultsMap := make(TestSuiteResults, len(results))
	for _, r := range results {
		resultsMap[r.File] = r
	}

	jsonData, err := json.MarshalIndent(resultsMap, "", "  ")
	if err != nil {
		log.Printf("%s[ERROR]%s Failed to marshal results to JSON: %v\n", cRed, cNone, err)
		return resultsMap
	}

	outputFile := *outputJSON
	if *jsonDir != "" {
		if err := os.MkdirAll(*jsonDir, 0755); err != nil {
			log.Printf("%s[ERROR]%s Failed to create dir %s: %v\n", cRed, cNone, *jsonDir, err)
		}
		outputFile = filepath.Join(*jsonDir, *outputJSON)
	}

	if err := os.WriteFile(outputFile, jsonData, 0644); err != nil {
		log.Printf("%s[ERROR]%s Failed to write JSON report to %s: %v\n", cRed, cNone, outputFile, err)
	} else {
		fmt.Printf("Full test report saved to %s\n", outputFile)
	}
	return resultsMap
}

func hasFailures(results TestSuiteResults) bool {
	for _, result := range results {
		if result.Status == "FAIL" || result.Status == "ERROR" {
			return true
		}
	}
	return false
}

func expandGlobPatterns(patterns string) ([]string, error) {
	var allFiles []string
	seen := make(map[string]bool)
	for _, pattern := range strings.Fields(patterns) {
		files, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %s: %w", pattern, err)
		}
		for _, file := range files {
			absFile, err := filepath.Abs(file)
			if err != nil {
				continue // Skip files we can't resolve
			}
			if !seen[absFile] {
				if info, err := os.Stat(absFile); err == nil && info.Mode().IsRegular() {
					allFiles = append(allFiles, absFile)
					seen[absFile] = true
				}
			}
		}
	}
	return allFiles, nil
}
