package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"csa/pkg/core"
	"csa/pkg/format"
	"csa/pkg/progress"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "create":
		err = handleCreate(os.Args[2:])
	case "append":
		err = handleAppend(os.Args[2:])
	case "list":
		err = handleList(os.Args[2:])
	case "extract":
		err = handleExtract(os.Args[2:])
	default:
		fmt.Println("Invalid operation:", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  csa create <dir> [-o output.csa] [-w workers]")
	fmt.Println("  csa append <archive.csa> <dir> [-w workers]")
	fmt.Println("  csa list <archive.csa>")
	fmt.Println("  csa extract <archive.csa> <path> [-o outfile]")
}

// defaultOutputName derives the archive name from the root's base
// name. The root is resolved first so "." and trailing separators name
// the directory itself, not a dot.
func defaultOutputName(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve output name: %w", err)
	}
	return filepath.Base(abs) + ".csa", nil
}

func sessionFlags(name string) (*pflag.FlagSet, *int, *string, *bool) {
	fs := pflag.NewFlagSet(name, pflag.ExitOnError)
	workers := fs.IntP("workers", "w", 0, "compression workers (0 = CPU count, min 4)")
	output := fs.StringP("output", "o", "", "output path")
	verbose := fs.BoolP("verbose", "v", false, "log per-file details to stderr")
	return fs, workers, output, verbose
}

// runSession waits for a session while rendering progress and relaying
// Ctrl-C as a cooperative stop request.
func runSession(s *core.Session) (*core.Summary, error) {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	go func() {
		if _, ok := <-interrupt; ok {
			fmt.Fprintln(os.Stderr, "stop requested, letting in-flight files finish")
			s.Stop()
		}
	}()

	summary, err := s.Wait()
	signal.Stop(interrupt)
	close(interrupt)
	return summary, err
}

func reportSummary(summary *core.Summary) {
	fmt.Printf("%s: %d entries (%d written", summary.Archive, summary.Entries, summary.Written)
	if summary.Stopped {
		fmt.Print(", stopped early")
	}
	fmt.Println(")")
	for _, f := range summary.Failed {
		fmt.Fprintf(os.Stderr, "failed: %s: %v\n", f.Path, f.Err)
	}
}

func handleCreate(args []string) error {
	fs, workers, output, verbose := sessionFlags("create")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		printUsage()
		os.Exit(1)
	}
	root := fs.Arg(0)
	out := *output
	if out == "" {
		name, err := defaultOutputName(root)
		if err != nil {
			return err
		}
		out = name
	}
	if *verbose {
		core.Logger.SetOutput(os.Stderr)
		core.Verbose = true
	}

	tracker := progress.New(os.Stdout)
	s, err := core.Create(root, out, core.Options{MaxWorkers: *workers, Events: tracker.Events()})
	if err != nil {
		tracker.Stop()
		return err
	}
	summary, err := runSession(s)
	tracker.Stop()
	if err != nil {
		return err
	}
	reportSummary(summary)
	return nil
}

func handleAppend(args []string) error {
	fs, workers, _, verbose := sessionFlags("append")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		printUsage()
		os.Exit(1)
	}
	if *verbose {
		core.Logger.SetOutput(os.Stderr)
		core.Verbose = true
	}

	tracker := progress.New(os.Stdout)
	s, err := core.Append(fs.Arg(0), fs.Arg(1), core.Options{MaxWorkers: *workers, Events: tracker.Events()})
	if err != nil {
		tracker.Stop()
		return err
	}
	summary, err := runSession(s)
	tracker.Stop()
	if err != nil {
		return err
	}
	reportSummary(summary)
	return nil
}

func handleList(args []string) error {
	fs := pflag.NewFlagSet("list", pflag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		printUsage()
		os.Exit(1)
	}

	tree, err := core.Browse(fs.Arg(0))
	if err != nil {
		return err
	}
	printNode(tree, 0)
	fmt.Printf("total: %d files, %s compressed / %s original (%.1f%%)\n",
		tree.Files, humanize.Bytes(tree.CompSize), humanize.Bytes(tree.OrigSize), tree.Ratio()*100)
	return nil
}

func printNode(n *format.Node, depth int) {
	if n.Path != "" {
		indent := strings.Repeat("  ", depth-1)
		if n.IsDir() {
			fmt.Printf("%s%s/ (%d files, %s)\n", indent, n.Name, n.Files, humanize.Bytes(n.CompSize))
		} else {
			fmt.Printf("%s%s  %s -> %s (%.1f%%, %s)\n", indent, n.Name,
				humanize.Bytes(n.OrigSize), humanize.Bytes(n.CompSize),
				n.Ratio()*100, n.Entry.Method)
		}
	}
	for _, child := range n.Children {
		printNode(child, depth+1)
	}
}

func handleExtract(args []string) error {
	fs := pflag.NewFlagSet("extract", pflag.ExitOnError)
	output := fs.StringP("output", "o", "", "output file (default: entry base name)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		printUsage()
		os.Exit(1)
	}
	archive, rel := fs.Arg(0), fs.Arg(1)

	data, err := core.ExtractOne(archive, rel)
	if err != nil {
		return err
	}
	out := *output
	if out == "" {
		parts := strings.Split(rel, "/")
		out = parts[len(parts)-1]
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	fmt.Printf("extracted %s (%s) to %s\n", rel, humanize.Bytes(uint64(len(data))), out)
	return nil
}
