package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/jenian/ngssc/internal/detector"
	"github.com/jenian/ngssc/internal/ngssc"
	"github.com/jenian/ngssc/internal/scanner"
	"github.com/jenian/ngssc/internal/tokenizer"
	"go.uber.org/zap"
)

// DefaultIndexFile is the HTML entry point of a build output
const DefaultIndexFile = "index.html"

var (
	// ErrMissingFileReplacement is returned when the environment file is replaced during
	// the build but no replacement targets it
	ErrMissingFileReplacement = errors.New("missing file replacement for environment file")
	// ErrCompilerStepFailure is returned when the wrapped command fails
	ErrCompilerStepFailure = errors.New("compiler step failed")
	// ErrInvalidOptions is returned for incomplete build options
	ErrInvalidOptions = errors.New("invalid build options")
)

// FileReplacement is a source file swapped for another during compilation
type FileReplacement struct {
	Replace string
	With    string
}

// Options configures a wrapped build
type Options struct {
	EnvironmentFile                string
	Command                        []string
	OutputPath                     string
	IndexFile                      string
	FilePattern                    string
	InsertInHead                   *bool
	RecursiveMatching              *bool
	Tokenize                       bool
	AdditionalEnvironmentVariables []string
	FileReplacements               []FileReplacement

	// Command environment and stdio, defaulting to the current process
	Env    []string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Result is the outcome of a wrapped build
type Result struct {
	Detection   *detector.Result
	Tokens      []tokenizer.Token
	Untokenized []string
	Descriptor  *ngssc.Descriptor
	Written     []string // ngssc.json files
}

// Builder wraps a compiler invocation with tokenization of the environment file
type Builder struct {
	detector    *detector.Detector
	tokenizer   *tokenizer.Tokenizer
	untokenizer *tokenizer.Untokenizer
	scanner     *scanner.Scanner
	logger      *zap.Logger
}

// New creates a builder. s selects the files below the output path.
func New(d *detector.Detector, s *scanner.Scanner, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if d == nil {
		d = detector.New(logger)
	}
	if s == nil {
		s = scanner.NewScanner()
	}
	return &Builder{
		detector:    d,
		tokenizer:   tokenizer.New(d, logger),
		untokenizer: tokenizer.NewUntokenizer(s, logger),
		scanner:     s,
		logger:      logger,
	}
}

func (o *Options) validate() error {
	if o.EnvironmentFile == "" {
		return fmt.Errorf("%w: environment file is required", ErrInvalidOptions)
	}
	if len(o.Command) == 0 {
		return fmt.Errorf("%w: build command is required", ErrInvalidOptions)
	}
	if o.OutputPath == "" {
		return fmt.Errorf("%w: output path is required", ErrInvalidOptions)
	}
	return nil
}

// Run detects the variables of the environment file, optionally tokenizes it, runs the
// build command and writes ngssc.json into the output. The environment file is always
// reverted, also when the command fails.
func (b *Builder) Run(ctx context.Context, opts Options) (result *Result, err error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	detection, err := b.detector.DetectFile(opts.EnvironmentFile)
	if err != nil {
		return nil, fmt.Errorf("failed to detect variables in %s: %w", opts.EnvironmentFile, err)
	}
	b.logger.Info("Detected variables",
		zap.String("file", opts.EnvironmentFile),
		zap.String("variant", detection.Variant.String()),
		zap.Strings("variables", detection.Names()))
	result = &Result{Detection: detection, Tokens: []tokenizer.Token{}}

	var session *tokenizer.Session
	if opts.Tokenize {
		if err := checkFileReplacements(opts.EnvironmentFile, opts.FileReplacements); err != nil {
			return nil, err
		}
		session, err = b.tokenizer.Tokenize(opts.EnvironmentFile)
		if err != nil {
			return nil, err
		}
		defer func() {
			if revertErr := session.Revert(); revertErr != nil {
				err = errors.Join(err, revertErr)
			}
		}()
		result.Tokens = session.Tokens
	}

	if err := b.runCommand(ctx, opts); err != nil {
		return nil, err
	}

	if session != nil {
		if err := session.Revert(); err != nil {
			return nil, err
		}
		if len(session.Tokens) > 0 {
			untokenized, err := b.untokenizer.UntokenizeDir(ctx, opts.OutputPath, session.Tokens)
			if err != nil {
				return nil, err
			}
			result.Untokenized = untokenized
		}
	}

	result.Descriptor = descriptorFor(detection, opts)
	result.Written, err = b.writeDescriptors(result.Descriptor, opts)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (b *Builder) runCommand(ctx context.Context, opts Options) error {
	cmd := exec.CommandContext(ctx, opts.Command[0], opts.Command[1:]...)
	cmd.Env = opts.Env
	cmd.Stdin = opts.Stdin
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr
	if cmd.Stdin == nil {
		cmd.Stdin = os.Stdin
	}
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	b.logger.Info("Running build command", zap.Strings("command", opts.Command))
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %s: %w", ErrCompilerStepFailure, strings.Join(opts.Command, " "), ctxErr)
		}
		return fmt.Errorf("%w: %s: %v", ErrCompilerStepFailure, strings.Join(opts.Command, " "), err)
	}
	return nil
}

// checkFileReplacements requires a replacement targeting file whenever the build declares
// replacements. Otherwise the tokenized file would not be the one compiled.
func checkFileReplacements(file string, replacements []FileReplacement) error {
	if len(replacements) == 0 {
		return nil
	}
	target := filepath.Clean(file)
	for _, replacement := range replacements {
		if filepath.Clean(replacement.With) == target {
			return nil
		}
	}
	return fmt.Errorf("%w: %s is not the target of any file replacement. Add it to .ngssc.config:\n\n"+
		"build:\n  fileReplacements:\n    - replace: %s\n      with: %s\n",
		ErrMissingFileReplacement, file, replacements[0].Replace, filepath.ToSlash(file))
}

func descriptorFor(detection *detector.Result, opts Options) *ngssc.Descriptor {
	pattern := opts.FilePattern
	if pattern == "" {
		pattern = filepath.Base(indexFile(opts))
	}
	return &ngssc.Descriptor{
		Variant:              detection.Variant,
		EnvironmentVariables: ngssc.MergeVariables(detection.Names(), opts.AdditionalEnvironmentVariables),
		FilePattern:          &pattern,
		InsertInHead:         opts.InsertInHead,
		RecursiveMatching:    opts.RecursiveMatching,
	}
}

func indexFile(opts Options) string {
	if opts.IndexFile == "" {
		return DefaultIndexFile
	}
	return opts.IndexFile
}

// writeDescriptors writes ngssc.json next to every index file in the output, so each
// locale of a localized build gets its own. Without index files it goes to the output root.
func (b *Builder) writeDescriptors(descriptor *ngssc.Descriptor, opts Options) ([]string, error) {
	if err := os.MkdirAll(opts.OutputPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output path %s: %w", opts.OutputPath, err)
	}
	indexes, err := b.scanner.Match(opts.OutputPath, "**/"+filepath.Base(indexFile(opts)))
	if err != nil {
		return nil, err
	}

	dirs := []string{opts.OutputPath}
	if len(indexes) > 0 {
		dirs = dirs[:0]
		seen := make(map[string]bool)
		for _, index := range indexes {
			dir := filepath.Dir(index)
			if !seen[dir] {
				seen[dir] = true
				dirs = append(dirs, dir)
			}
		}
	}

	written := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		path, err := descriptor.Write(dir)
		if err != nil {
			return nil, err
		}
		b.logger.Info("Wrote descriptor", zap.String("file", path))
		written = append(written, path)
	}
	return written, nil
}
