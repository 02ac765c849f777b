package insert

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jenian/ngssc/internal/ngssc"
	"github.com/jenian/ngssc/internal/scanner"
	"go.uber.org/zap"
)

// DefaultConfigInHTMLPattern selects the HTML files read in config-in-html mode
const DefaultConfigInHTMLPattern = "**/index.html"

// Options controls an insertion run
type Options struct {
	DryRun       bool
	Recursive    bool   // insert for every ngssc.json below the directory
	ConfigInHTML bool   // read the descriptor from <!--CONFIG {...}--> inside each HTML file
	Pattern      string // HTML files for config-in-html mode
	BaseHref     string // replaces <base href> when set
	HTMLLang     string // replaces <html lang> when set
	Lookup       ngssc.Lookup
}

// Result describes one configured descriptor and the files it applies to
type Result struct {
	Source  string        `json:"source"`
	Variant ngssc.Variant `json:"variant"`
	Values  ngssc.Values  `json:"values"`
	Files   []string      `json:"files"`
	Ngsw    []string      `json:"ngsw,omitempty"`
}

// Inserter writes the rendered configuration into HTML files
type Inserter struct {
	scanner *scanner.Scanner
	logger  *zap.Logger
}

// New creates an inserter discovering files with s
func New(s *scanner.Scanner, logger *zap.Logger) *Inserter {
	if s == nil {
		s = scanner.NewScanner()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Inserter{scanner: s, logger: logger}
}

// Run inserts the configuration below directory
func (i *Inserter) Run(directory string, opts Options) ([]Result, error) {
	if opts.ConfigInHTML {
		return i.runConfigInHTML(directory, opts)
	}

	directories := []string{directory}
	if opts.Recursive {
		descriptors, err := i.scanner.Descriptors(directory, ngssc.DescriptorFileName)
		if err != nil {
			return nil, err
		}
		directories = directories[:0]
		for _, descriptor := range descriptors {
			directories = append(directories, filepath.Dir(descriptor))
		}
		if len(directories) == 0 {
			i.logger.Warn("No ngssc.json found", zap.String("directory", directory))
		}
	}

	results := make([]Result, 0, len(directories))
	for _, dir := range directories {
		result, err := i.insertWithDescriptor(dir, opts)
		if err != nil {
			return results, err
		}
		results = append(results, *result)
	}
	return results, nil
}

func (i *Inserter) insertWithDescriptor(directory string, opts Options) (*Result, error) {
	descriptorPath := filepath.Join(directory, ngssc.DescriptorFileName)
	descriptor, err := ngssc.ReadDescriptor(descriptorPath)
	if err != nil {
		return nil, err
	}

	values := ngssc.Populate(descriptor.EnvironmentVariables, opts.Lookup)
	block, err := ngssc.RenderScript(descriptor.Variant, values)
	if err != nil {
		return nil, fmt.Errorf("failed to render configuration for %s: %w", descriptorPath, err)
	}
	i.logger.Info("Populated environment variables",
		zap.String("variant", descriptor.Variant.String()),
		zap.String("descriptor", descriptorPath),
		zap.Int("variables", len(values)))

	pattern := descriptor.Pattern()
	if descriptor.Recursive() && !strings.HasPrefix(pattern, "**/") {
		pattern = "**/" + pattern
	}
	files, err := i.scanner.Match(directory, pattern)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Source:  descriptorPath,
		Variant: descriptor.Variant,
		Values:  values,
		Files:   files,
	}
	if len(files) == 0 {
		i.logger.Warn("No files found matching the file pattern",
			zap.String("pattern", pattern),
			zap.String("directory", directory))
		return result, nil
	}
	if opts.DryRun {
		i.logger.Info("Dry run. Nothing will be inserted.", zap.Strings("files", files))
		return result, nil
	}

	for _, file := range files {
		ngsw, err := i.insertIntoFile(file, directory, opts, func(html string) (string, error) {
			updated, ok := Apply(html, block, descriptor.InHead())
			if !ok {
				i.logger.Warn("No insertion point found. Add <!--CONFIG--> or a </head> tag.",
					zap.String("file", file))
			}
			return updated, nil
		})
		if err != nil {
			return nil, err
		}
		if ngsw != "" {
			result.Ngsw = append(result.Ngsw, ngsw)
		}
	}
	return result, nil
}

func (i *Inserter) runConfigInHTML(directory string, opts Options) ([]Result, error) {
	pattern := opts.Pattern
	if pattern == "" {
		pattern = DefaultConfigInHTMLPattern
	}
	files, err := i.scanner.Match(directory, pattern)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		i.logger.Warn("No files found matching the file pattern",
			zap.String("pattern", pattern),
			zap.String("directory", directory))
	}

	results := make([]Result, 0, len(files))
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			return results, fmt.Errorf("failed to read %s: %w", file, err)
		}
		descriptor, _, err := embeddedConfig(string(content), file)
		if err != nil {
			return results, err
		}
		values := ngssc.Populate(descriptor.EnvironmentVariables, opts.Lookup)
		block, err := ngssc.RenderScript(descriptor.Variant, values)
		if err != nil {
			return results, fmt.Errorf("failed to render configuration for %s: %w", file, err)
		}

		result := Result{
			Source:  file,
			Variant: descriptor.Variant,
			Values:  values,
			Files:   []string{file},
		}
		if !opts.DryRun {
			ngsw, err := i.insertIntoFile(file, directory, opts, func(html string) (string, error) {
				_, end, err := embeddedConfig(html, file)
				if err != nil {
					return "", err
				}
				return applyAfterConfig(html, block, end), nil
			})
			if err != nil {
				return results, err
			}
			if ngsw != "" {
				result.Ngsw = []string{ngsw}
			}
		}
		results = append(results, result)
	}
	if opts.DryRun {
		i.logger.Info("Dry run. Nothing will be inserted.", zap.Strings("files", files))
	}
	return results, nil
}

// insertIntoFile rewrites file with insert and the attribute replacements, then
// updates the service worker manifest. It returns the manifest path if one was updated.
func (i *Inserter) insertIntoFile(file, root string, opts Options, insert func(string) (string, error)) (string, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", file, err)
	}
	html, err := insert(string(data))
	if err != nil {
		return "", err
	}
	if opts.BaseHref != "" {
		html = ReplaceTagAttribute(html, "base", "href", opts.BaseHref)
	}
	if opts.HTMLLang != "" {
		html = ReplaceTagAttribute(html, "html", "lang", opts.HTMLLang)
	}
	if html == string(data) {
		i.logger.Debug("Configuration already up to date", zap.String("file", file))
		return "", nil
	}

	info, err := os.Stat(file)
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", file, err)
	}
	if err := os.WriteFile(file, []byte(html), info.Mode().Perm()); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", file, err)
	}
	i.logger.Debug("Inserted configuration", zap.String("file", file))

	ngswPath, ok := findNgsw(file, root)
	if !ok {
		return "", nil
	}
	updated, err := updateNgswHash(ngswPath, file, []byte(html))
	if err != nil {
		return "", err
	}
	if !updated {
		return "", nil
	}
	i.logger.Debug("Updated service worker hash", zap.String("ngsw", ngswPath), zap.String("file", file))
	return ngswPath, nil
}
