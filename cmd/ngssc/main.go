package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/jenian/ngssc/internal/build"
	"github.com/jenian/ngssc/internal/config"
	"github.com/jenian/ngssc/internal/detector"
	"github.com/jenian/ngssc/internal/envfile"
	"github.com/jenian/ngssc/internal/insert"
	"github.com/jenian/ngssc/internal/logging"
	"github.com/jenian/ngssc/internal/output"
	"github.com/jenian/ngssc/internal/scanner"
	"github.com/jenian/ngssc/internal/tokenizer"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Version is set at build time via -ldflags
var Version = "dev"

// DefaultTokenFile holds the tokens between the tokenize and untokenize commands
const DefaultTokenFile = "ngssc-tokens.json"

var (
	rootCmd = &cobra.Command{
		Use:   "ngssc",
		Short: "Runtime environment variables for single page applications",
		Long: "A CLI tool that detects environment variable usages in an application configuration file, " +
			"keeps them intact through the compiler and inserts their values into the built HTML at deploy time.",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
	}

	detectCmd = &cobra.Command{
		Use:   "detect [file]",
		Short: "Detect environment variables in a configuration file",
		Long:  "Detect the variant and every environment variable accessed in a configuration file.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runDetect,
	}

	tokenizeCmd = &cobra.Command{
		Use:   "tokenize [file]",
		Short: "Replace environment variable expressions with tokens",
		Long:  "Replace every environment variable expression in a configuration file with a token and store the tokens for untokenize.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runTokenize,
	}

	untokenizeCmd = &cobra.Command{
		Use:   "untokenize [output path]",
		Short: "Restore tokens in build output and revert the configuration file",
		Long:  "Rewrite the tokens stored by tokenize back into expressions in the build output and restore the configuration file.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runUntokenize,
	}

	wrapCmd = &cobra.Command{
		Use:   "wrap [-- command...]",
		Short: "Run a build with tokenization and write ngssc.json",
		Long: "Detect environment variables, tokenize the configuration file, run the build command, " +
			"revert the configuration file, untokenize the output and write ngssc.json.",
		RunE: runWrap,
	}

	insertCmd = &cobra.Command{
		Use:   "insert [directory]",
		Short: "Insert environment variable values into HTML files",
		Long:  "Populate the environment variables listed in ngssc.json and insert them into the matching HTML files.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runInsert,
	}

	initConfigCmd = &cobra.Command{
		Use:   "init-config",
		Short: "Create a .ngssc.config file in the current directory",
		Long:  "Creates a .ngssc.config file with default configuration in the current directory.",
		RunE:  runInitConfig,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Long:  "Print the version number of ngssc",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	}

	// Global flags
	debug    bool
	silent   bool
	noHeader bool

	// Detect flags
	jsonOutput bool

	// Tokenize flags
	tokenFile string

	// Wrap flags
	environmentFile   string
	outputPath        string
	indexFile         string
	filePattern       string
	tokenize          bool
	insertInHead      bool
	recursiveMatching bool
	additional        []string

	// Insert flags
	dryRun       bool
	recursive    bool
	configInHTML bool
	htmlPattern  string
	dotenvFiles  []string
	baseHref     string
	htmlLang     string

	logger *zap.Logger
	cfg    *config.Config
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&silent, "silent", false, "Only log errors")
	rootCmd.PersistentFlags().BoolVar(&noHeader, "no-header", false, "Skip printing the header")

	detectCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results in JSON format")

	for _, cmd := range []*cobra.Command{tokenizeCmd, untokenizeCmd} {
		cmd.Flags().StringVar(&tokenFile, "token-file", DefaultTokenFile, "File storing the tokens between tokenize and untokenize")
	}

	wrapCmd.Flags().StringVarP(&environmentFile, "environment-file", "e", "", "Configuration file containing the environment variable accesses")
	wrapCmd.Flags().StringVarP(&outputPath, "output-path", "o", "", "Build output directory")
	wrapCmd.Flags().StringVar(&indexFile, "index-file", "", "Index HTML file of the application")
	wrapCmd.Flags().StringVar(&filePattern, "file-pattern", "", "File pattern written to ngssc.json (default: index file name)")
	wrapCmd.Flags().BoolVar(&tokenize, "tokenize", false, "Tokenize the configuration file during the build")
	wrapCmd.Flags().BoolVar(&insertInHead, "insert-in-head", false, "Insert configuration into the head instead of a <!--CONFIG--> placeholder")
	wrapCmd.Flags().BoolVar(&recursiveMatching, "recursive-matching", true, "Match the file pattern in sub directories")
	wrapCmd.Flags().StringSliceVar(&additional, "additional-environment-variables", []string{}, "Variables added to ngssc.json")

	insertCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be inserted without changing files")
	insertCmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Insert for every ngssc.json below the directory")
	insertCmd.Flags().BoolVar(&configInHTML, "config-in-html", false, "Read the configuration from <!--CONFIG {...}--> in the HTML files")
	insertCmd.Flags().StringVar(&htmlPattern, "pattern", insert.DefaultConfigInHTMLPattern, "HTML files to read in config-in-html mode")
	insertCmd.Flags().StringSliceVar(&dotenvFiles, "dotenv", []string{}, ".env files to load (exported variables take precedence)")
	insertCmd.Flags().StringVar(&baseHref, "base-href", "", "Replace the base href of the HTML files")
	insertCmd.Flags().StringVar(&htmlLang, "html-lang", "", "Replace the lang attribute of the HTML files")
	insertCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results in JSON format")

	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(tokenizeCmd)
	rootCmd.AddCommand(untokenizeCmd)
	rootCmd.AddCommand(wrapCmd)
	rootCmd.AddCommand(insertCmd)
	rootCmd.AddCommand(initConfigCmd)
	rootCmd.AddCommand(versionCmd)
}

// setup builds the logger and loads .ngssc.config for every command
func setup(cmd *cobra.Command, args []string) error {
	logger = logging.New(debug, silent)

	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to resolve working directory: %w", err)
	}
	cfg, err = config.LoadConfig(wd)
	if err != nil {
		return err
	}
	return nil
}

func newScanner() *scanner.Scanner {
	fileScanner := scanner.NewScanner()
	if len(cfg.Ignores.Folders) > 0 {
		fileScanner.AddExcludeDirs(cfg.Ignores.Folders)
	}
	return fileScanner
}

// configurationFile resolves the configuration file from the argument or .ngssc.config
func configurationFile(args []string) (string, error) {
	file := cfg.Build.EnvironmentFile
	if len(args) > 0 {
		file = args[0]
	}
	if file == "" {
		return "", fmt.Errorf("no configuration file given and build.environmentFile is not set in %s", config.FileName)
	}
	if _, err := os.Stat(file); err != nil {
		return "", fmt.Errorf("configuration file does not exist: %s", file)
	}
	return file, nil
}

func runDetect(cmd *cobra.Command, args []string) error {
	file, err := configurationFile(args)
	if err != nil {
		return err
	}

	result, err := detector.New(logger).DetectFile(file)
	if err != nil {
		return err
	}

	out := output.NewDetectOutput(file, result, os.LookupEnv)
	if err := output.FormatDetect(cmd.OutOrStdout(), out, jsonOutput); err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	return nil
}

func runTokenize(cmd *cobra.Command, args []string) error {
	file, err := configurationFile(args)
	if err != nil {
		return err
	}
	if _, err := os.Stat(tokenFile); err == nil {
		return fmt.Errorf("%s already exists, run untokenize first", tokenFile)
	}

	session, err := tokenizer.New(detector.New(logger), logger).Tokenize(file)
	if err != nil {
		return err
	}
	if err := session.Save(tokenFile); err != nil {
		return errors.Join(err, session.Revert())
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Tokenized %d expression(s) in %s. Tokens written to %s\n", len(session.Tokens), file, tokenFile)
	return nil
}

func runUntokenize(cmd *cobra.Command, args []string) error {
	out := cfg.Build.OutputPath
	if len(args) > 0 {
		out = args[0]
	}
	if out == "" {
		return fmt.Errorf("no output path given and build.outputPath is not set in %s", config.FileName)
	}

	session, err := tokenizer.LoadSession(tokenFile)
	if err != nil {
		return err
	}
	if err := session.Revert(); err != nil {
		return err
	}

	changed, err := tokenizer.NewUntokenizer(newScanner(), logger).UntokenizeDir(cmd.Context(), out, session.Tokens)
	if err != nil {
		return err
	}
	if err := os.Remove(tokenFile); err != nil {
		logger.Warn("Failed to remove token file", zap.String("file", tokenFile), zap.Error(err))
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Reverted %s and untokenized %d file(s) in %s\n", session.Path, len(changed), out)
	return nil
}

func runWrap(cmd *cobra.Command, args []string) error {
	opts := build.Options{
		EnvironmentFile:                cfg.Build.EnvironmentFile,
		Command:                        cfg.Build.Command,
		OutputPath:                     cfg.Build.OutputPath,
		IndexFile:                      cfg.Build.IndexFile,
		FilePattern:                    cfg.Build.FilePattern,
		InsertInHead:                   cfg.Build.InsertInHead,
		RecursiveMatching:              cfg.Build.RecursiveMatching,
		Tokenize:                       cfg.Build.Tokenize,
		AdditionalEnvironmentVariables: cfg.Build.AdditionalEnvironmentVariables,
		Stdout:                         cmd.ErrOrStderr(),
		Stderr:                         cmd.ErrOrStderr(),
	}
	for _, replacement := range cfg.Build.FileReplacements {
		opts.FileReplacements = append(opts.FileReplacements, build.FileReplacement{
			Replace: replacement.Replace,
			With:    replacement.With,
		})
	}

	flags := cmd.Flags()
	if len(args) > 0 {
		opts.Command = args
	}
	if flags.Changed("environment-file") {
		opts.EnvironmentFile = environmentFile
	}
	if flags.Changed("output-path") {
		opts.OutputPath = outputPath
	}
	if flags.Changed("index-file") {
		opts.IndexFile = indexFile
	}
	if flags.Changed("file-pattern") {
		opts.FilePattern = filePattern
	}
	if flags.Changed("tokenize") {
		opts.Tokenize = tokenize
	}
	if flags.Changed("insert-in-head") {
		opts.InsertInHead = &insertInHead
	}
	if flags.Changed("recursive-matching") {
		opts.RecursiveMatching = &recursiveMatching
	}
	if flags.Changed("additional-environment-variables") {
		opts.AdditionalEnvironmentVariables = additional
	}

	if !noHeader && !silent {
		printHeader(cmd)
	}

	// Interrupting the build still reverts the configuration file
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := build.New(detector.New(logger), newScanner(), logger).Run(ctx, opts)
	if err != nil {
		return err
	}
	output.FormatBuild(cmd.OutOrStdout(), result)
	return nil
}

func runInsert(cmd *cobra.Command, args []string) error {
	directory := cfg.Insert.Directory
	if len(args) > 0 {
		directory = args[0]
	}
	absPath, err := filepath.Abs(directory)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	if _, err := os.Stat(absPath); os.IsNotExist(err) {
		return fmt.Errorf("path does not exist: %s", absPath)
	}

	flags := cmd.Flags()
	opts := insert.Options{
		DryRun:       dryRun,
		Recursive:    cfg.Insert.Recursive,
		ConfigInHTML: cfg.Insert.ConfigInHTML,
		Pattern:      htmlPattern,
		BaseHref:     cfg.Insert.BaseHref,
		HTMLLang:     cfg.Insert.HTMLLang,
	}
	if flags.Changed("recursive") {
		opts.Recursive = recursive
	}
	if flags.Changed("config-in-html") {
		opts.ConfigInHTML = configInHTML
	}
	if flags.Changed("base-href") {
		opts.BaseHref = baseHref
	}
	if flags.Changed("html-lang") {
		opts.HTMLLang = htmlLang
	}

	envFiles := cfg.Insert.Dotenv
	if flags.Changed("dotenv") {
		envFiles = dotenvFiles
	}
	vars, err := envfile.NewLoader(envFiles...).Load(absPath)
	if err != nil {
		return fmt.Errorf("failed to load env files: %w", err)
	}
	opts.Lookup = envfile.Lookup(vars)

	if !noHeader && !silent && !jsonOutput {
		printHeader(cmd)
	}

	results, err := insert.New(newScanner(), logger).Run(absPath, opts)
	if err != nil {
		return err
	}
	if err := output.FormatInsert(cmd.OutOrStdout(), results, dryRun, jsonOutput); err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	return nil
}

func runInitConfig(cmd *cobra.Command, args []string) error {
	path, err := config.WriteDefault(".")
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created %s in the current directory\n", path)
	return nil
}

func printHeader(cmd *cobra.Command) {
	header := `                                
 _ __   __ _ ___ ___  ___ 
| '_ \ / _' / __/ __|/ __|
| | | | (_| \__ \__ \ (__ 
|_| |_|\__, |___/___/\___|
       |___/              
`
	w := cmd.OutOrStdout()
	fmt.Fprint(w, header)
	fmt.Fprintf(w, "Version: %s\n\n", Version)
}

func main() {
	err := rootCmd.ExecuteContext(context.Background())
	if logger != nil {
		_ = logger.Sync()
	}
	if err != nil {
		fmt.Fprint(os.Stderr, output.FormatError(err))
		os.Exit(1)
	}
}
