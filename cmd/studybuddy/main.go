// =============================================================================
// StudyBuddy 主入口
// =============================================================================
// 备考助手命令行：摄入学习材料、提问、生成测验/闪卡/学习计划
//
// 使用方法:
//
//	studybuddy ingest --corpus cs101 notes.txt chapter2.md   # 摄入材料
//	studybuddy ask --corpus cs101 "Explain paging"           # 提问
//	studybuddy ask --corpus cs101 --param hours_per_day=4 \
//	    "Create a study plan for my exam in 30 days"
//	studybuddy version                                       # 显示版本信息
// =============================================================================
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/studybuddy/config"
	"github.com/BaSui01/studybuddy/internal/telemetry"
)

// 版本信息（构建时注入）
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "ingest":
		runIngest(os.Args[2:])
	case "ask":
		runAsk(os.Args[2:])
	case "list":
		runList(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// loadConfig 加载并验证配置
func loadConfig(path string) *config.Config {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// runIngest ingest 命令：把文件摄入语料库
func runIngest(args []string) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	corpus := fs.String("corpus", "default", "Corpus to ingest into")
	fs.Parse(args)

	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "ingest: at least one file is required")
		os.Exit(1)
	}

	cfg := loadConfig(*configPath)
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	defer shutdownTelemetry(otelProviders, logger)

	stack, err := buildStack(cfg, logger)
	if err != nil {
		logger.Fatal("failed to build pipeline", zap.Error(err))
	}

	docs, err := loadDocuments(fs.Args())
	if err != nil {
		logger.Fatal("failed to read documents", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	result, err := stack.orchestrator.ProcessDocuments(ctx, *corpus, docs)
	if err != nil {
		logger.Fatal("ingestion failed", zap.Error(err))
	}

	fmt.Printf("Ingested %d documents into corpus %q: %d chunks created\n",
		len(docs)-len(result.Errors), *corpus, result.ChunksCreated)
	for _, de := range result.Errors {
		fmt.Fprintf(os.Stderr, "  failed: %s: %s\n", de.Source, de.Message)
	}
	if len(result.Errors) > 0 {
		os.Exit(1)
	}
}

// runAsk ask 命令：处理一轮提问
func runAsk(args []string) {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	corpus := fs.String("corpus", "default", "Corpus to query")
	var params paramFlags
	fs.Var(&params, "param", "Tool parameter as key=value (repeatable)")
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, `ask: exactly one question is required, e.g. ask "Explain paging"`)
		os.Exit(1)
	}
	question := fs.Arg(0)

	cfg := loadConfig(*configPath)
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	defer shutdownTelemetry(otelProviders, logger)

	stack, err := buildStack(cfg, logger)
	if err != nil {
		logger.Fatal("failed to build pipeline", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	result, err := stack.orchestrator.Ask(ctx, *corpus, question, params.values)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ask failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("[%s]\n\n%s\n", result.Category, result.Answer)
	if len(result.Sources) > 0 {
		fmt.Println("\nSources:")
		for _, s := range result.Sources {
			if s.Ordinal > 0 || s.DocumentID != "" {
				fmt.Printf("  - %s (chunk %d, score %.2f)\n", s.Source, s.Ordinal, s.Score)
			} else {
				fmt.Printf("  - %s (score %.2f)\n", s.Source, s.Score)
			}
		}
	}
}

// runList list 命令：列出语料库中已摄入的文档
func runList(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	corpus := fs.String("corpus", "default", "Corpus to inspect")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	stack, err := buildStack(cfg, logger)
	if err != nil {
		logger.Fatal("failed to build pipeline", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sources, err := stack.orchestrator.Documents(ctx, *corpus)
	if err != nil {
		logger.Fatal("failed to list documents", zap.Error(err))
	}

	if len(sources) == 0 {
		fmt.Printf("Corpus %q is empty\n", *corpus)
		return
	}
	fmt.Printf("Documents in corpus %q:\n", *corpus)
	for _, s := range sources {
		fmt.Printf("  - %s\n", s)
	}
}

func shutdownTelemetry(p *telemetry.Providers, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		logger.Warn("telemetry shutdown failed", zap.Error(err))
	}
}

// paramFlags 可重复的 key=value 参数
type paramFlags struct {
	values map[string]string
}

func (p *paramFlags) String() string {
	return fmt.Sprintf("%v", p.values)
}

func (p *paramFlags) Set(raw string) error {
	if p.values == nil {
		p.values = make(map[string]string)
	}
	for i := 0; i < len(raw); i++ {
		if raw[i] == '=' {
			p.values[raw[:i]] = raw[i+1:]
			return nil
		}
	}
	return fmt.Errorf("parameter must be key=value, got %q", raw)
}

func printVersion() {
	fmt.Printf("StudyBuddy %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`StudyBuddy - exam preparation assistant

Usage:
  studybuddy <command> [options]

Commands:
  ingest    Ingest study material files into a corpus
  ask       Ask a question against a corpus
  list      List documents ingested into a corpus
  version   Show version information
  help      Show this help message

Options:
  --config <path>   Path to configuration file (YAML)
  --corpus <name>   Corpus name (default "default")
  --param k=v       Tool parameter for 'ask' (repeatable)

Examples:
  studybuddy ingest --corpus cs101 notes.txt chapter2.md
  studybuddy ask --corpus cs101 "Give me a 16-mark answer on paging"
  studybuddy ask --corpus cs101 --param hours_per_day=4 --param exam_date=2026-12-01 \
      "Create a study plan for my operating systems exam"`)
}
