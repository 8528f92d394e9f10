// Package main provides the parley terminal chat client: a multi-provider
// LLM chat with streaming output, mid-conversation provider switching, and
// branching thread history.
package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/parley-ai/parley/pkg/config"
	"github.com/parley-ai/parley/pkg/history"
	"github.com/parley-ai/parley/pkg/llm"
	"github.com/parley-ai/parley/pkg/llm/anthropic"
	"github.com/parley-ai/parley/pkg/llm/gemini"
	"github.com/parley-ai/parley/pkg/llm/openai"
	"github.com/parley-ai/parley/pkg/logging"
	"github.com/parley-ai/parley/pkg/session"
	"github.com/parley-ai/parley/pkg/types"

	"flag"
)

const (
	version         = "0.1.0"
	defaultProvider = "openai"
)

func main() {
	cli := parseFlags()

	if cli.ShowVersion {
		fmt.Printf("parley v%s\n", version)
		return
	}

	if err := run(cli); err != nil {
		log.Fatalf("parley: %v", err)
	}
}

func parseFlags() *cliConfig {
	cli := &cliConfig{}

	flag.StringVar(&cli.Provider, "provider", "", "provider to start with (openai, anthropic, gemini)")
	flag.StringVar(&cli.Model, "model", "", "model id (defaults to the provider's configured default)")
	flag.StringVar(&cli.ThreadID, "thread", "", "existing thread id to resume")
	flag.StringVar(&cli.ConfigPath, "config", "", "config file path (default ~/.parley/config.json)")
	flag.StringVar(&cli.ProfilePath, "profile", "", "YAML run profile")
	flag.StringVar(&cli.DBPath, "db", "", "history database path (default ~/.parley/history.db, \"memory\" for none)")
	flag.BoolVar(&cli.ShowVersion, "version", false, "show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "parley - multi-provider streaming LLM chat\n\n")
		fmt.Fprintf(os.Stderr, "Usage: parley [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nCommands inside the chat:\n")
		fmt.Fprintf(os.Stderr, "  /provider <name> [model]  switch provider (applies to the next turn)\n")
		fmt.Fprintf(os.Stderr, "  /provider! <name> [model] switch now, cancelling any in-flight turn\n")
		fmt.Fprintf(os.Stderr, "  /model <id>               switch model on the current provider\n")
		fmt.Fprintf(os.Stderr, "  /fork <turn> [label]      branch the thread at a turn index\n")
		fmt.Fprintf(os.Stderr, "  /threads                  list threads\n")
		fmt.Fprintf(os.Stderr, "  /rename <label>           label the current thread\n")
		fmt.Fprintf(os.Stderr, "  /cancel                   cancel the in-flight turn\n")
		fmt.Fprintf(os.Stderr, "  /quit                     exit\n")
	}

	flag.Parse()
	return cli
}

type cliConfig struct {
	Provider    string
	Model       string
	ThreadID    string
	ConfigPath  string
	ProfilePath string
	DBPath      string
	ShowVersion bool
}

func run(cli *cliConfig) error {
	if err := config.Initialize(cli.ConfigPath); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	profile, err := loadProfile(cli.ProfilePath)
	if err != nil {
		return err
	}
	applyProfile(cli, profile)

	logger, logErr := logging.New("cli")
	if logErr != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", logErr)
	}
	defer logger.Close()

	store, err := openStore(cli.DBPath)
	if err != nil {
		return err
	}

	providers := config.GetProviders()
	limits := config.GetLimits()
	allowlist := config.GetModelAllowlist()

	registry := llm.NewRegistry(
		openai.New(openaiOpts(providers)...),
		anthropic.New(anthropicOpts(providers)...),
		gemini.New(geminiOpts(providers)...),
	)

	providerName := cli.Provider
	if providerName == "" {
		providerName = defaultProvider
	}
	provider, err := types.ParseProvider(providerName)
	if err != nil {
		return err
	}
	meta, err := providers.Meta(provider, cli.Model)
	if err != nil {
		return err
	}
	if !allowlist.Allowed(string(meta.Provider), meta.ModelID) {
		return fmt.Errorf("model %s/%s is not in the allowlist", meta.Provider, meta.ModelID)
	}

	mgr := session.NewManager(registry, llm.NewHTTPTransport(), llm.EnvResolver{}, store,
		session.WithStreamTimeout(limits.StreamTimeout()),
		session.WithSubscriberBuffer(limits.SubscriberBuffer()),
		session.WithMaxToolOutputBytes(limits.MaxToolOutputBytes()),
		session.WithIdleTTL(limits.IdleTTL()),
		session.WithLogger(logger),
	)
	defer mgr.Shutdown()

	sess, err := mgr.Open(cli.ThreadID, meta)
	if err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nshutting down...")
		mgr.Shutdown()
		os.Exit(0)
	}()

	r := &repl{
		mgr:       mgr,
		sess:      sess,
		store:     store,
		providers: providers,
		allowlist: allowlist,
		out:       os.Stdout,
	}

	// Profile prompts run before the interactive loop.
	for _, prompt := range profile.Prompts {
		fmt.Printf("> %s\n", prompt)
		if err := r.sendAndStream(prompt); err != nil {
			return err
		}
	}

	return r.loop(os.Stdin)
}

func openStore(path string) (history.Store, error) {
	if path == "memory" {
		return history.NewMemoryStore(), nil
	}
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir := filepath.Join(home, ".parley")
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		path = filepath.Join(dir, "history.db")
	}
	return history.NewSQLiteStore(path)
}

func openaiOpts(providers *config.ProvidersSection) []openai.Option {
	if entry, ok := providers.Get(types.ProviderOpenAI); ok && entry.BaseURL != "" {
		return []openai.Option{openai.WithBaseURL(entry.BaseURL)}
	}
	return nil
}

func anthropicOpts(providers *config.ProvidersSection) []anthropic.Option {
	if entry, ok := providers.Get(types.ProviderAnthropic); ok && entry.BaseURL != "" {
		return []anthropic.Option{anthropic.WithBaseURL(entry.BaseURL)}
	}
	return nil
}

func geminiOpts(providers *config.ProvidersSection) []gemini.Option {
	if entry, ok := providers.Get(types.ProviderGemini); ok && entry.BaseURL != "" {
		return []gemini.Option{gemini.WithBaseURL(entry.BaseURL)}
	}
	return nil
}
