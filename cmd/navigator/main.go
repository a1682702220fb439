package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/finagent/loanflow/internal/browser"
	"github.com/finagent/loanflow/internal/flow"
	"github.com/finagent/loanflow/internal/llm"
	"github.com/finagent/loanflow/internal/resolver"
	"github.com/finagent/loanflow/internal/store"
	"github.com/finagent/loanflow/internal/suggest"
)

type cliOptions struct {
	url      string
	outDir   string
	human    bool
	headless bool
	maxHops  int
}

func main() {
	_ = godotenv.Load()
	opts := parseFlags()
	if opts.url == "" {
		fmt.Fprintln(os.Stderr, "usage: navigator --url <start-url> [--out dir] [--human] [--max-hops n]")
		os.Exit(2)
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	llmClient, err := llm.NewClientWithLogger(log.With().Str("comp", "llm").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("llm init")
	}

	launcher, err := browser.NewLauncher(opts.headless)
	if err != nil {
		log.Fatal().Err(err).Msg("browser init")
	}
	defer launcher.Close()

	suggester := suggest.New(llmClient, suggest.NewCache(), log.With().Str("comp", "suggest").Logger())
	res := resolver.New(launcher, suggester, log.With().Str("comp", "resolver").Logger())
	analyst := flow.NewAnalyst(llmClient, log.With().Str("comp", "analyst").Logger())

	nav := flow.NewNavigator(
		flow.Config{
			OutDir:              opts.outDir,
			HumanInLoop:         opts.human,
			MaxIntermediateHops: opts.maxHops,
		},
		launcher,
		analyst,
		res,
		terminalPrompt(),
		log.With().Str("comp", "flow").Logger(),
	)

	fmt.Println("Starting loan application crawl...")
	result, err := nav.Run(ctx, opts.url)
	if err != nil {
		log.Fatal().Err(err).Msg("run failed")
	}

	outPath := filepath.Join(opts.outDir, store.SanitizeFilename(opts.url)+"_result.json")
	if err := store.SaveJSONAtomic(outPath, result); err != nil {
		log.Error().Err(err).Str("path", outPath).Msg("save result")
	} else {
		log.Info().Str("path", outPath).Msg("result saved")
	}
	fmt.Printf("Done. Final page: %s (%s)\n", result.FinalURL, result.Classification)
}

func parseFlags() cliOptions {
	url := flag.String("url", "", "Start URL of the lender site")
	out := flag.String("out", "data", "Output directory for extracted data")
	human := flag.Bool("human", false, "Ask a human to pick loan options")
	headless := flag.Bool("headless", browser.HeadlessDefault(), "Run the browser headless")
	maxHops := flag.Int("max-hops", 2, "Max intermediate choice pages to traverse")
	flag.Parse()
	return cliOptions{
		url:      strings.TrimSpace(*url),
		outDir:   strings.TrimSpace(*out),
		human:    *human,
		headless: *headless,
		maxHops:  *maxHops,
	}
}

func terminalPrompt() flow.PromptFunc {
	reader := bufio.NewReader(os.Stdin)
	return func(ctx context.Context, message string) (string, error) {
		fmt.Printf("\n=== Input required ===\n%s", message)
		text, err := reader.ReadString('\n')
		if err != nil {
			return "", err
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}
		return strings.TrimSpace(text), nil
	}
}
