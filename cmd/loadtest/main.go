// Команда loadtest прогоняет сценарии оформления заказа через REST API vegshop
// и печатает сводку по задержкам и кодам ответа.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type loadMode string

const (
	// modeCheckout: регистрация, корзина, оформление заказа.
	modeCheckout loadMode = "checkout"
	// modeCheckoutReplay дополнительно повторяет оформление с тем же Idempotency-Key.
	modeCheckoutReplay loadMode = "checkout-replay"
	// modeBrowse читает каталог без авторизации.
	modeBrowse loadMode = "browse"
)

var (
	knownModes     = []loadMode{modeCheckout, modeCheckoutReplay, modeBrowse}
	paymentMethods = []string{"COD", "Online"}
)

type config struct {
	baseURL     string
	mode        loadMode
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	timeout     time.Duration
	outputPath  string

	products      []string
	quantity      int
	paymentMethod string
	emailDomain   string
	customerTag   string
}

func parseConfig(args []string) (config, error) {
	cfg := config{}
	var mode, products string

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.baseURL, "addr", "http://localhost:8080", "base URL of the vegshop HTTP API")
	fs.StringVar(&mode, "mode", string(modeCheckout), "checkout | checkout-replay | browse")
	fs.IntVar(&cfg.total, "total", 200, "scenarios to run; with -duration acts as an upper bound when set explicitly")
	fs.DurationVar(&cfg.duration, "duration", 0, "run for a fixed time instead of a fixed count (e.g. 5m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 20, "parallel customers")
	fs.DurationVar(&cfg.timeout, "timeout", 10*time.Second, "per-request timeout")
	fs.StringVar(&cfg.outputPath, "output", "", "write the summary to this file (.json or .yaml)")
	fs.StringVar(&products, "products", "tomato,onion", "comma-separated vegetable ids added to every cart")
	fs.IntVar(&cfg.quantity, "quantity", 1, "quantity of each vegetable")
	fs.StringVar(&cfg.paymentMethod, "payment", "COD", "COD | Online")
	fs.StringVar(&cfg.emailDomain, "email-domain", "loadtest.local", "domain of generated customer emails")
	fs.StringVar(&cfg.customerTag, "customer-tag", "load", "local-part prefix of generated customer emails")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	fs.Visit(func(f *flag.Flag) { cfg.totalSet = cfg.totalSet || f.Name == "total" })

	m, err := parseMode(mode)
	if err != nil {
		return cfg, err
	}
	cfg.mode = m
	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	cfg.products = splitProducts(products)
	return cfg, cfg.validate()
}

// validate собирает все ошибки конфигурации разом.
func (c config) validate() error {
	var errs []error
	check := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, errors.New(msg))
		}
	}

	check(c.baseURL != "", "addr is required")
	check(c.duration >= 0, "duration must not be negative")
	check(c.concurrency > 0, "concurrency must be positive")
	check(c.timeout > 0, "timeout must be positive")
	if c.duration == 0 || c.totalSet {
		check(c.total > 0, "total must be positive")
	}

	if c.mode != modeBrowse {
		check(len(c.products) > 0, "products are required for checkout modes")
		check(c.quantity > 0, "quantity must be positive")
		check(slices.Contains(paymentMethods, c.paymentMethod), "payment must be COD or Online")
		check(strings.TrimSpace(c.emailDomain) != "", "email-domain is required")
		check(strings.TrimSpace(c.customerTag) != "", "customer-tag is required")
	}
	return errors.Join(errs...)
}

func parseMode(value string) (loadMode, error) {
	m := loadMode(strings.TrimSpace(value))
	if !slices.Contains(knownModes, m) {
		return "", fmt.Errorf("unknown mode %q", value)
	}
	return m, nil
}

func splitProducts(raw string) []string {
	var ids []string
	for part := range strings.SplitSeq(raw, ",") {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "loadtest: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result := run(ctx, cfg, newAPIClient(cfg.baseURL, cfg.timeout))
	printSummary(os.Stdout, result, cfg)

	if cfg.outputPath != "" {
		if err := saveSummary(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "loadtest: save summary: %v\n", err)
			os.Exit(1)
		}
	}
	if result.Scenarios.Failed > 0 {
		os.Exit(1)
	}
}

// run раздаёт номера сценариев не более чем cfg.concurrency горутинам одновременно.
func run(ctx context.Context, cfg config, client *apiClient) summary {
	runID := uuid.NewString()[:8]
	t := newTally()
	startedAt := time.Now()

	var g errgroup.Group
	g.SetLimit(cfg.concurrency)
	for index := range scenarioIndexes(ctx, cfg) {
		g.Go(func() error {
			// Ошибка уже учтена в tally; прогон продолжается.
			_ = runScenario(ctx, client, cfg, index, runID, t)
			return nil
		})
	}
	_ = g.Wait()

	return t.summarize(runID, startedAt, time.Since(startedAt))
}

// scenarioIndexes выдаёт номера сценариев, пока не исчерпан лимит,
// не истекла длительность прогона или не отменён ctx.
func scenarioIndexes(ctx context.Context, cfg config) <-chan int {
	out := make(chan int)
	go func() {
		defer close(out)

		var stopAt <-chan time.Time
		if cfg.duration > 0 {
			timer := time.NewTimer(cfg.duration)
			defer timer.Stop()
			stopAt = timer.C
		}
		bounded := cfg.duration <= 0 || cfg.totalSet

		for i := 0; !bounded || i < cfg.total; i++ {
			if ctx.Err() != nil {
				return
			}
			select {
			case out <- i:
			case <-stopAt:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
