package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"wphunter/internal/app"
	"wphunter/internal/config"
	"wphunter/internal/logging"
)

func main() {
	cfg := config.Load()

	flag.IntVar(&cfg.Scan.Pages, "pages", cfg.Scan.Pages, "number of directory pages to fetch")
	flag.IntVar(&cfg.Scan.Limit, "limit", cfg.Scan.Limit, "maximum number of candidates to keep (0 keeps all)")
	flag.IntVar(&cfg.Scan.MinInstalls, "min", cfg.Scan.MinInstalls, "minimum active installs")
	flag.IntVar(&cfg.Scan.MaxInstalls, "max", cfg.Scan.MaxInstalls, "maximum active installs (0 is unbounded)")
	flag.IntVar(&cfg.Scan.MinDays, "min-days", cfg.Scan.MinDays, "minimum days since last update")
	flag.IntVar(&cfg.Scan.MaxDays, "max-days", cfg.Scan.MaxDays, "maximum days since last update (0 is unbounded)")
	flag.StringVar(&cfg.Scan.Sort, "sort", cfg.Scan.Sort, "directory browse order: new, updated or popular")
	flag.BoolVar(&cfg.Scan.Smart, "smart", cfg.Scan.Smart, "keep only candidates in a risk category")
	flag.BoolVar(&cfg.Scan.Abandoned, "abandoned", cfg.Scan.Abandoned, "hunt abandoned listings only")
	flag.BoolVar(&cfg.Scan.DeepAnalysis, "deep-analysis", cfg.Scan.DeepAnalysis, "download archives and scan for dangerous functions and AJAX handlers")
	flag.BoolVar(&cfg.Scan.DangerousFunctions, "dangerous-functions", cfg.Scan.DangerousFunctions, "archive scan for dangerous functions only")
	flag.BoolVar(&cfg.Scan.AjaxScan, "ajax-scan", cfg.Scan.AjaxScan, "archive scan for AJAX handlers only")
	flag.BoolVar(&cfg.Scan.Themes, "themes", cfg.Scan.Themes, "scan the themes directory instead of plugins")
	flag.IntVar(&cfg.Scan.FetchWorkers, "fetch-workers", cfg.Scan.FetchWorkers, "concurrent page fetchers")
	flag.IntVar(&cfg.Scan.DeepWorkers, "deep-workers", cfg.Scan.DeepWorkers, "concurrent archive analyzers")
	flag.StringVar(&cfg.Report.Output, "output", cfg.Report.Output, "report file path (empty writes to stdout)")
	flag.StringVar(&cfg.Report.Format, "format", cfg.Report.Format, "report format: json or csv")
	sessionID := flag.Int64("session", 0, "reprint a stored scan session instead of running a new hunt")
	flag.Parse()

	explicit := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	logger := logging.New(cfg.Logging.Level)

	if err := cfg.Scan.Validate(); err != nil {
		logger.Error("invalid options", "error", err)
		os.Exit(2)
	}
	cfg.Scan = cfg.Scan.Normalize(explicit["sort"], explicit["pages"])

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer application.Close()

	if *sessionID > 0 {
		if err := application.Replay(ctx, *sessionID); err != nil {
			logger.Error("session replay failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := application.Run(ctx); err != nil {
		logger.Error("hunt stopped", "error", err)
		os.Exit(1)
	}
}
