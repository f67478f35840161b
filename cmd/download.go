package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/idiom-bytes/canada-spends-municipality-scraper/internal/config"
	"github.com/idiom-bytes/canada-spends-municipality-scraper/internal/ledger"
	"github.com/idiom-bytes/canada-spends-municipality-scraper/internal/logging"
	"github.com/idiom-bytes/canada-spends-municipality-scraper/internal/metrics"
	"github.com/idiom-bytes/canada-spends-municipality-scraper/internal/refdata"
	"github.com/idiom-bytes/canada-spends-municipality-scraper/internal/scrape"
)

type downloadOptions struct {
	limit           int
	municipality    string
	csd             string
	retryFailed     bool
	retryIncomplete bool
}

// newDownloadCmd creates the 'download' subcommand, which runs the crawl and
// download pipeline over the discovered seed URLs.
func newDownloadCmd() *cobra.Command {
	opts := downloadOptions{}

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Crawl report pages and download annual reports",
		Long: `Crawls each municipality's financial report page, follows finance-related
sub-folders up to the traversal cap, selects the best document per fiscal
year, and downloads anything not already present on disk. Status and
provenance are recorded in the CSV ledgers after every municipality.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDownload(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.limit, "limit", 5, "max municipalities to process")
	cmd.Flags().StringVarP(&opts.municipality, "municipality", "m", "", "filter by municipality name (substring)")
	cmd.Flags().StringVar(&opts.csd, "csd", "", "filter by census subdivision ID")
	cmd.Flags().BoolVar(&opts.retryFailed, "retry-failed", false, "only retry previously failed municipalities")
	cmd.Flags().BoolVar(&opts.retryIncomplete, "retry-incomplete", false, "retry municipalities marked needs_reparse")

	return cmd
}

func runDownload(cmd *cobra.Command, opts downloadOptions) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	metrics.Init()

	seeds, err := ledger.ReadSeeds(cfg.Paths.SeedsCSV)
	if err != nil {
		return err
	}
	if len(seeds) == 0 {
		logger.Warn("no seed urls found; run the url finder first",
			zap.String("path", cfg.Paths.SeedsCSV),
		)
		return nil
	}
	logger.Info("seed urls loaded", zap.Int("count", len(seeds)))

	statuses, err := ledger.LoadStatus(cfg.Paths.StatusCSV)
	if err != nil {
		return err
	}

	selected := ledger.FilterSeeds(seeds, ledger.SeedFilter{
		CSD:             opts.csd,
		Municipality:    opts.municipality,
		RetryFailed:     opts.retryFailed,
		RetryIncomplete: opts.retryIncomplete,
		Limit:           opts.limit,
	}, statuses)
	if len(selected) == 0 {
		logger.Info("no municipalities matched the filters")
		return nil
	}
	logger.Info("municipalities selected", zap.Int("count", len(selected)))

	fetcher, err := scrape.NewCollyFetcher(scrape.FetcherConfig{
		UserAgent:   cfg.Crawler.UserAgent,
		PageTimeout: cfg.Crawler.PageTimeout(),
	}, logger)
	if err != nil {
		return fmt.Errorf("build fetcher: %w", err)
	}

	lookup := refdata.New(refdata.Config{
		MunicipalitiesCSV: cfg.Paths.MunicipalitiesCSV,
		StatusCodesCSV:    cfg.Paths.StatusCodesCSV,
		ProvinceCodesCSV:  cfg.Paths.ProvinceCodesCSV,
	})

	engine := scrape.NewEngine(
		scrape.EngineConfig{
			LakeDir:        cfg.Paths.LakeDir,
			MaxPages:       cfg.Crawler.MaxPagesPerCrawl,
			MaxDownloads:   cfg.Crawler.MaxDownloadsPerRun,
			MaxUnknownYear: cfg.Crawler.MaxUnknownYearDownloads,
		},
		fetcher,
		scrape.NewHTTPDownloader(cfg.Crawler.DownloadTimeout(), cfg.Crawler.UserAgent, logger),
		ledger.NewMasterCSV(cfg.Paths.MasterCSV),
		ledger.NewStatusCSV(cfg.Paths.StatusCSV),
		lookupAdapter{lookup},
		logger,
	)

	results, err := engine.Run(cmd.Context(), selected)

	ok, failed := 0, 0
	for _, res := range results {
		if res.Success {
			ok++
		} else {
			failed++
		}
	}
	logger.Info("run complete",
		zap.Int("ok", ok),
		zap.Int("failed", failed),
	)
	return err
}

// lookupAdapter bridges refdata.Lookup to the engine's identity interface.
type lookupAdapter struct {
	lookup *refdata.Lookup
}

func (a lookupAdapter) ByCSD(id string) (scrape.MunicipalityInfo, bool) {
	m, ok := a.lookup.ByCSD(id)
	if !ok {
		return scrape.MunicipalityInfo{}, false
	}
	return scrape.MunicipalityInfo{
		CSDID:        m.CSDID,
		Name:         m.Name,
		StatusName:   m.StatusName,
		ProvinceID:   m.ProvinceID,
		ProvinceName: m.Province,
	}, true
}
