package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"gmcstatus/internal/backend"
	"gmcstatus/internal/cache"
	"gmcstatus/internal/config"
	"gmcstatus/internal/merchants"
	"gmcstatus/internal/refresh"
	"gmcstatus/internal/regioncache"
	"gmcstatus/internal/telemetry"

	"github.com/joho/godotenv"
	"github.com/samber/lo"
)

func main() {
	var region string
	var serve bool
	var addr string
	var asJSON bool
	var help bool

	flag.StringVar(&region, "region", "", "Print merchant status for a region (e.g. europe)")
	flag.StringVar(&region, "r", "", "Print merchant status for a region (short form)")
	flag.BoolVar(&serve, "serve", false, "Run HTTP server mode")
	flag.StringVar(&addr, "addr", ":8080", "Address to bind in server mode")
	flag.BoolVar(&asJSON, "json", false, "Print records as JSON instead of a table")
	flag.BoolVar(&help, "help", false, "Show help message")
	flag.BoolVar(&help, "h", false, "Show help message")
	flag.Parse()

	if help {
		showHelp()
		return
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("failed to load .env: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	ctx := context.Background()
	shutdown, err := telemetry.Setup(ctx, cfg.Logging, os.Stdout)
	if err != nil {
		log.Fatalf("failed to set up logging: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			log.Printf("telemetry shutdown: %v", err)
		}
	}()

	if serve {
		if err := runServer(ctx, cfg, addr); err != nil {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	if region == "" {
		fmt.Println("Error: region is required (or use -serve for web mode)")
		showHelp()
		os.Exit(1)
	}

	if err := run(ctx, cfg, region, asJSON, os.Stdout); err != nil {
		slog.Error("failed to load region", "region", region, "error", err)
		os.Exit(1)
	}
}

type merchantBackend interface {
	Fetch(ctx context.Context, region string) (json.RawMessage, error)
	FetchMerchant(ctx context.Context, merchantID string) (json.RawMessage, error)
	Health(ctx context.Context) error
}

// app is everything both the CLI and the server need.
type app struct {
	backend merchantBackend
	dir     merchants.Directory
	store   cache.Cache
	regions *regioncache.Cache
	svc     *refresh.Service
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	var b merchantBackend = backend.Mock{}
	if !cfg.Mocks.Enable {
		client, err := backend.NewClient(cfg.Backend)
		if err != nil {
			return nil, fmt.Errorf("failed to create backend client: %w", err)
		}
		b = client
	}

	dir, err := merchants.LoadDirectory(cfg.Directory.File)
	if err != nil {
		return nil, fmt.Errorf("failed to load merchant directory: %w", err)
	}

	store, err := cache.MakeCache(ctx, cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}

	loc, err := cfg.Refresh.Location()
	if err != nil {
		return nil, err
	}
	rc := regioncache.New(store, regioncache.Schedule{Hour: cfg.Refresh.Hour, Location: loc})

	regions := lo.Map(cfg.Dashboard.Regions, func(r string, _ int) string { return refresh.Normalize(r) })
	return &app{
		backend: b,
		dir:     dir,
		store:   store,
		regions: rc,
		svc:     refresh.New(b, rc, dir, regions),
	}, nil
}

func run(ctx context.Context, cfg *config.Config, region string, asJSON bool, out io.Writer) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.svc.Wait()

	st, err := a.svc.Load(ctx, refresh.Normalize(region))
	if err != nil {
		return err
	}
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(st.Records)
	}
	return printTable(out, st.Records)
}

func printTable(out io.Writer, records []merchants.Status) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MERCHANT\tACCOUNT\tSTATUS\tAPPROVED\tDISAPPROVED\tPENDING\tEXPIRED\tTOTAL\tISSUES")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\n",
			r.Name, r.AccountID, r.State, r.Approved, r.Disapproved, r.Pending, r.Expiring, r.Total(),
			len(r.AccountIssues)+len(r.ItemIssues))
	}
	return tw.Flush()
}

func showHelp() {
	fmt.Println("gmcstatus - Merchant Center status dashboard")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  gmcstatus -serve [-addr :8080]")
	fmt.Println("  gmcstatus -region <region> [-json]")
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("Configuration is read from the environment and an optional .env file.")
	fmt.Println("Set MOCKS_ENABLE=true to use canned data instead of the backend.")
}
