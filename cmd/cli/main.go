package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dvloznov/vault-ledger/internal/app"
	"github.com/dvloznov/vault-ledger/internal/config"
	"github.com/dvloznov/vault-ledger/internal/importer"
	"github.com/dvloznov/vault-ledger/internal/ledger"
	"github.com/dvloznov/vault-ledger/internal/logger"
	"github.com/dvloznov/vault-ledger/internal/notionsync"
	"github.com/dvloznov/vault-ledger/internal/statement"
	"github.com/dvloznov/vault-ledger/internal/vaults"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// env bundles what every command needs.
type env struct {
	ctx     context.Context
	log     zerolog.Logger
	cfg     *config.Config
	backend app.Backend
	vaults  *vaults.Service
}

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	commands := map[string]func(*env, []string){
		"create-vault": runCreateVault,
		"add":          runAdd,
		"commit":       runCommit,
		"list":         runList,
		"balance":      runBalance,
		"budget":       runBudget,
		"summary":      runSummary,
		"import":       runImport,
		"upload":       runUpload,
		"sync-notion":  runSyncNotion,
	}

	switch os.Args[1] {
	case "help", "-h", "--help":
		printUsage()
		return
	}

	run, ok := commands[os.Args[1]]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	e := setup()
	defer e.backend.Close()
	run(e, os.Args[2:])
}

func setup() *env {
	cfg := config.Load()
	bootLog := logger.New()
	if err := cfg.Validate(); err != nil {
		bootLog.Fatal().Err(err).Msg("Invalid configuration")
	}

	// The CLI always logs to the console
	log, err := logger.Configure(logger.Options{Level: cfg.LogLevel, Format: "console", Out: os.Stderr})
	if err != nil {
		bootLog.Fatal().Err(err).Msg("Failed to configure logger")
	}
	if cfg.Store == config.StoreMemory {
		log.Warn().Msg("STORE=memory: nothing will be kept after this command exits")
	}

	ctx := logger.WithContext(context.Background(), log)
	backend, err := app.OpenBackend(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}

	return &env{
		ctx:     ctx,
		log:     log,
		cfg:     cfg,
		backend: backend,
		vaults:  vaults.NewService(backend, backend),
	}
}

func printUsage() {
	fmt.Println("Vault Ledger CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  create-vault  Create a vault and print its token")
	fmt.Println("  add           Add a transaction")
	fmt.Println("  commit        Commit a transaction by code")
	fmt.Println("  list          List the transactions of a vault")
	fmt.Println("  balance       Print the committed balance")
	fmt.Println("  budget        Set or remove a category budget")
	fmt.Println("  summary       Print the budget summary")
	fmt.Println("  import        Import a CSV statement (local path or gs:// URI)")
	fmt.Println("  upload        Upload a CSV statement to GCS")
	fmt.Println("  sync-notion   Mirror a vault's transactions into Notion")
	fmt.Println("  help          Show this help message")
	fmt.Println("\nVault commands take -token or read VAULT_TOKEN.")
	fmt.Println("Run 'cli <command> -h' for more information on a command.")
}

// vaultFlag registers -token on fs and returns a resolver for it.
func vaultFlag(fs *flag.FlagSet) func(e *env) string {
	token := fs.String("token", os.Getenv("VAULT_TOKEN"), "Vault token (or set VAULT_TOKEN env)")
	return func(e *env) string {
		if *token == "" {
			e.log.Fatal().Msg("Error: -token is required")
		}
		id, err := e.vaults.ResolveToken(e.ctx, *token)
		if err != nil {
			e.log.Fatal().Err(err).Msg("Unknown vault token")
		}
		return id
	}
}

func runCreateVault(e *env, args []string) {
	fs := flag.NewFlagSet("create-vault", flag.ExitOnError)
	prompt := fs.String("prompt", "", "Custom context for the classifier")
	fs.Parse(args)

	v, err := e.vaults.Create(e.ctx, *prompt)
	if err != nil {
		e.log.Fatal().Err(err).Msg("Failed to create vault")
	}
	fmt.Printf("Vault: %s\nToken: %s\n", v.ID(), v.Token())
}

func runAdd(e *env, args []string) {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	vaultID := vaultFlag(fs)
	amount := fs.String("amount", "", "Amount, a non-negative decimal")
	kind := fs.String("kind", "expense", "income or expense")
	desc := fs.String("desc", "", "Description")
	category := fs.String("category", "", "Category id or code")
	date := fs.String("date", "", "Date in YYYY-MM-DD format (defaults to today)")
	commit := fs.Bool("commit", false, "Commit immediately")
	fs.Parse(args)

	id := vaultID(e)
	amt, err := decimal.NewFromString(*amount)
	if err != nil {
		e.log.Fatal().Err(err).Msg("Error: invalid -amount")
	}
	k, err := ledger.ParseKind(*kind)
	if err != nil {
		e.log.Fatal().Err(err).Msg("Error: invalid -kind")
	}

	draft := vaults.Draft{Amount: amt, Kind: k, Description: *desc, Date: time.Now()}
	if *date != "" {
		if draft.Date, err = time.Parse("2006-01-02", *date); err != nil {
			e.log.Fatal().Err(err).Msg("Error: invalid -date format, expected YYYY-MM-DD")
		}
	}
	if *category != "" {
		draft.CategoryID = resolveCategory(e, *category).ID
	}

	rec, err := e.vaults.AddTransaction(e.ctx, id, draft, *commit)
	if err != nil {
		e.log.Fatal().Err(err).Msg("Failed to add transaction")
	}
	fmt.Printf("Added %s (committed: %t)\n", rec.Code, rec.IsCommitted)
}

func runCommit(e *env, args []string) {
	fs := flag.NewFlagSet("commit", flag.ExitOnError)
	vaultID := vaultFlag(fs)
	code := fs.String("code", "", "Transaction code")
	fs.Parse(args)

	id := vaultID(e)
	err := e.vaults.WithVault(e.ctx, id, func(v *ledger.Vault) error {
		tx, ok := v.FindTransactionByCode(*code)
		if !ok {
			return ledger.ErrNotFound
		}
		return v.CommitTransaction(tx.ID)
	})
	if err != nil {
		e.log.Fatal().Err(err).Str("code", *code).Msg("Failed to commit transaction")
	}
	fmt.Printf("Committed %s\n", strings.ToUpper(*code))
}

func runList(e *env, args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	vaultID := vaultFlag(fs)
	fs.Parse(args)

	id := vaultID(e)
	err := e.vaults.View(e.ctx, id, func(v *ledger.Vault) error {
		txs := v.Transactions()
		fmt.Printf("\n=== Transactions (%d) ===\n", len(txs))
		for _, tx := range txs {
			state := "pending"
			if tx.IsCommitted {
				state = "committed"
			}
			fmt.Printf("%s  %s  %-7s %10s  %-14s %-9s %s\n",
				tx.Code, tx.Date.Format("2006-01-02"), tx.Kind, tx.Amount.StringFixed(2), tx.CategoryID, state, tx.Description)
		}
		return nil
	})
	if err != nil {
		e.log.Fatal().Err(err).Msg("Failed to list transactions")
	}
}

func runBalance(e *env, args []string) {
	fs := flag.NewFlagSet("balance", flag.ExitOnError)
	vaultID := vaultFlag(fs)
	fs.Parse(args)

	id := vaultID(e)
	err := e.vaults.View(e.ctx, id, func(v *ledger.Vault) error {
		fmt.Printf("Balance: %s\n", v.Balance().StringFixed(2))
		return nil
	})
	if err != nil {
		e.log.Fatal().Err(err).Msg("Failed to compute balance")
	}
}

func runBudget(e *env, args []string) {
	fs := flag.NewFlagSet("budget", flag.ExitOnError)
	vaultID := vaultFlag(fs)
	category := fs.String("category", "", "Category id or code")
	amount := fs.String("amount", "", "Budget amount")
	remove := fs.Bool("remove", false, "Remove the budget instead of setting it")
	fs.Parse(args)

	id := vaultID(e)
	cat := resolveCategory(e, *category)

	var amt decimal.Decimal
	if !*remove {
		var err error
		if amt, err = decimal.NewFromString(*amount); err != nil {
			e.log.Fatal().Err(err).Msg("Error: invalid -amount")
		}
	}

	err := e.vaults.WithVault(e.ctx, id, func(v *ledger.Vault) error {
		if *remove {
			return v.RemoveBudget(cat.ID)
		}
		return v.SetBudget(cat, amt)
	})
	if err != nil {
		e.log.Fatal().Err(err).Msg("Failed to update budget")
	}
	if *remove {
		fmt.Printf("Removed budget for %s\n", cat.Name)
	} else {
		fmt.Printf("Budget for %s set to %s\n", cat.Name, amt.StringFixed(2))
	}
}

func runSummary(e *env, args []string) {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	vaultID := vaultFlag(fs)
	month := fs.Int("month", 0, "Month 1-12 (0 for all)")
	year := fs.Int("year", 0, "Year (0 for all)")
	fs.Parse(args)

	if *month < 0 || *month > 12 {
		e.log.Fatal().Int("month", *month).Msg("Error: -month must be between 1 and 12")
	}

	id := vaultID(e)
	err := e.vaults.View(e.ctx, id, func(v *ledger.Vault) error {
		rows := v.BudgetsSummary(ledger.Period{Month: time.Month(*month), Year: *year})
		fmt.Println("\n=== Budgets ===")
		for _, r := range rows {
			fmt.Printf("%-16s %10s / %10s  %6s%%\n",
				r.Category.Name, r.Spent.StringFixed(2), r.Budgeted.StringFixed(2), r.PercentageUsed.StringFixed(1))
		}
		fmt.Printf("\nTotal budgeted: %s\n", v.TotalBudgetedAmount().StringFixed(2))
		fmt.Printf("Total spent:    %s (%s%%)\n", v.TotalSpentAmount().StringFixed(2), v.PercentageTotalBudgetedAmount().StringFixed(1))
		return nil
	})
	if err != nil {
		e.log.Fatal().Err(err).Msg("Failed to summarize budgets")
	}
}

func runImport(e *env, args []string) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	vaultID := vaultFlag(fs)
	uri := fs.String("file", "", "Local CSV path or gs:// URI")
	fs.Parse(args)

	if *uri == "" {
		e.log.Fatal().Msg("Error: -file is required")
	}
	id := vaultID(e)

	ctx, cancel := context.WithTimeout(e.ctx, 10*time.Minute)
	defer cancel()

	pipeline := app.NewPipeline(e.cfg, app.NewClassifier(ctx, e.cfg))
	im := importer.New(e.vaults, e.backend, pipeline, statement.NewFetcher())

	report, err := im.ImportURI(ctx, id, *uri)
	if err != nil {
		e.log.Fatal().Err(err).Msg("Import failed")
	}
	fmt.Printf("Imported %d transactions from %s (%d categorized, %d uncategorized, %d failed chunks)\n",
		report.Imported, statement.FileName(*uri), report.Categorized, report.Uncategorized, report.FailedChunks)
}

func runUpload(e *env, args []string) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	bucketName := fs.String("bucket", e.cfg.StatementBucket, "GCS bucket name (or set STATEMENT_BUCKET env)")
	objectName := fs.String("object", "", "GCS object name (defaults to filename)")
	filePath := fs.String("file", "", "Path to local CSV file")
	fs.Parse(args)

	if *bucketName == "" || *filePath == "" {
		e.log.Fatal().Msg("Usage: cli upload -bucket NAME -file PATH")
	}
	if *objectName == "" {
		*objectName = filepath.Base(*filePath)
	}

	f, err := os.Open(*filePath)
	if err != nil {
		e.log.Fatal().Err(err).Msg("Failed to open file")
	}
	defer f.Close()

	uri, err := statement.Upload(e.ctx, *bucketName, *objectName, f)
	if err != nil {
		e.log.Fatal().Err(err).Msg("Upload failed")
	}
	fmt.Printf("Uploaded %s to %s\n", *filePath, uri)
}

func runSyncNotion(e *env, args []string) {
	fs := flag.NewFlagSet("sync-notion", flag.ExitOnError)
	vaultID := vaultFlag(fs)
	notionToken := fs.String("notion-token", e.cfg.NotionToken, "Notion API token (or set NOTION_TOKEN env)")
	notionDBID := fs.String("notion-db-id", e.cfg.NotionDatabaseID, "Notion database ID (or set NOTION_DATABASE_ID env)")
	dryRun := fs.Bool("dry-run", false, "Dry run mode - preview changes without syncing")
	fs.Parse(args)

	if *notionToken == "" || *notionDBID == "" {
		e.log.Fatal().Msg("Error: -notion-token and -notion-db-id are required")
	}
	id := vaultID(e)

	// Create context with timeout so CLI doesn't hang
	ctx, cancel := context.WithTimeout(e.ctx, 10*time.Minute)
	defer cancel()

	report, err := notionsync.SyncVault(ctx, notionsync.ServiceReader{Vaults: e.vaults},
		notionsync.NewNotionClient(*notionToken), *notionDBID, id, *dryRun)
	if err != nil {
		e.log.Fatal().Err(err).Msg("Sync failed")
	}
	fmt.Printf("Sync completed: %d created, %d updated, %d archived (dry run: %t)\n",
		report.Created, report.Updated, report.Archived, report.DryRun)
}

func resolveCategory(e *env, idOrCode string) ledger.Category {
	if idOrCode == "" {
		e.log.Fatal().Msg("Error: -category is required")
	}
	c, err := e.backend.FindCategoryByID(e.ctx, idOrCode)
	if err == nil {
		return c
	}
	c, err = e.backend.FindCategoryByCode(e.ctx, idOrCode)
	if err != nil {
		e.log.Fatal().Err(err).Str("category", idOrCode).Msg("Unknown category")
	}
	return c
}
