package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jask/ledgersync/internal/category"
	"github.com/jask/ledgersync/internal/database/repository"
	"github.com/jask/ledgersync/internal/service"
)

const dateFlagLayout = "2006-01-02"

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		// bootstrap already migrated; report where
		fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("✓")+" schema up to date at "+deps.cfg.Database.Path)
		return nil
	},
}

var linkCmd = &cobra.Command{
	Use:   "link <institution>",
	Short: "Link an institution using a public token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := deps.requireClient(); err != nil {
			return err
		}
		name := args[0]
		token, _ := cmd.Flags().GetString("token")
		sandbox, _ := cmd.Flags().GetString("sandbox-institution")
		switch {
		case token != "":
		case sandbox != "" && deps.plaid != nil:
			t, err := deps.plaid.SandboxPublicToken(cmd.Context(), sandbox)
			if err != nil {
				return err
			}
			token = t
		case offline:
			token = "public-" + strings.ToLower(strings.ReplaceAll(name, " ", "-"))
		default:
			return errors.New("a public token is required (--token, or --sandbox-institution in sandbox)")
		}
		res := deps.sync.LinkAccount(cmd.Context(), token, name)
		renderLinkResult(cmd.OutOrStdout(), res)
		if !res.Success {
			return errors.New("link failed")
		}
		return nil
	},
}

var unlinkCmd = &cobra.Command{
	Use:   "unlink <institution>",
	Short: "Forget an institution and its accounts; transactions are kept",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := deps.sync.UnlinkAccount(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("✓")+" unlinked "+args[0])
		return nil
	},
}

var institutionsCmd = &cobra.Command{
	Use:   "institutions",
	Short: "List linked institutions, accounts and last sync times",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := deps.sync.SyncStatus(cmd.Context())
		if err != nil {
			return err
		}
		accounts, err := deps.sync.Accounts.List(cmd.Context(), true)
		if err != nil {
			return err
		}
		renderInstitutions(cmd.OutOrStdout(), st, accounts)
		return nil
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync [institution]",
	Short: "Pull new transactions from linked institutions",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := deps.requireClient(); err != nil {
			return err
		}
		full, _ := cmd.Flags().GetBool("full")
		force, _ := cmd.Flags().GetBool("force")
		ctx := cmd.Context()

		var res service.SyncResult
		switch {
		case len(args) == 1:
			if !full && !force {
				ok, wait, err := deps.sync.CanSync(ctx, args[0])
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), warnStyle.Render(fmt.Sprintf("%s was synced recently; retry in %s or pass --force", args[0], wait.Round(time.Second))))
					return nil
				}
			}
			res = deps.sync.SyncAccount(ctx, args[0], full)
		case full || force:
			res = deps.sync.SyncAll(ctx, full)
		default:
			res = deps.sync.SyncDue(ctx)
		}
		renderSyncResult(cmd.OutOrStdout(), res)
		if !res.Success {
			return fmt.Errorf("sync finished with %d error(s)", len(res.Errors))
		}
		return nil
	},
}

var categorizeCmd = &cobra.Command{
	Use:   "categorize [transaction-id...]",
	Short: "Categorize transactions with the LLM",
	RunE: func(cmd *cobra.Command, args []string) error {
		if deps.txns.Categorizer == nil {
			return errors.New("no llm provider configured: set llm.api_key (or GEMINI_API_KEY) or pass --offline")
		}
		force, _ := cmd.Flags().GetBool("force")
		ctx := cmd.Context()
		if len(args) == 1 {
			res := deps.txns.CategorizeTransaction(ctx, args[0])
			renderCategorization(cmd.OutOrStdout(), res)
			if !res.Success {
				return errors.New("categorization failed")
			}
			return nil
		}
		var res service.BulkResult
		if len(args) > 1 {
			res = deps.txns.CategorizeIDs(ctx, args)
		} else {
			res = deps.txns.BulkCategorize(ctx, force)
		}
		renderBulk(cmd.OutOrStdout(), res)
		return nil
	},
}

var transactionsCmd = &cobra.Command{
	Use:   "transactions",
	Short: "List transactions matching filters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		f, err := filtersFromFlags(cmd)
		if err != nil {
			return err
		}
		rows, err := deps.txns.GetTransactions(cmd.Context(), f)
		if err != nil {
			return err
		}
		renderTransactions(cmd.OutOrStdout(), rows)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show spending, income and category totals",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		from, err := dateFlag(cmd, "from")
		if err != nil {
			return err
		}
		to, err := dateFlag(cmd, "to")
		if err != nil {
			return err
		}
		st, err := deps.txns.GetSummaryStats(cmd.Context(), service.DateRange{Start: from, End: to})
		if err != nil {
			return err
		}
		db, err := deps.maint.Stats(cmd.Context())
		if err != nil {
			return err
		}
		renderSummary(cmd.OutOrStdout(), st, db)
		return nil
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove pending transactions that never posted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		days, _ := cmd.Flags().GetInt("pending-days")
		res, err := deps.maint.Cleanup(cmd.Context(), service.CleanupOptions{RemovePendingOlderThanDays: days})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s removed %d stale pending transaction(s)\n", okStyle.Render("✓"), res.PendingRemoved)
		return nil
	},
}

var setCategoryCmd = &cobra.Command{
	Use:   "set-category <transaction-id> [category]",
	Short: "Override a transaction's category, or clear the override",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		unset, _ := cmd.Flags().GetBool("clear")
		ctx := cmd.Context()
		switch {
		case unset:
			if err := deps.txns.ClearManualCategory(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("✓")+" cleared manual category on "+args[0])
		case len(args) == 2:
			if err := deps.txns.SetManualCategory(ctx, args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s → %s\n", okStyle.Render("✓"), args[0], titleStyle.Render(args[1]))
		default:
			return errors.New("a category is required unless --clear is set")
		}
		return nil
	},
}

var duplicatesCmd = &cobra.Command{
	Use:   "duplicates <transaction-id>",
	Short: "Show likely duplicates and transfer counterparts of a transaction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		t, err := deps.txns.Transactions.ReadByID(ctx, args[0])
		if err != nil {
			return err
		}
		dups, err := deps.txns.FindDuplicates(ctx, t.ID)
		if err != nil {
			return err
		}
		transfers, err := deps.txns.FindTransfers(ctx, t)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, titleStyle.Render("Possible duplicates"))
		renderTransactions(out, dups)
		fmt.Fprintln(out, titleStyle.Render("Possible transfer counterparts"))
		renderTransactions(out, transfers)
		return nil
	},
}

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "Print the category taxonomy",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		renderTaxonomy(cmd.OutOrStdout(), category.Default())
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete all institutions, accounts and transactions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			return errors.New("refusing to reset without --yes")
		}
		if err := deps.maint.Reset(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("✓")+" all data removed")
		return nil
	},
}

func registerCommands(root *cobra.Command) {
	linkCmd.Flags().String("token", "", "Public token from the link flow")
	linkCmd.Flags().String("sandbox-institution", "", "Create a sandbox public token for this institution id (e.g. ins_109508)")

	syncCmd.Flags().Bool("full", false, "Ignore stored cursors and pull full history")
	syncCmd.Flags().Bool("force", false, "Sync even inside the minimum interval")

	categorizeCmd.Flags().Bool("force", false, "Recategorize transactions that already have an AI category")

	addFilterFlags(transactionsCmd)
	addDateFlags(statsCmd)

	cleanupCmd.Flags().Int("pending-days", 30, "Remove pending rows older than this many days")

	setCategoryCmd.Flags().Bool("clear", false, "Remove the manual override")

	resetCmd.Flags().Bool("yes", false, "Confirm deleting everything")

	root.AddCommand(migrateCmd, linkCmd, unlinkCmd, institutionsCmd, syncCmd, categorizeCmd,
		transactionsCmd, statsCmd, cleanupCmd, setCategoryCmd, duplicatesCmd, categoriesCmd, resetCmd)
}

func addDateFlags(c *cobra.Command) {
	c.Flags().String("from", "", "Start date (YYYY-MM-DD)")
	c.Flags().String("to", "", "End date (YYYY-MM-DD)")
}

func addFilterFlags(c *cobra.Command) {
	addDateFlags(c)
	c.Flags().StringSlice("bank", nil, "Institution names")
	c.Flags().StringSlice("category", nil, "Categories (AI, manual, or part of the provider category)")
	c.Flags().Float64("min", 0, "Minimum amount")
	c.Flags().Float64("max", 0, "Maximum amount")
	c.Flags().Bool("pending", false, "Only pending (use --pending=false for posted only)")
	c.Flags().Bool("uncategorized", false, "Only rows with no category at all")
	c.Flags().Int("limit", 50, "Maximum rows (0 for all)")
}

func filtersFromFlags(cmd *cobra.Command) (repository.TransactionFilters, error) {
	var f repository.TransactionFilters
	var err error
	if f.DateStart, err = dateFlag(cmd, "from"); err != nil {
		return f, err
	}
	if f.DateEnd, err = dateFlag(cmd, "to"); err != nil {
		return f, err
	}
	flags := cmd.Flags()
	f.Banks, _ = flags.GetStringSlice("bank")
	f.Categories, _ = flags.GetStringSlice("category")
	if flags.Changed("min") {
		v, _ := flags.GetFloat64("min")
		f.AmountMin = &v
	}
	if flags.Changed("max") {
		v, _ := flags.GetFloat64("max")
		f.AmountMax = &v
	}
	if f.AmountMin != nil && f.AmountMax != nil && *f.AmountMin > *f.AmountMax {
		return f, fmt.Errorf("--min %.2f is greater than --max %.2f", *f.AmountMin, *f.AmountMax)
	}
	if flags.Changed("pending") {
		v, _ := flags.GetBool("pending")
		f.Pending = &v
	}
	f.Uncategorized, _ = flags.GetBool("uncategorized")
	f.Limit, _ = flags.GetInt("limit")
	return f, nil
}

func dateFlag(cmd *cobra.Command, name string) (*time.Time, error) {
	raw, _ := cmd.Flags().GetString(name)
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	t, err := time.Parse(dateFlagLayout, raw)
	if err != nil {
		return nil, fmt.Errorf("--%s: expected YYYY-MM-DD, got %q", name, raw)
	}
	return &t, nil
}
