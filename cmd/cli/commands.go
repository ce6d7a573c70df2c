package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/fintrack/internal/core"
	"github.com/JonMunkholm/fintrack/internal/plan"
	"github.com/JonMunkholm/fintrack/internal/store"
)

var previewCmd = &cobra.Command{
	Use:   "preview <file>",
	Short: "Show detected columns and sample rows of a statement",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, err := readImportFile(args[0])
		if err != nil {
			return err
		}
		res, err := newService(store.NewMemory()).PreviewImport(cmd.Context(), file)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s: %d rows\n\n", file.Name, res.TotalRows)

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "HEADER\tFIELD\tCONFIDENCE")
		for _, h := range res.Headers {
			s, ok := res.DetectedColumns[h]
			if !ok {
				continue
			}
			fmt.Fprintf(tw, "%s\t%s\t%d%%\n", h, s.SuggestedField, s.Confidence)
		}
		tw.Flush()

		fmt.Fprintln(out)
		tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, strings.Join(res.Headers, "\t"))
		for _, row := range res.SampleRows {
			cells := make([]string, len(res.Headers))
			for i, h := range res.Headers {
				cells[i] = row[h]
			}
			fmt.Fprintln(tw, strings.Join(cells, "\t"))
		}
		return tw.Flush()
	},
}

var importFlags struct {
	account   string
	mappings  map[string]string
	auto      bool
	locale    core.Locale
	skip      int
	showFails bool
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a statement into an account",
	Long: `Import a statement into an account.

Columns are mapped with --map Header=Field (repeatable). With --auto, every
header the detector suggests with at least 50% confidence is mapped to its
suggested field and --map entries override the suggestions.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		file, err := readImportFile(args[0])
		if err != nil {
			return err
		}

		be, err := openBackend(ctx)
		if err != nil {
			return err
		}
		defer be.close()

		accountID, err := resolveAccount(ctx, be.Store, importFlags.account)
		if err != nil {
			return err
		}

		svc := newService(be.Store)
		mappings, err := buildMappings(ctx, svc, file)
		if err != nil {
			return err
		}

		outcome, err := svc.ConfirmImport(ctx, file, core.ConfirmRequest{
			ColumnMappings: mappings,
			Locale:         importFlags.locale,
			RowsToSkip:     importFlags.skip,
			AccountID:      accountID,
		})
		if err != nil {
			return err
		}
		printOutcome(cmd, file.Name, outcome, importFlags.showFails)
		return nil
	},
}

// buildMappings merges detector suggestions (with --auto) and --map flags.
func buildMappings(ctx context.Context, svc *core.Service, file core.ImportFile) (core.ColumnMappings, error) {
	mappings := make(core.ColumnMappings)
	if importFlags.auto {
		preview, err := svc.PreviewImport(ctx, file)
		if err != nil {
			return nil, err
		}
		taken := make(map[core.CanonicalField]bool)
		for _, h := range preview.Headers {
			s, ok := preview.DetectedColumns[h]
			if !ok || s.SuggestedField == core.FieldUnknown || taken[s.SuggestedField] {
				continue
			}
			mappings[h] = s.SuggestedField
			taken[s.SuggestedField] = true
		}
	}
	for header, name := range importFlags.mappings {
		field, err := core.ParseCanonicalField(name)
		if err != nil {
			return nil, err
		}
		for h, f := range mappings {
			if f == field && h != header {
				delete(mappings, h)
			}
		}
		mappings[header] = field
	}
	logger.Debug("column mappings", "mappings", mappings)
	return mappings, nil
}

var planCmd = &cobra.Command{
	Use:   "plan <plan.yaml>",
	Short: "Run a YAML plan of statement imports in order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		p, err := plan.Load(args[0])
		if err != nil {
			return err
		}

		be, err := openBackend(ctx)
		if err != nil {
			return err
		}
		defer be.close()

		resolve := func(ctx context.Context, ref string) (uuid.UUID, error) {
			return resolveAccount(ctx, be.Store, ref)
		}
		results, err := p.Run(ctx, newService(be.Store), resolve, func(r plan.Result) {
			if r.Err != nil {
				logger.Error("import failed", "file", r.Entry.File, "error", r.Err)
				return
			}
			printOutcome(cmd, r.Entry.File, r.Outcome, false)
		})
		if err != nil {
			return err
		}

		var failed int
		for _, r := range results {
			if r.Err != nil {
				failed++
			}
		}
		logger.Info("plan finished", "imports", len(results), "failed", failed)
		if failed > 0 {
			return fmt.Errorf("%d of %d imports failed", failed, len(results))
		}
		return nil
	},
}

var materializeCmd = &cobra.Command{
	Use:   "materialize",
	Short: "Create due instances of every recurring template once",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		be, err := openBackend(cmd.Context())
		if err != nil {
			return err
		}
		defer be.close()

		summary, err := newService(be.Store).Materializer().RunOnce(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "templates: %d  created: %d  failed: %d\n",
			summary.Templates, summary.Created, summary.Failed)
		if summary.Failed > 0 {
			return fmt.Errorf("%d templates failed", summary.Failed)
		}
		return nil
	},
}

var accountCurrency string

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "List or create accounts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		be, err := openBackend(cmd.Context())
		if err != nil {
			return err
		}
		defer be.close()

		accounts, err := be.ListAccounts(cmd.Context())
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tCURRENCY")
		for _, a := range accounts {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", a.ID, a.Name, a.Currency)
		}
		return tw.Flush()
	},
}

var accountsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		be, err := openBackend(cmd.Context())
		if err != nil {
			return err
		}
		defer be.close()

		acc, err := be.CreateAccount(cmd.Context(), args[0], accountCurrency)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), acc.ID)
		return nil
	},
}

func init() {
	f := importCmd.Flags()
	f.StringVarP(&importFlags.account, "account", "a", "", "Account id or name")
	f.StringToStringVarP(&importFlags.mappings, "map", "m", nil, "Column mapping Header=Field (repeatable)")
	f.BoolVar(&importFlags.auto, "auto", false, "Map columns from detector suggestions")
	f.StringVar(&importFlags.locale.DateFormat, "date-format", core.DefaultDateFormat, "Date format, e.g. dd/MM/yyyy")
	f.StringVar(&importFlags.locale.DecimalSeparator, "decimal", ".", "Decimal separator")
	f.StringVar(&importFlags.locale.ThousandsSeparator, "thousands", "", "Thousands separator")
	f.IntVar(&importFlags.skip, "skip", 0, "Data rows to skip after the header")
	f.BoolVar(&importFlags.showFails, "show-failures", false, "Print every failed row")
	importCmd.MarkFlagRequired("account")

	accountsCreateCmd.Flags().StringVar(&accountCurrency, "currency", core.DefaultCurrency, "ISO 4217 currency code")
	accountsCmd.AddCommand(accountsCreateCmd)
}

func readImportFile(path string) (core.ImportFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return core.ImportFile{}, err
	}
	return core.ImportFile{Name: filepath.Base(path), Data: data}, nil
}

// resolveAccount accepts an account id or a name. Dry runs create a
// throwaway account for unknown names.
func resolveAccount(ctx context.Context, st store.Store, ref string) (uuid.UUID, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return id, nil
	}
	accounts, err := st.ListAccounts(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	for _, a := range accounts {
		if strings.EqualFold(a.Name, ref) {
			return a.ID, nil
		}
	}
	if _, ok := st.(*store.Memory); ok {
		acc, err := st.CreateAccount(ctx, ref, core.DefaultCurrency)
		return acc.ID, err
	}
	return uuid.Nil, fmt.Errorf("account %q: %w", ref, core.ErrAccountNotFound)
}

func printOutcome(cmd *cobra.Command, name string, o *core.ImportOutcome, showFailures bool) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d imported, %d duplicates, %d failed\n",
		name, o.SuccessCount, o.DuplicateCount, o.FailureCount)

	if !showFailures {
		return
	}
	for _, f := range o.Failures {
		keys := make([]string, 0, len(f.RawRow))
		for k := range f.RawRow {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		cells := make([]string, len(keys))
		for i, k := range keys {
			cells[i] = k + "=" + f.RawRow[k]
		}
		fmt.Fprintf(out, "  row %d: %s [%s]\n", f.RowNumber, f.Message, strings.Join(cells, ", "))
	}
}
