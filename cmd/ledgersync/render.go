package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/jask/ledgersync/internal/category"
	"github.com/jask/ledgersync/internal/database/repository"
	"github.com/jask/ledgersync/internal/service"
)

// Catppuccin Mocha subset.
const (
	colorRed      lipgloss.Color = "#f38ba8"
	colorPeach    lipgloss.Color = "#fab387"
	colorGreen    lipgloss.Color = "#a6e3a1"
	colorBlue     lipgloss.Color = "#89b4fa"
	colorLavender lipgloss.Color = "#b4befe"
	colorText     lipgloss.Color = "#cdd6f4"
	colorOverlay1 lipgloss.Color = "#7f849c"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorLavender)
	labelStyle   = lipgloss.NewStyle().Foreground(colorOverlay1)
	valueStyle   = lipgloss.NewStyle().Foreground(colorText)
	okStyle      = lipgloss.NewStyle().Bold(true).Foreground(colorGreen)
	warnStyle    = lipgloss.NewStyle().Foreground(colorPeach)
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorRed)
	debitStyle   = lipgloss.NewStyle().Foreground(colorRed)
	creditStyle  = lipgloss.NewStyle().Foreground(colorGreen)
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorBlue)
	sectionStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorOverlay1).Padding(0, 1)
)

func status(ok bool) string {
	if ok {
		return okStyle.Render("ok")
	}
	return errorStyle.Render("failed")
}

func kv(label string, value any) string {
	return labelStyle.Render(fmt.Sprintf("%-14s", label)) + valueStyle.Render(fmt.Sprint(value))
}

func renderSyncResult(w io.Writer, r service.SyncResult) {
	lines := []string{
		titleStyle.Render("Sync ") + status(r.Success),
		kv("run", r.RunID),
		kv("new", r.NewCount),
		kv("updated", r.UpdatedCount),
		kv("removed", r.RemovedCount),
	}
	names := make([]string, 0, len(r.Institutions))
	for name := range r.Institutions {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ir := r.Institutions[name]
		var detail string
		switch {
		case ir.Skipped:
			detail = warnStyle.Render("skipped")
		case ir.Error != "":
			detail = errorStyle.Render(ir.Error)
		default:
			detail = fmt.Sprintf("%d new, %d updated, %d removed over %d page(s)", ir.New, ir.Updated, ir.Removed, ir.Pages)
			if ir.Truncated {
				detail += " " + warnStyle.Render("(incomplete: page limit reached, sync again)")
			}
		}
		lines = append(lines, kv(name, detail))
	}
	for _, msg := range r.Info {
		lines = append(lines, warnStyle.Render("• "+msg))
	}
	for _, msg := range r.Errors {
		lines = append(lines, errorStyle.Render("✗ "+msg))
	}
	fmt.Fprintln(w, sectionStyle.Render(strings.Join(lines, "\n")))
}

func renderLinkResult(w io.Writer, r service.LinkResult) {
	if !r.Success {
		fmt.Fprintln(w, errorStyle.Render(r.Error))
		return
	}
	fmt.Fprintf(w, "%s linked %s with %d account(s)\n", okStyle.Render("✓"), titleStyle.Render(r.InstitutionName), r.AccountCount)
}

func renderCategorization(w io.Writer, r service.CategorizationResult) {
	if !r.Success {
		fmt.Fprintf(w, "%s %s: %s\n", errorStyle.Render("✗"), r.TransactionID, r.Error)
		return
	}
	fmt.Fprintf(w, "%s %s → %s %s\n", okStyle.Render("✓"), r.TransactionID, titleStyle.Render(r.Category), labelStyle.Render(r.Reasoning))
}

func renderBulk(w io.Writer, r service.BulkResult) {
	fmt.Fprintf(w, "%s %d categorized, %d failed\n", titleStyle.Render("Categorize"), r.SuccessCount, r.FailCount)
	for _, e := range r.Errors {
		fmt.Fprintln(w, errorStyle.Render("✗ "+e))
	}
}

func renderAmount(amount float64) string {
	s := fmt.Sprintf("%10.2f", amount)
	if amount < 0 {
		return creditStyle.Render(s)
	}
	return debitStyle.Render(s)
}

func renderTransactions(w io.Writer, rows []repository.Transaction) {
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%-10s  %-10s  %-32s  %-22s  %s", "date", "amount", "name", "category", "bank")))
	for _, t := range rows {
		name := t.Name
		if t.Pending {
			name = "(pending) " + name
		}
		fmt.Fprintf(w, "%-10s  %s  %-32s  %-22s  %s\n",
			t.Date.Format("2006-01-02"),
			renderAmount(t.Amount),
			truncate(name, 32),
			truncate(t.EffectiveCategory(), 22),
			labelStyle.Render(t.Institution),
		)
	}
	fmt.Fprintln(w, labelStyle.Render(fmt.Sprintf("%d transaction(s)", len(rows))))
}

func renderInstitutions(w io.Writer, status map[string]*time.Time, accounts []repository.Account) {
	names := make([]string, 0, len(status))
	for name := range status {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) == 0 {
		fmt.Fprintln(w, labelStyle.Render("no institutions linked"))
		return
	}
	for _, name := range names {
		last := "never"
		if ts := status[name]; ts != nil {
			last = ts.Local().Format("2006-01-02 15:04")
		}
		lines := []string{titleStyle.Render(name), kv("last sync", last)}
		for _, a := range accounts {
			if a.InstitutionName != name {
				continue
			}
			label := a.Name
			if a.Mask != "" {
				label += " ••" + a.Mask
			}
			if !a.Active {
				label += warnStyle.Render(" (inactive)")
			}
			lines = append(lines, kv(a.Subtype, label))
		}
		fmt.Fprintln(w, sectionStyle.Render(strings.Join(lines, "\n")))
	}
}

func renderSummary(w io.Writer, st service.SummaryStats, db repository.StoreStats) {
	money := func(d decimal.Decimal) string { return d.StringFixed(2) }
	lines := []string{
		titleStyle.Render("Summary"),
		kv("transactions", st.Count),
		kv("pending", st.Pending),
		kv("spending", debitStyle.Render(money(st.Spending))),
		kv("income", creditStyle.Render(money(st.Income))),
		kv("net flow", money(st.NetFlow)),
	}
	if st.First != nil && st.Last != nil {
		lines = append(lines, kv("range", st.First.Format("2006-01-02")+" → "+st.Last.Format("2006-01-02")))
	}

	cats := make([]string, 0, len(st.Categories))
	for c := range st.Categories {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool {
		return st.Categories[cats[i]].Total.GreaterThan(st.Categories[cats[j]].Total)
	})
	if len(cats) > 0 {
		lines = append(lines, "", headerStyle.Render("By category"))
		for _, c := range cats {
			ct := st.Categories[c]
			label := c
			if strings.Contains(c, ":") {
				label = category.ParseOrigin(c).Describe()
			}
			lines = append(lines, kv(truncate(label, 14), fmt.Sprintf("%s (%d)", money(ct.Total), ct.Count)))
		}
	}

	months := make([]string, 0, len(st.Monthly))
	for m := range st.Monthly {
		months = append(months, m)
	}
	sort.Strings(months)
	if len(months) > 0 {
		lines = append(lines, "", headerStyle.Render("Monthly spending"))
		for _, m := range months {
			lines = append(lines, kv(m, money(st.Monthly[m])))
		}
	}

	lines = append(lines, "", headerStyle.Render("Store"),
		kv("institutions", db.Institutions),
		kv("accounts", db.Accounts),
		kv("ai", db.AICategorized),
		kv("manual", db.ManualCategorized),
		kv("uncategorized", db.Uncategorized),
	)
	fmt.Fprintln(w, sectionStyle.Render(strings.Join(lines, "\n")))
}

func renderTaxonomy(w io.Writer, tax *category.Taxonomy) {
	for _, g := range tax.Groups() {
		fmt.Fprintln(w, headerStyle.Render(g.Name)+" "+labelStyle.Render(strings.Join(g.Categories, ", ")))
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
