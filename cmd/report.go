package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/vadiminshakov/estate/internal"
	"github.com/vadiminshakov/estate/internal/domain"
	"github.com/vadiminshakov/estate/internal/finance"
)

const etherPlaces = 4

var (
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	warning   = lipgloss.AdaptiveColor{Light: "#D9534F", Dark: "#FF6F61"}

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(0, 2).
			Bold(true)

	sectionStyle = lipgloss.NewStyle().Foreground(special).Bold(true).MarginTop(1)
	boxStyle     = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(0, 1)
	failStyle    = lipgloss.NewStyle().Foreground(warning)
)

// renderReport prints the portfolio of the session account and the
// registry-wide totals of the current snapshot.
func renderReport(s *internal.Session) string {
	snap := s.Current()
	if snap == nil {
		return failStyle.Render(internal.ErrNoSnapshot.Error())
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("ESTATE v%d", snap.Version)))
	b.WriteString("\n")

	if stats, err := s.PlatformStats(); err == nil {
		b.WriteString(boxStyle.Render(fmt.Sprintf(
			"Assets: %d\nUsers: %d\nValue locked: %s ETH\nMonthly rent: %s ETH",
			stats.AssetCount, stats.UserCount,
			finance.DisplayEther(stats.TotalValueLocked, etherPlaces),
			finance.DisplayEther(stats.TotalMonthlyRent, etherPlaces))))
		b.WriteString("\n")
	}

	p, err := s.Portfolio()
	if err != nil {
		b.WriteString(sectionStyle.Render("PUBLIC VIEW"))
		b.WriteString("\n")
		writeAssets(&b, snap.Assets)
		return b.String()
	}

	b.WriteString(sectionStyle.Render("ACCOUNT " + p.Account.Hex()))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("Withdrawable: %s ETH\nLocked deposit: %s ETH\n",
		finance.DisplayEther(p.WithdrawableBalance, etherPlaces),
		finance.DisplayEther(p.TotalLockedDeposit, etherPlaces)))

	for _, group := range []struct {
		title  string
		assets []domain.DecoratedAsset
	}{
		{"OWNED", p.OwnerAssets},
		{"INVESTED", p.InvestorAssets},
		{"RENTED", p.TenantAssets},
	} {
		b.WriteString(sectionStyle.Render(fmt.Sprintf("%s (%d)", group.title, len(group.assets))))
		b.WriteString("\n")
		writeAssets(&b, group.assets)
	}

	for _, f := range snap.Failures {
		b.WriteString(failStyle.Render(fmt.Sprintf("asset %s skipped: %s", f.ID, f.Reason)))
		b.WriteString("\n")
	}

	return b.String()
}

func writeAssets(b *strings.Builder, assets []domain.DecoratedAsset) {
	for _, a := range assets {
		fmt.Fprintf(b, "  #%-4s %-20s %-16s sold %3d%%  yield %s\n",
			a.ID, a.Info.Name, a.Status, a.Figures.FundingProgress, finance.DisplayYield(a.Figures))
	}
}

func renderOutcome(out domain.Outcome) string {
	if out.Success {
		return lipgloss.NewStyle().Foreground(special).Render(
			fmt.Sprintf("✓ %s on %s final (tx %s)", out.Kind, out.Key, out.TxID))
	}
	return failStyle.Render(fmt.Sprintf("✗ %s on %s failed: %s", out.Kind, out.Key, out.Reason))
}
