package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/bcfeed/internal/model"
	"github.com/nhle/bcfeed/internal/store"
	"github.com/nhle/bcfeed/internal/theme"
)

const dateLayout = "2006-01-02"

func renderNotice(msg string) string {
	return theme.SuccessStyle.Render("✓ " + msg)
}

// renderFound is the line printed when a sync stores a release.
func renderFound(r model.ReleaseSummary) string {
	return fmt.Sprintf("%s %s %s",
		theme.SuccessStyle.Render("+"),
		theme.UploaderStyle.Render(r.Uploader),
		theme.ReleaseStyle.Render(r.ReleaseName),
	)
}

// renderSummary describes a terminal progress event.
func renderSummary(ev model.ProgressEvent) string {
	counts := fmt.Sprintf("%d scanned, %d new, %d skipped", ev.ProcessedCount, ev.NewCount, ev.SkippedCount)

	if ev.Failure == nil {
		return renderNotice("Sync complete: " + counts)
	}

	hint := ""
	switch ev.Failure.Kind {
	case model.FailureAuth:
		hint = "check the mailbox credentials"
	case model.FailureTransport:
		hint = "the next sync resumes where this one stopped"
	case model.FailureCancelled:
		hint = "progress up to the last batch was kept"
	}

	lines := []string{
		theme.ErrorStyle.Render("✗ Sync stopped: " + counts),
		"  " + ev.Failure.Message,
	}
	if hint != "" {
		lines = append(lines, "  "+theme.MutedStyle.Render(hint))
	}
	return strings.Join(lines, "\n")
}

// renderRelease renders one feed entry over two lines.
func renderRelease(r model.Release) string {
	head := lipgloss.JoinHorizontal(lipgloss.Top,
		theme.MutedStyle.Render(r.ReceivedAt.Local().Format(dateLayout)),
		" ",
		theme.ReleaseTypeStyle(r.ReleaseType).Render(strings.ToLower(string(r.ReleaseType))),
		" ",
		theme.UploaderStyle.Render(r.Uploader),
		theme.MutedStyle.Render(" - "),
		theme.ReleaseStyle.Render(r.ReleaseName),
	)
	return head + "\n" + theme.MutedStyle.Render("           "+r.BandcampURL)
}

func renderReleasePage(p *store.ReleasePage) string {
	if p.Total == 0 {
		return theme.MutedStyle.Render("No releases.")
	}

	var b strings.Builder
	b.WriteString(theme.HeaderStyle.Render(fmt.Sprintf("Releases (%d)", p.Total)))
	b.WriteString("\n\n")
	for _, r := range p.Releases {
		b.WriteString(renderRelease(r))
		b.WriteString("\n")
	}
	if len(p.Releases) == 0 {
		b.WriteString(theme.MutedStyle.Render("Nothing on this page.\n"))
	}
	b.WriteString("\n")
	b.WriteString(theme.MutedStyle.Render(fmt.Sprintf("page %d of %d", p.Page, max(p.TotalPages, 1))))
	return b.String()
}

func renderStats(s *model.FeedStats) string {
	lines := []string{
		fmt.Sprintf("Total releases  %d", s.Total),
		fmt.Sprintf("This week       %d", s.ThisWeek),
		fmt.Sprintf("This month      %d", s.ThisMonth),
	}
	if s.Oldest != nil && s.Newest != nil {
		lines = append(lines, fmt.Sprintf("Span            %s to %s",
			s.Oldest.Local().Format(dateLayout), s.Newest.Local().Format(dateLayout)))
	}
	if len(s.TopUploaders) > 0 {
		lines = append(lines, "", theme.UploaderStyle.Render("Top uploaders"))
		for _, u := range s.TopUploaders {
			lines = append(lines, fmt.Sprintf("  %-30s %d", u.Uploader, u.Count))
		}
	}

	return theme.HeaderStyle.Render("Feed") + "\n" + theme.BorderStyle.Render(strings.Join(lines, "\n"))
}
