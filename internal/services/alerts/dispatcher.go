package alerts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"trendwatch/internal/domain/quotes"
	"trendwatch/internal/domain/trends"
	"trendwatch/internal/metrics"
	"trendwatch/pkg/logger"
	"trendwatch/pkg/telegram"
)

// Dispatcher formats breakout findings and delivers them through the
// messaging channel. Delivery is per-recipient isolated: one failed
// recipient never blocks the others and never surfaces to the scan loop.
type Dispatcher struct {
	sender     telegram.Sender
	resolver   quotes.Resolver // nil disables quote annotation
	recipients []int64
	groupChats bool
	log        *logger.Logger
}

// NewDispatcher creates a dispatcher delivering to the configured recipients
func NewDispatcher(sender telegram.Sender, resolver quotes.Resolver, recipients []int64, groupChats bool, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		sender:     sender,
		resolver:   resolver,
		recipients: recipients,
		groupChats: groupChats,
		log:        log.With("component", "alerts"),
	}
}

// DispatchBreakout sends one immediate per-term breakout alert
func (d *Dispatcher) DispatchBreakout(ctx context.Context, event *trends.BreakoutEvent) {
	d.deliver("breakout", d.formatBreakout(ctx, event))
}

// DispatchCycleSummary sends the consolidated end-of-cycle summary. A cycle
// with zero breakouts still produces a summary, absence of signal is itself
// a liveness signal to consumers.
func (d *Dispatcher) DispatchCycleSummary(ctx context.Context, summary *trends.CycleSummary) {
	d.deliver("summary", d.formatSummary(summary))
}

// deliver sends text to every recipient independently
func (d *Dispatcher) deliver(kind, text string) {
	for _, id := range d.recipients {
		chatID := d.normalizeChatID(id)

		if err := d.sender.SendMessage(chatID, text); err != nil {
			metrics.AlertDeliveries.WithLabelValues(kind, "error").Inc()
			d.log.Errorw("Failed to deliver alert",
				"kind", kind,
				"chat_id", chatID,
				"error", err,
			)
			continue
		}
		metrics.AlertDeliveries.WithLabelValues(kind, "success").Inc()
	}
}

// normalizeChatID applies Telegram's group addressing convention: groups are
// addressed by the negated chat ID.
func (d *Dispatcher) normalizeChatID(id int64) int64 {
	if d.groupChats && id > 0 {
		return -id
	}
	return id
}

func (d *Dispatcher) formatBreakout(ctx context.Context, event *trends.BreakoutEvent) string {
	var b strings.Builder

	fmt.Fprintf(&b, "🚨 *Interest breakout: %s*\n\n", event.Term)
	fmt.Fprintf(&b, "Category: %s\n", event.Category)

	peakDay := event.PeakTime.Format("2006-01-02")
	if event.StalePeak {
		fmt.Fprintf(&b, "Peak interest: %.0f on %s (latest reported day)\n", event.Peak, peakDay)
	} else {
		fmt.Fprintf(&b, "Peak interest: %.0f on %s\n", event.Peak, peakDay)
	}

	fmt.Fprintf(&b, "Baseline average: %.1f\n", event.BaselineAvg)
	fmt.Fprintf(&b, "Increase: +%.0f%%", event.PercentIncrease())
	if event.ZScore > 0 {
		fmt.Fprintf(&b, " (z-score %.1f)", event.ZScore)
	}
	b.WriteString("\n")

	if len(event.Symbols) > 0 {
		b.WriteString("\nRelated stocks:\n")
		for _, sym := range event.Symbols {
			b.WriteString(d.formatSymbol(ctx, sym))
		}
	}

	return b.String()
}

// formatSymbol annotates a ticker with quote data when the resolver has it,
// falling back to the catalog description alone.
func (d *Dispatcher) formatSymbol(ctx context.Context, sym trends.RelatedSymbol) string {
	if d.resolver != nil {
		if q, err := d.resolver.Resolve(ctx, sym.Ticker); err == nil && q.Name != "" {
			if q.LastPrice > 0 {
				return fmt.Sprintf("• %s (%s, $%s) — %s\n",
					sym.Ticker, q.Name, humanize.CommafWithDigits(q.LastPrice, 2), sym.Description)
			}
			return fmt.Sprintf("• %s (%s) — %s\n", sym.Ticker, q.Name, sym.Description)
		}
	}
	return fmt.Sprintf("• %s — %s\n", sym.Ticker, sym.Description)
}

func (d *Dispatcher) formatSummary(summary *trends.CycleSummary) string {
	var b strings.Builder

	b.WriteString("📊 *Scan cycle complete*\n\n")
	fmt.Fprintf(&b, "Scanned %d terms across %d categories in %s\n",
		summary.Terms, summary.Categories, formatDuration(summary.Duration))
	if summary.NoData > 0 {
		fmt.Fprintf(&b, "Terms without data: %d\n", summary.NoData)
	}
	if summary.Skipped > 0 {
		fmt.Fprintf(&b, "Terms skipped: %d\n", summary.Skipped)
	}

	if len(summary.Events) == 0 {
		b.WriteString("\nNo breakouts detected this cycle.")
		return b.String()
	}

	fmt.Fprintf(&b, "\n*%d breakout(s) detected:*\n", len(summary.Events))
	for _, e := range summary.Events {
		fmt.Fprintf(&b, "• %s (%s): %.0f vs %.1f baseline, +%.0f%%\n",
			e.Term, e.Category, e.Peak, e.BaselineAvg, e.PercentIncrease())
	}

	return b.String()
}

// formatDuration renders a duration the way a human reads it, dropping
// sub-second noise.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return d.Round(time.Second).String()
	}
	return d.Round(time.Minute).String()
}
