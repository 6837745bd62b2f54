// Package report posts end-of-run summaries to external sinks. The
// engine itself never touches this package; the entrypoint wires it in
// after Run returns.
package report

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/forgequant/backtestcore/backtest"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TELEGRAM NOTIFIER - end-of-run result summaries
// ═══════════════════════════════════════════════════════════════════════════════

// Notifier posts a completed run's summary to a Telegram chat. A zero
// Notifier (no token) is disabled and all sends are no-ops.
type Notifier struct {
	api     *tgbotapi.BotAPI
	chatID  int64
	enabled bool
}

// NewNotifier builds a Notifier. An empty token returns a disabled
// notifier rather than an error, so callers can wire it unconditionally.
func NewNotifier(token string, chatID int64) (*Notifier, error) {
	if token == "" || chatID == 0 {
		log.Debug().Msg("report: telegram notifier disabled (no token/chat id)")
		return &Notifier{}, nil
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("report: failed to create telegram bot: %w", err)
	}
	log.Info().Str("username", api.Self.UserName).Msg("📱 report: telegram notifier initialized")
	return &Notifier{api: api, chatID: chatID, enabled: true}, nil
}

// Enabled reports whether sends will actually go out.
func (n *Notifier) Enabled() bool { return n.enabled }

// SendResultSummary posts the run summary. Errors are logged, not
// returned — a reporting failure must never fail the run.
func (n *Notifier) SendResultSummary(res *backtest.Result) {
	if !n.enabled || res == nil {
		return
	}
	text := formatResult(res)
	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.api.Send(msg); err != nil {
		log.Error().Err(err).Msg("report: failed to send result summary")
		return
	}
	log.Info().Msg("report: result summary sent")
}

func formatResult(res *backtest.Result) string {
	arrow := "📈"
	if res.TotalReturn.IsNegative() {
		arrow = "📉"
	}
	return fmt.Sprintf(
		"%s Backtest complete: %s\n\n"+
			"💰 Balance: %s → %s (%+.2f%%)\n"+
			"📊 Orders: %d | Positions: %d | Fills: %d\n"+
			"💸 Commissions: %s\n\n"+
			"Sharpe %.2f | Sortino %.2f | Calmar %.2f\n"+
			"Max DD %.2f%% | Win rate %.1f%% | PF %.2f",
		arrow, res.TraderID,
		res.StartingBalance.StringFixed(2), res.EndingBalance.StringFixed(2), res.TotalReturnPct,
		res.TotalOrders, res.TotalPositions, res.TotalFills,
		res.TotalCommissions.StringFixed(2),
		res.SharpeRatio, res.SortinoRatio, res.CalmarRatio,
		res.MaxDrawdownPct, res.WinRate*100, res.ProfitFactor,
	)
}
