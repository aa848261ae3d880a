package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/jose-valero/slashkit/internal/domain"
)

func fmtRemain(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d", s/60, s%60)
}

// cooldownText usa un timestamp relativo de Discord salvo que falte poco.
func cooldownText(now time.Time, remaining time.Duration) string {
	if remaining <= 5*time.Second {
		return "⏳ Esperá " + fmtRemain(remaining) + " antes de volver a usar este comando."
	}
	return fmt.Sprintf("⏳ Podrás volver a usar este comando <t:%d:R>.", now.Add(remaining).Unix())
}

func replyCooldown(ctx context.Context, inv *domain.Invocation, remaining time.Duration) error {
	if inv.Respond == nil {
		return nil
	}
	_, err := inv.Respond.Reply(ctx, domain.Message{Content: cooldownText(time.Now(), remaining), Ephemeral: true})
	return err
}
