package rate

import (
	"context"
	"fmt"
	"time"

	xrate "golang.org/x/time/rate"
)

// ErrGateDeadline: el próximo turno del gate cae después del deadline del ctx.
// Envuelve context.DeadlineExceeded.
var ErrGateDeadline = fmt.Errorf("rate: gate wait would exceed deadline: %w", context.DeadlineExceeded)

// Gate espacia llamadas salientes al upstream: como máximo una cada Interval.
// Reemplaza el sleep fijo entre items del batch.
type Gate struct {
	lim      *xrate.Limiter
	interval time.Duration
}

// NewGate crea un gate con burst 1. interval <= 0 deshabilita el throttle.
func NewGate(interval time.Duration) *Gate {
	if interval <= 0 {
		return &Gate{lim: xrate.NewLimiter(xrate.Inf, 1)}
	}
	return &Gate{lim: xrate.NewLimiter(xrate.Every(interval), 1), interval: interval}
}

// Wait bloquea hasta que se pueda emitir la próxima llamada o ctx termine.
// x/time/rate falla antes de tiempo si la espera no entra en el deadline;
// ese caso se devuelve como ErrGateDeadline.
func (g *Gate) Wait(ctx context.Context) error {
	if err := g.lim.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return ErrGateDeadline
	}
	return nil
}

// Interval devuelve el intervalo configurado.
func (g *Gate) Interval() time.Duration { return g.interval }
