// Package sink delivers discoveries to their consumers.
package sink

import (
	"fmt"
	"log/slog"

	"github.com/mohammed-shakir/hexscan/internal/core/model"
)

// Sink receives each newly discovered entity exactly once per session.
// OnEntity is called from the pipeline's critical section and must not block.
type Sink interface {
	OnEntity(d model.Discovery)
}

type Func func(d model.Discovery)

func (f Func) OnEntity(d model.Discovery) { f(d) }

// Multi fans out to every sink in order.
type Multi []Sink

func (m Multi) OnEntity(d model.Discovery) {
	for _, s := range m {
		if s != nil {
			s.OnEntity(d)
		}
	}
}

// FormatRemaining renders the lifetime shown on a map marker.
func FormatRemaining(d model.Discovery) string {
	if !d.Expires {
		return "no expiry"
	}
	secs := int64(d.Remaining.Seconds())
	return fmt.Sprintf("%d min, %d sec", secs/60, secs%60)
}

// Log writes one structured line per discovery.
func Log(log *slog.Logger) Sink {
	if log == nil {
		log = slog.Default()
	}
	return Func(func(d model.Discovery) {
		log.Info("entity discovered",
			"kind", d.Entity.Kind,
			"instance_id", d.Entity.InstanceID,
			"lat", d.Entity.Lat,
			"lon", d.Entity.Lon,
			"remaining", FormatRemaining(d),
			"cell", d.Cell,
			"scan_epoch", d.Epoch,
		)
	})
}
