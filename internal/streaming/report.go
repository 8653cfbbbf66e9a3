package streaming

import (
	"fmt"
	"time"

	"github.com/annel0/chunkstream/internal/zone"
)

// TickReport - итог одного тика, только для наблюдения
type TickReport struct {
	Tick     uint64
	Viewport zone.Locator
	Cells    int

	Unloaded       int
	KeptImmortal   int
	KeptByFilter   int
	UnloadFailures int

	Loaded         int
	Reserved       int
	LeftEmpty      int // селектор вернул nil
	Skipped        int // фильтр загрузки сказал LeaveZoneEmpty
	SelectorErrors int
	LoadFailures   int

	Duration time.Duration
}

// HadSelectorErrors - то же значение, что возвращает UpdateTick
func (r TickReport) HadSelectorErrors() bool {
	return r.SelectorErrors > 0
}

func (r TickReport) String() string {
	return fmt.Sprintf("тик %d %s: выгружено %d, загружено %d, зарезервировано %d, "+
		"ошибок селектора %d, сбоев загрузки %d, сбоев выгрузки %d за %v",
		r.Tick, r.Viewport, r.Unloaded, r.Loaded, r.Reserved,
		r.SelectorErrors, r.LoadFailures, r.UnloadFailures, r.Duration)
}
