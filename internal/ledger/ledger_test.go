package ledger

import (
	"sync"
	"testing"

	"main/internal/model"
	"main/internal/model/enum"
	"main/pkg/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fill(inst string, side enum.OrderSide, qty model.Quantity, price model.Price) model.Fill {
	return model.Fill{
		OrderID:    "ord-1",
		Instrument: model.Instrument(inst),
		Side:       side,
		Quantity:   qty,
		Price:      price,
		TsNano:     100,
	}
}

func TestApplyFillOpensPosition(t *testing.T) {
	l := New()

	result, err := l.ApplyFill(fill("005930", enum.OrderSideBuy, 10, 10_050))
	require.NoError(t, err)
	assert.True(t, result.Opened)
	assert.Equal(t, model.Quantity(10), result.Position.Quantity)
	assert.Equal(t, model.Price(10_050), result.Position.AvgEntry)
	assert.Equal(t, int64(100), result.Position.OpenedAt)
	assert.Equal(t, 1, l.Count())
}

func TestApplyFillWeightedAverage(t *testing.T) {
	l := New()

	_, err := l.ApplyFill(fill("005930", enum.OrderSideBuy, 10, 10_000))
	require.NoError(t, err)
	result, err := l.ApplyFill(fill("005930", enum.OrderSideBuy, 30, 10_400))
	require.NoError(t, err)

	// (10*10000 + 30*10400) / 40 = 10300
	assert.Equal(t, model.Price(10_300), result.Position.AvgEntry)
	assert.Equal(t, model.Quantity(40), result.Position.Quantity)
}

func TestApplyFillRealizesPnLOnClose(t *testing.T) {
	l := New()

	_, err := l.ApplyFill(fill("005930", enum.OrderSideBuy, 5, 10_050))
	require.NoError(t, err)
	result, err := l.ApplyFill(fill("005930", enum.OrderSideSell, 5, 9_400))
	require.NoError(t, err)

	assert.True(t, result.Closed)
	assert.Equal(t, model.Notional((9_400-10_050)*5), result.RealizedPnL)
	assert.Equal(t, model.Notional(-3_250), l.RealizedPnL())

	_, ok := l.Position("005930")
	assert.False(t, ok, "closed position must be removed")
}

func TestApplyFillPartialReduce(t *testing.T) {
	l := New()

	_, err := l.ApplyFill(fill("005930", enum.OrderSideBuy, 10, 10_000))
	require.NoError(t, err)
	result, err := l.ApplyFill(fill("005930", enum.OrderSideSell, 4, 10_500))
	require.NoError(t, err)

	assert.False(t, result.Closed)
	assert.Equal(t, model.Quantity(6), result.Position.Quantity)
	// Average entry is untouched by a reducing fill.
	assert.Equal(t, model.Price(10_000), result.Position.AvgEntry)
	assert.Equal(t, model.Notional(2_000), result.RealizedPnL)
}

func TestApplyFillRejectsInvalid(t *testing.T) {
	l := New()

	_, err := l.ApplyFill(fill("005930", enum.OrderSideBuy, 0, 10_000))
	assert.ErrorIs(t, err, exception.ErrLedgerInvalidQuantity)

	_, err = l.ApplyFill(fill("005930", enum.OrderSideBuy, 10, 0))
	assert.ErrorIs(t, err, exception.ErrLedgerInvalidQuantity)
}

func TestHaltBlocksFills(t *testing.T) {
	l := New()
	l.Halt("005930")

	_, err := l.ApplyFill(fill("005930", enum.OrderSideBuy, 10, 10_000))
	assert.ErrorIs(t, err, exception.ErrLedgerInstrumentHalt)
	assert.True(t, l.Halted("005930"))
	assert.False(t, l.Halted("000660"))

	// Other instruments keep processing.
	_, err = l.ApplyFill(fill("000660", enum.OrderSideBuy, 1, 100))
	assert.NoError(t, err)
}

func TestSetStopsAndSnapshot(t *testing.T) {
	l := New()

	_, err := l.ApplyFill(fill("005930", enum.OrderSideBuy, 10, 10_050))
	require.NoError(t, err)
	l.SetStops("005930", 9_500, 11_000)
	l.Mark("005930", 10_100)

	snapshot := l.Snapshot()
	position := snapshot.Positions["005930"]
	assert.Equal(t, model.Price(9_500), position.StopLoss)
	assert.Equal(t, model.Price(11_000), position.TakeProfit)
	assert.Equal(t, model.Price(10_100), snapshot.Marks["005930"])
	assert.Equal(t, model.Notional(101_000), snapshot.TotalExposure)
	assert.NotZero(t, snapshot.TakenAt)
}

func TestSnapshotExposureFallsBackToEntry(t *testing.T) {
	l := New()

	_, err := l.ApplyFill(fill("005930", enum.OrderSideBuy, 10, 10_000))
	require.NoError(t, err)

	snapshot := l.Snapshot()
	assert.Equal(t, model.Notional(100_000), snapshot.TotalExposure)
}

func TestConcurrentFillsDistinctInstruments(t *testing.T) {
	l := New()
	instruments := []string{"005930", "000660", "035720", "051910", "005380"}

	var wg sync.WaitGroup
	for _, inst := range instruments {
		wg.Add(1)
		go func(inst string) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_, err := l.ApplyFill(fill(inst, enum.OrderSideBuy, 1, 1_000))
				assert.NoError(t, err)
			}
		}(inst)
	}
	wg.Wait()

	for _, inst := range instruments {
		position, ok := l.Position(model.Instrument(inst))
		require.True(t, ok)
		assert.Equal(t, model.Quantity(100), position.Quantity)
	}
}
