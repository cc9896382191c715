package plan

import (
	"testing"

	"github.com/skylift-io/dispatch-go/internal/domain"
	"github.com/skylift-io/dispatch-go/internal/plan"
)

var benchBounds = domain.FloorRange{Min: 0, Max: 49}

func BenchmarkChainsAdd(b *testing.B) {
	for i := 0; i < b.N; i++ {
		c := plan.NewChains(benchBounds)
		for f := 1; f < 50; f += 2 {
			_ = c.Add(domain.NewDirectedFloor(domain.Floor(f), domain.DirectionUp), domain.DirectionUp)
		}
	}
}

func BenchmarkChainsPopFront(b *testing.B) {
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		c := plan.NewChains(benchBounds)
		for f := 1; f < 50; f++ {
			_ = c.Add(domain.NewDirectedFloor(domain.Floor(f), domain.DirectionUp), domain.DirectionUp)
		}
		b.StartTimer()
		for !c.IsEmpty() {
			_, _ = c.PopFront()
		}
	}
}

func BenchmarkChainsMetricMean(b *testing.B) {
	c := plan.NewChains(benchBounds)
	for f := 1; f < 50; f += 3 {
		_ = c.Add(domain.NewDirectedFloor(domain.Floor(f), domain.DirectionUp), domain.DirectionUp)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = c.Metric(0, domain.HeuristicMean)
	}
}
