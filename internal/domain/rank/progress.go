package rank

import (
	"github.com/refnet-platform/progression-engine/internal/domain/member"
	"github.com/refnet-platform/progression-engine/internal/domain/shared"
)

// MetricProgress - прогресс по счётному показателю до следующего уровня.
type MetricProgress struct {
	Current  int
	Required int
	Percent  shared.Percent
}

// EarningsProgress - прогресс по заработку до следующего уровня.
type EarningsProgress struct {
	Current  shared.Money
	Required shared.Money
	Percent  shared.Percent
}

// Progress - прогресс участника к следующему рангу.
type Progress struct {
	// CurrentTier - текущий уровень.
	CurrentTier Tier

	// NextTier - следующий уровень; nil на вершине каталога.
	NextTier *Tier

	// AtMaxRank - участник на максимальном ранге.
	AtMaxRank bool

	// DirectRecruits, NetworkSize, TotalEarned - прогресс по каждому
	// показателю: min(100, floor(current/required * 100)).
	DirectRecruits MetricProgress
	NetworkSize    MetricProgress
	TotalEarned    EarningsProgress

	// Overall - floor от среднего трёх процентов.
	Overall shared.Percent
}

// ComputeProgress вычисляет прогресс к следующему уровню после current.
// На максимальном ранге все проценты фиксируются на 100 и следующий
// уровень не сообщается.
func ComputeProgress(current Tier, catalog Catalog, stats member.Stats) Progress {
	next, ok := catalog.NextAfter(current.Order)
	if !ok {
		return Progress{
			CurrentTier: current,
			AtMaxRank:   true,
			DirectRecruits: MetricProgress{
				Current: stats.DirectRecruits,
				Percent: shared.MaxPercent,
			},
			NetworkSize: MetricProgress{
				Current: stats.NetworkSize,
				Percent: shared.MaxPercent,
			},
			TotalEarned: EarningsProgress{
				Current: stats.TotalEarned,
				Percent: shared.MaxPercent,
			},
			Overall: shared.MaxPercent,
		}
	}

	directPct := shared.PercentOf(int64(stats.DirectRecruits), int64(next.MinDirectRecruits))
	networkPct := shared.PercentOf(int64(stats.NetworkSize), int64(next.MinNetworkSize))
	earnedPct := shared.PercentOfMoney(stats.TotalEarned, next.MinTotalEarned)

	return Progress{
		CurrentTier: current,
		NextTier:    &next,
		DirectRecruits: MetricProgress{
			Current:  stats.DirectRecruits,
			Required: next.MinDirectRecruits,
			Percent:  directPct,
		},
		NetworkSize: MetricProgress{
			Current:  stats.NetworkSize,
			Required: next.MinNetworkSize,
			Percent:  networkPct,
		},
		TotalEarned: EarningsProgress{
			Current:  stats.TotalEarned,
			Required: next.MinTotalEarned,
			Percent:  earnedPct,
		},
		Overall: shared.AveragePercent(directPct, networkPct, earnedPct),
	}
}
