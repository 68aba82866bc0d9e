package leaderboard

import (
	"encoding/json"
	"time"

	"github.com/refnet-platform/progression-engine/internal/domain/shared"
)

// Snapshot - сохранённое состояние рейтинга на момент времени. Снимки
// пишутся планировщиком и дают историю рейтинга без пересчёта.
type Snapshot struct {
	// ID - уникальный идентификатор снимка.
	ID string

	// Metric, Period - какой рейтинг снят.
	Metric Metric
	Period Period

	// Entries - строки рейтинга на момент снятия.
	Entries []Entry

	// TakenAt - время снятия.
	TakenAt time.Time
}

// NewSnapshot создаёт снимок из построенного рейтинга.
func NewSnapshot(id string, board Board) Snapshot {
	return Snapshot{
		ID:      id,
		Metric:  board.Metric,
		Period:  board.Period,
		Entries: board.Entries,
		TakenAt: time.Now(),
	}
}

// MarshalEntries сериализует строки снимка в JSON для хранения.
func (s Snapshot) MarshalEntries() ([]byte, error) {
	data, err := json.Marshal(s.Entries)
	if err != nil {
		return nil, shared.WrapError("leaderboard", "MarshalEntries", shared.ErrInvalidFormat, "snapshot serialization failed", err)
	}
	return data, nil
}

// UnmarshalEntries восстанавливает строки снимка из JSON.
func UnmarshalEntries(data []byte) ([]Entry, error) {
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, shared.WrapError("leaderboard", "UnmarshalEntries", shared.ErrInvalidFormat, "snapshot deserialization failed", err)
	}
	return entries, nil
}
