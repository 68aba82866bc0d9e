package query

import (
	"context"
	"fmt"
	"time"

	"github.com/refnet-platform/progression-engine/internal/domain/member"
	"github.com/refnet-platform/progression-engine/internal/domain/rank"
	"github.com/refnet-platform/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST MEMBERS QUERY
// Администраторский список участников с текущим рангом и признаком
// ручного закрепления. Читает состояние ранга поверх списка участников.
// ══════════════════════════════════════════════════════════════════════════════

// ListMembersQuery содержит параметры списка участников.
type ListMembersQuery struct {
	// Status - фильтр по статусу (пусто = все).
	Status string

	// Page и PageSize - пагинация (по умолчанию страница 1 по 20 записей).
	Page     int
	PageSize int
}

// Validate проверяет корректность параметров запроса.
func (q ListMembersQuery) Validate() error {
	if q.Status != "" && !member.Status(q.Status).IsValid() {
		return fmt.Errorf("list_members: %w: status %q", shared.ErrInvalidInput, q.Status)
	}
	if q.Page < 0 || q.PageSize < 0 {
		return fmt.Errorf("list_members: %w: pagination cannot be negative", shared.ErrNegativeValue)
	}
	return nil
}

// MemberAdminDTO - строка администраторского списка.
type MemberAdminDTO struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Wallet   string `json:"wallet"`
	Status   string `json:"status"`

	// RankID и RankName - текущий ранг; пусто до первой оценки.
	// RankName остаётся пустым для устаревшей ссылки на уровень.
	RankID   string `json:"rank_id,omitempty"`
	RankName string `json:"rank_name,omitempty"`

	// ManualOverride - ранг закреплён администратором.
	ManualOverride bool `json:"manual_override"`

	JoinedAt time.Time `json:"joined_at"`
}

// ListMembersResult содержит результат списка участников.
type ListMembersResult struct {
	Members []MemberAdminDTO `json:"members"`

	// Page и PageSize - применённая пагинация.
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// ListMembersHandler обрабатывает администраторские списки участников.
type ListMembersHandler struct {
	members     member.Repository
	rankStates  rank.StateRepository
	rankCatalog rank.CatalogRepository
}

// NewListMembersHandler создаёт новый обработчик.
func NewListMembersHandler(
	members member.Repository,
	rankStates rank.StateRepository,
	rankCatalog rank.CatalogRepository,
) *ListMembersHandler {
	return &ListMembersHandler{
		members:     members,
		rankStates:  rankStates,
		rankCatalog: rankCatalog,
	}
}

// Handle выполняет запрос списка участников.
func (h *ListMembersHandler) Handle(ctx context.Context, query ListMembersQuery) (*ListMembersResult, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	page := shared.NewPagination(query.Page, query.PageSize)

	opts := member.DefaultListOptions()
	opts.Pagination = page
	if query.Status != "" {
		opts = opts.WithStatus(member.Status(query.Status))
	}

	members, err := h.members.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list_members: list: %w", err)
	}

	// Каталог читается один раз на страницу; имена рангов берутся из него.
	catalog, err := h.rankCatalog.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list_members: catalog: %w", err)
	}
	names := make(map[shared.RankTierID]string, len(catalog))
	for _, t := range catalog {
		names[t.ID] = t.Name
	}

	dtos := make([]MemberAdminDTO, len(members))
	for i, m := range members {
		state, err := h.rankStates.Get(ctx, m.ID)
		if err != nil {
			return nil, fmt.Errorf("list_members: rank state for %s: %w", m.ID, err)
		}

		dtos[i] = MemberAdminDTO{
			ID:             m.ID.String(),
			Username:       m.Username,
			Wallet:         m.Wallet.String(),
			Status:         string(m.Status),
			RankID:         state.CurrentRankID.String(),
			RankName:       names[state.CurrentRankID],
			ManualOverride: state.ManualOverride,
			JoinedAt:       m.JoinedAt,
		}
	}

	return &ListMembersResult{
		Members:  dtos,
		Page:     page.Page,
		PageSize: page.PageSize,
	}, nil
}
