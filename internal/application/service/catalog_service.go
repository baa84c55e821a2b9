package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"coinfeed/internal/application/port"
	"coinfeed/internal/domain"
)

// ErrCatalogBusy 上一页还在加载
var ErrCatalogBusy = errors.New("catalog page load in progress")

// CoinInterest 接收需要实时价格的币种
type CoinInterest interface {
	AddCoins(coins ...domain.Coin) int
}

// CatalogService 分页加载币种目录
// 新币种加入 InterestSet，REST 报价只填充还没有实时数据的币种
type CatalogService struct {
	src      port.CatalogSource
	interest CoinInterest
	board    *domain.Board
	perPage  int

	load sync.Mutex // 同一时间只有一个 LoadMore

	mu      sync.RWMutex
	coins   []domain.Coin
	seen    map[string]struct{} // by coin id
	page    int                 // 下一次要拉的页码，从 1 开始
	hasMore bool
}

func NewCatalogService(src port.CatalogSource, interest CoinInterest, board *domain.Board, perPage int) *CatalogService {
	if perPage <= 0 {
		perPage = 20
	}
	return &CatalogService{
		src:      src,
		interest: interest,
		board:    board,
		perPage:  perPage,
		seen:     make(map[string]struct{}),
		page:     1,
		hasMore:  true,
	}
}

// LoadMore 拉取下一页，返回新增币种数量
// 空页或不满一页说明没有更多了；之后再调用直接返回
func (s *CatalogService) LoadMore(ctx context.Context) (int, error) {
	if !s.load.TryLock() {
		return 0, ErrCatalogBusy
	}
	defer s.load.Unlock()

	s.mu.RLock()
	page, hasMore := s.page, s.hasMore
	s.mu.RUnlock()
	if !hasMore {
		return 0, nil
	}

	listings, err := s.src.FetchMarkets(ctx, page, s.perPage)
	if err != nil {
		return 0, fmt.Errorf("catalog page %d: %w", page, err)
	}

	var added []domain.Coin
	quotes := make(map[string]domain.Tick)

	s.mu.Lock()
	for _, l := range listings {
		if _, ok := s.seen[l.Coin.ID]; ok {
			continue
		}
		s.seen[l.Coin.ID] = struct{}{}
		s.coins = append(s.coins, l.Coin)
		added = append(added, l.Coin)
		if l.Quote.HasData() {
			quotes[l.Coin.Symbol] = l.Quote
		}
	}
	if len(listings) > 0 {
		s.page++
	}
	if len(listings) < s.perPage {
		s.hasMore = false
	}
	total, more := len(s.coins), s.hasMore
	s.mu.Unlock()

	if s.interest != nil && len(added) > 0 {
		s.interest.AddCoins(added...)
	}
	seeded := 0
	if s.board != nil {
		seeded = s.board.Seed(quotes)
	}

	log.Info().
		Int("page", page).
		Int("added", len(added)).
		Int("seeded", seeded).
		Int("total", total).
		Bool("has_more", more).
		Msg("catalog page loaded")
	return len(added), nil
}

// LoadPages 启动时连续加载 n 页；没有更多时提前结束
func (s *CatalogService) LoadPages(ctx context.Context, n int) error {
	for i := 0; i < n && s.HasMore(); i++ {
		if _, err := s.LoadMore(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *CatalogService) HasMore() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasMore
}

// Coins 已加载的币种，按加载顺序
func (s *CatalogService) Coins() []domain.Coin {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Coin(nil), s.coins...)
}

// Find returns the loaded coin with the given id.
func (s *CatalogService) Find(id string) (domain.Coin, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.coins {
		if c.ID == id {
			return c, true
		}
	}
	return domain.Coin{}, false
}

// Search 按 symbol / name 过滤已加载的币种，不修改 InterestSet
func (s *CatalogService) Search(q string) []domain.Coin {
	q = strings.ToLower(strings.TrimSpace(q))
	coins := s.Coins()
	if q == "" {
		return coins
	}
	out := coins[:0]
	for _, c := range coins {
		if strings.Contains(strings.ToLower(c.Symbol), q) || strings.Contains(strings.ToLower(c.Name), q) {
			out = append(out, c)
		}
	}
	return out
}
