package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"coinfeed/internal/application/port"
	"coinfeed/internal/domain"
)

var ErrInvalidWatchItem = errors.New("watch item needs id and symbol")

// WatchlistService 自选列表；自选的币种也会加入 InterestSet
// 删除不会把币种移出 InterestSet（集合只增不减）
type WatchlistService struct {
	repo     port.WatchlistRepository
	interest CoinInterest
	now      func() time.Time

	mu    sync.RWMutex
	items []domain.WatchItem
}

func NewWatchlistService(repo port.WatchlistRepository, interest CoinInterest) *WatchlistService {
	return &WatchlistService{repo: repo, interest: interest, now: time.Now}
}

// Restore 启动时从存储加载
func (s *WatchlistService) Restore(ctx context.Context) error {
	items, err := s.repo.ListWatch(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.items = items
	s.mu.Unlock()

	s.addInterest(items...)
	log.Info().Int("items", len(items)).Msg("watchlist restored")
	return nil
}

// Add returns false when the coin is already watched.
func (s *WatchlistService) Add(ctx context.Context, coin domain.Coin) (bool, error) {
	coin.ID = strings.TrimSpace(coin.ID)
	coin.Symbol = domain.NormalizeSymbol(coin.Symbol)
	if coin.ID == "" || coin.Symbol == "" {
		return false, ErrInvalidWatchItem
	}
	if s.Contains(coin.ID) {
		return false, nil
	}

	item := domain.WatchItem{ID: coin.ID, Symbol: coin.Symbol, Name: coin.Name, AddedAt: s.now().UnixMilli()}
	if err := s.repo.AddWatch(ctx, item); err != nil {
		return false, err
	}

	s.mu.Lock()
	s.items = append(s.items, item)
	s.mu.Unlock()

	s.addInterest(item)
	return true, nil
}

// Remove returns false when the id was not watched.
func (s *WatchlistService) Remove(ctx context.Context, id string) (bool, error) {
	if !s.Contains(id) {
		return false, nil
	}
	if err := s.repo.RemoveWatch(ctx, id); err != nil {
		return false, err
	}

	s.mu.Lock()
	for i, it := range s.items {
		if it.ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	return true, nil
}

// Toggle 已存在则删除，否则添加；返回操作后是否在列表中
func (s *WatchlistService) Toggle(ctx context.Context, coin domain.Coin) (bool, error) {
	if s.Contains(coin.ID) {
		_, err := s.Remove(ctx, coin.ID)
		return false, err
	}
	_, err := s.Add(ctx, coin)
	return err == nil, err
}

func (s *WatchlistService) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, it := range s.items {
		if it.ID == id {
			return true
		}
	}
	return false
}

func (s *WatchlistService) List() []domain.WatchItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.WatchItem(nil), s.items...)
}

func (s *WatchlistService) addInterest(items ...domain.WatchItem) {
	if s.interest == nil || len(items) == 0 {
		return
	}
	coins := make([]domain.Coin, 0, len(items))
	for _, it := range items {
		coins = append(coins, domain.Coin{ID: it.ID, Symbol: it.Symbol, Name: it.Name})
	}
	s.interest.AddCoins(coins...)
}
