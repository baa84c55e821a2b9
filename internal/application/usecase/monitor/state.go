package monitor

import (
	"sync"

	"coinfeed/internal/domain"
)

type Dir int

const (
	DirSame Dir = 0
	DirUp   Dir = +1
	DirDown Dir = -1
)

type pxState struct {
	tick domain.Tick
	dir  Dir
}

// Row 一行展示数据
type Row struct {
	Symbol string
	Tick   domain.Tick
	Dir    Dir
}

// State 记住每个币种上次展示的价格，用来给涨跌上色
type State struct {
	mu   sync.Mutex
	syms map[string]*pxState
}

func NewState() *State {
	return &State{syms: make(map[string]*pxState)}
}

// Apply 用最新快照更新状态，返回价格发生变化的币种数
func (s *State) Apply(snap map[string]domain.Tick) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := 0
	for sym, t := range snap {
		if !t.HasData() {
			continue
		}
		ps := s.syms[sym]
		if ps == nil {
			s.syms[sym] = &pxState{tick: t, dir: DirSame}
			changed++
			continue
		}
		if ps.tick == t {
			continue
		}

		prev := ps.tick.Price
		switch {
		case t.Price > prev:
			ps.dir = DirUp
		case t.Price < prev:
			ps.dir = DirDown
		default:
			ps.dir = DirSame
		}
		ps.tick = t
		changed++
	}
	return changed
}

// Rows 按 order 顺序返回有数据的行；没有数据的币种不展示
func (s *State) Rows(order []string, limit int) []Row {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Row, 0, len(order))
	for _, sym := range order {
		ps := s.syms[sym]
		if ps == nil || !ps.tick.HasData() {
			continue
		}
		out = append(out, Row{Symbol: sym, Tick: ps.tick, Dir: ps.dir})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}
