// Package workers — selector.go отбирает узлы-кандидаты для резолва.
// Два уровня: сначала healthy, затем quota-exhausted с разрешённой тратой GP.
// Внутри уровня порядок случайный, чтобы нагрузка не липла к одному владельцу.
package workers

import (
	"context"
	"math/rand"
)

// Selector строит упорядоченный список кандидатов под требуемую стоимость.
type Selector struct {
	repo *Repository
}

// NewSelector создаёт селектор узлов.
func NewSelector(repo *Repository) *Selector {
	return &Selector{repo: repo}
}

// Select возвращает кандидатов для запроса стоимостью cost:
// перемешанный уровень healthy, затем перемешанный fallback-уровень.
// Пустой список — легальный результат («нет мощностей»), не ошибка.
func (s *Selector) Select(ctx context.Context, cost int64) ([]*Worker, error) {
	list, err := s.repo.ListSelectable(ctx)
	if err != nil {
		return nil, err
	}

	normal, fallback := SplitTiers(list, cost)
	rand.Shuffle(len(normal), func(i, j int) {
		normal[i], normal[j] = normal[j], normal[i]
	})
	rand.Shuffle(len(fallback), func(i, j int) {
		fallback[i], fallback[j] = fallback[j], fallback[i]
	})

	return append(normal, fallback...), nil
}
