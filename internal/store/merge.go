package store

import (
	"sort"
	"time"

	"github.com/cwrk-planet/chatsync/internal/domain"
)

// IsDuplicate: тот же id, либо тот же отправитель с тем же текстом и разницей sentAt меньше window.
// Второе правило ловит пару "ответ REST на свою отправку + эхо по сокету".
func IsDuplicate(msgs []domain.Message, m domain.Message, window time.Duration) bool {
	for _, cur := range msgs {
		if m.ID != 0 && cur.ID == m.ID {
			return true
		}
		if cur.SenderID == m.SenderID && cur.Content == m.Content && absDur(cur.SentAt.Sub(m.SentAt)) < window {
			return true
		}
	}
	return false
}

// insertNewest вставляет m, сохраняя порядок от новых к старым.
func insertNewest(msgs []domain.Message, m domain.Message) []domain.Message {
	i := sort.Search(len(msgs), func(i int) bool { return msgs[i].SentAt.Before(m.SentAt) })
	msgs = append(msgs, domain.Message{})
	copy(msgs[i+1:], msgs[i:])
	msgs[i] = m
	return msgs
}

// mergeHead вливает сообщения из push или поллинга. Возвращает число добавленных и отброшенных.
func mergeHead(msgs []domain.Message, in []domain.Message, window time.Duration) ([]domain.Message, int, int) {
	added, dropped := 0, 0
	for _, m := range in {
		if IsDuplicate(msgs, m, window) {
			dropped++
			continue
		}
		msgs = insertNewest(msgs, m)
		added++
	}
	return msgs, added, dropped
}

// appendTail дописывает более старую страницу; дубли отсекаются только по id.
func appendTail(msgs []domain.Message, older []domain.Message) ([]domain.Message, int) {
	seen := make(map[int64]struct{}, len(msgs))
	for _, m := range msgs {
		seen[m.ID] = struct{}{}
	}
	dropped := 0
	for _, m := range older {
		if _, ok := seen[m.ID]; ok {
			dropped++
			continue
		}
		seen[m.ID] = struct{}{}
		msgs = append(msgs, m)
	}
	return msgs, dropped
}

func newestFirst(msgs []domain.Message) []domain.Message {
	out := append([]domain.Message(nil), msgs...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].SentAt.After(out[j].SentAt) })
	return out
}

func absDur(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
