package ledger

import "time"

// Префикс ключей по умолчанию.
const DefaultPrefix = "fiscal"

// Сроки хранения.
const (
	// ActiveTTL — после этого срока запись об активной задаче считается осиротевшей
	// (worker упал, не отметив результат).
	ActiveTTL = 30 * time.Minute

	// LeaseKeyTTL — верхняя граница TTL аренды документа.
	LeaseKeyTTL = time.Hour
)

func activeKey(prefix string) string {
	return prefix + ":jobs:active"
}

func completedKey(prefix string) string {
	return prefix + ":jobs:completed"
}

func failedKey(prefix string) string {
	return prefix + ":jobs:failed"
}

func leaseKey(prefix, documentID string) string {
	return prefix + ":lease:" + documentID
}
