package domain

// DocumentStatus — статус фискального документа.
//
// Жизненный цикл:
//
//	[PROCESSING] → ISSUED → CANCELLED (только явной отменой)
//	             ↘ FAILED → PROCESSING (retry)
//
// PENDING присутствует в модели данных, но pipeline его никогда не записывает:
// запись создаётся сразу в PROCESSING.
type DocumentStatus string

const (
	// DocumentStatusPending — зарезервирован, pipeline не использует.
	DocumentStatusPending DocumentStatus = "PENDING"

	// DocumentStatusProcessing — выпуск запрошен, попытка в полёте или в очереди.
	DocumentStatusProcessing DocumentStatus = "PROCESSING"

	// DocumentStatusIssued — документ выпущен провайдером.
	DocumentStatusIssued DocumentStatus = "ISSUED"

	// DocumentStatusFailed — последняя попытка завершилась ошибкой.
	DocumentStatusFailed DocumentStatus = "FAILED"

	// DocumentStatusCancelled — выпущенный документ отменён.
	DocumentStatusCancelled DocumentStatus = "CANCELLED"
)

// transitions — допустимые переходы между статусами.
var transitions = map[DocumentStatus]map[DocumentStatus]bool{
	DocumentStatusProcessing: {
		DocumentStatusIssued: true,
		DocumentStatusFailed: true,
	},
	DocumentStatusFailed: {
		DocumentStatusProcessing: true,
	},
	DocumentStatusIssued: {
		DocumentStatusCancelled: true,
	},
}

// CanTransition проверяет, разрешён ли переход from → to.
func CanTransition(from, to DocumentStatus) bool {
	next, ok := transitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// IsTerminal возвращает true для ISSUED и CANCELLED.
// FAILED терминален только в рамках одной попытки.
func (s DocumentStatus) IsTerminal() bool {
	switch s {
	case DocumentStatusIssued, DocumentStatusCancelled:
		return true
	default:
		return false
	}
}

// IsValid проверяет, что статус входит в известный набор.
func (s DocumentStatus) IsValid() bool {
	switch s {
	case DocumentStatusPending, DocumentStatusProcessing, DocumentStatusIssued,
		DocumentStatusFailed, DocumentStatusCancelled:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление DocumentStatus.
func (s DocumentStatus) String() string {
	return string(s)
}

// ParseDocumentStatus парсит строку в DocumentStatus.
// Неизвестное значение возвращается как есть; проверка через IsValid.
func ParseDocumentStatus(s string) DocumentStatus {
	return DocumentStatus(s)
}
