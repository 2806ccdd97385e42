// Package orchestrator принимает запросы на выпуск фискальных документов.
//
// Orchestrator отвечает за:
//   - Создание IssuanceRecord в PROCESSING (идемпотентно по счёту)
//   - Постановку задачи в брокер
//   - Синхронную попытку тем же обработчиком, если брокер недоступен
//   - Повтор, отмену и сверку документа с провайдером
//   - Интроспекцию очереди, которая никогда не возвращает ошибку
//
// Сам Orchestrator попыток не планирует: расписание повторов
// принадлежит брокеру, выполнение попытки принадлежит Worker'у.
package orchestrator
