// Package mq — RabbitMQ-реализация очереди выпуска документов.
//
// Структура:
//   - connection.go — соединение с reconnect
//   - topology.go   — exchanges, очереди, привязки
//   - publisher.go  — публикация задач, повторов, DLQ и событий
//   - consumer.go   — слоты обработки, retry через очередь ожидания
//   - broker.go     — queue.Broker/queue.Consumer поверх всего этого
//
// Повтор с задержкой реализован без плагинов: сообщение публикуется
// в fiscal.issuance.retry.<ms>, очередь своей задержки с x-message-ttl,
// и по истечении возвращается в рабочую очередь через dead-letter exchange.
// Одна очередь на задержку: при общей очереди с per-message TTL сообщение
// истекает только в голове очереди.
package mq
