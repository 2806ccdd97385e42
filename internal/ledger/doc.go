// Package ledger хранит в Redis состояние задач, которое RabbitMQ не отдаёт:
// активные, завершённые и окончательно упавшие задачи с ограничением хранения,
// а также аренды документов, исключающие параллельные попытки выпуска.
package ledger
