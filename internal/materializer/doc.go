// Package materializer скачивает и сохраняет результаты завершённого job.
//
// Гарантии:
//   - не более одной конкурентной материализации на заказ
//     (атомарный check-and-set download_status в БД);
//   - не более одного OutputFile на пару (заказ, формат) —
//     повторная загрузка после частичной неудачи пропускает уже
//     сохранённые форматы;
//   - при частичной неудаче download_status откатывается в UNKNOWN,
//     чтобы следующий poll повторил загрузку целиком.
package materializer
