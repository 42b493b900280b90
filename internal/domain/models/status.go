package models

// OrderStatus статус заказа
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusConfirmed OrderStatus = "confirmed"
	StatusShipped   OrderStatus = "shipped"
	StatusDelivered OrderStatus = "delivered"
	StatusCancelled OrderStatus = "cancelled"
)

// таблица допустимых переходов: текущий статус -> разрешённые следующие
var transitions = map[OrderStatus][]OrderStatus{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusShipped, StatusCancelled},
	StatusShipped:   {StatusDelivered},
	StatusDelivered: {},
	StatusCancelled: {},
}

// AllStatuses возвращает все известные статусы в порядке жизненного цикла.
func AllStatuses() []OrderStatus {
	return []OrderStatus{StatusPending, StatusConfirmed, StatusShipped, StatusDelivered, StatusCancelled}
}

// Valid сообщает, является ли значение известным статусом.
func (s OrderStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// AllowedNext возвращает копию списка статусов, в которые можно перейти из s.
func (s OrderStatus) AllowedNext() []OrderStatus {
	next := transitions[s]
	out := make([]OrderStatus, len(next))
	copy(out, next)
	return out
}

// CanTransitionTo проверяет переход s -> next по таблице переходов.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal - из статуса нет переходов
func (s OrderStatus) IsTerminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

func (s OrderStatus) String() string {
	return string(s)
}
