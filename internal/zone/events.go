package zone

// EventType определяет тип уведомления хранилища
type EventType uint8

const (
	EventAdded EventType = iota
	EventRemoved
)

func (t EventType) String() string {
	switch t {
	case EventAdded:
		return "added"
	case EventRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Event передаётся подписчикам синхронно во время изменения хранилища
type Event struct {
	Type         EventType
	Store        string
	Registration *Registration
}

// Handler получает уведомления. Не должен изменять хранилище.
type Handler func(Event)

type handlerEntry struct {
	id uint64
	fn Handler
}

// Subscription позволяет отписаться от уведомлений
type Subscription struct {
	store *Store
	id    uint64
}

// Unsubscribe снимает обработчик. Повторный вызов безопасен.
func (s Subscription) Unsubscribe() {
	if s.store == nil {
		return
	}
	s.store.unsubscribe(s.id)
}
