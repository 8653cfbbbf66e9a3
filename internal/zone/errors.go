package zone

import "errors"

var (
	ErrNotInitialized     = errors.New("хранилище зон не инициализировано")
	ErrNilRegistration    = errors.New("пустая регистрация")
	ErrInvalidLocator     = errors.New("локатор без площади")
	ErrDuplicateLocator   = errors.New("локатор уже занят")
	ErrDuplicatePlacement = errors.New("ассет уже размещён по этому смещению")
	ErrReservedImmortal   = errors.New("зона не может быть одновременно reserved и immortal")
	ErrNotFound           = errors.New("регистрация не найдена")
	ErrReentrant          = errors.New("изменение хранилища из обработчика уведомления")
	ErrNoUnloader         = errors.New("не задан исполнитель выгрузки")
	ErrNilStore           = errors.New("пустое хранилище")
	ErrDuplicateStore     = errors.New("хранилище с таким именем уже зарегистрировано")
)
