package provider

import (
	"fmt"
	"sort"
	"time"
)

// Имена встроенных провайдеров.
const (
	NameMock = "mock"
	NameHTTP = "http"
)

// Registry — реестр провайдеров по имени.
//
// Выбор провайдера — явная конфигурация, а не глобальное состояние:
// реестр строится при старте процесса и передаётся в компоненты.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register добавляет провайдер под именем.
func (r *Registry) Register(name string, p Provider) {
	r.providers[name] = p
}

// Get возвращает провайдер по имени.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, nil
}

// Names возвращает отсортированный список зарегистрированных имён.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Settings — параметры выбора провайдера из конфигурации процесса.
type Settings struct {
	Name            string
	URL             string
	Token           string
	Timeout         time.Duration

	// MockSuccessRate — вероятность успеха mock-провайдера.
	// Значение по умолчанию подставляет config, поэтому 0 здесь
	// означает "всегда ошибка".
	MockSuccessRate float64
}

// FromSettings регистрирует mock (всегда) и http (если задан URL)
// и возвращает выбранный провайдер.
func FromSettings(s Settings) (Provider, error) {
	rate := s.MockSuccessRate
	if rate <= 0 {
		rate = -1
	}

	r := NewRegistry()
	r.Register(NameMock, NewMock(MockConfig{SuccessRate: rate}))

	if s.URL != "" {
		p, err := NewHTTP(HTTPConfig{BaseURL: s.URL, Token: s.Token, Timeout: s.Timeout})
		if err != nil {
			return nil, err
		}
		r.Register(NameHTTP, p)
	}

	name := s.Name
	if name == "" {
		name = NameMock
	}
	return r.Get(name)
}
