package api

import (
	"log/slog"

	"github.com/shaiso/fiscaldoc/internal/orchestrator"
	"github.com/shaiso/fiscaldoc/internal/render"
	"github.com/shaiso/fiscaldoc/internal/repo"
)

// Directory — справочник счетов и получателей с записью.
type Directory interface {
	repo.Directory
	repo.DirectoryWriter
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	orch      *orchestrator.Orchestrator
	directory Directory
	renderer  *render.PDFRenderer
	logger    *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Orchestrator *orchestrator.Orchestrator
	Directory    Directory
	Renderer     *render.PDFRenderer // (опционально; default: render.NewPDFRenderer())
	Logger       *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	renderer := cfg.Renderer
	if renderer == nil {
		renderer = render.NewPDFRenderer()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		orch:      cfg.Orchestrator,
		directory: cfg.Directory,
		renderer:  renderer,
		logger:    logger,
	}
}
