package domain

import "errors"

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound     = errors.New("recurso no encontrado")
	ErrInvalidInput = errors.New("entrada inválida")
	ErrDuplicate    = errors.New("recurso duplicado")
	ErrUnauthorized = errors.New("no autorizado")
	ErrForbidden    = errors.New("acceso denegado")
	ErrConflict     = errors.New("conflicto con el estado actual")

	// Importación de NFe
	ErrMalformedDocument        = errors.New("documento NFe mal formado")
	ErrSchemaVersionUnsupported = errors.New("versión de esquema NFe no soportada")
	ErrEntityResolutionConflict = errors.New("conflicto al resolver entidad")
	ErrDuplicateDocument        = errors.New("documento ya importado (chave de acesso duplicada)")
	ErrBlockingInconsistency    = errors.New("inconsistencia bloqueante detectada")
	ErrImportCancelled          = errors.New("importación cancelada")
	ErrInvalidTransition        = errors.New("transición de estado inválida")

	// Stock
	ErrStockLotNotFound  = errors.New("lote de stock no encontrado")
	ErrInsufficientStock = errors.New("stock insuficiente")
)
