package errors

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ErrorCode представляет код ошибки
type ErrorCode string

const (
	// Общие ошибки
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeValidation   ErrorCode = "VALIDATION_ERROR"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"
	ErrCodeConflict     ErrorCode = "CONFLICT"
	ErrCodeBadRequest   ErrorCode = "BAD_REQUEST"

	// Ошибки верификации
	ErrCodeTransientNetwork      ErrorCode = "TRANSIENT_NETWORK"
	ErrCodeProofTimeout          ErrorCode = "PROOF_TIMEOUT"
	ErrCodeProofMalformed        ErrorCode = "PROOF_MALFORMED"
	ErrCodeUserCancelled         ErrorCode = "USER_CANCELLED"
	ErrCodeLedgerRejected        ErrorCode = "LEDGER_REJECTED"
	ErrCodeAmbiguousBackgrounded ErrorCode = "AMBIGUOUS_BACKGROUNDED"

	// Ошибки провайдеров
	ErrCodeProviderUnknown ErrorCode = "PROVIDER_UNKNOWN"
	ErrCodeSessionActive   ErrorCode = "SESSION_ALREADY_ACTIVE"
	ErrCodeSessionNotFound ErrorCode = "SESSION_NOT_FOUND"

	// Ошибки кэша и внешних API
	ErrCodeCacheError  ErrorCode = "CACHE_ERROR"
	ErrCodeExternalAPI ErrorCode = "EXTERNAL_API_ERROR"
)

// AppError представляет типизированную ошибку приложения
type AppError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Context   map[string]string      `json:"context,omitempty"`
	Stack     []string               `json:"stack,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	RequestID string                 `json:"request_id,omitempty"`
	UserID    int64                  `json:"user_id,omitempty"`
	Cause     error                  `json:"-"`
}

// Error возвращает строковое представление ошибки
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap возвращает причину ошибки
func (e *AppError) Unwrap() error {
	return e.Cause
}

// IsRetryable сообщает, имеет ли смысл повторить действие вручную
func (e *AppError) IsRetryable() bool {
	return e.Code == ErrCodeTransientNetwork || e.Code == ErrCodeProofTimeout
}

// IsTerminalFailure сообщает, завершает ли ошибка сессию верификации
func (e *AppError) IsTerminalFailure() bool {
	return e.Code != ErrCodeAmbiguousBackgrounded
}

// IsNotFound проверяет, является ли ошибка ошибкой "не найдено"
func (e *AppError) IsNotFound() bool {
	return e.Code == ErrCodeNotFound ||
		e.Code == ErrCodeProviderUnknown ||
		e.Code == ErrCodeSessionNotFound
}

// IsValidation проверяет, является ли ошибка ошибкой валидации
func (e *AppError) IsValidation() bool {
	return e.Code == ErrCodeValidation || e.Code == ErrCodeBadRequest
}

// IsInternal проверяет, является ли ошибка внутренней ошибкой
func (e *AppError) IsInternal() bool {
	return e.Code == ErrCodeInternal ||
		e.Code == ErrCodeCacheError ||
		e.Code == ErrCodeExternalAPI
}

// WithContext добавляет контекст к ошибке
func (e *AppError) WithContext(key, value string) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// WithDetail добавляет детальную информацию к ошибке
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithRequestID добавляет ID запроса к ошибке
func (e *AppError) WithRequestID(requestID string) *AppError {
	e.RequestID = requestID
	return e
}

// WithUserID добавляет ID пользователя к ошибке
func (e *AppError) WithUserID(userID int64) *AppError {
	e.UserID = userID
	return e
}

// New создает новую ошибку приложения
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		Stack:     getStackTrace(),
	}
}

// Wrap оборачивает существующую ошибку
func Wrap(err error, code ErrorCode, message string) *AppError {
	appErr := New(code, message)
	appErr.Cause = err
	return appErr
}

// Wrapf оборачивает существующую ошибку с форматированием
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// getStackTrace возвращает стек вызовов
func getStackTrace() []string {
	var stack []string
	for i := 2; ; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}
		// Пропускаем внутренние функции пакета errors
		if strings.Contains(fn.Name(), "internal/common/errors") {
			continue
		}
		stack = append(stack, fmt.Sprintf("%s:%d %s", file, line, fn.Name()))
		if len(stack) >= 10 { // Ограничиваем глубину стека
			break
		}
	}
	return stack
}

// Конструкторы для часто используемых ошибок

// NewValidationError создает ошибку валидации
func NewValidationError(field, reason string) *AppError {
	return New(ErrCodeValidation, fmt.Sprintf("Validation failed for field '%s': %s", field, reason)).
		WithDetail("field", field).
		WithDetail("reason", reason)
}

// NewProviderUnknownError создает ошибку "провайдер не найден"
func NewProviderUnknownError(providerID string) *AppError {
	return New(ErrCodeProviderUnknown, fmt.Sprintf("Unknown provider: %s", providerID)).
		WithDetail("provider_id", providerID)
}

// NewSessionNotFoundError создает ошибку "сессия не найдена"
func NewSessionNotFoundError(userID int64) *AppError {
	return New(ErrCodeSessionNotFound, "No verification session in flight").
		WithUserID(userID)
}

// NewSessionActiveError создает ошибку конфликта активной сессии
func NewSessionActiveError(providerID string) *AppError {
	return New(ErrCodeSessionActive, "A verification session is already in flight").
		WithDetail("provider_id", providerID)
}

// NewTransientNetworkError создает сетевую ошибку, повторяемую пользователем
func NewTransientNetworkError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeTransientNetwork, fmt.Sprintf("Network error during %s, please try again", operation)).
		WithDetail("operation", operation)
}

// NewProofTimeoutError создает ошибку исчерпания опроса relay
func NewProofTimeoutError(attempts int) *AppError {
	return New(ErrCodeProofTimeout, "Proof did not arrive in time; if you completed verification, refresh the page").
		WithDetail("poll_attempts", attempts)
}

// NewProofMalformedError создает ошибку извлечения данных из proof
func NewProofMalformedError(providerID string) *AppError {
	return New(ErrCodeProofMalformed, "Could not extract any expected data from the proof, please try again").
		WithDetail("provider_id", providerID)
}

// NewUserCancelledError создает ошибку отмены пользователем
func NewUserCancelledError() *AppError {
	return New(ErrCodeUserCancelled, "Verification cancelled")
}

// NewLedgerRejectedError создает ошибку отказа Ledger API; message показывается как есть
func NewLedgerRejectedError(message string) *AppError {
	if message == "" {
		message = "Contribution rejected"
	}
	return New(ErrCodeLedgerRejected, message)
}

// NewUnauthorizedError создает ошибку авторизации
func NewUnauthorizedError(reason string) *AppError {
	return New(ErrCodeUnauthorized, fmt.Sprintf("Unauthorized: %s", reason)).
		WithDetail("reason", reason)
}

// NewCacheError создает ошибку кэша
func NewCacheError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeCacheError, fmt.Sprintf("Cache operation failed: %s", operation)).
		WithDetail("operation", operation)
}

// NewExternalAPIError создает ошибку внешнего API
func NewExternalAPIError(service string, err error) *AppError {
	return Wrap(err, ErrCodeExternalAPI, fmt.Sprintf("External API call failed: %s", service)).
		WithDetail("service", service)
}

// IsAppError проверяет, является ли ошибка AppError
func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

// AsAppError приводит ошибку к AppError
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if err != nil {
		appErr, _ = err.(*AppError)
	}
	return appErr, appErr != nil
}
