package errors

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/apilens/apilens/internal/core"
	"github.com/apilens/apilens/internal/metrics"
)

// Error codes carried in envelopes.
const (
	CodeInvalidInput     = "INVALID_INPUT"
	CodeValidation       = "VALIDATION_FAILED"
	CodeNotFound         = "NOT_FOUND"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeRateLimited      = "RATE_LIMITED"
	CodeTimeout          = "TIMEOUT"
	CodeExternalService  = "EXTERNAL_SERVICE_ERROR"
	CodeDatabase         = "DATABASE_ERROR"
	CodeConfigInvalid    = "CONFIG_INVALID"
	CodeInternal         = "INTERNAL_ERROR"
	CodeRequestCancelled = "REQUEST_CANCELLED"
)

type correlationKey struct{}

// WithCorrelationID returns a context carrying the correlation id used for
// envelopes created under it.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, correlationKey{}, id)
}

// NewCorrelationID generates a correlation id for one command invocation.
func NewCorrelationID() string {
	return uuid.New().String()
}

// Error creation helpers for common error types

func NewInvalidInputError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeInvalidInput, message)
}

func NewNotFoundError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeNotFound, message)
}

func NewConfigInvalidError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeConfigInvalid, message)
}

func WrapDatabaseError(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	envelope := errors.NewErrorEnvelope(CodeDatabase, message)
	envelope = envelope.WithCorrelationID(extractCorrelationID(ctx))
	envelope = withWrappedError(envelope, err)
	return envelope
}

// FromError converts a connector error into an envelope. Request failures
// carry connection_id, method, endpoint, status, attempts and retry_after
// in the envelope context. Credentials never appear in request errors, so
// nothing here needs redaction.
func FromError(ctx context.Context, err error) *errors.ErrorEnvelope {
	if err == nil {
		return nil
	}

	var envelope *errors.ErrorEnvelope
	if stderrors.As(err, &envelope) && envelope != nil {
		return EnsureCorrelationID(envelope, ctx)
	}

	code := codeFor(err)
	envelope = errors.NewErrorEnvelope(code, err.Error())
	envelope = envelope.WithCorrelationID(extractCorrelationID(ctx))

	details := map[string]interface{}{}

	var validation *core.ValidationError
	if stderrors.As(err, &validation) && validation.Field != "" {
		details["field"] = validation.Field
	}

	var reqErr *core.RequestError
	if stderrors.As(err, &reqErr) {
		if reqErr.ConnectionID != "" {
			details["connection_id"] = reqErr.ConnectionID
		}
		if reqErr.Method != "" {
			details["method"] = reqErr.Method
		}
		if reqErr.Endpoint != "" {
			details["endpoint"] = reqErr.Endpoint
		}
		if reqErr.StatusCode > 0 {
			details["status"] = reqErr.StatusCode
		}
		if reqErr.Attempts > 0 {
			details["attempts"] = reqErr.Attempts
		}
		if reqErr.RetryAfter > 0 {
			details["retry_after"] = reqErr.RetryAfter.String()
		}
		if stderrors.Is(reqErr.Kind, core.ErrRateLimitExceeded) {
			source := "local"
			if reqErr.Provider {
				source = "provider"
			}
			details["rate_limit_source"] = source
		}
	}

	if len(details) > 0 {
		if updated, ctxErr := envelope.WithContext(details); ctxErr == nil {
			envelope = updated
		}
	}

	envelope = withSeverity(envelope, code)

	metrics.RecordError(code, statusOf(err))
	return envelope
}

func codeFor(err error) string {
	switch {
	case stderrors.Is(err, context.Canceled):
		return CodeRequestCancelled
	case stderrors.Is(err, core.ErrValidation):
		return CodeValidation
	case stderrors.Is(err, core.ErrConnectionNotFound), stderrors.Is(err, core.ErrNotFound):
		return CodeNotFound
	case stderrors.Is(err, core.ErrAuthentication):
		return CodeUnauthorized
	case stderrors.Is(err, core.ErrRateLimitExceeded):
		return CodeRateLimited
	case stderrors.Is(err, core.ErrTimeout), stderrors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case stderrors.Is(err, core.ErrClientStatus):
		return CodeInvalidInput
	case stderrors.Is(err, core.ErrNetwork),
		stderrors.Is(err, core.ErrServerStatus),
		stderrors.Is(err, core.ErrRequestFailedAfterRetries):
		return CodeExternalService
	default:
		return CodeInternal
	}
}

func withSeverity(envelope *errors.ErrorEnvelope, code string) *errors.ErrorEnvelope {
	var (
		updated *errors.ErrorEnvelope
		err     error
	)
	switch code {
	case CodeInternal, CodeDatabase:
		updated, err = envelope.WithSeverity(errors.SeverityHigh)
	case CodeExternalService, CodeTimeout, CodeRateLimited:
		updated, err = envelope.WithSeverity(errors.SeverityMedium)
	default:
		return envelope
	}
	if err != nil {
		return envelope
	}
	return updated
}

func statusOf(err error) int {
	var reqErr *core.RequestError
	if stderrors.As(err, &reqErr) {
		return reqErr.StatusCode
	}
	return 0
}

// extractCorrelationID gets the correlation ID from context, falls back to generating new UUID
func extractCorrelationID(ctx context.Context) string {
	if ctx != nil {
		if id, ok := ctx.Value(correlationKey{}).(string); ok && id != "" {
			return id
		}
	}
	return uuid.New().String()
}

// EnsureEnvelope normalizes any error into a gofulmen ErrorEnvelope.
func EnsureEnvelope(err error) *errors.ErrorEnvelope {
	if err == nil {
		env := errors.NewErrorEnvelope(CodeInternal, "unexpected nil error")
		env, _ = env.WithSeverity(errors.SeverityCritical)
		return env
	}
	return FromError(context.Background(), err)
}

// EnsureCorrelationID attaches a correlation ID to the envelope using the context when available.
func EnsureCorrelationID(envelope *errors.ErrorEnvelope, ctx context.Context) *errors.ErrorEnvelope {
	if envelope == nil {
		return nil
	}

	if envelope.CorrelationID != "" {
		return envelope
	}

	return envelope.WithCorrelationID(extractCorrelationID(ctx))
}

// HTTPStatusFromCode resolves the HTTP status equivalent of an error code.
func HTTPStatusFromCode(code string) int {
	switch code {
	case CodeInvalidInput, CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeExternalService:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ExitCodeFromEnvelope resolves the process exit code for an envelope.
func ExitCodeFromEnvelope(envelope *errors.ErrorEnvelope) foundry.ExitCode {
	if envelope == nil {
		return foundry.ExitFailure
	}
	switch envelope.Code {
	case CodeConfigInvalid, CodeValidation:
		return foundry.ExitConfigInvalid
	case CodeExternalService, CodeTimeout, CodeRateLimited:
		return foundry.ExitExternalServiceUnavailable
	default:
		return foundry.ExitFailure
	}
}

// LogEnvelope writes the envelope to logger at a level matching its severity.
func LogEnvelope(logger *logging.Logger, envelope *errors.ErrorEnvelope) {
	if logger == nil || envelope == nil {
		return
	}

	fields := []zap.Field{
		zap.String("error_code", envelope.Code),
	}

	if envelope.Severity != "" {
		fields = append(fields, zap.String("severity", string(envelope.Severity)))
	}

	for key, value := range envelope.Context {
		fields = append(fields, zap.Any(key, value))
	}

	if envelope.CorrelationID != "" {
		fields = append(fields, zap.String("correlation_id", envelope.CorrelationID))
	}

	switch envelope.Severity {
	case errors.SeverityCritical, errors.SeverityHigh:
		logger.Error(envelope.Message, fields...)
	case errors.SeverityMedium:
		logger.Warn(envelope.Message, fields...)
	default:
		logger.Info(envelope.Message, fields...)
	}
}

func withWrappedError(envelope *errors.ErrorEnvelope, err error) *errors.ErrorEnvelope {
	if envelope == nil || err == nil {
		return envelope
	}

	updated, updateErr := envelope.WithContext(map[string]interface{}{
		"wrapped_error": err.Error(),
	})
	if updateErr != nil {
		return envelope
	}
	return updated
}
