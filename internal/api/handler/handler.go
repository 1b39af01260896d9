package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/Rrens/streamchat/internal/api/response"
	"github.com/Rrens/streamchat/internal/backend"
)

var validate = validator.New()

const (
	msgInvalidBody  = "无效的请求体"
	msgInvalidInput = "请求参数无效"
	msgInternal     = "服务器内部错误"
)

// decode reads a JSON body into v and validates it. It writes the error
// response itself and reports whether the handler should continue.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		response.BadRequest(w, msgInvalidBody)
		return false
	}

	if err := validate.Struct(v); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			fields := make(map[string]string)
			for _, e := range validationErrors {
				field := e.Field()
				tag := e.Tag()
				switch tag {
				case "required":
					fields[field] = "field is required"
				case "email":
					fields[field] = "invalid email format"
				case "max":
					fields[field] = "must be at most " + e.Param() + " characters"
				case "oneof":
					fields[field] = "must be one of " + e.Param()
				default:
					fields[field] = "validation failed on " + tag
				}
			}
			response.Invalid(w, msgInvalidInput, fields)
			return false
		}
		response.BadRequest(w, err.Error())
		return false
	}

	return true
}

// fail writes err as an envelope. Errors meant for the client keep their
// text; anything else is logged and hidden.
func fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if backend.IsUserError(err) {
		response.BadRequest(w, err.Error())
		return
	}

	log.Error().Err(err).Str("op", op).Str("path", r.URL.Path).Msg("request failed")
	response.InternalError(w, msgInternal)
}
