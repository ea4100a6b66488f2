package rest

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// SuccessResponse wraps every successful response body. Grounded on the
// teacher's rest/helpers.go envelope shape.
type SuccessResponse struct {
	Data any       `json:"data"`
	Meta *MetaInfo `json:"meta,omitempty"`
}

// MetaInfo carries pagination metadata for list endpoints.
type MetaInfo struct {
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func respondJSON(c *gin.Context, status int, data any) {
	c.JSON(status, SuccessResponse{Data: data})
}

func respondList(c *gin.Context, status int, data any, total, limit, offset int) {
	c.JSON(status, SuccessResponse{Data: data, Meta: &MetaInfo{Total: total, Limit: limit, Offset: offset}})
}

func respondAPIError(c *gin.Context, err error) {
	apiErr := TranslateError(err)
	c.JSON(apiErr.HTTPStatus, apiErr)
}

func bindJSON(c *gin.Context, obj any) error {
	if err := c.ShouldBindJSON(obj); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			msgs := make([]string, 0, len(ve))
			for _, fe := range ve {
				field := strings.ToLower(fe.Field())
				switch fe.Tag() {
				case "required":
					msgs = append(msgs, fmt.Sprintf("%s is required", field))
				case "min":
					msgs = append(msgs, fmt.Sprintf("%s must be at least %s", field, fe.Param()))
				case "max":
					msgs = append(msgs, fmt.Sprintf("%s must be at most %s", field, fe.Param()))
				case "oneof":
					msgs = append(msgs, fmt.Sprintf("%s must be one of [%s]", field, fe.Param()))
				default:
					msgs = append(msgs, fmt.Sprintf("%s is invalid", field))
				}
			}
			respondAPIError(c, NewAPIErrorWithDetails("VALIDATION_FAILED", strings.Join(msgs, "; "), 400, nil))
		} else {
			respondAPIError(c, ErrInvalidJSON)
		}
		return err
	}
	return nil
}

func getQueryInt(c *gin.Context, name string, defaultValue int) int {
	v := c.Query(name)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return n
}
