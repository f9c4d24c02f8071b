// internal/message/payload.go
package message

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var roomIDPattern = regexp.MustCompile(`^[a-zA-Z0-9-]+$`)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = validate.RegisterValidation("roomid", func(fl validator.FieldLevel) bool {
			return roomIDPattern.MatchString(fl.Field().String())
		})
	})
	return validate
}

// ValidRoomID reports whether id is an acceptable room identifier.
func ValidRoomID(id string) bool {
	return len(id) > 0 && len(id) <= 64 && roomIDPattern.MatchString(id)
}

// Decode unmarshals a payload into v and validates its struct tags. Any failure is returned
// as an invalid_input Rejection.
func Decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return Reject(CodeInvalidInput, "malformed payload")
	}
	if err := validatorInstance().Struct(v); err != nil {
		return Reject(CodeInvalidInput, "%s", describeValidation(err))
	}
	return nil
}

func describeValidation(err error) string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return "invalid payload"
	}
	fe := errs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "roomid":
		return fmt.Sprintf("%s must contain only letters, digits and dashes", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

// RoomRef is the payload shared by every room-scoped message.
type RoomRef struct {
	RoomID string `json:"room_id" validate:"required,max=64,roomid"`
}

// JoinPayload is the payload of join_room.
type JoinPayload struct {
	RoomID    string `json:"room_id" validate:"required,max=64,roomid"`
	Spectator bool   `json:"spectator"`
}

// CommentPayload is the payload of send_comment.
type CommentPayload struct {
	RoomID  string `json:"room_id" validate:"required,max=64,roomid"`
	Comment string `json:"comment" validate:"required"`
}
