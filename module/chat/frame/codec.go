package frame

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"dyadchat/tools/decode"
	"dyadchat/tools/errs"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
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
	})
	return validate
}

// Decode 解析一帧：先取 type，再按 type 解到对应变体。
// JSON 本身不合法或字段类型对不上时返回 ErrMalformedFrame；
// 未识别的 type（包括缺失）得到 Unknown，交给路由回显。
func Decode(raw []byte) (Inbound, error) {
	m, err := decode.Object(raw)
	if err != nil {
		return nil, errs.ErrMalformedFrame.WrapMsg(err.Error())
	}
	tag, err := decode.ReadString(m, "type")
	if err != nil {
		return nil, errs.ErrMalformedFrame.WrapMsg(err.Error())
	}

	switch Type(tag) {
	case TypeAuth:
		return decodeAs[Auth](m)
	case TypeMessage:
		return decodeAs[SendMessage](m)
	case TypeFetchHistory:
		return decodeAs[FetchHistory](m)
	case TypeFetchConversations:
		return FetchConversations{}, nil
	case TypeMarkRead:
		return decodeAs[MarkRead](m)
	case TypeTyping, TypeTypingStop:
		t, err := decodeAs[Typing](m)
		if err != nil {
			return nil, err
		}
		t.Stop = Type(tag) == TypeTypingStop
		return t, nil
	case TypeSearchUserByEmail:
		return decodeAs[SearchUserByEmail](m)
	case TypeStartChatWithUser:
		return decodeAs[StartChatWithUser](m)
	default:
		return Unknown{Tag: tag, Raw: m}, nil
	}
}

func decodeAs[T any](m map[string]any) (T, error) {
	var zero T
	v, err := decode.DecodeMap[T](m)
	if err != nil {
		return zero, errs.ErrMalformedFrame.WrapMsg(err.Error())
	}
	return *v, nil
}

// Check 必填字段校验，失败时返回 ErrMissingField，detail 为缺失字段名
func Check(in Inbound) error {
	if _, ok := in.(Unknown); ok {
		return nil
	}
	err := validatorInstance().Struct(in)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		fields := make([]string, 0, len(ve))
		for _, fe := range ve {
			fields = append(fields, fe.Field())
		}
		return errs.ErrMissingField.WrapMsg(strings.Join(fields, ","))
	}
	return errs.ErrMalformedFrame.WrapMsg(err.Error())
}

// Encode 出站帧统一走 JSON 文本
func Encode(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errs.Wrap(err)
	}
	return b, nil
}

// MustEncode 只用于字段全部可序列化的出站结构
func MustEncode(v any) []byte {
	b, err := Encode(v)
	if err != nil {
		panic(err)
	}
	return b
}
