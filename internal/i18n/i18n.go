// Package i18n provides the localized texts users see when something fails.
package i18n

import (
	"errors"
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"github.com/Rrens/streamchat/internal/domain"
)

const (
	keyReplyFailed       = "reply_failed"
	keyConnectFailed     = "connect_failed"
	keyDefaultTitle      = "default_title"
	keyEmptyResponse     = "empty_response"
	keyMalformedResponse = "malformed_response"
	keyLastConversation  = "last_conversation"
	keyBusy              = "busy"
	keyStreamTimeout     = "stream_timeout"
)

var supported = []language.Tag{language.SimplifiedChinese, language.English}

var texts = map[language.Tag]map[string]string{
	language.SimplifiedChinese: {
		keyReplyFailed:       "抱歉，发送消息时出错: %s",
		keyConnectFailed:     "无法连接到服务器，请检查网络连接或确保后端服务正在运行",
		keyDefaultTitle:      "默认对话",
		keyEmptyResponse:     "服务器返回空响应",
		keyMalformedResponse: "服务器响应格式错误: %s",
		keyLastConversation:  "至少需要保留一个对话",
		keyBusy:              "上一条回复仍在生成中，请稍候",
		keyStreamTimeout:     "服务器长时间没有响应",
	},
	language.English: {
		keyReplyFailed:       "Sorry, something went wrong while sending the message: %s",
		keyConnectFailed:     "Cannot reach the server. Check your network connection or make sure the backend is running",
		keyDefaultTitle:      "Default conversation",
		keyEmptyResponse:     "The server returned an empty response",
		keyMalformedResponse: "The server response is malformed: %s",
		keyLastConversation:  "At least one conversation must be kept",
		keyBusy:              "A reply is still being generated, please wait",
		keyStreamTimeout:     "The server stopped responding",
	},
}

// Translator renders texts for one locale
type Translator struct {
	tag     language.Tag
	printer *message.Printer
}

// New returns a translator for locale, falling back to Simplified Chinese
// for unsupported or malformed locales.
func New(locale string) *Translator {
	builder, err := buildCatalog(texts)
	if err != nil {
		panic(err)
	}

	tag := language.SimplifiedChinese
	if requested, err := language.Parse(locale); err == nil {
		_, idx, conf := language.NewMatcher(supported).Match(requested)
		if conf != language.No {
			tag = supported[idx]
		}
	}

	return &Translator{
		tag:     tag,
		printer: message.NewPrinter(tag, message.Catalog(builder)),
	}
}

func buildCatalog(texts map[language.Tag]map[string]string) (*catalog.Builder, error) {
	builder := catalog.NewBuilder(catalog.Fallback(language.SimplifiedChinese))
	for tag, msgs := range texts {
		for key, msg := range msgs {
			if err := builder.SetString(tag, key, msg); err != nil {
				return nil, fmt.Errorf("failed to add %s text %q: %w", tag, key, err)
			}
		}
	}
	return builder, nil
}

// Tag returns the resolved language
func (t *Translator) Tag() language.Tag {
	return t.tag
}

// DefaultTitle is the title of the conversation created for a new user
func (t *Translator) DefaultTitle() string {
	return t.printer.Sprintf(keyDefaultTitle)
}

// ReplyFailed is the text that replaces a failed assistant reply
func (t *Translator) ReplyFailed(err error) string {
	return t.printer.Sprintf(keyReplyFailed, t.Describe(err))
}

// Describe turns err into a user-facing sentence
func (t *Translator) Describe(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, domain.ErrLastConversation):
		return t.printer.Sprintf(keyLastConversation)
	case errors.Is(err, domain.ErrConversationBusy):
		return t.printer.Sprintf(keyBusy)
	}

	var te *domain.TransportError
	if errors.As(err, &te) {
		switch te.Kind {
		case domain.TransportConnect:
			return t.printer.Sprintf(keyConnectFailed)
		case domain.TransportEmptyBody:
			return t.printer.Sprintf(keyEmptyResponse)
		case domain.TransportMalformed:
			return t.printer.Sprintf(keyMalformedResponse, te.Err)
		case domain.TransportTimeout:
			return t.printer.Sprintf(keyStreamTimeout)
		}
	}

	return domain.Describe(err)
}
