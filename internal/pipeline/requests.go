package pipeline

import (
	"context"
	"strings"

	"github.com/heureca/wppgateway/internal/errs"
)

// Forwarder is the provider surface the pipeline forwards payloads through.
// *provider.Client satisfies it.
type Forwarder interface {
	SendMessage(ctx context.Context, sessionName, token string, body interface{}) (map[string]interface{}, *errs.Error)
	SendImage(ctx context.Context, sessionName, token string, body interface{}) (map[string]interface{}, *errs.Error)
	SendFile(ctx context.Context, sessionName, token string, body interface{}) (map[string]interface{}, *errs.Error)
	SendVoice(ctx context.Context, sessionName, token string, body interface{}) (map[string]interface{}, *errs.Error)
	SendSticker(ctx context.Context, sessionName, token string, body interface{}) (map[string]interface{}, *errs.Error)
	SendList(ctx context.Context, sessionName, token string, body interface{}) (map[string]interface{}, *errs.Error)
	SendButtons(ctx context.Context, sessionName, token string, body interface{}) (map[string]interface{}, *errs.Error)
	SendPoll(ctx context.Context, sessionName, token string, body interface{}) (map[string]interface{}, *errs.Error)
	SendReply(ctx context.Context, sessionName, token string, body interface{}) (map[string]interface{}, *errs.Error)
	UnreadMessages(ctx context.Context, sessionName, token string) (map[string]interface{}, *errs.Error)
	ChatMessages(ctx context.Context, sessionName, token, phone string) (map[string]interface{}, *errs.Error)
}

// SendRequest is the closed set of payload shapes accepted by the gateway.
// Each variant validates itself at the boundary and knows which provider
// endpoint carries it; no untyped maps travel through the pipeline.
type SendRequest interface {
	SessionName() string
	Validate() *errs.Error
	forward(ctx context.Context, f Forwarder, sessionName, token string) (map[string]interface{}, *errs.Error)
}

// TextSend is a plain text message.
type TextSend struct {
	Session string `json:"session"`
	To      string `json:"to"`
	Message string `json:"message"`
}

func (r *TextSend) SessionName() string { return r.Session }

func (r *TextSend) Validate() *errs.Error {
	if strings.TrimSpace(r.Session) == "" {
		return errs.Validation("session is required")
	}
	if strings.TrimSpace(r.To) == "" {
		return errs.Validation("to is required")
	}
	if r.Message == "" {
		return errs.Validation("message is required")
	}
	return nil
}

func (r *TextSend) forward(ctx context.Context, f Forwarder, sessionName, token string) (map[string]interface{}, *errs.Error) {
	return f.SendMessage(ctx, sessionName, token, map[string]interface{}{
		"phone":   r.To,
		"message": r.Message,
	})
}

// MediaCommon carries the fields shared by all media variants.
type MediaCommon struct {
	Session string `json:"session"`
	Phone   string `json:"phone"`
	IsGroup bool   `json:"isGroup"`
	Caption string `json:"caption"`
}

func (m *MediaCommon) SessionName() string { return m.Session }

func (m *MediaCommon) validateCommon() *errs.Error {
	if strings.TrimSpace(m.Session) == "" {
		return errs.Validation("session is required")
	}
	if strings.TrimSpace(m.Phone) == "" {
		return errs.Validation("phone is required")
	}
	return nil
}

// ImageSend is a base64-encoded image.
type ImageSend struct {
	MediaCommon
	Base64   string `json:"base64"`
	Filename string `json:"filename"`
}

func (r *ImageSend) Validate() *errs.Error {
	if err := r.validateCommon(); err != nil {
		return err
	}
	return validateMedia(r.Base64, MediaImage)
}

func (r *ImageSend) forward(ctx context.Context, f Forwarder, sessionName, token string) (map[string]interface{}, *errs.Error) {
	filename := r.Filename
	if filename == "" {
		filename = "image.jpg"
	}
	return f.SendImage(ctx, sessionName, token, map[string]interface{}{
		"phone":    r.Phone,
		"base64":   r.Base64,
		"filename": filename,
		"caption":  r.Caption,
		"isGroup":  r.IsGroup,
	})
}

// FileSend is a base64-encoded document.
type FileSend struct {
	MediaCommon
	Base64   string `json:"base64"`
	Filename string `json:"filename"`
}

func (r *FileSend) Validate() *errs.Error {
	if err := r.validateCommon(); err != nil {
		return err
	}
	if strings.TrimSpace(r.Filename) == "" {
		return errs.Validation("filename is required")
	}
	return validateMedia(r.Base64, MediaDocument)
}

func (r *FileSend) forward(ctx context.Context, f Forwarder, sessionName, token string) (map[string]interface{}, *errs.Error) {
	return f.SendFile(ctx, sessionName, token, map[string]interface{}{
		"phone":    r.Phone,
		"base64":   r.Base64,
		"filename": r.Filename,
		"caption":  r.Caption,
		"isGroup":  r.IsGroup,
	})
}

// VoiceSend is a base64-encoded voice note.
type VoiceSend struct {
	MediaCommon
	Base64Ptt string `json:"base64Ptt"`
}

func (r *VoiceSend) Validate() *errs.Error {
	if err := r.validateCommon(); err != nil {
		return err
	}
	return validateMedia(r.Base64Ptt, MediaAudio)
}

func (r *VoiceSend) forward(ctx context.Context, f Forwarder, sessionName, token string) (map[string]interface{}, *errs.Error) {
	return f.SendVoice(ctx, sessionName, token, map[string]interface{}{
		"phone":     r.Phone,
		"base64Ptt": r.Base64Ptt,
		"isGroup":   r.IsGroup,
	})
}

// StickerSend is a base64-encoded sticker image.
type StickerSend struct {
	MediaCommon
	Base64 string `json:"base64"`
}

func (r *StickerSend) Validate() *errs.Error {
	if err := r.validateCommon(); err != nil {
		return err
	}
	return validateMedia(r.Base64, MediaSticker)
}

func (r *StickerSend) forward(ctx context.Context, f Forwarder, sessionName, token string) (map[string]interface{}, *errs.Error) {
	return f.SendSticker(ctx, sessionName, token, map[string]interface{}{
		"phone":   r.Phone,
		"base64":  r.Base64,
		"isGroup": r.IsGroup,
	})
}

// ListRow is one selectable row of a list message.
type ListRow struct {
	RowID       string `json:"rowId"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// ListSection groups rows under a section title.
type ListSection struct {
	Title string    `json:"title"`
	Rows  []ListRow `json:"rows"`
}

// ListSend is an interactive list (menu with selectable options).
type ListSend struct {
	Session     string        `json:"session"`
	Phone       string        `json:"phone"`
	IsGroup     bool          `json:"isGroup"`
	Description string        `json:"description"`
	ButtonText  string        `json:"buttonText"`
	Sections    []ListSection `json:"sections"`
}

func (r *ListSend) SessionName() string { return r.Session }

func (r *ListSend) Validate() *errs.Error {
	if strings.TrimSpace(r.Session) == "" {
		return errs.Validation("session is required")
	}
	if strings.TrimSpace(r.Phone) == "" {
		return errs.Validation("phone is required")
	}
	if len(r.Sections) == 0 {
		return errs.Validation("at least one section is required")
	}
	for _, section := range r.Sections {
		if len(section.Rows) == 0 {
			return errs.Validation("every section needs at least one row")
		}
		for _, row := range section.Rows {
			if row.RowID == "" || row.Title == "" {
				return errs.Validation("row id and title are required")
			}
		}
	}
	return nil
}

func (r *ListSend) forward(ctx context.Context, f Forwarder, sessionName, token string) (map[string]interface{}, *errs.Error) {
	return f.SendList(ctx, sessionName, token, map[string]interface{}{
		"phone":       r.Phone,
		"isGroup":     r.IsGroup,
		"description": r.Description,
		"buttonText":  r.ButtonText,
		"sections":    r.Sections,
	})
}

// Button is one interactive button.
type Button struct {
	ButtonID   string `json:"buttonId"`
	ButtonText string `json:"buttonText"`
}

// ButtonsSend is an interactive buttons message.
type ButtonsSend struct {
	Session string   `json:"session"`
	Phone   string   `json:"phone"`
	IsGroup bool     `json:"isGroup"`
	Title   string   `json:"title"`
	Message string   `json:"message"`
	Buttons []Button `json:"buttons"`
}

func (r *ButtonsSend) SessionName() string { return r.Session }

func (r *ButtonsSend) Validate() *errs.Error {
	if strings.TrimSpace(r.Session) == "" {
		return errs.Validation("session is required")
	}
	if strings.TrimSpace(r.Phone) == "" {
		return errs.Validation("phone is required")
	}
	if r.Message == "" {
		return errs.Validation("message is required")
	}
	if len(r.Buttons) == 0 {
		return errs.Validation("at least one button is required")
	}
	for _, b := range r.Buttons {
		if b.ButtonID == "" || b.ButtonText == "" {
			return errs.Validation("button id and text are required")
		}
	}
	return nil
}

func (r *ButtonsSend) forward(ctx context.Context, f Forwarder, sessionName, token string) (map[string]interface{}, *errs.Error) {
	return f.SendButtons(ctx, sessionName, token, map[string]interface{}{
		"phone":   r.Phone,
		"isGroup": r.IsGroup,
		"title":   r.Title,
		"message": r.Message,
		"buttons": r.Buttons,
	})
}

// PollSend is an interactive poll.
type PollSend struct {
	Session         string   `json:"session"`
	Phone           string   `json:"phone"`
	IsGroup         bool     `json:"isGroup"`
	Name            string   `json:"name"`
	Choices         []string `json:"choices"`
	SelectableCount int      `json:"selectableCount"`
}

func (r *PollSend) SessionName() string { return r.Session }

func (r *PollSend) Validate() *errs.Error {
	if strings.TrimSpace(r.Session) == "" {
		return errs.Validation("session is required")
	}
	if strings.TrimSpace(r.Phone) == "" {
		return errs.Validation("phone is required")
	}
	if strings.TrimSpace(r.Name) == "" {
		return errs.Validation("poll name is required")
	}
	if len(r.Choices) < 2 {
		return errs.Validation("a poll needs at least two choices")
	}
	return nil
}

func (r *PollSend) forward(ctx context.Context, f Forwarder, sessionName, token string) (map[string]interface{}, *errs.Error) {
	selectable := r.SelectableCount
	if selectable <= 0 {
		selectable = 1
	}
	return f.SendPoll(ctx, sessionName, token, map[string]interface{}{
		"phone":   r.Phone,
		"isGroup": r.IsGroup,
		"name":    r.Name,
		"choices": r.Choices,
		"options": map[string]interface{}{"selectableCount": selectable},
	})
}

// ReplyButton is one quick-reply option.
type ReplyButton struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// ReplySend is a message with quick-reply buttons.
type ReplySend struct {
	Session string        `json:"session"`
	Phone   string        `json:"phone"`
	IsGroup bool          `json:"isGroup"`
	Message string        `json:"message"`
	Buttons []ReplyButton `json:"buttons"`
}

func (r *ReplySend) SessionName() string { return r.Session }

func (r *ReplySend) Validate() *errs.Error {
	if strings.TrimSpace(r.Session) == "" {
		return errs.Validation("session is required")
	}
	if strings.TrimSpace(r.Phone) == "" {
		return errs.Validation("phone is required")
	}
	if r.Message == "" {
		return errs.Validation("message is required")
	}
	if len(r.Buttons) == 0 {
		return errs.Validation("at least one button is required")
	}
	return nil
}

func (r *ReplySend) forward(ctx context.Context, f Forwarder, sessionName, token string) (map[string]interface{}, *errs.Error) {
	return f.SendReply(ctx, sessionName, token, map[string]interface{}{
		"phone":   r.Phone,
		"isGroup": r.IsGroup,
		"message": r.Message,
		"buttons": r.Buttons,
	})
}
