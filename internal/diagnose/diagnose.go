// Package diagnose turns symptom descriptions into repair advice using the
// OpenAI API.
package diagnose

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const promptTemplate = `Bạn là một chuyên gia sửa chữa xe máy với hơn 20 năm kinh nghiệm tại Việt Nam.
Dựa trên mô tả triệu chứng dưới đây (và hình ảnh nếu có), hãy trả lời gồm ba phần:
1. **Chẩn đoán sơ bộ**: các nguyên nhân có khả năng nhất.
2. **Các bước kiểm tra**: trình tự kiểm tra để xác nhận nguyên nhân.
3. **Phụ tùng có thể cần thay**: liệt kê tên phụ tùng cụ thể.
Trả lời bằng tiếng Việt, định dạng Markdown.

Triệu chứng: %s`

type Assistant struct {
	client *openai.Client
	model  string
}

func New(apiKey string, model string) *Assistant {
	if model == "" {
		model = openai.ChatModelGPT4o
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &Assistant{client: &client, model: model}
}

// Diagnose sends the symptom, and optionally a base64 photo as a data URL,
// and returns the model's Markdown answer.
func (a *Assistant) Diagnose(ctx context.Context, symptom string, imageBase64 string, imageMimeType string) (string, error) {
	prompt := fmt.Sprintf(promptTemplate, symptom)

	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(prompt),
	}
	if imageBase64 != "" {
		mime := imageMimeType
		if mime == "" {
			mime = "image/jpeg"
		}
		dataURL := fmt.Sprintf("data:%s;base64,%s", mime, imageBase64)
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL: dataURL,
		}))
	}

	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: a.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(parts),
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai chat error: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("empty response content")
	}
	return resp.Choices[0].Message.Content, nil
}
