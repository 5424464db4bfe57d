// Package telegram предоставляет клиент для отправки уведомлений о заказах
// в Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/ntarasau/vapeshop-backend/internal/model"
)

const defaultAPIURL = "https://api.telegram.org"

// Client инкапсулирует HTTP-взаимодействие с Telegram Bot API.
type Client struct {
	apiURL     string
	botToken   string
	chatID     string
	httpClient *http.Client
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// NewClient создаёт клиент уведомлений для указанного бота и чата.
// Отправка выполняется с ретраями на сетевые ошибки и 5xx-ответы.
func NewClient(botToken, chatID string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 3 * time.Second
	rc.HTTPClient.Timeout = 5 * time.Second
	rc.Logger = nil

	return &Client{
		apiURL:     defaultAPIURL,
		botToken:   botToken,
		chatID:     chatID,
		httpClient: rc.StandardClient(),
	}
}

// SendOrderNotification отправляет администратору сводку нового заказа.
func (c *Client) SendOrderNotification(ctx context.Context, order *model.Order, user *model.User) error {
	if c == nil || c.botToken == "" || c.chatID == "" {
		return fmt.Errorf("telegram client not configured")
	}

	return c.sendMessage(ctx, FormatOrderMessage(order, user))
}

func (c *Client) sendMessage(ctx context.Context, text string) error {
	body, err := json.Marshal(sendMessageRequest{
		ChatID:                c.chatID,
		Text:                  text,
		ParseMode:             "Markdown",
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", c.apiURL, c.botToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	var result sendMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if !result.OK {
		return fmt.Errorf("telegram api error: %s", result.Description)
	}

	return nil
}

// FormatOrderMessage собирает человекочитаемую сводку заказа.
func FormatOrderMessage(order *model.Order, user *model.User) string {
	var b strings.Builder

	var totalItems int32
	for _, it := range order.Items {
		totalItems += it.Quantity
	}

	fmt.Fprintf(&b, "🔔 *НОВЫЙ ЗАКАЗ #%d*\n\n", order.ID)
	fmt.Fprintf(&b, "📅 Дата: %s\n", order.CreatedAt.Format("02.01.2006 15:04"))
	if user != nil {
		if user.TelegramUsername != "" {
			fmt.Fprintf(&b, "👤 Покупатель: @%s\n", user.TelegramUsername)
		}
		if user.Phone != "" {
			fmt.Fprintf(&b, "📞 Телефон: %s\n", user.Phone)
		}
	}
	if order.DeliveryAddress != "" {
		fmt.Fprintf(&b, "🏠 Адрес: %s\n", order.DeliveryAddress)
	}
	fmt.Fprintf(&b, "🛍️ Количество товаров: %d шт.\n\n", totalItems)

	b.WriteString("📦 *Состав заказа:*\n\n")
	for i, it := range order.Items {
		itemTotal := float64(it.PriceCents*int64(it.Quantity)) / 100
		fmt.Fprintf(&b, "%d. %s\n", i+1, it.ProductName)
		fmt.Fprintf(&b, "   💰 %.2f BYN × %d шт. = %.2f BYN\n", it.Price, it.Quantity, itemTotal)
		if it.FlavorName != "" {
			fmt.Fprintf(&b, "   🍃 Вкус: %s\n", it.FlavorName)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "💳 *Итого к оплате: %.2f BYN*", order.TotalAmount)
	if order.Notes != "" {
		fmt.Fprintf(&b, "\n📝 Комментарий: %s", order.Notes)
	}

	return b.String()
}
