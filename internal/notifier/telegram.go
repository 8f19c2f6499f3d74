package notifier

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sungli01/stock-bot-sub000/internal/utils"
)

type TelegramNotifier struct {
	Token   string
	ChatID  string
	Retries int
	Delay   time.Duration
}

func NewTelegramNotifier(token, chatID string, retries int, delay time.Duration) *TelegramNotifier {
	return &TelegramNotifier{Token: token, ChatID: chatID, Retries: retries, Delay: delay}
}

func (t *TelegramNotifier) Send(message string) error {
	apiURL := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.Token)
	resp, err := http.PostForm(apiURL, url.Values{
		"chat_id": {t.ChatID},
		"text":    {message},
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return fmt.Errorf("telegram send failed: %s", resp.Status)
	}
	return nil
}

func (t *TelegramNotifier) SendWithRetry(message string) error {
	var lastErr error
	for attempt := 0; attempt < t.Retries; attempt++ {
		if lastErr = t.Send(message); lastErr == nil {
			return nil
		}
		utils.GetLogger().Printf("Notifier | Send attempt %d/%d failed: %v", attempt+1, t.Retries, lastErr)
		time.Sleep(t.Delay)
	}
	return fmt.Errorf("telegram send failed after %d attempts: %w", t.Retries, lastErr)
}
