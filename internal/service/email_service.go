package service

import (
	"context"
	"fmt"
	"log"

	"github.com/resend/resend-go/v2"
)

// EmailService отправляет почту через Resend. Без API-ключа письма
// не отправляются, а пишутся в лог — режим локальной разработки.
type EmailService struct {
	client *resend.Client
	from   string
}

func NewEmailService(apiKey, from string) *EmailService {
	var client *resend.Client
	if apiKey != "" {
		client = resend.NewClient(apiKey)
	}

	return &EmailService{
		client: client,
		from:   from,
	}
}

// SendWelcome отправляет приветственное письмо. Повторная отправка на тот
// же адрес безопасна.
func (s *EmailService) SendWelcome(ctx context.Context, email string) error {
	if s.client == nil {
		log.Printf("Welcome %s", email)
		return nil
	}

	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{email},
		Subject: "Welcome!",
		Text:    fmt.Sprintf("Welcome %s! Your storage is ready.", email),
	}

	_, err := s.client.Emails.SendWithContext(ctx, params)
	return err
}
